package sentryinit

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewWithoutDSNReturnsInertReporter(t *testing.T) {
	t.Parallel()

	r, err := New(Config{Process: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if r != nil {
		t.Fatalf("expected nil Reporter without a DSN, got %+v", r)
	}
}

func TestNilReporterMethodsAreNoOps(t *testing.T) {
	t.Parallel()

	var r *Reporter
	r.Lifecycle("startup", map[string]string{"app_env": "test"})
	r.Error(errors.New("boom"), "scheduler_sweep")
	r.Close()
}

func TestNilReporterMiddlewarePassesThrough(t *testing.T) {
	t.Parallel()

	var r *Reporter
	called := false
	handler := r.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !called {
		t.Fatal("wrapped handler was not invoked")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}
