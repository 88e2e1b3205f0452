package obslog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestContextWithScopeRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := ContextWithScope(context.Background(), Scope{UserID: "ada", EventType: "birthday", Year: 2026})

	got := ScopeFromContext(ctx)
	if got.UserID != "ada" || got.EventType != "birthday" || got.Year != 2026 {
		t.Fatalf("ScopeFromContext() = %+v", got)
	}
}

func TestContextWithScopeMergesOuterFields(t *testing.T) {
	t.Parallel()

	ctx := ContextWithScope(context.Background(), Scope{RequestID: "req-1"})
	ctx = ContextWithScope(ctx, Scope{UserID: "ada", EventType: "birthday", Year: 2026})

	got := ScopeFromContext(ctx)
	if got.RequestID != "req-1" {
		t.Fatalf("inner scope must keep the outer request id, got %+v", got)
	}
	if got.UserID != "ada" || got.Year != 2026 {
		t.Fatalf("inner scope fields lost: %+v", got)
	}
}

func TestScopeFromContextMissingIsZero(t *testing.T) {
	t.Parallel()

	if got := ScopeFromContext(context.Background()); got != (Scope{}) {
		t.Fatalf("expected zero scope, got %+v", got)
	}
}

func TestForStampsScopeFieldsAndOmitsZeroes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := ContextWithScope(context.Background(), Scope{UserID: "ada", EventType: "birthday"})
	For(ctx, base).Info("claimed")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if line["user_id"] != "ada" || line["event_type"] != "birthday" {
		t.Fatalf("scope fields missing from log line: %v", line)
	}
	if _, present := line["year"]; present {
		t.Fatalf("zero year must be omitted, got %v", line)
	}
	if _, present := line["request_id"]; present {
		t.Fatalf("zero request id must be omitted, got %v", line)
	}
}

func TestForWithoutScopeReturnsBase(t *testing.T) {
	t.Parallel()

	base := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if got := For(context.Background(), base); got != base {
		t.Fatal("an unscoped context must return the base logger unchanged")
	}
}

func TestNewDefaultsToInfo(t *testing.T) {
	t.Parallel()

	logger := New(Options{Level: "bogus", Process: "test"})
	if !logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("INFO must be enabled for an unknown level string")
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("DEBUG must not be enabled for an unknown level string")
	}
}
