package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	body           []byte
	idempotencyKey string
	contentType    string
}

func newTransport(url string) *Transport {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.MaxRetries = 1
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = 5 * time.Millisecond
	return New(cfg, nil, nil)
}

func TestDeliverSendsExpectedRequest(t *testing.T) {
	t.Parallel()

	var got recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = recordedRequest{
			body:           body,
			idempotencyKey: r.Header.Get("Idempotency-Key"),
			contentType:    r.Header.Get("Content-Type"),
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result, err := newTransport(srv.URL).Deliver(context.Background(), Request{
		FirstName:      "Ada",
		LastName:       "Lovelace",
		EventType:      "birthday",
		IdempotencyKey: "ada-birthday-2026",
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "ada-birthday-2026", got.idempotencyKey)
	assert.Equal(t, "application/json", got.contentType)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(got.body, &payload))
	assert.Equal(t, "Hey Ada Lovelace, it's your birthday!", payload["message"])
}

func TestDeliverNon200IsFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	result, err := newTransport(srv.URL).Deliver(context.Background(), Request{IdempotencyKey: "k"})
	require.NoError(t, err)
	assert.False(t, result.Success, "only exactly 200 counts as success")
	assert.Equal(t, http.StatusAccepted, result.StatusCode)
}

func TestDeliverRetriesTransient5xxOnce(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result, err := newTransport(srv.URL).Deliver(context.Background(), Request{IdempotencyKey: "k"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDeliverDoesNotRetryTerminal4xx(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	result, err := newTransport(srv.URL).Deliver(context.Background(), Request{IdempotencyKey: "k"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, int32(1), calls.Load(), "terminal statuses must not be retried")
}

func TestProbeSendsSentinelBody(t *testing.T) {
	t.Parallel()

	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	healthy := newTransport(srv.URL).Probe(context.Background())
	assert.True(t, healthy)

	var payload map[string]bool
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.True(t, payload["test"])
}

func TestProbeUnhealthyOn5xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	assert.False(t, newTransport(srv.URL).Probe(context.Background()))
}

func TestClassifyHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status    int
		retryable bool
	}{
		{200, false},
		{408, true},
		{429, true},
		{400, false},
		{404, false},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		retryable, _ := classifyHTTPStatus(tt.status)
		assert.Equal(t, tt.retryable, retryable, "status %d", tt.status)
	}
}
