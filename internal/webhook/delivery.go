// Package webhook delivers the single outbound notification POST the
// sender and DLQ processor both depend on: a retrying HTTP transport with
// status-based retryability classification and structured logging.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/occasionhook/anniversary-notify/internal/metrics"
	"github.com/occasionhook/anniversary-notify/internal/obslog"
)

// Request is one greeting delivery.
type Request struct {
	FirstName      string
	LastName       string
	EventType      string
	IdempotencyKey string // "{userID}-{eventType}-{yearNow}"
}

// Result describes what happened, kept distinct from error so callers can
// tell a successful-but-non-200 delivery apart from a transport-level
// failure without string-matching errors.
type Result struct {
	Success    bool
	StatusCode int
	Retryable  bool
	Duration   time.Duration
}

type payload struct {
	Message string `json:"message"`
}

// Transport POSTs greeting payloads to a single configured endpoint.
type Transport struct {
	cfg     Config
	client  *http.Client
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New constructs a Transport. metrics may be nil in tests.
func New(cfg Config, log *slog.Logger, m *metrics.Metrics) *Transport {
	if log == nil {
		log = slog.Default()
	}
	return &Transport{cfg: cfg, client: newHTTPClient(cfg), log: log, metrics: m}
}

// Deliver sends the single webhook POST described by req, retrying up to
// cfg.MaxRetries times for transient same-invocation failures only. It
// never masks the queue's own redelivery budget: a non-retryable or
// exhausted-retry outcome is returned, never retried again internally.
func (t *Transport) Deliver(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(payload{
		Message: fmt.Sprintf("Hey %s %s, it's your %s!", req.FirstName, req.LastName, req.EventType),
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal webhook payload: %w", err)
	}

	var lastResult Result
	var lastErr error

	for attempt := 0; attempt <= t.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := t.backoff(attempt)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return lastResult, ctx.Err()
			case <-timer.C:
			}
		}

		start := time.Now()
		result, err := t.attempt(ctx, body, req.IdempotencyKey)
		result.Duration = time.Since(start)
		t.observe(result, err)
		t.logAttempt(ctx, req, attempt, result, err)

		lastResult, lastErr = result, err
		if err == nil && (result.Success || !result.Retryable) {
			return result, nil
		}
	}

	return lastResult, lastErr
}

// Probe sends the DLQ processor's sentinel health check; only an HTTP 200
// counts as healthy.
func (t *Transport) Probe(ctx context.Context) bool {
	body, err := json.Marshal(map[string]bool{"test": true})
	if err != nil {
		return false
	}
	result, err := t.attempt(ctx, body, "")
	if t.metrics != nil {
		if err == nil && result.Success {
			t.metrics.DLQHealthProbeUp.Set(1)
		} else {
			t.metrics.DLQHealthProbeUp.Set(0)
		}
	}
	return err == nil && result.Success
}

func (t *Transport) attempt(ctx context.Context, body []byte, idempotencyKey string) (Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build webhook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", t.cfg.UserAgent)
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		retryable := ctx.Err() == nil
		return Result{Retryable: retryable}, fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	retryable, _ := classifyHTTPStatus(resp.StatusCode)
	return Result{
		Success:    resp.StatusCode == http.StatusOK,
		StatusCode: resp.StatusCode,
		Retryable:  retryable,
	}, nil
}

// classifyHTTPStatus: 2xx is not retried (only 200 counts as success, see
// attempt), 408/429 are retryable client errors, other 4xx are terminal,
// 5xx is retryable.
func classifyHTTPStatus(statusCode int) (retryable bool, errorType string) {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return false, ""
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusTooManyRequests:
		return true, "timeout"
	case statusCode >= 400 && statusCode < 500:
		return false, "client"
	case statusCode >= 500:
		return true, "server"
	default:
		return false, "unknown"
	}
}

func (t *Transport) backoff(attempt int) time.Duration {
	wait := t.cfg.RetryWaitMin * time.Duration(1<<uint(attempt-1))
	if wait > t.cfg.RetryWaitMax {
		wait = t.cfg.RetryWaitMax
	}
	return wait
}

func (t *Transport) observe(result Result, err error) {
	if t.metrics == nil {
		return
	}
	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
	case !result.Success:
		outcome = "rejected"
	}
	t.metrics.WebhookRequestsTotal.WithLabelValues(outcome).Inc()
	t.metrics.WebhookDuration.Observe(result.Duration.Seconds())
}

// logAttempt logs through the context's delivery scope, so each attempt
// carries the same user/event/year fields the sender stamped.
func (t *Transport) logAttempt(ctx context.Context, req Request, attempt int, result Result, err error) {
	log := obslog.For(ctx, t.log)
	attrs := []any{
		slog.Int("attempt", attempt),
		slog.String("idempotency_key", req.IdempotencyKey),
		slog.Int("status_code", result.StatusCode),
		slog.Duration("duration", result.Duration),
	}
	switch {
	case err != nil:
		log.Warn("webhook delivery attempt failed", append(attrs, slog.String("error", err.Error()))...)
	case !result.Success:
		log.Warn("webhook delivery rejected", attrs...)
	default:
		log.Info("webhook delivery succeeded", attrs...)
	}
}
