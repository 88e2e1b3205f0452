// Package sentryinit wires optional Sentry error reporting. A nil
// *Reporter is inert: every method on it is a no-op, so callers hold one
// reporter handle and never branch on whether a DSN was configured.
package sentryinit

import (
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
)

// Config identifies the reporting target and the process reporting to it.
type Config struct {
	DSN         string
	Environment string
	Process     string
}

// Reporter forwards errors and lifecycle transitions to Sentry.
type Reporter struct {
	process string
	handler *sentryhttp.Handler
}

// New initializes the Sentry client and returns a live Reporter. An empty
// DSN returns (nil, nil), and the nil Reporter is safe to use.
func New(cfg Config) (*Reporter, error) {
	if cfg.DSN == "" {
		return nil, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		ServerName:  cfg.Process,
	}); err != nil {
		return nil, err
	}
	return &Reporter{
		process: cfg.Process,
		handler: sentryhttp.New(sentryhttp.Options{
			Repanic:         true,
			WaitForDelivery: true,
			Timeout:         5 * time.Second,
		}),
	}, nil
}

// Middleware returns the HTTP middleware that captures handler panics. On
// an inert Reporter it passes handlers through untouched.
func (r *Reporter) Middleware() func(http.Handler) http.Handler {
	if r == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return r.handler.Handle
}

// Lifecycle records a process transition such as startup or shutdown.
func (r *Reporter) Lifecycle(phase string, tags map[string]string) {
	if r == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("event", "lifecycle")
		scope.SetTag("process", r.process)
		scope.SetTag("lifecycle_phase", phase)
		scope.SetLevel(sentry.LevelInfo)
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureMessage(r.process + ".lifecycle." + phase)
	})
}

// Error forwards err tagged with the component that raised it.
func (r *Reporter) Error(err error, component string) {
	if r == nil || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		sentry.CaptureException(err)
	})
}

// Close flushes buffered events before process exit.
func (r *Reporter) Close() {
	if r == nil {
		return
	}
	sentry.Flush(5 * time.Second)
}
