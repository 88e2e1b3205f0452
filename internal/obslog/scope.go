package obslog

import (
	"context"
	"log/slog"
)

type scopeKey struct{}

// Scope identifies the work a log line belongs to. An admin request sets
// RequestID; a delivery sets UserID, EventType, and Year. Zero fields are
// omitted from output.
type Scope struct {
	RequestID string
	UserID    string
	EventType string
	Year      int
}

// ContextWithScope merges s into ctx. Fields s leaves zero keep whatever an
// outer scope already set, so a delivery driven inside an admin request
// carries both identities.
func ContextWithScope(ctx context.Context, s Scope) context.Context {
	if prev, ok := ctx.Value(scopeKey{}).(Scope); ok {
		if s.RequestID == "" {
			s.RequestID = prev.RequestID
		}
		if s.UserID == "" {
			s.UserID = prev.UserID
		}
		if s.EventType == "" {
			s.EventType = prev.EventType
		}
		if s.Year == 0 {
			s.Year = prev.Year
		}
	}
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFromContext returns the scope stored in ctx, zero when absent.
func ScopeFromContext(ctx context.Context) Scope {
	s, _ := ctx.Value(scopeKey{}).(Scope)
	return s
}

// For returns base extended with ctx's scope fields. A nil base falls back
// to slog.Default.
func For(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}

	s := ScopeFromContext(ctx)
	args := make([]any, 0, 4)
	if s.RequestID != "" {
		args = append(args, slog.String("request_id", s.RequestID))
	}
	if s.UserID != "" {
		args = append(args, slog.String("user_id", s.UserID))
	}
	if s.EventType != "" {
		args = append(args, slog.String("event_type", s.EventType))
	}
	if s.Year != 0 {
		args = append(args, slog.Int("year", s.Year))
	}
	if len(args) == 0 {
		return base
	}
	return base.With(args...)
}
