// Package healthmonitor implements the reconciliation pass: it reports
// events that missed their firing window in the last 24 hours and promotes
// events stuck in the sending state to failed so a later delivery attempt
// can re-claim them.
package healthmonitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/occasionhook/anniversary-notify/internal/clock"
	"github.com/occasionhook/anniversary-notify/internal/config"
	"github.com/occasionhook/anniversary-notify/internal/metrics"
	"github.com/occasionhook/anniversary-notify/internal/obslog"
	"github.com/occasionhook/anniversary-notify/internal/store"
)

// Status classifies one monitor run by how many issues it found.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Actions recorded per stuck event.
const (
	ActionMarkedFailedForRetry = "marked_failed_for_retry"
	ActionMonitoring           = "monitoring"
)

// StuckPromotionReason is written when the monitor promotes a long-stuck
// event to failed.
const StuckPromotionReason = "Stuck in sending state detected by health check"

// MissedEvent is one event whose firing window passed without completion.
type MissedEvent struct {
	UserID       string    `json:"user_id"`
	EventType    string    `json:"event_type"`
	NotifyUTC    time.Time `json:"notify_utc"`
	LastSentYear int       `json:"last_sent_year"`
	Status       string    `json:"sending_status"`
	HoursOverdue float64   `json:"hours_overdue"`
}

// StuckEvent is one event sitting in sending_status=sending.
type StuckEvent struct {
	UserID         string    `json:"user_id"`
	EventType      string    `json:"event_type"`
	AttemptedAt    time.Time `json:"sending_attempted_at"`
	ElapsedMinutes float64   `json:"elapsed_minutes"`
	Action         string    `json:"action"`
}

// Report is the output shape of one monitor run.
type Report struct {
	Status      Status        `json:"status"`
	MissedCount int           `json:"missed_count"`
	StuckCount  int           `json:"stuck_count"`
	Missed      []MissedEvent `json:"missed"`
	Stuck       []StuckEvent  `json:"stuck"`
	Timestamp   time.Time     `json:"timestamp"`
}

// EventReader is the slice of the store gateway the monitor depends on.
type EventReader interface {
	QueryByNotifyRange(ctx context.Context, from, to time.Time) ([]*store.Event, error)
	QueryBySendingStatus(ctx context.Context, status store.SendingStatus) ([]*store.Event, error)
	MarkFailed(ctx context.Context, userID, eventType, reason string, now time.Time) error
}

// Monitor runs the missed-events and stuck-events checks.
type Monitor struct {
	store   EventReader
	clock   clock.Clock
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New constructs a Monitor. metrics may be nil in tests.
func New(st EventReader, clk clock.Clock, log *slog.Logger, m *metrics.Metrics) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		store:   st,
		clock:   clk,
		log:     log.With(slog.String("component", "health_monitor")),
		metrics: m,
	}
}

// Run performs both checks and returns the combined report. now is captured
// once at the top so every comparison in the run agrees on the reference
// instant.
func (m *Monitor) Run(ctx context.Context) (Report, error) {
	now := m.clock.Now()
	report := Report{
		Missed:    []MissedEvent{},
		Stuck:     []StuckEvent{},
		Timestamp: now,
	}

	missed, err := m.checkMissed(ctx, now)
	if err != nil {
		return report, fmt.Errorf("missed events check: %w", err)
	}
	report.Missed = missed
	report.MissedCount = len(missed)

	stuck, err := m.checkStuck(ctx, now)
	if err != nil {
		return report, fmt.Errorf("stuck events check: %w", err)
	}
	report.Stuck = stuck
	report.StuckCount = len(stuck)

	report.Status = classify(report.MissedCount + report.StuckCount)
	m.observe(report)

	obslog.For(ctx, m.log).Info("health check completed",
		slog.String("status", string(report.Status)),
		slog.Int("missed_count", report.MissedCount),
		slog.Int("stuck_count", report.StuckCount),
	)
	return report, nil
}

// checkMissed finds events whose notify_utc fell inside the last 24 hours
// but whose delivery for the current year never completed.
func (m *Monitor) checkMissed(ctx context.Context, now time.Time) ([]MissedEvent, error) {
	events, err := m.store.QueryByNotifyRange(ctx, now.Add(-24*time.Hour), now)
	if err != nil {
		return nil, err
	}

	currentYear := now.Year()
	missed := []MissedEvent{}
	for _, e := range events {
		if e.LastSentYear >= currentYear {
			continue
		}
		if e.SendingStatus == store.SendingStatusCompleted {
			continue
		}
		missed = append(missed, MissedEvent{
			UserID:       e.UserID,
			EventType:    e.EventType,
			NotifyUTC:    e.NotifyUTC,
			LastSentYear: e.LastSentYear,
			Status:       string(e.SendingStatus),
			HoursOverdue: now.Sub(e.NotifyUTC).Hours(),
		})
	}
	return missed, nil
}

// checkStuck scans sending_status=sending rows and promotes those held past
// the monitor timeout to failed so the next delivery attempt can re-claim
// them. The monitor timeout is deliberately longer than the sender's own, so
// the two recovery paths never race.
func (m *Monitor) checkStuck(ctx context.Context, now time.Time) ([]StuckEvent, error) {
	events, err := m.store.QueryBySendingStatus(ctx, store.SendingStatusSending)
	if err != nil {
		return nil, err
	}

	log := obslog.For(ctx, m.log)
	stuck := []StuckEvent{}
	for _, e := range events {
		if e.SendingAttemptedAt == nil {
			continue
		}
		elapsed := now.Sub(*e.SendingAttemptedAt)
		entry := StuckEvent{
			UserID:         e.UserID,
			EventType:      e.EventType,
			AttemptedAt:    *e.SendingAttemptedAt,
			ElapsedMinutes: elapsed.Minutes(),
			Action:         ActionMonitoring,
		}

		if elapsed > config.StuckTimeoutMonitor {
			if err := m.store.MarkFailed(ctx, e.UserID, e.EventType, StuckPromotionReason, now); err != nil {
				log.Error("failed to promote stuck event",
					slog.String("user_id", e.UserID),
					slog.String("event_type", e.EventType),
					slog.String("error", err.Error()),
				)
			} else {
				entry.Action = ActionMarkedFailedForRetry
				log.Warn("stuck event promoted to failed",
					slog.String("user_id", e.UserID),
					slog.String("event_type", e.EventType),
					slog.Duration("elapsed", elapsed),
				)
			}
		}
		stuck = append(stuck, entry)
	}
	return stuck, nil
}

func classify(issues int) Status {
	switch {
	case issues == 0:
		return StatusHealthy
	case issues < 5:
		return StatusWarning
	default:
		return StatusCritical
	}
}

func (m *Monitor) observe(report Report) {
	if m.metrics == nil {
		return
	}
	m.metrics.HealthMissedEvents.Set(float64(report.MissedCount))
	m.metrics.HealthStuckEvents.Set(float64(report.StuckCount))
	switch report.Status {
	case StatusHealthy:
		m.metrics.HealthStatus.Set(0)
	case StatusWarning:
		m.metrics.HealthStatus.Set(1)
	case StatusCritical:
		m.metrics.HealthStatus.Set(2)
	}
}
