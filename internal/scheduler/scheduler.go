// Package scheduler implements the due-event sweep: a page-wise pass
// over the store's due index that enqueues one greeter message per due
// event. The scheduler never mutates event records; delivery idempotency is
// owned by the sender's claim protocol and the queue's dedup window.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/occasionhook/anniversary-notify/internal/clock"
	"github.com/occasionhook/anniversary-notify/internal/config"
	"github.com/occasionhook/anniversary-notify/internal/metrics"
	"github.com/occasionhook/anniversary-notify/internal/queue"
	"github.com/occasionhook/anniversary-notify/internal/store"
)

// DueReader is the slice of the store gateway a sweep depends on.
type DueReader interface {
	QueryDue(ctx context.Context, now time.Time, currentYear int, cursor string, limit int) (store.Page, error)
	GetUser(ctx context.Context, userID string) (*store.User, error)
}

// Enqueuer publishes greeter messages with a dedup key.
type Enqueuer interface {
	PublishGreeter(ctx context.Context, msg queue.GreeterMessage, dedupKey string) (*jetstream.PubAck, error)
}

// SweepStats summarizes one sweep invocation.
type SweepStats struct {
	Processed    int
	Enqueued     int
	Duplicates   int
	ItemFailures int
	Pages        int
}

// Scheduler runs one due-event sweep per Sweep call.
type Scheduler struct {
	store   DueReader
	enq     Enqueuer
	clock   clock.Clock
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New constructs a Scheduler. metrics may be nil in tests.
func New(st DueReader, enq Enqueuer, clk clock.Clock, log *slog.Logger, m *metrics.Metrics) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		store:   st,
		enq:     enq,
		clock:   clk,
		log:     log.With(slog.String("component", "scheduler")),
		metrics: m,
	}
}

// Sweep performs one full pass over the due-events index. nowUTC and
// currentYear are captured once at the top and held constant for the whole
// sweep. A page-read failure aborts the sweep (already-enqueued items are
// collapsed by the dedup key on the re-run); a per-item failure is counted
// and skipped.
func (s *Scheduler) Sweep(ctx context.Context) (SweepStats, error) {
	now := s.clock.Now()
	currentYear := now.Year()

	var stats SweepStats
	cursor := ""

	s.log.Info("sweep started",
		slog.Time("now", now),
		slog.Int("current_year", currentYear),
	)

	for {
		page, err := s.store.QueryDue(ctx, now, currentYear, cursor, config.SchedulerPageSize)
		if err != nil {
			s.observe(stats)
			return stats, fmt.Errorf("query due page: %w", err)
		}
		stats.Pages++

		for _, event := range page.Events {
			stats.Processed++
			if err := s.enqueueOne(ctx, event, currentYear, &stats); err != nil {
				stats.ItemFailures++
				s.log.Warn("due event skipped",
					slog.String("user_id", event.UserID),
					slog.String("event_type", event.EventType),
					slog.String("error", err.Error()),
				)
			}
		}

		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	s.observe(stats)
	s.log.Info("sweep completed",
		slog.Int("processed", stats.Processed),
		slog.Int("enqueued", stats.Enqueued),
		slog.Int("duplicates", stats.Duplicates),
		slog.Int("item_failures", stats.ItemFailures),
		slog.Int("pages", stats.Pages),
	)
	return stats, nil
}

func (s *Scheduler) enqueueOne(ctx context.Context, event *store.Event, currentYear int, stats *SweepStats) error {
	user, err := s.store.GetUser(ctx, event.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("owning user missing: %w", err)
		}
		return fmt.Errorf("load user: %w", err)
	}

	msg := queue.GreeterMessage{
		ID:              user.UserID,
		FirstName:       user.FirstName,
		LastName:        user.LastName,
		Timezone:        user.Timezone,
		PK:              "USER#" + user.UserID,
		SK:              "EVENT#" + event.EventType,
		EventType:       event.EventType,
		EventDate:       event.EventDate.Format("2006-01-02"),
		NotifyLocalTime: event.NotifyLocalTime,
		LastSentYear:    event.LastSentYear,
		YearNow:         currentYear,
	}
	dedupKey := DedupKey(user.UserID, event.EventType, currentYear)

	ack, err := s.enq.PublishGreeter(ctx, msg, dedupKey)
	if err != nil {
		return fmt.Errorf("enqueue greeter: %w", err)
	}

	if ack != nil && ack.Duplicate {
		stats.Duplicates++
		s.log.Debug("enqueue collapsed by dedup window",
			slog.String("dedup_key", dedupKey),
		)
		return nil
	}

	stats.Enqueued++
	return nil
}

// DedupKey renders the per-(event, year) deduplication key shared by the
// queue transport and the webhook's Idempotency-Key header.
func DedupKey(userID, eventType string, year int) string {
	return fmt.Sprintf("%s-%s-%d", userID, eventType, year)
}

func (s *Scheduler) observe(stats SweepStats) {
	if s.metrics == nil {
		return
	}
	s.metrics.SchedulerSweepsTotal.Inc()
	s.metrics.SchedulerEnqueuedTotal.Add(float64(stats.Enqueued))
	s.metrics.SchedulerEnqueueFailures.Add(float64(stats.ItemFailures))
	s.metrics.SchedulerPagesConsumed.Add(float64(stats.Pages))
}
