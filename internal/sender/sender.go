// Package sender implements the per-message delivery state machine:
// claim → deliver → complete against the event store, with duplicate drops,
// stuck-state recovery, and explicit retriable-vs-terminal outcomes that the
// queue worker maps onto Ack/Nak/Term.
package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/occasionhook/anniversary-notify/internal/clock"
	"github.com/occasionhook/anniversary-notify/internal/config"
	"github.com/occasionhook/anniversary-notify/internal/metrics"
	"github.com/occasionhook/anniversary-notify/internal/obslog"
	"github.com/occasionhook/anniversary-notify/internal/queue"
	"github.com/occasionhook/anniversary-notify/internal/store"
	"github.com/occasionhook/anniversary-notify/internal/timeresolve"
	"github.com/occasionhook/anniversary-notify/internal/webhook"
)

// Decision is the processor's verdict on one message, mapped by the worker
// onto queue acknowledgement semantics.
type Decision int

const (
	// DecisionAck acknowledges the message: either delivery completed or the
	// message is an idempotent drop (duplicate, missing event, lost race).
	DecisionAck Decision = iota

	// DecisionRetry returns the message for redelivery; after the consumer's
	// delivery budget is exhausted the worker routes it to the DLQ.
	DecisionRetry

	// DecisionTerminate discards the message without redelivery: it can
	// never be processed (malformed payload).
	DecisionTerminate
)

func (d Decision) String() string {
	switch d {
	case DecisionAck:
		return "ack"
	case DecisionRetry:
		return "retry"
	case DecisionTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// EventStore is the slice of the store gateway the sender depends on.
type EventStore interface {
	GetEvent(ctx context.Context, userID, eventType string) (*store.Event, error)
	ClaimForYear(ctx context.Context, userID, eventType string, currentLastSentYear, currentYear int, newNotifyUTC, now time.Time) error
	MarkCompleted(ctx context.Context, userID, eventType string, responseCode int, now time.Time) error
	MarkFailed(ctx context.Context, userID, eventType, reason string, now time.Time) error
}

// Deliverer issues the single outbound webhook POST.
type Deliverer interface {
	Deliver(ctx context.Context, req webhook.Request) (webhook.Result, error)
}

// StuckReason is written when a sender retakes an event another worker
// abandoned mid-send.
const StuckReason = "Stuck in sending state - likely webhook timeout or crash"

// Processor runs the three-phase protocol for one greeter message at a time.
type Processor struct {
	store   EventStore
	webhook Deliverer
	clock   clock.Clock
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewProcessor constructs a Processor. metrics may be nil in tests.
func NewProcessor(st EventStore, wh Deliverer, clk clock.Clock, log *slog.Logger, m *metrics.Metrics) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		store:   st,
		webhook: wh,
		clock:   clk,
		log:     log.With(slog.String("component", "sender")),
		metrics: m,
	}
}

// Process runs the full decision tree for msg. The returned error is only
// populated for DecisionRetry and carries the retriable cause.
func (p *Processor) Process(ctx context.Context, msg queue.GreeterMessage) (Decision, error) {
	now := p.clock.Now()
	ctx = obslog.ContextWithScope(ctx, obslog.Scope{
		UserID:    msg.ID,
		EventType: msg.EventType,
		Year:      msg.YearNow,
	})
	log := obslog.For(ctx, p.log)

	event, err := p.store.GetEvent(ctx, msg.ID, msg.EventType)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Info("event missing, dropping message")
			p.count("dropped_missing")
			return DecisionAck, nil
		}
		return DecisionRetry, fmt.Errorf("load event: %w", err)
	}

	// Duplicate guard: both clauses are required. A failed Phase 3 leaves
	// last_sent_year advanced with status != completed, and that message
	// must still be allowed to re-claim.
	if event.LastSentYear >= msg.YearNow && event.SendingStatus == store.SendingStatusCompleted {
		log.Info("already completed for this year, dropping duplicate")
		p.count("dropped_duplicate")
		return DecisionAck, nil
	}

	if event.SendingStatus == store.SendingStatusSending && event.SendingAttemptedAt != nil {
		held := now.Sub(*event.SendingAttemptedAt)
		if held < config.StuckTimeoutSender {
			log.Info("another worker holds this event, dropping",
				slog.Duration("held_for", held),
			)
			p.count("dropped_in_flight")
			return DecisionAck, nil
		}

		log.Warn("event stuck in sending state, marking failed before retake",
			slog.Duration("held_for", held),
		)
		if err := p.store.MarkFailed(ctx, msg.ID, msg.EventType, StuckReason, now); err != nil {
			return DecisionRetry, fmt.Errorf("unstick event: %w", err)
		}
		if p.metrics != nil {
			p.metrics.SenderStuckRecovered.Inc()
		}
	}

	eventDate, err := time.Parse("2006-01-02", msg.EventDate)
	if err != nil {
		log.Error("malformed event date in message, terminating",
			slog.String("event_date", msg.EventDate),
			slog.String("error", err.Error()),
		)
		p.count("terminated_malformed")
		return DecisionTerminate, nil
	}

	// Phase 1: claim the event for year_now, advancing notify_utc to the
	// next occurrence in the same conditional write.
	nextNotify, err := timeresolve.NextNotifyUTC(eventDate, msg.Timezone, msg.NotifyLocalTime, now)
	if err != nil {
		log.Error("cannot resolve next notify instant, terminating",
			slog.String("error", err.Error()),
		)
		p.count("terminated_unresolvable")
		return DecisionTerminate, nil
	}

	claimStart := time.Now()
	err = p.store.ClaimForYear(ctx, msg.ID, msg.EventType, event.LastSentYear, msg.YearNow, nextNotify, now)
	p.observePhase("claim", claimStart)
	if err != nil {
		if errors.Is(err, store.ErrLostRace) {
			log.Info("claim lost race, dropping")
			p.count("dropped_lost_race")
			return DecisionAck, nil
		}
		return DecisionRetry, fmt.Errorf("claim for year %d: %w", msg.YearNow, err)
	}

	// Phase 2: exactly one POST per (event, year); the Idempotency-Key is
	// the receiver-side shield against redelivery races.
	deliverStart := time.Now()
	result, deliverErr := p.webhook.Deliver(ctx, webhook.Request{
		FirstName:      msg.FirstName,
		LastName:       msg.LastName,
		EventType:      msg.EventType,
		IdempotencyKey: fmt.Sprintf("%s-%s-%d", msg.ID, msg.EventType, msg.YearNow),
	})
	p.observePhase("deliver", deliverStart)
	if deliverErr != nil || !result.Success {
		reason := deliveryFailureReason(result, deliverErr)
		if markErr := p.store.MarkFailed(ctx, msg.ID, msg.EventType, reason, p.clock.Now()); markErr != nil {
			log.Error("mark failed after delivery failure",
				slog.String("error", markErr.Error()),
			)
		}
		p.count("delivery_failed")
		return DecisionRetry, fmt.Errorf("webhook delivery: %s", reason)
	}

	// Phase 3: the webhook already fired, so a store failure here must not
	// trigger a redelivery. The health monitor reconciles the stale record.
	completeStart := time.Now()
	if err := p.store.MarkCompleted(ctx, msg.ID, msg.EventType, result.StatusCode, p.clock.Now()); err != nil {
		log.Error("mark completed failed after successful delivery, monitor will reconcile",
			slog.String("error", err.Error()),
		)
		p.count("complete_lagged")
		p.observePhase("complete", completeStart)
		return DecisionAck, nil
	}
	p.observePhase("complete", completeStart)

	log.Info("delivery completed",
		slog.Int("status_code", result.StatusCode),
		slog.Time("next_notify_utc", nextNotify),
	)
	p.count("completed")
	return DecisionAck, nil
}

func deliveryFailureReason(result webhook.Result, err error) string {
	if err != nil {
		return fmt.Sprintf("webhook request failed: %v", err)
	}
	return fmt.Sprintf("webhook returned status %d", result.StatusCode)
}

func (p *Processor) count(outcome string) {
	if p.metrics != nil {
		p.metrics.SenderDeliveriesTotal.WithLabelValues(outcome).Inc()
	}
}

func (p *Processor) observePhase(phase string, start time.Time) {
	if p.metrics != nil {
		p.metrics.SenderPhaseDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
	}
}
