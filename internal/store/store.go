// Package store implements the event store gateway over Postgres: typed
// operations on user and event records, including the conditional write
// that claims an event for a delivery year.
package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors returned by Store operations.
var (
	ErrNotFound = errors.New("record not found")
	ErrLostRace = errors.New("claim lost race: event already claimed for this year")
)

// SendingStatus is the closed set of lifecycle states an event record cycles
// through every calendar year.
type SendingStatus string

const (
	SendingStatusPending   SendingStatus = "pending"
	SendingStatusSending   SendingStatus = "sending"
	SendingStatusCompleted SendingStatus = "completed"
	SendingStatusFailed    SendingStatus = "failed"
)

// EventTypes is the closed enumeration of recognized event kinds, mirrored
// by the events table's check constraint.
var EventTypes = []string{"birthday", "anniversary", "custom"}

// User is one row of the users table.
type User struct {
	UserID    string
	FirstName string
	LastName  string
	Timezone  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Event is one row of the events table, keyed by (UserID, EventType).
type Event struct {
	UserID              string
	EventType           string
	EventDate           time.Time
	NotifyLocalTime     string
	NotifyUTC           time.Time
	LastSentYear        int
	SendingStatus       SendingStatus
	SendingAttemptedAt  *time.Time
	SendingCompletedAt  *time.Time
	MarkedFailedAt      *time.Time
	FailureReason       *string
	WebhookResponseCode *int
	WebhookDeliveredAt  *time.Time
	Label               *string
}

// Cursor is an opaque keyset-pagination token over (user_id, event_type).
type Cursor struct {
	UserID    string
	EventType string
}

// EncodeCursor renders c as an opaque string safe to hand back to callers.
func EncodeCursor(c Cursor) string {
	raw := c.UserID + "\x00" + c.EventType
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a cursor previously produced by EncodeCursor. An empty
// string decodes to the zero Cursor, meaning "start from the beginning".
func DecodeCursor(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, nil
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), "\x00", 2)
	if len(parts) != 2 {
		return Cursor{}, fmt.Errorf("malformed cursor")
	}
	return Cursor{UserID: parts[0], EventType: parts[1]}, nil
}

// Page is one page of QueryDue results plus the cursor to resume from.
type Page struct {
	Events     []*Event
	NextCursor string
	HasMore    bool
}

// Store is the event store gateway's full contract.
type Store interface {
	GetEvent(ctx context.Context, userID, eventType string) (*Event, error)
	GetUser(ctx context.Context, userID string) (*User, error)

	QueryDue(ctx context.Context, now time.Time, currentYear int, cursor string, limit int) (Page, error)
	QueryByNotifyRange(ctx context.Context, from, to time.Time) ([]*Event, error)
	QueryBySendingStatus(ctx context.Context, status SendingStatus) ([]*Event, error)

	ClaimForYear(ctx context.Context, userID, eventType string, currentLastSentYear, currentYear int, newNotifyUTC, now time.Time) error
	MarkCompleted(ctx context.Context, userID, eventType string, responseCode int, now time.Time) error
	MarkFailed(ctx context.Context, userID, eventType, reason string, now time.Time) error

	BatchUpsert(ctx context.Context, events []*Event) error
	BatchDelete(ctx context.Context, keys []Cursor) error
}

type pgStore struct {
	pool *pgxpool.Pool
}

// New returns a Store backed by pool.
func New(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) GetEvent(ctx context.Context, userID, eventType string) (*Event, error) {
	const query = `
		SELECT user_id, event_type, event_date, notify_local_time, notify_utc,
		       last_sent_year, sending_status, sending_attempted_at,
		       sending_completed_at, marked_failed_at, failure_reason,
		       webhook_response_code, webhook_delivered_at, label
		FROM events
		WHERE user_id = $1 AND event_type = $2`

	e := &Event{}
	err := s.pool.QueryRow(ctx, query, userID, eventType).Scan(
		&e.UserID, &e.EventType, &e.EventDate, &e.NotifyLocalTime, &e.NotifyUTC,
		&e.LastSentYear, &e.SendingStatus, &e.SendingAttemptedAt,
		&e.SendingCompletedAt, &e.MarkedFailedAt, &e.FailureReason,
		&e.WebhookResponseCode, &e.WebhookDeliveredAt, &e.Label,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (s *pgStore) GetUser(ctx context.Context, userID string) (*User, error) {
	const query = `
		SELECT user_id, first_name, last_name, timezone, created_at, updated_at
		FROM users
		WHERE user_id = $1`

	u := &User{}
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&u.UserID, &u.FirstName, &u.LastName, &u.Timezone, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *pgStore) QueryDue(ctx context.Context, now time.Time, currentYear int, cursorStr string, limit int) (Page, error) {
	cursor, err := DecodeCursor(cursorStr)
	if err != nil {
		return Page{}, fmt.Errorf("query due: %w", err)
	}
	if limit <= 0 {
		limit = 100
	}

	const query = `
		SELECT user_id, event_type, event_date, notify_local_time, notify_utc,
		       last_sent_year, sending_status, sending_attempted_at,
		       sending_completed_at, marked_failed_at, failure_reason,
		       webhook_response_code, webhook_delivered_at, label
		FROM events
		WHERE notify_utc <= $1
		  AND last_sent_year < $2
		  AND (user_id, event_type) > ($3, $4)
		ORDER BY user_id, event_type
		LIMIT $5`

	rows, err := s.pool.Query(ctx, query, now, currentYear, cursor.UserID, cursor.EventType, limit+1)
	if err != nil {
		return Page{}, fmt.Errorf("query due: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		if err := rows.Scan(
			&e.UserID, &e.EventType, &e.EventDate, &e.NotifyLocalTime, &e.NotifyUTC,
			&e.LastSentYear, &e.SendingStatus, &e.SendingAttemptedAt,
			&e.SendingCompletedAt, &e.MarkedFailedAt, &e.FailureReason,
			&e.WebhookResponseCode, &e.WebhookDeliveredAt, &e.Label,
		); err != nil {
			return Page{}, fmt.Errorf("query due: scan: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("query due: %w", err)
	}

	page := Page{Events: events}
	if len(events) > limit {
		last := events[limit-1]
		page.Events = events[:limit]
		page.NextCursor = EncodeCursor(Cursor{UserID: last.UserID, EventType: last.EventType})
		page.HasMore = true
	}
	return page, nil
}

func (s *pgStore) QueryByNotifyRange(ctx context.Context, from, to time.Time) ([]*Event, error) {
	const query = `
		SELECT user_id, event_type, event_date, notify_local_time, notify_utc,
		       last_sent_year, sending_status, sending_attempted_at,
		       sending_completed_at, marked_failed_at, failure_reason,
		       webhook_response_code, webhook_delivered_at, label
		FROM events
		WHERE notify_utc >= $1 AND notify_utc <= $2
		ORDER BY notify_utc`

	rows, err := s.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query by notify range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *pgStore) QueryBySendingStatus(ctx context.Context, status SendingStatus) ([]*Event, error) {
	const query = `
		SELECT user_id, event_type, event_date, notify_local_time, notify_utc,
		       last_sent_year, sending_status, sending_attempted_at,
		       sending_completed_at, marked_failed_at, failure_reason,
		       webhook_response_code, webhook_delivered_at, label
		FROM events
		WHERE sending_status = $1
		ORDER BY sending_attempted_at NULLS LAST`

	rows, err := s.pool.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("query by sending status: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e := &Event{}
		if err := rows.Scan(
			&e.UserID, &e.EventType, &e.EventDate, &e.NotifyLocalTime, &e.NotifyUTC,
			&e.LastSentYear, &e.SendingStatus, &e.SendingAttemptedAt,
			&e.SendingCompletedAt, &e.MarkedFailedAt, &e.FailureReason,
			&e.WebhookResponseCode, &e.WebhookDeliveredAt, &e.Label,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// ClaimForYear atomically transitions an event into sending_status=sending
// for currentYear, conditioned on the stored last_sent_year still matching
// currentLastSentYear and the stored status not already being sending or
// completed. Zero rows affected means another worker won the race.
func (s *pgStore) ClaimForYear(ctx context.Context, userID, eventType string, currentLastSentYear, currentYear int, newNotifyUTC, now time.Time) error {
	const query = `
		UPDATE events
		SET sending_status = 'sending',
		    sending_attempted_at = $5,
		    last_sent_year = $3,
		    notify_utc = $6
		WHERE user_id = $1
		  AND event_type = $2
		  AND last_sent_year = $4
		  AND sending_status IS DISTINCT FROM 'sending'
		  AND sending_status IS DISTINCT FROM 'completed'`

	result, err := s.pool.Exec(ctx, query, userID, eventType, currentYear, currentLastSentYear, now, newNotifyUTC)
	if err != nil {
		return fmt.Errorf("claim for year: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrLostRace
	}
	return nil
}

func (s *pgStore) MarkCompleted(ctx context.Context, userID, eventType string, responseCode int, now time.Time) error {
	const query = `
		UPDATE events
		SET sending_status = 'completed',
		    sending_completed_at = $3,
		    webhook_response_code = $4,
		    webhook_delivered_at = $3
		WHERE user_id = $1 AND event_type = $2`

	result, err := s.pool.Exec(ctx, query, userID, eventType, now, responseCode)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) MarkFailed(ctx context.Context, userID, eventType, reason string, now time.Time) error {
	const query = `
		UPDATE events
		SET sending_status = 'failed',
		    marked_failed_at = $3,
		    failure_reason = $4
		WHERE user_id = $1 AND event_type = $2`

	result, err := s.pool.Exec(ctx, query, userID, eventType, now, reason)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BatchUpsert writes a set of event records in one round trip, inserting new
// rows and overwriting the schedule-owned columns of existing ones.
func (s *pgStore) BatchUpsert(ctx context.Context, events []*Event) error {
	if len(events) == 0 {
		return nil
	}

	const query = `
		INSERT INTO events (user_id, event_type, event_date, notify_local_time,
		                    notify_utc, last_sent_year, sending_status, label)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, event_type) DO UPDATE
		SET event_date = EXCLUDED.event_date,
		    notify_local_time = EXCLUDED.notify_local_time,
		    notify_utc = EXCLUDED.notify_utc,
		    label = EXCLUDED.label`

	batch := &pgx.Batch{}
	for _, e := range events {
		status := e.SendingStatus
		if status == "" {
			status = SendingStatusPending
		}
		batch.Queue(query, e.UserID, e.EventType, e.EventDate, e.NotifyLocalTime,
			e.NotifyUTC, e.LastSentYear, status, e.Label)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range events {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch upsert: %w", err)
		}
	}
	return nil
}

func (s *pgStore) BatchDelete(ctx context.Context, keys []Cursor) error {
	if len(keys) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, k := range keys {
		batch.Queue(`DELETE FROM events WHERE user_id = $1 AND event_type = $2`, k.UserID, k.EventType)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range keys {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch delete: %w", err)
		}
	}
	return nil
}
