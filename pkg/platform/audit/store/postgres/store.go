package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "kycverify/pkg/platform/audit"
	txcontext "kycverify/pkg/platform/tx"
)

const aggregateVerification = "verification"

// Store implements audit.Store using the transactional outbox pattern.
// Events land in the outbox table, and the relay publishes them to Kafka.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON document published to Kafka.
type outboxPayload struct {
	ID             string            `json:"id"`
	Category       string            `json:"category"`
	Timestamp      string            `json:"timestamp"`
	Action         string            `json:"action"`
	ProjectID      string            `json:"project_id,omitempty"`
	VerificationID string            `json:"verification_id,omitempty"`
	Decision       string            `json:"decision,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	RequestID      string            `json:"request_id,omitempty"`
	Details        map[string]string `json:"details,omitempty"`
}

// Append writes an audit event to the outbox. It joins the caller's
// transaction when one is on ctx.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := event.ID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	payload := outboxPayload{
		ID:        eventID,
		Category:  string(event.Action.Category()),
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Action:    string(event.Action),
		Decision:  event.Decision,
		Reason:    event.Reason,
		RequestID: event.RequestID,
		Details:   event.Details,
	}
	if !event.ProjectID.IsNil() {
		payload.ProjectID = event.ProjectID.String()
	}
	aggregateType, aggregateID := "audit", eventID
	if !event.VerificationID.IsNil() {
		payload.VerificationID = event.VerificationID.String()
		aggregateType, aggregateID = aggregateVerification, event.VerificationID.String()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	const query = `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		aggregateType,
		aggregateID,
		string(event.Action),
		string(body),
		s.now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// Pending returns up to limit unpublished entries, oldest first. Rows are
// locked with SKIP LOCKED when called inside a transaction so concurrent
// relays never publish the same entry twice.
func (s *Store) Pending(ctx context.Context, limit int) ([]audit.OutboxEntry, error) {
	const query = `
		SELECT id, aggregate_type, aggregate_id, event_type, payload::text, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var entries []audit.OutboxEntry
	for rows.Next() {
		var (
			e       audit.OutboxEntry
			payload string
		)
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		e.Payload = []byte(payload)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

// MarkPublished stamps entries as relayed.
func (s *Store) MarkPublished(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `UPDATE outbox SET published_at = $2 WHERE id = ANY($1::uuid[])`
	if _, err := s.execer(ctx).ExecContext(ctx, query, pq.Array(ids), at); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

// InTx runs fn inside a transaction so Pending locks survive until MarkPublished.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return txcontext.Run(ctx, s.db, fn)
}
