package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the delivery state of one stored message.
type Status struct {
	ID          uuid.UUID
	Topic       string
	Attempts    int
	PublishedAt *time.Time
	LastError   *string
	OwnerID     *int
	// Dead is set once the message exhausted its attempts without being published.
	Dead bool
}

// Tracker reads delivery state for callers that poll on a message id.
type Tracker struct {
	db          *sql.DB
	maxAttempts int
}

func NewTracker(db *sql.DB, maxAttempts int) *Tracker {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Tracker{db: db, maxAttempts: maxAttempts}
}

// Lookup returns ErrNotFound for ids that were never enqueued or were
// removed by the cleaner.
func (t *Tracker) Lookup(ctx context.Context, id uuid.UUID) (*Status, error) {
	const q = `
		SELECT id, topic, attempts, published_at, last_error, owner_id
		  FROM outbox_messages
		 WHERE id = $1`
	var (
		st        Status
		published sql.NullTime
		lastErr   sql.NullString
		owner     sql.NullInt64
	)
	err := t.db.QueryRowContext(ctx, q, id).Scan(&st.ID, &st.Topic, &st.Attempts, &published, &lastErr, &owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("outbox lookup: %w", err)
	}
	if published.Valid {
		ts := published.Time
		st.PublishedAt = &ts
	}
	if lastErr.Valid {
		s := lastErr.String
		st.LastError = &s
	}
	if owner.Valid {
		o := int(owner.Int64)
		st.OwnerID = &o
	}
	st.Dead = st.PublishedAt == nil && st.Attempts >= t.maxAttempts
	return &st, nil
}
