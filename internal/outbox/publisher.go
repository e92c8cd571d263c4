package outbox

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Publisher interface {
	// Enqueue stores msg through tx and returns its id. The message becomes
	// visible to the relay only when tx commits.
	Enqueue(ctx context.Context, tx Execer, msg Message) (uuid.UUID, error)
}

type publisher struct {
	m *metrics
}

func NewPublisher() Publisher {
	return &publisher{m: getMetrics()}
}

func (p *publisher) Enqueue(ctx context.Context, tx Execer, msg Message) (uuid.UUID, error) {
	if msg.Topic == "" {
		return uuid.Nil, invalidConfig("topic is required")
	}
	if len(msg.Payload) == 0 {
		return uuid.Nil, invalidConfig("payload is required")
	}

	var owner sql.NullInt64
	if msg.OwnerID != 0 {
		owner = sql.NullInt64{Int64: int64(msg.OwnerID), Valid: true}
	}

	id := uuid.New()
	const q = `
		INSERT INTO outbox_messages (id, topic, payload, owner_id, available_at)
		VALUES ($1, $2, $3, $4, NOW())`
	if _, err := tx.ExecContext(ctx, q, id, msg.Topic, []byte(msg.Payload), owner); err != nil {
		return uuid.Nil, fmt.Errorf("outbox enqueue: %w", err)
	}

	p.m.enqueueTotal.WithLabelValues(msg.Topic).Inc()
	return id, nil
}
