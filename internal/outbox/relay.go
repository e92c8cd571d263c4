package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// session is satisfied by *sql.DB and by a dedicated *sql.Conn.
type session interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Relay struct {
	db         *sql.DB
	dispatcher Dispatcher
	opts       RelayOptions

	lockKey int64

	m *metrics
}

func NewRelay(db *sql.DB, dispatcher Dispatcher, opts RelayOptions) (*Relay, error) {
	if db == nil {
		return nil, invalidConfig("db is required")
	}
	if dispatcher == nil {
		return nil, invalidConfig("dispatcher is required")
	}
	opts.setDefaults()

	return &Relay{
		db:         db,
		dispatcher: dispatcher,
		opts:       opts,
		m:          getMetrics(),
		lockKey:    advisoryLockKey("outbox:outbox_messages"),
	}, nil
}

// Run polls until ctx is done. Tick failures are logged and never stop the loop.
func (r *Relay) Run(ctx context.Context) error {
	if r.opts.SingleActive {
		return r.runSingleActive(ctx)
	}
	r.m.relayLeader.Set(1)
	return r.runLoop(ctx, r.db)
}

func (r *Relay) runSingleActive(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, err := r.db.Conn(ctx)
		if err != nil {
			r.opts.Logger.WithError(err).Warn("[outbox][relay] failed to acquire connection for single-active relay")
			if err := r.wait(ctx); err != nil {
				return err
			}
			continue
		}

		leader, err := r.tryAcquireLeader(ctx, conn)
		if err != nil || !leader {
			if err != nil {
				r.opts.Logger.WithError(err).Warn("[outbox][relay] failed to attempt advisory lock")
			}
			r.m.relayLeader.Set(0)
			_ = conn.Close()
			if err := r.wait(ctx); err != nil {
				return err
			}
			continue
		}

		r.m.relayLeader.Set(1)
		r.opts.Logger.Info("[outbox][relay] relay became leader")

		err = r.runLoop(ctx, conn)
		_ = r.releaseLeader(context.Background(), conn)
		_ = conn.Close()
		r.m.relayLeader.Set(0)
		return err
	}
}

func (r *Relay) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(r.opts.PollInterval):
		return nil
	}
}

func (r *Relay) runLoop(ctx context.Context, s session) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	nextDepthAt := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if time.Now().After(nextDepthAt) {
			if err := r.observeQueueDepth(ctx, s); err != nil {
				r.opts.Logger.WithError(err).Debug("[outbox][relay] observe queue depth failed")
			}
			nextDepthAt = time.Now().Add(r.opts.ObserveQueueDepthEvery)
		}

		if _, err := r.processOnce(ctx, s); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.opts.Logger.WithError(err).Warn("[outbox][relay] process tick failed")
		}
	}
}

type claimed struct {
	ID       uuid.UUID
	Topic    string
	Payload  []byte
	Attempts int
}

// ProcessOnce claims and dispatches one batch using the shared pool and
// returns how many messages were handled.
func (r *Relay) ProcessOnce(ctx context.Context) (int, error) {
	return r.processOnce(ctx, r.db)
}

func (r *Relay) processOnce(ctx context.Context, s session) (int, error) {
	now := time.Now()
	cutoff := now.Add(-r.opts.LockTTL)

	items, err := r.claim(ctx, s, now, cutoff)
	if err != nil {
		return 0, err
	}

	for _, c := range items {
		dispatchCtx := ctx
		var cancel context.CancelFunc
		if r.opts.DispatchTimeout > 0 {
			dispatchCtx, cancel = context.WithTimeout(ctx, r.opts.DispatchTimeout)
		}

		start := time.Now()
		err := r.dispatcher.Dispatch(dispatchCtx, DispatchedMessage{
			Meta:    Meta{ID: c.ID, Topic: c.Topic, Attempts: c.Attempts},
			Payload: c.Payload,
		})
		if cancel != nil {
			cancel()
		}

		latency := time.Since(start)
		if err == nil {
			r.recordDispatch(c.Topic, "success", latency)
			if ackErr := r.ack(ctx, s, c.ID); ackErr != nil {
				r.opts.Logger.WithError(ackErr).WithFields(logFields(c)).Warn("[outbox][relay] ack failed")
			}
			continue
		}

		r.recordDispatch(c.Topic, "failure", latency)
		lastErr := truncateError(err, r.opts.LastErrorMaxLen)

		if c.Attempts >= r.opts.MaxAttempts {
			r.m.deadTotal.WithLabelValues(c.Topic).Inc()
			r.opts.Logger.WithError(err).WithFields(logFields(c)).Error("[outbox][relay] message exhausted its attempts")
			if deadErr := r.dead(ctx, s, c.ID, lastErr); deadErr != nil {
				r.opts.Logger.WithError(deadErr).WithFields(logFields(c)).Warn("[outbox][relay] dead update failed")
			}
			continue
		}

		r.opts.Logger.WithError(err).WithFields(logFields(c)).Info("[outbox][relay] dispatch failed, will retry")
		next := time.Now().Add(backoff(c.Attempts, r.opts.MaxBackoff) + jitter(r.opts.Rand, r.opts.JitterMax))
		if nackErr := r.nack(ctx, s, c.ID, lastErr, next); nackErr != nil {
			r.opts.Logger.WithError(nackErr).WithFields(logFields(c)).Warn("[outbox][relay] nack failed")
		}
	}

	return len(items), nil
}

func (r *Relay) claim(ctx context.Context, s session, now, lockCutoff time.Time) ([]claimed, error) {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("outbox claim begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
		SELECT id, topic, payload, attempts
		  FROM outbox_messages
		 WHERE published_at IS NULL
		   AND available_at <= $1
		   AND attempts < $2
		   AND (locked_at IS NULL OR locked_at < $3)
		 ORDER BY available_at, created_at
		 LIMIT $4
		 FOR UPDATE SKIP LOCKED`
	rows, err := tx.QueryContext(ctx, q, now, r.opts.MaxAttempts, lockCutoff, r.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("outbox claim select: %w", err)
	}

	var (
		items []claimed
		ids   []string
	)
	for rows.Next() {
		var c claimed
		if err := rows.Scan(&c.ID, &c.Topic, &c.Payload, &c.Attempts); err != nil {
			rows.Close()
			return nil, fmt.Errorf("outbox claim scan: %w", err)
		}
		c.Attempts++
		items = append(items, c)
		ids = append(ids, c.ID.String())
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox claim rows: %w", err)
	}
	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	const update = `UPDATE outbox_messages SET locked_at = $1, attempts = attempts + 1 WHERE id = ANY($2::uuid[])`
	if _, err := tx.ExecContext(ctx, update, now, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("outbox claim update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("outbox claim commit: %w", err)
	}
	return items, nil
}

func (r *Relay) ack(ctx context.Context, s session, id uuid.UUID) error {
	const q = `
		UPDATE outbox_messages
		   SET published_at = NOW(),
		       locked_at = NULL,
		       last_error = NULL
		 WHERE id = $1 AND published_at IS NULL`
	if _, err := s.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("outbox ack: %w", err)
	}
	return nil
}

func (r *Relay) nack(ctx context.Context, s session, id uuid.UUID, lastError string, nextAvailable time.Time) error {
	const q = `
		UPDATE outbox_messages
		   SET locked_at = NULL,
		       last_error = $2,
		       available_at = $3
		 WHERE id = $1 AND published_at IS NULL`
	if _, err := s.ExecContext(ctx, q, id, lastError, nextAvailable); err != nil {
		return fmt.Errorf("outbox nack: %w", err)
	}
	return nil
}

// dead leaves the row unpublished with attempts at the limit, which keeps it
// out of future claims.
func (r *Relay) dead(ctx context.Context, s session, id uuid.UUID, lastError string) error {
	const q = `
		UPDATE outbox_messages
		   SET locked_at = NULL,
		       last_error = $2,
		       available_at = NOW()
		 WHERE id = $1 AND published_at IS NULL`
	if _, err := s.ExecContext(ctx, q, id, lastError); err != nil {
		return fmt.Errorf("outbox dead: %w", err)
	}
	return nil
}

func (r *Relay) observeQueueDepth(ctx context.Context, s session) error {
	const q = `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE locked_at IS NOT NULL)
		  FROM outbox_messages
		 WHERE published_at IS NULL AND attempts < $1`
	var pending, locked int64
	if err := s.QueryRowContext(ctx, q, r.opts.MaxAttempts).Scan(&pending, &locked); err != nil {
		return fmt.Errorf("outbox queue depth: %w", err)
	}
	r.m.pending.Set(float64(pending))
	r.m.locked.Set(float64(locked))
	return nil
}

func (r *Relay) recordDispatch(topic, result string, latency time.Duration) {
	r.m.dispatchTotal.WithLabelValues(topic, result).Inc()
	r.m.dispatchLatency.WithLabelValues(topic, result).Observe(latency.Seconds())
}

func (r *Relay) tryAcquireLeader(ctx context.Context, conn *sql.Conn) (bool, error) {
	var ok bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1::bigint)`, r.lockKey).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (r *Relay) releaseLeader(ctx context.Context, conn *sql.Conn) error {
	var ok bool
	return conn.QueryRowContext(ctx, `SELECT pg_advisory_unlock($1::bigint)`, r.lockKey).Scan(&ok)
}

func advisoryLockKey(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}

func logFields(c claimed) logrus.Fields {
	return logrus.Fields{
		"outbox_id": c.ID.String(),
		"topic":     c.Topic,
		"attempts":  c.Attempts,
	}
}
