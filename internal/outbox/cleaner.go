package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Cleaner removes published messages, and dead ones, once they are older
// than the retention. A pruned id reads as unknown to the Tracker.
type Cleaner struct {
	db   *sql.DB
	opts CleanerOptions
	m    *metrics
}

func NewCleaner(db *sql.DB, opts CleanerOptions) (*Cleaner, error) {
	if db == nil {
		return nil, invalidConfig("db is required")
	}
	opts.setDefaults()
	return &Cleaner{db: db, opts: opts, m: getMetrics()}, nil
}

func (c *Cleaner) Run(ctx context.Context) error {
	if !c.opts.Enabled {
		return nil
	}

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if _, err := c.CleanOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			c.opts.Logger.WithError(err).Warn("[outbox][cleaner] tick failed")
		}
	}
}

func (c *Cleaner) CleanOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-c.opts.Retention)
	const q = `
		DELETE FROM outbox_messages
		 WHERE (published_at IS NOT NULL AND published_at < $1)
		    OR (published_at IS NULL AND attempts >= $2 AND available_at < $1)`
	res, err := c.db.ExecContext(ctx, q, cutoff, c.opts.MaxAttempts)
	if err != nil {
		return 0, fmt.Errorf("outbox cleaner delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("outbox cleaner rows affected: %w", err)
	}
	if n > 0 {
		c.m.cleaned.Add(float64(n))
		c.opts.Logger.WithField("deleted", n).Debug("[outbox][cleaner] removed finished messages")
	}
	return n, nil
}
