package outbox

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCleaner(t *testing.T, retention time.Duration) (*Cleaner, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	c, err := NewCleaner(db, CleanerOptions{Enabled: true, Retention: retention, MaxAttempts: 3})
	require.NoError(t, err)
	return c, mock
}

// olderThan matches a cutoff at least d in the past.
type olderThan time.Duration

func (d olderThan) Match(v driver.Value) bool {
	ts, ok := v.(time.Time)
	return ok && time.Since(ts) >= time.Duration(d)
}

func TestCleanOncePrunesPublishedAndDeadRows(t *testing.T) {
	c, mock := newCleaner(t, time.Hour)

	mock.ExpectExec(regexp.QuoteMeta("OR (published_at IS NULL AND attempts >= $2 AND available_at < $1)")).
		WithArgs(olderThan(time.Hour), 3).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := c.CleanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestCleanOnceWrapsErrors(t *testing.T) {
	c, mock := newCleaner(t, time.Hour)
	mock.ExpectExec("DELETE FROM outbox_messages").WillReturnError(errors.New("boom"))

	_, err := c.CleanOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outbox cleaner delete")
}

func TestCleanerDefaults(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c, err := NewCleaner(db, CleanerOptions{})
	require.NoError(t, err)
	assert.Equal(t, 10, c.opts.MaxAttempts)
	assert.Equal(t, 7*24*time.Hour, c.opts.Retention)

	_, err = NewCleaner(nil, CleanerOptions{})
	require.Error(t, err)
}
