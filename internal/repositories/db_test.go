package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

func TestTranslate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "no rows", err: sql.ErrNoRows, want: ErrNotFound},
		{name: "foreign key", err: &pq.Error{Code: "23503"}, want: ErrProtected},
		{name: "unique", err: &pq.Error{Code: "23505"}, want: ErrDuplicate},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := translate("thing op", tt.err)
			require.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "thing op")
		})
	}

	assert.NoError(t, translate("noop", nil))

	other := errors.New("boom")
	err := translate("thing op", other)
	require.ErrorIs(t, err, other)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestWhereBuilder(t *testing.T) {
	t.Parallel()

	w := &where{}
	assert.Equal(t, "", w.sql())

	w.and("a = " + w.bind(1))
	w.and("b = " + w.bind("x"))
	assert.Equal(t, " WHERE a = $1 AND b = $2", w.sql())
	assert.Equal(t, []any{1, "x"}, w.args)
	assert.Equal(t, "$3", w.bind(10))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := WithTx(context.Background(), db, func(tx *sql.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestWithTxCommits(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE x").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := WithTx(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), "UPDATE x SET y = 1")
		return err
	})
	require.NoError(t, err)
}
