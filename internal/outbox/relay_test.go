package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRelay(t *testing.T, d Dispatcher, maxAttempts int) (*Relay, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	r, err := NewRelay(db, d, RelayOptions{
		MaxAttempts: maxAttempts,
		Rand:        rand.New(rand.NewSource(1)),
	})
	require.NoError(t, err)
	return r, mock
}

func expectClaim(mock sqlmock.Sqlmock, id uuid.UUID, topic string, attempts int) {
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "topic", "payload", "attempts"}).
			AddRow(id.String(), topic, `{"email_change_id":1}`, attempts))
	mock.ExpectExec(regexp.QuoteMeta("SET locked_at = $1, attempts = attempts + 1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func TestRelayAcksDispatchedMessage(t *testing.T) {
	id := uuid.New()
	var got DispatchedMessage
	r, mock := newRelay(t, DispatcherFunc(func(ctx context.Context, msg DispatchedMessage) error {
		got = msg
		return nil
	}), 3)

	expectClaim(mock, id, "email_change.verification", 0)
	mock.ExpectExec(regexp.QuoteMeta("SET published_at = NOW()")).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := r.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, id, got.Meta.ID)
	assert.Equal(t, 1, got.Meta.Attempts)
	assert.JSONEq(t, `{"email_change_id":1}`, string(got.Payload))
}

func TestRelayNacksFailedMessage(t *testing.T) {
	id := uuid.New()
	r, mock := newRelay(t, DispatcherFunc(func(ctx context.Context, msg DispatchedMessage) error {
		return errors.New("smtp down")
	}), 3)

	expectClaim(mock, id, "email_change.verification", 0)
	mock.ExpectExec(regexp.QuoteMeta("available_at = $3")).
		WithArgs(id, "smtp down", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := r.ProcessOnce(context.Background())
	require.NoError(t, err)
}

func TestRelayMarksDeadAfterMaxAttempts(t *testing.T) {
	id := uuid.New()
	r, mock := newRelay(t, DispatcherFunc(func(ctx context.Context, msg DispatchedMessage) error {
		return errors.New("smtp down")
	}), 3)

	expectClaim(mock, id, "email_change.verification", 2)
	mock.ExpectExec(regexp.QuoteMeta("available_at = NOW()")).
		WithArgs(id, "smtp down").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := r.ProcessOnce(context.Background())
	require.NoError(t, err)
}

func TestRelayEmptyBatch(t *testing.T) {
	r, mock := newRelay(t, NewMux(), 3)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM outbox_messages")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "topic", "payload", "attempts"}))
	mock.ExpectCommit()

	n, err := r.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMuxUnknownTopic(t *testing.T) {
	t.Parallel()

	m := NewMux()
	called := false
	m.Handle("known", DispatcherFunc(func(ctx context.Context, msg DispatchedMessage) error {
		called = true
		return nil
	}))

	err := m.Dispatch(context.Background(), DispatchedMessage{Meta: Meta{Topic: "other"}})
	require.ErrorIs(t, err, ErrUnknownTopic)
	assert.False(t, called)

	require.NoError(t, m.Dispatch(context.Background(), DispatchedMessage{Meta: Meta{Topic: "known"}}))
	assert.True(t, called)
}

func TestPublisherEnqueue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	payload := json.RawMessage(`{"email_change_id":4}`)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox_messages")).
		WithArgs(sqlmock.AnyArg(), "email_change.verification", []byte(payload), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := NewPublisher().Enqueue(context.Background(), db, Message{Topic: "email_change.verification", Payload: payload, OwnerID: 7})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox_messages")).
		WithArgs(sqlmock.AnyArg(), "email_change.verification", []byte(payload), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	_, err = NewPublisher().Enqueue(context.Background(), db, Message{Topic: "email_change.verification", Payload: payload})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = NewPublisher().Enqueue(context.Background(), db, Message{Payload: payload})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestTrackerLookup(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tr := NewTracker(db, 3)
	id := uuid.New()
	cols := []string{"id", "topic", "attempts", "published_at", "last_error", "owner_id"}

	mock.ExpectQuery(regexp.QuoteMeta("FROM outbox_messages")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(id.String(), "t", 3, nil, "smtp down", 5))
	st, err := tr.Lookup(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, st.Dead)
	require.NotNil(t, st.LastError)
	assert.Equal(t, "smtp down", *st.LastError)
	require.NotNil(t, st.OwnerID)
	assert.Equal(t, 5, *st.OwnerID)

	mock.ExpectQuery(regexp.QuoteMeta("FROM outbox_messages")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(cols))
	_, err = tr.Lookup(context.Background(), id)
	require.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
