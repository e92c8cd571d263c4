package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ricauth/internal/models"
	"ricauth/internal/outbox"
	"ricauth/internal/repositories"
)

type emailChangeFixture struct {
	svc     *emailChangeService
	changes *fakeEmailChangeRepo
	users   *fakeUserRepo
	pub     *fakePublisher
	mail    *fakeMailer
}

func newEmailChangeFixture(t *testing.T, txs int, limit int) *emailChangeFixture {
	t.Helper()
	f := &emailChangeFixture{
		changes: newFakeEmailChangeRepo(),
		users: newFakeUserRepo(
			&models.User{ID: 1, Username: "alice", Email: "old@x.com", IsActive: true},
			&models.User{ID: 2, Username: "bob", Email: "bob@x.com", IsActive: true},
		),
		pub:  &fakePublisher{},
		mail: &fakeMailer{},
	}
	f.svc = NewEmailChangeService(txDB(t, txs), f.changes, f.users, f.pub, f.mail, EmailChangeSettings{
		TTL:          30 * time.Minute,
		AttemptLimit: limit,
		FEBaseURL:    "https://app.example.com",
	}, quietLog()).(*emailChangeService)
	return f
}

func TestRequestChangeRejectsTakenEmail(t *testing.T) {
	f := newEmailChangeFixture(t, 0, 5)

	_, err := f.svc.RequestChange(context.Background(), 1, " Bob@X.com ")
	require.ErrorIs(t, err, ErrEmailTaken)
	assert.Empty(t, f.pub.messages)
	assert.Empty(t, f.changes.records)
}

func TestRequestChangePersistsAndQueues(t *testing.T) {
	f := newEmailChangeFixture(t, 1, 5)

	created, err := f.svc.RequestChange(context.Background(), 1, "New@X.com")
	require.NoError(t, err)

	assert.Equal(t, "new@x.com", created.Email)
	assert.Len(t, created.AuthCode, authCodeDigits)
	_, err = uuid.Parse(created.UUID)
	require.NoError(t, err)
	_, err = uuid.Parse(created.TaskID)
	require.NoError(t, err)

	stored, err := f.changes.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EmailChangePending, stored.Status)

	require.Len(t, f.pub.messages, 1)
	assert.Equal(t, TopicEmailChangeVerification, f.pub.messages[0].Topic)
	assert.Equal(t, 1, f.pub.messages[0].OwnerID)
	var p verificationPayload
	require.NoError(t, json.Unmarshal(f.pub.messages[0].Payload, &p))
	assert.Equal(t, created.ID, p.EmailChangeID)

	// nothing is sent inline
	assert.Empty(t, f.mail.sent)
}

func TestRequestChangeQueueFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	f := newEmailChangeFixture(t, 0, 5)
	f.svc.db = db
	f.pub.err = errors.New("insert failed")

	_, err = f.svc.RequestChange(context.Background(), 1, "new@x.com")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyChangeLocksOutAfterLimit(t *testing.T) {
	f := newEmailChangeFixture(t, 1, 4)
	ctx := context.Background()

	created, err := f.svc.RequestChange(ctx, 1, "new@x.com")
	require.NoError(t, err)
	wrong := "x" + created.AuthCode

	for i := 0; i < 3; i++ {
		err := f.svc.VerifyChange(ctx, 1, "new@x.com", wrong, created.UUID)
		require.ErrorIs(t, err, ErrInvalidCode, "attempt %d", i+1)
		stored, _ := f.changes.GetByID(ctx, created.ID)
		assert.Equal(t, models.EmailChangePending, stored.Status)
	}

	err = f.svc.VerifyChange(ctx, 1, "new@x.com", wrong, created.UUID)
	require.ErrorIs(t, err, ErrAttemptLimit)

	stored, _ := f.changes.GetByID(ctx, created.ID)
	assert.Equal(t, models.EmailChangeLockedOut, stored.Status)
	assert.True(t, stored.IsDeleted)

	// terminal records are invisible, even with the right code
	err = f.svc.VerifyChange(ctx, 1, "new@x.com", created.AuthCode, created.UUID)
	require.ErrorIs(t, err, repositories.ErrNotFound)

	u, _ := f.users.GetByID(ctx, 1)
	assert.Equal(t, "old@x.com", u.Email)
}

func TestVerifyChangeSucceedsOnce(t *testing.T) {
	f := newEmailChangeFixture(t, 2, 5)
	ctx := context.Background()

	created, err := f.svc.RequestChange(ctx, 1, "new@x.com")
	require.NoError(t, err)

	require.NoError(t, f.svc.VerifyChange(ctx, 1, "new@x.com", created.AuthCode, created.UUID))

	u, _ := f.users.GetByID(ctx, 1)
	assert.Equal(t, "new@x.com", u.Email)
	stored, _ := f.changes.GetByID(ctx, created.ID)
	assert.Equal(t, models.EmailChangeVerified, stored.Status)

	err = f.svc.VerifyChange(ctx, 1, "new@x.com", created.AuthCode, created.UUID)
	require.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestVerifyChangeWrongOwnerIsNotFound(t *testing.T) {
	f := newEmailChangeFixture(t, 1, 5)
	ctx := context.Background()

	created, err := f.svc.RequestChange(ctx, 1, "new@x.com")
	require.NoError(t, err)

	err = f.svc.VerifyChange(ctx, 2, "new@x.com", created.AuthCode, created.UUID)
	require.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestVerifyChangeLateEmailCollision(t *testing.T) {
	f := newEmailChangeFixture(t, 1, 5)
	ctx := context.Background()

	created, err := f.svc.RequestChange(ctx, 1, "new@x.com")
	require.NoError(t, err)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()
	f.svc.db = db
	f.users.updErr = repositories.ErrDuplicate

	err = f.svc.VerifyChange(ctx, 1, "new@x.com", created.AuthCode, created.UUID)
	require.ErrorIs(t, err, ErrEmailTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireStale(t *testing.T) {
	f := newEmailChangeFixture(t, 2, 5)
	ctx := context.Background()

	old, err := f.svc.RequestChange(ctx, 1, "a@x.com")
	require.NoError(t, err)
	fresh, err := f.svc.RequestChange(ctx, 1, "b@x.com")
	require.NoError(t, err)
	f.changes.records[old.ID].CreatedAt = time.Now().Add(-time.Hour)

	n, err := f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stored, _ := f.changes.GetByID(ctx, old.ID)
	assert.Equal(t, models.EmailChangeExpired, stored.Status)
	stored, _ = f.changes.GetByID(ctx, fresh.ID)
	assert.Equal(t, models.EmailChangePending, stored.Status)

	err = f.svc.VerifyChange(ctx, 1, "a@x.com", old.AuthCode, old.UUID)
	require.ErrorIs(t, err, repositories.ErrNotFound)

	// a second sweep finds nothing left to expire
	n, err = f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	stored, _ = f.changes.GetByID(ctx, old.ID)
	assert.Equal(t, models.EmailChangeExpired, stored.Status)
	stored, _ = f.changes.GetByID(ctx, fresh.ID)
	assert.Equal(t, models.EmailChangePending, stored.Status)
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	f := newEmailChangeFixture(t, 0, 5)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.svc.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestRunSweeperLogsFailuresAndContinues(t *testing.T) {
	f := newEmailChangeFixture(t, 0, 5)
	logger, hook := test.NewNullLogger()
	f.svc.log = logrus.NewEntry(logger)
	f.changes.expireErr = errors.New("connection refused")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return f.changes.expireCallCount() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	var failures int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "[email_change][sweep] expire failed" {
			failures++
			assert.EqualError(t, e.Data[logrus.ErrorKey].(error), "connection refused")
		}
	}
	assert.GreaterOrEqual(t, failures, 2)
}

func dispatchMsg(t *testing.T, id int64) outbox.DispatchedMessage {
	t.Helper()
	payload, err := json.Marshal(verificationPayload{EmailChangeID: id})
	require.NoError(t, err)
	return outbox.DispatchedMessage{
		Meta:    outbox.Meta{ID: uuid.New(), Topic: TopicEmailChangeVerification, Attempts: 1},
		Payload: payload,
	}
}

func TestDispatcherSendsPendingRequest(t *testing.T) {
	f := newEmailChangeFixture(t, 1, 5)
	ctx := context.Background()

	created, err := f.svc.RequestChange(ctx, 1, "new@x.com")
	require.NoError(t, err)

	require.NoError(t, f.svc.Dispatcher().Dispatch(ctx, dispatchMsg(t, created.ID)))
	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, "new@x.com", f.mail.sent[0].To)
	assert.Equal(t, created.AuthCode, f.mail.sent[0].Code)
	assert.Equal(t, "https://app.example.com/my-page/identity-verification/?uuid="+created.UUID, f.mail.sent[0].Link)
}

func TestDispatcherSkipsTerminalRequest(t *testing.T) {
	f := newEmailChangeFixture(t, 2, 5)
	ctx := context.Background()

	created, err := f.svc.RequestChange(ctx, 1, "new@x.com")
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifyChange(ctx, 1, "new@x.com", created.AuthCode, created.UUID))

	require.NoError(t, f.svc.Dispatcher().Dispatch(ctx, dispatchMsg(t, created.ID)))
	assert.Empty(t, f.mail.sent)

	// vanished records are acknowledged too
	require.NoError(t, f.svc.Dispatcher().Dispatch(ctx, dispatchMsg(t, 999)))
}

func TestDispatcherReturnsSendFailure(t *testing.T) {
	f := newEmailChangeFixture(t, 1, 5)
	ctx := context.Background()

	created, err := f.svc.RequestChange(ctx, 1, "new@x.com")
	require.NoError(t, err)
	f.mail.err = errors.New("smtp down")

	err = f.svc.Dispatcher().Dispatch(ctx, dispatchMsg(t, created.ID))
	require.Error(t, err)
}
