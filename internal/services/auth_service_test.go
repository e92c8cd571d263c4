package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ricauth/internal/middleware"
	"ricauth/internal/models"
)

var testSecret = []byte("test-secret")

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func newAuthFixture(t *testing.T, txs int, users ...*models.User) (*authService, *fakeUserRepo, *fakeHistoryRepo) {
	t.Helper()
	repo := newFakeUserRepo(users...)
	history := &fakeHistoryRepo{}
	svc := NewAuthService(txDB(t, txs), repo, history, AuthSettings{
		JWTSecret:       testSecret,
		AccessLifetime:  5 * time.Minute,
		RefreshLifetime: 24 * time.Hour,
		PasswordHistory: 2,
	}, quietLog()).(*authService)
	return svc, repo, history
}

func TestLoginIssuesTokensAndCountsLogin(t *testing.T) {
	svc, repo, _ := newAuthFixture(t, 0, &models.User{
		ID: 7, Username: "alice", Email: "alice@x.com", OrganizationID: 3,
		IsActive: true, IsStaff: true, PasswordHash: hashed(t, "s3cret"),
	})

	pair, err := svc.Login(context.Background(), " alice ", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.Refresh)
	assert.Equal(t, 1, repo.logins[7])

	claims, err := middleware.ParseAccessToken(testSecret, pair.Access)
	require.NoError(t, err)
	assert.Equal(t, 7, claims.UserID)
	assert.Equal(t, 3, claims.OrganizationID)
	assert.True(t, claims.IsStaff)
}

func TestLoginAcceptsEmail(t *testing.T) {
	svc, _, _ := newAuthFixture(t, 0, &models.User{
		ID: 1, Username: "alice", Email: "alice@x.com", IsActive: true, PasswordHash: hashed(t, "pw"),
	})

	_, err := svc.Login(context.Background(), "Alice@X.com", "pw")
	require.NoError(t, err)
}

func TestLoginRejections(t *testing.T) {
	svc, repo, _ := newAuthFixture(t, 0,
		&models.User{ID: 1, Username: "alice", IsActive: true, PasswordHash: hashed(t, "pw")},
		&models.User{ID: 2, Username: "inactive", IsActive: false, PasswordHash: hashed(t, "pw")},
		&models.User{ID: 3, Username: "nopass", IsActive: true},
	)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"unknown user", "ghost", "pw"},
		{"wrong password", "alice", "nope"},
		{"inactive", "inactive", "pw"},
		{"empty hash", "nopass", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tt.username, tt.password)
			require.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
	assert.Empty(t, repo.logins)
}

func TestRefreshRotatesWithoutCountingLogin(t *testing.T) {
	svc, repo, _ := newAuthFixture(t, 0, &models.User{
		ID: 1, Username: "alice", IsActive: true, PasswordHash: hashed(t, "pw"),
	})
	ctx := context.Background()

	first, err := svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	second, err := svc.Refresh(ctx, first.Refresh)
	require.NoError(t, err)
	assert.NotEqual(t, first.Refresh, second.Refresh)
	assert.Equal(t, 1, repo.logins[1])

	// the rotated token is spent
	_, err = svc.Refresh(ctx, first.Refresh)
	require.ErrorIs(t, err, ErrInvalidRefresh)

	_, err = svc.Refresh(ctx, "  ")
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestRefreshRejectsInactiveUser(t *testing.T) {
	svc, repo, _ := newAuthFixture(t, 0, &models.User{ID: 1, Username: "alice", IsActive: true})
	repo.refresh["tok"] = 1
	repo.users[1].IsActive = false

	_, err := svc.Refresh(context.Background(), "tok")
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestChangePassword(t *testing.T) {
	svc, repo, history := newAuthFixture(t, 1, &models.User{
		ID: 1, Username: "alice", IsActive: true, PasswordHash: hashed(t, "first"),
	})
	history.hashes = map[int][]string{1: {hashed(t, "older")}}
	ctx := context.Background()

	require.ErrorIs(t, svc.ChangePassword(ctx, 1, "wrong", "second"), ErrWrongPassword)
	require.ErrorIs(t, svc.ChangePassword(ctx, 1, "first", "first"), ErrPasswordReused)
	require.ErrorIs(t, svc.ChangePassword(ctx, 1, "first", "older"), ErrPasswordReused)

	require.NoError(t, svc.ChangePassword(ctx, 1, "first", "second"))
	u, _ := repo.GetByID(ctx, 1)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("second")))
	assert.Len(t, history.hashes[1], 2)
}

func TestChangePasswordTooLong(t *testing.T) {
	svc, repo, history := newAuthFixture(t, 0, &models.User{
		ID: 1, Username: "alice", IsActive: true, PasswordHash: hashed(t, "first"),
	})
	before, _ := repo.GetByID(context.Background(), 1)

	err := svc.ChangePassword(context.Background(), 1, "first", strings.Repeat("a", 80))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	after, _ := repo.GetByID(context.Background(), 1)
	assert.Equal(t, before.PasswordHash, after.PasswordHash)
	assert.Empty(t, history.hashes[1])
}
