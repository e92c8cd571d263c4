package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"ricauth/internal/middleware"
	"ricauth/internal/models"
	"ricauth/internal/repositories"
	"ricauth/internal/utils"
)

type AuthSettings struct {
	JWTSecret       []byte
	AccessLifetime  time.Duration
	RefreshLifetime time.Duration
	// PasswordHistory is how many previous passwords may not be reused.
	PasswordHistory int
}

type AuthService interface {
	HashPassword(password string) (string, error)
	// Login issues a token pair for username (or email) and counts the login.
	Login(ctx context.Context, username, password string) (*models.TokenPair, error)
	// Refresh rotates the refresh token and issues a new access token.
	Refresh(ctx context.Context, refresh string) (*models.TokenPair, error)
	ChangePassword(ctx context.Context, userID int, oldPassword, newPassword string) error
}

type authService struct {
	db       *sql.DB
	users    repositories.UserRepository
	history  repositories.PasswordHistoryRepository
	settings AuthSettings
	log      *logrus.Entry
	m        *serviceMetrics
}

func NewAuthService(db *sql.DB, users repositories.UserRepository, history repositories.PasswordHistoryRepository, settings AuthSettings, log *logrus.Entry) AuthService {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if settings.PasswordHistory <= 0 {
		settings.PasswordHistory = 5
	}
	return &authService{db: db, users: users, history: history, settings: settings, log: log, m: getMetrics()}
}

// HashPassword rejects passwords bcrypt cannot represent (over 72 bytes)
// as a validation error.
func (s *authService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", &ValidationError{Msg: "Ensure the password has no more than 72 bytes."}
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *authService) Login(ctx context.Context, username, password string) (*models.TokenPair, error) {
	start := time.Now()
	login := strings.TrimSpace(username)

	user, err := s.users.GetByLogin(ctx, login)
	if errors.Is(err, repositories.ErrNotFound) {
		s.log.WithField("login", login).Info("[auth][login] unknown user")
		s.m.logins.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive || user.PasswordHash == "" {
		s.log.WithField("user_id", user.ID).Info("[auth][login] inactive user or empty password hash")
		s.m.logins.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.log.WithField("user_id", user.ID).Info("[auth][login] password mismatch")
		s.m.logins.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidCredentials
	}

	pair, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}
	// only token issuance counts as a login, refresh does not
	if err := s.users.RecordLogin(ctx, user.ID); err != nil {
		return nil, err
	}

	s.m.logins.WithLabelValues("success").Inc()
	s.log.WithFields(logrus.Fields{
		"user_id": user.ID,
		"took":    time.Since(start).Truncate(time.Millisecond),
	}).Info("[auth][login] success")
	return pair, nil
}

// issue signs an access token and stores a fresh refresh token for user.
func (s *authService) issue(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	access, err := s.signAccess(user)
	if err != nil {
		return nil, err
	}
	rt, err := utils.NewRefreshToken(32)
	if err != nil {
		return nil, fmt.Errorf("new refresh token: %w", err)
	}
	if err := s.users.UpdateRefresh(ctx, user.ID, rt, time.Now().Add(s.settings.RefreshLifetime)); err != nil {
		return nil, err
	}
	return &models.TokenPair{Access: access, Refresh: rt}, nil
}

func (s *authService) signAccess(user *models.User) (string, error) {
	access, _, err := middleware.SignAccessToken(s.settings.JWTSecret, middleware.Claims{
		UserID:         user.ID,
		OrganizationID: user.OrganizationID,
		IsStaff:        user.IsStaff,
	}, s.settings.AccessLifetime)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return access, nil
}

func (s *authService) Refresh(ctx context.Context, refresh string) (*models.TokenPair, error) {
	old := strings.TrimSpace(refresh)
	if old == "" {
		return nil, ErrInvalidRefresh
	}
	newRT, err := utils.NewRefreshToken(32)
	if err != nil {
		return nil, fmt.Errorf("new refresh token: %w", err)
	}

	user, err := s.users.RotateRefresh(ctx, old, newRT, time.Now().Add(s.settings.RefreshLifetime))
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidRefresh
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInvalidRefresh
	}

	access, err := s.signAccess(user)
	if err != nil {
		return nil, err
	}
	s.log.WithField("user_id", user.ID).Debug("[auth][refresh] rotated refresh token")
	return &models.TokenPair{Access: access, Refresh: newRT}, nil
}

func (s *authService) ChangePassword(ctx context.Context, userID int, oldPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)) != nil {
		return ErrWrongPassword
	}

	recent, err := s.history.Recent(ctx, userID, s.settings.PasswordHistory)
	if err != nil {
		return err
	}
	for _, h := range append([]string{user.PasswordHash}, recent...) {
		if bcrypt.CompareHashAndPassword([]byte(h), []byte(newPassword)) == nil {
			return ErrPasswordReused
		}
	}

	hash, err := s.HashPassword(newPassword)
	if err != nil {
		return err
	}
	err = repositories.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.history.Add(ctx, tx, userID, user.PasswordHash); err != nil {
			return err
		}
		return s.users.UpdatePassword(ctx, tx, userID, hash)
	})
	if err != nil {
		return err
	}
	s.log.WithField("user_id", userID).Info("[auth][password] password changed")
	return nil
}
