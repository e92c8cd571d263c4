package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ricauth/internal/models"
	"ricauth/internal/outbox"
	"ricauth/internal/repositories"
	"ricauth/internal/utils"
)

// TopicEmailChangeVerification carries the verification mail of one request.
const TopicEmailChangeVerification = "email_change.verification"

const authCodeDigits = 4

type EmailChangeSettings struct {
	TTL          time.Duration
	AttemptLimit int
	FEBaseURL    string
}

type EmailChangeService interface {
	RequestChange(ctx context.Context, userID int, email string) (*models.EmailChangeCreated, error)
	VerifyChange(ctx context.Context, userID int, email, code, token string) error
	// ExpireStale terminates pending requests older than the TTL.
	ExpireStale(ctx context.Context) (int64, error)
	RunSweeper(ctx context.Context, interval time.Duration)
	// Dispatcher sends the verification mail for queued requests.
	Dispatcher() outbox.Dispatcher
}

type verificationPayload struct {
	EmailChangeID int64 `json:"email_change_id"`
}

type emailChangeService struct {
	db        *sql.DB
	changes   repositories.EmailChangeRepository
	users     repositories.UserRepository
	publisher outbox.Publisher
	mail      EmailService
	settings  EmailChangeSettings
	log       *logrus.Entry
	m         *serviceMetrics
	now       func() time.Time
}

func NewEmailChangeService(
	db *sql.DB,
	changes repositories.EmailChangeRepository,
	users repositories.UserRepository,
	publisher outbox.Publisher,
	mail EmailService,
	settings EmailChangeSettings,
	log *logrus.Entry,
) EmailChangeService {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &emailChangeService{
		db:        db,
		changes:   changes,
		users:     users,
		publisher: publisher,
		mail:      mail,
		settings:  settings,
		log:       log,
		m:         getMetrics(),
		now:       time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *emailChangeService) RequestChange(ctx context.Context, userID int, email string) (*models.EmailChangeCreated, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, &ValidationError{Msg: "This field may not be blank."}
	}

	taken, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}

	code, err := utils.NewNumericCode(authCodeDigits)
	if err != nil {
		return nil, fmt.Errorf("generate auth code: %w", err)
	}
	ec := &models.EmailChange{
		UserID:   userID,
		Email:    email,
		AuthCode: code,
		UUID:     uuid.NewString(),
	}

	var taskID uuid.UUID
	err = repositories.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.changes.Create(ctx, tx, ec); err != nil {
			return err
		}
		payload, err := json.Marshal(verificationPayload{EmailChangeID: ec.ID})
		if err != nil {
			return err
		}
		taskID, err = s.publisher.Enqueue(ctx, tx, outbox.Message{
			Topic:   TopicEmailChangeVerification,
			Payload: payload,
			OwnerID: userID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.m.emailChange.WithLabelValues(outcomeRequested).Inc()
	s.log.WithFields(logrus.Fields{
		"user_id":         userID,
		"email_change_id": ec.ID,
		"task_id":         taskID.String(),
	}).Info("[email_change][request] queued verification mail")

	return &models.EmailChangeCreated{EmailChange: ec, TaskID: taskID.String()}, nil
}

func (s *emailChangeService) VerifyChange(ctx context.Context, userID int, email, code, token string) error {
	email = normalizeEmail(email)
	ec, err := s.changes.GetActive(ctx, userID, email, strings.TrimSpace(token))
	if err != nil {
		return err
	}
	fields := logrus.Fields{"user_id": userID, "email_change_id": ec.ID}

	if subtle.ConstantTimeCompare([]byte(code), []byte(ec.AuthCode)) != 1 {
		status, attempts, err := s.changes.RegisterFailure(ctx, ec.ID, s.settings.AttemptLimit)
		if err != nil {
			return err
		}
		fields["fail_attempt"] = attempts
		if status == models.EmailChangeLockedOut {
			s.m.emailChange.WithLabelValues(outcomeLockedOut).Inc()
			s.log.WithFields(fields).Warn("[email_change][verify] attempt limit reached, request locked out")
			return ErrAttemptLimit
		}
		s.m.emailChange.WithLabelValues(outcomeInvalidCode).Inc()
		s.log.WithFields(fields).Info("[email_change][verify] invalid auth code")
		return ErrInvalidCode
	}

	err = repositories.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.changes.MarkVerified(ctx, tx, ec.ID); err != nil {
			return err
		}
		return s.users.UpdateEmail(ctx, tx, userID, ec.Email)
	})
	if errors.Is(err, repositories.ErrDuplicate) {
		return ErrEmailTaken
	}
	if err != nil {
		return err
	}

	s.m.emailChange.WithLabelValues(outcomeVerified).Inc()
	s.log.WithFields(fields).Info("[email_change][verify] email changed")
	return nil
}

func (s *emailChangeService) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.changes.ExpireOlderThan(ctx, s.now().Add(-s.settings.TTL))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.m.emailChange.WithLabelValues(outcomeExpired).Add(float64(n))
		s.log.WithField("expired", n).Info("[email_change][sweep] expired stale requests")
	}
	return n, nil
}

// RunSweeper calls ExpireStale every interval until ctx is done. Failures
// are logged and the loop keeps going.
func (s *emailChangeService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := s.ExpireStale(ctx); err != nil && ctx.Err() == nil {
			s.log.WithError(err).Error("[email_change][sweep] expire failed")
		}
	}
}

func (s *emailChangeService) Dispatcher() outbox.Dispatcher {
	return outbox.DispatcherFunc(s.dispatchVerification)
}

func (s *emailChangeService) dispatchVerification(ctx context.Context, msg outbox.DispatchedMessage) error {
	var p verificationPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return fmt.Errorf("decode %s payload: %w", TopicEmailChangeVerification, err)
	}
	fields := logrus.Fields{"email_change_id": p.EmailChangeID, "outbox_id": msg.Meta.ID.String()}

	ec, err := s.changes.GetByID(ctx, p.EmailChangeID)
	if errors.Is(err, repositories.ErrNotFound) {
		s.log.WithFields(fields).Warn("[email_change][dispatch] request no longer exists, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	if ec.Status.Terminal() {
		s.log.WithFields(fields).WithField("status", ec.Status).Info("[email_change][dispatch] request already terminal, skipping")
		return nil
	}

	if err := s.mail.SendEmailChangeVerification(ctx, ec.Email, s.verificationLink(ec.UUID), ec.AuthCode); err != nil {
		return err
	}
	s.log.WithFields(fields).Info("[email_change][dispatch] verification mail sent")
	return nil
}

func (s *emailChangeService) verificationLink(token string) string {
	return s.settings.FEBaseURL + "/my-page/identity-verification/?uuid=" + url.QueryEscape(token)
}
