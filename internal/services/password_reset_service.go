package services

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"ricauth/internal/models"
	"ricauth/internal/repositories"
)

// PasswordResetService records anonymous reset requests for staff to answer.
type PasswordResetService interface {
	RequestReset(ctx context.Context, req models.CreatePasswordResetRequest) (*models.PasswordResetRequest, error)
	List(ctx context.Context, limit, offset int) ([]*models.PasswordResetRequest, int, error)
	Respond(ctx context.Context, caller Caller, requestID int, passwordReset bool) (*models.PasswordResetRequest, error)
}

type passwordResetService struct {
	repo repositories.PasswordResetRepository
	log  *logrus.Entry
}

func NewPasswordResetService(repo repositories.PasswordResetRepository, log *logrus.Entry) PasswordResetService {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &passwordResetService{repo: repo, log: log}
}

func (s *passwordResetService) RequestReset(ctx context.Context, req models.CreatePasswordResetRequest) (*models.PasswordResetRequest, error) {
	pr := &models.PasswordResetRequest{
		Name:     strings.TrimSpace(req.Name),
		Email:    normalizeEmail(req.Email),
		Birthday: req.Birthday,
		Message:  req.Message,
	}
	if err := s.repo.Create(ctx, pr); err != nil {
		return nil, err
	}
	// the address is not checked against users, so nothing leaks about accounts
	s.log.WithField("password_reset_request_id", pr.ID).Info("[password-reset] request recorded")
	return pr, nil
}

func (s *passwordResetService) List(ctx context.Context, limit, offset int) ([]*models.PasswordResetRequest, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *passwordResetService) Respond(ctx context.Context, caller Caller, requestID int, passwordReset bool) (*models.PasswordResetRequest, error) {
	if _, err := s.repo.GetByID(ctx, requestID); err != nil {
		return nil, err
	}
	by := caller.UserID
	resp := &models.PasswordResetResponse{RequestID: requestID, PasswordReset: passwordReset, CreatedBy: &by}
	if err := s.repo.Respond(ctx, resp); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"password_reset_request_id": requestID,
		"password_reset":            passwordReset,
		"responded_by":              caller.UserID,
	}).Info("[password-reset] response recorded")
	return s.repo.GetByID(ctx, requestID)
}
