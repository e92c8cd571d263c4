package services

import (
	"context"
	"strings"

	"ricauth/internal/models"
	"ricauth/internal/repositories"
)

type PasswordReminderService interface {
	Questions(ctx context.Context, caller Caller) ([]*models.PasswordReminderQuestion, error)
	List(ctx context.Context, caller Caller, limit, offset int) ([]*models.PasswordReminder, int, error)
	Get(ctx context.Context, caller Caller, id int) (*models.PasswordReminder, error)
	Create(ctx context.Context, caller Caller, req models.PasswordReminderRequest) (*models.PasswordReminder, error)
	Update(ctx context.Context, caller Caller, id int, req models.PasswordReminderPatch) (*models.PasswordReminder, error)
	Delete(ctx context.Context, caller Caller, id int) error
}

type passwordReminderService struct {
	repo repositories.PasswordReminderRepository
}

func NewPasswordReminderService(repo repositories.PasswordReminderRepository) PasswordReminderService {
	return &passwordReminderService{repo: repo}
}

func (s *passwordReminderService) Questions(ctx context.Context, caller Caller) ([]*models.PasswordReminderQuestion, error) {
	return s.repo.Questions(ctx, caller.OrganizationID)
}

func (s *passwordReminderService) List(ctx context.Context, caller Caller, limit, offset int) ([]*models.PasswordReminder, int, error) {
	return s.repo.List(ctx, caller.UserID, limit, offset)
}

func (s *passwordReminderService) Get(ctx context.Context, caller Caller, id int) (*models.PasswordReminder, error) {
	return s.repo.Get(ctx, caller.UserID, id)
}

func (s *passwordReminderService) checkQuestion(ctx context.Context, caller Caller, questionID int) error {
	ok, err := s.repo.QuestionVisible(ctx, questionID, caller.OrganizationID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrQuestionNotVisible
	}
	return nil
}

func (s *passwordReminderService) Create(ctx context.Context, caller Caller, req models.PasswordReminderRequest) (*models.PasswordReminder, error) {
	if err := s.checkQuestion(ctx, caller, req.QuestionID); err != nil {
		return nil, err
	}
	rem := &models.PasswordReminder{
		UserID:     caller.UserID,
		QuestionID: req.QuestionID,
		Answer:     strings.TrimSpace(req.Answer),
	}
	if err := s.repo.Create(ctx, rem); err != nil {
		return nil, err
	}
	return rem, nil
}

func (s *passwordReminderService) Update(ctx context.Context, caller Caller, id int, req models.PasswordReminderPatch) (*models.PasswordReminder, error) {
	rem, err := s.repo.Get(ctx, caller.UserID, id)
	if err != nil {
		return nil, err
	}
	if req.QuestionID != nil && *req.QuestionID != rem.QuestionID {
		if err := s.checkQuestion(ctx, caller, *req.QuestionID); err != nil {
			return nil, err
		}
		rem.QuestionID = *req.QuestionID
	}
	if req.Answer != nil {
		rem.Answer = strings.TrimSpace(*req.Answer)
	}
	if err := s.repo.Update(ctx, rem); err != nil {
		return nil, err
	}
	return rem, nil
}

func (s *passwordReminderService) Delete(ctx context.Context, caller Caller, id int) error {
	return s.repo.Delete(ctx, caller.UserID, id)
}
