package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ricauth/internal/models"
	"ricauth/internal/repositories"
)

type fakeReminderRepo struct {
	visible   map[int]bool
	reminders map[int]*models.PasswordReminder
}

func (r *fakeReminderRepo) Questions(ctx context.Context, organizationID int) ([]*models.PasswordReminderQuestion, error) {
	return nil, nil
}

func (r *fakeReminderRepo) QuestionVisible(ctx context.Context, questionID, organizationID int) (bool, error) {
	return r.visible[questionID], nil
}

func (r *fakeReminderRepo) List(ctx context.Context, userID, limit, offset int) ([]*models.PasswordReminder, int, error) {
	return nil, 0, nil
}

func (r *fakeReminderRepo) Get(ctx context.Context, userID, id int) (*models.PasswordReminder, error) {
	rem, ok := r.reminders[id]
	if !ok || rem.UserID != userID {
		return nil, repositories.ErrNotFound
	}
	cp := *rem
	return &cp, nil
}

func (r *fakeReminderRepo) Create(ctx context.Context, rem *models.PasswordReminder) error {
	rem.ID = len(r.reminders) + 1
	r.reminders[rem.ID] = rem
	return nil
}

func (r *fakeReminderRepo) Update(ctx context.Context, rem *models.PasswordReminder) error {
	r.reminders[rem.ID] = rem
	return nil
}

func (r *fakeReminderRepo) Delete(ctx context.Context, userID, id int) error {
	if _, err := r.Get(ctx, userID, id); err != nil {
		return err
	}
	delete(r.reminders, id)
	return nil
}

func TestPasswordReminderQuestionVisibility(t *testing.T) {
	repo := &fakeReminderRepo{visible: map[int]bool{1: true}, reminders: map[int]*models.PasswordReminder{}}
	svc := NewPasswordReminderService(repo)
	ctx := context.Background()
	alice := Caller{UserID: 1, OrganizationID: 1}

	_, err := svc.Create(ctx, alice, models.PasswordReminderRequest{QuestionID: 2, Answer: "x"})
	require.ErrorIs(t, err, ErrQuestionNotVisible)

	rem, err := svc.Create(ctx, alice, models.PasswordReminderRequest{QuestionID: 1, Answer: " blue "})
	require.NoError(t, err)
	assert.Equal(t, "blue", rem.Answer)
	assert.Equal(t, 1, rem.UserID)

	hidden := 2
	_, err = svc.Update(ctx, alice, rem.ID, models.PasswordReminderPatch{QuestionID: &hidden})
	require.ErrorIs(t, err, ErrQuestionNotVisible)

	// another user cannot see or remove it
	bob := Caller{UserID: 2, OrganizationID: 1}
	_, err = svc.Get(ctx, bob, rem.ID)
	require.ErrorIs(t, err, repositories.ErrNotFound)
	require.ErrorIs(t, svc.Delete(ctx, bob, rem.ID), repositories.ErrNotFound)

	require.NoError(t, svc.Delete(ctx, alice, rem.ID))
}
