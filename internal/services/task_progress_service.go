package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"ricauth/internal/models"
	"ricauth/internal/outbox"
)

// StatusLookup is the part of *outbox.Tracker the service reads.
type StatusLookup interface {
	Lookup(ctx context.Context, id uuid.UUID) (*outbox.Status, error)
}

type TaskProgressService interface {
	Progress(ctx context.Context, caller Caller, taskID string) (*models.TaskProgress, error)
}

type taskProgressService struct {
	tracker StatusLookup
}

func NewTaskProgressService(tracker StatusLookup) TaskProgressService {
	return &taskProgressService{tracker: tracker}
}

// Progress maps the delivery state of a queued message onto task states.
// Unknown ids report PENDING. The delivery error is only shown to the user
// the message was queued for and to staff.
func (s *taskProgressService) Progress(ctx context.Context, caller Caller, taskID string) (*models.TaskProgress, error) {
	id, err := uuid.Parse(taskID)
	if err != nil {
		return nil, ErrInvalidTaskID
	}

	st, err := s.tracker.Lookup(ctx, id)
	if errors.Is(err, outbox.ErrNotFound) {
		return &models.TaskProgress{State: models.TaskPending}, nil
	}
	if err != nil {
		return nil, err
	}

	lastErr := st.LastError
	if !caller.IsStaff && (st.OwnerID == nil || *st.OwnerID != caller.UserID) {
		lastErr = nil
	}

	switch {
	case st.PublishedAt != nil:
		return &models.TaskProgress{State: models.TaskSuccess}, nil
	case st.Dead:
		return &models.TaskProgress{State: models.TaskFailure, Result: lastErr}, nil
	case st.Attempts > 0 && st.LastError != nil:
		return &models.TaskProgress{State: models.TaskRetry, Result: lastErr}, nil
	default:
		return &models.TaskProgress{State: models.TaskPending}, nil
	}
}
