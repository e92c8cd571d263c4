package models

import "time"

// EmailChangeStatus tags the lifecycle of an email change request. Every
// status except pending is terminal and soft-deletes the record.
type EmailChangeStatus string

const (
	EmailChangePending   EmailChangeStatus = "pending"
	EmailChangeVerified  EmailChangeStatus = "verified"
	EmailChangeLockedOut EmailChangeStatus = "locked_out"
	EmailChangeExpired   EmailChangeStatus = "expired"
)

func (s EmailChangeStatus) Terminal() bool {
	return s != EmailChangePending
}

type EmailChange struct {
	ID          int64             `json:"id"`
	UserID      int               `json:"user"`
	Email       string            `json:"email"`
	AuthCode    string            `json:"-"`
	UUID        string            `json:"uuid"`
	FailAttempt int               `json:"-"`
	Status      EmailChangeStatus `json:"-"`
	IsDeleted   bool              `json:"-"`
	CreatedAt   time.Time         `json:"-"`
	UpdatedAt   time.Time         `json:"-"`
}

type EmailChangeRequest struct {
	Email string `json:"email" binding:"required,email,max=128"`
}

type EmailChangeVerification struct {
	Email    string `json:"email" binding:"required,email,max=128"`
	AuthCode string `json:"auth_code" binding:"required"`
	UUID     string `json:"uuid" binding:"required"`
}

// EmailChangeCreated is returned by the create endpoint. TaskID tracks the
// queued verification mail through task_progress.
type EmailChangeCreated struct {
	*EmailChange
	TaskID string `json:"task_id"`
}
