package models

import "time"

type PasswordReminderQuestion struct {
	ID             int    `json:"id"`
	OrganizationID *int   `json:"organization"`
	Question       string `json:"question"`
}

type PasswordReminder struct {
	ID         int       `json:"id"`
	UserID     int       `json:"user"`
	QuestionID int       `json:"question"`
	Answer     string    `json:"answer"`
	CreatedAt  time.Time `json:"-"`
	UpdatedAt  time.Time `json:"-"`
}

type PasswordReminderRequest struct {
	QuestionID int    `json:"question" binding:"required"`
	Answer     string `json:"answer" binding:"required,max=128"`
}

type PasswordReminderPatch struct {
	QuestionID *int    `json:"question"`
	Answer     *string `json:"answer" binding:"omitempty,max=128"`
}

type PasswordHistory struct {
	ID           int       `json:"id"`
	UserID       int       `json:"user"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// PasswordResetRequest is submitted anonymously by users who lost access.
type PasswordResetRequest struct {
	ID        int                      `json:"id"`
	Name      string                   `json:"name"`
	Email     string                   `json:"email"`
	Birthday  string                   `json:"birthday"`
	Message   string                   `json:"message"`
	Responses []*PasswordResetResponse `json:"response"`
	CreatedAt time.Time                `json:"created_at"`
}

type PasswordResetResponse struct {
	ID            int       `json:"id"`
	RequestID     int       `json:"request"`
	PasswordReset bool      `json:"password_reset"`
	CreatedBy     *int      `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

type CreatePasswordResetRequest struct {
	Name     string `json:"name" binding:"required,max=128"`
	Email    string `json:"email" binding:"required,email,max=128"`
	Birthday string `json:"birthday" binding:"required,datetime=2006-01-02"`
	Message  string `json:"message"`
}

type CreatePasswordResetResponse struct {
	PasswordReset bool `json:"password_reset"`
}
