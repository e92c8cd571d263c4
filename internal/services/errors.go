package services

import "errors"

var (
	ErrInvalidCredentials = errors.New("No active account found with the given credentials")
	ErrInvalidRefresh     = errors.New("Token is invalid or expired")
	ErrForbidden          = errors.New("You do not have permission to perform this action.")
	ErrPasswordReused     = errors.New("The new password must differ from your recent passwords.")
	ErrWrongPassword      = errors.New("Current password is incorrect.")

	ErrEmailTaken   = errors.New("This email is already taken.")
	ErrInvalidCode  = errors.New("Invalid auth code.")
	ErrAttemptLimit = errors.New("You have reached the maximum attempt limit.")

	ErrGroupCycle         = errors.New("A group cannot be moved under itself or one of its descendants.")
	ErrParentOrganization = errors.New("Parent group must belong to the same organization.")
	ErrRoleOrganization   = errors.New("Role must belong to the group's organization.")
	ErrQuestionNotVisible = errors.New("Invalid question.")

	ErrInvalidTaskID = errors.New("Please provide valid task id")
)

// ValidationError carries a client-facing message for a rejected input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }
