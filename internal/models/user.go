package models

import "time"

// DateFormat is the wire format of registration_date.
const DateFormat = "2006/01/02"

type User struct {
	ID           int        `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	IsStaff      bool       `json:"is_staff"`
	IsActive     bool       `json:"is_active"`
	LastLogin    *time.Time `json:"last_login"`

	OrganizationID   int        `json:"organization"`
	KatakanaName     string     `json:"katakana_name"`
	HiraganaName     string     `json:"hiragana_name"`
	Bio              *string    `json:"bio"`
	Avatar           *string    `json:"avatar"`
	LoginCounter     int        `json:"login_counter"`
	RegistrationDate *time.Time `json:"-"`

	// membership-derived, ordered by group id
	GroupIDs   []int    `json:"group_ids"`
	GroupNames []string `json:"group_names"`

	RefreshToken     *string    `json:"-"`
	RefreshExpiresAt *time.Time `json:"-"`
	RefreshRevoked   bool       `json:"-"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// GroupID is the lowest group id the user belongs to.
func (u *User) GroupID() *int {
	if len(u.GroupIDs) == 0 {
		return nil
	}
	id := u.GroupIDs[0]
	return &id
}

// GroupName is the name of the group returned by GroupID.
func (u *User) GroupName() *string {
	if len(u.GroupNames) == 0 {
		return nil
	}
	name := u.GroupNames[0]
	return &name
}

// UserResponse is the public representation of a user.
type UserResponse struct {
	*User
	GroupID          *int    `json:"group_id"`
	GroupName        *string `json:"group_name"`
	RegistrationDate *string `json:"registration_date"`
}

func (u *User) Response() UserResponse {
	out := UserResponse{User: u, GroupID: u.GroupID(), GroupName: u.GroupName()}
	if u.GroupIDs == nil {
		u.GroupIDs = []int{}
	}
	if u.GroupNames == nil {
		u.GroupNames = []string{}
	}
	if u.RegistrationDate != nil {
		s := u.RegistrationDate.Format(DateFormat)
		out.RegistrationDate = &s
	}
	return out
}

// UserFilter narrows user listings. Nil fields are not applied.
type UserFilter struct {
	OrganizationID *int
	KatakanaName   *string
	HiraganaName   *string
	GroupIDs       []int
	ExcludeUserID  *int

	// ScopeOrganizationID limits results to one organization regardless of
	// the client-supplied OrganizationID.
	ScopeOrganizationID *int
}

// UserUpdate carries the fields a PATCH may change.
type UserUpdate struct {
	Bio    *string
	Avatar *string
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=72"`
}

// AvatarResponse is one entry of the random same-group avatar sample.
type AvatarResponse struct {
	ID     int     `json:"id"`
	Avatar *string `json:"avatar"`
}
