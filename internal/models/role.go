package models

import "time"

type Role struct {
	ID             int       `json:"id"`
	OrganizationID int       `json:"organization"`
	Name           string    `json:"name"`
	RoleType       int       `json:"role_type"`
	CreatedAt      time.Time `json:"-"`
}

type RolePermission struct {
	ID         int  `json:"id"`
	RoleID     int  `json:"role"`
	Permission int  `json:"permission"`
	Allow      bool `json:"allow"`
}

// Membership is a user's place in a group under a role.
type Membership struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user"`
	GroupID   int       `json:"group"`
	RoleID    int       `json:"role"`
	CreatedBy *int      `json:"-"`
	CreatedAt time.Time `json:"-"`
}

type CreateMembershipRequest struct {
	UserID int `json:"user_id" binding:"required"`
	RoleID int `json:"role_id" binding:"required"`
}
