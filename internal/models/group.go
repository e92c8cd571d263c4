package models

import "time"

type Group struct {
	ID             int        `json:"id"`
	Name           string     `json:"name"`
	Code           string     `json:"code"`
	Hierarchy      int        `json:"hierarchy"`
	OrganizationID int        `json:"organization"`
	ParentGroupID  *int       `json:"parent_group"`
	SubGroupsCount int        `json:"sub_groups_count"`
	UsersCount     int        `json:"users_count"`
	SubGroups      []SubGroup `json:"sub_groups"`
	CreatedBy      *int       `json:"-"`
	CreatedAt      time.Time  `json:"-"`
	UpdatedAt      time.Time  `json:"-"`
}

// SubGroup is the nested summary rendered inside a Group.
type SubGroup struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Code           string `json:"code"`
	Hierarchy      int    `json:"hierarchy"`
	SubGroupsCount int    `json:"sub_groups_count"`
	UsersCount     int    `json:"users_count"`
}

type GroupFilter struct {
	OrganizationID *int
	Hierarchy      *int
	IDs            []int
}

type CreateGroupRequest struct {
	Name           string `json:"name" binding:"required,max=100"`
	Code           string `json:"code" binding:"required,max=100"`
	OrganizationID int    `json:"organization" binding:"required"`
	ParentGroupID  *int   `json:"parent_group"`
}

type UpdateGroupRequest struct {
	Name          *string `json:"name" binding:"omitempty,max=100"`
	Code          *string `json:"code" binding:"omitempty,max=100"`
	ParentGroupID *int    `json:"parent_group"`
	// DetachParent moves the group to the top level.
	DetachParent bool `json:"detach_parent"`
}
