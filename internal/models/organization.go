package models

import "time"

type Organization struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedBy *int      `json:"-"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

type OrganizationFilter struct {
	Slug *string
}

type CreateOrganizationRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}
