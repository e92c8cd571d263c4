package repositories

import (
	"context"
	"database/sql"

	"ricauth/internal/models"
)

type MembershipRepository interface {
	Create(ctx context.Context, m *models.Membership) error
	Delete(ctx context.Context, groupID, id int) error
	ListByGroup(ctx context.Context, groupID int) ([]*models.Membership, error)
}

type membershipRepository struct {
	db *sql.DB
}

func NewMembershipRepository(db *sql.DB) MembershipRepository {
	return &membershipRepository{db: db}
}

func (r *membershipRepository) Create(ctx context.Context, m *models.Membership) error {
	const q = `
		INSERT INTO user_group_roles (user_id, group_id, role_id, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, q, m.UserID, m.GroupID, m.RoleID, m.CreatedBy).Scan(&m.ID, &m.CreatedAt)
	return translate("membership create", err)
}

func (r *membershipRepository) Delete(ctx context.Context, groupID, id int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM user_group_roles WHERE id = $1 AND group_id = $2`, id, groupID)
	if err != nil {
		return translate("membership delete", err)
	}
	return expectOne("membership delete", res)
}

func (r *membershipRepository) ListByGroup(ctx context.Context, groupID int) ([]*models.Membership, error) {
	const q = `
		SELECT id, user_id, group_id, role_id, created_at
		FROM user_group_roles
		WHERE group_id = $1 AND is_deleted = FALSE
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, groupID)
	if err != nil {
		return nil, translate("membership list", err)
	}
	defer rows.Close()

	out := []*models.Membership{}
	for rows.Next() {
		m := &models.Membership{}
		if err := rows.Scan(&m.ID, &m.UserID, &m.GroupID, &m.RoleID, &m.CreatedAt); err != nil {
			return nil, translate("membership scan", err)
		}
		out = append(out, m)
	}
	return out, translate("membership rows", rows.Err())
}
