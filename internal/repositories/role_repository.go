package repositories

import (
	"context"
	"database/sql"

	"ricauth/internal/models"
)

type RoleRepository interface {
	GetByID(ctx context.Context, id int) (*models.Role, error)
	// RolesForUser returns the distinct roles the user holds through memberships.
	RolesForUser(ctx context.Context, userID int) ([]models.Role, error)
	PermissionsForUser(ctx context.Context, userID int) ([]models.RolePermission, error)
}

type roleRepository struct {
	db *sql.DB
}

func NewRoleRepository(db *sql.DB) RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) GetByID(ctx context.Context, id int) (*models.Role, error) {
	const q = `
		SELECT id, organization_id, name, role_type, created_at
		FROM roles
		WHERE id = $1 AND is_deleted = FALSE`
	role := &models.Role{}
	err := r.db.QueryRowContext(ctx, q, id).
		Scan(&role.ID, &role.OrganizationID, &role.Name, &role.RoleType, &role.CreatedAt)
	if err != nil {
		return nil, translate("role get", err)
	}
	return role, nil
}

func (r *roleRepository) RolesForUser(ctx context.Context, userID int) ([]models.Role, error) {
	const q = `
		SELECT DISTINCT r.id, r.organization_id, r.name, r.role_type, r.created_at
		FROM user_group_roles m
		JOIN roles r ON r.id = m.role_id
		WHERE m.user_id = $1 AND m.is_deleted = FALSE AND r.is_deleted = FALSE
		ORDER BY r.id`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, translate("role list for user", err)
	}
	defer rows.Close()

	var out []models.Role
	for rows.Next() {
		var role models.Role
		if err := rows.Scan(&role.ID, &role.OrganizationID, &role.Name, &role.RoleType, &role.CreatedAt); err != nil {
			return nil, translate("role scan", err)
		}
		out = append(out, role)
	}
	return out, translate("role rows", rows.Err())
}

func (r *roleRepository) PermissionsForUser(ctx context.Context, userID int) ([]models.RolePermission, error) {
	const q = `
		SELECT DISTINCT p.id, p.role_id, p.permission, p.allow
		FROM user_group_roles m
		JOIN role_permissions p ON p.role_id = m.role_id
		WHERE m.user_id = $1 AND m.is_deleted = FALSE AND p.is_deleted = FALSE
		ORDER BY p.id`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, translate("permission list for user", err)
	}
	defer rows.Close()

	var out []models.RolePermission
	for rows.Next() {
		var p models.RolePermission
		if err := rows.Scan(&p.ID, &p.RoleID, &p.Permission, &p.Allow); err != nil {
			return nil, translate("permission scan", err)
		}
		out = append(out, p)
	}
	return out, translate("permission rows", rows.Err())
}
