package repositories

import (
	"context"
	"database/sql"

	"ricauth/internal/models"
)

type OrganizationRepository interface {
	Create(ctx context.Context, org *models.Organization) error
	GetByID(ctx context.Context, id int) (*models.Organization, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	List(ctx context.Context, filter models.OrganizationFilter, limit, offset int) ([]*models.Organization, int, error)
	Delete(ctx context.Context, id int) error
}

type organizationRepository struct {
	db *sql.DB
}

func NewOrganizationRepository(db *sql.DB) OrganizationRepository {
	return &organizationRepository{db: db}
}

func (r *organizationRepository) Create(ctx context.Context, org *models.Organization) error {
	const q = `
		INSERT INTO organizations (name, slug, created_by, updated_by)
		VALUES ($1, $2, $3, $3)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, q, org.Name, org.Slug, org.CreatedBy).
		Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
	return translate("organization create", err)
}

func (r *organizationRepository) GetByID(ctx context.Context, id int) (*models.Organization, error) {
	const q = `
		SELECT id, name, slug, created_at, updated_at
		FROM organizations
		WHERE id = $1 AND is_deleted = FALSE`
	o := &models.Organization{}
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, translate("organization get", err)
	}
	return o, nil
}

func (r *organizationRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM organizations WHERE slug = $1)`, slug).Scan(&exists)
	return exists, translate("organization slug exists", err)
}

func (r *organizationRepository) List(ctx context.Context, filter models.OrganizationFilter, limit, offset int) ([]*models.Organization, int, error) {
	w := &where{}
	w.and("is_deleted = FALSE")
	if filter.Slug != nil {
		w.and("slug = " + w.bind(*filter.Slug))
	}

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM organizations`+w.sql(), w.args...).Scan(&count); err != nil {
		return nil, 0, translate("organization count", err)
	}

	q := `SELECT id, name, slug, created_at, updated_at FROM organizations` + w.sql() +
		` ORDER BY id LIMIT ` + w.bind(limit) + ` OFFSET ` + w.bind(offset)
	rows, err := r.db.QueryContext(ctx, q, w.args...)
	if err != nil {
		return nil, 0, translate("organization list", err)
	}
	defer rows.Close()

	var out []*models.Organization
	for rows.Next() {
		o := &models.Organization{}
		if err := rows.Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, 0, translate("organization scan", err)
		}
		out = append(out, o)
	}
	return out, count, translate("organization rows", rows.Err())
}

func (r *organizationRepository) Delete(ctx context.Context, id int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return translate("organization delete", err)
	}
	return expectOne("organization delete", res)
}
