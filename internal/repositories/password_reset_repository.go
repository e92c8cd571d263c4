package repositories

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"ricauth/internal/models"
)

type PasswordResetRepository interface {
	Create(ctx context.Context, req *models.PasswordResetRequest) error
	GetByID(ctx context.Context, id int) (*models.PasswordResetRequest, error)
	List(ctx context.Context, limit, offset int) ([]*models.PasswordResetRequest, int, error)
	Respond(ctx context.Context, resp *models.PasswordResetResponse) error
}

type passwordResetRepository struct {
	db *sql.DB
}

func NewPasswordResetRepository(db *sql.DB) PasswordResetRepository {
	return &passwordResetRepository{db: db}
}

const resetRequestColumns = `id, name, email, to_char(birthday, 'YYYY-MM-DD'), message, created_at`

func scanResetRequest(row rowScanner) (*models.PasswordResetRequest, error) {
	req := &models.PasswordResetRequest{}
	if err := row.Scan(&req.ID, &req.Name, &req.Email, &req.Birthday, &req.Message, &req.CreatedAt); err != nil {
		return nil, err
	}
	req.Responses = []*models.PasswordResetResponse{}
	return req, nil
}

func (r *passwordResetRepository) Create(ctx context.Context, req *models.PasswordResetRequest) error {
	const q = `
		INSERT INTO password_reset_requests (name, email, birthday, message)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, q, req.Name, req.Email, req.Birthday, req.Message).Scan(&req.ID, &req.CreatedAt)
	if req.Responses == nil {
		req.Responses = []*models.PasswordResetResponse{}
	}
	return translate("reset request create", err)
}

func (r *passwordResetRepository) GetByID(ctx context.Context, id int) (*models.PasswordResetRequest, error) {
	q := `SELECT ` + resetRequestColumns + ` FROM password_reset_requests WHERE id = $1 AND is_deleted = FALSE`
	req, err := scanResetRequest(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, translate("reset request get", err)
	}
	if err := r.attachResponses(ctx, []*models.PasswordResetRequest{req}); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *passwordResetRepository) List(ctx context.Context, limit, offset int) ([]*models.PasswordResetRequest, int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM password_reset_requests WHERE is_deleted = FALSE`).Scan(&count); err != nil {
		return nil, 0, translate("reset request count", err)
	}

	q := `SELECT ` + resetRequestColumns + ` FROM password_reset_requests
		WHERE is_deleted = FALSE ORDER BY id DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, 0, translate("reset request list", err)
	}
	defer rows.Close()

	var out []*models.PasswordResetRequest
	for rows.Next() {
		req, err := scanResetRequest(rows)
		if err != nil {
			return nil, 0, translate("reset request scan", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, translate("reset request rows", err)
	}
	if err := r.attachResponses(ctx, out); err != nil {
		return nil, 0, err
	}
	return out, count, nil
}

func (r *passwordResetRepository) attachResponses(ctx context.Context, reqs []*models.PasswordResetRequest) error {
	if len(reqs) == 0 {
		return nil
	}
	byID := make(map[int]*models.PasswordResetRequest, len(reqs))
	ids := make([]int64, 0, len(reqs))
	for _, req := range reqs {
		byID[req.ID] = req
		ids = append(ids, int64(req.ID))
	}

	const q = `
		SELECT id, request_id, password_reset, created_by, created_at
		FROM password_reset_responses
		WHERE request_id = ANY($1) AND is_deleted = FALSE
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, pq.Array(ids))
	if err != nil {
		return translate("reset responses", err)
	}
	defer rows.Close()

	for rows.Next() {
		resp := &models.PasswordResetResponse{}
		var by sql.NullInt64
		if err := rows.Scan(&resp.ID, &resp.RequestID, &resp.PasswordReset, &by, &resp.CreatedAt); err != nil {
			return translate("reset response scan", err)
		}
		if by.Valid {
			id := int(by.Int64)
			resp.CreatedBy = &id
		}
		if req, ok := byID[resp.RequestID]; ok {
			req.Responses = append(req.Responses, resp)
		}
	}
	return translate("reset response rows", rows.Err())
}

func (r *passwordResetRepository) Respond(ctx context.Context, resp *models.PasswordResetResponse) error {
	const q = `
		INSERT INTO password_reset_responses (request_id, password_reset, created_by, updated_by)
		VALUES ($1, $2, $3, $3)
		RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, q, resp.RequestID, resp.PasswordReset, resp.CreatedBy).
		Scan(&resp.ID, &resp.CreatedAt)
	return translate("reset response create", err)
}
