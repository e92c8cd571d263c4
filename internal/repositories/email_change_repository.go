package repositories

import (
	"context"
	"database/sql"
	"time"

	"ricauth/internal/models"
)

type EmailChangeRepository interface {
	Create(ctx context.Context, tx DBTX, ec *models.EmailChange) error
	GetByID(ctx context.Context, id int64) (*models.EmailChange, error)
	// GetActive finds the pending request matching the triple.
	GetActive(ctx context.Context, userID int, email, uuid string) (*models.EmailChange, error)
	// RegisterFailure counts one wrong code against a pending request and
	// locks it out once limit is reached.
	RegisterFailure(ctx context.Context, id int64, limit int) (models.EmailChangeStatus, int, error)
	MarkVerified(ctx context.Context, tx DBTX, id int64) error
	// ExpireOlderThan terminates pending requests created before cutoff.
	ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type emailChangeRepository struct {
	db *sql.DB
}

func NewEmailChangeRepository(db *sql.DB) EmailChangeRepository {
	return &emailChangeRepository{db: db}
}

const emailChangeColumns = `id, user_id, email, auth_code, uuid, fail_attempt, status, is_deleted, created_at, updated_at`

func scanEmailChange(row rowScanner) (*models.EmailChange, error) {
	ec := &models.EmailChange{}
	err := row.Scan(&ec.ID, &ec.UserID, &ec.Email, &ec.AuthCode, &ec.UUID, &ec.FailAttempt,
		&ec.Status, &ec.IsDeleted, &ec.CreatedAt, &ec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return ec, nil
}

func (r *emailChangeRepository) Create(ctx context.Context, tx DBTX, ec *models.EmailChange) error {
	const q = `
		INSERT INTO email_changes (user_id, email, auth_code, uuid, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $1, $1)
		RETURNING id, fail_attempt, status, is_deleted, created_at, updated_at`
	err := tx.QueryRowContext(ctx, q, ec.UserID, ec.Email, ec.AuthCode, ec.UUID).
		Scan(&ec.ID, &ec.FailAttempt, &ec.Status, &ec.IsDeleted, &ec.CreatedAt, &ec.UpdatedAt)
	return translate("email change create", err)
}

func (r *emailChangeRepository) GetByID(ctx context.Context, id int64) (*models.EmailChange, error) {
	q := `SELECT ` + emailChangeColumns + ` FROM email_changes WHERE id = $1`
	ec, err := scanEmailChange(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, translate("email change get", err)
	}
	return ec, nil
}

func (r *emailChangeRepository) GetActive(ctx context.Context, userID int, email, uuid string) (*models.EmailChange, error) {
	q := `SELECT ` + emailChangeColumns + `
		FROM email_changes
		WHERE user_id = $1 AND email = $2 AND uuid::text = $3 AND is_deleted = FALSE
		ORDER BY id DESC
		LIMIT 1`
	ec, err := scanEmailChange(r.db.QueryRowContext(ctx, q, userID, email, uuid))
	if err != nil {
		return nil, translate("email change get active", err)
	}
	return ec, nil
}

func (r *emailChangeRepository) RegisterFailure(ctx context.Context, id int64, limit int) (models.EmailChangeStatus, int, error) {
	// SET expressions see the pre-update row, so fail_attempt + 1 is the new count.
	const q = `
		UPDATE email_changes
		SET fail_attempt = fail_attempt + 1,
		    status = CASE WHEN fail_attempt + 1 >= $2 THEN 'locked_out' ELSE status END,
		    is_deleted = (fail_attempt + 1 >= $2),
		    updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
		RETURNING status, fail_attempt`
	var (
		status   models.EmailChangeStatus
		attempts int
	)
	if err := r.db.QueryRowContext(ctx, q, id, limit).Scan(&status, &attempts); err != nil {
		return "", 0, translate("email change register failure", err)
	}
	return status, attempts, nil
}

func (r *emailChangeRepository) MarkVerified(ctx context.Context, tx DBTX, id int64) error {
	const q = `
		UPDATE email_changes
		SET status = 'verified', is_deleted = TRUE, updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE`
	res, err := tx.ExecContext(ctx, q, id)
	if err != nil {
		return translate("email change mark verified", err)
	}
	return expectOne("email change mark verified", res)
}

func (r *emailChangeRepository) ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `
		UPDATE email_changes
		SET status = 'expired', is_deleted = TRUE, updated_at = NOW()
		WHERE is_deleted = FALSE AND created_at < $1`
	res, err := r.db.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, translate("email change expire", err)
	}
	n, err := res.RowsAffected()
	return n, translate("email change expire", err)
}
