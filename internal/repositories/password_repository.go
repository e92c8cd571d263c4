package repositories

import (
	"context"
	"database/sql"

	"ricauth/internal/models"
)

type PasswordHistoryRepository interface {
	// Recent returns the n newest hashes of the user, newest first.
	Recent(ctx context.Context, userID, n int) ([]string, error)
	Add(ctx context.Context, tx DBTX, userID int, hash string) error
}

type passwordHistoryRepository struct {
	db *sql.DB
}

func NewPasswordHistoryRepository(db *sql.DB) PasswordHistoryRepository {
	return &passwordHistoryRepository{db: db}
}

func (r *passwordHistoryRepository) Recent(ctx context.Context, userID, n int) ([]string, error) {
	const q = `
		SELECT password_hash FROM password_histories
		WHERE user_id = $1 AND is_deleted = FALSE
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, userID, n)
	if err != nil {
		return nil, translate("password history recent", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, translate("password history scan", err)
		}
		out = append(out, h)
	}
	return out, translate("password history rows", rows.Err())
}

func (r *passwordHistoryRepository) Add(ctx context.Context, tx DBTX, userID int, hash string) error {
	const q = `
		INSERT INTO password_histories (user_id, password_hash, created_by, updated_by)
		VALUES ($1, $2, $1, $1)`
	_, err := tx.ExecContext(ctx, q, userID, hash)
	return translate("password history add", err)
}

type PasswordReminderRepository interface {
	// Questions lists the organization's questions, or the global ones when
	// the organization defines none.
	Questions(ctx context.Context, organizationID int) ([]*models.PasswordReminderQuestion, error)
	QuestionVisible(ctx context.Context, questionID, organizationID int) (bool, error)

	List(ctx context.Context, userID, limit, offset int) ([]*models.PasswordReminder, int, error)
	Get(ctx context.Context, userID, id int) (*models.PasswordReminder, error)
	Create(ctx context.Context, rem *models.PasswordReminder) error
	Update(ctx context.Context, rem *models.PasswordReminder) error
	Delete(ctx context.Context, userID, id int) error
}

type passwordReminderRepository struct {
	db *sql.DB
}

func NewPasswordReminderRepository(db *sql.DB) PasswordReminderRepository {
	return &passwordReminderRepository{db: db}
}

func (r *passwordReminderRepository) Questions(ctx context.Context, organizationID int) ([]*models.PasswordReminderQuestion, error) {
	const q = `
		WITH own AS (
			SELECT id, organization_id, question FROM password_reminder_questions
			WHERE organization_id = $1 AND is_deleted = FALSE
		)
		SELECT id, organization_id, question FROM own
		UNION ALL
		SELECT id, organization_id, question FROM password_reminder_questions
		WHERE organization_id IS NULL AND is_deleted = FALSE
		  AND NOT EXISTS (SELECT 1 FROM own)
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, organizationID)
	if err != nil {
		return nil, translate("reminder questions", err)
	}
	defer rows.Close()

	out := []*models.PasswordReminderQuestion{}
	for rows.Next() {
		qq := &models.PasswordReminderQuestion{}
		var org sql.NullInt64
		if err := rows.Scan(&qq.ID, &org, &qq.Question); err != nil {
			return nil, translate("reminder question scan", err)
		}
		if org.Valid {
			id := int(org.Int64)
			qq.OrganizationID = &id
		}
		out = append(out, qq)
	}
	return out, translate("reminder question rows", rows.Err())
}

func (r *passwordReminderRepository) QuestionVisible(ctx context.Context, questionID, organizationID int) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM password_reminder_questions
			WHERE id = $1 AND is_deleted = FALSE
			  AND (organization_id = $2 OR organization_id IS NULL)
		)`
	var ok bool
	err := r.db.QueryRowContext(ctx, q, questionID, organizationID).Scan(&ok)
	return ok, translate("reminder question visible", err)
}

const reminderColumns = `id, user_id, question_id, answer, created_at, updated_at`

func scanReminder(row rowScanner) (*models.PasswordReminder, error) {
	rem := &models.PasswordReminder{}
	if err := row.Scan(&rem.ID, &rem.UserID, &rem.QuestionID, &rem.Answer, &rem.CreatedAt, &rem.UpdatedAt); err != nil {
		return nil, err
	}
	return rem, nil
}

func (r *passwordReminderRepository) List(ctx context.Context, userID, limit, offset int) ([]*models.PasswordReminder, int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM password_reminders WHERE user_id = $1 AND is_deleted = FALSE`, userID).Scan(&count)
	if err != nil {
		return nil, 0, translate("reminder count", err)
	}

	q := `SELECT ` + reminderColumns + ` FROM password_reminders
		WHERE user_id = $1 AND is_deleted = FALSE
		ORDER BY id LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, 0, translate("reminder list", err)
	}
	defer rows.Close()

	var out []*models.PasswordReminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, 0, translate("reminder scan", err)
		}
		out = append(out, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, translate("reminder rows", err)
	}
	return out, count, nil
}

func (r *passwordReminderRepository) Get(ctx context.Context, userID, id int) (*models.PasswordReminder, error) {
	q := `SELECT ` + reminderColumns + ` FROM password_reminders
		WHERE id = $1 AND user_id = $2 AND is_deleted = FALSE`
	rem, err := scanReminder(r.db.QueryRowContext(ctx, q, id, userID))
	if err != nil {
		return nil, translate("reminder get", err)
	}
	return rem, nil
}

func (r *passwordReminderRepository) Create(ctx context.Context, rem *models.PasswordReminder) error {
	const q = `
		INSERT INTO password_reminders (user_id, question_id, answer, created_by, updated_by)
		VALUES ($1, $2, $3, $1, $1)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, q, rem.UserID, rem.QuestionID, rem.Answer).
		Scan(&rem.ID, &rem.CreatedAt, &rem.UpdatedAt)
	return translate("reminder create", err)
}

func (r *passwordReminderRepository) Update(ctx context.Context, rem *models.PasswordReminder) error {
	const q = `
		UPDATE password_reminders
		SET question_id = $3, answer = $4, updated_by = $2, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND is_deleted = FALSE
		RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, q, rem.ID, rem.UserID, rem.QuestionID, rem.Answer).Scan(&rem.UpdatedAt)
	return translate("reminder update", err)
}

// Delete is a soft delete.
func (r *passwordReminderRepository) Delete(ctx context.Context, userID, id int) error {
	const q = `
		UPDATE password_reminders
		SET is_deleted = TRUE, updated_by = $2, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND is_deleted = FALSE`
	res, err := r.db.ExecContext(ctx, q, id, userID)
	if err != nil {
		return translate("reminder delete", err)
	}
	return expectOne("reminder delete", res)
}
