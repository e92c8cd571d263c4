package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"ricauth/internal/models"
	"ricauth/internal/search"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int) (*models.User, error)
	GetByLogin(ctx context.Context, login string) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	List(ctx context.Context, filter models.UserFilter, q *search.Query, order string, limit, offset int) ([]*models.User, int, error)
	UpdateProfile(ctx context.Context, id int, upd models.UserUpdate, updatedBy int) error
	UpdateEmail(ctx context.Context, tx DBTX, id int, email string) error
	UpdatePassword(ctx context.Context, tx DBTX, id int, hash string) error
	RecordLogin(ctx context.Context, id int) error
	SameGroupAvatars(ctx context.Context, userID, limit int) ([]models.AvatarResponse, error)

	UpdateRefresh(ctx context.Context, userID int, token string, expiresAt time.Time) error
	RotateRefresh(ctx context.Context, oldToken, newToken string, newExpiresAt time.Time) (*models.User, error)
	ClearRefresh(ctx context.Context, userID int) error
	GetByRefreshToken(ctx context.Context, token string) (*models.User, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

// userColumns must stay in sync with scanUser.
const userColumns = `
	u.id, u.username, u.email, u.password_hash, u.first_name, u.last_name,
	u.is_staff, u.is_active, u.last_login, u.organization_id,
	u.katakana_name, u.hiragana_name, u.bio, u.avatar, u.login_counter, u.registration_date,
	u.refresh_token, u.refresh_expires_at, u.refresh_revoked, u.created_at, u.updated_at,
	COALESCE((
		SELECT array_agg(x.id ORDER BY x.id) FROM (
			SELECT DISTINCT g.id FROM user_group_roles m JOIN groups g ON g.id = m.group_id
			WHERE m.user_id = u.id AND m.is_deleted = FALSE AND g.is_deleted = FALSE
		) x
	), '{}'),
	COALESCE((
		SELECT array_agg(x.name ORDER BY x.id) FROM (
			SELECT DISTINCT g.id, g.name FROM user_group_roles m JOIN groups g ON g.id = m.group_id
			WHERE m.user_id = u.id AND m.is_deleted = FALSE AND g.is_deleted = FALSE
		) x
	), '{}')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	var (
		lastLogin  sql.NullTime
		bio        sql.NullString
		avatar     sql.NullString
		regDate    sql.NullTime
		rt         sql.NullString
		rte        sql.NullTime
		groupIDs   []int64
		groupNames []string
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.IsStaff, &u.IsActive, &lastLogin, &u.OrganizationID,
		&u.KatakanaName, &u.HiraganaName, &bio, &avatar, &u.LoginCounter, &regDate,
		&rt, &rte, &u.RefreshRevoked, &u.CreatedAt, &u.UpdatedAt,
		pq.Array(&groupIDs), pq.Array(&groupNames),
	)
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	if bio.Valid {
		s := bio.String
		u.Bio = &s
	}
	if avatar.Valid {
		s := avatar.String
		u.Avatar = &s
	}
	if regDate.Valid {
		t := regDate.Time
		u.RegistrationDate = &t
	}
	if rt.Valid {
		s := rt.String
		u.RefreshToken = &s
	}
	if rte.Valid {
		t := rte.Time
		u.RefreshExpiresAt = &t
	}
	u.GroupIDs = make([]int, 0, len(groupIDs))
	for _, id := range groupIDs {
		u.GroupIDs = append(u.GroupIDs, int(id))
	}
	u.GroupNames = groupNames
	return u, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	const q = `
		INSERT INTO users (
			username, email, password_hash, first_name, last_name, is_staff, is_active,
			organization_id, katakana_name, hiragana_name, registration_date
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, q,
		user.Username, user.Email, user.PasswordHash, user.FirstName, user.LastName,
		user.IsStaff, user.IsActive, user.OrganizationID, user.KatakanaName, user.HiraganaName,
		user.RegistrationDate,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	return translate("user create", err)
}

func (r *userRepository) GetByID(ctx context.Context, id int) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users u WHERE u.id = $1 AND u.is_deleted = FALSE`
	u, err := scanUser(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, translate("user get", err)
	}
	return u, nil
}

// GetByLogin finds a user by username or, failing that, by email.
func (r *userRepository) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users u
		WHERE u.is_deleted = FALSE AND (u.username = $1 OR (u.email <> '' AND LOWER(u.email) = LOWER($1)))
		ORDER BY (u.username = $1) DESC
		LIMIT 1`
	u, err := scanUser(r.db.QueryRowContext(ctx, q, login))
	if err != nil {
		return nil, translate("user get by login", err)
	}
	return u, nil
}

func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`, email).Scan(&exists)
	return exists, translate("user email exists", err)
}

func (r *userRepository) List(ctx context.Context, filter models.UserFilter, sq *search.Query, order string, limit, offset int) ([]*models.User, int, error) {
	w := &where{}
	w.and("u.is_deleted = FALSE")
	if filter.OrganizationID != nil {
		w.and("u.organization_id = " + w.bind(*filter.OrganizationID))
	}
	if filter.KatakanaName != nil {
		w.and("u.katakana_name ILIKE " + w.bind("%"+search.EscapeLike(*filter.KatakanaName)+"%"))
	}
	if filter.HiraganaName != nil {
		w.and("u.hiragana_name ILIKE " + w.bind("%"+search.EscapeLike(*filter.HiraganaName)+"%"))
	}
	if len(filter.GroupIDs) > 0 {
		ids := make([]int64, 0, len(filter.GroupIDs))
		for _, id := range filter.GroupIDs {
			ids = append(ids, int64(id))
		}
		w.and(`EXISTS (SELECT 1 FROM user_group_roles m WHERE m.user_id = u.id AND m.is_deleted = FALSE AND m.group_id = ANY(` +
			w.bind(pq.Array(ids)) + `))`)
	}
	if filter.ExcludeUserID != nil {
		w.and("u.id <> " + w.bind(*filter.ExcludeUserID))
	}
	if filter.ScopeOrganizationID != nil {
		w.and("u.organization_id = " + w.bind(*filter.ScopeOrganizationID))
	}
	w.search(sq)

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users u`+w.sql(), w.args...).Scan(&count); err != nil {
		return nil, 0, translate("user count", err)
	}

	if order == "" {
		order = "u.id"
	}
	q := `SELECT ` + userColumns + ` FROM users u` + w.sql() +
		` ORDER BY ` + order + ` LIMIT ` + w.bind(limit) + ` OFFSET ` + w.bind(offset)
	rows, err := r.db.QueryContext(ctx, q, w.args...)
	if err != nil {
		return nil, 0, translate("user list", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, translate("user scan", err)
		}
		out = append(out, u)
	}
	return out, count, translate("user rows", rows.Err())
}

func (r *userRepository) UpdateProfile(ctx context.Context, id int, upd models.UserUpdate, updatedBy int) error {
	const q = `
		UPDATE users
		SET bio = CASE WHEN $2 THEN $3 ELSE bio END,
		    avatar = CASE WHEN $4 THEN $5 ELSE avatar END,
		    updated_by = $6,
		    updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE`
	res, err := r.db.ExecContext(ctx, q, id,
		upd.Bio != nil, nullString(upd.Bio),
		upd.Avatar != nil, nullString(upd.Avatar),
		updatedBy,
	)
	if err != nil {
		return translate("user update profile", err)
	}
	return expectOne("user update profile", res)
}

func (r *userRepository) UpdateEmail(ctx context.Context, tx DBTX, id int, email string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE users SET email = $1, updated_by = $2, updated_at = NOW() WHERE id = $2 AND is_deleted = FALSE`,
		email, id)
	if err != nil {
		return translate("user update email", err)
	}
	return expectOne("user update email", res)
}

func (r *userRepository) UpdatePassword(ctx context.Context, tx DBTX, id int, hash string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE users SET password_hash = $1, updated_by = $2, updated_at = NOW() WHERE id = $2`,
		hash, id)
	if err != nil {
		return translate("user update password", err)
	}
	return expectOne("user update password", res)
}

// RecordLogin bumps the login counter and stamps last_login.
func (r *userRepository) RecordLogin(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET login_counter = login_counter + 1, last_login = NOW() WHERE id = $1`, id)
	return translate("user record login", err)
}

// SameGroupAvatars samples up to limit active users sharing a group with
// userID, excluding userID itself.
func (r *userRepository) SameGroupAvatars(ctx context.Context, userID, limit int) ([]models.AvatarResponse, error) {
	const q = `
		SELECT u.id, u.avatar
		FROM users u
		WHERE u.id IN (
			SELECT s.user_id FROM (
				SELECT DISTINCT peer.user_id
				FROM user_group_roles mine
				JOIN user_group_roles peer ON peer.group_id = mine.group_id
				WHERE mine.user_id = $1
				  AND mine.is_deleted = FALSE
				  AND peer.is_deleted = FALSE
				  AND peer.user_id <> $1
			) s
			ORDER BY random()
			LIMIT $2
		)
		AND u.is_active = TRUE AND u.is_deleted = FALSE
		ORDER BY u.id`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, translate("user same group avatars", err)
	}
	defer rows.Close()

	out := []models.AvatarResponse{}
	for rows.Next() {
		var (
			a      models.AvatarResponse
			avatar sql.NullString
		)
		if err := rows.Scan(&a.ID, &avatar); err != nil {
			return nil, translate("user avatar scan", err)
		}
		if avatar.Valid {
			s := avatar.String
			a.Avatar = &s
		}
		out = append(out, a)
	}
	return out, translate("user avatar rows", rows.Err())
}

func (r *userRepository) UpdateRefresh(ctx context.Context, userID int, token string, expiresAt time.Time) error {
	const q = `
		UPDATE users
		SET refresh_token=$1, refresh_expires_at=$2, refresh_revoked=FALSE
		WHERE id=$3`
	_, err := r.db.ExecContext(ctx, q, token, expiresAt, userID)
	return translate("user update refresh", err)
}

func (r *userRepository) RotateRefresh(ctx context.Context, oldToken, newToken string, newExpiresAt time.Time) (*models.User, error) {
	const q = `
		UPDATE users u
		SET refresh_token=$1, refresh_expires_at=$2, refresh_revoked=FALSE
		WHERE u.refresh_token=$3 AND u.refresh_revoked = FALSE AND u.refresh_expires_at > NOW()
		RETURNING ` + userColumns
	u, err := scanUser(r.db.QueryRowContext(ctx, q, newToken, newExpiresAt, oldToken))
	if err != nil {
		return nil, translate("user rotate refresh", err)
	}
	return u, nil
}

func (r *userRepository) ClearRefresh(ctx context.Context, userID int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token=NULL, refresh_expires_at=NULL, refresh_revoked=TRUE
		WHERE id=$1`, userID)
	return translate("user clear refresh", err)
}

func (r *userRepository) GetByRefreshToken(ctx context.Context, token string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users u WHERE u.refresh_token = $1 AND u.is_deleted = FALSE`
	u, err := scanUser(r.db.QueryRowContext(ctx, q, token))
	if err != nil {
		return nil, translate("user get by refresh", err)
	}
	return u, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
