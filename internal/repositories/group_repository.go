package repositories

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"ricauth/internal/models"
	"ricauth/internal/search"
)

type GroupRepository interface {
	Create(ctx context.Context, g *models.Group) error
	GetByID(ctx context.Context, id int) (*models.Group, error)
	List(ctx context.Context, filter models.GroupFilter, q *search.Query, order string, limit, offset int) ([]*models.Group, int, error)
	Update(ctx context.Context, g *models.Group, updatedBy int) error
	Delete(ctx context.Context, id int) error
	// IsAncestorOrSelf reports whether ancestorID is groupID or one of its ancestors.
	IsAncestorOrSelf(ctx context.Context, ancestorID, groupID int) (bool, error)
	RecomputeHierarchy(ctx context.Context, tx DBTX, rootID int) error
	RecomputeAllHierarchies(ctx context.Context) (int64, error)
}

type groupRepository struct {
	db *sql.DB
}

func NewGroupRepository(db *sql.DB) GroupRepository {
	return &groupRepository{db: db}
}

const groupColumns = `
	g.id, g.name, g.code, g.hierarchy, g.organization_id, g.parent_group_id,
	(SELECT COUNT(*) FROM groups c WHERE c.parent_group_id = g.id AND c.is_deleted = FALSE),
	(SELECT COUNT(DISTINCT m.user_id) FROM user_group_roles m WHERE m.group_id = g.id AND m.is_deleted = FALSE),
	g.created_at, g.updated_at`

func scanGroup(row rowScanner) (*models.Group, error) {
	g := &models.Group{}
	var parent sql.NullInt64
	if err := row.Scan(
		&g.ID, &g.Name, &g.Code, &g.Hierarchy, &g.OrganizationID, &parent,
		&g.SubGroupsCount, &g.UsersCount, &g.CreatedAt, &g.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if parent.Valid {
		id := int(parent.Int64)
		g.ParentGroupID = &id
	}
	g.SubGroups = []models.SubGroup{}
	return g, nil
}

// subtreeDepths walks the subtree under $1 assigning depth from its parent.
const subtreeDepths = `
	WITH RECURSIVE tree AS (
		SELECT g.id,
		       COALESCE((SELECT p.hierarchy FROM groups p WHERE p.id = g.parent_group_id), 0) + 1 AS depth
		FROM groups g
		WHERE g.id = $1
		UNION ALL
		SELECT c.id, t.depth + 1
		FROM groups c
		JOIN tree t ON c.parent_group_id = t.id
	)`

// Create inserts g with hierarchy derived from its parent.
func (r *groupRepository) Create(ctx context.Context, g *models.Group) error {
	const q = `
		INSERT INTO groups (name, code, hierarchy, organization_id, parent_group_id, created_by, updated_by)
		VALUES ($1, $2,
		        COALESCE((SELECT p.hierarchy FROM groups p WHERE p.id = $4), 0) + 1,
		        $3, $4, $5, $5)
		RETURNING id, hierarchy, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, q, g.Name, g.Code, g.OrganizationID, g.ParentGroupID, g.CreatedBy).
		Scan(&g.ID, &g.Hierarchy, &g.CreatedAt, &g.UpdatedAt)
	if g.SubGroups == nil {
		g.SubGroups = []models.SubGroup{}
	}
	return translate("group create", err)
}

func (r *groupRepository) GetByID(ctx context.Context, id int) (*models.Group, error) {
	q := `SELECT ` + groupColumns + ` FROM groups g WHERE g.id = $1 AND g.is_deleted = FALSE`
	g, err := scanGroup(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, translate("group get", err)
	}
	if err := r.attachSubGroups(ctx, []*models.Group{g}); err != nil {
		return nil, err
	}
	return g, nil
}

func (r *groupRepository) List(ctx context.Context, filter models.GroupFilter, sq *search.Query, order string, limit, offset int) ([]*models.Group, int, error) {
	w := &where{}
	w.and("g.is_deleted = FALSE")
	if filter.OrganizationID != nil {
		w.and("g.organization_id = " + w.bind(*filter.OrganizationID))
	}
	if filter.Hierarchy != nil {
		w.and("g.hierarchy = " + w.bind(*filter.Hierarchy))
	}
	if len(filter.IDs) > 0 {
		ids := make([]int64, 0, len(filter.IDs))
		for _, id := range filter.IDs {
			ids = append(ids, int64(id))
		}
		w.and("g.id = ANY(" + w.bind(pq.Array(ids)) + ")")
	}
	w.search(sq)

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM groups g`+w.sql(), w.args...).Scan(&count); err != nil {
		return nil, 0, translate("group count", err)
	}

	if order == "" {
		order = "g.id"
	}
	q := `SELECT ` + groupColumns + ` FROM groups g` + w.sql() +
		` ORDER BY ` + order + ` LIMIT ` + w.bind(limit) + ` OFFSET ` + w.bind(offset)
	rows, err := r.db.QueryContext(ctx, q, w.args...)
	if err != nil {
		return nil, 0, translate("group list", err)
	}
	defer rows.Close()

	var out []*models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, 0, translate("group scan", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, translate("group rows", err)
	}
	if err := r.attachSubGroups(ctx, out); err != nil {
		return nil, 0, err
	}
	return out, count, nil
}

// attachSubGroups loads the direct children of groups in one query.
func (r *groupRepository) attachSubGroups(ctx context.Context, groups []*models.Group) error {
	if len(groups) == 0 {
		return nil
	}
	byID := make(map[int]*models.Group, len(groups))
	ids := make([]int64, 0, len(groups))
	for _, g := range groups {
		byID[g.ID] = g
		ids = append(ids, int64(g.ID))
	}

	q := `SELECT ` + groupColumns + ` FROM groups g
		WHERE g.parent_group_id = ANY($1) AND g.is_deleted = FALSE
		ORDER BY g.id`
	rows, err := r.db.QueryContext(ctx, q, pq.Array(ids))
	if err != nil {
		return translate("group sub groups", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanGroup(rows)
		if err != nil {
			return translate("group sub group scan", err)
		}
		if c.ParentGroupID == nil {
			continue
		}
		if parent, ok := byID[*c.ParentGroupID]; ok {
			parent.SubGroups = append(parent.SubGroups, models.SubGroup{
				ID:             c.ID,
				Name:           c.Name,
				Code:           c.Code,
				Hierarchy:      c.Hierarchy,
				SubGroupsCount: c.SubGroupsCount,
				UsersCount:     c.UsersCount,
			})
		}
	}
	return translate("group sub group rows", rows.Err())
}

// Update saves name, code and parent, then recomputes the hierarchy of the
// moved subtree in the same transaction.
func (r *groupRepository) Update(ctx context.Context, g *models.Group, updatedBy int) error {
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		const q = `
			UPDATE groups
			SET name = $2, code = $3, parent_group_id = $4, updated_by = $5, updated_at = NOW()
			WHERE id = $1 AND is_deleted = FALSE`
		res, err := tx.ExecContext(ctx, q, g.ID, g.Name, g.Code, g.ParentGroupID, updatedBy)
		if err != nil {
			return translate("group update", err)
		}
		if err := expectOne("group update", res); err != nil {
			return err
		}
		return r.RecomputeHierarchy(ctx, tx, g.ID)
	})
}

func (r *groupRepository) Delete(ctx context.Context, id int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return translate("group delete", err)
	}
	return expectOne("group delete", res)
}

func (r *groupRepository) IsAncestorOrSelf(ctx context.Context, ancestorID, groupID int) (bool, error) {
	const q = `
		WITH RECURSIVE chain AS (
			SELECT id, parent_group_id FROM groups WHERE id = $1
			UNION
			SELECT p.id, p.parent_group_id FROM groups p JOIN chain c ON p.id = c.parent_group_id
		)
		SELECT EXISTS (SELECT 1 FROM chain WHERE id = $2)`
	var ok bool
	err := r.db.QueryRowContext(ctx, q, groupID, ancestorID).Scan(&ok)
	return ok, translate("group ancestry", err)
}

func (r *groupRepository) RecomputeHierarchy(ctx context.Context, tx DBTX, rootID int) error {
	q := subtreeDepths + `
		UPDATE groups g SET hierarchy = tree.depth
		FROM tree
		WHERE g.id = tree.id AND g.hierarchy <> tree.depth`
	_, err := tx.ExecContext(ctx, q, rootID)
	return translate("group recompute hierarchy", err)
}

// RecomputeAllHierarchies rewrites every stored hierarchy from the parent
// chain and returns the number of corrected groups.
func (r *groupRepository) RecomputeAllHierarchies(ctx context.Context) (int64, error) {
	const q = `
		WITH RECURSIVE tree AS (
			SELECT id, 1 AS depth FROM groups WHERE parent_group_id IS NULL
			UNION ALL
			SELECT c.id, t.depth + 1 FROM groups c JOIN tree t ON c.parent_group_id = t.id
		)
		UPDATE groups g SET hierarchy = tree.depth
		FROM tree
		WHERE g.id = tree.id AND g.hierarchy <> tree.depth`
	res, err := r.db.ExecContext(ctx, q)
	if err != nil {
		return 0, translate("group recompute all", err)
	}
	n, err := res.RowsAffected()
	return n, translate("group recompute all", err)
}
