package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"ricauth/internal/models"
	"ricauth/internal/outbox"
	"ricauth/internal/repositories"
	"ricauth/internal/search"
)

var errNotImplemented = errors.New("not implemented in fake")

func quietLog() *logrus.Entry {
	l, _ := test.NewNullLogger()
	return logrus.NewEntry(l)
}

// txDB returns a sqlmock database expecting n committed transactions.
func txDB(t *testing.T, n int) *sql.DB {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db
}

type fakeUserRepo struct {
	mu       sync.Mutex
	users    map[int]*models.User
	refresh  map[string]int
	logins   map[int]int
	updErr   error
	profiles []models.UserUpdate
}

func newFakeUserRepo(users ...*models.User) *fakeUserRepo {
	r := &fakeUserRepo{users: map[int]*models.User{}, refresh: map[string]int{}, logins: map[int]int{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.ID = len(r.users) + 1
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == login || (u.Email != "" && strings.EqualFold(u.Email, login)) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeUserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

// List honours the organization filters only; results are ordered by id.
func (r *fakeUserRepo) List(ctx context.Context, filter models.UserFilter, q *search.Query, order string, limit, offset int) ([]*models.User, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.User
	for _, u := range r.users {
		if filter.OrganizationID != nil && u.OrganizationID != *filter.OrganizationID {
			continue
		}
		if filter.ScopeOrganizationID != nil && u.OrganizationID != *filter.ScopeOrganizationID {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	count := len(out)
	if offset >= count {
		return []*models.User{}, count, nil
	}
	end := offset + limit
	if end > count {
		end = count
	}
	return out[offset:end], count, nil
}

func (r *fakeUserRepo) UpdateProfile(ctx context.Context, id int, upd models.UserUpdate, updatedBy int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repositories.ErrNotFound
	}
	r.profiles = append(r.profiles, upd)
	if upd.Bio != nil {
		u.Bio = upd.Bio
	}
	if upd.Avatar != nil {
		u.Avatar = upd.Avatar
	}
	return nil
}

func (r *fakeUserRepo) UpdateEmail(ctx context.Context, tx repositories.DBTX, id int, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updErr != nil {
		return r.updErr
	}
	u, ok := r.users[id]
	if !ok {
		return repositories.ErrNotFound
	}
	u.Email = email
	return nil
}

func (r *fakeUserRepo) UpdatePassword(ctx context.Context, tx repositories.DBTX, id int, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repositories.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (r *fakeUserRepo) RecordLogin(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins[id]++
	return nil
}

func (r *fakeUserRepo) SameGroupAvatars(ctx context.Context, userID, limit int) ([]models.AvatarResponse, error) {
	return []models.AvatarResponse{}, nil
}

func (r *fakeUserRepo) UpdateRefresh(ctx context.Context, userID int, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refresh[token] = userID
	return nil
}

func (r *fakeUserRepo) RotateRefresh(ctx context.Context, oldToken, newToken string, newExpiresAt time.Time) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.refresh[oldToken]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	delete(r.refresh, oldToken)
	r.refresh[newToken] = id
	cp := *r.users[id]
	return &cp, nil
}

func (r *fakeUserRepo) ClearRefresh(ctx context.Context, userID int) error {
	return errNotImplemented
}

func (r *fakeUserRepo) GetByRefreshToken(ctx context.Context, token string) (*models.User, error) {
	return nil, errNotImplemented
}

// fakeEmailChangeRepo mirrors the conditional updates of the SQL repository.
type fakeEmailChangeRepo struct {
	mu      sync.Mutex
	records map[int64]*models.EmailChange
	nextID  int64

	expireErr   error
	expireCalls int
}

func (r *fakeEmailChangeRepo) expireCallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expireCalls
}

func newFakeEmailChangeRepo() *fakeEmailChangeRepo {
	return &fakeEmailChangeRepo{records: map[int64]*models.EmailChange{}}
}

func (r *fakeEmailChangeRepo) Create(ctx context.Context, tx repositories.DBTX, ec *models.EmailChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	ec.ID = r.nextID
	ec.Status = models.EmailChangePending
	ec.CreatedAt = time.Now()
	cp := *ec
	r.records[ec.ID] = &cp
	return nil
}

func (r *fakeEmailChangeRepo) GetByID(ctx context.Context, id int64) (*models.EmailChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ec, ok := r.records[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *ec
	return &cp, nil
}

func (r *fakeEmailChangeRepo) GetActive(ctx context.Context, userID int, email, token string) (*models.EmailChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ec := range r.records {
		if ec.UserID == userID && ec.Email == email && ec.UUID == token && !ec.IsDeleted {
			cp := *ec
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeEmailChangeRepo) RegisterFailure(ctx context.Context, id int64, limit int) (models.EmailChangeStatus, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ec, ok := r.records[id]
	if !ok || ec.IsDeleted {
		return "", 0, repositories.ErrNotFound
	}
	ec.FailAttempt++
	if ec.FailAttempt >= limit {
		ec.Status = models.EmailChangeLockedOut
		ec.IsDeleted = true
	}
	return ec.Status, ec.FailAttempt, nil
}

func (r *fakeEmailChangeRepo) MarkVerified(ctx context.Context, tx repositories.DBTX, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ec, ok := r.records[id]
	if !ok || ec.IsDeleted {
		return repositories.ErrNotFound
	}
	ec.Status = models.EmailChangeVerified
	ec.IsDeleted = true
	return nil
}

func (r *fakeEmailChangeRepo) ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expireCalls++
	if r.expireErr != nil {
		return 0, r.expireErr
	}
	var n int64
	for _, ec := range r.records {
		if !ec.IsDeleted && ec.CreatedAt.Before(cutoff) {
			ec.Status = models.EmailChangeExpired
			ec.IsDeleted = true
			n++
		}
	}
	return n, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []outbox.Message
	err      error
}

func (p *fakePublisher) Enqueue(ctx context.Context, tx outbox.Execer, msg outbox.Message) (uuid.UUID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return uuid.Nil, p.err
	}
	p.messages = append(p.messages, msg)
	return uuid.New(), nil
}

type sentMail struct {
	To, Link, Code string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) SendEmailChangeVerification(ctx context.Context, to, link, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Link: link, Code: code})
	return nil
}

type fakeHistoryRepo struct {
	hashes map[int][]string
}

func (r *fakeHistoryRepo) Recent(ctx context.Context, userID, n int) ([]string, error) {
	h := r.hashes[userID]
	out := make([]string, 0, n)
	for i := len(h) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, h[i])
	}
	return out, nil
}

func (r *fakeHistoryRepo) Add(ctx context.Context, tx repositories.DBTX, userID int, hash string) error {
	if r.hashes == nil {
		r.hashes = map[int][]string{}
	}
	r.hashes[userID] = append(r.hashes[userID], hash)
	return nil
}

type fakeRoleRepo struct {
	roles map[int]*models.Role
	perms map[int][]models.RolePermission
}

func (r *fakeRoleRepo) GetByID(ctx context.Context, id int) (*models.Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return role, nil
}

func (r *fakeRoleRepo) RolesForUser(ctx context.Context, userID int) ([]models.Role, error) {
	return nil, nil
}

func (r *fakeRoleRepo) PermissionsForUser(ctx context.Context, userID int) ([]models.RolePermission, error) {
	return r.perms[userID], nil
}

type fakeGroupRepo struct {
	groups  map[int]*models.Group
	updated []*models.Group
}

func (r *fakeGroupRepo) Create(ctx context.Context, g *models.Group) error {
	g.ID = len(r.groups) + 1
	g.Hierarchy = 1
	if g.ParentGroupID != nil {
		g.Hierarchy = r.groups[*g.ParentGroupID].Hierarchy + 1
	}
	r.groups[g.ID] = g
	return nil
}

func (r *fakeGroupRepo) GetByID(ctx context.Context, id int) (*models.Group, error) {
	g, ok := r.groups[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (r *fakeGroupRepo) List(ctx context.Context, filter models.GroupFilter, q *search.Query, order string, limit, offset int) ([]*models.Group, int, error) {
	ids := make([]int, 0, len(r.groups))
	for id := range r.groups {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]*models.Group, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.groups[id])
	}
	return out, len(out), nil
}

func (r *fakeGroupRepo) Update(ctx context.Context, g *models.Group, updatedBy int) error {
	r.updated = append(r.updated, g)
	r.groups[g.ID] = g
	return nil
}

func (r *fakeGroupRepo) Delete(ctx context.Context, id int) error {
	delete(r.groups, id)
	return nil
}

func (r *fakeGroupRepo) IsAncestorOrSelf(ctx context.Context, ancestorID, groupID int) (bool, error) {
	for cur := groupID; ; {
		if cur == ancestorID {
			return true, nil
		}
		g, ok := r.groups[cur]
		if !ok || g.ParentGroupID == nil {
			return false, nil
		}
		cur = *g.ParentGroupID
	}
}

func (r *fakeGroupRepo) RecomputeHierarchy(ctx context.Context, tx repositories.DBTX, rootID int) error {
	return nil
}

func (r *fakeGroupRepo) RecomputeAllHierarchies(ctx context.Context) (int64, error) {
	return 0, nil
}

type fakeMembershipRepo struct {
	created []*models.Membership
}

func (r *fakeMembershipRepo) Create(ctx context.Context, m *models.Membership) error {
	m.ID = len(r.created) + 1
	r.created = append(r.created, m)
	return nil
}

func (r *fakeMembershipRepo) Delete(ctx context.Context, groupID, id int) error {
	return nil
}

func (r *fakeMembershipRepo) ListByGroup(ctx context.Context, groupID int) ([]*models.Membership, error) {
	return r.created, nil
}
