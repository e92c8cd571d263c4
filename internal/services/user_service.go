package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"ricauth/internal/authz"
	"ricauth/internal/models"
	"ricauth/internal/repositories"
	"ricauth/internal/search"
)

// Caller is the authenticated principal taken from the access token.
type Caller struct {
	UserID         int
	OrganizationID int
	IsStaff        bool
}

// AvatarSampleSize caps the random same-group avatar sample.
const AvatarSampleSize = 6

type UserService interface {
	ListUsers(ctx context.Context, caller Caller, filter models.UserFilter, q *search.Query, order string, limit, offset int) ([]*models.User, int, error)
	GetUser(ctx context.Context, caller Caller, id int) (*models.User, error)
	UpdateUser(ctx context.Context, caller Caller, id int, upd models.UserUpdate) (*models.User, error)
	RandomAvatars(ctx context.Context, caller Caller) ([]models.AvatarResponse, error)
	CreateUserWithPassword(ctx context.Context, user *models.User, plainPassword string) error
}

type userService struct {
	repo  repositories.UserRepository
	roles repositories.RoleRepository
	auth  AuthService
	log   *logrus.Entry
}

func NewUserService(repo repositories.UserRepository, roles repositories.RoleRepository, auth AuthService, log *logrus.Entry) UserService {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &userService{repo: repo, roles: roles, auth: auth, log: log}
}

// ListUsers applies the same visibility as GetUser: callers that are not
// staff and lack the registration-info permission only see their own
// organization.
func (s *userService) ListUsers(ctx context.Context, caller Caller, filter models.UserFilter, q *search.Query, order string, limit, offset int) ([]*models.User, int, error) {
	if !caller.IsStaff {
		ok, err := s.hasPermission(ctx, caller, authz.PermReadUserRegistrationInfo)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			org := caller.OrganizationID
			filter.ScopeOrganizationID = &org
		}
	}
	return s.repo.List(ctx, filter, q, order, limit, offset)
}

// hasPermission reports whether one of the caller's roles allows code.
func (s *userService) hasPermission(ctx context.Context, caller Caller, code int) (bool, error) {
	perms, err := s.roles.PermissionsForUser(ctx, caller.UserID)
	if err != nil {
		return false, err
	}
	return authz.Allows(perms, code), nil
}

func (s *userService) GetUser(ctx context.Context, caller Caller, id int) (*models.User, error) {
	if id == 0 {
		id = caller.UserID
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if id == caller.UserID || caller.IsStaff || user.OrganizationID == caller.OrganizationID {
		return user, nil
	}
	ok, err := s.hasPermission(ctx, caller, authz.PermReadUserRegistrationInfo)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}
	return user, nil
}

func (s *userService) UpdateUser(ctx context.Context, caller Caller, id int, upd models.UserUpdate) (*models.User, error) {
	if id == 0 {
		id = caller.UserID
	}
	if id != caller.UserID && !caller.IsStaff {
		ok, err := s.hasPermission(ctx, caller, authz.PermEditUserRegistrationInfo)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrForbidden
		}
	}

	if upd.Bio != nil {
		bio := flattenLines(*upd.Bio)
		upd.Bio = &bio
	}
	if err := s.repo.UpdateProfile(ctx, id, upd, caller.UserID); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": id, "updated_by": caller.UserID}).Info("[user][update] profile updated")
	return s.repo.GetByID(ctx, id)
}

// flattenLines turns carriage returns and newlines into spaces.
func flattenLines(s string) string {
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}

func (s *userService) RandomAvatars(ctx context.Context, caller Caller) ([]models.AvatarResponse, error) {
	return s.repo.SameGroupAvatars(ctx, caller.UserID, AvatarSampleSize)
}

func (s *userService) CreateUserWithPassword(ctx context.Context, user *models.User, plainPassword string) error {
	if strings.TrimSpace(plainPassword) == "" {
		return &ValidationError{Msg: "password is required"}
	}
	hash, err := s.auth.HashPassword(plainPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.Email = normalizeEmail(user.Email)
	if err := s.repo.Create(ctx, user); err != nil {
		return fmt.Errorf("create user %q: %w", user.Username, err)
	}
	s.log.WithField("user_id", user.ID).Info("[user][create] user created")
	return nil
}
