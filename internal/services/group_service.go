package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"ricauth/internal/models"
	"ricauth/internal/repositories"
	"ricauth/internal/search"
)

type GroupService interface {
	List(ctx context.Context, filter models.GroupFilter, q *search.Query, order string, limit, offset int) ([]*models.Group, int, error)
	Get(ctx context.Context, id int) (*models.Group, error)
	Create(ctx context.Context, caller Caller, req models.CreateGroupRequest) (*models.Group, error)
	Update(ctx context.Context, caller Caller, id int, req models.UpdateGroupRequest) (*models.Group, error)
	Delete(ctx context.Context, id int) error

	AddMember(ctx context.Context, caller Caller, groupID int, req models.CreateMembershipRequest) (*models.Membership, error)
	RemoveMember(ctx context.Context, groupID, membershipID int) error
	Members(ctx context.Context, groupID int) ([]*models.Membership, error)

	// RecomputeHierarchies rewrites every stored depth from the parent chain.
	RecomputeHierarchies(ctx context.Context) (int64, error)
}

type groupService struct {
	groups  repositories.GroupRepository
	members repositories.MembershipRepository
	roles   repositories.RoleRepository
	users   repositories.UserRepository
	log     *logrus.Entry
}

func NewGroupService(
	groups repositories.GroupRepository,
	members repositories.MembershipRepository,
	roles repositories.RoleRepository,
	users repositories.UserRepository,
	log *logrus.Entry,
) GroupService {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &groupService{groups: groups, members: members, roles: roles, users: users, log: log}
}

func (s *groupService) List(ctx context.Context, filter models.GroupFilter, q *search.Query, order string, limit, offset int) ([]*models.Group, int, error) {
	return s.groups.List(ctx, filter, q, order, limit, offset)
}

func (s *groupService) Get(ctx context.Context, id int) (*models.Group, error) {
	return s.groups.GetByID(ctx, id)
}

// checkParent verifies that parentID exists in organizationID.
func (s *groupService) checkParent(ctx context.Context, parentID, organizationID int) error {
	parent, err := s.groups.GetByID(ctx, parentID)
	if err != nil {
		return err
	}
	if parent.OrganizationID != organizationID {
		return ErrParentOrganization
	}
	return nil
}

func (s *groupService) Create(ctx context.Context, caller Caller, req models.CreateGroupRequest) (*models.Group, error) {
	if req.ParentGroupID != nil {
		if err := s.checkParent(ctx, *req.ParentGroupID, req.OrganizationID); err != nil {
			return nil, err
		}
	}
	createdBy := caller.UserID
	g := &models.Group{
		Name:           req.Name,
		Code:           req.Code,
		OrganizationID: req.OrganizationID,
		ParentGroupID:  req.ParentGroupID,
		CreatedBy:      &createdBy,
	}
	if err := s.groups.Create(ctx, g); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"group_id": g.ID, "hierarchy": g.Hierarchy}).Info("[group][create] created")
	return g, nil
}

func (s *groupService) Update(ctx context.Context, caller Caller, id int, req models.UpdateGroupRequest) (*models.Group, error) {
	g, err := s.groups.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		g.Name = *req.Name
	}
	if req.Code != nil {
		g.Code = *req.Code
	}
	switch {
	case req.DetachParent:
		g.ParentGroupID = nil
	case req.ParentGroupID != nil:
		parentID := *req.ParentGroupID
		if err := s.checkParent(ctx, parentID, g.OrganizationID); err != nil {
			return nil, err
		}
		// the new parent must not sit inside the moved subtree
		cycle, err := s.groups.IsAncestorOrSelf(ctx, id, parentID)
		if err != nil {
			return nil, err
		}
		if cycle {
			return nil, ErrGroupCycle
		}
		g.ParentGroupID = &parentID
	}

	if err := s.groups.Update(ctx, g, caller.UserID); err != nil {
		return nil, err
	}
	s.log.WithField("group_id", id).Info("[group][update] updated")
	return s.groups.GetByID(ctx, id)
}

func (s *groupService) Delete(ctx context.Context, id int) error {
	if err := s.groups.Delete(ctx, id); err != nil {
		return err
	}
	s.log.WithField("group_id", id).Info("[group][delete] deleted")
	return nil
}

func (s *groupService) AddMember(ctx context.Context, caller Caller, groupID int, req models.CreateMembershipRequest) (*models.Membership, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	role, err := s.roles.GetByID(ctx, req.RoleID)
	if err != nil {
		return nil, err
	}
	if role.OrganizationID != g.OrganizationID {
		return nil, ErrRoleOrganization
	}
	if _, err := s.users.GetByID(ctx, req.UserID); err != nil {
		return nil, err
	}

	createdBy := caller.UserID
	m := &models.Membership{UserID: req.UserID, GroupID: groupID, RoleID: req.RoleID, CreatedBy: &createdBy}
	if err := s.members.Create(ctx, m); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"group_id": groupID, "user_id": req.UserID, "role_id": req.RoleID}).
		Info("[group][member] added")
	return m, nil
}

func (s *groupService) RemoveMember(ctx context.Context, groupID, membershipID int) error {
	return s.members.Delete(ctx, groupID, membershipID)
}

func (s *groupService) Members(ctx context.Context, groupID int) ([]*models.Membership, error) {
	if _, err := s.groups.GetByID(ctx, groupID); err != nil {
		return nil, err
	}
	return s.members.ListByGroup(ctx, groupID)
}

func (s *groupService) RecomputeHierarchies(ctx context.Context) (int64, error) {
	n, err := s.groups.RecomputeAllHierarchies(ctx)
	if err != nil {
		return 0, err
	}
	s.log.WithField("corrected", n).Info("[group][hierarchy] recomputed")
	return n, nil
}
