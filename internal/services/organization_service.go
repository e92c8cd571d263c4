package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"ricauth/internal/models"
	"ricauth/internal/repositories"
	"ricauth/internal/utils"
)

type OrganizationService interface {
	List(ctx context.Context, filter models.OrganizationFilter, limit, offset int) ([]*models.Organization, int, error)
	Get(ctx context.Context, id int) (*models.Organization, error)
	Create(ctx context.Context, caller Caller, name string) (*models.Organization, error)
	Delete(ctx context.Context, id int) error
}

type organizationService struct {
	repo repositories.OrganizationRepository
	log  *logrus.Entry
	now  func() time.Time
}

func NewOrganizationService(repo repositories.OrganizationRepository, log *logrus.Entry) OrganizationService {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &organizationService{repo: repo, log: log, now: time.Now}
}

func (s *organizationService) List(ctx context.Context, filter models.OrganizationFilter, limit, offset int) ([]*models.Organization, int, error) {
	return s.repo.List(ctx, filter, limit, offset)
}

func (s *organizationService) Get(ctx context.Context, id int) (*models.Organization, error) {
	return s.repo.GetByID(ctx, id)
}

// Create derives the slug from name. A taken slug gets the day ordinal of
// today appended.
func (s *organizationService) Create(ctx context.Context, caller Caller, name string) (*models.Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Msg: "This field may not be blank."}
	}

	slug := utils.Slugify(name)
	taken, err := s.repo.SlugExists(ctx, slug)
	if err != nil {
		return nil, err
	}
	if taken {
		slug += strconv.Itoa(utils.DateOrdinal(s.now()))
	}

	createdBy := caller.UserID
	org := &models.Organization{Name: name, Slug: slug, CreatedBy: &createdBy}
	if err := s.repo.Create(ctx, org); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"organization_id": org.ID, "slug": slug}).Info("[organization][create] created")
	return org, nil
}

func (s *organizationService) Delete(ctx context.Context, id int) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.WithField("organization_id", id).Info("[organization][delete] deleted")
	return nil
}
