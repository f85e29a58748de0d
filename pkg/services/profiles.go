package services

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/sheetsmith/sheetsmith-engine/pkg/models"
	"github.com/sheetsmith/sheetsmith-engine/pkg/repositories"
)

// ErrProfileNameRequired is returned when a profile has no name.
var ErrProfileNameRequired = errors.New("profile name is required")

// ProfileService manages data profiles.
type ProfileService interface {
	List(ctx context.Context, orgID int64) ([]*models.DataProfile, error)

	// Create stores a profile. A bound table must be in the organization's
	// catalog.
	Create(ctx context.Context, p *models.DataProfile) error
}

type profileService struct {
	profiles repositories.DataProfileRepository
	catalog  CatalogService
	logger   *zap.Logger
}

var _ ProfileService = (*profileService)(nil)

// NewProfileService creates a profile service.
func NewProfileService(profiles repositories.DataProfileRepository, catalog CatalogService, logger *zap.Logger) ProfileService {
	return &profileService{profiles: profiles, catalog: catalog, logger: logger.Named("profiles")}
}

func (s *profileService) List(ctx context.Context, orgID int64) ([]*models.DataProfile, error) {
	return s.profiles.List(ctx, orgID)
}

func (s *profileService) Create(ctx context.Context, p *models.DataProfile) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return ErrProfileNameRequired
	}
	if p.TableName != nil {
		if *p.TableName == "" {
			p.TableName = nil
		} else if _, err := s.catalog.FindTable(ctx, p.OrganizationID, *p.TableName); err != nil {
			return err
		}
	}
	if err := s.profiles.Create(ctx, p); err != nil {
		return err
	}
	s.logger.Info("Created data profile",
		zap.String("name", p.Name),
		zap.Int64("organization_id", p.OrganizationID))
	return nil
}
