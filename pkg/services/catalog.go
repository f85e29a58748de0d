package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/sheetsmith/sheetsmith-engine/pkg/apperrors"
	"github.com/sheetsmith/sheetsmith-engine/pkg/models"
	"github.com/sheetsmith/sheetsmith-engine/pkg/repositories"
	"github.com/sheetsmith/sheetsmith-engine/pkg/warehouse"
)

// Warehouse is the live database the uploaded tables live in.
type Warehouse interface {
	ListTableNames(ctx context.Context) ([]string, error)
	TableColumns(ctx context.Context, table string) ([]warehouse.Column, error)
	ExecDDL(ctx context.Context, statement string) error
	AppendRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
	DropTable(ctx context.Context, table string) error
}

var _ Warehouse = (*warehouse.Executor)(nil)

// ReconcileReport summarizes one catalog reconciliation pass.
type ReconcileReport struct {
	// Stale lists descriptors whose table is missing from the live schema.
	// They stay in the store until an administrator drops them.
	Stale []string
	// Untracked lists live tables with no descriptor.
	Untracked []string
}

// CatalogService joins the metadata store with the live warehouse schema.
// The live schema decides which tables exist; the store supplies their
// statements and descriptions.
type CatalogService interface {
	// OrganizationCatalog returns the organization's descriptors whose table
	// still exists, in table name order.
	OrganizationCatalog(ctx context.Context, orgID int64) ([]*models.TableDescriptor, error)

	// FindTable returns the organization's descriptor for table, or
	// apperrors.ErrNotFound.
	FindTable(ctx context.Context, orgID int64, table string) (*models.TableDescriptor, error)

	// DropTable removes a table's descriptor, its organization grants and the
	// live table.
	DropTable(ctx context.Context, table string) error

	// Reconcile reports descriptors whose table is missing and live tables
	// that have no descriptor. It never modifies the store.
	Reconcile(ctx context.Context) (*ReconcileReport, error)
}

type catalogService struct {
	descriptors repositories.TableDescriptorRepository
	warehouse   Warehouse
	logger      *zap.Logger
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService creates a catalog service.
func NewCatalogService(descriptors repositories.TableDescriptorRepository, wh Warehouse, logger *zap.Logger) CatalogService {
	return &catalogService{
		descriptors: descriptors,
		warehouse:   wh,
		logger:      logger.Named("catalog"),
	}
}

func (s *catalogService) OrganizationCatalog(ctx context.Context, orgID int64) ([]*models.TableDescriptor, error) {
	descs, err := s.descriptors.ListForOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organization tables: %w", err)
	}
	live, err := s.liveSet(ctx)
	if err != nil {
		return nil, err
	}

	out := descs[:0]
	for _, d := range descs {
		if live[d.TableName] {
			out = append(out, d)
			continue
		}
		s.logger.Debug("Skipping descriptor without live table",
			zap.String("table", d.TableName),
			zap.Int64("organization_id", orgID))
	}
	return out, nil
}

func (s *catalogService) FindTable(ctx context.Context, orgID int64, table string) (*models.TableDescriptor, error) {
	descs, err := s.OrganizationCatalog(ctx, orgID)
	if err != nil {
		return nil, err
	}
	for _, d := range descs {
		if d.TableName == table {
			return d, nil
		}
	}
	return nil, fmt.Errorf("table %q: %w", table, apperrors.ErrNotFound)
}

func (s *catalogService) DropTable(ctx context.Context, table string) error {
	if err := s.descriptors.Delete(ctx, table); err != nil {
		return err
	}
	if err := s.warehouse.DropTable(ctx, table); err != nil {
		s.logger.Error("Descriptor removed but live table drop failed",
			zap.String("table", table),
			zap.Error(err))
		return fmt.Errorf("failed to drop table %q: %w", table, err)
	}
	s.logger.Info("Dropped table", zap.String("table", table))
	return nil
}

func (s *catalogService) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	descs, err := s.descriptors.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load descriptors: %w", err)
	}
	live, err := s.liveSet(ctx)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{}
	tracked := make(map[string]bool, len(descs))
	for _, d := range descs {
		tracked[d.TableName] = true
		if !live[d.TableName] {
			report.Stale = append(report.Stale, d.TableName)
		}
	}
	for name := range live {
		if !tracked[name] {
			report.Untracked = append(report.Untracked, name)
		}
	}
	slices.Sort(report.Untracked)
	return report, nil
}

func (s *catalogService) liveSet(ctx context.Context) (map[string]bool, error) {
	names, err := s.warehouse.ListTableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list live tables: %w", err)
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}

// RenderForLLM formats descriptors as the catalog text the routing persona
// reads: three lines per table, no blank lines.
func RenderForLLM(descs []*models.TableDescriptor) string {
	lines := make([]string, 0, len(descs)*3)
	for _, d := range descs {
		lines = append(lines,
			"Table: "+d.TableName,
			"Create Statement: "+d.CreateStatement,
			"Description: "+d.Description,
		)
	}
	return strings.Join(lines, "\n")
}
