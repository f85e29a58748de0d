package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sheetsmith/sheetsmith-engine/pkg/apperrors"
	"github.com/sheetsmith/sheetsmith-engine/pkg/database"
	"github.com/sheetsmith/sheetsmith-engine/pkg/models"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// DataProfileRepository stores extraction templates per organization.
type DataProfileRepository interface {
	// Create inserts a profile. A duplicate name within the organization
	// returns apperrors.ErrConflict.
	Create(ctx context.Context, p *models.DataProfile) error

	// GetByName returns a profile or apperrors.ErrNotFound.
	GetByName(ctx context.Context, orgID int64, name string) (*models.DataProfile, error)

	// List returns the organization's profiles ordered by name.
	List(ctx context.Context, orgID int64) ([]*models.DataProfile, error)
}

type dataProfileRepository struct{}

// NewDataProfileRepository creates a new DataProfileRepository.
func NewDataProfileRepository() DataProfileRepository {
	return &dataProfileRepository{}
}

var _ DataProfileRepository = (*dataProfileRepository)(nil)

func (r *dataProfileRepository) Create(ctx context.Context, p *models.DataProfile) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO engine_data_profiles (name, organization_id, instructions, table_name)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		p.Name, p.OrganizationID, p.Instructions, p.TableName,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create data profile: %w", err)
	}
	return nil
}

func (r *dataProfileRepository) GetByName(ctx context.Context, orgID int64, name string) (*models.DataProfile, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `
		SELECT id, name, organization_id, instructions, table_name, created_at
		FROM engine_data_profiles
		WHERE organization_id = $1 AND name = $2`, orgID, name)

	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get data profile: %w", err)
	}
	return p, nil
}

func (r *dataProfileRepository) List(ctx context.Context, orgID int64) ([]*models.DataProfile, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, name, organization_id, instructions, table_name, created_at
		FROM engine_data_profiles
		WHERE organization_id = $1
		ORDER BY name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list data profiles: %w", err)
	}
	defer rows.Close()

	var out []*models.DataProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan data profile: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating data profiles: %w", err)
	}
	return out, nil
}

func scanProfile(row pgx.Row) (*models.DataProfile, error) {
	var p models.DataProfile
	if err := row.Scan(&p.ID, &p.Name, &p.OrganizationID, &p.Instructions, &p.TableName, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
