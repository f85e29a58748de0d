package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sheetsmith/sheetsmith-engine/pkg/apperrors"
	"github.com/sheetsmith/sheetsmith-engine/pkg/database"
	"github.com/sheetsmith/sheetsmith-engine/pkg/models"
)

// TableDescriptorRepository is the catalog of managed tables and the
// organizations allowed to write to them.
type TableDescriptorRepository interface {
	// GetAll returns every descriptor ordered by table name.
	GetAll(ctx context.Context) ([]*models.TableDescriptor, error)

	// ListForOrganization returns the descriptors granted to orgID.
	ListForOrganization(ctx context.Context, orgID int64) ([]*models.TableDescriptor, error)

	// Get returns one descriptor or apperrors.ErrNotFound.
	Get(ctx context.Context, tableName string) (*models.TableDescriptor, error)

	// Upsert inserts or replaces the descriptor keyed by table name. A non-nil
	// grant is written in the same transaction.
	Upsert(ctx context.Context, desc *models.TableDescriptor, grant *models.OrganizationTable) error

	// Delete removes the descriptor and every organization grant for it.
	Delete(ctx context.Context, tableName string) error
}

type tableDescriptorRepository struct{}

// NewTableDescriptorRepository creates a new TableDescriptorRepository.
func NewTableDescriptorRepository() TableDescriptorRepository {
	return &tableDescriptorRepository{}
}

var _ TableDescriptorRepository = (*tableDescriptorRepository)(nil)

const descriptorColumns = `m.table_name, m.create_statement, m.description, m.created_at, m.updated_at`

func (r *tableDescriptorRepository) GetAll(ctx context.Context) ([]*models.TableDescriptor, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT `+descriptorColumns+`
		FROM engine_table_metadata m
		ORDER BY m.table_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list table metadata: %w", err)
	}
	return collectDescriptors(rows)
}

func (r *tableDescriptorRepository) ListForOrganization(ctx context.Context, orgID int64) ([]*models.TableDescriptor, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT `+descriptorColumns+`
		FROM engine_table_metadata m
		JOIN engine_organization_tables o ON o.table_name = m.table_name
		WHERE o.organization_id = $1
		ORDER BY m.table_name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organization tables: %w", err)
	}
	return collectDescriptors(rows)
}

func (r *tableDescriptorRepository) Get(ctx context.Context, tableName string) (*models.TableDescriptor, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `
		SELECT `+descriptorColumns+`
		FROM engine_table_metadata m
		WHERE m.table_name = $1`, tableName)

	d, err := scanDescriptor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get table metadata: %w", err)
	}
	return d, nil
}

func (r *tableDescriptorRepository) Upsert(ctx context.Context, desc *models.TableDescriptor, grant *models.OrganizationTable) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	now := time.Now().UTC()
	err = tx.QueryRow(ctx, `
		INSERT INTO engine_table_metadata (table_name, create_statement, description, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (table_name)
		DO UPDATE SET
			create_statement = EXCLUDED.create_statement,
			description = EXCLUDED.description,
			updated_at = $4
		RETURNING created_at, updated_at`,
		desc.TableName, desc.CreateStatement, desc.Description, now,
	).Scan(&desc.CreatedAt, &desc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert table metadata: %w", err)
	}

	if grant != nil {
		grant.TableName = desc.TableName
		err = tx.QueryRow(ctx, `
			INSERT INTO engine_organization_tables (organization_id, table_name, alias, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (organization_id, table_name)
			DO UPDATE SET alias = COALESCE(EXCLUDED.alias, engine_organization_tables.alias)
			RETURNING created_at`,
			grant.OrganizationID, grant.TableName, grant.Alias, now,
		).Scan(&grant.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to grant table to organization: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit table metadata: %w", err)
	}
	return nil
}

func (r *tableDescriptorRepository) Delete(ctx context.Context, tableName string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	if _, err := tx.Exec(ctx, `DELETE FROM engine_organization_tables WHERE table_name = $1`, tableName); err != nil {
		return fmt.Errorf("failed to delete organization grants: %w", err)
	}

	result, err := tx.Exec(ctx, `DELETE FROM engine_table_metadata WHERE table_name = $1`, tableName)
	if err != nil {
		return fmt.Errorf("failed to delete table metadata: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit table metadata delete: %w", err)
	}
	return nil
}

func collectDescriptors(rows pgx.Rows) ([]*models.TableDescriptor, error) {
	defer rows.Close()

	var out []*models.TableDescriptor
	for rows.Next() {
		d, err := scanDescriptor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table metadata: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating table metadata: %w", err)
	}
	return out, nil
}

func scanDescriptor(row pgx.Row) (*models.TableDescriptor, error) {
	var d models.TableDescriptor
	if err := row.Scan(&d.TableName, &d.CreateStatement, &d.Description, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}
