package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TenantScope is a pooled connection bound to one organization for the
// lifetime of a request. Tables are shared across organizations, so the
// organization ID is what repositories filter the catalog by.
type TenantScope struct {
	Conn           *pgxpool.Conn
	OrganizationID int64
}

// Close releases the connection to the pool.
func (s *TenantScope) Close() {
	if s.Conn == nil {
		return
	}
	s.Conn.Release()
	s.Conn = nil
}

// WithTenant acquires a connection scoped to the given organization.
// The returned TenantScope MUST be closed with defer scope.Close().
func (db *DB) WithTenant(ctx context.Context, organizationID int64) (*TenantScope, error) {
	if organizationID <= 0 {
		return nil, fmt.Errorf("invalid organization id %d", organizationID)
	}
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &TenantScope{Conn: conn, OrganizationID: organizationID}, nil
}

// WithoutTenant acquires a connection with no organization attached.
// Background jobs that span every organization use this.
func (db *DB) WithoutTenant(ctx context.Context) (*TenantScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &TenantScope{Conn: conn}, nil
}
