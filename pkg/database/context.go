package database

import "context"

type contextKey string

// TenantScopeKey is the context key for the request's scoped connection.
const TenantScopeKey contextKey = "tenantScope"

// GetTenantScope retrieves the scoped connection from context.
func GetTenantScope(ctx context.Context) (*TenantScope, bool) {
	scope, ok := ctx.Value(TenantScopeKey).(*TenantScope)
	return scope, ok && scope != nil
}

// SetTenantScope stores the scoped connection in context.
func SetTenantScope(ctx context.Context, scope *TenantScope) context.Context {
	return context.WithValue(ctx, TenantScopeKey, scope)
}

// ScopeProvider opens scoped contexts for code that runs outside a request.
type ScopeProvider struct {
	db *DB
}

// NewScopeProvider creates a ScopeProvider for the given database.
func NewScopeProvider(db *DB) *ScopeProvider {
	return &ScopeProvider{db: db}
}

// WithoutTenant returns a context carrying an unscoped connection.
// The cleanup function must be called when the context is no longer used.
func (p *ScopeProvider) WithoutTenant(ctx context.Context) (context.Context, func(), error) {
	scope, err := p.db.WithoutTenant(ctx)
	if err != nil {
		return nil, nil, err
	}
	return SetTenantScope(ctx, scope), scope.Close, nil
}
