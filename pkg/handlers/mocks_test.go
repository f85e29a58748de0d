package handlers

import (
	"context"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sheetsmith/sheetsmith-engine/pkg/auth"
	"github.com/sheetsmith/sheetsmith-engine/pkg/models"
	"github.com/sheetsmith/sheetsmith-engine/pkg/services"
)

type mockIngestService struct {
	IngestFunc func(ctx context.Context, req *services.IngestRequest) (*services.IngestResult, error)
	last       *services.IngestRequest
}

func (m *mockIngestService) Ingest(ctx context.Context, req *services.IngestRequest) (*services.IngestResult, error) {
	m.last = req
	return m.IngestFunc(ctx, req)
}

type mockChatService struct {
	ReplyFunc        func(ctx context.Context, handle string, owner services.Owner, userInput string) (string, error)
	ClearHistoryFunc func(ctx context.Context, handle, userID string) (int64, error)
}

func (m *mockChatService) Reply(ctx context.Context, handle string, owner services.Owner, userInput string) (string, error) {
	return m.ReplyFunc(ctx, handle, owner, userInput)
}

func (m *mockChatService) ClearHistory(ctx context.Context, handle, userID string) (int64, error) {
	return m.ClearHistoryFunc(ctx, handle, userID)
}

type mockChartService struct {
	ConfigureFunc func(ctx context.Context, owner services.Owner, req *services.ChartRequest) (*services.ChartResult, error)
}

func (m *mockChartService) Configure(ctx context.Context, owner services.Owner, req *services.ChartRequest) (*services.ChartResult, error) {
	return m.ConfigureFunc(ctx, owner, req)
}

type mockExtractionService struct {
	ExtractFunc func(ctx context.Context, owner services.Owner, req *services.ExtractionRequest) (*services.ExtractionResult, error)
}

func (m *mockExtractionService) Extract(ctx context.Context, owner services.Owner, req *services.ExtractionRequest) (*services.ExtractionResult, error) {
	return m.ExtractFunc(ctx, owner, req)
}

type mockProfileService struct {
	ListFunc   func(ctx context.Context, orgID int64) ([]*models.DataProfile, error)
	CreateFunc func(ctx context.Context, p *models.DataProfile) error
}

func (m *mockProfileService) List(ctx context.Context, orgID int64) ([]*models.DataProfile, error) {
	return m.ListFunc(ctx, orgID)
}

func (m *mockProfileService) Create(ctx context.Context, p *models.DataProfile) error {
	return m.CreateFunc(ctx, p)
}

type mockCatalogService struct {
	OrganizationCatalogFunc func(ctx context.Context, orgID int64) ([]*models.TableDescriptor, error)
	FindTableFunc           func(ctx context.Context, orgID int64, table string) (*models.TableDescriptor, error)
	DropTableFunc           func(ctx context.Context, table string) error
}

func (m *mockCatalogService) OrganizationCatalog(ctx context.Context, orgID int64) ([]*models.TableDescriptor, error) {
	return m.OrganizationCatalogFunc(ctx, orgID)
}

func (m *mockCatalogService) FindTable(ctx context.Context, orgID int64, table string) (*models.TableDescriptor, error) {
	return m.FindTableFunc(ctx, orgID, table)
}

func (m *mockCatalogService) DropTable(ctx context.Context, table string) error {
	return m.DropTableFunc(ctx, table)
}

func (m *mockCatalogService) Reconcile(ctx context.Context) (*services.ReconcileReport, error) {
	return &services.ReconcileReport{}, nil
}

type fixedHandle string

func (h fixedHandle) Handle(http.ResponseWriter, *http.Request) (string, error) {
	return string(h), nil
}

// withClaims returns r carrying claims for user u1 in organization org.
func withClaims(r *http.Request, org int64, roles ...string) *http.Request {
	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
		OrganizationID:   org,
		Roles:            roles,
	}
	return r.WithContext(auth.WithClaims(r.Context(), claims))
}

func passthroughTenant(next http.HandlerFunc) http.HandlerFunc { return next }
