package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sheetsmith/sheetsmith-engine/pkg/apperrors"
	"github.com/sheetsmith/sheetsmith-engine/pkg/llm"
	"github.com/sheetsmith/sheetsmith-engine/pkg/models"
	"github.com/sheetsmith/sheetsmith-engine/pkg/warehouse"
)

func extractionFixture(t *testing.T, reply string, profile *models.DataProfile) (ExtractionService, *mockWarehouse) {
	t.Helper()
	repo := newMockDescriptorRepo(&models.TableDescriptor{TableName: "receipts"})
	repo.grant("receipts", 9)
	wh := newMockWarehouse()
	wh.addTable("receipts",
		warehouse.Column{Name: "vendor", DataType: "text"},
		warehouse.Column{Name: "total", DataType: "numeric"},
		warehouse.Column{Name: "item_count", DataType: "integer"},
		warehouse.Column{Name: "paid", DataType: "boolean"})

	profiles := &mockProfileRepo{
		GetByNameFunc: func(_ context.Context, orgID int64, name string) (*models.DataProfile, error) {
			if profile == nil || name != profile.Name || orgID != profile.OrganizationID {
				return nil, apperrors.ErrNotFound
			}
			return profile, nil
		},
	}
	factory := newTestFactory(t, llm.NewMockChatModel(reply), nil, GatewayConfig{})
	catalog := NewCatalogService(repo, wh, zap.NewNop())
	return NewExtractionService(profiles, catalog, wh, factory, zap.NewNop()), wh
}

func TestExtract_AppendsToBoundTable(t *testing.T) {
	table := "receipts"
	profile := &models.DataProfile{Name: "receipt", OrganizationID: 9, Instructions: "vendor, total, items", TableName: &table}
	svc, wh := extractionFixture(t,
		`[{"Vendor":"ACME","total":"$12.50","item count":3,"note":"x"},{"vendor":"Globex","paid":true}]`,
		profile)

	res, err := svc.Extract(context.Background(), Owner{OrganizationID: 9}, &ExtractionRequest{
		Profile:   "receipt",
		ImageURLs: []string{"https://img/r1.jpg"},
	})
	require.NoError(t, err)

	assert.Len(t, res.Records, 2)
	assert.Equal(t, "receipts", res.TableName)
	assert.Equal(t, int64(2), res.RowsAppended)
	assert.Equal(t, []string{"vendor", "total", "item_count", "paid"}, wh.columns["receipts"])
	assert.Equal(t, [][]any{
		{"ACME", 12.5, int64(3), nil},
		{"Globex", nil, nil, true},
	}, wh.appended["receipts"])
}

func TestExtract_CollidingKeysResolveInKeyOrder(t *testing.T) {
	table := "receipts"
	profile := &models.DataProfile{Name: "receipt", OrganizationID: 9, Instructions: "vendor, items", TableName: &table}

	for range 20 {
		svc, wh := extractionFixture(t,
			`[{"vendor":"lower","Vendor":"Upper","item_count":7,"item count":3}]`,
			profile)

		_, err := svc.Extract(context.Background(), Owner{OrganizationID: 9}, &ExtractionRequest{
			Profile:   "receipt",
			ImageURLs: []string{"https://img/r1.jpg"},
		})
		require.NoError(t, err)
		require.Equal(t, []string{"vendor", "item_count"}, wh.columns["receipts"])
		require.Equal(t, [][]any{{"Upper", int64(3)}}, wh.appended["receipts"])
	}
}

func TestExtract_UnboundProfileOnlyReturnsRecords(t *testing.T) {
	profile := &models.DataProfile{Name: "card", OrganizationID: 9, Instructions: "name"}
	svc, wh := extractionFixture(t, `{"name":"Ada"}`, profile)

	res, err := svc.Extract(context.Background(), Owner{OrganizationID: 9}, &ExtractionRequest{Profile: "card", ImageURLs: []string{"u"}})
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"name": "Ada"}}, res.Records)
	assert.Empty(t, wh.appended)
}

func TestExtract_UnknownProfile(t *testing.T) {
	svc, _ := extractionFixture(t, `{}`, nil)
	_, err := svc.Extract(context.Background(), Owner{OrganizationID: 9}, &ExtractionRequest{Profile: "nope", ImageURLs: []string{"u"}})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestExtract_NoMatchingFields(t *testing.T) {
	table := "receipts"
	profile := &models.DataProfile{Name: "receipt", OrganizationID: 9, TableName: &table}
	svc, _ := extractionFixture(t, `{"colour":"red"}`, profile)

	_, err := svc.Extract(context.Background(), Owner{OrganizationID: 9}, &ExtractionRequest{Profile: "receipt", ImageURLs: []string{"u"}})
	var ingestErr *IngestError
	require.True(t, errors.As(err, &ingestErr))
	assert.Equal(t, KindClient, ingestErr.Kind)
}
