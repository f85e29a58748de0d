package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/sheetsmith/sheetsmith-engine/pkg/logging"
	"github.com/sheetsmith/sheetsmith-engine/pkg/repositories"
	"github.com/sheetsmith/sheetsmith-engine/pkg/tabular"
	"github.com/sheetsmith/sheetsmith-engine/pkg/warehouse"
)

// ExtractionRequest runs a data profile over images.
type ExtractionRequest struct {
	Profile   string
	ImageURLs []string
}

// ExtractionResult holds the records read from the images and, when the
// profile binds a table, how many were appended to it.
type ExtractionResult struct {
	Records      []map[string]any `json:"records"`
	TableName    string           `json:"table_name,omitempty"`
	RowsAppended int64            `json:"rows_appended"`
}

// ExtractionService turns document images into records.
type ExtractionService interface {
	Extract(ctx context.Context, owner Owner, req *ExtractionRequest) (*ExtractionResult, error)
}

type extractionService struct {
	profiles  repositories.DataProfileRepository
	catalog   CatalogService
	warehouse Warehouse
	gateways  *GatewayFactory
	logger    *zap.Logger
}

var _ ExtractionService = (*extractionService)(nil)

// NewExtractionService creates an extraction service.
func NewExtractionService(
	profiles repositories.DataProfileRepository,
	catalog CatalogService,
	wh Warehouse,
	gateways *GatewayFactory,
	logger *zap.Logger,
) ExtractionService {
	return &extractionService{
		profiles:  profiles,
		catalog:   catalog,
		warehouse: wh,
		gateways:  gateways,
		logger:    logger.Named("extraction"),
	}
}

func (s *extractionService) Extract(ctx context.Context, owner Owner, req *ExtractionRequest) (*ExtractionResult, error) {
	profile, err := s.profiles.GetByName(ctx, owner.OrganizationID, req.Profile)
	if err != nil {
		return nil, err
	}

	records, err := s.gateways.Ephemeral().ExtractStructuredFields(ctx, profile.Instructions, req.ImageURLs)
	if err != nil {
		return nil, err
	}
	result := &ExtractionResult{Records: records}
	if profile.TableName == nil || *profile.TableName == "" || len(records) == 0 {
		return result, nil
	}

	table := *profile.TableName
	if _, err := s.catalog.FindTable(ctx, owner.OrganizationID, table); err != nil {
		return nil, err
	}
	n, err := s.appendRecords(ctx, table, records)
	if err != nil {
		return nil, err
	}
	result.TableName = table
	result.RowsAppended = n

	s.logger.Info("Appended extracted records",
		zap.String("profile", profile.Name),
		zap.String("table", table),
		zap.Int64("rows", n))
	return result, nil
}

// appendRecords inserts records into table. Keys are matched to live columns
// the way upload headers are; columns no record mentions are left out.
func (s *extractionService) appendRecords(ctx context.Context, table string, records []map[string]any) (int64, error) {
	cols, err := s.warehouse.TableColumns(ctx, table)
	if err != nil {
		return 0, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}

	type target struct {
		column string
		kind   tabular.Kind
	}
	byKey := make(map[string]target, len(cols))
	for _, c := range cols {
		byKey[tabular.NormalizeName(c.Name)] = target{column: c.Name, kind: tabular.KindForDataType(c.DataType)}
	}

	// Keys that normalize to the same column share it.
	used := make(map[string]bool)
	keyFor := make(map[string]string)
	for _, rec := range records {
		for key := range rec {
			if t, ok := byKey[tabular.NormalizeName(key)]; ok {
				keyFor[key] = t.column
				used[t.column] = true
			}
		}
	}
	if len(used) == 0 {
		return 0, &IngestError{
			Stage:  StageAppended,
			Kind:   KindClient,
			Detail: fmt.Sprintf("no extracted field matches a column of %s", table),
		}
	}

	// Keep live column order for a stable statement.
	ordered := make([]target, 0, len(used))
	for _, c := range cols {
		if used[c.Name] {
			ordered = append(ordered, target{column: c.Name, kind: tabular.KindForDataType(c.DataType)})
		}
	}
	columns := make([]string, len(ordered))
	index := make(map[string]int, len(ordered))
	for i, t := range ordered {
		columns[i] = t.column
		index[t.column] = i
	}

	rows := make([][]any, len(records))
	for r, rec := range records {
		row := make([]any, len(ordered))
		// Sorted keys decide which of several keys for one column wins.
		for _, key := range slices.Sorted(maps.Keys(rec)) {
			v := rec[key]
			col, ok := keyFor[key]
			if !ok {
				continue
			}
			i := index[col]
			if row[i] == nil {
				row[i] = tabular.CoerceValue(v, ordered[i].kind)
			}
		}
		rows[r] = row
	}

	n, err := s.warehouse.AppendRows(ctx, table, columns, rows)
	if err != nil {
		var execErr *warehouse.ExecError
		if errors.As(err, &execErr) {
			return 0, &IngestError{Stage: StageAppended, Kind: KindExecution, Detail: logging.SanitizeError(execErr.Err), Err: err}
		}
		return 0, fmt.Errorf("failed to append extracted records: %w", err)
	}
	return n, nil
}
