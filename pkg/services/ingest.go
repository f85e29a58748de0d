package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/sheetsmith/sheetsmith-engine/pkg/apperrors"
	"github.com/sheetsmith/sheetsmith-engine/pkg/logging"
	"github.com/sheetsmith/sheetsmith-engine/pkg/metrics"
	"github.com/sheetsmith/sheetsmith-engine/pkg/models"
	"github.com/sheetsmith/sheetsmith-engine/pkg/repositories"
	sqlutil "github.com/sheetsmith/sheetsmith-engine/pkg/sql"
	"github.com/sheetsmith/sheetsmith-engine/pkg/storage"
	"github.com/sheetsmith/sheetsmith-engine/pkg/tabular"
	"github.com/sheetsmith/sheetsmith-engine/pkg/warehouse"
)

// Stage is a step of the upload workflow.
type Stage string

const (
	StageReceived      Stage = "received"
	StageNewTable      Stage = "new_table"
	StageExistingTable Stage = "existing_table"
	StageAppended      Stage = "appended"
	StageDone          Stage = "done"
	StageAborted       Stage = "aborted"
)

// ErrorKind decides how a failed upload is reported.
type ErrorKind int

const (
	// KindClient is a problem with the request or with what the model made of it.
	KindClient ErrorKind = iota
	// KindExecution is a database error the caller should see verbatim.
	KindExecution
	// KindInternal is an infrastructure failure.
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindClient:
		return "client_error"
	case KindExecution:
		return "execution_error"
	default:
		return "internal_error"
	}
}

// IngestError aborts an upload at Stage.
type IngestError struct {
	Stage  Stage
	Kind   ErrorKind
	Detail string
	Err    error
	// Trail lists the stages entered before the upload aborted.
	Trail []Stage
}

func (e *IngestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Detail)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

// IngestRequest is one uploaded file.
type IngestRequest struct {
	OrganizationID int64
	UserID         string
	Filename       string
	Content        []byte
	// Hint is free text from the user describing the data.
	Hint       string
	IsNewTable bool
	// Encoding is a WHATWG label; empty means utf-8.
	Encoding string
}

// IngestResult describes a finished upload.
type IngestResult struct {
	Message      string  `json:"message"`
	TableName    string  `json:"table_name"`
	Created      bool    `json:"created"`
	RowsAppended int64   `json:"rows_appended"`
	ArchiveKey   string  `json:"archive_key,omitempty"`
	Stages       []Stage `json:"stages"`
}

// IngestService resolves the destination table of an upload, provisioning it
// when asked, and appends the rows.
type IngestService interface {
	Ingest(ctx context.Context, req *IngestRequest) (*IngestResult, error)
}

type ingestService struct {
	descriptors repositories.TableDescriptorRepository
	catalog     CatalogService
	warehouse   Warehouse
	gateways    *GatewayFactory
	archive     storage.ObjectStore
	sampleLines int
	now         func() time.Time
	logger      *zap.Logger
}

var _ IngestService = (*ingestService)(nil)

// NewIngestService creates the upload orchestrator.
func NewIngestService(
	descriptors repositories.TableDescriptorRepository,
	catalog CatalogService,
	wh Warehouse,
	gateways *GatewayFactory,
	archive storage.ObjectStore,
	sampleLines int,
	logger *zap.Logger,
) IngestService {
	if archive == nil {
		archive = storage.NopStore{}
	}
	return &ingestService{
		descriptors: descriptors,
		catalog:     catalog,
		warehouse:   wh,
		gateways:    gateways,
		archive:     archive,
		sampleLines: sampleLines,
		now:         time.Now,
		logger:      logger.Named("ingest"),
	}
}

// ingestRun carries the state of one upload through its stages.
type ingestRun struct {
	req    *IngestRequest
	upload *tabular.Upload
	result *IngestResult
}

func (r *ingestRun) enter(s Stage) {
	r.result.Stages = append(r.result.Stages, s)
}

func (s *ingestService) Ingest(ctx context.Context, req *IngestRequest) (result *IngestResult, err error) {
	start := s.now()
	run := &ingestRun{
		req:    req,
		result: &IngestResult{},
	}
	defer func() {
		outcome := "appended"
		var ingestErr *IngestError
		if errors.As(err, &ingestErr) {
			outcome = ingestErr.Kind.String()
			run.enter(StageAborted)
			ingestErr.Trail = run.result.Stages
			s.logger.Warn("Upload aborted",
				zap.String("stage", string(ingestErr.Stage)),
				zap.String("kind", outcome),
				zap.String("detail", ingestErr.Detail),
				zap.Int64("organization_id", req.OrganizationID),
				zap.String("error", logging.SanitizeError(ingestErr.Err)))
		}
		metrics.ObserveUpload(outcome, run.result.Created, run.result.RowsAppended, time.Since(start))
	}()

	if err := s.receive(run); err != nil {
		return nil, err
	}
	if req.IsNewTable {
		if err := s.provisionTable(ctx, run); err != nil {
			return nil, err
		}
	}
	if err := s.resolveTable(ctx, run); err != nil {
		return nil, err
	}
	if err := s.appendRows(ctx, run); err != nil {
		return nil, err
	}
	s.archiveUpload(ctx, run)

	run.enter(StageDone)
	run.result.Message = fmt.Sprintf("Appended %d rows to %s", run.result.RowsAppended, run.result.TableName)
	s.logger.Info("Upload appended",
		zap.String("table", run.result.TableName),
		zap.Bool("created", run.result.Created),
		zap.Int64("rows", run.result.RowsAppended),
		zap.Int64("organization_id", req.OrganizationID))
	return run.result, nil
}

func (s *ingestService) receive(run *ingestRun) error {
	run.enter(StageReceived)

	if hit := sqlutil.CheckHintForInjection("hint", run.req.Hint); hit != nil {
		return &IngestError{
			Stage:  StageReceived,
			Kind:   KindClient,
			Detail: "hint rejected by SQL injection screen",
			Err:    fmt.Errorf("%w: %w", apperrors.ErrUnsafeInput, hit),
		}
	}

	up, err := tabular.Parse(bytes.NewReader(run.req.Content), run.req.Encoding, s.sampleLines)
	if err != nil {
		return &IngestError{Stage: StageReceived, Kind: KindClient, Detail: "could not read uploaded file", Err: err}
	}
	if len(up.Rows) == 0 {
		return &IngestError{Stage: StageReceived, Kind: KindClient, Detail: apperrors.ErrEmptyUpload.Error(), Err: apperrors.ErrEmptyUpload}
	}
	run.upload = up
	return nil
}

// provisionTable has the model design a table for the upload, creates it and
// records its descriptor with a grant for the uploading organization.
func (s *ingestService) provisionTable(ctx context.Context, run *ingestRun) error {
	run.enter(StageNewTable)
	up := run.upload

	existing, err := s.warehouse.ListTableNames(ctx)
	if err != nil {
		return &IngestError{Stage: StageNewTable, Kind: KindInternal, Detail: "could not list existing tables", Err: err}
	}

	reply, err := s.gateways.Ephemeral().GenerateCreateStatement(ctx, up.Sample, up.HeaderLine, existing, run.req.Hint)
	if err != nil {
		return &IngestError{Stage: StageNewTable, Kind: KindInternal, Detail: "model call failed", Err: err}
	}

	invalid := &IngestError{
		Stage:  StageNewTable,
		Kind:   KindClient,
		Detail: apperrors.ErrInvalidGeneratedTable.Error(),
		Err:    apperrors.ErrInvalidGeneratedTable,
	}
	statement, ok := sqlutil.ExtractCreateStatement(reply)
	if !ok || !sqlutil.IsValidCreateTable(statement) {
		s.logger.Debug("Rejected generated statement", zap.String("reply", logging.TruncateString(reply, 500)))
		return invalid
	}
	tableName, err := sqlutil.ExtractTableName(statement)
	if err != nil || isReservedTable(tableName) {
		return invalid
	}

	if err := s.warehouse.ExecDDL(ctx, statement); err != nil {
		var execErr *warehouse.ExecError
		if errors.As(err, &execErr) {
			return &IngestError{Stage: StageNewTable, Kind: KindExecution, Detail: logging.SanitizeError(execErr.Err), Err: err}
		}
		return &IngestError{Stage: StageNewTable, Kind: KindInternal, Detail: "could not create table", Err: err}
	}
	run.result.Created = true

	description, err := s.gateways.Ephemeral().GenerateTableDescription(ctx, statement, up.Sample, run.req.Hint)
	if err != nil || description == "" {
		// The table exists now; keep it routable with a header-derived description.
		s.logger.Warn("Falling back to header description",
			zap.String("table", tableName),
			zap.Error(err))
		description = "Columns: " + strings.Join(up.Header, ", ")
	}

	desc := &models.TableDescriptor{TableName: tableName, CreateStatement: statement, Description: description}
	grant := &models.OrganizationTable{OrganizationID: run.req.OrganizationID, TableName: tableName}
	if err := s.descriptors.Upsert(ctx, desc, grant); err != nil {
		s.logger.Error("Failed to record table descriptor",
			zap.String("table", tableName),
			zap.Error(err))
		return &IngestError{Stage: StageNewTable, Kind: KindInternal, Detail: "could not record table metadata", Err: err}
	}

	s.logger.Info("Provisioned table",
		zap.String("table", tableName),
		zap.String("statement", logging.SanitizeStatement(statement)),
		zap.Int64("organization_id", run.req.OrganizationID))
	return nil
}

// resolveTable has the model route the upload to one of the organization's
// live tables.
func (s *ingestService) resolveTable(ctx context.Context, run *ingestRun) error {
	run.enter(StageExistingTable)

	catalog, err := s.catalog.OrganizationCatalog(ctx, run.req.OrganizationID)
	if err != nil {
		return &IngestError{Stage: StageExistingTable, Kind: KindInternal, Detail: "could not load table catalog", Err: err}
	}
	notDetermined := &IngestError{
		Stage:  StageExistingTable,
		Kind:   KindClient,
		Detail: "Could not determine table name",
		Err:    apperrors.ErrTableNotDetermined,
	}
	if len(catalog) == 0 {
		return notDetermined
	}

	reply, err := s.gateways.Ephemeral().SelectTableName(ctx, run.upload.Sample, run.req.Hint, RenderForLLM(catalog))
	if err != nil {
		return &IngestError{Stage: StageExistingTable, Kind: KindInternal, Detail: "model call failed", Err: err}
	}
	name := MatchCatalogName(reply, catalog)
	if name == "" {
		s.logger.Debug("Model reply matched no catalog table", zap.String("reply", reply))
		return notDetermined
	}
	run.result.TableName = name
	return nil
}

func (s *ingestService) appendRows(ctx context.Context, run *ingestRun) error {
	run.enter(StageAppended)
	table := run.result.TableName

	cols, err := s.warehouse.TableColumns(ctx, table)
	if err != nil {
		return &IngestError{Stage: StageAppended, Kind: KindInternal, Detail: "could not read table columns", Err: err}
	}
	names := make([]string, len(cols))
	kinds := make(map[string]tabular.Kind, len(cols))
	for i, c := range cols {
		names[i] = c.Name
		kinds[c.Name] = tabular.KindForDataType(c.DataType)
	}

	matches := tabular.MatchColumns(run.upload.Header, names)
	if len(matches) == 0 {
		return &IngestError{
			Stage:  StageAppended,
			Kind:   KindClient,
			Detail: fmt.Sprintf("no uploaded column matches a column of %s", table),
		}
	}

	columns := make([]string, len(matches))
	for i, m := range matches {
		columns[i] = m.Column
	}
	rows := make([][]any, len(run.upload.Rows))
	for r, raw := range run.upload.Rows {
		row := make([]any, len(matches))
		for i, m := range matches {
			row[i] = tabular.Coerce(raw[m.Index], kinds[m.Column])
		}
		rows[r] = row
	}

	n, err := s.warehouse.AppendRows(ctx, table, columns, rows)
	if err != nil {
		var execErr *warehouse.ExecError
		if errors.As(err, &execErr) {
			return &IngestError{Stage: StageAppended, Kind: KindExecution, Detail: logging.SanitizeError(execErr.Err), Err: err}
		}
		return &IngestError{Stage: StageAppended, Kind: KindInternal, Detail: "could not append rows", Err: err}
	}
	run.result.RowsAppended = n
	return nil
}

// archiveUpload stores the original file. Failure is logged and ignored.
func (s *ingestService) archiveUpload(ctx context.Context, run *ingestRun) {
	key := storage.ArchiveKey(run.req.OrganizationID, run.req.Filename, s.now())
	info, err := s.archive.Put(ctx, key, bytes.NewReader(run.req.Content), int64(len(run.req.Content)), "text/csv")
	if err != nil {
		s.logger.Warn("Failed to archive upload",
			zap.String("key", key),
			zap.Error(err))
		return
	}
	run.result.ArchiveKey = info.Key
}

// MatchCatalogName maps a routing reply onto a catalog table. Matching
// tolerates case, quoting and singular/plural differences. Returns "" when
// nothing matches.
func MatchCatalogName(reply string, catalog []*models.TableDescriptor) string {
	want := tabular.NormalizeName(cleanTableReply(reply))
	if want == "" {
		return ""
	}
	for _, d := range catalog {
		if d.TableName == reply {
			return d.TableName
		}
	}
	for _, d := range catalog {
		if tabular.NormalizeName(d.TableName) == want {
			return d.TableName
		}
	}
	wantSingular := inflection.Singular(want)
	for _, d := range catalog {
		if inflection.Singular(tabular.NormalizeName(d.TableName)) == wantSingular {
			return d.TableName
		}
	}
	return ""
}

func isReservedTable(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "engine_") || strings.EqualFold(name, "schema_migrations")
}
