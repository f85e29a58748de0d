// Package warehouse runs DDL and bulk inserts against the live database that
// holds the uploaded tables.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// maxParams keeps multi-row inserts under the Postgres bind parameter limit.
const maxParams = 60000

// maxRowsPerStatement caps a single INSERT even for narrow tables.
const maxRowsPerStatement = 500

// Column is one live column of a warehouse table.
type Column struct {
	Name     string
	DataType string
}

// ExecError wraps a database failure whose message is shown to the caller.
type ExecError struct {
	Op  string
	Err error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Executor runs statements against the warehouse schema.
type Executor struct {
	db     *sql.DB
	schema string
	logger *zap.Logger
}

// New creates an executor for schema. An empty schema means "public".
func New(db *sql.DB, schema string, logger *zap.Logger) *Executor {
	if schema == "" {
		schema = "public"
	}
	return &Executor{db: db, schema: schema, logger: logger.Named("warehouse")}
}

// ListTableNames returns the user tables in the schema, excluding the engine's
// own bookkeeping tables.
func (e *Executor) ListTableNames(ctx context.Context) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = $1 AND table_type = 'BASE TABLE'
ORDER BY table_name`, e.schema)
	if err != nil {
		return nil, fmt.Errorf("list warehouse tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan warehouse table: %w", err)
		}
		if isInternalTable(name) {
			continue
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate warehouse tables: %w", err)
	}
	return names, nil
}

func isInternalTable(name string) bool {
	return strings.HasPrefix(name, "engine_") || name == "schema_migrations"
}

// TableColumns returns the live columns of table in ordinal order. An unknown
// table yields no columns.
func (e *Executor) TableColumns(ctx context.Context, table string) ([]Column, error) {
	rows, err := e.db.QueryContext(ctx, `
SELECT column_name, data_type
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`, e.schema, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.DataType); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return cols, nil
}

// ExecDDL runs one sanitized statement in its own transaction with the
// search_path pinned to the warehouse schema, so unqualified names land where
// ListTableNames and AppendRows look for them. Failures are rolled back and
// returned as *ExecError.
func (e *Executor) ExecDDL(ctx context.Context, statement string) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ddl transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "SET LOCAL search_path TO "+pgx.Identifier{e.schema}.Sanitize()); err != nil {
		return &ExecError{Op: "set search_path", Err: err}
	}

	if _, err := tx.ExecContext(ctx, statement); err != nil {
		e.logger.Warn("DDL execution failed", zap.Error(err))
		return &ExecError{Op: "execute statement", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &ExecError{Op: "commit statement", Err: err}
	}
	return nil
}

// AppendRows inserts rows into table in one transaction. Each row holds one
// value per entry of columns. Returns the number of inserted rows.
func (e *Executor) AppendRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("append to %s: no columns", table)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin append transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	chunk := maxParams / len(columns)
	if chunk > maxRowsPerStatement {
		chunk = maxRowsPerStatement
	}
	if chunk < 1 {
		chunk = 1
	}

	var inserted int64
	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))
		query, args, err := buildInsert(e.schema, table, columns, rows[start:end])
		if err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, &ExecError{Op: "append rows", Err: err}
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, &ExecError{Op: "commit rows", Err: err}
	}
	e.logger.Debug("Appended rows",
		zap.String("table", table),
		zap.Int64("rows", inserted))
	return inserted, nil
}

// buildInsert renders a multi-row INSERT with quoted identifiers.
func buildInsert(schema, table string, columns []string, rows [][]any) (string, []any, error) {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(pgx.Identifier{schema, table}.Sanitize())
	sb.WriteString(" (")
	sb.WriteString(strings.Join(quoted, ", "))
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for r, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("row %d has %d values, want %d", r, len(row), len(columns))
		}
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for c, v := range row {
			if c > 0 {
				sb.WriteString(", ")
			}
			args = append(args, v)
			fmt.Fprintf(&sb, "$%d", len(args))
		}
		sb.WriteByte(')')
	}
	return sb.String(), args, nil
}

// DropTable removes table if it exists.
func (e *Executor) DropTable(ctx context.Context, table string) error {
	stmt := "DROP TABLE IF EXISTS " + pgx.Identifier{e.schema, table}.Sanitize()
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return &ExecError{Op: "drop table", Err: err}
	}
	return nil
}
