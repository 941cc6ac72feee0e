// Package store persists uploaded billing tables and canonical cost events
// in SQLite and runs read-only queries over them.
//
// Raw tables keep the export's column names verbatim, slashes included, so
// identifiers are always double-quoted in generated SQL. Query text coming
// from outside the process must pass ValidateReadOnly before execution;
// that guard is the security boundary for the /query and /ask surfaces.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // database/sql driver

	"github.com/rshade/costlens/internal/ingest"
)

// EventTable is the fixed table holding the canonical cost events of the
// most recent batch.
const EventTable = "processed_cost_data"

var (
	// ErrNotReadOnly rejects query text that is not a SELECT statement.
	ErrNotReadOnly = errors.New("only SELECT queries are allowed")

	// ErrBadTableName rejects caller-supplied table names that are not
	// plain identifiers.
	ErrBadTableName = errors.New("invalid table name")
)

var tableNameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateReadOnly enforces the read-only statement boundary: the text
// must begin with SELECT, case-insensitively, after leading whitespace.
func ValidateReadOnly(query string) error {
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT") {
		return ErrNotReadOnly
	}
	return nil
}

// ValidateTableName restricts upload table names to plain identifiers so
// they can never smuggle SQL into DDL.
func ValidateTableName(name string) error {
	if !tableNameRE.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrBadTableName, name)
	}
	return nil
}

// quoteIdent double-quotes an identifier so column names like
// lineItem/UnblendedCost round-trip through SQLite unchanged.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Column describes one column of a persisted table.
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NotNull    bool   `json:"not_null"`
	PrimaryKey bool   `json:"primary_key"`
}

// Store wraps the SQLite handle.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the SQLite database at path. Use
// ":memory:" for an ephemeral store in tests.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single pooled connection avoids
	// SQLITE_BUSY under concurrent uploads and keeps :memory: databases
	// from silently forking per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ReplaceRawTable drops and recreates table with the export's header as
// its columns (all TEXT) and bulk-inserts every record in one transaction.
// Re-uploading to the same table name replaces its contents wholesale.
func (s *Store) ReplaceRawTable(ctx context.Context, table string, header []string, records []ingest.RawRecord) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	if len(header) == 0 {
		return fmt.Errorf("%w: table %q has no columns", ingest.ErrMalformedBatch, table)
	}

	cols := make([]string, len(header))
	placeholders := make([]string, len(header))
	for i, name := range header {
		cols[i] = quoteIdent(name) + " TEXT"
		placeholders[i] = "?"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	quoted := quoteIdent(table)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoted); err != nil {
		return fmt.Errorf("drop table %s: %w", table, err)
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", quoted, strings.Join(cols, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}

	insert := fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoted, strings.Join(placeholders, ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	args := make([]any, len(header))
	for _, r := range records {
		for i, name := range header {
			args[i] = r.Values[name]
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row into %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Info().
		Str("table", table).
		Int("columns", len(header)).
		Int("rows", len(records)).
		Msg("raw table replaced")
	return nil
}

// ReplaceCostEvents drops and recreates the canonical event table from the
// batch. Tags persist as their JSON encoding; rows without tags store NULL.
func (s *Store) ReplaceCostEvents(ctx context.Context, events []ingest.CostEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	quoted := quoteIdent(EventTable)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoted); err != nil {
		return fmt.Errorf("drop table %s: %w", EventTable, err)
	}
	create := fmt.Sprintf(`CREATE TABLE %s (
		date TEXT NOT NULL,
		service TEXT NOT NULL,
		region TEXT NOT NULL,
		cost REAL NOT NULL,
		resource_id TEXT,
		tags TEXT
	)`, quoted)
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create table %s: %w", EventTable, err)
	}

	insert := fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?, ?, ?, ?)", quoted)
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range events {
		var resourceID, tags any
		if e.ResourceID != "" {
			resourceID = e.ResourceID
		}
		if e.Tags != nil {
			encoded, err := json.Marshal(e.Tags)
			if err != nil {
				return fmt.Errorf("encode tags: %w", err)
			}
			tags = string(encoded)
		}
		if _, err := stmt.ExecContext(ctx, e.Date, e.Service, e.Region, e.Cost, resourceID, tags); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Info().Int("events", len(events)).Msg("cost events replaced")
	return nil
}

// Tables lists the user tables in the store.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Schema returns every user table with its column descriptions. The NL
// translator renders this into prompt context, so names are reported
// exactly as stored.
func (s *Store) Schema(ctx context.Context) (map[string][]Column, error) {
	tables, err := s.Tables(ctx)
	if err != nil {
		return nil, err
	}

	schema := make(map[string][]Column, len(tables))
	for _, table := range tables {
		rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(table)+")")
		if err != nil {
			return nil, fmt.Errorf("table info for %s: %w", table, err)
		}
		var cols []Column
		for rows.Next() {
			var (
				cid       int
				col       Column
				notNull   int
				dfltValue sql.NullString
				pk        int
			)
			if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &dfltValue, &pk); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("scan column info: %w", err)
			}
			col.NotNull = notNull != 0
			col.PrimaryKey = pk != 0
			cols = append(cols, col)
		}
		_ = rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		schema[table] = cols
	}
	return schema, nil
}

// Query executes caller-supplied SQL and returns the result set as column
// names plus one map per row. Callers accepting text from outside the
// process must run ValidateReadOnly first; Query itself does not guard.
func (s *Store) Query(ctx context.Context, query string) ([]string, []map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("read columns: %w", err)
	}

	results := []map[string]any{}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, name := range columns {
			if b, ok := values[i].([]byte); ok {
				row[name] = string(b)
			} else {
				row[name] = values[i]
			}
		}
		results = append(results, row)
	}
	return columns, results, rows.Err()
}
