package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/adapter/warehouse"
)

// Kind is the registered backend name.
const Kind = "sqlite"

func init() {
	warehouse.Register(Kind, Open)
}

// Backend stores the fact table in a SQLite file.
//
// SQLite has no DATE or TIMESTAMP storage class, so event_date is stored as
// ISO text and loaded_at as RFC3339Nano text.
type Backend struct {
	db *sql.DB
}

// Open connects to the database at dsn.
func Open(ctx context.Context, dsn string) (warehouse.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Backend{db: db}, nil
}

// DB exposes the connection for inspection.
func (b *Backend) DB() *sql.DB { return b.db }

func (b *Backend) Close() error { return b.db.Close() }

// CreateTableSQL renders the DDL for table.
func CreateTableSQL(table string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE %s (", quoteIdent(table))
	for i, c := range warehouse.Schema {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quoteIdent(c.Name))
		sb.WriteString(" ")
		sb.WriteString(sqlType(c.Type))
		if c.Required {
			sb.WriteString(" NOT NULL")
		}
	}
	sb.WriteString(")")
	return sb.String()
}

func sqlType(t warehouse.ColumnType) string {
	switch t {
	case warehouse.TypeInt:
		return "INTEGER"
	case warehouse.TypeFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// ReplaceTable drops, recreates and fills table in one transaction.
func (b *Backend) ReplaceTable(ctx context.Context, table string, rows [][]any) (int64, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table)); err != nil {
		return 0, fmt.Errorf("drop: %w", err)
	}
	if _, err := tx.ExecContext(ctx, CreateTableSQL(table)); err != nil {
		return 0, fmt.Errorf("create: %w", err)
	}

	cols := make([]string, len(warehouse.Schema))
	marks := make([]string, len(warehouse.Schema))
	for i, c := range warehouse.Schema {
		cols[i] = quoteIdent(c.Name)
		marks[i] = "?"
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(cols, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, toSQLite(row)...); err != nil {
			return 0, fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int64(len(rows)), nil
}

func toSQLite(row []any) []any {
	out := make([]any, len(row))
	for i, v := range row {
		t, ok := v.(time.Time)
		if !ok {
			out[i] = v
			continue
		}
		if warehouse.Schema[i].Type == warehouse.TypeDate {
			out[i] = t.Format(time.DateOnly)
		} else {
			out[i] = t.UTC().Format(time.RFC3339Nano)
		}
	}
	return out
}
