package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/adapter/warehouse"
)

// Kind is the registered backend name.
const Kind = "postgres"

func init() {
	warehouse.Register(Kind, Open)
}

// Backend loads the fact table into Postgres with COPY.
type Backend struct {
	pool *pgxpool.Pool
}

// Open creates a connection pool for dsn.
func Open(ctx context.Context, dsn string) (warehouse.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Backend{pool: pool}, nil
}

func (b *Backend) Close() error {
	b.pool.Close()
	return nil
}

// CreateTableSQL renders the DDL for table.
func CreateTableSQL(table string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE %s (", pgx.Identifier{table}.Sanitize())
	for i, c := range warehouse.Schema {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(pgx.Identifier{c.Name}.Sanitize())
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
	case warehouse.TypeDate:
		return "DATE"
	case warehouse.TypeInt:
		return "BIGINT"
	case warehouse.TypeFloat:
		return "DOUBLE PRECISION"
	case warehouse.TypeTimestamp:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

// ReplaceTable drops, recreates and copies rows into table in one transaction.
func (b *Backend) ReplaceTable(ctx context.Context, table string, rows [][]any) (int64, error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+pgx.Identifier{table}.Sanitize()); err != nil {
		return 0, fmt.Errorf("drop: %w", err)
	}
	if _, err := tx.Exec(ctx, CreateTableSQL(table)); err != nil {
		return 0, fmt.Errorf("create: %w", err)
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, warehouse.ColumnNames(), pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}
