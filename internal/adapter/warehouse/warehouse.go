// Package warehouse loads the fact table into a SQL warehouse. Backends
// register themselves by kind from their own packages.
package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/domain"
)

// ColumnType is the logical type of a warehouse column.
type ColumnType int

const (
	TypeDate ColumnType = iota
	TypeText
	TypeInt
	TypeFloat
	TypeTimestamp
)

// Column describes one warehouse column.
type Column struct {
	Name     string
	Type     ColumnType
	Required bool
}

// Schema is the warehouse layout of fact_ticket_sales_with_weather. It matches
// domain.FactColumns followed by the load timestamp.
var Schema = []Column{
	{"event_date", TypeDate, true},
	{"market", TypeText, false},
	{"venue_id", TypeText, false},
	{"venue", TypeText, false},
	{"section", TypeText, false},
	{"tickets_sold", TypeInt, false},
	{"revenue", TypeFloat, false},
	{"avg_price", TypeFloat, false},
	{"section_capacity", TypeInt, false},
	{"utilization", TypeFloat, false},
	{"avg_temp_c", TypeFloat, false},
	{"min_temp_c", TypeFloat, false},
	{"max_temp_c", TypeFloat, false},
	{"avg_rh_pct", TypeFloat, false},
	{"avg_wind_mps", TypeFloat, false},
	{"total_precip_mm", TypeFloat, false},
	{"windy_hours", TypeInt, false},
	{"rainy_hours", TypeInt, false},
	{"freezing_hours", TypeInt, false},
	{"hours_observed", TypeInt, false},
	{"loaded_at", TypeTimestamp, true},
}

// ColumnNames returns the names of Schema in order.
func ColumnNames() []string {
	names := make([]string, len(Schema))
	for i, c := range Schema {
		names[i] = c.Name
	}
	return names
}

// Values returns a row's values in Schema order. Missing values are nil and
// dates are time.Time at UTC midnight.
func Values(f domain.FactRow, loadedAt time.Time) []any {
	var date any
	if d, ok := f.EventDate.Get(); ok {
		date = time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
	}
	return []any{
		date,
		f.Market, f.VenueID, f.Venue, f.Section,
		f.TicketsSold, f.Revenue,
		optValue(f.AvgPrice),
		optValue(f.SectionCapacity),
		optValue(f.Utilization),
		optValue(f.AvgTempC),
		optValue(f.MinTempC),
		optValue(f.MaxTempC),
		optValue(f.AvgRhPct),
		optValue(f.AvgWindMps),
		optValue(f.TotalPrecipMm),
		optValue(f.WindyHours),
		optValue(f.RainyHours),
		optValue(f.FreezingHours),
		optValue(f.HoursObserved),
		loadedAt,
	}
}

func optValue[T any](o domain.Opt[T]) any {
	if v, ok := o.Get(); ok {
		return v
	}
	return nil
}

// Backend replaces the contents of a table with the given rows in a single
// transaction. The table is dropped and recreated so schema changes apply.
type Backend interface {
	ReplaceTable(ctx context.Context, table string, rows [][]any) (int64, error)
	Close() error
}

// Factory opens a backend from a DSN.
type Factory func(ctx context.Context, dsn string) (Backend, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. Registering the same kind
// twice panics.
func Register(kind string, f Factory) {
	if kind == "" {
		panic("warehouse: Register with empty kind")
	}
	if f == nil {
		panic("warehouse: Register with nil factory for " + kind)
	}
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[kind]; dup {
		panic("warehouse: Register called twice for " + kind)
	}
	factories[kind] = f
}

// Kinds lists the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Config selects a backend and target table.
type Config struct {
	Kind  string
	DSN   string
	Table string
}

// Loader implements pipeline.FactSink on top of a Backend.
type Loader struct {
	backend Backend
	table   string
	clock   clockwork.Clock
	logger  *slog.Logger
}

// Open creates a Loader for the configured backend kind.
func Open(ctx context.Context, cfg Config, clock clockwork.Clock, logger *slog.Logger) (*Loader, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported warehouse kind %q (registered: %v)", cfg.Kind, Kinds())
	}
	b, err := f(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s warehouse: %w", cfg.Kind, err)
	}
	return NewLoader(b, cfg.Table, clock, logger), nil
}

// NewLoader wraps an already opened backend.
func NewLoader(b Backend, table string, clock clockwork.Clock, logger *slog.Logger) *Loader {
	return &Loader{backend: b, table: table, clock: clock, logger: logger}
}

func (l *Loader) Name() string { return "warehouse" }

// LoadFacts replaces the warehouse table with rows, stamping every row with
// the same loaded_at.
func (l *Loader) LoadFacts(ctx context.Context, facts []domain.FactRow) error {
	loadedAt := l.clock.Now().UTC()
	rows := make([][]any, len(facts))
	for i, f := range facts {
		rows[i] = Values(f, loadedAt)
	}
	n, err := l.backend.ReplaceTable(ctx, l.table, rows)
	if err != nil {
		return fmt.Errorf("replace %s: %w", l.table, err)
	}
	l.logger.Info("warehouse table replaced", "table", l.table, "rows", n, "loaded_at", loadedAt)
	return nil
}

func (l *Loader) Close() error {
	return l.backend.Close()
}
