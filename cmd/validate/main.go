// Command validate checks the integrity of a finished pipeline run: the fact
// table schema and grain, the derived measures, reconciliation of ticket
// totals against the raw sales file, and parity between the fact CSV and the
// staged Parquet file.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -clean-dir data/cleaned \
//	  -raw-tickets data/raw/pwhl_ticket_sales.csv \
//	  -parquet data/tmp/fact_ticket_sales_with_weather.parquet
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"

	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/adapter/csvstore"
	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/adapter/parquetfile"
	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/domain"
)

const tolerance = 1e-6

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	cleanDir := flag.String("clean-dir", filepath.Join("data", "cleaned"), "directory holding the cleaned tables and the fact CSV")
	rawTickets := flag.String("raw-tickets", filepath.Join("data", "raw", "pwhl_ticket_sales.csv"), "raw ticket sales CSV")
	parquetPath := flag.String("parquet", "", "staged Parquet fact file (optional)")
	flag.Parse()

	os.Exit(run(*cleanDir, *rawTickets, *parquetPath))
}

func run(cleanDir, rawTickets, parquetPath string) int {
	fmt.Println("=== Fact Table Integrity Validation ===")
	fmt.Println()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store := csvstore.New(cleanDir, map[string]string{domain.RawTicketSalesTable: rawTickets}, logger)
	rc := domain.NewRunContext(logger)

	factTable, err := store.Read(ctx, domain.FactTableName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load fact table: %v\n", err)
		return 1
	}
	facts, err := domain.ParseFacts(factTable, rc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: parse fact table: %v\n", err)
		return 1
	}
	unparsed := rc.Warnings(domain.WarnCoercion)

	rawTable, err := store.Read(ctx, domain.RawTicketSalesTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load raw ticket sales: %v\n", err)
		return 1
	}
	items, err := domain.ParseTicketLines(rawTable, rc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: parse raw ticket sales: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateSchema(factTable, unparsed),
		validateGrain(facts),
		validateMeasures(facts),
		validateReconciliation(facts, items),
	}
	if parquetPath != "" {
		phases = append(phases, validateParquet(parquetPath, facts))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d fact rows, %d raw ticket rows\n", len(facts), len(items))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: schema ──

func validateSchema(t domain.Table, unparsed int) *phase {
	p := &phase{name: "Fact schema"}
	cols := domain.NormalizeColumns(t).Columns
	if !slices.Equal(cols, domain.FactColumns) {
		p.errorf("columns %v, want %v", cols, domain.FactColumns)
	}
	if unparsed > 0 {
		p.errorf("%d cells could not be parsed", unparsed)
	}
	return p
}

// ── Phase 2: grain ──

func validateGrain(facts []domain.FactRow) *phase {
	p := &phase{name: "Fact grain uniqueness"}
	seen := make(map[string]int, len(facts))
	for i, f := range facts {
		if !f.EventDate.Valid() {
			p.errorf("row %d: missing event_date", i+1)
		}
		key := domain.FactKey(f)
		if prev, ok := seen[key]; ok {
			p.errorf("row %d duplicates row %d on %s", i+1, prev+1, key)
			continue
		}
		seen[key] = i
	}
	return p
}

// ── Phase 3: derived measures ──

func validateMeasures(facts []domain.FactRow) *phase {
	p := &phase{name: "Derived measures"}
	for _, f := range facts {
		key := domain.FactKey(f)

		want, wantOK := domain.Utilization(f.TicketsSold, f.SectionCapacity).Get()
		got, gotOK := f.Utilization.Get()
		switch {
		case wantOK != gotOK:
			p.errorf("%s: utilization present=%v, want present=%v", key, gotOK, wantOK)
		case wantOK && !approx(got, want):
			p.errorf("%s: utilization %v, want %v", key, got, want)
		}

		if f.TicketsSold < 0 || f.Revenue < 0 {
			p.errorf("%s: negative totals tickets_sold=%d revenue=%v", key, f.TicketsSold, f.Revenue)
		}
		if avg, ok := f.AvgPrice.Get(); ok && avg < 0 {
			p.errorf("%s: negative avg_price %v", key, avg)
		}

		lo, okLo := f.MinTempC.Get()
		avg, okAvg := f.AvgTempC.Get()
		hi, okHi := f.MaxTempC.Get()
		if okLo && okAvg && okHi && (lo > avg+tolerance || avg > hi+tolerance) {
			p.errorf("%s: temperatures out of order min=%v avg=%v max=%v", key, lo, avg, hi)
		}

		if hours, ok := f.HoursObserved.Get(); ok {
			for name, flagged := range map[string]domain.Opt[int64]{
				"windy_hours": f.WindyHours, "rainy_hours": f.RainyHours, "freezing_hours": f.FreezingHours,
			} {
				if n, ok := flagged.Get(); ok && n > hours {
					p.errorf("%s: %s %d exceeds hours_observed %d", key, name, n, hours)
				}
			}
		}
	}
	return p
}

// ── Phase 4: reconciliation ──

// validateReconciliation checks every market's tickets per (event_date,
// section) against the raw file, which every market receives in full.
func validateReconciliation(facts []domain.FactRow, items []domain.TicketLineItem) *phase {
	p := &phase{name: "Raw sales reconciliation"}

	raw := make(map[string]int64)
	for _, it := range items {
		raw[domain.FormatOptDate(it.EventDate)+"|"+it.Section] += it.NumTickets.Or(0)
	}

	byMarket := make(map[string]map[string]int64)
	for _, f := range facts {
		m, ok := byMarket[f.VenueID]
		if !ok {
			m = make(map[string]int64)
			byMarket[f.VenueID] = m
		}
		m[domain.FormatOptDate(f.EventDate)+"|"+f.Section] += f.TicketsSold
	}

	for venueID, got := range byMarket {
		for key, want := range raw {
			if got[key] != want {
				p.errorf("%s %s: tickets_sold %d, raw %d", venueID, key, got[key], want)
			}
		}
		for key := range got {
			if _, ok := raw[key]; !ok {
				p.errorf("%s %s: not in raw sales", venueID, key)
			}
		}
	}
	return p
}

// ── Phase 5: Parquet parity ──

func validateParquet(path string, facts []domain.FactRow) *phase {
	p := &phase{name: "Parquet parity"}
	rows, err := parquetfile.ReadFile(path)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	if len(rows) != len(facts) {
		p.errorf("parquet has %d rows, fact table has %d", len(rows), len(facts))
		return p
	}
	for i, f := range facts {
		want, err := parquetfile.NewRow(f)
		if err != nil {
			p.errorf("row %d: %v", i+1, err)
			continue
		}
		got := rows[i]
		if got.EventDate != want.EventDate || got.VenueID != want.VenueID || got.Section != want.Section {
			p.errorf("row %d: key %s/%s/%s, want %s/%s/%s", i+1,
				parquetfile.DateFromEpochDays(got.EventDate), got.VenueID, got.Section,
				parquetfile.DateFromEpochDays(want.EventDate), want.VenueID, want.Section)
			continue
		}
		if got.TicketsSold != want.TicketsSold || !approx(got.Revenue, want.Revenue) {
			p.errorf("row %d (%s): tickets/revenue %d/%v, want %d/%v", i+1,
				domain.FactKey(f), got.TicketsSold, got.Revenue, want.TicketsSold, want.Revenue)
		}
	}
	return p
}

func approx(a, b float64) bool {
	return math.Abs(a-b) <= tolerance*math.Max(1, math.Abs(b))
}
