package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/domain"
)

// MarketSource supplies the static market dimension.
type MarketSource interface {
	Load() ([]domain.Market, error)
}

// readMarkets reads the materialized dim_market table. Every stage that needs
// the dimension goes through the store so a failed markets stage cascades.
func readMarkets(ctx context.Context, store TableStore, rc *domain.RunContext) ([]domain.Market, error) {
	t, err := store.Read(ctx, domain.DimMarketTable)
	if err != nil {
		return nil, err
	}
	return domain.ParseMarkets(t, rc)
}

// MarketsStage validates the market dimension and writes dim_market.
type MarketsStage struct {
	store  TableStore
	source MarketSource
}

// NewMarketsStage creates a MarketsStage.
func NewMarketsStage(store TableStore, source MarketSource) *MarketsStage {
	return &MarketsStage{store: store, source: source}
}

func (s *MarketsStage) Name() string      { return "markets" }
func (s *MarketsStage) Outputs() []string { return []string{domain.DimMarketTable} }

func (s *MarketsStage) Run(ctx context.Context, rc *domain.RunContext) error {
	markets, err := s.source.Load()
	if err != nil {
		return fmt.Errorf("load markets: %w", err)
	}
	if err := domain.ValidateMarkets(markets); err != nil {
		return err
	}
	rc.Logger.Info("markets loaded", "rows", len(markets))
	return s.store.Write(ctx, domain.MarketsTable(markets))
}

// CapacityStage cleans raw section capacity and replicates it per market.
type CapacityStage struct {
	store TableStore
}

// NewCapacityStage creates a CapacityStage.
func NewCapacityStage(store TableStore) *CapacityStage {
	return &CapacityStage{store: store}
}

func (s *CapacityStage) Name() string      { return "capacity" }
func (s *CapacityStage) Outputs() []string { return []string{domain.CapacityCleanTable} }

func (s *CapacityStage) Run(ctx context.Context, rc *domain.RunContext) error {
	raw, err := s.store.Read(ctx, domain.RawSectionCapacityTable)
	if err != nil {
		return err
	}
	markets, err := readMarkets(ctx, s.store, rc)
	if err != nil {
		return err
	}
	rows, err := domain.CleanCapacity(raw, markets, rc)
	if err != nil {
		return err
	}
	rc.Logger.Info("capacity cleaned", "raw_rows", raw.Len(), "rows", len(rows), "markets", len(markets))
	return s.store.Write(ctx, domain.CapacityTable(rows))
}

// WeatherStage tidies hourly observations and aggregates them per venue day.
type WeatherStage struct {
	store TableStore
}

// NewWeatherStage creates a WeatherStage.
func NewWeatherStage(store TableStore) *WeatherStage {
	return &WeatherStage{store: store}
}

func (s *WeatherStage) Name() string { return "weather" }
func (s *WeatherStage) Outputs() []string {
	return []string{domain.HourlyTidyTable, domain.DailyWeatherTable}
}

func (s *WeatherStage) Run(ctx context.Context, rc *domain.RunContext) error {
	raw, err := s.store.Read(ctx, domain.RawWeatherHourlyTable)
	if err != nil {
		return err
	}
	markets, err := readMarkets(ctx, s.store, rc)
	if err != nil {
		return err
	}
	hourly, daily, err := domain.TransformWeather(raw, markets, rc)
	if err != nil {
		return err
	}
	rc.Logger.Info("weather aggregated", "hourly_rows", len(hourly), "daily_rows", len(daily))
	if err := s.store.Write(ctx, domain.HourlyTable(hourly)); err != nil {
		return err
	}
	return s.store.Write(ctx, domain.DailyTable(daily))
}

// SalesStage cleans raw ticket sales, attaches each section's capacity and
// writes one file per market plus the combined all-markets file.
type SalesStage struct {
	store   TableStore
	markets MarketSource
	planned []string
}

// NewSalesStage creates a SalesStage. markets names the per-market files to
// clear when the stage fails before the market dimension has been read.
func NewSalesStage(store TableStore, markets MarketSource) *SalesStage {
	return &SalesStage{store: store, markets: markets}
}

func (s *SalesStage) Name() string { return "sales" }

// Outputs includes every per-market file planned in this process, from the
// configured markets and from dim_market.
func (s *SalesStage) Outputs() []string {
	return append([]string{domain.SalesCleanAllTable}, s.planned...)
}

func (s *SalesStage) plan(markets []domain.Market) {
	for _, m := range markets {
		if m.VenueID == "" {
			continue
		}
		name := domain.SalesCleanTableFor(m.VenueID)
		if !slices.Contains(s.planned, name) {
			s.planned = append(s.planned, name)
		}
	}
}

func (s *SalesStage) Run(ctx context.Context, rc *domain.RunContext) error {
	if s.markets != nil {
		if configured, err := s.markets.Load(); err == nil {
			s.plan(configured)
		}
	}
	markets, err := readMarkets(ctx, s.store, rc)
	if err != nil {
		return err
	}
	s.plan(markets)

	raw, err := s.store.Read(ctx, domain.RawTicketSalesTable)
	if err != nil {
		return err
	}
	capTable, err := s.store.Read(ctx, domain.CapacityCleanTable)
	if err != nil {
		return err
	}
	lines, err := domain.CleanSales(raw, markets, rc)
	if err != nil {
		return err
	}
	capacity, err := domain.ParseReplicatedCapacity(capTable, rc)
	if err != nil {
		return err
	}
	if lines, err = domain.AttachCapacity(lines, capacity); err != nil {
		return err
	}

	byVenue := make(map[string][]domain.SalesLine, len(markets))
	for _, l := range lines {
		byVenue[l.VenueID] = append(byVenue[l.VenueID], l)
	}
	for _, m := range markets {
		name := domain.SalesCleanTableFor(m.VenueID)
		if err := s.store.Write(ctx, domain.SalesTable(name, byVenue[m.VenueID])); err != nil {
			return err
		}
		rc.Logger.Debug("market sales written", "table", name, "rows", len(byVenue[m.VenueID]))
	}
	rc.Logger.Info("sales cleaned", "raw_rows", raw.Len(), "rows", len(lines), "markets", len(markets))
	return s.store.Write(ctx, domain.SalesTable(domain.SalesCleanAllTable, lines))
}

// FactStage joins the cleaned sales, capacity and daily weather into the
// fact table.
type FactStage struct {
	store TableStore
}

// NewFactStage creates a FactStage.
func NewFactStage(store TableStore) *FactStage {
	return &FactStage{store: store}
}

func (s *FactStage) Name() string      { return "fact" }
func (s *FactStage) Outputs() []string { return []string{domain.FactTableName} }

func (s *FactStage) Run(ctx context.Context, rc *domain.RunContext) error {
	salesTable, err := s.readSales(ctx, rc)
	if err != nil {
		return err
	}
	capTable, err := s.store.Read(ctx, domain.CapacityCleanTable)
	if err != nil {
		return err
	}
	wxTable, err := s.store.Read(ctx, domain.DailyWeatherTable)
	if err != nil {
		return err
	}

	lines, err := domain.ParseSalesLines(salesTable, rc)
	if err != nil {
		return err
	}
	capacity, err := domain.ParseReplicatedCapacity(capTable, rc)
	if err != nil {
		return err
	}
	weather, err := domain.ParseDailyWeather(wxTable, rc)
	if err != nil {
		return err
	}

	sales := domain.AggregateSales(lines)
	facts, err := domain.AssembleFacts(sales, capacity, weather)
	if err != nil {
		return err
	}
	rc.Logger.Info("facts assembled", "sales_lines", len(lines), "rows", len(facts))
	return s.store.Write(ctx, domain.FactTable(facts))
}

// readSales returns the combined sales file, or the concatenation of the
// per-market files when the combined file is absent.
func (s *FactStage) readSales(ctx context.Context, rc *domain.RunContext) (domain.Table, error) {
	combined, err := s.store.Read(ctx, domain.SalesCleanAllTable)
	var missing *domain.MissingInputError
	if err == nil || !errors.As(err, &missing) {
		return combined, err
	}

	markets, mErr := readMarkets(ctx, s.store, rc)
	if mErr != nil {
		return domain.Table{}, err
	}
	out := domain.Table{Name: domain.SalesCleanAllTable}
	for _, m := range markets {
		t, pErr := s.store.Read(ctx, domain.SalesCleanTableFor(m.VenueID))
		if pErr != nil {
			return domain.Table{}, err
		}
		t = domain.NormalizeColumns(t)
		if out.Columns == nil {
			out.Columns = t.Columns
		}
		rows, aErr := alignRows(t, out.Columns)
		if aErr != nil {
			return domain.Table{}, aErr
		}
		out.Rows = append(out.Rows, rows...)
	}
	rc.Logger.Info("combined sales assembled from market files", "markets", len(markets), "rows", out.Len())
	return out, nil
}

// alignRows reorders t's rows to the given column order. Every column must be
// present in t.
func alignRows(t domain.Table, columns []string) ([][]string, error) {
	if err := domain.ValidateSchema(t, columns...); err != nil {
		return nil, err
	}
	idx := make([]int, len(columns))
	for i, c := range columns {
		idx[i] = t.Index(c)
	}
	rows := make([][]string, 0, t.Len())
	for _, row := range t.Rows {
		out := make([]string, len(columns))
		for i, j := range idx {
			if j < len(row) {
				out[i] = row[j]
			}
		}
		rows = append(rows, out)
	}
	return rows, nil
}
