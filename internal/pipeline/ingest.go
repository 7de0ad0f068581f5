package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/domain"
)

// WeatherFetcher returns the hourly observations for one market as a table
// whose first column is "time" followed by the requested hourly variables.
type WeatherFetcher interface {
	FetchHourly(ctx context.Context, m domain.Market) (domain.Table, error)
}

// IngestWeatherStage downloads hourly weather for every market and writes the
// raw weather table. Markets that fail are logged and skipped.
type IngestWeatherStage struct {
	store   TableStore
	fetcher WeatherFetcher
}

// NewIngestWeatherStage creates an IngestWeatherStage.
func NewIngestWeatherStage(store TableStore, fetcher WeatherFetcher) *IngestWeatherStage {
	return &IngestWeatherStage{store: store, fetcher: fetcher}
}

func (s *IngestWeatherStage) Name() string      { return "ingest_weather" }
func (s *IngestWeatherStage) Outputs() []string { return []string{domain.RawWeatherHourlyTable} }

func (s *IngestWeatherStage) Run(ctx context.Context, rc *domain.RunContext) error {
	markets, err := readMarkets(ctx, s.store, rc)
	if err != nil {
		return err
	}

	out := domain.Table{Name: domain.RawWeatherHourlyTable}
	fetched := 0
	for _, m := range markets {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger := rc.Logger.With("market", m.Market, "venue", m.Venue)
		if !m.Lat.Valid() || !m.Lon.Valid() {
			logger.Warn("market has no coordinates, skipping weather")
			continue
		}

		t, err := s.fetcher.FetchHourly(ctx, m)
		if err != nil {
			logger.Error("weather fetch failed, skipping market", "error", err)
			continue
		}
		if out.Columns == nil {
			out.Columns = append(slices.Clone(t.Columns), "market", "venue")
		}
		rows, err := alignRows(t, out.Columns[:len(out.Columns)-2])
		if err != nil {
			logger.Error("weather response has unexpected columns, skipping market", "error", err)
			continue
		}
		for _, row := range rows {
			out.Rows = append(out.Rows, append(row, m.Market, m.Venue))
		}
		fetched++
		logger.Info("weather fetched", "rows", len(rows))
	}

	if out.Len() == 0 {
		return errors.New("weather ingestion returned no rows")
	}
	rc.Logger.Info("weather ingested", "markets", fetched, "of", len(markets), "rows", out.Len())
	if err := s.store.Write(ctx, out); err != nil {
		return fmt.Errorf("write raw weather: %w", err)
	}
	return nil
}
