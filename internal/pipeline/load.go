package pipeline

import (
	"context"
	"fmt"

	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/domain"
)

// FactSink receives the assembled fact rows after every run.
type FactSink interface {
	Name() string
	LoadFacts(ctx context.Context, rows []domain.FactRow) error
}

// LoadStage reads the fact table and hands it to a sink.
type LoadStage struct {
	store TableStore
	sink  FactSink
}

// NewLoadStage creates a LoadStage for sink.
func NewLoadStage(store TableStore, sink FactSink) *LoadStage {
	return &LoadStage{store: store, sink: sink}
}

func (s *LoadStage) Name() string      { return "load_" + s.sink.Name() }
func (s *LoadStage) Outputs() []string { return nil }

func (s *LoadStage) Run(ctx context.Context, rc *domain.RunContext) error {
	t, err := s.store.Read(ctx, domain.FactTableName)
	if err != nil {
		return err
	}
	rows, err := domain.ParseFacts(t, rc)
	if err != nil {
		return err
	}
	if err := s.sink.LoadFacts(ctx, rows); err != nil {
		return fmt.Errorf("load %s: %w", s.sink.Name(), err)
	}
	rc.Logger.Info("facts loaded", "sink", s.sink.Name(), "rows", len(rows))
	return nil
}

// Stages builds the standard stage list. A nil fetcher disables weather
// ingestion and the raw weather file is read as provided.
func Stages(store TableStore, markets MarketSource, fetcher WeatherFetcher, sinks ...FactSink) []Stage {
	stages := []Stage{NewMarketsStage(store, markets)}
	if fetcher != nil {
		stages = append(stages, NewIngestWeatherStage(store, fetcher))
	}
	stages = append(stages,
		NewCapacityStage(store),
		NewWeatherStage(store),
		NewSalesStage(store, markets),
		NewFactStage(store),
	)
	for _, sink := range sinks {
		stages = append(stages, NewLoadStage(store, sink))
	}
	return stages
}
