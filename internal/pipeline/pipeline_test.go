package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/domain"
	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/observability"
	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/pipeline"
)

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPipeline(store pipeline.TableStore, metrics *observability.Metrics, markets pipeline.MarketSource, fetcher pipeline.WeatherFetcher, sinks ...pipeline.FactSink) *pipeline.Pipeline {
	store = pipeline.Instrument(store, metrics)
	stages := pipeline.Stages(store, markets, fetcher, sinks...)
	return pipeline.New(store, stages, discardLogger(), metrics, clockwork.NewFakeClock())
}

func readFacts(t *testing.T, store *memStore) []domain.FactRow {
	t.Helper()
	tbl, err := store.Read(context.Background(), domain.FactTableName)
	require.NoError(t, err)
	facts, err := domain.ParseFacts(tbl, domain.NewRunContext(nil))
	require.NoError(t, err)
	return facts
}

func stageRuns(m *observability.Metrics, stage, outcome string) float64 {
	return testutil.ToFloat64(m.StageRuns.WithLabelValues(stage, outcome))
}

func TestPipeline_Run_HappyPath(t *testing.T) {
	store := newMemStore(rawInputs()...)
	metrics := newTestMetrics()
	sink := &recordingSink{name: "memory"}
	p := newTestPipeline(store, metrics, testMarkets(), nil, sink)

	require.Error(t, p.CheckReadiness(context.Background()))
	require.NoError(t, p.Run(context.Background()))
	require.NoError(t, p.CheckReadiness(context.Background()))

	for _, name := range []string{
		domain.DimMarketTable,
		domain.CapacityCleanTable,
		domain.HourlyTidyTable,
		domain.DailyWeatherTable,
		domain.SalesCleanAllTable,
		domain.SalesCleanTableFor("toronto_coca_cola_coliseum"),
		domain.SalesCleanTableFor("ottawa_td_place_arena"),
		domain.FactTableName,
	} {
		assert.True(t, store.has(name), name)
	}

	facts := readFacts(t, store)
	require.Len(t, facts, 4)
	keys := make([]string, len(facts))
	for i, f := range facts {
		keys[i] = domain.FactKey(f)
	}
	assert.Equal(t, []string{
		"2025-01-03|Ottawa|ottawa_td_place_arena|Lower Bowl 101",
		"2025-01-03|Ottawa|ottawa_td_place_arena|Lower Bowl 102",
		"2025-01-03|Toronto|toronto_coca_cola_coliseum|Lower Bowl 101",
		"2025-01-03|Toronto|toronto_coca_cola_coliseum|Lower Bowl 102",
	}, keys)

	toronto101 := facts[2]
	assert.Equal(t, int64(3), toronto101.TicketsSold)
	assert.InDelta(t, 80.0, toronto101.Revenue, 1e-9)
	assert.Equal(t, domain.Some(int64(200)), toronto101.SectionCapacity)
	assert.Equal(t, domain.Some(0.015), toronto101.Utilization)
	assert.Equal(t, domain.Some(0.0), toronto101.AvgTempC)
	assert.Equal(t, domain.Some(0.5), toronto101.TotalPrecipMm)
	assert.Equal(t, domain.Some(int64(1)), toronto101.WindyHours)
	assert.Equal(t, domain.Some(int64(1)), toronto101.RainyHours)
	assert.Equal(t, domain.Some(int64(1)), toronto101.FreezingHours)
	assert.Equal(t, domain.Some(int64(2)), toronto101.HoursObserved)

	ottawa101 := facts[0]
	assert.Equal(t, domain.Some(int64(200)), ottawa101.SectionCapacity)
	assert.False(t, ottawa101.HoursObserved.Valid(), "no weather rows for Ottawa")
	assert.False(t, ottawa101.AvgTempC.Valid())

	assert.Len(t, sink.rows, 4)
	assert.Equal(t, 1.0, stageRuns(metrics, "fact", pipeline.OutcomeSuccess))
	assert.Equal(t, 1.0, stageRuns(metrics, "load_memory", pipeline.OutcomeSuccess))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.RowsWritten.WithLabelValues(domain.FactTableName)))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.RowsWritten.WithLabelValues(domain.CapacityCleanTable)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Warnings.WithLabelValues(string(domain.WarnSpendMismatch))))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning))

	salesAll, err := store.Read(context.Background(), domain.SalesCleanAllTable)
	require.NoError(t, err)
	capIdx := salesAll.Index("section_capacity")
	require.GreaterOrEqual(t, capIdx, 0)
	assert.Equal(t, "200", salesAll.Rows[0][capIdx])
}

func TestPipeline_Run_CoercionWarningsCountRawCells(t *testing.T) {
	coercion := func(m *observability.Metrics) float64 {
		return testutil.ToFloat64(m.Warnings.WithLabelValues(string(domain.WarnCoercion)))
	}

	t.Run("clean inputs with unmatched weather", func(t *testing.T) {
		store := newMemStore(rawInputs()...)
		metrics := newTestMetrics()
		p := newTestPipeline(store, metrics, testMarkets(), nil, &recordingSink{name: "memory"})

		require.NoError(t, p.Run(context.Background()))

		facts := readFacts(t, store)
		assert.False(t, facts[0].HoursObserved.Valid(), "Ottawa has no weather")
		assert.Equal(t, 0.0, coercion(metrics))
		report, ok := p.LastRun()
		require.True(t, ok)
		assert.Zero(t, report.Warnings[string(domain.WarnCoercion)])
	})

	t.Run("one bad raw cell counted once", func(t *testing.T) {
		sales := rawSales()
		sales.Rows[0][7] = "two"
		store := newMemStore(sales, rawCapacity(), rawWeather())
		metrics := newTestMetrics()
		p := newTestPipeline(store, metrics, testMarkets(), nil, &recordingSink{name: "memory"})

		require.NoError(t, p.Run(context.Background()))

		assert.Equal(t, 1.0, coercion(metrics))
		report, ok := p.LastRun()
		require.True(t, ok)
		assert.Equal(t, 1, report.Warnings[string(domain.WarnCoercion)])
	})
}

func TestSalesStage_FailureClearsConfiguredMarketFiles(t *testing.T) {
	markets := testMarkets()
	markets.markets = append(markets.markets, domain.Market{Market: "Boston", VenueID: "boston_tsongas_center"})

	torontoFile := domain.SalesCleanTableFor("toronto_coca_cola_coliseum")
	ottawaFile := domain.SalesCleanTableFor("ottawa_td_place_arena")
	staleSales := domain.Table{Name: torontoFile, Columns: domain.SalesCleanColumns}
	staleOttawa := domain.Table{Name: ottawaFile, Columns: domain.SalesCleanColumns}
	staleAll := domain.Table{Name: domain.SalesCleanAllTable, Columns: domain.SalesCleanColumns}

	store := newMemStore(append(rawInputs(), staleSales, staleOttawa, staleAll)...)
	metrics := newTestMetrics()
	p := newTestPipeline(store, metrics, markets, nil)

	err := p.Run(context.Background())

	var mErr *domain.MarketDimensionError
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, 1.0, stageRuns(metrics, "sales", pipeline.OutcomeMissingInput))
	assert.False(t, store.has(torontoFile))
	assert.False(t, store.has(ottawaFile))
	assert.False(t, store.has(domain.SalesCleanAllTable))
}

func TestPipeline_Run_DuplicateCapacityCascades(t *testing.T) {
	capacity := rawCapacity()
	capacity.Rows = append(capacity.Rows, []string{"2025-01-03", "lower bowl 101", "210"})
	stale := domain.Table{Name: domain.CapacityCleanTable, Columns: domain.CapacityCleanColumns}
	staleFact := domain.Table{Name: domain.FactTableName, Columns: domain.FactColumns}

	store := newMemStore(rawSales(), capacity, rawWeather(), stale, staleFact)
	metrics := newTestMetrics()
	p := newTestPipeline(store, metrics, testMarkets(), nil)

	err := p.Run(context.Background())
	require.Error(t, err)

	var dup *domain.DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, []string{"event_date", "section"}, dup.Key)

	var missing *domain.MissingInputError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, domain.CapacityCleanTable, missing.Name)

	assert.False(t, store.has(domain.CapacityCleanTable), "stale capacity output removed")
	assert.False(t, store.has(domain.FactTableName), "stale fact output removed")
	assert.True(t, store.has(domain.DailyWeatherTable), "independent stages still run")
	assert.False(t, store.has(domain.SalesCleanAllTable), "sales needs the cleaned capacity")

	assert.Equal(t, 1.0, stageRuns(metrics, "capacity", pipeline.OutcomeDuplicateKey))
	assert.Equal(t, 1.0, stageRuns(metrics, "fact", pipeline.OutcomeMissingInput))
	assert.Equal(t, 1.0, stageRuns(metrics, "sales", pipeline.OutcomeMissingInput))
	require.NoError(t, p.CheckReadiness(context.Background()), "a failed run still completes")
}

func TestPipeline_Run_MissingRawInput(t *testing.T) {
	store := newMemStore(rawSales(), rawCapacity())
	metrics := newTestMetrics()
	p := newTestPipeline(store, metrics, testMarkets(), nil)

	err := p.Run(context.Background())
	var missing *domain.MissingInputError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, domain.RawWeatherHourlyTable, missing.Name)

	assert.Equal(t, 1.0, stageRuns(metrics, "weather", pipeline.OutcomeMissingInput))
	assert.Equal(t, 1.0, stageRuns(metrics, "fact", pipeline.OutcomeMissingInput))
	assert.True(t, store.has(domain.CapacityCleanTable))
	assert.False(t, store.has(domain.FactTableName))
}

func TestPipeline_Run_SchemaError(t *testing.T) {
	sales := rawSales()
	last := len(sales.Columns) - 1
	sales.Columns = sales.Columns[:last]
	for i := range sales.Rows {
		sales.Rows[i] = sales.Rows[i][:last]
	}
	store := newMemStore(sales, rawCapacity(), rawWeather())
	metrics := newTestMetrics()
	p := newTestPipeline(store, metrics, testMarkets(), nil)

	err := p.Run(context.Background())
	var schema *domain.SchemaValidationError
	require.ErrorAs(t, err, &schema)
	assert.Equal(t, []string{"total_spend"}, schema.Missing)
	assert.Equal(t, 1.0, stageRuns(metrics, "sales", pipeline.OutcomeSchema))
}

func TestPipeline_Run_InvalidMarkets(t *testing.T) {
	store := newMemStore(rawInputs()...)
	metrics := newTestMetrics()
	p := newTestPipeline(store, metrics, staticMarkets{}, nil)

	err := p.Run(context.Background())
	var mErr *domain.MarketDimensionError
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, 1.0, stageRuns(metrics, "markets", pipeline.OutcomeMarkets))
	assert.Equal(t, 1.0, stageRuns(metrics, "capacity", pipeline.OutcomeMissingInput))
	assert.False(t, store.has(domain.FactTableName))
}

func TestPipeline_Run_Idempotent(t *testing.T) {
	store := newMemStore(rawInputs()...)
	p := newTestPipeline(store, newTestMetrics(), testMarkets(), nil)

	require.NoError(t, p.Run(context.Background()))
	first, err := store.Read(context.Background(), domain.FactTableName)
	require.NoError(t, err)

	require.NoError(t, p.Run(context.Background()))
	second, err := store.Read(context.Background(), domain.FactTableName)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("fact table changed between runs (-first +second):\n%s", diff)
	}
}

func TestPipeline_Run_ContextCanceled(t *testing.T) {
	store := newMemStore(rawInputs()...)
	metrics := newTestMetrics()
	p := newTestPipeline(store, metrics, testMarkets(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, store.has(domain.DimMarketTable), "no stage ran")
}

func TestFactStage_FallsBackToMarketFiles(t *testing.T) {
	store := newMemStore(rawInputs()...)
	p := newTestPipeline(store, newTestMetrics(), testMarkets(), nil)
	require.NoError(t, p.Run(context.Background()))
	want := readFacts(t, store)

	require.NoError(t, store.Remove(context.Background(), domain.SalesCleanAllTable))
	require.NoError(t, store.Remove(context.Background(), domain.FactTableName))

	stage := pipeline.NewFactStage(store)
	require.NoError(t, stage.Run(context.Background(), domain.NewRunContext(nil)))

	if diff := cmp.Diff(domain.FactTable(want), domain.FactTable(readFacts(t, store))); diff != "" {
		t.Errorf("facts from market files differ (-combined +markets):\n%s", diff)
	}

	require.NoError(t, store.Remove(context.Background(), domain.SalesCleanTableFor("ottawa_td_place_arena")))
	err := stage.Run(context.Background(), domain.NewRunContext(nil))
	var missing *domain.MissingInputError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, domain.SalesCleanAllTable, missing.Name)
}

func TestIngestWeatherStage(t *testing.T) {
	t.Run("failed market skipped", func(t *testing.T) {
		store := newMemStore(rawSales(), rawCapacity())
		fetcher := fakeFetcher{tables: map[string]domain.Table{
			"toronto_coca_cola_coliseum": fetchedHourly(),
		}}
		metrics := newTestMetrics()
		p := newTestPipeline(store, metrics, testMarkets(), fetcher)

		require.NoError(t, p.Run(context.Background()))

		raw, err := store.Read(context.Background(), domain.RawWeatherHourlyTable)
		require.NoError(t, err)
		assert.Equal(t, domain.RawWeatherColumns, raw.Columns)
		require.Len(t, raw.Rows, 2)
		assert.Equal(t, []string{"2025-01-03T00:00", "-1", "80", "9", "0", "Toronto", "Coca-Cola Coliseum"}, raw.Rows[0])

		facts := readFacts(t, store)
		require.Len(t, facts, 4)
		assert.Equal(t, domain.Some(int64(2)), facts[2].HoursObserved)
	})

	t.Run("market without coordinates skipped", func(t *testing.T) {
		markets := testMarkets()
		markets.markets[0].Lat = domain.None[float64]()
		store := newMemStore()
		fetcher := fakeFetcher{tables: map[string]domain.Table{
			"toronto_coca_cola_coliseum": fetchedHourly(),
			"ottawa_td_place_arena":      fetchedHourly(),
		}}
		p := newTestPipeline(store, newTestMetrics(), markets, fetcher)
		_ = p.Run(context.Background())

		raw, err := store.Read(context.Background(), domain.RawWeatherHourlyTable)
		require.NoError(t, err)
		require.Len(t, raw.Rows, 2)
		assert.Equal(t, "Ottawa", raw.Rows[0][5])
	})

	t.Run("no rows fails and removes stale raw weather", func(t *testing.T) {
		store := newMemStore(rawInputs()...)
		metrics := newTestMetrics()
		p := newTestPipeline(store, metrics, testMarkets(), fakeFetcher{})

		err := p.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "weather ingestion returned no rows")
		assert.False(t, store.has(domain.RawWeatherHourlyTable))
		assert.Equal(t, 1.0, stageRuns(metrics, "ingest_weather", pipeline.OutcomeError))
		assert.Equal(t, 1.0, stageRuns(metrics, "weather", pipeline.OutcomeMissingInput))
	})
}

func TestLoadStage_SinkError(t *testing.T) {
	store := newMemStore(rawInputs()...)
	metrics := newTestMetrics()
	sink := &recordingSink{name: "warehouse", err: errors.New("connection refused")}
	p := newTestPipeline(store, metrics, testMarkets(), nil, sink)

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage load_warehouse: load warehouse: connection refused")
	assert.Equal(t, 1.0, stageRuns(metrics, "load_warehouse", pipeline.OutcomeError))
	assert.True(t, store.has(domain.FactTableName), "fact table kept when a sink fails")
}

func TestPipeline_LastRun(t *testing.T) {
	capacity := rawCapacity()
	capacity.Rows = append(capacity.Rows, []string{"2025-01-03", "Lower Bowl 101", "210"})
	store := newMemStore(rawSales(), capacity, rawWeather())
	p := newTestPipeline(store, newTestMetrics(), testMarkets(), nil)

	_, ok := p.LastRun()
	require.False(t, ok)

	require.Error(t, p.Run(context.Background()))
	report, ok := p.LastRun()
	require.True(t, ok)

	assert.True(t, report.Failed)
	outcomes := map[string]string{}
	for _, s := range report.Stages {
		outcomes[s.Name] = s.Outcome
	}
	assert.Equal(t, map[string]string{
		"markets":  pipeline.OutcomeSuccess,
		"capacity": pipeline.OutcomeDuplicateKey,
		"weather":  pipeline.OutcomeSuccess,
		"sales":    pipeline.OutcomeMissingInput,
		"fact":     pipeline.OutcomeMissingInput,
	}, outcomes)
	assert.Contains(t, report.Stages[1].Error, "section_capacity")
	assert.Equal(t, map[string]int{string(domain.WarnSpendMismatch): 1}, report.Warnings)
}
