package pipeline_test

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/domain"
)

// --- in-memory store ---

type memStore struct {
	mu     sync.Mutex
	tables map[string]domain.Table
}

func newMemStore(tables ...domain.Table) *memStore {
	s := &memStore{tables: make(map[string]domain.Table)}
	for _, t := range tables {
		s.tables[t.Name] = cloneTable(t)
	}
	return s
}

func (s *memStore) Read(_ context.Context, name string) (domain.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		return domain.Table{}, &domain.MissingInputError{Name: name}
	}
	return cloneTable(t), nil
}

func (s *memStore) Write(_ context.Context, t domain.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[t.Name] = cloneTable(t)
	return nil
}

func (s *memStore) Remove(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, name)
	return nil
}

func (s *memStore) has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tables[name]
	return ok
}

func cloneTable(t domain.Table) domain.Table {
	out := domain.Table{Name: t.Name, Columns: slices.Clone(t.Columns)}
	for _, r := range t.Rows {
		out.Rows = append(out.Rows, slices.Clone(r))
	}
	return out
}

// --- market source ---

type staticMarkets struct {
	markets []domain.Market
	err     error
}

func (s staticMarkets) Load() ([]domain.Market, error) {
	return s.markets, s.err
}

func testMarkets() staticMarkets {
	return staticMarkets{markets: []domain.Market{
		{
			Market: "Toronto", Venue: "Coca-Cola Coliseum", VenueID: "toronto_coca_cola_coliseum",
			Country: "CA", Lat: domain.Some(43.6366), Lon: domain.Some(-79.4187), Timezone: "America/Toronto",
		},
		{
			Market: "Ottawa", Venue: "TD Place Arena", VenueID: "ottawa_td_place_arena",
			Country: "CA", Lat: domain.Some(45.3983), Lon: domain.Some(-75.6839), Timezone: "America/Toronto",
		},
	}}
}

// --- raw inputs ---

func rawSales() domain.Table {
	return domain.Table{
		Name:    domain.RawTicketSalesTable,
		Columns: []string{"Event Date", "Section", "Row", "Seat", "Ticket Price", "Purchase Channel", "Acct ID", "Num Tickets", "Total Spend"},
		Rows: [][]string{
			{"2025-01-03", "lower bowl 101", "A", "1", "25", "web", "acct-1", "2", "50"},
			{"2025-01-03", "Lower  Bowl 101", "B", "4", "30", "box office", "acct-2", "1", "30"},
			{"2025-01-03", "Lower Bowl 102", "C", "7", "30", "web", "acct-3", "4", "121"},
		},
	}
}

func rawCapacity() domain.Table {
	return domain.Table{
		Name:    domain.RawSectionCapacityTable,
		Columns: []string{"event_date", "section", "section_capacity"},
		Rows: [][]string{
			{"2025-01-03", "Lower Bowl 101", "200"},
			{"2025-01-03", "Lower Bowl 102", "180"},
		},
	}
}

func rawWeather() domain.Table {
	return domain.Table{
		Name:    domain.RawWeatherHourlyTable,
		Columns: []string{"time", "temperature_2m", "relative_humidity_2m", "wind_speed_10m", "precipitation", "market", "venue"},
		Rows: [][]string{
			{"2025-01-03T00:00", "-1", "80", "9", "0", "Toronto", "Coca-Cola Coliseum"},
			{"2025-01-03T01:00", "1", "70", "3", "0.5", "Toronto", "Coca-Cola Coliseum"},
		},
	}
}

func rawInputs() []domain.Table {
	return []domain.Table{rawSales(), rawCapacity(), rawWeather()}
}

// --- weather fetcher ---

type fakeFetcher struct {
	tables map[string]domain.Table
}

func (f fakeFetcher) FetchHourly(_ context.Context, m domain.Market) (domain.Table, error) {
	t, ok := f.tables[m.VenueID]
	if !ok {
		return domain.Table{}, errors.New("archive api: 500 Internal Server Error")
	}
	return t, nil
}

func fetchedHourly() domain.Table {
	return domain.Table{
		Columns: []string{"time", "temperature_2m", "relative_humidity_2m", "wind_speed_10m", "precipitation"},
		Rows: [][]string{
			{"2025-01-03T00:00", "-1", "80", "9", "0"},
			{"2025-01-03T01:00", "1", "70", "3", "0.5"},
		},
	}
}

// --- sinks ---

type recordingSink struct {
	name string
	err  error
	rows []domain.FactRow
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) LoadFacts(_ context.Context, rows []domain.FactRow) error {
	if s.err != nil {
		return s.err
	}
	s.rows = rows
	return nil
}
