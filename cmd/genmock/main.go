// Command genmock generates reproducible raw input fixtures for the ETL:
// ticket sales, per-game section capacity and hourly weather for every
// configured market. Output files use the default raw paths so the pipeline
// can run against them without further configuration.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -markets config/markets.yml \
//	  -out-dir data/raw \
//	  -games 12
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"math/rand/v2"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/adapter/csvstore"
	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/config"
	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/domain"
)

type section struct {
	name     string
	capacity int
	price    float64
}

var sections = []section{
	{"Lower Bowl 101", 220, 45},
	{"Lower Bowl 102", 220, 45},
	{"Lower Bowl 103", 200, 40},
	{"Upper Bowl 201", 320, 25},
	{"Upper Bowl 202", 320, 25},
	{"Club Seats", 80, 95},
}

var channels = []string{"web", "mobile", "box office", "season ticket"}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	marketsPath := flag.String("markets", filepath.Join("config", "markets.yml"), "markets YAML file")
	outDir := flag.String("out-dir", filepath.Join("data", "raw"), "directory for the generated CSV files")
	games := flag.Int("games", 12, "number of home dates to generate")
	start := flag.String("start", "2024-11-30", "first game date (YYYY-MM-DD)")
	seed := flag.Uint64("seed", 42, "random seed")
	mismatchRate := flag.Float64("mismatch-rate", 0.02, "share of ticket rows with an inconsistent total_spend")
	flag.Parse()

	if *games <= 0 {
		return fmt.Errorf("-games must be positive, got %d", *games)
	}
	first, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}

	markets, err := config.LoadMarkets(*marketsPath)
	if err != nil {
		return err
	}

	// A fake clock steps through the schedule one week at a time.
	clock := clockwork.NewFakeClockAt(first)
	dates := make([]time.Time, 0, *games)
	for range *games {
		dates = append(dates, clock.Now())
		clock.Advance(7 * 24 * time.Hour)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	tables := []domain.Table{
		capacityTable(dates),
		salesTable(rng, dates, *mismatchRate),
		weatherTable(rng, dates, markets),
	}

	store := csvstore.New(*outDir, map[string]string{
		domain.RawTicketSalesTable:     filepath.Join(*outDir, "pwhl_ticket_sales.csv"),
		domain.RawSectionCapacityTable: filepath.Join(*outDir, "game_section_capacity.csv"),
		domain.RawWeatherHourlyTable:   filepath.Join(*outDir, "weather_hourly_raw.csv"),
	}, slog.Default())

	ctx := context.Background()
	for _, t := range tables {
		if err := store.Write(ctx, t); err != nil {
			return fmt.Errorf("write %s: %w", t.Name, err)
		}
		log.Printf("%s: %d rows -> %s", t.Name, t.Len(), store.Path(t.Name))
	}
	return nil
}

func capacityTable(dates []time.Time) domain.Table {
	t := domain.Table{
		Name:    domain.RawSectionCapacityTable,
		Columns: domain.RawCapacityColumns,
	}
	for _, d := range dates {
		for _, s := range sections {
			t.Rows = append(t.Rows, []string{d.Format(time.DateOnly), s.name, strconv.Itoa(s.capacity)})
		}
	}
	return t
}

// salesTable sells between a third and all of each section, in orders of one
// to four seats.
func salesTable(rng *rand.Rand, dates []time.Time, mismatchRate float64) domain.Table {
	t := domain.Table{
		Name:    domain.RawTicketSalesTable,
		Columns: domain.RawTicketColumns,
	}
	acct := 0
	for _, d := range dates {
		for _, s := range sections {
			target := s.capacity/3 + rng.IntN(s.capacity-s.capacity/3+1)
			seat := 1
			for sold := 0; sold < target; {
				n := min(1+rng.IntN(4), target-sold)
				price := s.price + float64(rng.IntN(3))*5
				total := price * float64(n)
				if rng.Float64() < mismatchRate {
					total += 1
				}
				acct++
				t.Rows = append(t.Rows, []string{
					d.Format(time.DateOnly),
					s.name,
					string(rune('A' + (seat-1)/20%26)),
					strconv.Itoa((seat-1)%20 + 1),
					domain.FormatFloat(price),
					channels[rng.IntN(len(channels))],
					fmt.Sprintf("acct-%05d", acct),
					strconv.Itoa(n),
					domain.FormatFloat(total),
				})
				seat += n
				sold += n
			}
		}
	}
	return t
}

// weatherTable emits 24 hourly readings per market and game date with a
// winter temperature curve peaking mid-afternoon.
func weatherTable(rng *rand.Rand, dates []time.Time, markets []domain.Market) domain.Table {
	t := domain.Table{
		Name: domain.RawWeatherHourlyTable,
		Columns: []string{
			"time", "temperature_2m", "relative_humidity_2m", "wind_speed_10m", "precipitation", "market", "venue",
		},
	}
	for _, m := range markets {
		base := -8 + rng.Float64()*6
		for _, d := range dates {
			daily := base + rng.NormFloat64()*3
			for h := range 24 {
				ts := d.Add(time.Duration(h) * time.Hour)
				temp := daily + 4*math.Sin(float64(h-9)*math.Pi/12)
				precip := 0.0
				if rng.Float64() < 0.15 {
					precip = round1(rng.Float64() * 2)
				}
				t.Rows = append(t.Rows, []string{
					ts.Format("2006-01-02T15:04"),
					domain.FormatFloat(round1(temp)),
					strconv.Itoa(55 + rng.IntN(40)),
					domain.FormatFloat(round1(rng.Float64() * 12)),
					domain.FormatFloat(precip),
					m.Market,
					m.Venue,
				})
			}
		}
	}
	return t
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
