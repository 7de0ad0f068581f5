// Package parquetfile stages the fact table as a Parquet file, the format the
// warehouse load jobs pick up.
package parquetfile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-sql/civil"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/domain"
)

const writeParallelism = 4

// Row is the Parquet schema of fact_ticket_sales_with_weather. event_date is
// required and stored as days since the Unix epoch.
type Row struct {
	EventDate       int32    `parquet:"name=event_date, type=INT32, convertedtype=DATE"`
	Market          string   `parquet:"name=market, type=BYTE_ARRAY, convertedtype=UTF8"`
	VenueID         string   `parquet:"name=venue_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Venue           string   `parquet:"name=venue, type=BYTE_ARRAY, convertedtype=UTF8"`
	Section         string   `parquet:"name=section, type=BYTE_ARRAY, convertedtype=UTF8"`
	TicketsSold     int64    `parquet:"name=tickets_sold, type=INT64"`
	Revenue         float64  `parquet:"name=revenue, type=DOUBLE"`
	AvgPrice        *float64 `parquet:"name=avg_price, type=DOUBLE, repetitiontype=OPTIONAL"`
	SectionCapacity *int64   `parquet:"name=section_capacity, type=INT64, repetitiontype=OPTIONAL"`
	Utilization     *float64 `parquet:"name=utilization, type=DOUBLE, repetitiontype=OPTIONAL"`
	AvgTempC        *float64 `parquet:"name=avg_temp_c, type=DOUBLE, repetitiontype=OPTIONAL"`
	MinTempC        *float64 `parquet:"name=min_temp_c, type=DOUBLE, repetitiontype=OPTIONAL"`
	MaxTempC        *float64 `parquet:"name=max_temp_c, type=DOUBLE, repetitiontype=OPTIONAL"`
	AvgRhPct        *float64 `parquet:"name=avg_rh_pct, type=DOUBLE, repetitiontype=OPTIONAL"`
	AvgWindMps      *float64 `parquet:"name=avg_wind_mps, type=DOUBLE, repetitiontype=OPTIONAL"`
	TotalPrecipMm   *float64 `parquet:"name=total_precip_mm, type=DOUBLE, repetitiontype=OPTIONAL"`
	WindyHours      *int64   `parquet:"name=windy_hours, type=INT64, repetitiontype=OPTIONAL"`
	RainyHours      *int64   `parquet:"name=rainy_hours, type=INT64, repetitiontype=OPTIONAL"`
	FreezingHours   *int64   `parquet:"name=freezing_hours, type=INT64, repetitiontype=OPTIONAL"`
	HoursObserved   *int64   `parquet:"name=hours_observed, type=INT64, repetitiontype=OPTIONAL"`
}

// ErrMissingEventDate is returned for fact rows without an event_date, which
// the required column cannot hold.
var ErrMissingEventDate = errors.New("fact row has no event_date")

// EpochDays converts a date to days since 1970-01-01.
func EpochDays(d civil.Date) int32 {
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
	return int32(t.Unix() / 86400)
}

// DateFromEpochDays is the inverse of EpochDays.
func DateFromEpochDays(days int32) civil.Date {
	return civil.DateOf(time.Unix(int64(days)*86400, 0).UTC())
}

// NewRow converts a fact row to its Parquet form.
func NewRow(f domain.FactRow) (Row, error) {
	d, ok := f.EventDate.Get()
	if !ok {
		return Row{}, fmt.Errorf("%w: %s", ErrMissingEventDate, domain.FactKey(f))
	}
	return Row{
		EventDate:       EpochDays(d),
		Market:          f.Market,
		VenueID:         f.VenueID,
		Venue:           f.Venue,
		Section:         f.Section,
		TicketsSold:     f.TicketsSold,
		Revenue:         f.Revenue,
		AvgPrice:        f.AvgPrice.Ptr(),
		SectionCapacity: f.SectionCapacity.Ptr(),
		Utilization:     f.Utilization.Ptr(),
		AvgTempC:        f.AvgTempC.Ptr(),
		MinTempC:        f.MinTempC.Ptr(),
		MaxTempC:        f.MaxTempC.Ptr(),
		AvgRhPct:        f.AvgRhPct.Ptr(),
		AvgWindMps:      f.AvgWindMps.Ptr(),
		TotalPrecipMm:   f.TotalPrecipMm.Ptr(),
		WindyHours:      f.WindyHours.Ptr(),
		RainyHours:      f.RainyHours.Ptr(),
		FreezingHours:   f.FreezingHours.Ptr(),
		HoursObserved:   f.HoursObserved.Ptr(),
	}, nil
}

// Writer writes the fact table to a single Parquet file, replacing it on
// every load. It implements pipeline.FactSink.
type Writer struct {
	path   string
	logger *slog.Logger
}

// NewWriter creates a Writer for path.
func NewWriter(path string, logger *slog.Logger) *Writer {
	return &Writer{path: path, logger: logger}
}

func (w *Writer) Name() string { return "parquet" }

// Path returns the staging file location.
func (w *Writer) Path() string { return w.path }

// LoadFacts converts every row before touching the file, so a row without an
// event_date leaves the previous file untouched.
func (w *Writer) LoadFacts(ctx context.Context, facts []domain.FactRow) error {
	rows := make([]Row, 0, len(facts))
	for _, f := range facts {
		r, err := NewRow(f)
		if err != nil {
			return err
		}
		rows = append(rows, r)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create parquet dir: %w", err)
	}
	tmp := w.path + ".tmp"
	if err := writeFile(tmp, rows); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, w.path); err != nil {
		return fmt.Errorf("replace %s: %w", w.path, err)
	}
	w.logger.Info("parquet staged", "path", w.path, "rows", len(rows))
	return nil
}

func writeFile(path string, rows []Row) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("open parquet file: %w", err)
	}
	pw, err := writer.NewParquetWriter(fw, new(Row), writeParallelism)
	if err != nil {
		fw.Close()
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			fw.Close()
			return fmt.Errorf("write parquet row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("finish parquet file: %w", err)
	}
	return fw.Close()
}

// ReadFile reads every row of a staged fact file.
func ReadFile(path string) ([]Row, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(Row), 1)
	if err != nil {
		return nil, fmt.Errorf("create parquet reader: %w", err)
	}
	defer pr.ReadStop()

	rows := make([]Row, int(pr.GetNumRows()))
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}
	return rows, nil
}
