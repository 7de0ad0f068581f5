package domain

import (
	"time"

	"github.com/golang-sql/civil"
)

// Hourly flag thresholds. They are fixed, not configurable.
const (
	// WindyThresholdMps marks an hour windy when wind_mps >= 8.0 (about 18 mph).
	WindyThresholdMps = 8.0
	// RainyThresholdMm marks an hour rainy when precip_mm > 0.0.
	RainyThresholdMm = 0.0
	// FreezingThresholdC marks an hour freezing when temp_c <= 0.0.
	FreezingThresholdC = 0.0
)

// HourlyObservation is one hour of weather at one venue.
type HourlyObservation struct {
	Time      Opt[time.Time]
	EventDate Opt[civil.Date]
	Market    string
	Country   string
	VenueID   string
	Venue     string
	TempC     Opt[float64]
	RhPct     Opt[float64]
	WindMps   Opt[float64]
	PrecipMm  Opt[float64]
}

// WeatherMeasures are the daily measures carried into the fact table.
type WeatherMeasures struct {
	AvgTempC      Opt[float64]
	MinTempC      Opt[float64]
	MaxTempC      Opt[float64]
	AvgRhPct      Opt[float64]
	AvgWindMps    Opt[float64]
	TotalPrecipMm Opt[float64]
	WindyHours    Opt[int64]
	RainyHours    Opt[int64]
	FreezingHours Opt[int64]
	HoursObserved Opt[int64]
}

// DailyWeather is the weather grain: one row per
// (event_date, market, country, venue_id, venue).
type DailyWeather struct {
	EventDate Opt[civil.Date]
	Market    string
	Country   string
	VenueID   string
	Venue     string
	WeatherMeasures
}

var (
	// RawWeatherColumns are required in the raw hourly weather input.
	RawWeatherColumns = []string{
		"time", "temperature_2m", "relative_humidity_2m", "wind_speed_10m",
		"precipitation", "market", "venue",
	}
	// HourlyTidyColumns is the schema of weather_hourly_tidy.
	HourlyTidyColumns = []string{
		"time", "event_date", "market", "country", "venue_id", "venue",
		"temp_c", "rh_pct", "wind_mps", "precip_mm",
	}
	// DailyWeatherColumns is the schema of weather_daily_by_venue.
	DailyWeatherColumns = []string{
		"event_date", "market", "country", "venue_id", "venue",
		"avg_temp_c", "min_temp_c", "max_temp_c", "avg_rh_pct", "avg_wind_mps",
		"total_precip_mm", "windy_hours", "rainy_hours", "freezing_hours", "hours_observed",
	}
	// DailyWeatherMeasures are the columns the fact table takes from weather.
	DailyWeatherMeasures = []string{
		"avg_temp_c", "min_temp_c", "max_temp_c", "avg_rh_pct", "avg_wind_mps",
		"total_precip_mm", "windy_hours", "rainy_hours", "freezing_hours", "hours_observed",
	}

	weatherEnrichKey = []string{"market", "venue"}
	weatherJoinKey   = []string{"event_date", "market", "venue_id", "venue"}
)

const hourlyTimeLayout = "2006-01-02T15:04:05"

// ParseHourlyWeather types the raw hourly table and renames the provider
// columns (temperature_2m → temp_c and so on). event_date is the calendar date
// of the observation time.
func ParseHourlyWeather(t Table, rc *RunContext) ([]HourlyObservation, error) {
	t = NormalizeColumns(t)
	if err := ValidateSchema(t, RawWeatherColumns...); err != nil {
		return nil, err
	}

	r := newColumnReader(t, RawWeatherColumns...)
	c := NewCoercer(t.Name)
	obs := make([]HourlyObservation, 0, t.Len())
	for _, row := range t.Rows {
		ts := c.Timestamp("time", r.get(row, "time"))
		o := HourlyObservation{
			Time:     ts,
			Market:   NormalizeText(r.get(row, "market")),
			Venue:    NormalizeText(r.get(row, "venue")),
			TempC:    c.Float("temperature_2m", r.get(row, "temperature_2m")),
			RhPct:    c.Float("relative_humidity_2m", r.get(row, "relative_humidity_2m")),
			WindMps:  c.Float("wind_speed_10m", r.get(row, "wind_speed_10m")),
			PrecipMm: c.Float("precipitation", r.get(row, "precipitation")),
		}
		if v, ok := ts.Get(); ok {
			o.EventDate = Some(civil.DateOf(v))
		}
		obs = append(obs, o)
	}
	c.Flush(rc)
	return obs, nil
}

type marketVenue struct {
	market string
	venue  string
}

// EnrichVenues attaches venue_id and country from the market dimension,
// matching many observations to one market on (market, venue). Observations
// with no match get venue_id = Slugify(market, venue) and an empty country.
func EnrichVenues(obs []HourlyObservation, markets []Market, rc *RunContext) ([]HourlyObservation, error) {
	if err := CheckUnique(DimMarketTable, weatherEnrichKey, markets, func(m Market) []string {
		return []string{m.Market, m.Venue}
	}); err != nil {
		return nil, err
	}
	byKey := make(map[marketVenue]Market, len(markets))
	for _, m := range markets {
		byKey[marketVenue{m.Market, m.Venue}] = m
	}

	out := make([]HourlyObservation, len(obs))
	matched := 0
	for i, o := range obs {
		if m, ok := byKey[marketVenue{o.Market, o.Venue}]; ok {
			o.VenueID = m.VenueID
			o.Country = m.Country
			matched++
		} else {
			o.VenueID = Slugify(o.Market, o.Venue)
			o.Country = ""
		}
		out[i] = o
	}
	rc.Logger.Info("weather venue enrichment", "matched", matched, "rows", len(obs))
	rc.Warn(WarnUnmatchedVenue, len(obs)-matched, "weather rows not in market dimension; venue_id derived from name")
	return out, nil
}

// IsWindy reports wind_mps >= WindyThresholdMps. A missing reading is not windy.
func IsWindy(o HourlyObservation) bool {
	v, ok := o.WindMps.Get()
	return ok && v >= WindyThresholdMps
}

// IsRainy reports precip_mm > RainyThresholdMm. A missing reading is not rainy.
func IsRainy(o HourlyObservation) bool {
	v, ok := o.PrecipMm.Get()
	return ok && v > RainyThresholdMm
}

// IsFreezing reports temp_c <= FreezingThresholdC. A missing reading is not freezing.
func IsFreezing(o HourlyObservation) bool {
	v, ok := o.TempC.Get()
	return ok && v <= FreezingThresholdC
}

type dailyKey struct {
	date    Opt[civil.Date]
	market  string
	country string
	venueID string
	venue   string
}

// AggregateDaily reduces hourly observations to one row per venue and day.
// Observations without a parseable time cannot be placed on a day; they are
// left out and counted as WarnUntimedObservation. Float measures are rounded
// to two decimals. The result is sorted by (event_date, market, venue_id).
func AggregateDaily(obs []HourlyObservation, rc *RunContext) []DailyWeather {
	timed := make([]HourlyObservation, 0, len(obs))
	for _, o := range obs {
		if o.Time.Valid() {
			timed = append(timed, o)
		}
	}
	rc.Warn(WarnUntimedObservation, len(obs)-len(timed), "hourly observations without time left out of daily aggregation")

	groups := groupBy(timed, func(o HourlyObservation) dailyKey {
		return dailyKey{o.EventDate, o.Market, o.Country, o.VenueID, o.Venue}
	})

	temp := func(o HourlyObservation) Opt[float64] { return o.TempC }
	out := make([]DailyWeather, 0, len(groups))
	for _, g := range groups {
		out = append(out, DailyWeather{
			EventDate: g.key.date,
			Market:    g.key.market,
			Country:   g.key.country,
			VenueID:   g.key.venueID,
			Venue:     g.key.venue,
			WeatherMeasures: WeatherMeasures{
				AvgTempC:      roundOpt(meanFloat(g.rows, temp)),
				MinTempC:      roundOpt(minFloat(g.rows, temp)),
				MaxTempC:      roundOpt(maxFloat(g.rows, temp)),
				AvgRhPct:      roundOpt(meanFloat(g.rows, func(o HourlyObservation) Opt[float64] { return o.RhPct })),
				AvgWindMps:    roundOpt(meanFloat(g.rows, func(o HourlyObservation) Opt[float64] { return o.WindMps })),
				TotalPrecipMm: Some(Round2(sumFloat(g.rows, func(o HourlyObservation) Opt[float64] { return o.PrecipMm }))),
				WindyHours:    Some(countIf(g.rows, IsWindy)),
				RainyHours:    Some(countIf(g.rows, IsRainy)),
				FreezingHours: Some(countIf(g.rows, IsFreezing)),
				HoursObserved: Some(int64(len(g.rows))),
			},
		})
	}
	SortDailyWeather(out)
	return out
}

// TransformWeather parses, enriches and aggregates raw hourly weather. It
// returns the sorted hourly tidy rows and the daily aggregates.
func TransformWeather(t Table, markets []Market, rc *RunContext) ([]HourlyObservation, []DailyWeather, error) {
	obs, err := ParseHourlyWeather(t, rc)
	if err != nil {
		return nil, nil, err
	}
	obs, err = EnrichVenues(obs, markets, rc)
	if err != nil {
		return nil, nil, err
	}
	SortHourlyWeather(obs)
	return obs, AggregateDaily(obs, rc), nil
}

// HourlyTable renders weather_hourly_tidy.
func HourlyTable(obs []HourlyObservation) Table {
	t := Table{Name: HourlyTidyTable, Columns: HourlyTidyColumns}
	t.Rows = make([][]string, 0, len(obs))
	for _, o := range obs {
		ts := ""
		if v, ok := o.Time.Get(); ok {
			ts = v.Format(hourlyTimeLayout)
		}
		t.Rows = append(t.Rows, []string{
			ts, FormatOptDate(o.EventDate), o.Market, o.Country, o.VenueID, o.Venue,
			FormatOptFloat(o.TempC), FormatOptFloat(o.RhPct), FormatOptFloat(o.WindMps), FormatOptFloat(o.PrecipMm),
		})
	}
	return t
}

// DailyTable renders weather_daily_by_venue.
func DailyTable(rows []DailyWeather) Table {
	t := Table{Name: DailyWeatherTable, Columns: DailyWeatherColumns}
	t.Rows = make([][]string, 0, len(rows))
	for _, d := range rows {
		t.Rows = append(t.Rows, append(
			[]string{FormatOptDate(d.EventDate), d.Market, d.Country, d.VenueID, d.Venue},
			d.WeatherMeasures.cells()...,
		))
	}
	return t
}

func (m WeatherMeasures) cells() []string {
	return []string{
		FormatOptFloat(m.AvgTempC), FormatOptFloat(m.MinTempC), FormatOptFloat(m.MaxTempC),
		FormatOptFloat(m.AvgRhPct), FormatOptFloat(m.AvgWindMps), FormatOptFloat(m.TotalPrecipMm),
		FormatOptInt(m.WindyHours), FormatOptInt(m.RainyHours), FormatOptInt(m.FreezingHours),
		FormatOptInt(m.HoursObserved),
	}
}

// ParseDailyWeather reads weather_daily_by_venue back for the fact join.
// country is optional.
func ParseDailyWeather(t Table, rc *RunContext) ([]DailyWeather, error) {
	t = NormalizeColumns(t)
	required := append([]string{"event_date", "market", "venue_id", "venue"}, DailyWeatherMeasures...)
	if err := ValidateSchema(t, required...); err != nil {
		return nil, err
	}

	r := newColumnReader(t, DailyWeatherColumns...)
	c := NewCleanedCoercer(t.Name)
	rows := make([]DailyWeather, 0, t.Len())
	for _, row := range t.Rows {
		rows = append(rows, DailyWeather{
			EventDate: c.Date("event_date", r.get(row, "event_date")),
			Market:    NormalizeText(r.get(row, "market")),
			Country:   NormalizeText(r.get(row, "country")),
			VenueID:   NormalizeText(r.get(row, "venue_id")),
			Venue:     NormalizeText(r.get(row, "venue")),
			WeatherMeasures: WeatherMeasures{
				AvgTempC:      c.Float("avg_temp_c", r.get(row, "avg_temp_c")),
				MinTempC:      c.Float("min_temp_c", r.get(row, "min_temp_c")),
				MaxTempC:      c.Float("max_temp_c", r.get(row, "max_temp_c")),
				AvgRhPct:      c.Float("avg_rh_pct", r.get(row, "avg_rh_pct")),
				AvgWindMps:    c.Float("avg_wind_mps", r.get(row, "avg_wind_mps")),
				TotalPrecipMm: c.Float("total_precip_mm", r.get(row, "total_precip_mm")),
				WindyHours:    c.Int("windy_hours", r.get(row, "windy_hours")),
				RainyHours:    c.Int("rainy_hours", r.get(row, "rainy_hours")),
				FreezingHours: c.Int("freezing_hours", r.get(row, "freezing_hours")),
				HoursObserved: c.Int("hours_observed", r.get(row, "hours_observed")),
			},
		})
	}
	c.Flush(rc)
	return rows, nil
}

func weatherJoinKeyOf(d DailyWeather) []string {
	return []string{FormatOptDate(d.EventDate), d.Market, d.VenueID, d.Venue}
}
