package domain

import "strings"

// FactRow is one row of fact_ticket_sales_with_weather: a sales aggregate with
// its section capacity, utilization and the day's weather at the venue.
type FactRow struct {
	SalesSectionAggregate
	SectionCapacity Opt[int64]
	Utilization     Opt[float64]
	WeatherMeasures
}

// FactColumns is the schema of fact_ticket_sales_with_weather.
var FactColumns = append([]string{
	"event_date", "market", "venue_id", "venue", "section",
	"tickets_sold", "revenue", "avg_price",
	"section_capacity", "utilization",
}, DailyWeatherMeasures...)

// Utilization is tickets sold over section capacity. It is missing when the
// capacity is missing or zero.
func Utilization(ticketsSold int64, capacity Opt[int64]) Opt[float64] {
	c, ok := capacity.Get()
	if !ok || c == 0 {
		return None[float64]()
	}
	return Some(float64(ticketsSold) / float64(c))
}

// AssembleFacts left-joins the sales aggregates to capacity on
// (event_date, market, venue_id, venue, section) and then to daily weather on
// (event_date, market, venue_id, venue). Both right-hand tables must be unique
// on their join key, so the output has exactly one row per sales aggregate.
// Unmatched rows keep capacity or weather missing. The result is sorted.
func AssembleFacts(sales []SalesSectionAggregate, capacity []ReplicatedCapacity, weather []DailyWeather) ([]FactRow, error) {
	if err := CheckUnique(CapacityCleanTable, capacityJoinKey, capacity, capacityJoinKeyOf); err != nil {
		return nil, err
	}
	if err := CheckUnique(DailyWeatherTable, weatherJoinKey, weather, weatherJoinKeyOf); err != nil {
		return nil, err
	}

	capByKey := make(map[string]Opt[int64], len(capacity))
	for _, c := range capacity {
		capByKey[joinKey(capacityJoinKeyOf(c))] = c.Capacity
	}
	wxByKey := make(map[string]WeatherMeasures, len(weather))
	for _, w := range weather {
		wxByKey[joinKey(weatherJoinKeyOf(w))] = w.WeatherMeasures
	}

	facts := make([]FactRow, 0, len(sales))
	for _, s := range sales {
		date := FormatOptDate(s.EventDate)
		f := FactRow{SalesSectionAggregate: s}
		f.SectionCapacity = capByKey[joinKey([]string{date, s.Market, s.VenueID, s.Venue, s.Section})]
		f.Utilization = Utilization(s.TicketsSold, f.SectionCapacity)
		f.WeatherMeasures = wxByKey[joinKey([]string{date, s.Market, s.VenueID, s.Venue})]
		facts = append(facts, f)
	}
	SortFacts(facts)
	return facts, nil
}

// FactTable renders fact_ticket_sales_with_weather.
func FactTable(rows []FactRow) Table {
	t := Table{Name: FactTableName, Columns: FactColumns}
	t.Rows = make([][]string, 0, len(rows))
	for _, f := range rows {
		t.Rows = append(t.Rows, append([]string{
			FormatOptDate(f.EventDate), f.Market, f.VenueID, f.Venue, f.Section,
			FormatOptInt(Some(f.TicketsSold)), FormatFloat(f.Revenue), FormatOptFloat(f.AvgPrice),
			FormatOptInt(f.SectionCapacity), FormatOptFloat(f.Utilization),
		}, f.WeatherMeasures.cells()...))
	}
	return t
}

// ParseFacts reads a fact table back, for loaders and validation.
func ParseFacts(t Table, rc *RunContext) ([]FactRow, error) {
	t = NormalizeColumns(t)
	if err := ValidateSchema(t, FactColumns...); err != nil {
		return nil, err
	}

	r := newColumnReader(t, FactColumns...)
	c := NewCleanedCoercer(t.Name)
	rows := make([]FactRow, 0, t.Len())
	for _, row := range t.Rows {
		rows = append(rows, FactRow{
			SalesSectionAggregate: SalesSectionAggregate{
				EventDate:   c.Date("event_date", r.get(row, "event_date")),
				Market:      NormalizeText(r.get(row, "market")),
				VenueID:     NormalizeText(r.get(row, "venue_id")),
				Venue:       NormalizeText(r.get(row, "venue")),
				Section:     NormalizeText(r.get(row, "section")),
				TicketsSold: c.Int("tickets_sold", r.get(row, "tickets_sold")).Or(0),
				Revenue:     c.Float("revenue", r.get(row, "revenue")).Or(0),
				AvgPrice:    c.Float("avg_price", r.get(row, "avg_price")),
			},
			SectionCapacity: c.Int("section_capacity", r.get(row, "section_capacity")),
			Utilization:     c.Float("utilization", r.get(row, "utilization")),
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

// FactKey renders the grain of a fact row as "event_date|market|venue_id|section".
func FactKey(f FactRow) string {
	return strings.Join([]string{FormatOptDate(f.EventDate), f.Market, f.VenueID, f.Section}, "|")
}
