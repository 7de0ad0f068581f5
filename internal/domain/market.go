package domain

import "fmt"

// Market is one entry of the static market dimension. Market, Venue and
// VenueID together are the triple stamped onto capacity and sales rows.
type Market struct {
	Market   string
	Venue    string
	VenueID  string
	Country  string
	Lat      Opt[float64]
	Lon      Opt[float64]
	Timezone string
}

// DimMarketColumns is the schema of the materialized market dimension.
var DimMarketColumns = []string{"venue_id", "market", "venue", "country", "lat", "lon", "timezone"}

// ValidateMarkets checks the dimension is usable: at least one entry and no
// entry with an empty market, venue or venue_id.
func ValidateMarkets(markets []Market) error {
	if len(markets) == 0 {
		return &MarketDimensionError{Reason: "no markets configured"}
	}
	for i, m := range markets {
		if m.Market == "" || m.Venue == "" || m.VenueID == "" {
			return &MarketDimensionError{
				Reason: fmt.Sprintf("entry %d has empty market/venue/venue_id (%q, %q, %q)", i, m.Market, m.Venue, m.VenueID),
			}
		}
	}
	return nil
}

// ParseMarkets reads a materialized dim_market table back.
func ParseMarkets(t Table, rc *RunContext) ([]Market, error) {
	t = NormalizeColumns(t)
	if err := ValidateSchema(t, "venue_id", "market", "venue"); err != nil {
		return nil, err
	}

	r := newColumnReader(t, DimMarketColumns...)
	c := NewCleanedCoercer(t.Name)
	markets := make([]Market, 0, t.Len())
	for _, row := range t.Rows {
		markets = append(markets, Market{
			Market:   NormalizeText(r.get(row, "market")),
			Venue:    NormalizeText(r.get(row, "venue")),
			VenueID:  NormalizeText(r.get(row, "venue_id")),
			Country:  NormalizeText(r.get(row, "country")),
			Lat:      c.Float("lat", r.get(row, "lat")),
			Lon:      c.Float("lon", r.get(row, "lon")),
			Timezone: NormalizeText(r.get(row, "timezone")),
		})
	}
	c.Flush(rc)
	if err := ValidateMarkets(markets); err != nil {
		return nil, err
	}
	return markets, nil
}

// MarketsTable renders the dimension in configuration order.
func MarketsTable(markets []Market) Table {
	t := Table{Name: DimMarketTable, Columns: DimMarketColumns}
	for _, m := range markets {
		t.Rows = append(t.Rows, []string{
			m.VenueID, m.Market, m.Venue, m.Country,
			FormatOptFloat(m.Lat), FormatOptFloat(m.Lon), m.Timezone,
		})
	}
	return t
}
