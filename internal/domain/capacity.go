package domain

import "github.com/golang-sql/civil"

// SectionCapacity is one raw capacity row, unique on (event_date, section).
type SectionCapacity struct {
	EventDate Opt[civil.Date]
	Section   string
	Capacity  Opt[int64]
}

// ReplicatedCapacity is a capacity row stamped with one market triple.
type ReplicatedCapacity struct {
	EventDate Opt[civil.Date]
	Market    string
	VenueID   string
	Venue     string
	Section   string
	Capacity  Opt[int64]
}

var (
	// RawCapacityColumns are required in the raw capacity input.
	RawCapacityColumns = []string{"event_date", "section", "section_capacity"}
	// CapacityCleanColumns is the schema of section_capacity_clean.
	CapacityCleanColumns = []string{"event_date", "market", "venue_id", "venue", "section", "section_capacity"}

	capacitySourceKey = []string{"event_date", "section"}
	capacityGrainKey  = []string{"event_date", "market", "venue_id", "section"}
	capacityJoinKey   = []string{"event_date", "market", "venue_id", "venue", "section"}
)

// ParseCapacity normalizes and types the raw capacity table.
func ParseCapacity(t Table, rc *RunContext) ([]SectionCapacity, error) {
	t = NormalizeColumns(t)
	if err := ValidateSchema(t, RawCapacityColumns...); err != nil {
		return nil, err
	}

	r := newColumnReader(t, RawCapacityColumns...)
	c := NewCoercer(t.Name)
	rows := make([]SectionCapacity, 0, t.Len())
	for _, row := range t.Rows {
		rows = append(rows, SectionCapacity{
			EventDate: c.Date("event_date", r.get(row, "event_date")),
			Section:   NormalizeSection(r.get(row, "section")),
			Capacity:  c.Int("section_capacity", r.get(row, "section_capacity")),
		})
	}
	c.Flush(rc)
	return rows, nil
}

// ReplicateCapacity pairs every capacity row with every market. The raw
// capacity data carries no market identity, so each market receives the same
// capacities: len(rows) × len(markets) rows come out, ordered by input row
// then market.
func ReplicateCapacity(rows []SectionCapacity, markets []Market) []ReplicatedCapacity {
	out := make([]ReplicatedCapacity, 0, len(rows)*len(markets))
	for _, r := range rows {
		for _, m := range markets {
			out = append(out, ReplicatedCapacity{
				EventDate: r.EventDate,
				Market:    m.Market,
				VenueID:   m.VenueID,
				Venue:     m.Venue,
				Section:   r.Section,
				Capacity:  r.Capacity,
			})
		}
	}
	return out
}

// CleanCapacity turns raw capacity into section_capacity_clean rows: parse,
// check (event_date, section) is unique, replicate across markets, check the
// replicated grain (event_date, market, venue_id, section) is unique, sort.
func CleanCapacity(t Table, markets []Market, rc *RunContext) ([]ReplicatedCapacity, error) {
	if err := ValidateMarkets(markets); err != nil {
		return nil, err
	}
	rows, err := ParseCapacity(t, rc)
	if err != nil {
		return nil, err
	}
	if err := CheckUnique(t.Name, capacitySourceKey, rows, func(r SectionCapacity) []string {
		return []string{FormatOptDate(r.EventDate), r.Section}
	}); err != nil {
		return nil, err
	}

	replicated := ReplicateCapacity(rows, markets)
	if err := CheckUnique(CapacityCleanTable, capacityGrainKey, replicated, capacityGrainKeyOf); err != nil {
		return nil, err
	}
	SortCapacity(replicated)
	return replicated, nil
}

func capacityGrainKeyOf(r ReplicatedCapacity) []string {
	return []string{FormatOptDate(r.EventDate), r.Market, r.VenueID, r.Section}
}

func capacityJoinKeyOf(r ReplicatedCapacity) []string {
	return []string{FormatOptDate(r.EventDate), r.Market, r.VenueID, r.Venue, r.Section}
}

// CapacityTable renders section_capacity_clean.
func CapacityTable(rows []ReplicatedCapacity) Table {
	t := Table{Name: CapacityCleanTable, Columns: CapacityCleanColumns}
	t.Rows = make([][]string, 0, len(rows))
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{
			FormatOptDate(r.EventDate), r.Market, r.VenueID, r.Venue, r.Section, FormatOptInt(r.Capacity),
		})
	}
	return t
}

// ParseReplicatedCapacity reads a section_capacity_clean table back.
func ParseReplicatedCapacity(t Table, rc *RunContext) ([]ReplicatedCapacity, error) {
	t = NormalizeColumns(t)
	if err := ValidateSchema(t, CapacityCleanColumns...); err != nil {
		return nil, err
	}

	r := newColumnReader(t, CapacityCleanColumns...)
	c := NewCleanedCoercer(t.Name)
	rows := make([]ReplicatedCapacity, 0, t.Len())
	for _, row := range t.Rows {
		rows = append(rows, ReplicatedCapacity{
			EventDate: c.Date("event_date", r.get(row, "event_date")),
			Market:    NormalizeText(r.get(row, "market")),
			VenueID:   NormalizeText(r.get(row, "venue_id")),
			Venue:     NormalizeText(r.get(row, "venue")),
			Section:   NormalizeText(r.get(row, "section")),
			Capacity:  c.Int("section_capacity", r.get(row, "section_capacity")),
		})
	}
	c.Flush(rc)
	return rows, nil
}
