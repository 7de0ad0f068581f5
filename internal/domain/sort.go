package domain

import (
	"cmp"
	"slices"

	"github.com/golang-sql/civil"
)

// compareDate orders dates ascending with missing dates last.
func compareDate(a, b Opt[civil.Date]) int {
	da, oka := a.Get()
	db, okb := b.Get()
	switch {
	case !oka && !okb:
		return 0
	case !oka:
		return 1
	case !okb:
		return -1
	case da.Before(db):
		return -1
	case da.After(db):
		return 1
	default:
		return 0
	}
}

// SortFacts orders fact rows by (event_date, market, venue_id, section).
func SortFacts(rows []FactRow) {
	slices.SortStableFunc(rows, func(a, b FactRow) int {
		return cmp.Or(
			compareDate(a.EventDate, b.EventDate),
			cmp.Compare(a.Market, b.Market),
			cmp.Compare(a.VenueID, b.VenueID),
			cmp.Compare(a.Section, b.Section),
		)
	})
}

// SortSalesAggregates orders aggregates by (event_date, market, venue_id, section).
func SortSalesAggregates(rows []SalesSectionAggregate) {
	slices.SortStableFunc(rows, func(a, b SalesSectionAggregate) int {
		return cmp.Or(
			compareDate(a.EventDate, b.EventDate),
			cmp.Compare(a.Market, b.Market),
			cmp.Compare(a.VenueID, b.VenueID),
			cmp.Compare(a.Section, b.Section),
		)
	})
}

// SortCapacity orders replicated capacity by (event_date, market, venue_id, section).
func SortCapacity(rows []ReplicatedCapacity) {
	slices.SortStableFunc(rows, func(a, b ReplicatedCapacity) int {
		return cmp.Or(
			compareDate(a.EventDate, b.EventDate),
			cmp.Compare(a.Market, b.Market),
			cmp.Compare(a.VenueID, b.VenueID),
			cmp.Compare(a.Section, b.Section),
		)
	})
}

// SortDailyWeather orders daily aggregates by (event_date, market, venue_id).
func SortDailyWeather(rows []DailyWeather) {
	slices.SortStableFunc(rows, func(a, b DailyWeather) int {
		return cmp.Or(
			compareDate(a.EventDate, b.EventDate),
			cmp.Compare(a.Market, b.Market),
			cmp.Compare(a.VenueID, b.VenueID),
		)
	})
}

// SortHourlyWeather orders observations by (market, venue_id, time), missing
// times last.
func SortHourlyWeather(rows []HourlyObservation) {
	slices.SortStableFunc(rows, func(a, b HourlyObservation) int {
		return cmp.Or(
			cmp.Compare(a.Market, b.Market),
			cmp.Compare(a.VenueID, b.VenueID),
			compareTime(a, b),
		)
	})
}

func compareTime(a, b HourlyObservation) int {
	ta, oka := a.Time.Get()
	tb, okb := b.Time.Get()
	switch {
	case !oka && !okb:
		return 0
	case !oka:
		return 1
	case !okb:
		return -1
	default:
		return ta.Compare(tb)
	}
}
