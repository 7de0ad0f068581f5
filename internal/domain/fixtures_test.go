package domain

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/golang-sql/civil"
)

const (
	testDate    = "2025-01-03"
	testMarketA = "Toronto"
	testVenueA  = "Coca-Cola Coliseum"
	testMarketB = "Ottawa"
	testVenueB  = "TD Place Arena"
)

func testMarkets() []Market {
	return []Market{
		{Market: testMarketA, Venue: testVenueA, VenueID: "toronto_coca_cola_coliseum", Country: "CA", Lat: Some(43.6366), Lon: Some(-79.4187), Timezone: "America/Toronto"},
		{Market: testMarketB, Venue: testVenueB, VenueID: "ottawa_td_place_arena", Country: "CA", Lat: Some(45.3982), Lon: Some(-75.6835), Timezone: "America/Toronto"},
	}
}

func testRunContext(t *testing.T) (*RunContext, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewRunContext(logger), &buf
}

func mustDate(t *testing.T, s string) Opt[civil.Date] {
	t.Helper()
	d, err := civil.ParseDate(s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return Some(d)
}
