package domain

import (
	"testing"

	"github.com/golang-sql/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawSales(rows ...[]string) Table {
	return Table{
		Name:    "ticket_sales",
		Columns: []string{"event_date", "section", "row", "seat", "ticket_price", "purchase_channel", "acct_id", "num_tickets", "total_spend"},
		Rows:    rows,
	}
}

func TestSpendMismatch(t *testing.T) {
	tests := []struct {
		name     string
		price    Opt[float64]
		n        Opt[int64]
		total    Opt[float64]
		mismatch bool
	}{
		{"exact", Some(20.0), Some(int64(3)), Some(60.0), false},
		{"off by a dollar", Some(20.0), Some(int64(3)), Some(61.0), true},
		{"float noise", Some(0.1), Some(int64(3)), Some(0.3), false},
		{"sub-cent difference", Some(19.999), Some(int64(1)), Some(20.0), false},
		{"missing price", None[float64](), Some(int64(3)), Some(61.0), false},
		{"missing count", Some(20.0), None[int64](), Some(61.0), false},
		{"missing total", Some(20.0), Some(int64(3)), None[float64](), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := TicketLineItem{TicketPrice: tt.price, NumTickets: tt.n, TotalSpend: tt.total}
			assert.Equal(t, tt.mismatch, SpendMismatch(item))
		})
	}
}

func TestCleanSales(t *testing.T) {
	t.Run("stamps every market", func(t *testing.T) {
		rc, _ := testRunContext(t)
		tbl := rawSales(
			[]string{"2025-01-03", "lower bowl 101", "A", "1", "20", "web", "acct-1", "3", "60"},
			[]string{"2025-01-03", "Club 1", " B ", "12", "55.5", "box office", "acct-2", "2", "111"},
		)

		lines, err := CleanSales(tbl, testMarkets(), rc)

		require.NoError(t, err)
		require.Len(t, lines, 4)
		assert.Equal(t, testMarketA, lines[0].Market)
		assert.Equal(t, testMarketA, lines[1].Market)
		assert.Equal(t, testMarketB, lines[2].Market)
		assert.Equal(t, "Lower Bowl 101", lines[0].Section)
		assert.Equal(t, "B", lines[1].Row)
		assert.Equal(t, lines[0].TicketLineItem, lines[2].TicketLineItem)
		assert.Zero(t, rc.TotalWarnings())
	})

	t.Run("spend mismatch is a warning", func(t *testing.T) {
		rc, logs := testRunContext(t)
		tbl := rawSales(
			[]string{"2025-01-03", "Club 1", "A", "1", "20", "web", "acct-1", "3", "61"},
			[]string{"2025-01-03", "Club 1", "A", "2", "20", "web", "acct-1", "3", "60"},
		)

		lines, err := CleanSales(tbl, testMarkets(), rc)

		require.NoError(t, err)
		assert.Len(t, lines, 4)
		assert.Equal(t, 1, rc.Warnings(WarnSpendMismatch))
		assert.Contains(t, logs.String(), "total_spend != ticket_price * num_tickets")
	})

	t.Run("missing columns", func(t *testing.T) {
		rc, _ := testRunContext(t)
		tbl := Table{Name: "ticket_sales", Columns: []string{"event_date", "section", "ticket_price"}}

		_, err := CleanSales(tbl, testMarkets(), rc)

		var schemaErr *SchemaValidationError
		require.ErrorAs(t, err, &schemaErr)
		assert.Equal(t, []string{"acct_id", "num_tickets", "purchase_channel", "row", "seat", "total_spend"}, schemaErr.Missing)
	})
}

func TestAggregateSales(t *testing.T) {
	line := func(d, section string, price float64, n int64, total float64) SalesLine {
		return SalesLine{
			TicketLineItem: TicketLineItem{
				EventDate:   mustDate(t, d),
				Section:     section,
				TicketPrice: Some(price),
				NumTickets:  Some(n),
				TotalSpend:  Some(total),
			},
			Market:  testMarketA,
			VenueID: "toronto_coca_cola_coliseum",
			Venue:   testVenueA,
		}
	}

	t.Run("sums and mean", func(t *testing.T) {
		lines := []SalesLine{
			line(testDate, "Club 1", 25, 2, 50),
			line(testDate, "Club 1", 30, 1, 30),
			line(testDate, "Club 1", 30, 4, 120),
		}

		out := AggregateSales(lines)

		require.Len(t, out, 1)
		assert.Equal(t, int64(7), out[0].TicketsSold)
		assert.Equal(t, 200.0, out[0].Revenue)
		avg, ok := out[0].AvgPrice.Get()
		require.True(t, ok)
		assert.InDelta(t, 28.3333, avg, 1e-4)
	})

	t.Run("missing values skipped", func(t *testing.T) {
		missing := line(testDate, "Club 1", 0, 0, 0)
		missing.TicketPrice = None[float64]()
		missing.NumTickets = None[int64]()
		missing.TotalSpend = None[float64]()
		lines := []SalesLine{line(testDate, "Club 1", 40, 2, 80), missing}

		out := AggregateSales(lines)

		require.Len(t, out, 1)
		assert.Equal(t, int64(2), out[0].TicketsSold)
		assert.Equal(t, 80.0, out[0].Revenue)
		assert.Equal(t, Some(40.0), out[0].AvgPrice)
	})

	t.Run("all prices missing", func(t *testing.T) {
		l := line(testDate, "Club 1", 0, 1, 0)
		l.TicketPrice = None[float64]()

		out := AggregateSales([]SalesLine{l})

		assert.False(t, out[0].AvgPrice.Valid())
	})

	t.Run("one row per grain sorted", func(t *testing.T) {
		undated := line(testDate, "Club 1", 10, 1, 10)
		undated.EventDate = None[civil.Date]()
		lines := []SalesLine{
			undated,
			line("2025-01-05", "Club 1", 10, 1, 10),
			line(testDate, "Club 2", 10, 1, 10),
			line(testDate, "Club 1", 10, 1, 10),
			line(testDate, "Club 2", 10, 1, 10),
		}

		out := AggregateSales(lines)

		require.Len(t, out, 4)
		got := make([][2]string, len(out))
		for i, a := range out {
			got[i] = [2]string{FormatOptDate(a.EventDate), a.Section}
		}
		assert.Equal(t, [][2]string{
			{"2025-01-03", "Club 1"},
			{"2025-01-03", "Club 2"},
			{"2025-01-05", "Club 1"},
			{"", "Club 1"},
		}, got)
		assert.Equal(t, int64(2), out[1].TicketsSold)
	})
}

func TestSalesTableRoundTrip(t *testing.T) {
	rc, _ := testRunContext(t)
	lines, err := CleanSales(rawSales(
		[]string{"2025-01-03", "Club 1", "A", "1", "20", "web", "acct-1", "3", "60"},
	), testMarkets()[:1], rc)
	require.NoError(t, err)

	tbl := SalesTable("ticket_sales_clean_all_markets", lines)
	assert.Equal(t, SalesCleanColumns, tbl.Columns)
	assert.Equal(t, []string{"2025-01-03", "Club 1", "A", "1", "20", "web", "acct-1", "3", "60", "", "toronto_coca_cola_coliseum", testMarketA, testVenueA}, tbl.Rows[0])

	lines, err = AttachCapacity(lines, []ReplicatedCapacity{capacityRow(t, testDate, "Club 1", Some(int64(40)))})
	require.NoError(t, err)
	tbl = SalesTable("ticket_sales_clean_all_markets", lines)
	assert.Equal(t, "40", tbl.Rows[0][9])

	back, err := ParseSalesLines(tbl, rc)
	require.NoError(t, err)
	assert.Equal(t, lines, back)
	assert.Zero(t, rc.Warnings(WarnCoercion))
}

func TestAttachCapacity(t *testing.T) {
	stamped := func(section string, venueID string) SalesLine {
		return SalesLine{
			TicketLineItem: TicketLineItem{EventDate: mustDate(t, testDate), Section: section, NumTickets: Some(int64(1))},
			Market:         testMarketA,
			VenueID:        venueID,
			Venue:          testVenueA,
		}
	}
	capacity := []ReplicatedCapacity{
		capacityRow(t, testDate, "Club 1", Some(int64(40))),
		capacityRow(t, testDate, "Club 2", None[int64]()),
	}

	t.Run("matched and unmatched", func(t *testing.T) {
		lines := []SalesLine{stamped("Club 1", venueA), stamped("Club 2", venueA), stamped("Club 3", venueA), stamped("Club 1", "elsewhere")}

		out, err := AttachCapacity(lines, capacity)

		require.NoError(t, err)
		require.Len(t, out, 4)
		assert.Equal(t, Some(int64(40)), out[0].SectionCapacity)
		assert.False(t, out[1].SectionCapacity.Valid())
		assert.False(t, out[2].SectionCapacity.Valid())
		assert.False(t, out[3].SectionCapacity.Valid(), "capacity is matched per market")
		assert.False(t, lines[0].SectionCapacity.Valid(), "input left untouched")
	})

	t.Run("duplicate capacity rejected", func(t *testing.T) {
		dup := append(append([]ReplicatedCapacity{}, capacity...), capacityRow(t, testDate, "Club 1", Some(int64(50))))

		_, err := AttachCapacity([]SalesLine{stamped("Club 1", venueA)}, dup)

		var dupErr *DuplicateKeyError
		require.ErrorAs(t, err, &dupErr)
		assert.Equal(t, CapacityCleanTable, dupErr.Table)
	})
}

func TestParseSalesLines_EmptyCellsNotCounted(t *testing.T) {
	rc, _ := testRunContext(t)
	tbl := Table{Name: SalesCleanAllTable, Columns: SalesCleanColumns, Rows: [][]string{
		{"2025-01-03", "Club 1", "A", "1", "", "web", "acct-1", "", "", "", venueA, testMarketA, testVenueA},
		{"2025-01-03", "Club 1", "A", "2", "20", "web", "acct-2", "two", "40", "40", venueA, testMarketA, testVenueA},
	}}

	lines, err := ParseSalesLines(tbl, rc)

	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.False(t, lines[0].TicketPrice.Valid())
	assert.False(t, lines[1].NumTickets.Valid())
	assert.Equal(t, 1, rc.Warnings(WarnCoercion), "only the non-empty unparseable cell counts")
}
