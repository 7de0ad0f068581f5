package domain

import (
	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"
)

// TicketLineItem is one raw sale of one or more seats.
type TicketLineItem struct {
	EventDate       Opt[civil.Date]
	Section         string
	Row             string
	Seat            string
	TicketPrice     Opt[float64]
	PurchaseChannel string
	AcctID          string
	NumTickets      Opt[int64]
	TotalSpend      Opt[float64]
}

// SalesLine is a line item stamped with a market triple and the capacity of
// its section on the event date.
type SalesLine struct {
	TicketLineItem
	SectionCapacity Opt[int64]
	Market          string
	VenueID         string
	Venue           string
}

// SalesSectionAggregate is the sales grain: one row per
// (event_date, market, venue_id, venue, section).
type SalesSectionAggregate struct {
	EventDate   Opt[civil.Date]
	Market      string
	VenueID     string
	Venue       string
	Section     string
	TicketsSold int64
	Revenue     float64
	AvgPrice    Opt[float64]
}

var (
	// RawTicketColumns are required in the raw ticket sales input.
	RawTicketColumns = []string{
		"event_date", "section", "row", "seat",
		"ticket_price", "purchase_channel", "acct_id",
		"num_tickets", "total_spend",
	}
	// SalesCleanColumns is the schema of the cleaned, market-stamped sales files.
	SalesCleanColumns = append(append([]string{}, RawTicketColumns...), "section_capacity", "venue_id", "market", "venue")
	// SalesAggregateRequired are the cleaned sales columns aggregation needs.
	SalesAggregateRequired = []string{
		"event_date", "market", "venue_id", "venue", "section",
		"ticket_price", "num_tickets", "total_spend",
	}
)

// ParseTicketLines normalizes and types the raw ticket sales table.
func ParseTicketLines(t Table, rc *RunContext) ([]TicketLineItem, error) {
	t = NormalizeColumns(t)
	if err := ValidateSchema(t, RawTicketColumns...); err != nil {
		return nil, err
	}

	r := newColumnReader(t, RawTicketColumns...)
	c := NewCoercer(t.Name)
	items := make([]TicketLineItem, 0, t.Len())
	for _, row := range t.Rows {
		items = append(items, parseTicketLine(r, c, row))
	}
	c.Flush(rc)
	return items, nil
}

func parseTicketLine(r columnReader, c *Coercer, row []string) TicketLineItem {
	return TicketLineItem{
		EventDate:       c.Date("event_date", r.get(row, "event_date")),
		Section:         NormalizeSection(r.get(row, "section")),
		Row:             NormalizeText(r.get(row, "row")),
		Seat:            NormalizeText(r.get(row, "seat")),
		TicketPrice:     c.Float("ticket_price", r.get(row, "ticket_price")),
		PurchaseChannel: NormalizeText(r.get(row, "purchase_channel")),
		AcctID:          NormalizeText(r.get(row, "acct_id")),
		NumTickets:      c.Int("num_tickets", r.get(row, "num_tickets")),
		TotalSpend:      c.Float("total_spend", r.get(row, "total_spend")),
	}
}

// SpendMismatch reports whether total_spend disagrees with
// ticket_price × num_tickets once both are rounded to cents. Items with any
// of the three values missing are not compared.
func SpendMismatch(item TicketLineItem) bool {
	price, ok1 := item.TicketPrice.Get()
	n, ok2 := item.NumTickets.Get()
	total, ok3 := item.TotalSpend.Get()
	if !ok1 || !ok2 || !ok3 {
		return false
	}
	expected := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(n)).Round(2)
	return !expected.Equal(decimal.NewFromFloat(total).Round(2))
}

// CheckSpend records a spend mismatch warning for the items that fail
// SpendMismatch and returns their count.
func CheckSpend(table string, items []TicketLineItem, rc *RunContext) int {
	n := 0
	for _, it := range items {
		if SpendMismatch(it) {
			n++
		}
	}
	rc.Warn(WarnSpendMismatch, n, "total_spend != ticket_price * num_tickets", "table", table)
	return n
}

// StampMarkets copies every line item once per market, market by market.
// Like capacity, the raw sales carry no market identity.
func StampMarkets(items []TicketLineItem, markets []Market) []SalesLine {
	out := make([]SalesLine, 0, len(items)*len(markets))
	for _, m := range markets {
		for _, it := range items {
			out = append(out, SalesLine{
				TicketLineItem: it,
				Market:         m.Market,
				VenueID:        m.VenueID,
				Venue:          m.Venue,
			})
		}
	}
	return out
}

// CleanSales parses raw ticket sales, reconciles spend and stamps every
// market onto the line items.
func CleanSales(t Table, markets []Market, rc *RunContext) ([]SalesLine, error) {
	if err := ValidateMarkets(markets); err != nil {
		return nil, err
	}
	items, err := ParseTicketLines(t, rc)
	if err != nil {
		return nil, err
	}
	CheckSpend(t.Name, items, rc)
	return StampMarkets(items, markets), nil
}

// AttachCapacity fills each line's section capacity from the replicated
// capacity rows on (event_date, market, venue_id, venue, section). Capacity
// must be unique on that key. Lines without a match keep it missing.
func AttachCapacity(lines []SalesLine, capacity []ReplicatedCapacity) ([]SalesLine, error) {
	if err := CheckUnique(CapacityCleanTable, capacityJoinKey, capacity, capacityJoinKeyOf); err != nil {
		return nil, err
	}
	capByKey := make(map[string]Opt[int64], len(capacity))
	for _, c := range capacity {
		capByKey[joinKey(capacityJoinKeyOf(c))] = c.Capacity
	}

	out := make([]SalesLine, len(lines))
	for i, l := range lines {
		l.SectionCapacity = capByKey[joinKey([]string{FormatOptDate(l.EventDate), l.Market, l.VenueID, l.Venue, l.Section})]
		out[i] = l
	}
	return out, nil
}

// SalesTable renders cleaned sales lines under the given table name.
func SalesTable(name string, lines []SalesLine) Table {
	t := Table{Name: name, Columns: SalesCleanColumns}
	t.Rows = make([][]string, 0, len(lines))
	for _, l := range lines {
		t.Rows = append(t.Rows, []string{
			FormatOptDate(l.EventDate), l.Section, l.Row, l.Seat,
			FormatOptFloat(l.TicketPrice), l.PurchaseChannel, l.AcctID,
			FormatOptInt(l.NumTickets), FormatOptFloat(l.TotalSpend),
			FormatOptInt(l.SectionCapacity), l.VenueID, l.Market, l.Venue,
		})
	}
	return t
}

// ParseSalesLines reads cleaned sales back for aggregation. section_capacity
// is optional.
func ParseSalesLines(t Table, rc *RunContext) ([]SalesLine, error) {
	t = NormalizeColumns(t)
	if err := ValidateSchema(t, SalesAggregateRequired...); err != nil {
		return nil, err
	}

	r := newColumnReader(t, SalesCleanColumns...)
	c := NewCleanedCoercer(t.Name)
	lines := make([]SalesLine, 0, t.Len())
	for _, row := range t.Rows {
		lines = append(lines, SalesLine{
			TicketLineItem:  parseTicketLine(r, c, row),
			SectionCapacity: c.Int("section_capacity", r.get(row, "section_capacity")),
			Market:          NormalizeText(r.get(row, "market")),
			VenueID:         NormalizeText(r.get(row, "venue_id")),
			Venue:           NormalizeText(r.get(row, "venue")),
		})
	}
	c.Flush(rc)
	return lines, nil
}

type salesKey struct {
	date    Opt[civil.Date]
	market  string
	venueID string
	venue   string
	section string
}

// AggregateSales reduces line items to the sales grain: tickets_sold and
// revenue are sums, avg_price is the mean ticket price. Missing values are
// skipped. The result is sorted by (event_date, market, venue_id, section).
func AggregateSales(lines []SalesLine) []SalesSectionAggregate {
	groups := groupBy(lines, func(l SalesLine) salesKey {
		return salesKey{l.EventDate, l.Market, l.VenueID, l.Venue, l.Section}
	})

	out := make([]SalesSectionAggregate, 0, len(groups))
	for _, g := range groups {
		out = append(out, SalesSectionAggregate{
			EventDate:   g.key.date,
			Market:      g.key.market,
			VenueID:     g.key.venueID,
			Venue:       g.key.venue,
			Section:     g.key.section,
			TicketsSold: sumInt(g.rows, func(l SalesLine) Opt[int64] { return l.NumTickets }),
			Revenue:     sumFloat(g.rows, func(l SalesLine) Opt[float64] { return l.TotalSpend }),
			AvgPrice:    meanFloat(g.rows, func(l SalesLine) Opt[float64] { return l.TicketPrice }),
		})
	}
	SortSalesAggregates(out)
	return out
}
