package domain

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	slugRe       = regexp.MustCompile(`[^a-z0-9]+`)

	// dateLayouts are tried in order after ISO dates; only the calendar date
	// of the parsed value is kept.
	dateLayouts = []string{
		"2006-01-02T15:04",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		"2006-01-02 15:04:05",
		time.RFC3339,
		"2006/01/02",
		"1/2/2006",
		"1/2/2006 15:04",
		"01/02/2006",
	}

	// timestampLayouts cover the Open-Meteo hourly format and common variants.
	timestampLayouts = []string{
		"2006-01-02T15:04",
		"2006-01-02T15:04:05",
		time.RFC3339,
		"2006-01-02 15:04",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
)

// NormalizeText trims edge whitespace.
func NormalizeText(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeSection canonicalizes a section name so sales and capacity agree:
// trimmed, inner whitespace collapsed to one space, title-cased.
// "  lower   BOWL 101 " becomes "Lower Bowl 101".
func NormalizeSection(s string) string {
	s = whitespaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
	return cases.Title(language.English).String(s)
}

// Slugify builds a stable identifier from text parts: joined with "_",
// lower-cased, runs of non-alphanumerics collapsed to "_", edges trimmed.
func Slugify(parts ...string) string {
	s := strings.ToLower(strings.Join(parts, "_"))
	s = slugRe.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// ParseDate parses a calendar date. Timestamps are truncated to their date.
func ParseDate(s string) (civil.Date, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.Date{}, false
	}
	if d, err := civil.ParseDate(s); err == nil {
		return d, true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t), true
		}
	}
	return civil.Date{}, false
}

// ParseTimestamp parses an hourly observation time. Values without an offset
// are kept as wall-clock time in UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseFloat parses a finite number.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseInt parses an integral number. "3" and "3.0" are accepted, "2.5" is not.
func ParseInt(s string) (int64, bool) {
	v, ok := ParseFloat(s)
	if !ok || v != math.Trunc(v) || math.Abs(v) > 1<<53 {
		return 0, false
	}
	return int64(v), true
}

// Round2 rounds to two decimal places, half away from zero.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Coercer parses the cells of one table into typed values and tallies the
// cells it had to carry as missing, per column. Call Flush once the table has
// been read to log and record the tallies.
type Coercer struct {
	table       string
	skipEmpty   bool
	unparseable map[string]int
	empty       map[string]int
	order       []string
}

// NewCoercer creates a Coercer for the named table.
func NewCoercer(table string) *Coercer {
	return &Coercer{
		table:       table,
		unparseable: make(map[string]int),
		empty:       make(map[string]int),
	}
}

// NewCleanedCoercer creates a Coercer for a table the pipeline wrote itself.
// Empty cells there are missing values rendered by an earlier stage and are
// not tallied; only non-empty cells that fail to parse count.
func NewCleanedCoercer(table string) *Coercer {
	c := NewCoercer(table)
	c.skipEmpty = true
	return c
}

func (c *Coercer) miss(column, raw string) {
	blank := strings.TrimSpace(raw) == ""
	if blank && c.skipEmpty {
		return
	}
	if _, seen := c.unparseable[column]; !seen {
		if _, seen := c.empty[column]; !seen {
			c.order = append(c.order, column)
		}
	}
	if blank {
		c.empty[column]++
		return
	}
	c.unparseable[column]++
}

// Date parses raw as a calendar date.
func (c *Coercer) Date(column, raw string) Opt[civil.Date] {
	d, ok := ParseDate(raw)
	if !ok {
		c.miss(column, raw)
		return None[civil.Date]()
	}
	return Some(d)
}

// Timestamp parses raw as an observation time.
func (c *Coercer) Timestamp(column, raw string) Opt[time.Time] {
	t, ok := ParseTimestamp(raw)
	if !ok {
		c.miss(column, raw)
		return None[time.Time]()
	}
	return Some(t)
}

// Float parses raw as a real number.
func (c *Coercer) Float(column, raw string) Opt[float64] {
	v, ok := ParseFloat(raw)
	if !ok {
		c.miss(column, raw)
		return None[float64]()
	}
	return Some(v)
}

// Int parses raw as an integer.
func (c *Coercer) Int(column, raw string) Opt[int64] {
	v, ok := ParseInt(raw)
	if !ok {
		c.miss(column, raw)
		return None[int64]()
	}
	return Some(v)
}

// Missing returns the number of cells carried as missing for column.
func (c *Coercer) Missing(column string) int {
	return c.unparseable[column] + c.empty[column]
}

// Flush records one coercion warning per affected column on rc.
func (c *Coercer) Flush(rc *RunContext) {
	for _, col := range c.order {
		rc.Warn(WarnCoercion, c.Missing(col), "values carried as missing",
			"table", c.table,
			"column", col,
			"unparseable", c.unparseable[col],
			"empty", c.empty[col],
		)
	}
}

// FormatFloat renders a number with the shortest exact representation.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatOptFloat renders a missing value as an empty cell.
func FormatOptFloat(v Opt[float64]) string {
	f, ok := v.Get()
	if !ok {
		return ""
	}
	return FormatFloat(f)
}

// FormatOptInt renders a missing value as an empty cell.
func FormatOptInt(v Opt[int64]) string {
	n, ok := v.Get()
	if !ok {
		return ""
	}
	return strconv.FormatInt(n, 10)
}

// FormatOptDate renders a missing date as an empty cell.
func FormatOptDate(v Opt[civil.Date]) string {
	d, ok := v.Get()
	if !ok {
		return ""
	}
	return d.String()
}
