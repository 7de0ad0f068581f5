package domain

import (
	"io"
	"log/slog"
)

// WarningKind classifies non-fatal data quality findings.
type WarningKind string

const (
	// WarnCoercion counts cells that could not be parsed as a number, date or
	// timestamp and were carried as missing.
	WarnCoercion WarningKind = "numeric_coercion"
	// WarnSpendMismatch counts line items where total_spend differs from
	// ticket_price × num_tickets after rounding to cents.
	WarnSpendMismatch WarningKind = "spend_mismatch"
	// WarnUnmatchedVenue counts hourly weather rows whose (market, venue) is
	// not in the market dimension.
	WarnUnmatchedVenue WarningKind = "unmatched_venue"
	// WarnUntimedObservation counts hourly weather rows dropped from daily
	// aggregation because their timestamp could not be parsed.
	WarnUntimedObservation WarningKind = "untimed_observation"
)

// RunContext carries per-run state through every stage: the logger and the
// warning counters. One RunContext is created per pipeline run.
type RunContext struct {
	Logger *slog.Logger

	// OnWarning, when set, is called for every recorded warning batch.
	OnWarning func(kind WarningKind, n int)

	warnings map[WarningKind]int
}

// NewRunContext creates a RunContext. A nil logger discards output.
func NewRunContext(logger *slog.Logger) *RunContext {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &RunContext{
		Logger:   logger,
		warnings: make(map[WarningKind]int),
	}
}

// Warn records n occurrences of kind and logs msg with the count attached.
// Calls with n <= 0 are ignored.
func (rc *RunContext) Warn(kind WarningKind, n int, msg string, args ...any) {
	if n <= 0 {
		return
	}
	rc.warnings[kind] += n
	rc.Logger.Warn(msg, append([]any{"kind", string(kind), "count", n}, args...)...)
	if rc.OnWarning != nil {
		rc.OnWarning(kind, n)
	}
}

// Warnings returns the number of warnings recorded for kind.
func (rc *RunContext) Warnings(kind WarningKind) int {
	return rc.warnings[kind]
}

// TotalWarnings returns the number of warnings of every kind.
func (rc *RunContext) TotalWarnings() int {
	total := 0
	for _, n := range rc.warnings {
		total += n
	}
	return total
}
