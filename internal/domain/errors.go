package domain

import (
	"fmt"
	"strings"
)

// MissingInputError reports that a required input table is absent, either
// because it was never provided or because the stage that produces it failed.
type MissingInputError struct {
	Name string
	Path string
}

func (e *MissingInputError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("missing input %s", e.Name)
	}
	return fmt.Sprintf("missing input %s: %s", e.Name, e.Path)
}

// SchemaValidationError reports required columns absent from a table.
type SchemaValidationError struct {
	Table   string
	Missing []string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("%s missing columns: %s", e.Table, strings.Join(e.Missing, ", "))
}

// DuplicateKeyError reports that a table meant to be the "one" side of a
// many-to-one join repeats at least one key tuple.
type DuplicateKeyError struct {
	Table string
	Key   []string
	// Sample holds up to MaxDuplicateSample distinct offending key tuples in
	// first-seen order.
	Sample [][]string
	// Rows is the total number of rows whose key is not unique.
	Rows int
}

func (e *DuplicateKeyError) Error() string {
	samples := make([]string, len(e.Sample))
	for i, s := range e.Sample {
		samples[i] = "(" + strings.Join(s, ", ") + ")"
	}
	return fmt.Sprintf("%s has %d rows with duplicate keys on (%s); sample: %s",
		e.Table, e.Rows, strings.Join(e.Key, ", "), strings.Join(samples, " "))
}

// MarketDimensionError reports an unusable market dimension.
type MarketDimensionError struct {
	Reason string
}

func (e *MarketDimensionError) Error() string {
	return "market dimension: " + e.Reason
}
