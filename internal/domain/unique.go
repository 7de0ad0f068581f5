package domain

import (
	"strconv"
	"strings"
)

// MaxDuplicateSample caps the offending key tuples reported by CheckUnique.
const MaxDuplicateSample = 10

// joinKey encodes key parts as one map key. Each part is quoted, so distinct
// tuples never share an encoding whatever characters the cells hold.
func joinKey(parts []string) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strconv.Quote(p))
	}
	return b.String()
}

// CheckUnique verifies that no two rows share a key tuple. It must pass before
// rows are used as the "one" side of a many-to-one join; otherwise the join
// would multiply left rows. keyFn returns the rendered key parts of a row, in
// the order of keyColumns.
func CheckUnique[T any](table string, keyColumns []string, rows []T, keyFn func(T) []string) error {
	counts := make(map[string]int, len(rows))
	var order []string
	parts := make(map[string][]string)

	for _, r := range rows {
		kp := keyFn(r)
		k := joinKey(kp)
		if counts[k] == 0 {
			order = append(order, k)
			parts[k] = kp
		}
		counts[k]++
	}

	var (
		dupRows int
		sample  [][]string
	)
	for _, k := range order {
		n := counts[k]
		if n < 2 {
			continue
		}
		dupRows += n
		if len(sample) < MaxDuplicateSample {
			sample = append(sample, parts[k])
		}
	}
	if dupRows == 0 {
		return nil
	}
	return &DuplicateKeyError{
		Table:  table,
		Key:    keyColumns,
		Sample: sample,
		Rows:   dupRows,
	}
}
