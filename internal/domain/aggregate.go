package domain

// group is one grain key with the rows that reduce into it.
type group[K comparable, T any] struct {
	key  K
	rows []T
}

// groupBy partitions rows by key, keeping groups in first-seen order so the
// result is deterministic before sorting.
func groupBy[T any, K comparable](rows []T, keyFn func(T) K) []group[K, T] {
	index := make(map[K]int)
	var groups []group[K, T]
	for _, r := range rows {
		k := keyFn(r)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, group[K, T]{key: k})
		}
		groups[i].rows = append(groups[i].rows, r)
	}
	return groups
}

// Reducers skip missing values. A sum over only missing values is 0; a mean,
// min or max over only missing values is missing.

func sumFloat[T any](rows []T, f func(T) Opt[float64]) float64 {
	var s float64
	for _, r := range rows {
		if v, ok := f(r).Get(); ok {
			s += v
		}
	}
	return s
}

func sumInt[T any](rows []T, f func(T) Opt[int64]) int64 {
	var s int64
	for _, r := range rows {
		if v, ok := f(r).Get(); ok {
			s += v
		}
	}
	return s
}

func meanFloat[T any](rows []T, f func(T) Opt[float64]) Opt[float64] {
	var (
		s float64
		n int
	)
	for _, r := range rows {
		if v, ok := f(r).Get(); ok {
			s += v
			n++
		}
	}
	if n == 0 {
		return None[float64]()
	}
	return Some(s / float64(n))
}

func minFloat[T any](rows []T, f func(T) Opt[float64]) Opt[float64] {
	return extremum(rows, f, func(a, b float64) bool { return a < b })
}

func maxFloat[T any](rows []T, f func(T) Opt[float64]) Opt[float64] {
	return extremum(rows, f, func(a, b float64) bool { return a > b })
}

func extremum[T any](rows []T, f func(T) Opt[float64], better func(a, b float64) bool) Opt[float64] {
	out := None[float64]()
	for _, r := range rows {
		v, ok := f(r).Get()
		if !ok {
			continue
		}
		if cur, has := out.Get(); !has || better(v, cur) {
			out = Some(v)
		}
	}
	return out
}

func countIf[T any](rows []T, pred func(T) bool) int64 {
	var n int64
	for _, r := range rows {
		if pred(r) {
			n++
		}
	}
	return n
}

// roundOpt applies Round2 to a present value.
func roundOpt(v Opt[float64]) Opt[float64] {
	f, ok := v.Get()
	if !ok {
		return v
	}
	return Some(Round2(f))
}
