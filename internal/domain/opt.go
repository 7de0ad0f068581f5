package domain

// Opt holds a value that may be missing. The zero value is missing.
//
// Source tables use empty or unparseable cells for absent measures; Opt keeps
// that distinction explicit so aggregation never does arithmetic on a missing
// cell by accident.
type Opt[T any] struct {
	v  T
	ok bool
}

// Some wraps a present value.
func Some[T any](v T) Opt[T] {
	return Opt[T]{v: v, ok: true}
}

// None returns a missing value.
func None[T any]() Opt[T] {
	return Opt[T]{}
}

// Get returns the value and whether it is present.
func (o Opt[T]) Get() (T, bool) {
	return o.v, o.ok
}

// Valid reports whether the value is present.
func (o Opt[T]) Valid() bool {
	return o.ok
}

// Or returns the value, or def when missing.
func (o Opt[T]) Or(def T) T {
	if !o.ok {
		return def
	}
	return o.v
}

// Ptr returns a pointer to a copy of the value, or nil when missing.
func (o Opt[T]) Ptr() *T {
	if !o.ok {
		return nil
	}
	v := o.v
	return &v
}
