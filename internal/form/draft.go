package form

import "maps"

// Draft is an in-progress edit of a value together with the fields whose
// latest input was rejected. Drafts are values: every update returns a new one.
type Draft[T any] struct {
	Value   T
	Invalid map[string]string // field -> rejected raw input
}

// NewDraft starts a clean draft from v.
func NewDraft[T any](v T) Draft[T] {
	return Draft[T]{Value: v}
}

// Accept returns a draft carrying v with field no longer flagged.
func (d Draft[T]) Accept(field string, v T) Draft[T] {
	out := Draft[T]{Value: v}
	if len(d.Invalid) > 0 {
		out.Invalid = maps.Clone(d.Invalid)
		delete(out.Invalid, field)
	}
	return out
}

// Reject returns a draft that keeps the last valid value and flags field
// with the raw input the user typed.
func (d Draft[T]) Reject(field, raw string) Draft[T] {
	out := Draft[T]{Value: d.Value, Invalid: maps.Clone(d.Invalid)}
	if out.Invalid == nil {
		out.Invalid = make(map[string]string, 1)
	}
	out.Invalid[field] = raw
	return out
}

// Valid reports whether no field is flagged.
func (d Draft[T]) Valid() bool {
	return len(d.Invalid) == 0
}

// IsInvalid reports whether field is flagged.
func (d Draft[T]) IsInvalid(field string) bool {
	_, ok := d.Invalid[field]
	return ok
}

// Raw returns the rejected input of field, if flagged.
func (d Draft[T]) Raw(field string) (string, bool) {
	raw, ok := d.Invalid[field]
	return raw, ok
}

// Reducer applies one raw field input to a draft. Validation failures are
// recorded in the returned draft; the error is reserved for unknown fields.
type Reducer[T any] func(d Draft[T], field, input string) (Draft[T], error)
