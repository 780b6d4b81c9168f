// Package record implements grid rows as ordered mappings from column name to
// a tagged Value.
//
// A Record replaces duck-typed member lookups: columns are read and written by
// name through Get and Set, keep their insertion order, and serialize to JSON
// as an object in that order.
package record

import (
	"iter"
	"maps"
	"slices"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ParamsKey is the reserved column holding per-row client bookkeeping such as
// the absolute row index and the key signature.
const ParamsKey = "__rgparams"

// Record is an ordered set of named column values.
//
// The zero value is not usable; call New.
type Record struct {
	m *orderedmap.OrderedMap[string, Value]
}

// New returns an empty record.
func New() *Record {
	return &Record{m: orderedmap.New[string, Value]()}
}

// FromMap builds a record from a decoded JSON object. Keys are sorted since
// Go maps carry no order.
func FromMap(data map[string]any) *Record {
	r := New()
	for _, k := range slices.Sorted(maps.Keys(data)) {
		r.Set(k, data[k])
	}
	return r
}

// FromRow builds a record from a row of the grid data array aligned to
// columns. When types is non-nil, values are coerced to the data type of their
// column. Missing trailing values are Null.
func FromRow(columns []string, row []any, types map[string]DataType) *Record {
	r := &Record{m: orderedmap.New[string, Value](len(columns))}
	for i, name := range columns {
		var raw any
		if i < len(row) {
			raw = row[i]
		}
		if dt, ok := types[name]; ok {
			r.m.Set(name, Coerce(raw, dt))
		} else {
			r.m.Set(name, ValueOf(raw))
		}
	}
	return r
}

// Len returns the number of columns.
func (r *Record) Len() int {
	if r == nil || r.m == nil {
		return 0
	}
	return r.m.Len()
}

// Get returns the value of the named column. An exact match wins over a
// case-insensitive one.
func (r *Record) Get(name string) (Value, bool) {
	if r == nil || r.m == nil {
		return Null, false
	}
	if v, ok := r.m.Get(name); ok {
		return v, true
	}
	for p := r.m.Oldest(); p != nil; p = p.Next() {
		if strings.EqualFold(p.Key, name) {
			return p.Value, true
		}
	}
	return Null, false
}

// Value returns the named column, or Null.
func (r *Record) Value(name string) Value {
	v, _ := r.Get(name)
	return v
}

// Has reports whether the named column exists, ignoring case.
func (r *Record) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Set stores v, converted with ValueOf, under name. A new column is appended;
// an existing one keeps its position.
func (r *Record) Set(name string, v any) {
	r.m.Set(name, ValueOf(v))
}

// Delete removes the named column.
func (r *Record) Delete(name string) {
	r.m.Delete(name)
}

// Names returns the column names in order.
func (r *Record) Names() []string {
	names := make([]string, 0, r.Len())
	for name := range r.All() {
		names = append(names, name)
	}
	return names
}

// All iterates over the columns in order.
func (r *Record) All() iter.Seq2[string, Value] {
	return func(yield func(string, Value) bool) {
		if r == nil || r.m == nil {
			return
		}
		for p := r.m.Oldest(); p != nil; p = p.Next() {
			if !yield(p.Key, p.Value) {
				return
			}
		}
	}
}

// Row projects the record onto columns as a row of the grid data array.
// Missing columns are nil.
func (r *Record) Row(columns []string) []any {
	row := make([]any, len(columns))
	for i, name := range columns {
		if v, ok := r.Get(name); ok {
			row[i] = v.Any()
		}
	}
	return row
}

// Clone returns a deep copy. Nested records and value lists are copied too.
func (r *Record) Clone() *Record {
	c := &Record{m: orderedmap.New[string, Value](r.Len())}
	for k, v := range r.All() {
		c.m.Set(k, cloneValue(v))
	}
	return c
}

func cloneValue(v Value) Value {
	switch o := v.o.(type) {
	case *Record:
		return Object(o.Clone())
	case []Value:
		list := make([]Value, len(o))
		for i := range o {
			list[i] = cloneValue(o[i])
		}
		return Object(list)
	}
	return v
}

// Equal reports whether both records hold the same columns with equal values,
// regardless of order.
func (r *Record) Equal(o *Record) bool {
	if r.Len() != o.Len() {
		return false
	}
	for k, v := range r.All() {
		ov, ok := o.m.Get(k)
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Params returns the reserved bookkeeping record, creating it when absent.
func (r *Record) Params() *Record {
	if v, ok := r.m.Get(ParamsKey); ok {
		if p, ok := v.Record(); ok {
			return p
		}
	}
	p := New()
	r.m.Set(ParamsKey, Object(p))
	return p
}

// MarshalJSON implements json.Marshaler.
func (r *Record) MarshalJSON() ([]byte, error) {
	if r == nil || r.m == nil {
		return []byte("null"), nil
	}
	return r.m.MarshalJSON()
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Record) UnmarshalJSON(data []byte) error {
	if r.m == nil {
		r.m = orderedmap.New[string, Value]()
	}
	return r.m.UnmarshalJSON(data)
}

func (r *Record) String() string {
	var b strings.Builder
	b.WriteByte('{')
	i := 0
	for k, v := range r.All() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v.String())
		i++
	}
	b.WriteByte('}')
	return b.String()
}
