package record

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Type coercion maps JSON wire values to the Value variant of a column.
//
// JSON wire type → decoded Go type → Value by column data type:
//
//	null        → nil     → Null for every type
//	true/false  → bool    → Bool; Int 0/1 for Integer; "True"/"False" for String
//	123         → float64 → Int for Integer; Float for Decimal; String for String
//	"text"      → string  → parsed when the column type is numeric, boolean or a
//	                        date, left as String when parsing fails
//	[...] {...} → any     → Object, never coerced
//
// DataTypeUndefined applies no coercion beyond ValueOf.

// DataType is the client-side data type of an entity property.
type DataType int

const (
	DataTypeUndefined DataType = iota
	DataTypeString
	DataTypeInteger
	DataTypeDecimal
	DataTypeDouble
	DataTypeBoolean
	DataTypeDateTime
)

func (d DataType) String() string {
	switch d {
	case DataTypeString:
		return "String"
	case DataTypeInteger:
		return "Integer"
	case DataTypeDecimal:
		return "Decimal"
	case DataTypeDouble:
		return "Double"
	case DataTypeBoolean:
		return "Boolean"
	case DataTypeDateTime:
		return "DateTime"
	default:
		return "Undefined"
	}
}

// IsNumeric reports whether values of d are numbers.
func (d DataType) IsNumeric() bool {
	return d == DataTypeInteger || d == DataTypeDecimal || d == DataTypeDouble
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses the date formats the server emits.
func ParseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Coerce converts a raw wire value to the Value variant of data type dt.
func Coerce(raw any, dt DataType) Value {
	v := ValueOf(raw)
	if v.kind == KindNull || v.kind == KindObject {
		return v
	}
	switch dt {
	case DataTypeString:
		return coerceToString(v)
	case DataTypeInteger:
		return coerceToInteger(v)
	case DataTypeDecimal, DataTypeDouble:
		return coerceToFloat(v)
	case DataTypeBoolean:
		return coerceToBool(v)
	case DataTypeDateTime:
		return coerceToTime(v)
	default:
		return v
	}
}

func coerceToString(v Value) Value {
	if v.kind == KindString {
		return v
	}
	if v.kind == KindFloat && v.f == math.Trunc(v.f) && !math.IsInf(v.f, 0) {
		return String(strconv.FormatInt(int64(v.f), 10))
	}
	return String(v.String())
}

func coerceToInteger(v Value) Value {
	switch v.kind {
	case KindInt:
		return v
	case KindFloat:
		return Int(int64(v.f))
	case KindBool:
		if v.b {
			return Int(1)
		}
		return Int(0)
	case KindString:
		if i, err := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64); err == nil {
			return Int(i)
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64); err == nil {
			return Int(int64(f))
		}
	}
	return v
}

func coerceToFloat(v Value) Value {
	switch v.kind {
	case KindFloat:
		return v
	case KindInt:
		return Float(float64(v.i))
	case KindBool:
		if v.b {
			return Float(1)
		}
		return Float(0)
	case KindString:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64); err == nil {
			return Float(f)
		}
	}
	return v
}

func coerceToBool(v Value) Value {
	switch v.kind {
	case KindBool:
		return v
	case KindInt:
		return Bool(v.i != 0)
	case KindFloat:
		return Bool(v.f != 0)
	case KindString:
		switch strings.ToLower(strings.TrimSpace(v.s)) {
		case "true", "1":
			return Bool(true)
		case "false", "0":
			return Bool(false)
		}
	}
	return v
}

func coerceToTime(v Value) Value {
	if v.kind == KindString {
		if t, ok := ParseTime(v.s); ok {
			return Time(t)
		}
	}
	return v
}
