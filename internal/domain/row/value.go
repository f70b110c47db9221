package row

import (
	"math"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind uint8

// Value kinds.
const (
	KindAbsent Kind = iota
	KindNumber
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	default:
		return "absent"
	}
}

// Value is a single tabular cell: absent, a number, or a string.
type Value struct {
	kind Kind
	num  float64
	str  string
}

// Absent returns the empty cell value.
func Absent() Value { return Value{} }

// Number wraps a numeric cell. NaN and infinities collapse to Absent.
func Number(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}
	}
	return Value{kind: KindNumber, num: f}
}

// String wraps a textual cell.
func String(s string) Value { return Value{kind: KindString, str: s} }

// ParseCell classifies raw cell text the way spreadsheet readers do:
// empty (after trimming) is Absent, a finite float is Number, anything else String.
func ParseCell(raw string) Value {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Absent()
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return Number(f)
	}
	return String(raw)
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether the cell is empty.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// Float returns the numeric payload and true for Number values.
func (v Value) Float() (float64, bool) { return v.num, v.kind == KindNumber }

// Text returns the string payload and true for String values.
func (v Value) Text() (string, bool) { return v.str, v.kind == KindString }

// Interface returns the payload as float64, string or nil.
func (v Value) Interface() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	default:
		return nil
	}
}

// Display renders the value for text synthesis. Absent renders as "".
func (v Value) Display() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindString:
		return v.str
	default:
		return ""
	}
}
