package ir

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the semantic type of a column.
type Kind string

const (
	KindText   Kind = "text"
	KindNumber Kind = "number"
	KindDate   Kind = "date"

	// KindInt is never declared by a layout. It types derived columns
	// (ids, flags, transformed years).
	KindInt Kind = "int"
)

// DateLayout is the storage form of every date value.
const DateLayout = "2006-01-02"

// Value is a sealed interface representing a typed attribute value.
// Only Null, Text, Number, Int and Date implement it.
type Value interface {
	value() // Sealed - only these types implement it

	// Param returns the database/sql parameter form of the value.
	Param() any
}

// Null is an absent value.
type Null struct{}

func (Null) value()     {}
func (Null) Param() any { return nil }

// Text is a string attribute.
type Text string

func (Text) value()       {}
func (t Text) Param() any { return string(t) }

// Number is a numeric attribute as declared by a NUMBER layout column.
type Number float64

func (Number) value()       {}
func (n Number) Param() any { return float64(n) }

// Int is an integer attribute.
type Int int64

func (Int) value()       {}
func (i Int) Param() any { return int64(i) }

// Date is a civil date in DateLayout form.
type Date string

func (Date) value()       {}
func (d Date) Param() any { return string(d) }

// IsNull reports whether v is absent. A nil Value counts as absent.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// ParseValue coerces raw text into a Value of the given kind.
// Empty (after trimming) input is Null for every kind.
// format is a Go time layout and only applies to KindDate; empty means DateLayout.
func ParseValue(kind Kind, raw, format string) (Value, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Null{}, nil
	}

	switch kind {
	case KindText, "":
		return Text(s), nil
	case KindNumber:
		return parseNumber(s)
	case KindInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse int %q: %w", s, err)
		}
		return Int(n), nil
	case KindDate:
		if format == "" {
			format = DateLayout
		}
		t, err := time.Parse(format, s)
		if err != nil {
			return nil, fmt.Errorf("parse date %q with layout %q: %w", s, format, err)
		}
		return Date(t.Format(DateLayout)), nil
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
}

// parseNumber accepts finite decimal numbers only. NaN, infinities and
// hex floats are rejected even though strconv understands them.
func parseNumber(s string) (Value, error) {
	digits := strings.ReplaceAll(s, ",", "")
	unsigned := strings.TrimLeft(digits, "+-")
	if strings.HasPrefix(unsigned, "0x") || strings.HasPrefix(unsigned, "0X") {
		return nil, fmt.Errorf("parse number %q: hex notation not allowed", s)
	}
	f, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return nil, fmt.Errorf("parse number %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("parse number %q: not a finite number", s)
	}
	return Number(f), nil
}

// String renders v for text output. Null renders as the empty string.
func String(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return ""
	case Text:
		return string(val)
	case Number:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Date:
		return string(val)
	default:
		return fmt.Sprint(v)
	}
}
