// Package schema defines the semantic column types of an uploaded sheet and
// the per-type coercion rules shared by inference, storage and the forms.
//
// Each Type owns exactly one coercion path. Inference tries them in the
// fixed order Integer, Real, Date, Text, and everything downstream reuses the
// same functions so a value accepted at upload time is accepted again when it
// is edited through a form.
package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Type is the semantic type of a column.
type Type int

const (
	// Text is the zero value: the fallback for anything that does not parse
	// as a narrower type.
	Text Type = iota
	Integer
	Real
	Date
)

// InferenceOrder is the order in which types are attempted during inference.
// Text comes last and accepts every value.
var InferenceOrder = []Type{Integer, Real, Date, Text}

func (t Type) String() string {
	switch t {
	case Integer:
		return "integer"
	case Real:
		return "real"
	case Date:
		return "date"
	default:
		return "text"
	}
}

// ParseType is the inverse of Type.String. Unknown names are an error.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "integer", "int":
		return Integer, nil
	case "real", "float":
		return Real, nil
	case "date":
		return Date, nil
	case "text", "string":
		return Text, nil
	default:
		return Text, fmt.Errorf("schema: unknown type %q", s)
	}
}

func (t Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Parse coerces a raw cell or form value using the default date preference.
// Blank input yields (nil, nil): null is valid for every type.
func (t Type) Parse(raw string) (any, error) {
	return t.ParseWith(raw, DateUS)
}

// ParseWith coerces raw into the canonical Go value for t:
//   - Integer: int64
//   - Real: float64
//   - Date: string in 2006-01-02 form
//   - Text: the trimmed string
func (t Type) ParseWith(raw string, pref DatePreference) (any, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	switch t {
	case Integer:
		n, ok := parseInteger(s)
		if !ok {
			return nil, fmt.Errorf("not an integer")
		}
		return n, nil
	case Real:
		f, ok := parseReal(s)
		if !ok {
			return nil, fmt.Errorf("not a number")
		}
		return f, nil
	case Date:
		d, ok := ParseDate(s, pref)
		if !ok {
			return nil, fmt.Errorf("not a recognised date")
		}
		return d.Format(ISODate), nil
	default:
		return s, nil
	}
}

// Coerce converts an already-typed value (or a raw string) into the canonical
// value for t.
func (t Type) Coerce(v any, pref DatePreference) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return t.ParseWith(x, pref)
	case []byte:
		return t.ParseWith(string(x), pref)
	case time.Time:
		switch t {
		case Date:
			return x.Format(ISODate), nil
		case Text:
			return x.Format(time.RFC3339), nil
		}
		return nil, fmt.Errorf("time value for %s column", t)
	case bool:
		return nil, fmt.Errorf("boolean value for %s column", t)
	}

	if n, ok := asInt64(v); ok {
		switch t {
		case Integer:
			return n, nil
		case Real:
			return float64(n), nil
		case Text:
			return strconv.FormatInt(n, 10), nil
		}
		return nil, fmt.Errorf("number value for date column")
	}
	if f, ok := asFloat64(v); ok {
		switch t {
		case Integer:
			if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
				return nil, fmt.Errorf("not an integer")
			}
			return int64(f), nil
		case Real:
			if math.IsInf(f, 0) || math.IsNaN(f) {
				return nil, fmt.Errorf("not a finite number")
			}
			return f, nil
		case Text:
			return FormatValue(f), nil
		}
		return nil, fmt.Errorf("number value for date column")
	}
	return t.ParseWith(fmt.Sprint(v), pref)
}

// Accepts reports whether raw coerces cleanly to t (blank counts as accepted).
func (t Type) Accepts(raw string, pref DatePreference) bool {
	_, err := t.ParseWith(raw, pref)
	return err == nil
}

// FormatValue renders a stored value for display and form pre-population.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		// Past the int64 range the plain form reads as an oversized integer.
		if math.Abs(x) >= 1<<63 {
			return strconv.FormatFloat(x, 'g', -1, 64)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case time.Time:
		return x.Format(ISODate)
	default:
		return fmt.Sprint(v)
	}
}

func parseInteger(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

// parseReal accepts plain decimal literals only. strconv.ParseFloat also
// takes "NaN", "Inf" and hex floats, none of which belong in a sheet column.
// Integer literals too large for int64 are rejected as well: rounding them
// through float64 would merge distinct values, so they stay text.
func parseReal(s string) (float64, bool) {
	if isIntegerLiteral(s) {
		if _, ok := parseInteger(s); !ok {
			return 0, false
		}
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.' || r == '-' || r == '+' || r == 'e' || r == 'E':
		default:
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// isIntegerLiteral reports whether s is an optional sign followed by digits.
func isIntegerLiteral(s string) bool {
	if s != "" && (s[0] == '+' || s[0] == '-') {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}
