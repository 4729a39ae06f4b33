package dataset

import (
	"strconv"
	"strings"
)

// Kind identifies the scalar type held by a Value.
type Kind uint8

const (
	// KindMissing marks an absent observation (NA).
	KindMissing Kind = iota
	// KindString holds free text.
	KindString
	// KindFloat holds a floating-point number.
	KindFloat
	// KindInt holds an integer.
	KindInt
	// KindBool holds a logical value.
	KindBool
)

// String returns the lowercase kind name used in diagnostics.
func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindString:
		return "string"
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Value is a single table cell: a tagged scalar that is either missing or holds
// exactly one of the supported kinds. The zero Value is missing.
type Value struct {
	kind Kind
	s    string
	f    float64
	i    int64
	b    bool
}

// Missing returns the NA value.
func Missing() Value { return Value{} }

// String wraps a text value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Float wraps a floating-point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Int wraps an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Bool wraps a logical value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind reports the scalar type of the value.
func (v Value) Kind() Kind { return v.kind }

// IsMissing reports whether the value is NA.
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// AsString returns the text content. ok is false for every other kind.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsFloat returns the numeric content, widening integers. ok is false for
// missing and non-numeric kinds.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// AsInt returns the integer content. Floats are not narrowed; use AsFloat for
// numeric reads that tolerate either kind.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// AsBool returns the logical content.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Equal reports exact equality of kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindMissing:
		return true
	case KindString:
		return v.s == o.s
	case KindFloat:
		return v.f == o.f
	case KindInt:
		return v.i == o.i
	case KindBool:
		return v.b == o.b
	}
	return false
}

// String renders the display form used in reports and CSV export. Missing
// values render as "NA".
func (v Value) String() string {
	switch v.kind {
	case KindMissing:
		return "NA"
	case KindString:
		return v.s
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindBool:
		if v.b {
			return "TRUE"
		}
		return "FALSE"
	}
	return "NA"
}

// missingSpellings are the raw tokens treated as NA on input, compared
// case-insensitively after trimming.
var missingSpellings = map[string]struct{}{
	"":    {},
	"na":  {},
	"n/a": {},
	"nan": {},
	".":   {},
}

// IsMissingToken reports whether a raw input token denotes NA.
func IsMissingToken(raw string) bool {
	_, ok := missingSpellings[strings.ToLower(strings.TrimSpace(raw))]
	return ok
}

// Parse infers the best-fitting Value for a raw input token: NA spellings,
// then integer, then float, then logical (TRUE/FALSE), then text. Surrounding
// whitespace is not significant for anything but text content.
func Parse(raw string) Value {
	if IsMissingToken(raw) {
		return Missing()
	}
	trimmed := strings.TrimSpace(raw)
	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return Int(i)
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return Float(f)
	}
	switch strings.ToLower(trimmed) {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	return String(trimmed)
}
