package normalize

import (
	"fmt"
	"strings"

	"git.home.luguber.info/inful/metapipe/internal/dataset"
)

// ColumnType names the value class a column is required to hold.
type ColumnType int

const (
	// TypeAny accepts every value unchanged.
	TypeAny ColumnType = iota
	// TypeNumeric requires int or float cells.
	TypeNumeric
	// TypeBool requires boolean cells.
	TypeBool
	// TypeString requires string cells.
	TypeString
)

// String returns the human-readable type name.
func (c ColumnType) String() string {
	switch c {
	case TypeAny:
		return "any"
	case TypeNumeric:
		return "numeric"
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	default:
		return "unknown"
	}
}

// CoercionOutcome tags what happened to one cell during best-effort type
// conversion. There is no silent path: a cell either already conformed, was
// converted, or kept its original value with a recorded reason.
type CoercionOutcome int

const (
	// CoercionConformed means the cell already had the required type.
	CoercionConformed CoercionOutcome = iota
	// CoercionConverted means the cell was rewritten to the required type.
	CoercionConverted
	// CoercionKeptOriginal means the cell could not be converted and keeps
	// its original value; Reason says why.
	CoercionKeptOriginal
)

// Coercion is the explicit per-cell conversion result.
type Coercion struct {
	Outcome CoercionOutcome
	Reason  string // set only for CoercionKeptOriginal
}

func conformed() Coercion { return Coercion{Outcome: CoercionConformed} }
func converted() Coercion { return Coercion{Outcome: CoercionConverted} }

func keptOriginal(reason string) Coercion {
	return Coercion{Outcome: CoercionKeptOriginal, Reason: reason}
}

// coerceValue converts one cell toward the required type. Missing cells
// conform to every type.
func coerceValue(v dataset.Value, want ColumnType) (dataset.Value, Coercion) {
	if v.IsMissing() || want == TypeAny {
		return v, conformed()
	}

	switch want {
	case TypeNumeric:
		switch v.Kind() {
		case dataset.KindInt, dataset.KindFloat:
			return v, conformed()
		case dataset.KindBool:
			b, _ := v.AsBool()
			if b {
				return dataset.Int(1), converted()
			}
			return dataset.Int(0), converted()
		case dataset.KindString:
			s, _ := v.AsString()
			parsed := dataset.Parse(s)
			switch parsed.Kind() {
			case dataset.KindInt, dataset.KindFloat, dataset.KindMissing:
				return parsed, converted()
			}
			return v, keptOriginal(fmt.Sprintf("%q is not numeric", s))
		}

	case TypeBool:
		switch v.Kind() {
		case dataset.KindBool:
			return v, conformed()
		case dataset.KindInt:
			i, _ := v.AsInt()
			switch i {
			case 0:
				return dataset.Bool(false), converted()
			case 1:
				return dataset.Bool(true), converted()
			}
			return v, keptOriginal(fmt.Sprintf("%d is not 0/1", i))
		case dataset.KindString:
			s, _ := v.AsString()
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "true", "t", "yes", "y", "1":
				return dataset.Bool(true), converted()
			case "false", "f", "no", "n", "0":
				return dataset.Bool(false), converted()
			}
			return v, keptOriginal(fmt.Sprintf("%q is not boolean", s))
		case dataset.KindFloat:
			f, _ := v.AsFloat()
			switch f {
			case 0:
				return dataset.Bool(false), converted()
			case 1:
				return dataset.Bool(true), converted()
			}
			return v, keptOriginal(fmt.Sprintf("%v is not 0/1", f))
		}

	case TypeString:
		if v.Kind() == dataset.KindString {
			return v, conformed()
		}
		return dataset.String(v.String()), converted()
	}

	return v, keptOriginal(fmt.Sprintf("unsupported kind %s", v.Kind()))
}
