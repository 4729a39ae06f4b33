package dataset

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownLayout reports a layout tag that is neither "long" nor "wide".
var ErrUnknownLayout = errors.New("dataset: unknown layout")

// Layout distinguishes the two recognized dataset shapes. Wide tables carry
// one row per comparison with suffix-paired arm columns; long tables carry
// one row per trial arm with a condition role column.
type Layout uint8

const (
	// LayoutUnknown is the zero value; no stage accepts it.
	LayoutUnknown Layout = iota
	// LayoutLong is the arm-per-row shape.
	LayoutLong
	// LayoutWide is the comparison-per-row shape consumed by the expander
	// and the effect-size calculator.
	LayoutWide
)

// String returns the canonical layout tag.
func (l Layout) String() string {
	switch l {
	case LayoutLong:
		return "long"
	case LayoutWide:
		return "wide"
	default:
		return "unknown"
	}
}

// Normalized is a checked table tagged with its resolved layout. Downstream
// stages switch on Layout instead of re-deriving the shape from column names.
type Normalized struct {
	Table  *Table
	Layout Layout
}

// ParseLayout resolves a layout tag. The tag is required: there is no
// interactive fallback and no default.
func ParseLayout(raw string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "long":
		return LayoutLong, nil
	case "wide":
		return LayoutWide, nil
	default:
		return LayoutUnknown, fmt.Errorf("%w: %q (expected \"long\" or \"wide\")", ErrUnknownLayout, raw)
	}
}
