package analysis

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// ErrBadControlEventRate rejects control event rates outside (0, 1).
var ErrBadControlEventRate = errors.New("analysis: control event rate must lie in (0, 1)")

// NNT converts a standardized mean difference into a number needed to treat
// by the Furukawa-Leucht method: the control event rate is mapped onto the
// normal curve, shifted by g, and mapped back to a risk difference. Positive
// g means benefit; a negative g yields a negative value, read as number
// needed to harm. g = 0 maps to +Inf.
func NNT(g, cer float64) (float64, error) {
	if cer <= 0 || cer >= 1 || math.IsNaN(cer) {
		return 0, fmt.Errorf("%w: %v", ErrBadControlEventRate, cer)
	}
	eer := distuv.UnitNormal.CDF(distuv.UnitNormal.Quantile(cer) + g)
	rd := eer - cer
	if rd == 0 {
		return math.Inf(1), nil
	}
	return 1 / rd, nil
}

// GFromNNT inverts NNT for the same control event rate, recovering the
// standardized mean difference exactly.
func GFromNNT(nnt, cer float64) (float64, error) {
	if cer <= 0 || cer >= 1 || math.IsNaN(cer) {
		return 0, fmt.Errorf("%w: %v", ErrBadControlEventRate, cer)
	}
	if nnt == 0 || math.IsNaN(nnt) {
		return 0, fmt.Errorf("analysis: cannot invert NNT %v", nnt)
	}
	eer := cer + 1/nnt
	if eer <= 0 || eer >= 1 {
		return 0, fmt.Errorf("analysis: NNT %v implies an event rate %v outside (0, 1)", nnt, eer)
	}
	return distuv.UnitNormal.Quantile(eer) - distuv.UnitNormal.Quantile(cer), nil
}
