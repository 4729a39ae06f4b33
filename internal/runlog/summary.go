package runlog

import (
	"encoding/json"
	"math"

	"git.home.luguber.info/inful/metapipe/internal/analysis"
)

// Float is a float64 whose JSON form uses null for NaN and infinities, which
// encoding/json otherwise refuses to emit.
type Float float64

// MarshalJSON implements json.Marshaler.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// UnmarshalJSON implements json.Unmarshaler; null becomes NaN.
func (f *Float) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = Float(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// Summary captures the headline numbers of one run.
type Summary struct {
	K        int    `json:"k"`
	Studies  int    `json:"studies"`
	Masked   int    `json:"masked"`
	Estimate Float  `json:"estimate"`
	CILower  Float  `json:"ci_lower"`
	CIUpper  Float  `json:"ci_upper"`
	P        Float  `json:"p"`
	Tau2     Float  `json:"tau2"`
	I2       Float  `json:"i2"`
	NNT      Float  `json:"nnt"`
	Warnings int    `json:"warnings,omitempty"`
	Note     string `json:"note,omitempty"`
}

// Summarize flattens an analysis result into a Summary.
func Summarize(res analysis.Result) Summary {
	nnt := math.NaN()
	if res.NNT != 0 {
		nnt = res.NNT
	}
	return Summary{
		K:        res.K,
		Studies:  res.Studies,
		Masked:   res.Masked,
		Estimate: Float(res.Fit.Estimate),
		CILower:  Float(res.Fit.CILower),
		CIUpper:  Float(res.Fit.CIUpper),
		P:        Float(res.Fit.P),
		Tau2:     Float(res.Fit.Tau2),
		I2:       Float(res.Fit.I2),
		NNT:      Float(nnt),
	}
}
