package metastats

import "math"

// LeaveOneOutRow is the pooled fit with one comparison omitted.
type LeaveOneOutRow struct {
	Omitted int // index into the input slices
	Fit     FitResult
}

// LeaveOneOut refits the random-effects model k times, omitting one
// comparison each round. At k=2 the remaining single estimate is shaped as a
// degenerate fit instead of failing.
func LeaveOneOut(es, se []float64, opts Options) ([]LeaveOneOutRow, error) {
	if err := validate(es, se); err != nil {
		return nil, err
	}

	rows := make([]LeaveOneOutRow, 0, len(es))
	for omit := range es {
		res := make([]float64, 0, len(es)-1)
		rse := make([]float64, 0, len(se)-1)
		for i := range es {
			if i == omit {
				continue
			}
			res = append(res, es[i])
			rse = append(rse, se[i])
		}

		var fit FitResult
		if len(res) == 1 {
			fit = singleComparisonFit(res[0], rse[0], opts)
		} else {
			var err error
			fit, err = RandomEffects(res, rse, opts)
			if err != nil {
				return nil, err
			}
		}
		rows = append(rows, LeaveOneOutRow{Omitted: omit, Fit: fit})
	}
	return rows, nil
}

// MostInfluential returns the omission index shifting the pooled estimate
// furthest from the full-data fit, with the shift size.
func MostInfluential(full FitResult, rows []LeaveOneOutRow) (omitted int, shift float64) {
	omitted = -1
	for _, r := range rows {
		d := math.Abs(r.Fit.Estimate - full.Estimate)
		if d > shift {
			shift = d
			omitted = r.Omitted
		}
	}
	return omitted, shift
}
