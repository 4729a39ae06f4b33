package analysis

import (
	"fmt"
	"math"

	"git.home.luguber.info/inful/metapipe/internal/dataset"
	"git.home.luguber.info/inful/metapipe/internal/metastats"
)

// BetweenGroupsLabel marks the trailing row carrying a categorical
// moderator's between-groups test.
const BetweenGroupsLabel = "(between groups)"

// moderatorTable fits every requested moderator over the collapsed table: a
// stratified fit per level for categorical columns, a meta-regression for
// numeric ones. Rows come back sorted by variable name, groups in encounter
// order within a variable.
func moderatorTable(collapsed dataset.Normalized, spec Spec) ([]SubgroupRow, error) {
	t := collapsed.Table
	es, se, _ := effectArrays(t)

	var rows []SubgroupRow
	for _, variable := range spec.SubgroupVars {
		if !t.HasColumn(variable) {
			return nil, fmt.Errorf("analysis: no moderator column %q", variable)
		}

		ves, vse, cells := moderatorValues(t, es, se, variable)
		var (
			add []SubgroupRow
			err error
		)
		if numericColumn(cells) {
			add, err = regressionRows(ves, vse, cells, variable, spec)
		} else {
			add, err = subgroupRows(ves, vse, cells, variable, spec)
		}
		if err != nil {
			return nil, fmt.Errorf("analysis: moderator %q: %w", variable, err)
		}
		rows = append(rows, add...)
	}

	sortSubgroupRows(rows)
	return rows, nil
}

// moderatorValues keeps the rows where the moderator is present, aligned
// across effect, standard error, and moderator cell.
func moderatorValues(t *dataset.Table, es, se []float64, column string) (ves, vse []float64, cells []dataset.Value) {
	for i := range es {
		cell := t.Cell(i, column)
		if cell.IsMissing() {
			continue
		}
		ves = append(ves, es[i])
		vse = append(vse, se[i])
		cells = append(cells, cell)
	}
	return ves, vse, cells
}

// numericColumn reports whether every present cell reads as a number.
func numericColumn(cells []dataset.Value) bool {
	if len(cells) == 0 {
		return false
	}
	for _, c := range cells {
		if _, ok := c.AsFloat(); !ok {
			return false
		}
	}
	return true
}

func subgroupRows(es, se []float64, cells []dataset.Value, variable string, spec Spec) ([]SubgroupRow, error) {
	labels := make([]string, len(cells))
	for i, c := range cells {
		labels[i] = c.String()
	}

	res, err := metastats.Subgroups(es, se, labels, spec.options())
	if err != nil {
		return nil, err
	}

	rows := make([]SubgroupRow, 0, len(res.Groups)+1)
	for _, g := range res.Groups {
		row := SubgroupRow{
			Variable: variable,
			Group:    g.Group,
			K:        g.Fit.K,
			Estimate: g.Fit.Estimate,
			CILower:  g.Fit.CILower,
			CIUpper:  g.Fit.CIUpper,
			I2:       g.Fit.I2,
			NNT:      math.NaN(),
			P:        g.Fit.P,
		}
		if spec.CER != 0 {
			nnt, err := NNT(g.Fit.Estimate, spec.CER)
			if err != nil {
				return nil, err
			}
			row.NNT = nnt
		}
		rows = append(rows, row)
	}

	rows = append(rows, SubgroupRow{
		Variable: variable,
		Group:    BetweenGroupsLabel,
		K:        len(es),
		Estimate: math.NaN(),
		CILower:  math.NaN(),
		CIUpper:  math.NaN(),
		I2:       math.NaN(),
		NNT:      math.NaN(),
		P:        res.QBetweenP,
	})
	return rows, nil
}

func regressionRows(es, se []float64, cells []dataset.Value, variable string, spec Spec) ([]SubgroupRow, error) {
	vals := make([]float64, len(cells))
	for i, c := range cells {
		vals[i], _ = c.AsFloat()
	}

	reg, err := metastats.MetaRegression(es, se,
		[]metastats.Predictor{{Name: variable, Numeric: vals}}, spec.options())
	if err != nil {
		return nil, err
	}

	var rows []SubgroupRow
	for _, c := range reg.Coefficients[1:] {
		rows = append(rows, SubgroupRow{
			Variable: variable,
			Group:    "slope",
			K:        reg.K,
			Estimate: c.Estimate,
			CILower:  c.CILower,
			CIUpper:  c.CIUpper,
			I2:       math.NaN(),
			NNT:      math.NaN(),
			P:        c.P,
		})
	}
	return rows, nil
}
