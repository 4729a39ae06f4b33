package normalize

import "fmt"

// Severity indicates the outcome level of a single check.
type Severity int

const (
	// SeverityOK indicates the check passed with nothing to report.
	SeverityOK Severity = iota
	// SeverityWarning indicates a finding the caller should review; the
	// pipeline continues regardless.
	SeverityWarning
)

// String returns the human-readable severity name.
func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "OK"
	case SeverityWarning:
		return "WARNING"
	default:
		return "UNKNOWN"
	}
}

// Check identifiers, one per kind of validation the normalizer performs.
const (
	CheckColumnPresent = "column-present"
	CheckAllowedValues = "allowed-values"
	CheckColumnType    = "column-type"
)

// Diagnostic records the outcome of one check against one column.
type Diagnostic struct {
	Column   string   // Concrete column name the check ran against
	Check    string   // Check identifier (e.g. "column-present")
	Severity Severity // OK or Warning
	Message  string   // Brief description of the finding
	Detail   string   // Offending values, coercion reasons, etc.
}

func (d Diagnostic) String() string {
	if d.Detail == "" {
		return fmt.Sprintf("[%s] %s %s: %s", d.Severity, d.Check, d.Column, d.Message)
	}
	return fmt.Sprintf("[%s] %s %s: %s (%s)", d.Severity, d.Check, d.Column, d.Message, d.Detail)
}

// Report collects every diagnostic emitted by one Check call.
type Report struct {
	Diagnostics []Diagnostic
}

func (r *Report) add(d Diagnostic) {
	r.Diagnostics = append(r.Diagnostics, d)
}

func (r *Report) ok(column, check, message string) {
	r.add(Diagnostic{Column: column, Check: check, Severity: SeverityOK, Message: message})
}

func (r *Report) warn(column, check, message, detail string) {
	r.add(Diagnostic{Column: column, Check: check, Severity: SeverityWarning, Message: message, Detail: detail})
}

// OK reports whether no diagnostic rose above SeverityOK.
func (r *Report) OK() bool {
	for _, d := range r.Diagnostics {
		if d.Severity != SeverityOK {
			return false
		}
	}
	return true
}

// Warnings returns only the warning-level diagnostics.
func (r *Report) Warnings() []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityWarning {
			out = append(out, d)
		}
	}
	return out
}

// WarningCount returns the number of warning-level diagnostics.
func (r *Report) WarningCount() int {
	return len(r.Warnings())
}
