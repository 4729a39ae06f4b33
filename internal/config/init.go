package config

import (
	"fmt"
	"os"
)

const exampleYAML = `# metapipe configuration.

dataset:
  path: trials.csv
  # layout is required: "wide" (one comparison per row) or "long" (one arm
  # per row).
  layout: wide
  # auto resolves from the file extension; csv, stata, and sas force a reader.
  format: auto
  label: depression-psychotherapy
  suffix1: _trt1
  suffix2: _trt2
  # Condition labels treated as control-like when orienting comparisons.
  control_conditions: [cau, wl, pla]

checks:
  required: [study, condition]
  allowed:
    rob: [low, high, unclear, some-concerns]

analysis:
  # combined, threelevel, outliers-removed, influence, or rob.
  model: combined
  # reml, pm, or dl.
  estimator: reml
  knapp_hartung: true
  # Negate effect sizes when higher outcome scores mean worse results.
  flip_sign: false
  level: 0.95
  # Assumed control event rate for number-needed-to-treat; 0 disables it.
  control_event_rate: 0.2
  low_risk: [low]
  subgroups: [format]
  # Applied in order until one comparison per study remains.
  priority:
    - rule: prefer-condition
      values: [cau, wl]
    - rule: prefer-primary-outcome

report:
  title: Depression psychotherapy meta-analysis
  # text or markdown.
  format: text

serve:
  listen: ":8080"
  watch: true
  every: 1h

runlog:
  path: metapipe.db

logging:
  # debug, info, warn, or error.
  level: info
  # text or json.
  format: text
`

// Init writes an example configuration file. An existing file is preserved
// unless force is set.
func Init(path string, force bool) error {
	if path == "" {
		path = DefaultPath
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config: %s already exists, pass force to overwrite", path)
		}
	}
	if err := os.WriteFile(path, []byte(exampleYAML), 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
