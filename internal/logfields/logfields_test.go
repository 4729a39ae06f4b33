package logfields

import (
	"log/slog"
	"testing"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    interface{}
	}{
		{"Stage", KeyStage, "normalize", Stage("normalize")},
		{"Study", KeyStudy, "Smith 2020", Study("Smith 2020")},
		{"Column", KeyColumn, "n_trt1", Column("n_trt1")},
		{"Check", KeyCheck, "column-present", Check("column-present")},
		{"Rule", KeyRule, "prefer-condition", Rule("prefer-condition")},
		{"Model", KeyModel, "combined", Model("combined")},
		{"Layout", KeyLayout, "wide", Layout("wide")},
		{"Schema", KeySchema, "post-test", Schema("post-test")},
		{"RunID", KeyRunID, "rid", RunID("rid")},
		{"Dataset", KeyDataset, "/tmp/x.csv", Dataset("/tmp/x.csv")},
	}

	for _, tc := range cases {
		a := tc.attr.(slog.Attr)
		if a.Key != tc.attrKey {
			// Key drift would break log ingestion schemas.
			t.Fatalf("%s: expected key %s, got %s", tc.name, tc.attrKey, a.Key)
		}
		if got := a.Value.String(); got != tc.attrVal { // Value is slog.Value
			t.Fatalf("%s: expected value %s, got %v", tc.name, tc.attrVal, got)
		}
	}
}

// TestNumericHelpers verifies keys for numeric & float helpers.
func TestNumericHelpers(t *testing.T) {
	if v := Rows(3); v.Key != KeyRows {
		t.Fatalf("Rows key mismatch: %s", v.Key)
	}
	if v := Comparisons(7); v.Key != KeyComparisons {
		t.Fatalf("Comparisons key mismatch: %s", v.Key)
	}
	if v := Studies(5); v.Key != KeyStudies {
		t.Fatalf("Studies key mismatch: %s", v.Key)
	}
	if v := DurationMS(12.5); v.Key != KeyDurationMS {
		t.Fatalf("DurationMS key mismatch: %s", v.Key)
	}
}

// TestErrorHelper ensures Error() handles nil and non-nil errors predictably.
func TestErrorHelper(t *testing.T) {
	attr := Error(nil)
	if attr.Key != KeyError {
		t.Fatalf("Error key mismatch: %s", attr.Key)
	}
	if attr.Value.String() != "" {
		t.Fatalf("Expected empty error string, got %s", attr.Value.String())
	}
	attr = Error(errTest{})
	if attr.Value.String() != "err-test" {
		t.Fatalf("Expected 'err-test', got %s", attr.Value.String())
	}
}

type errTest struct{}

func (e errTest) Error() string { return "err-test" }
