package dataset

// Logical field names understood by the pipeline. The Schema maps each to its
// concrete long-layout column and, for per-arm fields, to its two wide-layout
// suffixed columns.
const (
	FieldStudy          = "study"
	FieldOutcomeType    = "outcome_type"
	FieldTime           = "time"
	FieldPrimaryOutcome = "primary_outcome"
	FieldRiskOfBias     = "rob"
	FieldEffect         = "es"
	FieldEffectSE       = "se.es"
	FieldEffectVar      = "var.es"

	FieldCondition  = "condition"
	FieldSpec       = "spec"
	FieldN          = "n"
	FieldMean       = "mean"
	FieldSD         = "sd"
	FieldNChange    = "n_change"
	FieldMeanChange = "mean_change"
	FieldSDChange   = "sd_change"
	FieldEvent      = "event"
)

// DefaultSuffix1 and DefaultSuffix2 are the wide-layout arm suffixes used when
// the configuration does not override them.
const (
	DefaultSuffix1 = "_trt1"
	DefaultSuffix2 = "_trt2"
)

// Field describes one logical dataset field and the concrete columns it lives
// in. Trial-level fields use the same name everywhere; per-arm fields get the
// schema's suffix pair in the wide layout.
type Field struct {
	Name   string
	PerArm bool
	Long   string
	Arm1   string
	Arm2   string
}

// Schema resolves logical field names to concrete column names. It is built
// once from the configured suffix pair; no stage re-derives column names by
// string manipulation afterwards.
type Schema struct {
	Suffix1 string
	Suffix2 string

	order  []string
	fields map[string]Field
}

// NewSchema builds the standard field set resolved against a suffix pair.
func NewSchema(suffix1, suffix2 string) *Schema {
	s := &Schema{
		Suffix1: suffix1,
		Suffix2: suffix2,
		fields:  make(map[string]Field),
	}
	for _, name := range []string{
		FieldStudy, FieldOutcomeType, FieldTime, FieldPrimaryOutcome, FieldRiskOfBias,
		FieldEffect, FieldEffectSE, FieldEffectVar,
	} {
		s.add(Field{Name: name, Long: name, Arm1: name, Arm2: name})
	}
	for _, name := range []string{
		FieldCondition, FieldSpec,
		FieldN, FieldMean, FieldSD,
		FieldNChange, FieldMeanChange, FieldSDChange,
		FieldEvent,
	} {
		s.add(Field{
			Name:   name,
			PerArm: true,
			Long:   name,
			Arm1:   name + suffix1,
			Arm2:   name + suffix2,
		})
	}
	return s
}

// DefaultSchema returns the schema for the default `_trt1`/`_trt2` suffixes.
func DefaultSchema() *Schema {
	return NewSchema(DefaultSuffix1, DefaultSuffix2)
}

func (s *Schema) add(f Field) {
	if _, ok := s.fields[f.Name]; !ok {
		s.order = append(s.order, f.Name)
	}
	s.fields[f.Name] = f
}

// Field looks up a logical field.
func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Fields returns every field in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.fields[name])
	}
	return out
}

// PerArmFields returns the per-arm subset in declaration order.
func (s *Schema) PerArmFields() []Field {
	var out []Field
	for _, name := range s.order {
		if f := s.fields[name]; f.PerArm {
			out = append(out, f)
		}
	}
	return out
}

// ArmColumns returns the wide-layout column pair for a per-arm logical field.
// For trial-level fields both names equal the plain column name.
func (s *Schema) ArmColumns(name string) (arm1, arm2 string) {
	f, ok := s.fields[name]
	if !ok {
		return name + s.Suffix1, name + s.Suffix2
	}
	return f.Arm1, f.Arm2
}

// LongColumn returns the long-layout column for a logical field.
func (s *Schema) LongColumn(name string) string {
	if f, ok := s.fields[name]; ok {
		return f.Long
	}
	return name
}

// WideColumns lists the column names a wide-layout table is expected to carry
// for the given logical fields (trial-level once, per-arm fields twice).
func (s *Schema) WideColumns(names ...string) []string {
	var out []string
	for _, name := range names {
		f, ok := s.fields[name]
		if !ok || !f.PerArm {
			out = append(out, s.LongColumn(name))
			continue
		}
		out = append(out, f.Arm1, f.Arm2)
	}
	return out
}
