package fields

import "time"

// Source tags where a field value came from.
type Source string

const (
	// SourceLLM marks a value produced by the extraction agent.
	SourceLLM Source = "llm"

	// SourceCorrection marks a value overridden by a stored human correction.
	SourceCorrection Source = "correction"

	// SourceUnavailable marks a field for which neither extraction nor a
	// correction lookup produced a value.
	SourceUnavailable Source = "unavailable"
)

// Value is one field of a pipeline result with its provenance.
type Value struct {
	// Value is the field value, or nil when unavailable.
	Value *string `json:"value"`

	// Source records where the value came from.
	Source Source `json:"source"`

	// Similarity is the correction match score. Only set when Source is
	// SourceCorrection.
	Similarity float64 `json:"similarity,omitempty"`
}

// Result is the final output of one pipeline run. It always contains an
// entry for every field in the vocabulary. The caller owns the Result
// after the run returns.
type Result struct {
	Fields map[Field]Value `json:"fields"`

	// StartedAt and Duration describe the run for logging/audit.
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// NewResult returns a Result with every field present and unavailable.
func NewResult() *Result {
	r := &Result{
		Fields: make(map[Field]Value, len(All)),
	}
	for _, f := range All {
		r.Fields[f] = Value{Source: SourceUnavailable}
	}
	return r
}

// SetLLM records an extracted value for f. Nil values keep the field
// unavailable.
func (r *Result) SetLLM(f Field, value *string) {
	if value == nil {
		r.Fields[f] = Value{Source: SourceUnavailable}
		return
	}
	r.Fields[f] = Value{Value: value, Source: SourceLLM}
}

// SetCorrection overrides f with a human correction and its match score.
func (r *Result) SetCorrection(f Field, value string, similarity float64) {
	v := value
	r.Fields[f] = Value{Value: &v, Source: SourceCorrection, Similarity: similarity}
}

// Get returns the value and source for f.
func (r *Result) Get(f Field) Value {
	return r.Fields[f]
}
