// Package fields defines the closed field vocabulary for fax processing
// and the result/provenance model carried between pipeline stages.
package fields

import (
	"errors"
	"fmt"
)

// ErrUnknownField is returned when a caller passes a field name outside
// the recognized vocabulary.
var ErrUnknownField = errors.New("unknown field")

// Field identifies one extractable field of a fax document.
type Field string

const (
	// PatientName is the patient's full name as shown in the document.
	PatientName Field = "patient_name"

	// DateOfBirth is the patient's date of birth, normalized to mm/dd/yyyy.
	DateOfBirth Field = "date_of_birth"

	// ProviderName is the referring/ordering provider the fax was sent to.
	ProviderName Field = "provider_name"

	// DocType is the primary classification label.
	DocType Field = "doc_type"

	// DocSubtype is the secondary label (the sending clinic/lab/hospital).
	DocSubtype Field = "doc_subtype"

	// Comment is a short clinical summary generated for the reviewer.
	Comment Field = "comment"
)

// All lists every field in the vocabulary, in presentation order.
var All = []Field{
	PatientName,
	DateOfBirth,
	ProviderName,
	DocType,
	DocSubtype,
	Comment,
}

var validFields = map[Field]bool{
	PatientName:  true,
	DateOfBirth:  true,
	ProviderName: true,
	DocType:      true,
	DocSubtype:   true,
	Comment:      true,
}

// Valid reports whether f is part of the recognized vocabulary.
func (f Field) Valid() bool {
	return validFields[f]
}

// Parse converts a raw string into a Field, or returns ErrUnknownField.
func Parse(s string) (Field, error) {
	f := Field(s)
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
	}
	return f, nil
}

// Extracted is a complete mapping over the field vocabulary. A nil value
// means the field was not found. Constructors guarantee every field is
// present, so callers never see a missing key.
type Extracted map[Field]*string

// NewExtracted returns an Extracted with every field present and nil.
func NewExtracted() Extracted {
	e := make(Extracted, len(All))
	for _, f := range All {
		e[f] = nil
	}
	return e
}

// Set assigns a non-empty value to a field. Empty strings are treated as
// not found and leave the field nil.
func (e Extracted) Set(f Field, value string) {
	if value == "" {
		e[f] = nil
		return
	}
	v := value
	e[f] = &v
}

// Get returns the value for f, or "" when the field is unset.
func (e Extracted) Get(f Field) string {
	if v := e[f]; v != nil {
		return *v
	}
	return ""
}
