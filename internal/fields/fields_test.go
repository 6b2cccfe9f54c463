package fields_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/faxd/internal/fields"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    fields.Field
		wantErr bool
	}{
		{"patient name", "patient_name", fields.PatientName, false},
		{"doc type", "doc_type", fields.DocType, false},
		{"comment", "comment", fields.Comment, false},
		{"unknown", "fax_number", "", true},
		{"empty", "", "", true},
		{"case sensitive", "Patient_Name", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fields.Parse(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, fields.ErrUnknownField)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewExtracted_AllFieldsPresent(t *testing.T) {
	e := fields.NewExtracted()

	assert.Len(t, e, len(fields.All))
	for _, f := range fields.All {
		v, ok := e[f]
		assert.True(t, ok, "field %s missing", f)
		assert.Nil(t, v)
	}
}

func TestExtracted_SetEmptyMeansUnset(t *testing.T) {
	e := fields.NewExtracted()

	e.Set(fields.PatientName, "Jane Doe")
	assert.Equal(t, "Jane Doe", e.Get(fields.PatientName))

	e.Set(fields.PatientName, "")
	assert.Nil(t, e[fields.PatientName])
	assert.Equal(t, "", e.Get(fields.PatientName))
}

func TestNewResult_AllFieldsUnavailable(t *testing.T) {
	r := fields.NewResult()

	assert.Len(t, r.Fields, len(fields.All))
	for _, f := range fields.All {
		v := r.Get(f)
		assert.Equal(t, fields.SourceUnavailable, v.Source)
		assert.Nil(t, v.Value)
	}
}

func TestResult_Provenance(t *testing.T) {
	r := fields.NewResult()

	name := "Jane Doe"
	r.SetLLM(fields.PatientName, &name)
	assert.Equal(t, fields.SourceLLM, r.Get(fields.PatientName).Source)
	assert.Equal(t, "Jane Doe", *r.Get(fields.PatientName).Value)

	r.SetCorrection(fields.PatientName, "Jane A. Doe", 0.93)
	v := r.Get(fields.PatientName)
	assert.Equal(t, fields.SourceCorrection, v.Source)
	assert.Equal(t, "Jane A. Doe", *v.Value)
	assert.InDelta(t, 0.93, v.Similarity, 1e-9)

	r.SetLLM(fields.Comment, nil)
	assert.Equal(t, fields.SourceUnavailable, r.Get(fields.Comment).Source)
}

func TestNormalizeDocType(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"exact", "Prior Authorization", "Prior Authorization"},
		{"case insensitive", "prior authorization", "Prior Authorization"},
		{"surrounding whitespace", "  Sleep Study \n", "Sleep Study"},
		{"quoted", `"Referral"`, "Referral"},
		{"trailing period", "Referral.", "Referral"},
		{"not in vocabulary", "Pizza Menu", fields.DocTypeUnknown},
		{"empty", "", fields.DocTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fields.NormalizeDocType(tt.input))
		})
	}
}

func TestNormalizeDOB(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"short month name", "2 Jan 1987", "01/02/1987", true},
		{"long month name", "2 January 1987", "01/02/1987", true},
		{"iso", "1987-01-02", "01/02/1987", true},
		{"us slashes", "01/02/1987", "01/02/1987", true},
		{"garbage", "not a date", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := fields.NormalizeDOB(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
