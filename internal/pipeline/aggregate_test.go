package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/faxd/internal/fields"
	"github.com/fyrsmithlabs/faxd/internal/pipeline"
)

func TestAggregator_Routing(t *testing.T) {
	tests := []struct {
		name         string
		docType      string
		provider     string
		wantProvider string
	}{
		{"prior auth to records queue", "Prior Authorization", "Dr. Smith", "Medical a-Records"},
		{"records to prior auth queue", "Medical a-Records", "Dr. Smith", "Prior a-Authorizations"},
		{"forms to forms staff", "Forms", "Dr. Smith", "Forms A-staff"},
		{"unrouted type keeps provider", "Referral", "Dr. Smith", "Dr. Smith"},
		{"no provider stays empty", "Referral", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := fields.NewExtracted()
			e.Set(fields.DocType, tt.docType)
			e.Set(fields.ProviderName, tt.provider)

			pipeline.DefaultAggregator().Apply(e)

			assert.Equal(t, tt.wantProvider, e.Get(fields.ProviderName))
			assert.Equal(t, tt.docType, e.Get(fields.DocType))
		})
	}
}

func TestAggregator_ProviderAliases(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		want     string
	}{
		{"token match", "Dr. Fazal", "Asim Ali"},
		{"case folded", "DR. FAZAL KHAN", "Asim Ali"},
		{"embedded token", "Azzim A.", "Asim Ali"},
		{"no token", "Dr. Smith", "Dr. Smith"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := fields.NewExtracted()
			e.Set(fields.ProviderName, tt.provider)

			pipeline.DefaultAggregator().Apply(e)

			assert.Equal(t, tt.want, e.Get(fields.ProviderName))
		})
	}
}

func TestAggregator_RoutingResultSubjectToAliases(t *testing.T) {
	// Routing replaces the extracted provider before aliases run, so a
	// routed document never resolves to the aliased physician.
	e := fields.NewExtracted()
	e.Set(fields.DocType, "Prior Authorization")
	e.Set(fields.ProviderName, "Dr. Fazal")

	pipeline.DefaultAggregator().Apply(e)

	assert.Equal(t, "Medical a-Records", e.Get(fields.ProviderName))
}
