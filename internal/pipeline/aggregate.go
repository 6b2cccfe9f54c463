package pipeline

import (
	"strings"

	"github.com/fyrsmithlabs/faxd/internal/fields"
)

// Alias folds provider name variants (OCR misreads, nicknames) onto one
// canonical name. Matching is case-insensitive substring on each token.
type Alias struct {
	Tokens    []string
	Canonical string
}

// Aggregator applies the practice's post-extraction rules to the merged
// LLM output before corrections are considered: certain document types
// route to a staff queue instead of a physician, and known provider name
// variants are folded onto their canonical form.
type Aggregator struct {
	// Routing maps a document type to the staff queue that handles it,
	// overriding the extracted provider.
	Routing map[string]string

	// Aliases normalizes provider name variants.
	Aliases []Alias
}

// DefaultAggregator returns the practice's standing rules.
func DefaultAggregator() Aggregator {
	return Aggregator{
		Routing: map[string]string{
			"Prior Authorization": "Medical a-Records",
			"Medical a-Records":   "Prior a-Authorizations",
			"Forms":               "Forms A-staff",
		},
		Aliases: []Alias{
			{Tokens: []string{"azz", "fazal"}, Canonical: "Asim Ali"},
		},
	}
}

// Apply mutates e in place.
func (ag Aggregator) Apply(e fields.Extracted) {
	if docType := e.Get(fields.DocType); docType != "" {
		if queue, ok := ag.Routing[docType]; ok {
			e.Set(fields.ProviderName, queue)
		}
	}

	provider := e.Get(fields.ProviderName)
	if provider == "" {
		return
	}
	folded := strings.ToLower(provider)
	for _, alias := range ag.Aliases {
		for _, token := range alias.Tokens {
			if strings.Contains(folded, token) {
				e.Set(fields.ProviderName, alias.Canonical)
				return
			}
		}
	}
}
