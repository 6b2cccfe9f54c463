// Package agent wraps LLM calls for field extraction, document
// classification, and comment generation from fax text.
//
// Extraction and classification are independent calls, not chained, so a
// failure in one does not block the other; the pipeline decides how to
// proceed with partial results.
package agent

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/faxd/internal/fields"
)

// ErrExtraction indicates an LLM call exhausted its retries or kept
// returning unparsable structured output.
var ErrExtraction = errors.New("extraction failed")

// Agent produces best-effort structured data from document text.
type Agent interface {
	// ExtractFields extracts patient and provider identifiers. It always
	// returns a complete mapping over the field vocabulary, with nil for
	// fields not found.
	ExtractFields(ctx context.Context, text string) (fields.Extracted, error)

	// ClassifyDocument returns the document type and subtype. The type is
	// always a value from the known label set, or DocTypeUnknown when the
	// model's answer cannot be mapped; ambiguity is never an error.
	ClassifyDocument(ctx context.Context, text string) (docType, docSubtype string, err error)

	// GenerateComment produces a short clinical summary for the reviewer.
	GenerateComment(ctx context.Context, text string) (string, error)
}
