package corrections

import (
	"strings"
	"unicode/utf8"
)

// excerptMaxBytes bounds how much of a document is embedded for similarity
// matching. Fax headers and the first page carry the identifying content;
// embedding whole multi-page documents dilutes the signal.
const excerptMaxBytes = 2000

// Excerpt derives the representative excerpt of a document used for
// embedding and similarity lookup. The derivation is deterministic: the
// same document text always yields the same excerpt, so repeated pipeline
// runs are reproducible.
//
// Whitespace runs are collapsed to single spaces before truncation so that
// OCR line-wrapping differences do not change the excerpt.
func Excerpt(text string) string {
	s := strings.Join(strings.Fields(text), " ")
	if len(s) <= excerptMaxBytes {
		return s
	}
	cut := excerptMaxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
