package fields

import (
	"regexp"
	"time"
)

// dobLayouts are the date-of-birth formats accepted from model output,
// tried in order.
var dobLayouts = []string{
	"2 Jan 2006",
	"2 January 2006",
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
}

var dobRe = regexp.MustCompile(`^(0[1-9]|1[0-2])/([0][1-9]|[12][0-9]|3[01])/\d{4}$`)

// NormalizeDOB converts a raw date-of-birth string to mm/dd/yyyy.
// It returns false when the input cannot be parsed as a date.
func NormalizeDOB(raw string) (string, bool) {
	for _, layout := range dobLayouts {
		if dt, err := time.Parse(layout, raw); err == nil {
			return dt.Format("01/02/2006"), true
		}
	}
	// Already in mm/dd/yyyy but rejected by time.Parse edge cases.
	if dobRe.MatchString(raw) {
		return raw, true
	}
	return "", false
}
