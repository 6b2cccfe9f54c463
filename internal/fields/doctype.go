package fields

import "strings"

// DocTypeUnknown is the sentinel returned when a classifier answer cannot
// be mapped onto the known document types.
const DocTypeUnknown = "Unknown"

// DocTypes is the closed set of primary classification labels the practice
// files faxes under. Classifier output is normalized onto this list.
var DocTypes = []string{
	"Lab/imaging Orders",
	"Principle Illness Navigation (Pin)",
	"Cologuard",
	"Payment Receipt",
	"Physical Therapy",
	"Care Plan",
	"Home Care",
	"Encounter",
	"Bills",
	"Bhi",
	"Pcm",
	"Colonoscopy/endoscopy",
	"Ccm",
	"Mammogram",
	"Outgoings",
	"Test",
	"Forms",
	"Medical Records Request",
	"Letters",
	"Prior Authorization",
	"Medical Marijuana",
	"Medical Records",
	"Insurance Card, Id",
	"Sleep Study",
	"Pharmacy",
	"Consult",
	"Insurance",
	"Prescription",
	"Immunization Records",
	"Referral",
	"Hospital",
	"Radiology",
	"Labs",
	"Patient Documents",
}

// docTypeIndex maps lowercased labels to their canonical form.
var docTypeIndex = func() map[string]string {
	m := make(map[string]string, len(DocTypes))
	for _, t := range DocTypes {
		m[strings.ToLower(t)] = t
	}
	return m
}()

// NormalizeDocType maps a raw classifier answer onto the canonical label
// set. Matching is case-insensitive after trimming surrounding whitespace
// and quotes. Unmappable answers return DocTypeUnknown, never an error.
func NormalizeDocType(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"'`)
	s = strings.TrimSuffix(s, ".")
	if canonical, ok := docTypeIndex[strings.ToLower(s)]; ok {
		return canonical
	}
	return DocTypeUnknown
}
