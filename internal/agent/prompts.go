package agent

import (
	"strings"

	"github.com/fyrsmithlabs/faxd/internal/fields"
)

// extractSystemPrompt asks for the patient/provider identifiers as JSON.
const extractSystemPrompt = `You are a clinical document extractor. Extract the following from the provided medical fax file:

- patient_name: The patient's full name, as shown in the document.
- date_of_birth: The patient's date of birth, in mm/dd/yyyy format. Convert if necessary.
- provider_name: The referring, ordering, or "To:" provider - the person to whom this fax was sent, not the author, interpreter, or signer of the report. If the document contains a "To:" section, extract the name found there. If no "To:" is present, use the provider explicitly listed as the ordering/referring physician. Do NOT extract any names from the end of the document, signature, or interpreting provider sections.

Instructions:
- Always return all three fields, using an empty string for any that are missing.
- Do NOT include provider credentials (e.g., "MD", "DO", "APN", "PA-C"). Only return the provider's name.
- Respond ONLY with a valid JSON object.`

// docTypeDefinitions clarifies the harder labels for the classifier.
const docTypeDefinitions = `1. Consult: Consultation notes, progress notes, evaluation notes, and encounter notes from a doctor's office, clinic, or hospital (outpatient), reflecting the provider's assessment and care plan for a visit.
2. Hospital: Documentation from hospital encounters, inpatient and outpatient: ED notes, History & Physical, Discharge Summaries, After Visit Summaries, Summary of Care, and related orders.
3. Labs: Laboratory results from diagnostic tests performed on specimens (blood, urine, stool, fluids, tissues).
4. Radiology: Imaging diagnostic studies (X-ray, CT, MRI, Ultrasound) with findings and report impressions.
5. Test: Diagnostic test reports not classified as Labs or Radiology (EKG/ECG, Echocardiogram, NCS, EMG, Holter, Stress Test).
6. Prior Authorization: Documents confirming or updating a prior authorization request, usually for medication or imaging.
7. Medical Records: Multiple clinical items grouped together (radiology reports, consults, labs, ED notes), typically sent in response to a request.
8. Medical Records Request: Requests for medical records, sometimes with authorization forms, from offices, hospitals, labs, insurance, legal, or agencies.
9. Forms: Documents requiring physician review or signature, often needing return fax: plan of care, surgical clearance, FMLA, supply requests.
10. Referral: Patient referral forms, usually with encounter note, demographics, insurance, referral source and destination, reason, and diagnosis codes.
11. Pharmacy: Requests from pharmacies for refills, new prescriptions, or alternate medications.
12. Sleep Study: Polysomnography results covering sleep patterns and breathing observations.
13. Cologuard: Documents related to the Cologuard colorectal cancer screening test.
14. Colonoscopy/endoscopy: Colonoscopy, endoscopy, GI pathology, and biopsy results delivered after the procedure.
15. Mammogram: Breast imaging and related documents: mammograms, breast ultrasounds, breast biopsies, breast MRI.
16. Immunization Records: Records of vaccinations given to a patient.
17. Physical Therapy: Plans or treatment recommendations from physical therapy or rehab centers, sent for physician review.
18. Home Care: Episode or discharge summaries from home health centers.
19. Letters: Brief, time-sensitive letters from providers or facilities reporting changes, urgent issues, or updates.
20. Insurance Card, Id: Insurance membership cards or similar, to update or verify a patient's insurance.
21. Insurance: Insurance documents (excluding medication/radiology prior authorizations): approvals, denials, reductions, coverage updates.
22. Patient Documents: Non-clinical papers tied to the patient: police reports, licenses, proof of residence, photos, legal forms affecting care.
23. Care Plan: Care management summaries, often from insurers, with goals, recommendations, risks, and contacts.`

// docTypeSystemPrompt constrains the classifier to the known label set.
var docTypeSystemPrompt = `You are a medical document classifier.
From the list below, select the single most appropriate document type for the provided document content.

--- Document Type Definitions ---
` + docTypeDefinitions + `
--- End Definitions ---

Your options are:
` + strings.Join(fields.DocTypes, ", ") + `

Only return the type EXACTLY as it appears in the list above.`

// subtypeSystemPrompt extracts the sending organization.
const subtypeSystemPrompt = `You are a document extractor. From the provided document, extract ONLY the sender name (clinic, lab, hospital, organization, or entity that sent or originated the document).
Return only the sender name as a string.
Do not include any explanations or extra text.`

// commentSystemPrompt produces the reviewer-facing summary.
const commentSystemPrompt = `You are an assistant that provides concise, clinically relevant comments or summaries for medical documents.
Review the provided document and generate either:
- 2 to 4 bullet points summarizing key findings, recommendations, or next steps, OR
- a short paragraph (2 to 3 lines) summarizing the document's most important details.
Be clear, avoid unnecessary details, and keep the comments actionable and relevant to clinical care.
Do not copy large sections from the original document.`
