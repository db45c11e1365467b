package models

// Classification of a single verification attempt.
const (
	OutcomeVerified = "verified"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// SubjectGrade is one extracted row of the portal's result table. Remark is
// only present on portals that render the four-column layout.
type SubjectGrade struct {
	Subject string `json:"subject"`
	Grade   string `json:"grade"`
	Remark  string `json:"remark,omitempty"`
}

// Evidence is the captured proof of a transient third-party page, base64
// encoded. Screenshot is always attempted on a verified outcome; Document is
// the printable rendering when the portal offers one.
type Evidence struct {
	Screenshot string `json:"screenshot,omitempty"`
	Document   string `json:"document,omitempty"`
}

// Outcome is a worker's typed result for one execution attempt. Expected
// failure modes (portal says not found, used card, form rejected) come back
// as a classification, never as an error from the worker.
type Outcome struct {
	Classification string         `json:"classification"`
	CandidateName  string         `json:"candidate_name,omitempty"`
	Subjects       []SubjectGrade `json:"subjects,omitempty"`
	RegNumber      string         `json:"reg_number,omitempty"`
	ExamYear       string         `json:"exam_year,omitempty"`
	ExamType       string         `json:"exam_type,omitempty"`
	Message        string         `json:"message,omitempty"`
	Evidence       *Evidence      `json:"evidence,omitempty"`
}

// Verified reports whether the attempt produced a clean verified result.
// Anything else is a billing-relevant failure.
func (o *Outcome) Verified() bool {
	return o != nil && o.Classification == OutcomeVerified
}
