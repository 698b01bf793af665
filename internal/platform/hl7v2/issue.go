package hl7v2

// Issue severities, ordered info < warning < error < fatal.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
	SeverityFatal   = "fatal"
)

// Machine codes for structural and extraction issues.
const (
	CodeEmptyMessage    = "empty-message"
	CodeUnparseable     = "unparseable"
	CodeUnknownFamily   = "unknown-family"
	CodeFamilyMismatch  = "family-mismatch"
	CodeMissingSegment  = "missing-segment"
	CodeSegmentOrder    = "segment-order"
	CodeSegmentRepeated = "segment-repeated"
	CodeUnknownSegment  = "unknown-segment"
	CodeMissingField    = "missing-field"
	CodeBadFormat       = "bad-format"
	CodeBadDate         = "bad-date"
	CodeBadValue        = "bad-value"
)

var severityRank = map[string]int{
	SeverityInfo:    0,
	SeverityWarning: 1,
	SeverityError:   2,
	SeverityFatal:   3,
}

// Issue is a single structural or extraction finding, addressed by the
// HL7 field path it originates from (e.g. "PID-3").
type Issue struct {
	Severity string `json:"severity"`
	Field    string `json:"field,omitempty"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Value    string `json:"value,omitempty"`
	Expected string `json:"expected,omitempty"`
}

// ValidationResult is an ordered list of issues. Validity is derived, never
// stored: a result is valid iff no issue reaches error severity.
type ValidationResult struct {
	Issues []Issue `json:"issues"`
}

// Add appends an issue.
func (r *ValidationResult) Add(issue Issue) {
	r.Issues = append(r.Issues, issue)
}

// Merge appends all issues from other.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other != nil {
		r.Issues = append(r.Issues, other.Issues...)
	}
}

// Valid reports whether no issue has severity error or fatal.
func (r *ValidationResult) Valid() bool {
	for _, is := range r.Issues {
		if severityRank[is.Severity] >= severityRank[SeverityError] {
			return false
		}
	}
	return true
}

// Warnings returns the issues below error severity, preserving order.
func (r *ValidationResult) Warnings() []Issue {
	var out []Issue
	for _, is := range r.Issues {
		if severityRank[is.Severity] < severityRank[SeverityError] {
			out = append(out, is)
		}
	}
	return out
}
