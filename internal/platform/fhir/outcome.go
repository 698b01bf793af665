package fhir

// Issue severities per the FHIR issue-severity code system.
const (
	IssueSeverityFatal       = "fatal"
	IssueSeverityError       = "error"
	IssueSeverityWarning     = "warning"
	IssueSeverityInformation = "information"
)

// Issue types per the FHIR issue-type code system, limited to the codes
// profile validation emits.
const (
	IssueTypeInvalid      = "invalid"
	IssueTypeStructure    = "structure"
	IssueTypeRequired     = "required"
	IssueTypeValue        = "value"
	IssueTypeCodeInvalid  = "code-invalid"
	IssueTypeNotSupported = "not-supported"
	IssueTypeProcessing   = "processing"
)

// Issue is a single profile validation finding, addressed by a FHIR
// element expression (e.g. "Patient.identifier").
type Issue struct {
	Severity    string `json:"severity"`
	Code        string `json:"code"`
	Diagnostics string `json:"diagnostics"`
	Expression  string `json:"expression,omitempty"`
}

// ValidationResult collects profile validation issues for one bundle.
type ValidationResult struct {
	Issues []Issue `json:"issues"`
}

func (r *ValidationResult) Add(issue Issue) {
	r.Issues = append(r.Issues, issue)
}

// Valid reports whether no issue reaches error severity.
func (r *ValidationResult) Valid() bool {
	for _, is := range r.Issues {
		if is.Severity == IssueSeverityError || is.Severity == IssueSeverityFatal {
			return false
		}
	}
	return true
}

// OperationOutcome renders the result as a FHIR OperationOutcome resource
// for API responses.
func (r *ValidationResult) OperationOutcome() map[string]any {
	issues := make([]map[string]any, 0, len(r.Issues))
	for _, is := range r.Issues {
		entry := map[string]any{
			"severity":    is.Severity,
			"code":        is.Code,
			"diagnostics": is.Diagnostics,
		}
		if is.Expression != "" {
			entry["expression"] = []any{is.Expression}
		}
		issues = append(issues, entry)
	}
	if len(issues) == 0 {
		issues = append(issues, map[string]any{
			"severity":    IssueSeverityInformation,
			"code":        "informational",
			"diagnostics": "validation passed",
		})
	}
	return map[string]any{
		"resourceType": "OperationOutcome",
		"issue":        issues,
	}
}
