package fhir

import (
	"fmt"
)

// knownResourceTypes is the closed set of R4 resource types the gateway
// can produce. Profile validation rejects anything outside it.
var knownResourceTypes = map[string]bool{
	"Patient":             true,
	"Encounter":           true,
	"ServiceRequest":      true,
	"Observation":         true,
	"DiagnosticReport":    true,
	"DocumentReference":   true,
	"Appointment":         true,
	"MedicationRequest":   true,
	"MedicationStatement": true,
}

// statusValues lists the legal status codes per resource type, from the
// R4 required value sets.
var statusValues = map[string]map[string]bool{
	"Encounter": {
		"planned": true, "arrived": true, "triaged": true, "in-progress": true,
		"onleave": true, "finished": true, "cancelled": true, "unknown": true,
	},
	"ServiceRequest": {
		"draft": true, "active": true, "on-hold": true, "revoked": true,
		"completed": true, "entered-in-error": true, "unknown": true,
	},
	"Observation": {
		"registered": true, "preliminary": true, "final": true, "amended": true,
		"corrected": true, "cancelled": true, "entered-in-error": true, "unknown": true,
	},
	"DiagnosticReport": {
		"registered": true, "partial": true, "preliminary": true, "final": true,
		"amended": true, "corrected": true, "appended": true, "cancelled": true,
		"entered-in-error": true, "unknown": true,
	},
	"DocumentReference": {
		"current": true, "superseded": true, "entered-in-error": true,
	},
	"Appointment": {
		"proposed": true, "pending": true, "booked": true, "arrived": true,
		"fulfilled": true, "cancelled": true, "noshow": true,
		"entered-in-error": true, "checked-in": true, "waitlist": true,
	},
	"MedicationRequest": {
		"active": true, "on-hold": true, "cancelled": true, "completed": true,
		"entered-in-error": true, "stopped": true, "draft": true, "unknown": true,
	},
	"MedicationStatement": {
		"active": true, "completed": true, "entered-in-error": true,
		"intended": true, "stopped": true, "on-hold": true, "unknown": true,
		"not-taken": true,
	},
}

// Binding constrains a coded element to a fixed system and code set.
// Required bindings produce errors on violation, preferred ones warnings.
type Binding struct {
	Path     string
	System   string
	Codes    map[string]bool
	Required bool
}

// Profile declares the obligations a resource type must meet beyond base
// R4 requirements.
type Profile struct {
	URL            string
	ResourceType   string
	RequiredFields []string
	Bindings       []Binding
}

// Registry holds the active profiles keyed by resource type.
type Registry struct {
	profiles map[string][]Profile
}

// NewRegistry creates a registry from a profile list.
func NewRegistry(profiles ...Profile) *Registry {
	r := &Registry{profiles: map[string][]Profile{}}
	for _, p := range profiles {
		r.profiles[p.ResourceType] = append(r.profiles[p.ResourceType], p)
	}
	return r
}

// For returns the profiles registered for a resource type.
func (r *Registry) For(resourceType string) []Profile {
	return r.profiles[resourceType]
}

// DefaultRegistry returns the gateway's built-in profile set.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Profile{
			URL:            "http://interop.example.org/fhir/StructureDefinition/gateway-patient",
			ResourceType:   "Patient",
			RequiredFields: []string{"identifier[0].value", "identifier[0].system"},
			Bindings: []Binding{
				{
					Path:     "gender",
					System:   "http://hl7.org/fhir/administrative-gender",
					Codes:    map[string]bool{"male": true, "female": true, "other": true, "unknown": true},
					Required: true,
				},
			},
		},
		Profile{
			URL:            "http://interop.example.org/fhir/StructureDefinition/gateway-encounter",
			ResourceType:   "Encounter",
			RequiredFields: []string{"status", "class.code", "subject.reference"},
		},
		Profile{
			URL:            "http://interop.example.org/fhir/StructureDefinition/gateway-servicerequest",
			ResourceType:   "ServiceRequest",
			RequiredFields: []string{"status", "intent", "code.coding[0].code", "subject.reference"},
		},
		Profile{
			URL:            "http://interop.example.org/fhir/StructureDefinition/gateway-observation",
			ResourceType:   "Observation",
			RequiredFields: []string{"status", "code.coding[0].code", "subject.reference"},
		},
		Profile{
			URL:            "http://interop.example.org/fhir/StructureDefinition/gateway-diagnosticreport",
			ResourceType:   "DiagnosticReport",
			RequiredFields: []string{"status", "code.coding[0].code", "subject.reference"},
		},
		Profile{
			URL:            "http://interop.example.org/fhir/StructureDefinition/gateway-documentreference",
			ResourceType:   "DocumentReference",
			RequiredFields: []string{"status", "type.coding[0].code", "subject.reference"},
		},
		Profile{
			URL:            "http://interop.example.org/fhir/StructureDefinition/gateway-appointment",
			ResourceType:   "Appointment",
			RequiredFields: []string{"status", "start"},
		},
	)
}

// ProfileValidator checks bundle resources against base R4 requirements
// and registered profiles. A resource with error-severity findings is
// removed from the bundle and the bundle marked partial; its issues stay
// in the result. Conformant resources get the profile URL stamped in
// meta.
type ProfileValidator struct {
	registry *Registry
}

// NewProfileValidator creates a validator over the given registry.
func NewProfileValidator(registry *Registry) *ProfileValidator {
	return &ProfileValidator{registry: registry}
}

// Validate checks every resource in the bundle and returns the combined
// result. Failing resources are excluded from the releasable bundle;
// failures are resource-scoped and never remove conformant siblings.
func (v *ProfileValidator) Validate(bundle *Bundle) *ValidationResult {
	res := &ValidationResult{}
	var kept []*ClinicalResource
	for _, r := range bundle.Resources {
		before := len(res.Issues)
		v.validateResource(r, res)
		if hasError(res.Issues[before:]) {
			bundle.Partial = true
			continue
		}
		kept = append(kept, r)
	}
	bundle.Resources = kept
	return res
}

func hasError(issues []Issue) bool {
	for _, is := range issues {
		if is.Severity == IssueSeverityError || is.Severity == IssueSeverityFatal {
			return true
		}
	}
	return false
}

func (v *ProfileValidator) validateResource(r *ClinicalResource, res *ValidationResult) {
	if !knownResourceTypes[r.Type] {
		res.Add(Issue{
			Severity:    IssueSeverityError,
			Code:        IssueTypeNotSupported,
			Diagnostics: fmt.Sprintf("resource type %q is not supported", r.Type),
			Expression:  r.Type,
		})
		return
	}
	if r.ID == "" {
		res.Add(Issue{
			Severity:    IssueSeverityError,
			Code:        IssueTypeRequired,
			Diagnostics: "resource id is required",
			Expression:  r.Type + ".id",
		})
	}

	if allowed, ok := statusValues[r.Type]; ok {
		status := r.GetString("status")
		if status == "" {
			res.Add(Issue{
				Severity:    IssueSeverityError,
				Code:        IssueTypeRequired,
				Diagnostics: fmt.Sprintf("%s.status is required", r.Type),
				Expression:  r.Type + ".status",
			})
		} else if !allowed[status] {
			res.Add(Issue{
				Severity:    IssueSeverityError,
				Code:        IssueTypeCodeInvalid,
				Diagnostics: fmt.Sprintf("%q is not a legal %s status", status, r.Type),
				Expression:  r.Type + ".status",
			})
		}
	}

	for _, p := range v.registry.For(r.Type) {
		v.applyProfile(r, p, res)
	}
}

func (v *ProfileValidator) applyProfile(r *ClinicalResource, p Profile, res *ValidationResult) {
	before := len(res.Issues)

	for _, path := range p.RequiredFields {
		if val, ok := r.Get(path); !ok || val == "" || val == nil {
			res.Add(Issue{
				Severity:    IssueSeverityError,
				Code:        IssueTypeRequired,
				Diagnostics: fmt.Sprintf("profile %s requires %s.%s", p.URL, r.Type, path),
				Expression:  r.Type + "." + path,
			})
		}
	}

	for _, b := range p.Bindings {
		val := r.GetString(b.Path)
		if val == "" {
			continue
		}
		if !b.Codes[val] {
			sev := IssueSeverityWarning
			if b.Required {
				sev = IssueSeverityError
			}
			res.Add(Issue{
				Severity:    sev,
				Code:        IssueTypeCodeInvalid,
				Diagnostics: fmt.Sprintf("%q is not in the value set bound at %s.%s", val, r.Type, b.Path),
				Expression:  r.Type + "." + b.Path,
			})
		}
	}

	// Conformant resources advertise the profile in meta.
	if len(res.Issues) == before {
		for _, existing := range r.Profiles {
			if existing == p.URL {
				return
			}
		}
		r.Profiles = append(r.Profiles, p.URL)
	}
}
