package mapping

import (
	"fmt"

	"github.com/interop/gateway/internal/platform/hl7v2"
)

// MRNSystem is the identifier system stamped on patient identifiers when
// no organization-specific rule overrides it.
const MRNSystem = "urn:interop:mrn"

// DefaultRules returns the built-in rule set covering every supported
// message family.
func DefaultRules() *RuleSet {
	rs := &RuleSet{Version: "builtin-1"}

	for _, family := range hl7v2.Families() {
		rs.Rules = append(rs.Rules, patientRules(family)...)
	}

	rs.Rules = append(rs.Rules,
		// Admission: Encounter.
		Rule{ID: "enc-status", Family: hl7v2.FamilyAdmission, Target: "Encounter.status", Literal: "in-progress"},
		Rule{ID: "enc-class-system", Family: hl7v2.FamilyAdmission, Target: "Encounter.class.system", Literal: "http://terminology.hl7.org/CodeSystem/v3-ActCode"},
		Rule{ID: "enc-class", Family: hl7v2.FamilyAdmission, Target: "Encounter.class.code", Source: "encounter.class", Transform: "encounter-class", Required: true},
		Rule{ID: "enc-visit", Family: hl7v2.FamilyAdmission, Target: "Encounter.identifier[0].value", Source: "encounter.visitNumber", Required: true},
		Rule{ID: "enc-location", Family: hl7v2.FamilyAdmission, Target: "Encounter.location[0].location.display", Source: "encounter.location"},
		Rule{ID: "enc-attending", Family: hl7v2.FamilyAdmission, Target: "Encounter.participant[0].individual.display", Source: "encounter.attendingName"},
		Rule{ID: "enc-start", Family: hl7v2.FamilyAdmission, Target: "Encounter.period.start", Source: "encounter.admitTime", Transform: "datetime"},

		// Order: ServiceRequest.
		Rule{ID: "sr-status", Family: hl7v2.FamilyOrder, Target: "ServiceRequest.status", Source: "order.control", Transform: "order-status", Required: true},
		Rule{ID: "sr-intent", Family: hl7v2.FamilyOrder, Target: "ServiceRequest.intent", Literal: "order"},
		Rule{ID: "sr-identifier", Family: hl7v2.FamilyOrder, Target: "ServiceRequest.identifier[0].value", Source: "order.anyId", Required: true},
		Rule{ID: "sr-code", Family: hl7v2.FamilyOrder, Target: "ServiceRequest.code.coding[0].code", Source: "order.code", Required: true},
		Rule{ID: "sr-code-text", Family: hl7v2.FamilyOrder, Target: "ServiceRequest.code.coding[0].display", Source: "order.codeText"},
		Rule{ID: "sr-code-system", Family: hl7v2.FamilyOrder, Target: "ServiceRequest.code.coding[0].system", Source: "order.codeSystem"},
		Rule{ID: "sr-authored", Family: hl7v2.FamilyOrder, Target: "ServiceRequest.authoredOn", Source: "order.orderedAt", Transform: "datetime"},

		// Result: Observation.
		Rule{ID: "obs-status", Family: hl7v2.FamilyResult, Target: "Observation.status", Source: "result.status", Transform: "obx-status", Required: true},
		Rule{ID: "obs-code", Family: hl7v2.FamilyResult, Target: "Observation.code.coding[0].code", Source: "result.code", Required: true},
		Rule{ID: "obs-code-text", Family: hl7v2.FamilyResult, Target: "Observation.code.coding[0].display", Source: "result.codeText"},
		Rule{ID: "obs-code-system", Family: hl7v2.FamilyResult, Target: "Observation.code.coding[0].system", Source: "result.codeSystem"},
		Rule{ID: "obs-value", Family: hl7v2.FamilyResult, Target: "Observation.valueQuantity.value", Source: "result.value", Required: true},
		Rule{ID: "obs-units", Family: hl7v2.FamilyResult, Target: "Observation.valueQuantity.unit", Source: "result.units"},
		Rule{ID: "obs-range", Family: hl7v2.FamilyResult, Target: "Observation.referenceRange[0].text", Source: "result.referenceRange"},
		Rule{ID: "obs-flag", Family: hl7v2.FamilyResult, Target: "Observation.interpretation[0].coding[0].code", Source: "result.abnormalFlag"},
		Rule{ID: "obs-effective", Family: hl7v2.FamilyResult, Target: "Observation.effectiveDateTime", Source: "result.observedAt", Transform: "datetime"},

		// Result: DiagnosticReport.
		Rule{ID: "dr-status", Family: hl7v2.FamilyResult, Target: "DiagnosticReport.status", Source: "result.status", Transform: "obx-status", Required: true},
		Rule{ID: "dr-identifier", Family: hl7v2.FamilyResult, Target: "DiagnosticReport.identifier[0].value", Source: "order.anyId", Required: true},
		Rule{ID: "dr-code", Family: hl7v2.FamilyResult, Target: "DiagnosticReport.code.coding[0].code", Source: "order.code", Required: true},
		Rule{ID: "dr-code-text", Family: hl7v2.FamilyResult, Target: "DiagnosticReport.code.coding[0].display", Source: "order.codeText"},
		Rule{ID: "dr-effective", Family: hl7v2.FamilyResult, Target: "DiagnosticReport.effectiveDateTime", Source: "order.orderedAt", Transform: "datetime"},

		// Document: DocumentReference.
		Rule{ID: "doc-status", Family: hl7v2.FamilyDocument, Target: "DocumentReference.status", Source: "document.completionStatus", Transform: "doc-status", Required: true},
		Rule{ID: "doc-type", Family: hl7v2.FamilyDocument, Target: "DocumentReference.type.coding[0].code", Source: "document.type", Required: true},
		Rule{ID: "doc-identifier", Family: hl7v2.FamilyDocument, Target: "DocumentReference.identifier[0].value", Source: "document.id", Required: true},
		Rule{ID: "doc-date", Family: hl7v2.FamilyDocument, Target: "DocumentReference.date", Source: "document.activityAt", Transform: "datetime"},

		// Scheduling: Appointment.
		Rule{ID: "appt-status", Family: hl7v2.FamilyScheduling, Target: "Appointment.status", Source: "appointment.status", Transform: "appt-status", Required: true},
		Rule{ID: "appt-identifier", Family: hl7v2.FamilyScheduling, Target: "Appointment.identifier[0].value", Source: "appointment.anyId", Required: true},
		Rule{ID: "appt-description", Family: hl7v2.FamilyScheduling, Target: "Appointment.description", Source: "appointment.reason"},
		Rule{ID: "appt-start", Family: hl7v2.FamilyScheduling, Target: "Appointment.start", Source: "appointment.start", Transform: "datetime", Required: true},
		Rule{ID: "appt-minutes", Family: hl7v2.FamilyScheduling, Target: "Appointment.minutesDuration", Source: "appointment.durationMinutes"},
	)

	return rs
}

// patientRules returns the demographic rules shared by every family.
func patientRules(family hl7v2.Family) []Rule {
	id := func(name string) string { return fmt.Sprintf("pat-%s-%s", name, family) }
	return []Rule{
		{ID: id("mrn"), Family: family, Target: "Patient.identifier[0].value", Source: "patient.mrn", Required: true},
		{ID: id("mrn-system"), Family: family, Target: "Patient.identifier[0].system", Literal: MRNSystem},
		{ID: id("family"), Family: family, Target: "Patient.name[0].family", Source: "patient.family"},
		{ID: id("given"), Family: family, Target: "Patient.name[0].given[0]", Source: "patient.given"},
		{ID: id("gender"), Family: family, Target: "Patient.gender", Source: "patient.gender", Transform: "gender"},
		{ID: id("birthdate"), Family: family, Target: "Patient.birthDate", Source: "patient.birthDate", Transform: "date"},
		{ID: id("addr-line"), Family: family, Target: "Patient.address[0].line[0]", Source: "patient.addressLine"},
		{ID: id("addr-city"), Family: family, Target: "Patient.address[0].city", Source: "patient.city"},
		{ID: id("addr-state"), Family: family, Target: "Patient.address[0].state", Source: "patient.state"},
		{ID: id("addr-zip"), Family: family, Target: "Patient.address[0].postalCode", Source: "patient.postalCode"},
		{ID: id("phone"), Family: family, Target: "Patient.telecom[0].value", Source: "patient.phone"},
	}
}
