package mapping

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/interop/gateway/internal/platform/fhir"
	"github.com/interop/gateway/internal/platform/hl7v2"
)

// resourceNamespace seeds deterministic resource IDs. The same source
// identifiers always produce the same UUID, so retransforming an
// identical payload yields byte-identical output.
var resourceNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// Engine maps extracted clinical records onto FHIR resources using the
// active rule set snapshot.
type Engine struct {
	store *Store
}

// NewEngine creates an engine over a rule store.
func NewEngine(store *Store) *Engine {
	return &Engine{store: store}
}

// RuleVersion returns the version of the active rule set.
func (e *Engine) RuleVersion() string {
	return e.store.Current().Version
}

// Map converts a clinical record into a canonical bundle under the rules
// effective for the organization. A resource missing a required element
// is dropped and the bundle marked partial; mapping itself never fails an
// otherwise valid record.
func (e *Engine) Map(rec *hl7v2.ClinicalRecord, organization string) (*fhir.Bundle, *fhir.ValidationResult) {
	rs := e.store.Current()
	rules := rs.rulesFor(rec.Family, organization)

	byResource := make(map[string][]Rule)
	for _, r := range rules {
		byResource[r.TargetResource()] = append(byResource[r.TargetResource()], r)
	}

	bundle := fhir.NewBundle(rec.MessageID, rs.Version)
	res := &fhir.ValidationResult{}

	patient := e.buildResource("Patient", patientSeed(rec), rec.MessageID,
		byResource["Patient"], &recordContext{record: rec}, bundle, res)

	var patientRef string
	if patient != nil {
		patientRef = fhir.Reference("Patient", patient.ID)
	}

	link := func(r *fhir.ClinicalResource) {
		if r != nil && patientRef != "" {
			r.Set("subject.reference", patientRef)
		}
	}

	switch rec.Family {
	case hl7v2.FamilyAdmission:
		if rec.Encounter != nil {
			enc := e.buildResource("Encounter", encounterSeed(rec), rec.MessageID,
				byResource["Encounter"], &recordContext{record: rec}, bundle, res)
			link(enc)
		}

	case hl7v2.FamilyOrder:
		for i := range rec.Orders {
			ord := &rec.Orders[i]
			sr := e.buildResource("ServiceRequest", orderSeed("ServiceRequest", ord), rec.MessageID,
				byResource["ServiceRequest"], &recordContext{record: rec, order: ord}, bundle, res)
			link(sr)
		}

	case hl7v2.FamilyResult:
		var observations []*fhir.ClinicalResource
		for i := range rec.Observations {
			obs := &rec.Observations[i]
			o := e.buildResource("Observation", observationSeed(rec, obs), rec.MessageID,
				byResource["Observation"], &recordContext{record: rec, observation: obs}, bundle, res)
			link(o)
			if o != nil {
				observations = append(observations, o)
			}
		}
		for i := range rec.Orders {
			ord := &rec.Orders[i]
			ctx := &recordContext{record: rec, order: ord}
			if len(rec.Observations) > 0 {
				ctx.observation = &rec.Observations[0]
			}
			dr := e.buildResource("DiagnosticReport", orderSeed("DiagnosticReport", ord), rec.MessageID,
				byResource["DiagnosticReport"], ctx, bundle, res)
			link(dr)
			if dr != nil {
				for j, o := range observations {
					dr.Set(fmt.Sprintf("result[%d].reference", j), fhir.Reference("Observation", o.ID))
				}
			}
		}

	case hl7v2.FamilyDocument:
		if rec.Document != nil {
			doc := e.buildResource("DocumentReference", documentSeed(rec), rec.MessageID,
				byResource["DocumentReference"], &recordContext{record: rec}, bundle, res)
			link(doc)
		}

	case hl7v2.FamilyScheduling:
		if rec.Appointment != nil {
			appt := e.buildResource("Appointment", appointmentSeed(rec), rec.MessageID,
				byResource["Appointment"], &recordContext{record: rec}, bundle, res)
			if appt != nil && patientRef != "" {
				appt.Set("participant[0].actor.reference", patientRef)
				appt.Set("participant[0].status", "accepted")
			}
		}
	}

	return bundle, res
}

// buildResource applies the rules for one resource instance. It returns
// nil and marks the bundle partial when a required element cannot be
// populated.
func (e *Engine) buildResource(resourceType, seed, messageID string, rules []Rule, ctx *recordContext, bundle *fhir.Bundle, res *fhir.ValidationResult) *fhir.ClinicalResource {
	id := uuid.NewSHA1(resourceNamespace, []byte(seed)).String()
	r := fhir.NewResource(resourceType, id, messageID)

	var missing []string
	for _, rule := range rules {
		var v any
		ok := true
		if rule.Literal != "" {
			v = rule.Literal
		} else {
			v, ok = resolve(ctx, rule.Source)
			if ok {
				v, ok = applyTransform(rule.Transform, v)
			}
		}
		if !ok {
			if rule.Required {
				missing = append(missing, rule.Target)
			}
			continue
		}
		r.Set(rule.TargetPath(), v)
	}

	if len(missing) > 0 {
		bundle.Partial = true
		for _, target := range missing {
			res.Add(fhir.Issue{
				Severity:    fhir.IssueSeverityWarning,
				Code:        fhir.IssueTypeProcessing,
				Diagnostics: fmt.Sprintf("%s dropped: no source value for required element %s", resourceType, target),
				Expression:  target,
			})
		}
		return nil
	}

	bundle.Add(r)
	return r
}

func patientSeed(rec *hl7v2.ClinicalRecord) string {
	return "Patient|" + rec.Patient.AssigningAuthority + "|" + rec.Patient.MRN
}

func encounterSeed(rec *hl7v2.ClinicalRecord) string {
	key := rec.Encounter.VisitNumber
	if key == "" {
		key = rec.MessageID
	}
	return "Encounter|" + rec.Patient.AssigningAuthority + "|" + key
}

func orderSeed(resourceType string, ord *hl7v2.Order) string {
	key := ord.PlacerID
	if key == "" {
		key = ord.FillerID
	}
	return resourceType + "|" + key
}

func observationSeed(rec *hl7v2.ClinicalRecord, obs *hl7v2.Observation) string {
	orderKey := ""
	if len(rec.Orders) > 0 {
		orderKey = rec.Orders[0].PlacerID
		if orderKey == "" {
			orderKey = rec.Orders[0].FillerID
		}
	}
	return "Observation|" + orderKey + "|" + obs.SetID + "|" + obs.Code
}

func documentSeed(rec *hl7v2.ClinicalRecord) string {
	return "DocumentReference|" + rec.Document.ID
}

func appointmentSeed(rec *hl7v2.ClinicalRecord) string {
	key := rec.Appointment.PlacerID
	if key == "" {
		key = rec.Appointment.FillerID
	}
	return "Appointment|" + key
}
