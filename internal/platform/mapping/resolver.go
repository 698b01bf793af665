package mapping

import (
	"strconv"
	"strings"
	"time"

	"github.com/interop/gateway/internal/platform/hl7v2"
)

// recordContext is the resolution scope for one target resource instance.
// Orders and observations are repeated elements, so the engine sets the
// current item before applying rules for resources derived from them.
type recordContext struct {
	record      *hl7v2.ClinicalRecord
	order       *hl7v2.Order
	observation *hl7v2.Observation
}

// resolve looks up a source path against the context. The second return
// value is false when the addressed value is absent or zero; mapping
// never substitutes defaults for missing source data.
func resolve(ctx *recordContext, path string) (any, bool) {
	rec := ctx.record

	switch path {
	case "message.id":
		return nonEmpty(rec.MessageID)
	case "message.family":
		return nonEmpty(string(rec.Family))
	}

	if v, ok := strings.CutPrefix(path, "patient."); ok {
		return resolvePatient(&rec.Patient, v)
	}
	if v, ok := strings.CutPrefix(path, "encounter."); ok {
		if rec.Encounter == nil {
			return nil, false
		}
		return resolveEncounter(rec.Encounter, v)
	}
	if v, ok := strings.CutPrefix(path, "order."); ok {
		if ctx.order == nil {
			return nil, false
		}
		return resolveOrder(ctx.order, v)
	}
	if v, ok := strings.CutPrefix(path, "result."); ok {
		if ctx.observation == nil {
			return nil, false
		}
		return resolveObservation(ctx.observation, v)
	}
	if v, ok := strings.CutPrefix(path, "document."); ok {
		if rec.Document == nil {
			return nil, false
		}
		return resolveDocument(rec.Document, v)
	}
	if v, ok := strings.CutPrefix(path, "appointment."); ok {
		if rec.Appointment == nil {
			return nil, false
		}
		return resolveAppointment(rec.Appointment, v)
	}
	return nil, false
}

func resolvePatient(p *hl7v2.PatientIdentity, field string) (any, bool) {
	switch field {
	case "mrn":
		return nonEmpty(p.MRN)
	case "authority":
		return nonEmpty(p.AssigningAuthority)
	case "family":
		return nonEmpty(p.FamilyName)
	case "given":
		return nonEmpty(p.GivenName)
	case "birthDate":
		return nonZeroTime(p.BirthDate)
	case "gender":
		return nonEmpty(p.Gender)
	case "addressLine":
		return nonEmpty(p.AddressLine)
	case "city":
		return nonEmpty(p.City)
	case "state":
		return nonEmpty(p.State)
	case "postalCode":
		return nonEmpty(p.PostalCode)
	case "phone":
		return nonEmpty(p.Phone)
	}
	return nil, false
}

func resolveEncounter(e *hl7v2.Encounter, field string) (any, bool) {
	switch field {
	case "class":
		return nonEmpty(e.Class)
	case "location":
		return nonEmpty(e.Location)
	case "attendingId":
		return nonEmpty(e.AttendingID)
	case "attendingName":
		return nonEmpty(e.AttendingName)
	case "visitNumber":
		return nonEmpty(e.VisitNumber)
	case "admitTime":
		return nonZeroTime(e.AdmitTime)
	}
	return nil, false
}

func resolveOrder(o *hl7v2.Order, field string) (any, bool) {
	switch field {
	case "control":
		return nonEmpty(o.Control)
	case "placerId":
		return nonEmpty(o.PlacerID)
	case "fillerId":
		return nonEmpty(o.FillerID)
	case "anyId":
		if o.PlacerID != "" {
			return o.PlacerID, true
		}
		return nonEmpty(o.FillerID)
	case "code":
		return nonEmpty(o.Code)
	case "codeText":
		return nonEmpty(o.CodeText)
	case "codeSystem":
		return nonEmpty(o.CodeSystem)
	case "orderedAt":
		return nonZeroTime(o.OrderedAt)
	}
	return nil, false
}

func resolveObservation(o *hl7v2.Observation, field string) (any, bool) {
	switch field {
	case "setId":
		return nonEmpty(o.SetID)
	case "valueType":
		return nonEmpty(o.ValueType)
	case "code":
		return nonEmpty(o.Code)
	case "codeText":
		return nonEmpty(o.CodeText)
	case "codeSystem":
		return nonEmpty(o.CodeSystem)
	case "value":
		return nonEmpty(o.Value)
	case "units":
		return nonEmpty(o.Units)
	case "referenceRange":
		return nonEmpty(o.ReferenceRange)
	case "abnormalFlag":
		return nonEmpty(o.AbnormalFlag)
	case "status":
		return nonEmpty(o.Status)
	case "observedAt":
		return nonZeroTime(o.ObservedAt)
	}
	return nil, false
}

func resolveDocument(d *hl7v2.Document, field string) (any, bool) {
	switch field {
	case "type":
		return nonEmpty(d.Type)
	case "id":
		return nonEmpty(d.ID)
	case "completionStatus":
		return nonEmpty(d.CompletionStatus)
	case "activityAt":
		return nonZeroTime(d.ActivityAt)
	}
	return nil, false
}

func resolveAppointment(a *hl7v2.Appointment, field string) (any, bool) {
	switch field {
	case "placerId":
		return nonEmpty(a.PlacerID)
	case "fillerId":
		return nonEmpty(a.FillerID)
	case "anyId":
		if a.PlacerID != "" {
			return a.PlacerID, true
		}
		return nonEmpty(a.FillerID)
	case "reason":
		return nonEmpty(a.Reason)
	case "status":
		return nonEmpty(a.Status)
	case "start":
		return nonZeroTime(a.Start)
	case "durationMinutes":
		if a.DurationMinutes <= 0 {
			return nil, false
		}
		return a.DurationMinutes, true
	}
	return nil, false
}

func nonEmpty(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	return s, true
}

func nonZeroTime(t time.Time) (any, bool) {
	if t.IsZero() {
		return nil, false
	}
	return t, true
}

// Code tables for value transforms. Unmapped codes fall through to the
// documented fallback so profile bindings judge the outcome.

var genderCodes = map[string]string{
	"M": "male", "F": "female", "O": "other", "A": "other",
	"U": "unknown", "N": "unknown",
}

var encounterClassCodes = map[string]string{
	"I": "IMP", "O": "AMB", "E": "EMER", "P": "PRENC", "R": "AMB", "B": "AMB",
}

var obxStatusCodes = map[string]string{
	"F": "final", "P": "preliminary", "C": "corrected",
	"X": "cancelled", "R": "registered", "D": "entered-in-error",
}

var orderControlStatus = map[string]string{
	"NW": "active", "OK": "active", "SC": "active", "IP": "active",
	"HD": "on-hold", "CA": "revoked", "DC": "revoked", "OC": "revoked",
	"CM": "completed",
}

var docStatusCodes = map[string]string{
	"AU": "current", "LA": "current", "DO": "current",
	"IN": "current", "IP": "current", "PA": "current",
	"CA": "entered-in-error", "OB": "superseded",
}

var apptStatusCodes = map[string]string{
	"BOOKED": "booked", "PENDING": "pending", "ARRIVED": "arrived",
	"COMPLETE": "fulfilled", "CANCELLED": "cancelled", "NOSHOW": "noshow",
	"WAITLIST": "waitlist", "DELETED": "cancelled",
}

func knownTransform(name string) bool {
	switch name {
	case "gender", "date", "datetime", "lower", "upper",
		"encounter-class", "obx-status", "order-status",
		"doc-status", "appt-status", "minutes":
		return true
	}
	return false
}

// applyTransform converts a resolved source value into its target form.
// The second return value is false when the value cannot be transformed.
func applyTransform(name string, value any) (any, bool) {
	switch name {
	case "":
		if t, ok := value.(time.Time); ok {
			return t.UTC().Format(time.RFC3339), true
		}
		return value, true
	case "date":
		t, ok := value.(time.Time)
		if !ok {
			return nil, false
		}
		return t.Format("2006-01-02"), true
	case "datetime":
		t, ok := value.(time.Time)
		if !ok {
			return nil, false
		}
		return t.UTC().Format(time.RFC3339), true
	case "minutes":
		n, ok := value.(int)
		if !ok {
			return nil, false
		}
		return strconv.Itoa(n), true
	}

	s, ok := value.(string)
	if !ok {
		return nil, false
	}
	switch name {
	case "lower":
		return strings.ToLower(s), true
	case "upper":
		return strings.ToUpper(s), true
	case "gender":
		if mapped, ok := genderCodes[strings.ToUpper(s)]; ok {
			return mapped, true
		}
		return "unknown", true
	case "encounter-class":
		if mapped, ok := encounterClassCodes[strings.ToUpper(s)]; ok {
			return mapped, true
		}
		return strings.ToUpper(s), true
	case "obx-status":
		if mapped, ok := obxStatusCodes[strings.ToUpper(s)]; ok {
			return mapped, true
		}
		return "unknown", true
	case "order-status":
		if mapped, ok := orderControlStatus[strings.ToUpper(s)]; ok {
			return mapped, true
		}
		return "unknown", true
	case "doc-status":
		if mapped, ok := docStatusCodes[strings.ToUpper(s)]; ok {
			return mapped, true
		}
		return "current", true
	case "appt-status":
		if mapped, ok := apptStatusCodes[strings.ToUpper(s)]; ok {
			return mapped, true
		}
		return "booked", true
	}
	return nil, false
}
