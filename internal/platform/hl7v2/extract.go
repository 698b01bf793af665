package hl7v2

import (
	"fmt"
	"time"
)

// ClinicalRecord is the typed intermediate form produced by extraction.
// It is owned by a single pipeline invocation and never persisted.
type ClinicalRecord struct {
	Family    Family
	MessageID string

	Patient PatientIdentity

	// Populated per family; nil/empty when not applicable.
	Encounter    *Encounter
	Orders       []Order
	Observations []Observation
	Document     *Document
	Appointment  *Appointment
}

// PatientIdentity is the patient demographic content common to all families.
type PatientIdentity struct {
	MRN                string
	AssigningAuthority string
	FamilyName         string
	GivenName          string
	BirthDate          time.Time // zero when absent
	Gender             string    // raw HL7 code (M/F/O/U)
	AddressLine        string
	City               string
	State              string
	PostalCode         string
	Phone              string
}

// Encounter carries PV1 visit content for admission messages.
type Encounter struct {
	Class         string
	Location      string
	AttendingID   string
	AttendingName string
	VisitNumber   string
	AdmitTime     time.Time
}

// Order carries ORC/OBR content: one entry per OBR.
type Order struct {
	Control    string
	PlacerID   string
	FillerID   string
	Code       string
	CodeText   string
	CodeSystem string
	OrderedAt  time.Time
}

// Observation carries one OBX result value.
type Observation struct {
	SetID          string
	ValueType      string
	Code           string
	CodeText       string
	CodeSystem     string
	Value          string
	Units          string
	ReferenceRange string
	AbnormalFlag   string
	Status         string
	ObservedAt     time.Time
}

// Document carries TXA content for document notification messages.
type Document struct {
	Type             string
	ID               string
	CompletionStatus string
	ActivityAt       time.Time
}

// Appointment carries SCH content for scheduling messages.
type Appointment struct {
	PlacerID        string
	FillerID        string
	Reason          string
	Status          string
	Start           time.Time
	DurationMinutes int
}

// Extract converts a structurally valid message into a ClinicalRecord.
// Dispatch is over the closed family set. Findings that block correct
// mapping are error issues; the extractor never substitutes defaults for
// missing or ambiguous mandatory clinical fields.
func Extract(msg *Message, raw *RawMessage) (*ClinicalRecord, *ValidationResult) {
	res := &ValidationResult{}
	rec := &ClinicalRecord{
		Family:    raw.Family,
		MessageID: raw.ID,
	}
	if rec.MessageID == "" {
		rec.MessageID = msg.ControlID
	}

	extractPatient(msg, rec, res)

	switch raw.Family {
	case FamilyAdmission:
		extractAdmission(msg, rec, res)
	case FamilyOrder:
		extractOrders(msg, rec, res)
	case FamilyResult:
		extractOrders(msg, rec, res)
		extractObservations(msg, rec, res)
	case FamilyDocument:
		extractDocument(msg, rec, res)
	case FamilyScheduling:
		extractScheduling(msg, rec, res)
	default:
		res.Add(Issue{
			Severity: SeverityFatal,
			Code:     CodeUnknownFamily,
			Message:  fmt.Sprintf("no extractor for family %q", raw.Family),
		})
		return nil, res
	}

	if !res.Valid() {
		return nil, res
	}
	return rec, res
}

func extractPatient(msg *Message, rec *ClinicalRecord, res *ValidationResult) {
	pid := msg.GetSegment("PID")
	if pid == nil {
		res.Add(Issue{
			Severity: SeverityError,
			Field:    "PID",
			Code:     CodeMissingSegment,
			Message:  "patient identification segment is required",
		})
		return
	}

	p := &rec.Patient
	p.MRN = pid.GetComponent(3, 1)
	p.AssigningAuthority = pid.GetComponent(3, 4)
	p.FamilyName = pid.GetComponent(5, 1)
	p.GivenName = pid.GetComponent(5, 2)
	p.Gender = pid.GetField(8)
	p.AddressLine = pid.GetComponent(11, 1)
	p.City = pid.GetComponent(11, 3)
	p.State = pid.GetComponent(11, 4)
	p.PostalCode = pid.GetComponent(11, 5)
	p.Phone = pid.GetComponent(13, 1)

	if p.MRN == "" {
		res.Add(Issue{
			Severity: SeverityError,
			Field:    "PID-3",
			Code:     CodeMissingField,
			Message:  "patient identifier is required",
		})
	}

	if dob := pid.GetField(7); dob != "" {
		t, err := ParseDate(dob)
		if err != nil {
			res.Add(Issue{
				Severity: SeverityError,
				Field:    "PID-7",
				Code:     CodeBadDate,
				Message:  "date of birth is not a real calendar date",
				Value:    dob,
			})
		} else {
			p.BirthDate = t
		}
	}
}

func extractAdmission(msg *Message, rec *ClinicalRecord, res *ValidationResult) {
	pv1 := msg.GetSegment("PV1")
	if pv1 == nil {
		res.Add(Issue{
			Severity: SeverityError,
			Field:    "PV1",
			Code:     CodeMissingSegment,
			Message:  "patient visit segment is required for admission messages",
		})
		return
	}

	enc := &Encounter{
		Class:         pv1.GetField(2),
		Location:      pv1.GetComponent(3, 1),
		AttendingID:   pv1.GetComponent(7, 1),
		AttendingName: pv1.GetComponent(7, 2),
		VisitNumber:   pv1.GetComponent(19, 1),
	}

	if enc.Class == "" {
		res.Add(Issue{
			Severity: SeverityError,
			Field:    "PV1-2",
			Code:     CodeMissingField,
			Message:  "patient class is required",
		})
	}

	if at := pv1.GetField(44); at != "" {
		t, err := ParseTimestamp(at)
		if err != nil {
			res.Add(Issue{
				Severity: SeverityError,
				Field:    "PV1-44",
				Code:     CodeBadDate,
				Message:  "admit time is not a valid HL7 timestamp",
				Value:    at,
			})
		} else {
			enc.AdmitTime = t
		}
	} else if evn := msg.GetSegment("EVN"); evn != nil {
		if t, err := ParseTimestamp(evn.GetField(2)); err == nil {
			enc.AdmitTime = t
		}
	}

	rec.Encounter = enc
}

func extractOrders(msg *Message, rec *ClinicalRecord, res *ValidationResult) {
	orcs := msg.GetSegments("ORC")
	for i, obr := range msg.GetSegments("OBR") {
		ord := Order{
			PlacerID:   obr.GetComponent(2, 1),
			FillerID:   obr.GetComponent(3, 1),
			Code:       obr.GetComponent(4, 1),
			CodeText:   obr.GetComponent(4, 2),
			CodeSystem: obr.GetComponent(4, 3),
		}
		if i < len(orcs) {
			ord.Control = orcs[i].GetField(1)
			if ord.PlacerID == "" {
				ord.PlacerID = orcs[i].GetComponent(2, 1)
			}
		}

		if ord.Code == "" {
			res.Add(Issue{
				Severity: SeverityError,
				Field:    fmt.Sprintf("OBR(%d)-4", i+1),
				Code:     CodeMissingField,
				Message:  "universal service identifier is required",
			})
		}
		if ord.PlacerID == "" && ord.FillerID == "" {
			res.Add(Issue{
				Severity: SeverityError,
				Field:    fmt.Sprintf("OBR(%d)-2", i+1),
				Code:     CodeMissingField,
				Message:  "either placer or filler order number is required",
			})
		}

		if ts := obr.GetField(7); ts != "" {
			t, err := ParseTimestamp(ts)
			if err != nil {
				res.Add(Issue{
					Severity: SeverityError,
					Field:    fmt.Sprintf("OBR(%d)-7", i+1),
					Code:     CodeBadDate,
					Message:  "observation date/time is not a valid HL7 timestamp",
					Value:    ts,
				})
			} else {
				ord.OrderedAt = t
			}
		}

		rec.Orders = append(rec.Orders, ord)
	}
}

func extractObservations(msg *Message, rec *ClinicalRecord, res *ValidationResult) {
	for i, obx := range msg.GetSegments("OBX") {
		obs := Observation{
			SetID:          obx.GetField(1),
			ValueType:      obx.GetField(2),
			Code:           obx.GetComponent(3, 1),
			CodeText:       obx.GetComponent(3, 2),
			CodeSystem:     obx.GetComponent(3, 3),
			Value:          obx.GetField(5),
			Units:          obx.GetComponent(6, 1),
			ReferenceRange: obx.GetField(7),
			AbnormalFlag:   obx.GetField(8),
			Status:         obx.GetField(11),
		}

		if obs.Code == "" {
			res.Add(Issue{
				Severity: SeverityError,
				Field:    fmt.Sprintf("OBX(%d)-3", i+1),
				Code:     CodeMissingField,
				Message:  "observation identifier is required",
			})
		}
		if obs.Value == "" {
			res.Add(Issue{
				Severity: SeverityError,
				Field:    fmt.Sprintf("OBX(%d)-5", i+1),
				Code:     CodeMissingField,
				Message:  "observation value is required",
			})
		}

		if ts := obx.GetField(14); ts != "" {
			t, err := ParseTimestamp(ts)
			if err != nil {
				res.Add(Issue{
					Severity: SeverityError,
					Field:    fmt.Sprintf("OBX(%d)-14", i+1),
					Code:     CodeBadDate,
					Message:  "observation time is not a valid HL7 timestamp",
					Value:    ts,
				})
			} else {
				obs.ObservedAt = t
			}
		}

		rec.Observations = append(rec.Observations, obs)
	}
}

func extractDocument(msg *Message, rec *ClinicalRecord, res *ValidationResult) {
	txa := msg.GetSegment("TXA")
	if txa == nil {
		res.Add(Issue{
			Severity: SeverityError,
			Field:    "TXA",
			Code:     CodeMissingSegment,
			Message:  "document notification segment is required",
		})
		return
	}

	doc := &Document{
		Type:             txa.GetComponent(2, 1),
		ID:               txa.GetComponent(12, 1),
		CompletionStatus: txa.GetField(17),
	}

	if doc.Type == "" {
		res.Add(Issue{
			Severity: SeverityError,
			Field:    "TXA-2",
			Code:     CodeMissingField,
			Message:  "document type is required",
		})
	}
	if doc.ID == "" {
		res.Add(Issue{
			Severity: SeverityError,
			Field:    "TXA-12",
			Code:     CodeMissingField,
			Message:  "unique document number is required",
		})
	}

	if ts := txa.GetField(4); ts != "" {
		t, err := ParseTimestamp(ts)
		if err != nil {
			res.Add(Issue{
				Severity: SeverityError,
				Field:    "TXA-4",
				Code:     CodeBadDate,
				Message:  "activity date/time is not a valid HL7 timestamp",
				Value:    ts,
			})
		} else {
			doc.ActivityAt = t
		}
	}

	rec.Document = doc
}

func extractScheduling(msg *Message, rec *ClinicalRecord, res *ValidationResult) {
	sch := msg.GetSegment("SCH")
	if sch == nil {
		res.Add(Issue{
			Severity: SeverityError,
			Field:    "SCH",
			Code:     CodeMissingSegment,
			Message:  "schedule activity segment is required",
		})
		return
	}

	appt := &Appointment{
		PlacerID: sch.GetComponent(1, 1),
		FillerID: sch.GetComponent(2, 1),
		Reason:   sch.GetComponent(7, 2),
		Status:   sch.GetComponent(25, 1),
	}
	if appt.Reason == "" {
		appt.Reason = sch.GetComponent(7, 1)
	}

	if appt.PlacerID == "" && appt.FillerID == "" {
		res.Add(Issue{
			Severity: SeverityError,
			Field:    "SCH-1",
			Code:     CodeMissingField,
			Message:  "either placer or filler appointment ID is required",
		})
	}

	if start := sch.GetComponent(11, 4); start != "" {
		t, err := ParseTimestamp(start)
		if err != nil {
			res.Add(Issue{
				Severity: SeverityError,
				Field:    "SCH-11",
				Code:     CodeBadDate,
				Message:  "appointment start is not a valid HL7 timestamp",
				Value:    start,
			})
		} else {
			appt.Start = t
		}
	} else {
		res.Add(Issue{
			Severity: SeverityError,
			Field:    "SCH-11",
			Code:     CodeMissingField,
			Message:  "appointment start time is required",
		})
	}

	if dur := sch.GetField(9); dur != "" {
		var mins int
		if _, err := fmt.Sscanf(dur, "%d", &mins); err == nil && mins > 0 {
			appt.DurationMinutes = mins
		}
	}

	rec.Appointment = appt
}
