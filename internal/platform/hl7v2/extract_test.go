package hl7v2

import (
	"strings"
	"testing"
	"time"
)

func mustExtract(t *testing.T, family Family, payload string) *ClinicalRecord {
	t.Helper()
	raw := &RawMessage{Family: family, Payload: []byte(payload)}
	msg, res := ValidateStructure(raw)
	if msg == nil || !res.Valid() {
		t.Fatalf("fixture does not validate: %+v", res.Issues)
	}
	rec, eres := Extract(msg, raw)
	if rec == nil {
		t.Fatalf("Extract returned nil: %+v", eres.Issues)
	}
	return rec
}

func TestExtractAdmission(t *testing.T) {
	rec := mustExtract(t, FamilyAdmission, sampleADT)

	if rec.MessageID != "MSG00001" {
		t.Errorf("MessageID = %q, want MSG00001", rec.MessageID)
	}
	p := rec.Patient
	if p.MRN != "MRN12345" || p.AssigningAuthority != "MERCY" {
		t.Errorf("identity = %q@%q, want MRN12345@MERCY", p.MRN, p.AssigningAuthority)
	}
	if p.FamilyName != "DOE" || p.GivenName != "JANE" {
		t.Errorf("name = %q %q", p.GivenName, p.FamilyName)
	}
	if p.Gender != "F" {
		t.Errorf("Gender = %q, want F", p.Gender)
	}
	if want := time.Date(1985, 3, 12, 0, 0, 0, 0, time.UTC); !p.BirthDate.Equal(want) {
		t.Errorf("BirthDate = %v, want %v", p.BirthDate, want)
	}
	if p.City != "SPRINGFIELD" || p.PostalCode != "62701" {
		t.Errorf("address = %q %q", p.City, p.PostalCode)
	}

	enc := rec.Encounter
	if enc == nil {
		t.Fatal("Encounter not extracted")
	}
	if enc.Class != "I" {
		t.Errorf("Class = %q, want I", enc.Class)
	}
	if enc.Location != "ICU" {
		t.Errorf("Location = %q, want ICU", enc.Location)
	}
	if enc.AttendingID != "ATT001" || enc.AttendingName != "SMITH" {
		t.Errorf("attending = %q %q", enc.AttendingID, enc.AttendingName)
	}
	if enc.VisitNumber != "VN2026-001" {
		t.Errorf("VisitNumber = %q", enc.VisitNumber)
	}
	if want := time.Date(2026, 1, 15, 10, 25, 0, 0, time.UTC); !enc.AdmitTime.Equal(want) {
		t.Errorf("AdmitTime = %v, want %v", enc.AdmitTime, want)
	}
}

func TestExtractResult(t *testing.T) {
	rec := mustExtract(t, FamilyResult, sampleORU)

	if len(rec.Orders) != 1 {
		t.Fatalf("got %d orders, want 1", len(rec.Orders))
	}
	ord := rec.Orders[0]
	if ord.PlacerID != "PL-9001" || ord.FillerID != "FL-3001" {
		t.Errorf("order IDs = %q/%q", ord.PlacerID, ord.FillerID)
	}
	if ord.Code != "CBC" || ord.CodeText != "Complete Blood Count" {
		t.Errorf("order code = %q (%q)", ord.Code, ord.CodeText)
	}

	if len(rec.Observations) != 2 {
		t.Fatalf("got %d observations, want 2", len(rec.Observations))
	}
	obs := rec.Observations[0]
	if obs.Code != "718-7" || obs.CodeSystem != "LN" {
		t.Errorf("obs code = %q@%q", obs.Code, obs.CodeSystem)
	}
	if obs.Value != "13.2" || obs.Units != "g/dL" {
		t.Errorf("obs value = %q %q", obs.Value, obs.Units)
	}
	if obs.ReferenceRange != "12.0-16.0" || obs.AbnormalFlag != "N" {
		t.Errorf("obs range/flag = %q/%q", obs.ReferenceRange, obs.AbnormalFlag)
	}
	if obs.Status != "F" {
		t.Errorf("obs status = %q, want F", obs.Status)
	}
	if want := time.Date(2026, 1, 16, 8, 15, 0, 0, time.UTC); !obs.ObservedAt.Equal(want) {
		t.Errorf("ObservedAt = %v, want %v", obs.ObservedAt, want)
	}
}

func TestExtractOrder(t *testing.T) {
	rec := mustExtract(t, FamilyOrder, sampleORM)

	if len(rec.Orders) != 1 {
		t.Fatalf("got %d orders, want 1", len(rec.Orders))
	}
	ord := rec.Orders[0]
	if ord.Control != "NW" {
		t.Errorf("Control = %q, want NW", ord.Control)
	}
	if ord.PlacerID != "PL-5500" {
		t.Errorf("PlacerID = %q, want PL-5500", ord.PlacerID)
	}
	if ord.Code != "80053" {
		t.Errorf("Code = %q, want 80053", ord.Code)
	}
}

func TestExtractDocument(t *testing.T) {
	rec := mustExtract(t, FamilyDocument, sampleMDM)

	doc := rec.Document
	if doc == nil {
		t.Fatal("Document not extracted")
	}
	if doc.Type != "DS" {
		t.Errorf("Type = %q, want DS", doc.Type)
	}
	if doc.ID != "DOC-8801" {
		t.Errorf("ID = %q, want DOC-8801", doc.ID)
	}
	if doc.CompletionStatus != "AU" {
		t.Errorf("CompletionStatus = %q, want AU", doc.CompletionStatus)
	}
	if want := time.Date(2026, 1, 18, 13, 30, 0, 0, time.UTC); !doc.ActivityAt.Equal(want) {
		t.Errorf("ActivityAt = %v, want %v", doc.ActivityAt, want)
	}
}

func TestExtractScheduling(t *testing.T) {
	rec := mustExtract(t, FamilyScheduling, sampleSIU)

	appt := rec.Appointment
	if appt == nil {
		t.Fatal("Appointment not extracted")
	}
	if appt.PlacerID != "APT-100" || appt.FillerID != "FIL-200" {
		t.Errorf("appointment IDs = %q/%q", appt.PlacerID, appt.FillerID)
	}
	if appt.Reason != "Post-op follow-up" {
		t.Errorf("Reason = %q", appt.Reason)
	}
	if appt.Status != "Booked" {
		t.Errorf("Status = %q, want Booked", appt.Status)
	}
	if appt.DurationMinutes != 30 {
		t.Errorf("DurationMinutes = %d, want 30", appt.DurationMinutes)
	}
	if want := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC); !appt.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", appt.Start, want)
	}
}

func TestExtractNeverDefaults(t *testing.T) {
	// An observation without a value must fail extraction, not be filled in.
	payload := strings.Replace(sampleORU, "||13.2|", "|||", 1)
	raw := &RawMessage{Family: FamilyResult, Payload: []byte(payload)}
	msg, _ := ValidateStructure(raw)
	rec, res := Extract(msg, raw)
	if rec != nil {
		t.Fatal("extraction with a missing observation value must fail")
	}
	if !hasIssue(res, CodeMissingField, "OBX(1)-5") {
		t.Errorf("expected missing OBX-5 issue, got %+v", res.Issues)
	}
}

func TestExtractMissingOrderIdentifiers(t *testing.T) {
	payload := "MSH|^~\\&|CPOE|MERCY|GATEWAY|INTEROP|20260117091500||ORM^O01|MSG00099|P|2.5.1\r" +
		"PID|1||MRN77001^^^MERCY^MR||ROE^RICHARD\r" +
		"ORC|NW\r" +
		"OBR|1|||80053^Comprehensive Metabolic Panel^C4"
	raw := &RawMessage{Family: FamilyOrder, Payload: []byte(payload)}
	msg, _ := ValidateStructure(raw)
	rec, res := Extract(msg, raw)
	if rec != nil {
		t.Fatal("order without placer or filler ID must fail extraction")
	}
	if !hasIssue(res, CodeMissingField, "OBR(1)-2") {
		t.Errorf("expected missing order identifier issue, got %+v", res.Issues)
	}
}

func TestExtractUsesRawID(t *testing.T) {
	raw := &RawMessage{ID: "INGEST-42", Family: FamilyAdmission, Payload: []byte(sampleADT)}
	msg, _ := ValidateStructure(raw)
	rec, _ := Extract(msg, raw)
	if rec.MessageID != "INGEST-42" {
		t.Errorf("MessageID = %q, want INGEST-42", rec.MessageID)
	}
}
