package hl7v2

import (
	"strings"
	"testing"
)

func rawFor(t *testing.T, family Family, payload string) *RawMessage {
	t.Helper()
	return &RawMessage{ID: "", Family: family, Payload: []byte(payload)}
}

func hasIssue(res *ValidationResult, code, field string) bool {
	for _, is := range res.Issues {
		if is.Code == code && (field == "" || is.Field == field) {
			return true
		}
	}
	return false
}

func TestValidateStructureAccepts(t *testing.T) {
	cases := []struct {
		family  Family
		payload string
	}{
		{FamilyAdmission, sampleADT},
		{FamilyOrder, sampleORM},
		{FamilyResult, sampleORU},
		{FamilyDocument, sampleMDM},
		{FamilyScheduling, sampleSIU},
	}
	for _, c := range cases {
		msg, res := ValidateStructure(rawFor(t, c.family, c.payload))
		if msg == nil {
			t.Fatalf("%s: no message returned", c.family)
		}
		if !res.Valid() {
			t.Errorf("%s: expected valid, got issues %+v", c.family, res.Issues)
		}
	}
}

func TestValidateStructureUnknownFamily(t *testing.T) {
	msg, res := ValidateStructure(rawFor(t, Family("billing"), sampleADT))
	if msg != nil {
		t.Error("unknown family should not return a parsed message")
	}
	if !hasIssue(res, CodeUnknownFamily, "") {
		t.Errorf("expected %s issue, got %+v", CodeUnknownFamily, res.Issues)
	}
	if res.Valid() {
		t.Error("unknown family must not validate")
	}
}

func TestValidateStructureUnparseable(t *testing.T) {
	_, res := ValidateStructure(rawFor(t, FamilyAdmission, "this is not HL7"))
	if !hasIssue(res, CodeUnparseable, "") {
		t.Errorf("expected %s issue, got %+v", CodeUnparseable, res.Issues)
	}
}

func TestValidateStructureFamilyMismatch(t *testing.T) {
	_, res := ValidateStructure(rawFor(t, FamilyResult, sampleADT))
	if !hasIssue(res, CodeFamilyMismatch, "MSH-9") {
		t.Errorf("expected family mismatch on MSH-9, got %+v", res.Issues)
	}
}

func TestValidateStructureMissingSegment(t *testing.T) {
	// Drop PV1 from the admission sample.
	var lines []string
	for _, line := range strings.Split(sampleADT, "\r") {
		if !strings.HasPrefix(line, "PV1") {
			lines = append(lines, line)
		}
	}
	_, res := ValidateStructure(rawFor(t, FamilyAdmission, strings.Join(lines, "\r")))
	if !hasIssue(res, CodeMissingSegment, "PV1") {
		t.Errorf("expected missing PV1, got %+v", res.Issues)
	}
	if res.Valid() {
		t.Error("missing required segment must not validate")
	}
}

func TestValidateStructureSegmentOrder(t *testing.T) {
	// PV1 before PID violates the admission grammar.
	lines := strings.Split(sampleADT, "\r")
	reordered := []string{lines[0], lines[1], lines[3], lines[2]}
	_, res := ValidateStructure(rawFor(t, FamilyAdmission, strings.Join(reordered, "\r")))
	if !hasIssue(res, CodeSegmentOrder, "") {
		t.Errorf("expected segment order issue, got %+v", res.Issues)
	}
}

func TestValidateStructureRepeatedSegment(t *testing.T) {
	payload := sampleADT + "\rPID|2||MRN9999^^^MERCY^MR||SECOND^PATIENT"
	_, res := ValidateStructure(rawFor(t, FamilyAdmission, payload))
	if !hasIssue(res, CodeSegmentRepeated, "PID") {
		t.Errorf("expected repeated PID issue, got %+v", res.Issues)
	}
}

func TestValidateStructureUnknownSegmentWarns(t *testing.T) {
	payload := sampleADT + "\rZBX|1|custom"
	_, res := ValidateStructure(rawFor(t, FamilyAdmission, payload))
	if !hasIssue(res, CodeUnknownSegment, "ZBX") {
		t.Errorf("expected unknown segment warning, got %+v", res.Issues)
	}
	if !res.Valid() {
		t.Error("unknown segments alone must not invalidate the message")
	}
}

func TestValidateStructureMissingPatientID(t *testing.T) {
	payload := strings.Replace(sampleADT,
		"PID|1||MRN12345^^^MERCY^MR||",
		"PID|1||||", 1)
	_, res := ValidateStructure(rawFor(t, FamilyAdmission, payload))
	if !hasIssue(res, CodeMissingField, "PID-3") {
		t.Errorf("expected missing PID-3 issue, got %+v", res.Issues)
	}
	if res.Valid() {
		t.Error("missing patient identifier must not validate")
	}
}

func TestValidateStructureBadBirthDate(t *testing.T) {
	payload := strings.Replace(sampleADT, "19850312", "1985-03-12", 1)
	_, res := ValidateStructure(rawFor(t, FamilyAdmission, payload))
	if !hasIssue(res, CodeBadDate, "PID-7") {
		t.Errorf("expected bad PID-7 date, got %+v", res.Issues)
	}
}

func TestValidateStructureBadTimestamp(t *testing.T) {
	payload := strings.Replace(sampleADT, "20260115103000", "banana", 1)
	_, res := ValidateStructure(rawFor(t, FamilyAdmission, payload))
	if !hasIssue(res, CodeBadFormat, "MSH-7") {
		t.Errorf("expected bad MSH-7 timestamp, got %+v", res.Issues)
	}
}

func TestValidateStructureMissingControlID(t *testing.T) {
	payload := strings.Replace(sampleADT, "|MSG00001|", "||", 1)
	_, res := ValidateStructure(rawFor(t, FamilyAdmission, payload))
	if !hasIssue(res, CodeMissingField, "MSH-10") {
		t.Errorf("expected missing MSH-10, got %+v", res.Issues)
	}
}

func TestValidateStructureOBXValueTypeWarning(t *testing.T) {
	payload := strings.Replace(sampleORU, "|NM|718-7", "|XX|718-7", 1)
	_, res := ValidateStructure(rawFor(t, FamilyResult, payload))
	if !hasIssue(res, CodeBadValue, "OBX(1)-2") {
		t.Errorf("expected OBX value type warning, got %+v", res.Issues)
	}
	if !res.Valid() {
		t.Error("unrecognized OBX value type is a warning, not an error")
	}
}

func TestValidationResultValid(t *testing.T) {
	res := &ValidationResult{}
	if !res.Valid() {
		t.Error("empty result should be valid")
	}
	res.Add(Issue{Severity: SeverityWarning, Code: CodeBadValue})
	if !res.Valid() {
		t.Error("warnings alone should leave the result valid")
	}
	res.Add(Issue{Severity: SeverityError, Code: CodeMissingField})
	if res.Valid() {
		t.Error("an error issue must invalidate the result")
	}
	if len(res.Warnings()) != 1 {
		t.Errorf("Warnings() = %d entries, want 1", len(res.Warnings()))
	}
}
