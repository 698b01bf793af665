package hl7v2

import (
	"fmt"
	"strings"
)

// segmentRule is one entry in a family's minimal grammar. Segments must
// appear in grammar order (by first occurrence); required segments must be
// present; non-repeatable segments may appear at most once.
type segmentRule struct {
	name     string
	required bool
	repeats  bool
}

// familyGrammar is the minimal segment grammar per message family. This is
// deliberately not the full HL7v2 abstract message syntax: only the segments
// the extractor depends on are constrained.
var familyGrammar = map[Family][]segmentRule{
	FamilyAdmission: {
		{name: "MSH", required: true},
		{name: "EVN"},
		{name: "PID", required: true},
		{name: "PV1", required: true},
		{name: "AL1", repeats: true},
		{name: "DG1", repeats: true},
	},
	FamilyOrder: {
		{name: "MSH", required: true},
		{name: "PID", required: true},
		{name: "PV1"},
		{name: "ORC", required: true, repeats: true},
		{name: "OBR", required: true, repeats: true},
		{name: "NTE", repeats: true},
	},
	FamilyResult: {
		{name: "MSH", required: true},
		{name: "PID", required: true},
		{name: "PV1"},
		{name: "OBR", required: true, repeats: true},
		{name: "OBX", required: true, repeats: true},
		{name: "NTE", repeats: true},
	},
	FamilyDocument: {
		{name: "MSH", required: true},
		{name: "EVN"},
		{name: "PID", required: true},
		{name: "PV1"},
		{name: "TXA", required: true},
		{name: "OBX", repeats: true},
	},
	FamilyScheduling: {
		{name: "MSH", required: true},
		{name: "SCH", required: true},
		{name: "PID", required: true},
		{name: "PV1"},
		{name: "AIS", repeats: true},
		{name: "AIL", repeats: true},
		{name: "AIP", repeats: true},
	},
}

// obxValueTypes are the OBX-2 value types the gateway understands.
var obxValueTypes = map[string]bool{
	"NM": true, "ST": true, "TX": true, "CE": true, "CWE": true,
	"DT": true, "TM": true, "TS": true, "SN": true, "FT": true,
}

// ValidateStructure checks a raw message against the declared family's
// minimal grammar: header completeness, segment presence and order, and
// basic field formats. It does not apply cross-field business rules.
//
// The parsed Message is returned alongside the result so callers do not
// parse twice; it is nil when the payload could not be parsed at all.
func ValidateStructure(raw *RawMessage) (*Message, *ValidationResult) {
	res := &ValidationResult{}

	if !KnownFamily(raw.Family) {
		res.Add(Issue{
			Severity: SeverityFatal,
			Code:     CodeUnknownFamily,
			Message:  fmt.Sprintf("unsupported message family %q", raw.Family),
			Value:    string(raw.Family),
		})
		return nil, res
	}

	msg, err := Parse(raw.Payload)
	if err != nil {
		res.Add(Issue{
			Severity: SeverityFatal,
			Code:     CodeUnparseable,
			Message:  err.Error(),
		})
		return nil, res
	}

	validateHeader(msg, raw.Family, res)
	validateGrammar(msg, raw.Family, res)
	validateFields(msg, raw.Family, res)

	return msg, res
}

// validateHeader checks the MSH fields every family requires.
func validateHeader(msg *Message, family Family, res *ValidationResult) {
	msh := msg.GetSegment("MSH")

	if msg.Type == "" {
		res.Add(Issue{
			Severity: SeverityError,
			Field:    "MSH-9",
			Code:     CodeMissingField,
			Message:  "message type is required",
		})
	} else if got, ok := FamilyFromType(msg.Type); !ok || got != family {
		res.Add(Issue{
			Severity: SeverityError,
			Field:    "MSH-9",
			Code:     CodeFamilyMismatch,
			Message:  fmt.Sprintf("message type %q does not belong to family %q", msg.Type, family),
			Value:    msg.Type,
		})
	}

	if msg.ControlID == "" {
		res.Add(Issue{
			Severity: SeverityError,
			Field:    "MSH-10",
			Code:     CodeMissingField,
			Message:  "message control ID is required",
		})
	}

	if ts := msh.GetField(7); ts == "" {
		res.Add(Issue{
			Severity: SeverityError,
			Field:    "MSH-7",
			Code:     CodeMissingField,
			Message:  "message timestamp is required",
		})
	} else if _, err := ParseTimestamp(ts); err != nil {
		res.Add(Issue{
			Severity: SeverityError,
			Field:    "MSH-7",
			Code:     CodeBadFormat,
			Message:  "message timestamp is not a valid HL7 timestamp",
			Value:    ts,
			Expected: "YYYYMMDD[HHMM[SS]]",
		})
	}

	if msg.Version == "" {
		res.Add(Issue{
			Severity: SeverityWarning,
			Field:    "MSH-12",
			Code:     CodeMissingField,
			Message:  "version ID is missing; assuming 2.5.1 semantics",
		})
	}
}

// validateGrammar checks segment presence, ordering, and repetition against
// the family grammar. Segments outside the grammar produce warnings only.
func validateGrammar(msg *Message, family Family, res *ValidationResult) {
	rules := familyGrammar[family]

	position := make(map[string]int, len(rules))
	for i, r := range rules {
		position[r.name] = i
	}

	firstSeen := make(map[string]int)
	count := make(map[string]int)
	for i, seg := range msg.Segments {
		if _, known := position[seg.Name]; !known {
			if count[seg.Name] == 0 {
				res.Add(Issue{
					Severity: SeverityWarning,
					Field:    seg.Name,
					Code:     CodeUnknownSegment,
					Message:  fmt.Sprintf("segment %s is not part of the %s grammar and will be ignored", seg.Name, family),
				})
			}
			count[seg.Name]++
			continue
		}
		if _, seen := firstSeen[seg.Name]; !seen {
			firstSeen[seg.Name] = i
		}
		count[seg.Name]++
	}

	lastPos := -1
	lastName := ""
	for i := range msg.Segments {
		name := msg.Segments[i].Name
		pos, known := position[name]
		if !known || firstSeen[name] != i {
			continue
		}
		if pos < lastPos {
			res.Add(Issue{
				Severity: SeverityError,
				Field:    name,
				Code:     CodeSegmentOrder,
				Message:  fmt.Sprintf("segment %s must precede %s", name, lastName),
				Expected: grammarOrder(rules),
			})
		} else {
			lastPos = pos
			lastName = name
		}
	}

	for _, r := range rules {
		if r.required && count[r.name] == 0 {
			res.Add(Issue{
				Severity: SeverityError,
				Field:    r.name,
				Code:     CodeMissingSegment,
				Message:  fmt.Sprintf("required segment %s is missing", r.name),
			})
		}
		if !r.repeats && count[r.name] > 1 {
			res.Add(Issue{
				Severity: SeverityError,
				Field:    r.name,
				Code:     CodeSegmentRepeated,
				Message:  fmt.Sprintf("segment %s must not repeat (found %d)", r.name, count[r.name]),
			})
		}
	}
}

// validateFields checks basic field formats and the mandatory patient
// identifier. Semantic interpretation belongs to the extractor.
func validateFields(msg *Message, family Family, res *ValidationResult) {
	if pid := msg.GetSegment("PID"); pid != nil {
		if pid.GetComponent(3, 1) == "" {
			res.Add(Issue{
				Severity: SeverityError,
				Field:    "PID-3",
				Code:     CodeMissingField,
				Message:  "patient identifier is required",
			})
		}
		if dob := pid.GetField(7); dob != "" {
			if _, err := ParseDate(dob); err != nil {
				res.Add(Issue{
					Severity: SeverityError,
					Field:    "PID-7",
					Code:     CodeBadDate,
					Message:  "date of birth is not a valid HL7 date",
					Value:    dob,
					Expected: "YYYYMMDD",
				})
			}
		}
	}

	if family == FamilyResult {
		for i, obx := range msg.GetSegments("OBX") {
			vt := strings.ToUpper(obx.GetField(2))
			if vt != "" && !obxValueTypes[vt] {
				res.Add(Issue{
					Severity: SeverityWarning,
					Field:    fmt.Sprintf("OBX(%d)-2", i+1),
					Code:     CodeBadValue,
					Message:  fmt.Sprintf("unrecognized OBX value type %q", vt),
					Value:    vt,
				})
			}
		}
	}

	if family == FamilyScheduling {
		if sch := msg.GetSegment("SCH"); sch != nil {
			if start := sch.GetComponent(11, 4); start != "" {
				if _, err := ParseTimestamp(start); err != nil {
					res.Add(Issue{
						Severity: SeverityError,
						Field:    "SCH-11",
						Code:     CodeBadFormat,
						Message:  "appointment start is not a valid HL7 timestamp",
						Value:    start,
					})
				}
			}
		}
	}
}

func grammarOrder(rules []segmentRule) string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.name
	}
	return strings.Join(names, " ")
}
