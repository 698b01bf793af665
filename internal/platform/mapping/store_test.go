package mapping

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/interop/gateway/internal/platform/hl7v2"
)

const rulesYAML = `version: "site-2026.1"
rules:
  - id: pat-mrn
    family: admission
    target: Patient.identifier[0].value
    source: patient.mrn
    required: true
  - id: pat-gender
    family: admission
    target: Patient.gender
    source: patient.gender
    transform: gender
  - id: mercy-system
    family: admission
    organization: MERCY
    target: Patient.identifier[0].system
    literal: urn:mercy:mrn
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(rulesYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	rs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if rs.Version != "site-2026.1" {
		t.Errorf("Version = %q", rs.Version)
	}
	if len(rs.Rules) != 3 {
		t.Fatalf("got %d rules, want 3", len(rs.Rules))
	}
	if rs.Rules[0].Family != hl7v2.FamilyAdmission || !rs.Rules[0].Required {
		t.Errorf("rule 0 = %+v", rs.Rules[0])
	}
	if rs.Rules[2].Organization != "MERCY" || rs.Rules[2].Literal != "urn:mercy:mrn" {
		t.Errorf("rule 2 = %+v", rs.Rules[2])
	}
}

func TestLoadFileRejectsBadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	bad := "version: v1\nrules:\n  - id: r1\n    family: billing\n    target: Patient.gender\n    literal: female\n"
	if err := os.WriteFile(path, []byte(bad), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile must reject unknown families")
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadFile of a missing file must fail")
	}
}
