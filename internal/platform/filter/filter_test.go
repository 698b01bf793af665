package filter

import (
	"testing"
	"time"

	"github.com/interop/gateway/internal/platform/consent"
	"github.com/interop/gateway/internal/platform/fhir"
)

func resultBundle() *fhir.Bundle {
	b := fhir.NewBundle("MSG1", "v1")

	pat := fhir.NewResource("Patient", "p1", "MSG1")
	pat.Set("identifier[0].value", "MRN12345")
	b.Add(pat)

	obs := fhir.NewResource("Observation", "o1", "MSG1")
	obs.Set("status", "final")
	obs.Set("subject.reference", "Patient/p1")
	b.Add(obs)

	dr := fhir.NewResource("DiagnosticReport", "d1", "MSG1")
	dr.Set("status", "final")
	dr.Set("result[0].reference", "Observation/o1")
	dr.Set("presentedForm[0].url", "urn:doc:1")
	b.Add(dr)

	return b
}

func decision(allowed, denied []consent.Category) *consent.Decision {
	return &consent.Decision{
		Effective:   true,
		Allowed:     allowed,
		Denied:      denied,
		Reason:      "grant covers a subset of the requested categories",
		EvaluatedAt: time.Now(),
	}
}

func TestApplyUnfiltered(t *testing.T) {
	b := resultBundle()
	res := Apply(b, decision([]consent.Category{consent.CategoryDemographics, consent.CategoryResults, consent.CategoryDocuments}, nil), DefaultTable())

	if res.Filtered || res.Blocked {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Bundle.Resources) != 3 {
		t.Errorf("got %d resources, want 3", len(res.Bundle.Resources))
	}
}

func TestApplyRemovesDeniedResources(t *testing.T) {
	b := resultBundle()
	res := Apply(b, decision(
		[]consent.Category{consent.CategoryDemographics, consent.CategoryDocuments},
		[]consent.Category{consent.CategoryResults},
	), DefaultTable())

	if !res.Filtered || res.Blocked {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Bundle.Resources) != 1 || res.Bundle.Resources[0].Type != "Patient" {
		t.Fatalf("kept = %+v", res.Bundle.Resources)
	}
	if len(res.RemovedCategories) != 1 || res.RemovedCategories[0] != consent.CategoryResults {
		t.Errorf("RemovedCategories = %v", res.RemovedCategories)
	}
	if len(res.RemovedPaths) != 2 {
		t.Errorf("RemovedPaths = %v", res.RemovedPaths)
	}
}

func TestApplyStripsCrossCategoryFields(t *testing.T) {
	b := resultBundle()
	res := Apply(b, decision(
		[]consent.Category{consent.CategoryDemographics, consent.CategoryResults},
		[]consent.Category{consent.CategoryDocuments},
	), DefaultTable())

	if !res.Filtered {
		t.Fatal("expected filtering")
	}
	var dr *fhir.ClinicalResource
	for _, r := range res.Bundle.Resources {
		if r.Type == "DiagnosticReport" {
			dr = r
		}
	}
	if dr == nil {
		t.Fatal("DiagnosticReport should survive a documents denial")
	}
	if _, ok := dr.Get("presentedForm"); ok {
		t.Error("presentedForm belongs to documents and must be stripped")
	}
	if got := dr.GetString("result[0].reference"); got != "Observation/o1" {
		t.Errorf("result reference = %q, want retained", got)
	}
}

func TestApplyBlocksWhenNothingRemains(t *testing.T) {
	b := resultBundle()
	res := Apply(b, decision(nil, []consent.Category{
		consent.CategoryDemographics, consent.CategoryResults, consent.CategoryDocuments,
	}), DefaultTable())

	if !res.Blocked {
		t.Fatal("all categories denied must block the response")
	}
	if len(res.Bundle.Resources) != 0 {
		t.Errorf("blocked bundle still has %d resources", len(res.Bundle.Resources))
	}
	if res.Reason == "" {
		t.Error("blocked result must carry the decision reason")
	}
}

func TestApplyPrunesDanglingReferences(t *testing.T) {
	b := resultBundle()
	// Deny documents only; then deny results via a second scenario where
	// the report survives but its observations do not. Reports are
	// results-category, so construct a table where the report maps to
	// encounters to isolate reference pruning.
	table := DefaultTable()
	table.Resources["DiagnosticReport"] = consent.CategoryEncounters

	res := Apply(b, decision(
		[]consent.Category{consent.CategoryDemographics, consent.CategoryEncounters},
		[]consent.Category{consent.CategoryResults, consent.CategoryDocuments},
	), table)

	var dr *fhir.ClinicalResource
	for _, r := range res.Bundle.Resources {
		if r.Type == "DiagnosticReport" {
			dr = r
		}
	}
	if dr == nil {
		t.Fatal("report should survive under the adjusted table")
	}
	if _, ok := dr.Get("result"); ok {
		t.Error("references to removed observations must be pruned")
	}
}

func TestApplyNeverMutatesInput(t *testing.T) {
	b := resultBundle()
	before := len(b.Resources)

	Apply(b, decision(nil, []consent.Category{
		consent.CategoryDemographics, consent.CategoryResults, consent.CategoryDocuments,
	}), DefaultTable())

	if len(b.Resources) != before {
		t.Fatal("Apply mutated the input bundle")
	}
	var dr *fhir.ClinicalResource
	for _, r := range b.Resources {
		if r.Type == "DiagnosticReport" {
			dr = r
		}
	}
	if _, ok := dr.Get("presentedForm"); !ok {
		t.Error("input resource fields were stripped in place")
	}
}

func TestApplyRemovesUnknownResourceTypes(t *testing.T) {
	b := fhir.NewBundle("MSG1", "v1")
	b.Add(fhir.NewResource("Patient", "p1", "MSG1"))
	b.Add(fhir.NewResource("Specimen", "s1", "MSG1"))

	res := Apply(b, decision(
		[]consent.Category{consent.CategoryDemographics},
		[]consent.Category{consent.CategoryResults},
	), DefaultTable())

	for _, r := range res.Bundle.Resources {
		if r.Type == "Specimen" {
			t.Fatal("uncategorized resource types must not pass through")
		}
	}
}
