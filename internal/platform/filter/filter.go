// Package filter removes bundle content belonging to consent-denied
// categories. Filtering always operates on a clone, so cached canonical
// bundles are never mutated.
package filter

import (
	"sort"
	"strconv"
	"strings"

	"github.com/interop/gateway/internal/platform/consent"
	"github.com/interop/gateway/internal/platform/fhir"
)

// Table declares the category of every resource type and of individual
// fields whose category differs from their containing resource. The
// mapping is total over the resource types the gateway produces;
// unlisted resource types are removed rather than passed through.
type Table struct {
	Resources map[string]consent.Category
	Fields    map[string]consent.Category // "ResourceType.path"
}

// DefaultTable returns the built-in categorization.
func DefaultTable() *Table {
	return &Table{
		Resources: map[string]consent.Category{
			"Patient":             consent.CategoryDemographics,
			"Encounter":           consent.CategoryEncounters,
			"ServiceRequest":      consent.CategoryOrders,
			"Observation":         consent.CategoryResults,
			"DiagnosticReport":    consent.CategoryResults,
			"DocumentReference":   consent.CategoryDocuments,
			"Appointment":         consent.CategoryScheduling,
			"MedicationRequest":   consent.CategoryMedications,
			"MedicationStatement": consent.CategoryMedications,
		},
		Fields: map[string]consent.Category{
			// Fields whose content crosses into another category.
			"DiagnosticReport.presentedForm": consent.CategoryDocuments,
			"Appointment.reasonCode":         consent.CategoryOrders,
			"Encounter.diagnosis":            consent.CategoryResults,
		},
	}
}

// Result is the outcome of filtering one bundle.
type Result struct {
	Bundle            *fhir.Bundle
	Filtered          bool
	Blocked           bool
	RemovedCategories []consent.Category
	RemovedPaths      []string
	Reason            string
}

// Apply enforces a consent decision on a bundle. The input bundle is
// never modified; the result always carries a fresh clone. When nothing
// is denied the clone passes through unfiltered. When every resource is
// removed the result is blocked and carries the decision reason.
func Apply(bundle *fhir.Bundle, decision *consent.Decision, table *Table) *Result {
	out := bundle.Clone()
	res := &Result{Bundle: out}

	if len(decision.Denied) == 0 {
		return res
	}

	denied := make(map[consent.Category]bool, len(decision.Denied))
	for _, c := range decision.Denied {
		denied[c] = true
	}

	removedCategories := map[consent.Category]bool{}
	var kept []*fhir.ClinicalResource
	for _, r := range out.Resources {
		category, known := table.Resources[r.Type]
		if !known || denied[category] {
			res.Filtered = true
			res.RemovedPaths = append(res.RemovedPaths, r.Type+"/"+r.ID)
			if known {
				removedCategories[category] = true
			}
			continue
		}
		stripFields(r, denied, table, res, removedCategories)
		kept = append(kept, r)
	}
	out.Resources = kept

	// DiagnosticReport.result references to removed Observations would
	// dangle; prune references to resources no longer present.
	pruneReferences(out)

	for c := range removedCategories {
		res.RemovedCategories = append(res.RemovedCategories, c)
	}
	sort.Slice(res.RemovedCategories, func(i, j int) bool {
		return res.RemovedCategories[i] < res.RemovedCategories[j]
	})

	if len(out.Resources) == 0 {
		res.Blocked = true
		res.Reason = decision.Reason
	}
	return res
}

// stripFields removes fields of the resource that belong to a denied
// category different from the resource's own.
func stripFields(r *fhir.ClinicalResource, denied map[consent.Category]bool, table *Table, res *Result, removedCategories map[consent.Category]bool) {
	for key, category := range table.Fields {
		resourceType, path, ok := strings.Cut(key, ".")
		if !ok || resourceType != r.Type || !denied[category] {
			continue
		}
		if _, present := r.Get(path); !present {
			continue
		}
		r.Delete(path)
		res.Filtered = true
		res.RemovedPaths = append(res.RemovedPaths, key)
		removedCategories[category] = true
	}
}

// pruneReferences drops reference entries pointing at resources that are
// not in the bundle.
func pruneReferences(bundle *fhir.Bundle) {
	present := make(map[string]bool, len(bundle.Resources))
	for _, r := range bundle.Resources {
		present[fhir.Reference(r.Type, r.ID)] = true
	}
	for _, r := range bundle.Resources {
		if r.Type != "DiagnosticReport" {
			continue
		}
		var refs []string
		for i := 0; ; i++ {
			ref := r.GetString("result[" + strconv.Itoa(i) + "].reference")
			if ref == "" {
				break
			}
			if present[ref] {
				refs = append(refs, ref)
			}
		}
		r.Delete("result")
		for i, ref := range refs {
			r.Set("result["+strconv.Itoa(i)+"].reference", ref)
		}
	}
}
