package consent

import (
	"context"
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func activeGrant(categories ...Category) *Grant {
	return &Grant{
		PatientID:         "MRN12345",
		OrganizationID:    "MERCY",
		Status:            StatusActive,
		AllowedCategories: categories,
		EffectiveFrom:     testNow.Add(-24 * time.Hour),
	}
}

func evaluate(t *testing.T, g *Grant, requested ...Category) *Decision {
	t.Helper()
	store := NewMemoryStore()
	if g != nil {
		store.Put(g)
	}
	gate := NewGateWithClock(store, fixedClock)
	d, err := gate.Evaluate(context.Background(), "MRN12345", "MERCY", requested)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	return d
}

func categoriesEqual(a, b []Category) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEvaluateAllAllowed(t *testing.T) {
	d := evaluate(t, activeGrant(CategoryDemographics, CategoryResults),
		CategoryDemographics, CategoryResults)

	if !d.Effective || !d.AllowsAll() {
		t.Fatalf("decision = %+v", d)
	}
	if d.ReasonCode != ReasonAllowed {
		t.Errorf("ReasonCode = %q", d.ReasonCode)
	}
}

func TestEvaluatePartial(t *testing.T) {
	requested := []Category{CategoryDemographics, CategoryResults, CategoryDocuments}
	d := evaluate(t, activeGrant(CategoryDemographics, CategoryResults), requested...)

	if !d.Effective {
		t.Fatal("grant should be effective")
	}
	if !categoriesEqual(d.Allowed, []Category{CategoryDemographics, CategoryResults}) {
		t.Errorf("Allowed = %v", d.Allowed)
	}
	if !categoriesEqual(d.Denied, []Category{CategoryDocuments}) {
		t.Errorf("Denied = %v", d.Denied)
	}
	if d.ReasonCode != ReasonPartial {
		t.Errorf("ReasonCode = %q", d.ReasonCode)
	}
}

func TestEvaluatePartitionsRequested(t *testing.T) {
	requested := []Category{CategoryDemographics, CategoryOrders, CategoryScheduling}
	d := evaluate(t, activeGrant(CategoryOrders), requested...)

	if len(d.Allowed)+len(d.Denied) != len(requested) {
		t.Fatalf("allowed+denied = %d, want %d", len(d.Allowed)+len(d.Denied), len(requested))
	}
	seen := map[Category]bool{}
	for _, c := range d.Allowed {
		seen[c] = true
	}
	for _, c := range d.Denied {
		if seen[c] {
			t.Fatalf("category %s in both allowed and denied", c)
		}
	}
}

func TestEvaluateNoGrant(t *testing.T) {
	d := evaluate(t, nil, CategoryDemographics)
	if d.Effective || !d.DeniesAll() {
		t.Fatalf("decision = %+v", d)
	}
	if d.ReasonCode != ReasonNotFound {
		t.Errorf("ReasonCode = %q", d.ReasonCode)
	}
}

func TestEvaluateIneffectiveStatuses(t *testing.T) {
	cases := []struct {
		status Status
		reason string
	}{
		{StatusPending, ReasonPending},
		{StatusSuspended, ReasonSuspended},
		{StatusInactive, ReasonInactive},
		{StatusDenied, ReasonDenied},
		{StatusRevoked, ReasonRevoked},
		{StatusExpired, ReasonExpired},
	}
	for _, c := range cases {
		g := activeGrant(CategoryDemographics)
		g.Status = c.status
		d := evaluate(t, g, CategoryDemographics)
		if d.Effective {
			t.Errorf("%s: decision should not be effective", c.status)
		}
		if d.ReasonCode != c.reason {
			t.Errorf("%s: ReasonCode = %q, want %q", c.status, d.ReasonCode, c.reason)
		}
	}
}

func TestEvaluateExpiryIsClockDriven(t *testing.T) {
	// Status is still active but the expiry instant has passed; the gate
	// must deny without any recorded transition.
	g := activeGrant(CategoryDemographics)
	g.ExpiresAt = testNow.Add(-time.Minute)

	d := evaluate(t, g, CategoryDemographics)
	if d.Effective {
		t.Fatal("expired grant must not be effective")
	}
	if d.ReasonCode != ReasonExpired {
		t.Errorf("ReasonCode = %q, want %q", d.ReasonCode, ReasonExpired)
	}
}

func TestEvaluateNotYetEffective(t *testing.T) {
	g := activeGrant(CategoryDemographics)
	g.EffectiveFrom = testNow.Add(time.Hour)

	d := evaluate(t, g, CategoryDemographics)
	if d.Effective {
		t.Fatal("future grant must not be effective")
	}
	if d.ReasonCode != ReasonNotYetEffective {
		t.Errorf("ReasonCode = %q", d.ReasonCode)
	}
}

func TestEvaluateExpiryBoundary(t *testing.T) {
	// A grant expiring exactly now is no longer effective.
	g := activeGrant(CategoryDemographics)
	g.ExpiresAt = testNow

	if d := evaluate(t, g, CategoryDemographics); d.Effective {
		t.Error("grant expiring at the evaluation instant must be denied")
	}
}

type failingStore struct{}

func (failingStore) GetGrant(context.Context, string, string) (*Grant, error) {
	return nil, errors.New("connection refused")
}

func TestEvaluateStoreFailureFailsClosed(t *testing.T) {
	gate := NewGateWithClock(failingStore{}, fixedClock)
	d, err := gate.Evaluate(context.Background(), "MRN12345", "MERCY",
		[]Category{CategoryDemographics, CategoryResults})

	if err == nil {
		t.Fatal("store failure must surface an error")
	}
	if d == nil || !d.DeniesAll() {
		t.Fatal("store failure must deny every category")
	}
	if d.ReasonCode != ReasonUnavailable {
		t.Errorf("ReasonCode = %q", d.ReasonCode)
	}
}

func TestEvaluateNeverCachesEffectiveness(t *testing.T) {
	store := NewMemoryStore()
	g := activeGrant(CategoryDemographics)
	store.Put(g)

	clock := testNow
	gate := NewGateWithClock(store, func() time.Time { return clock })

	d, _ := gate.Evaluate(context.Background(), "MRN12345", "MERCY", []Category{CategoryDemographics})
	if !d.Effective {
		t.Fatal("grant should be effective initially")
	}

	// Revoke between evaluations; the second evaluation must see it.
	g.Status = StatusRevoked
	store.Put(g)

	d, _ = gate.Evaluate(context.Background(), "MRN12345", "MERCY", []Category{CategoryDemographics})
	if d.Effective {
		t.Fatal("revocation must take effect on the next evaluation")
	}
	if d.ReasonCode != ReasonRevoked {
		t.Errorf("ReasonCode = %q", d.ReasonCode)
	}
}
