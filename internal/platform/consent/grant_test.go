package consent

import (
	"context"
	"testing"
	"time"
)

func TestTransitions(t *testing.T) {
	legal := []struct{ from, to Status }{
		{StatusPending, StatusActive},
		{StatusPending, StatusDenied},
		{StatusActive, StatusSuspended},
		{StatusActive, StatusInactive},
		{StatusActive, StatusRevoked},
		{StatusActive, StatusDenied},
		{StatusActive, StatusExpired},
		{StatusSuspended, StatusActive},
		{StatusInactive, StatusActive},
	}
	for _, c := range legal {
		if !CanTransition(c.from, c.to) {
			t.Errorf("%s -> %s should be legal", c.from, c.to)
		}
	}

	illegal := []struct{ from, to Status }{
		{StatusDenied, StatusActive},
		{StatusRevoked, StatusActive},
		{StatusExpired, StatusActive},
		{StatusPending, StatusSuspended},
		{StatusSuspended, StatusPending},
	}
	for _, c := range illegal {
		if CanTransition(c.from, c.to) {
			t.Errorf("%s -> %s should be illegal", c.from, c.to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusDenied, StatusRevoked, StatusExpired} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusActive, StatusSuspended, StatusInactive} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestGrantTransition(t *testing.T) {
	g := &Grant{Status: StatusPending}
	now := time.Now()

	if err := g.Transition(StatusActive, now); err != nil {
		t.Fatalf("pending -> active: %v", err)
	}
	if g.Status != StatusActive || !g.UpdatedAt.Equal(now) {
		t.Errorf("grant = %+v", g)
	}

	if err := g.Transition(StatusPending, now); err == nil {
		t.Error("active -> pending should fail")
	}
	if err := g.Transition(Status("bogus"), now); err == nil {
		t.Error("unknown status should fail")
	}
}

func TestParseCategories(t *testing.T) {
	got, err := ParseCategories("demographics, results,results")
	if err != nil {
		t.Fatalf("ParseCategories: %v", err)
	}
	if !categoriesEqual(got, []Category{CategoryDemographics, CategoryResults}) {
		t.Errorf("got %v", got)
	}

	if _, err := ParseCategories("demographics,billing"); err == nil {
		t.Error("unknown category should fail")
	}

	got, err = ParseCategories("  ")
	if err != nil || got != nil {
		t.Errorf("blank input = %v, %v", got, err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	store.Put(activeGrant(CategoryDemographics))

	first, err := store.GetGrant(context.Background(), "MRN12345", "MERCY")
	if err != nil {
		t.Fatalf("GetGrant: %v", err)
	}
	first.Status = StatusRevoked
	first.AllowedCategories[0] = CategoryOrders

	second, err := store.GetGrant(context.Background(), "MRN12345", "MERCY")
	if err != nil {
		t.Fatalf("GetGrant: %v", err)
	}
	if second.Status != StatusActive || second.AllowedCategories[0] != CategoryDemographics {
		t.Error("mutating a returned grant must not affect the store")
	}
}
