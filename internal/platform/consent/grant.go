package consent

import (
	"fmt"
	"time"
)

// Status is a consent grant lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
	StatusDenied    Status = "denied"
	StatusRevoked   Status = "revoked"
	StatusExpired   Status = "expired"
)

// transitions is the legal state machine. Absent entries are terminal.
// Inactive is an administrative pause, not a terminal state, so an
// inactive grant can be reactivated.
var transitions = map[Status][]Status{
	StatusPending:   {StatusActive, StatusDenied},
	StatusActive:    {StatusSuspended, StatusInactive, StatusRevoked, StatusDenied, StatusExpired},
	StatusSuspended: {StatusActive, StatusRevoked, StatusExpired},
	StatusInactive:  {StatusActive, StatusRevoked, StatusExpired},
}

// Terminal reports whether no transition leaves the status.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// KnownStatus reports whether s is a defined lifecycle state.
func KnownStatus(s Status) bool {
	switch s {
	case StatusPending, StatusActive, StatusInactive, StatusSuspended,
		StatusDenied, StatusRevoked, StatusExpired:
		return true
	}
	return false
}

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Grant is a patient's consent for one organization. Effectiveness is a
// pure function of the grant and a clock reading; it is recomputed on
// every evaluation and never cached.
type Grant struct {
	PatientID         string
	OrganizationID    string
	Status            Status
	AllowedCategories []Category
	EffectiveFrom     time.Time
	ExpiresAt         time.Time // zero means no expiry
	PolicyRef         string
	UpdatedAt         time.Time
}

// EffectiveAt reports whether the grant authorizes disclosure at the
// given instant: active status, effective window started, not expired.
func (g *Grant) EffectiveAt(now time.Time) bool {
	if g.Status != StatusActive {
		return false
	}
	if now.Before(g.EffectiveFrom) {
		return false
	}
	if !g.ExpiresAt.IsZero() && !now.Before(g.ExpiresAt) {
		return false
	}
	return true
}

// Allows reports whether the grant covers a category. Only effective
// grants allow anything; callers check EffectiveAt first.
func (g *Grant) Allows(c Category) bool {
	for _, allowed := range g.AllowedCategories {
		if allowed == c {
			return true
		}
	}
	return false
}

// Transition moves the grant to a new status, enforcing the state
// machine.
func (g *Grant) Transition(to Status, now time.Time) error {
	if !KnownStatus(to) {
		return fmt.Errorf("consent: unknown status %q", to)
	}
	if !CanTransition(g.Status, to) {
		return fmt.Errorf("consent: illegal transition %s -> %s", g.Status, to)
	}
	g.Status = to
	g.UpdatedAt = now
	return nil
}
