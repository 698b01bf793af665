package consent

import (
	"context"
	"time"
)

// Reason codes carried on every decision.
const (
	ReasonAllowed         = "allowed"
	ReasonPartial         = "partial"
	ReasonNotFound        = "no-grant"
	ReasonPending         = "pending"
	ReasonSuspended       = "suspended"
	ReasonInactive        = "inactive"
	ReasonDenied          = "denied"
	ReasonRevoked         = "revoked"
	ReasonExpired         = "expired"
	ReasonNotYetEffective = "not-yet-effective"
	ReasonUnavailable     = "store-unavailable"
)

// Decision is the outcome of one consent evaluation. Allowed and Denied
// partition the requested categories exactly.
type Decision struct {
	Effective   bool
	Allowed     []Category
	Denied      []Category
	ReasonCode  string
	Reason      string
	EvaluatedAt time.Time
}

// AllowsAll reports whether every requested category was allowed.
func (d *Decision) AllowsAll() bool {
	return len(d.Denied) == 0
}

// DeniesAll reports whether no requested category was allowed.
func (d *Decision) DeniesAll() bool {
	return len(d.Allowed) == 0
}

// Gate evaluates consent decisions. Every call reads the grant from the
// store and recomputes effectiveness against the current clock; decisions
// are never cached.
type Gate struct {
	store Store
	now   func() time.Time
}

// NewGate creates a gate over a grant store.
func NewGate(store Store) *Gate {
	return &Gate{store: store, now: time.Now}
}

// NewGateWithClock creates a gate with an injected clock for tests.
func NewGateWithClock(store Store, now func() time.Time) *Gate {
	return &Gate{store: store, now: now}
}

// Evaluate decides which of the requested categories the organization may
// receive for the patient. When the store fails, the returned decision
// denies everything and the error is surfaced so callers can distinguish
// infrastructure failure from a consent denial.
func (g *Gate) Evaluate(ctx context.Context, patientID, organizationID string, requested []Category) (*Decision, error) {
	now := g.now().UTC()

	grant, err := g.store.GetGrant(ctx, patientID, organizationID)
	if err != nil {
		if err == ErrNotFound {
			return denyAll(requested, now, ReasonNotFound,
				"no consent grant on file for this organization"), nil
		}
		return denyAll(requested, now, ReasonUnavailable,
			"consent store unavailable"), err
	}

	if !grant.EffectiveAt(now) {
		code, reason := ineffectiveReason(grant, now)
		return denyAll(requested, now, code, reason), nil
	}

	d := &Decision{Effective: true, EvaluatedAt: now}
	for _, c := range requested {
		if grant.Allows(c) {
			d.Allowed = append(d.Allowed, c)
		} else {
			d.Denied = append(d.Denied, c)
		}
	}
	switch {
	case len(d.Denied) == 0:
		d.ReasonCode = ReasonAllowed
		d.Reason = "all requested categories permitted"
	case len(d.Allowed) == 0:
		d.ReasonCode = ReasonDenied
		d.Reason = "grant covers none of the requested categories"
	default:
		d.ReasonCode = ReasonPartial
		d.Reason = "grant covers a subset of the requested categories"
	}
	return d, nil
}

func ineffectiveReason(grant *Grant, now time.Time) (string, string) {
	switch grant.Status {
	case StatusPending:
		return ReasonPending, "consent grant awaits patient confirmation"
	case StatusSuspended:
		return ReasonSuspended, "consent grant is suspended"
	case StatusInactive:
		return ReasonInactive, "consent grant is inactive"
	case StatusDenied:
		return ReasonDenied, "patient denied consent"
	case StatusRevoked:
		return ReasonRevoked, "patient revoked consent"
	case StatusExpired:
		return ReasonExpired, "consent grant expired"
	case StatusActive:
		if now.Before(grant.EffectiveFrom) {
			return ReasonNotYetEffective, "consent grant is not yet effective"
		}
		// Active status with a passed expiry: expiry is clock-driven,
		// not transition-driven.
		return ReasonExpired, "consent grant expired"
	}
	return ReasonDenied, "consent grant is not effective"
}

func denyAll(requested []Category, now time.Time, code, reason string) *Decision {
	return &Decision{
		Effective:   false,
		Denied:      append([]Category(nil), requested...),
		ReasonCode:  code,
		Reason:      reason,
		EvaluatedAt: now,
	}
}
