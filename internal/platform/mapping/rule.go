package mapping

import (
	"fmt"
	"strings"

	"github.com/interop/gateway/internal/platform/hl7v2"
)

// Rule maps one source value onto one target element of a FHIR resource.
// Exactly one of Source or Literal is set. Organization-specific rules
// shadow default rules for the same target element; among rules of equal
// specificity the first declared wins.
type Rule struct {
	ID           string        `yaml:"id"`
	Family       hl7v2.Family  `yaml:"family"`
	Organization string        `yaml:"organization,omitempty"`
	Target       string        `yaml:"target"`
	Source       string        `yaml:"source,omitempty"`
	Literal      string        `yaml:"literal,omitempty"`
	Transform    string        `yaml:"transform,omitempty"`
	Required     bool          `yaml:"required,omitempty"`
}

// TargetResource returns the resource type prefix of the target element
// (e.g. "Patient" for "Patient.gender").
func (r Rule) TargetResource() string {
	if i := strings.IndexByte(r.Target, '.'); i >= 0 {
		return r.Target[:i]
	}
	return r.Target
}

// TargetPath returns the element path within the target resource.
func (r Rule) TargetPath() string {
	if i := strings.IndexByte(r.Target, '.'); i >= 0 {
		return r.Target[i+1:]
	}
	return ""
}

// RuleSet is an immutable versioned collection of mapping rules. A rule
// set is never modified after load; rule changes produce a new version.
type RuleSet struct {
	Version string `yaml:"version"`
	Rules   []Rule `yaml:"rules"`
}

// Validate checks structural soundness of the rule set.
func (rs *RuleSet) Validate() error {
	if rs.Version == "" {
		return fmt.Errorf("mapping: rule set version is required")
	}
	seen := make(map[string]bool, len(rs.Rules))
	for i, r := range rs.Rules {
		if r.ID == "" {
			return fmt.Errorf("mapping: rule %d has no id", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("mapping: duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true
		if !hl7v2.KnownFamily(r.Family) {
			return fmt.Errorf("mapping: rule %q names unknown family %q", r.ID, r.Family)
		}
		if r.TargetPath() == "" {
			return fmt.Errorf("mapping: rule %q has no target element", r.ID)
		}
		if (r.Source == "") == (r.Literal == "") {
			return fmt.Errorf("mapping: rule %q must set exactly one of source or literal", r.ID)
		}
		if r.Transform != "" && !knownTransform(r.Transform) {
			return fmt.Errorf("mapping: rule %q names unknown transform %q", r.ID, r.Transform)
		}
	}
	return nil
}

// rulesFor selects the effective rules for a family and organization:
// organization-specific rules shadow defaults per target element, and
// declaration order breaks ties within a specificity level.
func (rs *RuleSet) rulesFor(family hl7v2.Family, organization string) []Rule {
	byTarget := make(map[string]Rule)
	var order []string
	for _, r := range rs.Rules {
		if r.Family != family {
			continue
		}
		if r.Organization != "" && r.Organization != organization {
			continue
		}
		existing, ok := byTarget[r.Target]
		if !ok {
			byTarget[r.Target] = r
			order = append(order, r.Target)
			continue
		}
		// An org-specific rule replaces a default; equal specificity
		// keeps the earlier declaration.
		if r.Organization != "" && existing.Organization == "" {
			byTarget[r.Target] = r
		}
	}
	out := make([]Rule, 0, len(order))
	for _, target := range order {
		out = append(out, byTarget[target])
	}
	return out
}
