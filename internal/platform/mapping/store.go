package mapping

import (
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Store holds the active rule set. Readers always see a complete,
// immutable snapshot; Swap publishes a new version atomically, so
// in-flight transformations finish under the version they started with.
type Store struct {
	current atomic.Value // *RuleSet
}

// NewStore creates a store seeded with the given rule set.
func NewStore(rs *RuleSet) (*Store, error) {
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	s := &Store{}
	s.current.Store(rs)
	return s, nil
}

// Current returns the active rule set snapshot.
func (s *Store) Current() *RuleSet {
	return s.current.Load().(*RuleSet)
}

// Swap validates and publishes a new rule set. The previous snapshot
// remains valid for readers that already hold it.
func (s *Store) Swap(rs *RuleSet) error {
	if err := rs.Validate(); err != nil {
		return err
	}
	s.current.Store(rs)
	return nil
}

// LoadFile reads a rule set from a YAML file.
func LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mapping: read rules: %w", err)
	}
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("mapping: parse rules: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return &rs, nil
}
