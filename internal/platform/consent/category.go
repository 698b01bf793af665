package consent

import (
	"fmt"
	"strings"
)

// Category is a clinical data category subject to consent. The set is
// closed; filtering and grants both speak in these values.
type Category string

const (
	CategoryDemographics Category = "demographics"
	CategoryEncounters   Category = "encounters"
	CategoryOrders       Category = "orders"
	CategoryResults      Category = "results"
	CategoryMedications  Category = "medications"
	CategoryDocuments    Category = "documents"
	CategoryScheduling   Category = "scheduling"
)

// Categories returns the closed category set.
func Categories() []Category {
	return []Category{
		CategoryDemographics, CategoryEncounters, CategoryOrders,
		CategoryResults, CategoryMedications, CategoryDocuments,
		CategoryScheduling,
	}
}

// KnownCategory reports whether c is a supported category.
func KnownCategory(c Category) bool {
	switch c {
	case CategoryDemographics, CategoryEncounters, CategoryOrders,
		CategoryResults, CategoryMedications, CategoryDocuments,
		CategoryScheduling:
		return true
	}
	return false
}

// ParseCategories parses a comma-separated category list, rejecting
// unknown values and deduplicating.
func ParseCategories(s string) ([]Category, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	seen := map[Category]bool{}
	var out []Category
	for _, part := range strings.Split(s, ",") {
		c := Category(strings.ToLower(strings.TrimSpace(part)))
		if c == "" {
			continue
		}
		if !KnownCategory(c) {
			return nil, fmt.Errorf("consent: unknown category %q", c)
		}
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out, nil
}
