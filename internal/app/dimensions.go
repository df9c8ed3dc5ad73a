package app

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/domain"
)

// DimensionCombinator enumerates every allowed dimension combination.
type DimensionCombinator struct {
	names  []string
	values map[string][]string
}

// ParseDimensions reads a preset definition such as
// "language=en,de;audience=public". A value may carry a fallback chain
// separated by "|", e.g. "language=de_CH|de". An empty definition yields a
// single empty combination.
func ParseDimensions(definition string) (*DimensionCombinator, error) {
	c := &DimensionCombinator{values: map[string][]string{}}
	for _, part := range strings.Split(definition, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, rawValues, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid dimension definition %q", part)
		}
		if _, dup := c.values[name]; dup {
			return nil, fmt.Errorf("dimension %q defined twice", name)
		}
		var values []string
		for _, v := range strings.Split(rawValues, ",") {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("dimension %q has no values", name)
		}
		c.names = append(c.names, name)
		c.values[name] = values
	}
	slices.Sort(c.names)
	return c, nil
}

// Empty reports whether no dimensions are configured.
func (c *DimensionCombinator) Empty() bool {
	return c == nil || len(c.names) == 0
}

// Combinations returns the cartesian product of all configured values.
func (c *DimensionCombinator) Combinations() []domain.DimensionValues {
	combos := []domain.DimensionValues{{}}
	if c.Empty() {
		return combos
	}
	for _, name := range c.names {
		var next []domain.DimensionValues
		for _, combo := range combos {
			for _, value := range c.values[name] {
				extended := combo.Clone()
				extended[name] = strings.Split(value, "|")
				next = append(next, extended)
			}
		}
		combos = next
	}
	return combos
}

// Matching returns the combinations a record stored with the given values
// belongs to: every combination whose value chains contain all stored
// values. Without configured dimensions every record belongs to the single
// empty combination.
func (c *DimensionCombinator) Matching(stored domain.DimensionValues) []domain.DimensionValues {
	if c.Empty() {
		return []domain.DimensionValues{{}}
	}
	var matches []domain.DimensionValues
	for _, combo := range c.Combinations() {
		if covers(combo, stored) {
			matches = append(matches, combo)
		}
	}
	return matches
}

// Route returns the combination equal to dims when there is one, and the
// matching combinations otherwise.
func (c *DimensionCombinator) Route(dims domain.DimensionValues) []domain.DimensionValues {
	if !c.Empty() {
		for _, combo := range c.Combinations() {
			if combo.Equal(dims) {
				return []domain.DimensionValues{combo}
			}
		}
	}
	return c.Matching(dims)
}

func covers(combo, stored domain.DimensionValues) bool {
	if len(stored) != len(combo) {
		return false
	}
	for name, chain := range combo {
		values := stored[name]
		if len(values) == 0 {
			return false
		}
		for _, v := range values {
			if !slices.Contains(chain, v) {
				return false
			}
		}
	}
	return true
}
