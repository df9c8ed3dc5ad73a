package domain

import (
	"strconv"
	"strings"
)

// IndexNames derives alias and generation names from a base index name.
//
// The alias for a dimension combination is the base name, suffixed with the
// dimension hash when the combination is not empty. A generation is the
// alias suffixed with the build postfix. An empty postfix addresses the
// alias itself, which is what live indexing writes through.
type IndexNames struct {
	Base string
}

// Alias returns the alias name for a dimension combination.
func (n IndexNames) Alias(dims DimensionValues) string {
	if h := dims.Hash(); h != "" {
		return n.Base + "-" + h
	}
	return n.Base
}

// Generation returns the concrete index name for one build of an alias.
func (n IndexNames) Generation(dims DimensionValues, postfix string) string {
	alias := n.Alias(dims)
	if postfix == "" {
		return alias
	}
	return alias + "-" + postfix
}

// IsStaleGeneration reports whether index is an older generation of alias
// than the one identified by postfix.
func IsStaleGeneration(alias, index, postfix string) bool {
	suffix, ok := strings.CutPrefix(index, alias+"-")
	if !ok || suffix == "" || suffix == postfix || strings.TrimLeft(suffix, "0123456789") != "" {
		return false
	}
	old, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		return false
	}
	current, err := strconv.ParseInt(postfix, 10, 64)
	if err != nil {
		return false
	}
	return old < current
}
