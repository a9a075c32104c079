// Package provider defines the closed set of AI backend providers and the
// orderings the router uses to choose between them.
package provider

// ID identifies one of the interchangeable AI backends.
type ID string

const (
	HighQualityCloud ID = "high-quality-cloud" // frontier cloud model, best output, most expensive
	CheapCloud       ID = "cheap-cloud"        // fast cloud model, good enough for simple traffic
	CodeSpecialized  ID = "code-specialized"   // tuned for code generation and review
	FreeLocal        ID = "free-local"         // locally hosted, zero marginal cost
)

// All lists every supported provider.
func All() []ID {
	return []ID{HighQualityCloud, CheapCloud, CodeSpecialized, FreeLocal}
}

// Valid reports whether id names a supported provider.
func Valid(id ID) bool {
	switch id {
	case HighQualityCloud, CheapCloud, CodeSpecialized, FreeLocal:
		return true
	}
	return false
}

// ByQuality orders providers from highest output quality to lowest.
// Used when a request classifies as complex reasoning.
func ByQuality() []ID {
	return []ID{HighQualityCloud, CodeSpecialized, CheapCloud, FreeLocal}
}

// ByCost orders providers from cheapest to most expensive.
// Used for simple and ambiguous requests and for cost-first callers.
func ByCost() []ID {
	return []ID{FreeLocal, CheapCloud, CodeSpecialized, HighQualityCloud}
}

// ForCode orders providers for code-shaped requests: the specialized backend
// first, then by descending quality.
func ForCode() []ID {
	return []ID{CodeSpecialized, HighQualityCloud, CheapCloud, FreeLocal}
}

// Set is an allowlist of providers.
type Set map[ID]struct{}

// NewSet builds a Set from the given IDs, ignoring unknown ones.
func NewSet(ids ...ID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		if Valid(id) {
			s[id] = struct{}{}
		}
	}
	return s
}

// Contains reports whether id is in the set.
func (s Set) Contains(id ID) bool {
	_, ok := s[id]
	return ok
}

// Intersect returns the members of order that are present in both sets,
// preserving order's ordering.
func Intersect(order []ID, a, b Set) []ID {
	var out []ID
	for _, id := range order {
		if a.Contains(id) && b.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}
