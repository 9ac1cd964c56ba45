package fingerprint

import (
	"fmt"
	"strings"
)

// Policy decides how many stored neighbors must be visible to call the
// location unchanged.
type Policy int

const (
	// MatchAny accepts the location when at least one stored neighbor is visible.
	MatchAny Policy = iota
	// MatchThreeQuarters requires 75% of the stored neighbors, at least one.
	MatchThreeQuarters
)

// RelocationMatchPolicy is the policy used unless configured otherwise.
const RelocationMatchPolicy = MatchAny

// ParsePolicy parses "any" or "three_quarters". Empty selects RelocationMatchPolicy.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return RelocationMatchPolicy, nil
	case "any":
		return MatchAny, nil
	case "three_quarters", "75%":
		return MatchThreeQuarters, nil
	}
	return 0, fmt.Errorf("unknown fingerprint match policy %q", name)
}

func (p Policy) String() string {
	switch p {
	case MatchAny:
		return "any"
	case MatchThreeQuarters:
		return "three_quarters"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// Required returns the number of matches needed for a record of stored entries.
func (p Policy) Required(stored int) int {
	if p == MatchThreeQuarters && stored > 1 {
		if need := stored * 3 / 4; need > 1 {
			return need
		}
	}
	return 1
}

// Same reports whether matched out of stored entries means the same location.
func (p Policy) Same(stored, matched int) bool {
	return matched >= p.Required(stored)
}
