// Package sticky decides whether a short follow-up message should stay in
// the handler that produced the previous reply instead of going back through
// the intent classifier.
package sticky

import "strings"

// Predicate decides whether input is a follow-up for the given active mode.
type Predicate interface {
	IsFollowUp(activeMode, input string) bool
}

// KeywordGuard keeps short messages containing a refinement keyword inside
// the active handler. Only modes listed in StickyModes are eligible; router
// and knowledge modes always reclassify.
type KeywordGuard struct {
	MaxLen      int
	Keywords    []string
	StickyModes map[string]bool
}

// NewKeywordGuard returns the default guard: refinement verbs over the four
// risk sub-handlers, capped at 80 characters.
func NewKeywordGuard(stickyModes []string) *KeywordGuard {
	modes := make(map[string]bool, len(stickyModes))
	for _, m := range stickyModes {
		modes[m] = true
	}
	return &KeywordGuard{
		MaxLen:      80,
		Keywords:    []string{"filter", "sort", "only", "add", "exclude"},
		StickyModes: modes,
	}
}

func (g *KeywordGuard) IsFollowUp(activeMode, input string) bool {
	if !g.StickyModes[activeMode] {
		return false
	}
	if len(input) > g.MaxLen {
		return false
	}
	lower := strings.ToLower(input)
	for _, kw := range g.Keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
