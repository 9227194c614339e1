package classifier

import "strings"

const (
	// FallbackFlaggedConfidence is reported when the denylist matches.
	FallbackFlaggedConfidence = 0.8

	// FallbackCleanConfidence is reported when no denylist term matches.
	FallbackCleanConfidence = 0.2
)

// defaultDenylist is the fixed set of lowercase terms the fallback flags.
var defaultDenylist = []string{
	"hate", "stupid", "dumb", "idiot", "worst", "suck",
	"damn", "hell", "crap", "shit", "fuck", "ass", "bitch",
}

// Fallback is the deterministic keyword classifier used when the remote
// service is unavailable. It performs no I/O and always succeeds.
type Fallback struct {
	terms []string
}

// NewFallback creates a Fallback with the default denylist.
func NewFallback() *Fallback {
	return NewFallbackWithTerms(defaultDenylist)
}

// NewFallbackWithTerms creates a Fallback with a custom denylist. Terms are
// lowercased; empty terms are dropped. Intended for tests.
func NewFallbackWithTerms(terms []string) *Fallback {
	cleaned := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			cleaned = append(cleaned, t)
		}
	}
	return &Fallback{terms: cleaned}
}

// Classify flags text if any denylist term appears as a substring of its
// lowercased form. The confidences are fixed constants, not model output.
func (f *Fallback) Classify(text string) Verdict {
	lower := strings.ToLower(text)
	for _, term := range f.terms {
		if strings.Contains(lower, term) {
			return Verdict{Acceptable: false, Confidence: FallbackFlaggedConfidence}
		}
	}
	return Verdict{Acceptable: true, Confidence: FallbackCleanConfidence}
}
