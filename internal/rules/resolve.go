package rules

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

const (
	// maxTypoDistance bounds the edit distance accepted by the last fallback.
	maxTypoDistance = 2

	// minTypoLength is the shortest rule name the typo fallback applies to.
	minTypoLength = 5
)

// Resolve maps a classifier verdict onto one of the active rules.
//
// An exact case-insensitive name match wins. Otherwise, unless the verdict is
// "none", the first rule whose name contains the verdict or is contained in
// it is returned. Failing that, a verdict that only swaps letters of a rule
// name ("Invocies") resolves to the closest such rule. A verdict with
// different letters ("Scam" for "Spam") never matches. Empty verdicts never
// match.
func Resolve(verdict string, active []Rule) (Rule, bool) {
	v := strings.ToLower(strings.TrimSpace(verdict))
	if v == "" {
		return Rule{}, false
	}

	for _, r := range active {
		if strings.ToLower(r.Name) == v {
			return r, true
		}
	}

	if v == NoneVerdict {
		return Rule{}, false
	}

	for _, r := range active {
		name := strings.ToLower(r.Name)
		if name == "" {
			continue
		}
		if strings.Contains(name, v) || strings.Contains(v, name) {
			return r, true
		}
	}

	best, bestDistance := -1, maxTypoDistance+1
	for i, r := range active {
		name := strings.ToLower(r.Name)
		if len([]rune(name)) < minTypoLength || !sameLetters(v, name) {
			continue
		}
		if d := levenshtein.ComputeDistance(v, name); d < bestDistance {
			best, bestDistance = i, d
		}
	}
	if best >= 0 {
		return active[best], true
	}
	return Rule{}, false
}

// sameLetters reports whether a and b are permutations of each other.
func sameLetters(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[rune]int)
	for _, r := range a {
		counts[r]++
	}
	for _, r := range b {
		counts[r]--
		if counts[r] < 0 {
			return false
		}
	}
	return true
}
