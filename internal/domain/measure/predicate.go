package measure

import (
	"strings"
)

// Predicate is the typed replacement for the catalog's historical SQL
// fragments: a record filter expressed as data. A record's code matches when
// MatchAll is set or any exact code / prefix hits, and no exclude prefix
// hits. Exclusions apply to MatchAll too.
type Predicate struct {
	MatchAll        bool     `json:"match_all,omitempty"`
	Codes           []string `json:"codes,omitempty"`
	CodePrefixes    []string `json:"code_prefixes,omitempty"`
	ExcludePrefixes []string `json:"exclude_prefixes,omitempty"`
}

// Empty reports whether the predicate can never match anything.
func (p Predicate) Empty() bool {
	return !p.MatchAll && len(p.Codes) == 0 && len(p.CodePrefixes) == 0
}

// Matches evaluates the predicate against an item code.
func (p Predicate) Matches(code string) bool {
	for _, prefix := range p.ExcludePrefixes {
		if strings.HasPrefix(code, prefix) {
			return false
		}
	}
	if p.MatchAll {
		return true
	}
	for _, c := range p.Codes {
		if code == c {
			return true
		}
	}
	for _, prefix := range p.CodePrefixes {
		if strings.HasPrefix(code, prefix) {
			return true
		}
	}
	return false
}
