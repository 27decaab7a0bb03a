// Package matcher resolves names against an already-resolved collection of
// people or locations. Matching never creates anything: a name with no
// match is reported as unresolved and the caller skips it.
package matcher

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"journal-sync/internal/document"
	"journal-sync/internal/storage"
)

// Normalize folds a name for comparison: diacritics stripped, lowercased,
// hyphens turned into spaces and whitespace collapsed.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(strings.ReplaceAll(folded, "-", " "))
	return strings.Join(strings.Fields(folded), " ")
}

// Candidate is one member of the parent collection together with every name
// it answers to.
type Candidate struct {
	ID    int64
	Names []string
}

func (c Candidate) matches(key string) bool {
	for _, n := range c.Names {
		if n != "" && Normalize(n) == key {
			return true
		}
	}
	return false
}

// Match returns the first candidate answering to name.
func Match(name string, candidates []Candidate) (Candidate, bool) {
	key := Normalize(name)
	if key == "" {
		return Candidate{}, false
	}
	for _, c := range candidates {
		if c.matches(key) {
			return c, true
		}
	}
	return Candidate{}, false
}

// MatchAny tries each name in turn and returns the first hit.
func MatchAny(names []string, candidates []Candidate) (Candidate, bool) {
	for _, n := range names {
		if c, ok := Match(n, candidates); ok {
			return c, true
		}
	}
	return Candidate{}, false
}

// People builds candidates from resolved persons. A person answers to its
// name, its name with lastname, its full name and its alias.
func People(persons []storage.Person) []Candidate {
	out := make([]Candidate, 0, len(persons))
	for _, p := range persons {
		names := []string{p.Name}
		if p.Lastname != "" {
			names = append(names, p.Name+" "+p.Lastname)
		}
		names = append(names, p.FullName, p.Alias)
		out = append(out, Candidate{ID: p.ID, Names: names})
	}
	return out
}

// Locations builds candidates from resolved locations.
func Locations(locations []storage.Location) []Candidate {
	out := make([]Candidate, 0, len(locations))
	for _, l := range locations {
		out = append(out, Candidate{ID: l.ID, Names: []string{l.Name}})
	}
	return out
}

// PersonNames lists the names a parsed person reference can be matched by,
// most specific first. The bare first name is only offered when the
// reference carries nothing more specific, so "Alice Cooper" never matches
// "Alice Smith".
func PersonNames(p document.PersonSpec) []string {
	var names []string
	if p.Alias != "" {
		names = append(names, p.Alias)
	}
	if p.FullName != "" {
		names = append(names, p.FullName)
	}
	if p.Lastname != "" {
		names = append(names, p.Name+" "+p.Lastname)
	}
	if len(names) == 0 {
		names = append(names, p.Name)
	}
	return names
}

// Subset resolves every name in refs against candidates and returns the ids
// of the hits, deduplicated, in reference order. Misses are returned
// separately so callers can log them.
func Subset(refs [][]string, candidates []Candidate) (ids []int64, missed []string) {
	seen := make(map[int64]bool)
	for _, names := range refs {
		c, ok := MatchAny(names, candidates)
		if !ok {
			if len(names) > 0 {
				missed = append(missed, names[len(names)-1])
			}
			continue
		}
		if !seen[c.ID] {
			seen[c.ID] = true
			ids = append(ids, c.ID)
		}
	}
	return ids, missed
}
