package document

import (
	"strings"

	"journal-sync/internal/errs"
)

const aliasSigil = "@"

// ParsePersonToken parses the compact person syntax used in `people` lists:
//
//	alice              short name, hyphens become spaces ("Mary-Jo" -> "Mary Jo")
//	Robert Smith       first word is the name, the rest the last name
//	Bob (Robert Smith) expansion: full name, last name taken from it when absent
//	@bobby             alias, name derived from the alias
//	@bobby (Bob Smith) alias with the name supplied by the expansion
func ParsePersonToken(raw string) (PersonSpec, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return PersonSpec{}, errs.Invalid("people", "empty person name")
	}

	prefix, expansion, err := splitExpansion(raw)
	if err != nil {
		return PersonSpec{}, err
	}

	if strings.HasPrefix(prefix, aliasSigil) {
		alias := strings.TrimPrefix(prefix, aliasSigil)
		if alias == "" || len(strings.Fields(alias)) != 1 {
			return PersonSpec{}, errs.Invalid("people", "alias %q must be a single token", prefix)
		}
		spec := PersonSpec{Alias: alias}
		if expansion != "" {
			spec.Name, spec.Lastname = splitPlainName(expansion)
		} else {
			spec.Name = hyphensToSpaces(alias)
		}
		return spec, nil
	}

	spec := PersonSpec{}
	spec.Name, spec.Lastname = splitPlainName(prefix)
	if expansion != "" {
		spec.FullName = expansion
		if spec.Lastname == "" {
			words := strings.Fields(expansion)
			if len(words) > 1 {
				spec.Lastname = strings.Join(words[1:], " ")
			}
		}
	}
	return spec, nil
}

// splitExpansion separates "prefix (expansion)".
func splitExpansion(raw string) (prefix, expansion string, err error) {
	if !strings.HasSuffix(raw, ")") {
		if strings.ContainsAny(raw, "()") {
			return "", "", errs.Invalid("people", "unbalanced parentheses in %q", raw)
		}
		return raw, "", nil
	}
	open := strings.Index(raw, "(")
	if open < 0 {
		return "", "", errs.Invalid("people", "unbalanced parentheses in %q", raw)
	}
	prefix = strings.TrimSpace(raw[:open])
	expansion = strings.Join(strings.Fields(raw[open+1:len(raw)-1]), " ")
	if prefix == "" || expansion == "" {
		return "", "", errs.Invalid("people", "expansion needs a name before and inside parentheses: %q", raw)
	}
	if strings.ContainsAny(expansion, "()") {
		return "", "", errs.Invalid("people", "nested parentheses in %q", raw)
	}
	return prefix, expansion, nil
}

func splitPlainName(s string) (name, lastname string) {
	words := strings.Fields(s)
	switch len(words) {
	case 0:
		return "", ""
	case 1:
		return hyphensToSpaces(words[0]), ""
	}
	return words[0], strings.Join(words[1:], " ")
}

func hyphensToSpaces(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "-", " ")), " ")
}

// personToken renders p in the compact syntax when that syntax parses back to
// exactly p.
func personToken(p PersonSpec) (string, bool) {
	if p.Disambiguator != "" {
		return "", false
	}
	for _, candidate := range personCandidates(p) {
		parsed, err := ParsePersonToken(candidate)
		if err == nil && parsed == p {
			return candidate, true
		}
	}
	return "", false
}

func personCandidates(p PersonSpec) []string {
	short := strings.ReplaceAll(p.Name, " ", "-")
	full := short
	if p.Lastname != "" {
		full = p.Name + " " + p.Lastname
	}

	if p.Alias != "" {
		if p.FullName != "" {
			return nil
		}
		return []string{
			aliasSigil + p.Alias,
			aliasSigil + p.Alias + " (" + full + ")",
		}
	}
	if p.FullName != "" {
		return []string{
			short + " (" + p.FullName + ")",
			full + " (" + p.FullName + ")",
		}
	}
	return []string{short, full}
}

// DisplayName is the most specific human-readable name of p.
func (p PersonSpec) DisplayName() string {
	switch {
	case p.FullName != "":
		return p.FullName
	case p.Lastname != "":
		return p.Name + " " + p.Lastname
	}
	return p.Name
}
