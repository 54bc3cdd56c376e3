package keyword

import (
	"regexp"
	"strings"
)

// allowedFlags are the flag letters accepted after the closing delimiter.
const allowedFlags = "gimsuy"

var delimited = regexp.MustCompile(`(?s)\A/(.+)/([A-Za-z]*)\z`)

// Pattern is a compiled delimited regex keyword such as "/^hello+$/i".
type Pattern struct {
	Source string // keyword as stored, delimiters included
	Body   string
	Flags  string

	full   *regexp.Regexp // anchored at both ends
	search *regexp.Regexp // unanchored
}

// ParseDelimitedPattern parses "/body/flags". It reports false when s is not
// delimited, carries a flag outside "gimsuy", or has a body RE2 cannot compile;
// such keywords are matched as literal text instead.
//
// Flags i, m and s map to RE2 (?i), (?m) and (?s). Flags g, u and y are
// accepted but change nothing: RE2 always matches Unicode, and a keyword
// match is a single test rather than an iteration.
func ParseDelimitedPattern(s string) (*Pattern, bool) {
	m := delimited.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}
	body, flags := m[1], m[2]

	var inline strings.Builder
	for _, f := range flags {
		if !strings.ContainsRune(allowedFlags, f) {
			return nil, false
		}
		switch f {
		case 'i', 'm', 's':
			if !strings.ContainsRune(inline.String(), f) {
				inline.WriteRune(f)
			}
		}
	}
	prefix := ""
	if inline.Len() > 0 {
		prefix = "(?" + inline.String() + ")"
	}

	// The body must compile on its own; wrapping alone can make an
	// unbalanced body such as "a)(b" look valid.
	if _, err := regexp.Compile(prefix + body); err != nil {
		return nil, false
	}
	full, err := regexp.Compile(prefix + `\A(?:` + body + `)\z`)
	if err != nil {
		return nil, false
	}
	search := regexp.MustCompile(prefix + body)

	return &Pattern{
		Source: s,
		Body:   body,
		Flags:  flags,
		full:   full,
		search: search,
	}, true
}

// IsDelimitedPattern reports whether s would be matched as a regex.
func IsDelimitedPattern(s string) bool {
	_, ok := ParseDelimitedPattern(s)
	return ok
}

// FullMatch reports whether the whole of text matches.
func (p *Pattern) FullMatch(text string) bool { return p.full.MatchString(text) }

// Search reports whether the pattern occurs anywhere in text.
func (p *Pattern) Search(text string) bool { return p.search.MatchString(text) }
