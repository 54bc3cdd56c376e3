package keyword

import "testing"

func TestParseDelimitedPattern(t *testing.T) {
	tests := []struct {
		in        string
		wantOK    bool
		wantBody  string
		wantFlags string
	}{
		{"/hello/", true, "hello", ""},
		{"/^h(a|e)llo$/i", true, "^h(a|e)llo$", "i"},
		{"/a.b/gimsuy", true, "a.b", "gimsuy"},
		{"/a/b/", true, "a/b", ""},
		{"/abc/x", false, "", ""},        // unsupported flag
		{"/a(b/", false, "", ""},         // unparsable body
		{"/a)(b/", false, "", ""},        // unbalanced body
		{"/(?=look)/", false, "", ""},    // lookahead is not RE2
		{"hello", false, "", ""},         // literal
		{"//", false, "", ""},            // empty body
		{"/abc/1", false, "", ""},        // non-letter after delimiter
		{"/abc", false, "", ""},          // missing closing delimiter
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, ok := ParseDelimitedPattern(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ParseDelimitedPattern(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if p.Body != tt.wantBody || p.Flags != tt.wantFlags {
				t.Errorf("ParseDelimitedPattern(%q) = (%q, %q), want (%q, %q)", tt.in, p.Body, p.Flags, tt.wantBody, tt.wantFlags)
			}
			if p.Source != tt.in {
				t.Errorf("Source = %q, want %q", p.Source, tt.in)
			}
		})
	}
}

func TestPattern_FullMatchAndSearch(t *testing.T) {
	tests := []struct {
		pattern    string
		text       string
		wantFull   bool
		wantSearch bool
	}{
		{"/hel+o/", "hello", true, true},
		{"/hel+o/", "say hello", false, true},
		{"/HELLO/i", "hello", true, true},
		{"/HELLO/", "hello", false, false},
		{"/a|b/", "ab", false, true}, // alternation is grouped before anchoring
		{"/a|b/", "b", true, true},
		{"/^x$/m", "a\nx\nb", false, true},
		{"/a.b/", "a\nb", false, false},
		{"/a.b/s", "a\nb", true, true},
		{"/早上好/u", "大家早上好", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.text, func(t *testing.T) {
			p, ok := ParseDelimitedPattern(tt.pattern)
			if !ok {
				t.Fatalf("ParseDelimitedPattern(%q) failed", tt.pattern)
			}
			if got := p.FullMatch(tt.text); got != tt.wantFull {
				t.Errorf("FullMatch(%q) = %v, want %v", tt.text, got, tt.wantFull)
			}
			if got := p.Search(tt.text); got != tt.wantSearch {
				t.Errorf("Search(%q) = %v, want %v", tt.text, got, tt.wantSearch)
			}
		})
	}
}
