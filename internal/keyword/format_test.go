package keyword

import (
	"strings"
	"testing"
)

func TestFormatEntries(t *testing.T) {
	got := FormatEntries([]Entry{{"早安", "早上好"}, {"ping", "pong"}}, 0, 0)
	want := "1. 早安  早上好\n2. ping  pong"
	if got != want {
		t.Errorf("FormatEntries() =\n%s\nwant\n%s", got, want)
	}
}

func TestFormatEntries_Limits(t *testing.T) {
	entries := []Entry{{"a", "0123456789"}, {"b", "x"}, {"c", "y"}}
	got := FormatEntries(entries, 5, 2)
	lines := strings.Split(got, "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if lines[0] != "1. a  01..." {
		t.Errorf("line 0 = %q", lines[0])
	}
	if lines[2] != "... (1 more)" {
		t.Errorf("line 2 = %q", lines[2])
	}
	if FormatEntries(nil, 0, 0) != "" {
		t.Error("FormatEntries(nil) not empty")
	}
}
