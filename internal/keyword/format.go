package keyword

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
)

// FormatEntries renders entries as aligned "pattern  reply" rows. Widths
// are measured in terminal cells so CJK keywords line up. Replies longer
// than maxReply cells are truncated; limit caps the row count (0 = all).
func FormatEntries(entries []Entry, maxReply, limit int) string {
	if len(entries) == 0 {
		return ""
	}
	shown := entries
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}

	width := 0
	for _, e := range shown {
		width = max(width, runewidth.StringWidth(e.Pattern))
	}

	var b strings.Builder
	for i, e := range shown {
		reply := strings.ReplaceAll(e.Reply, "\n", " ")
		if maxReply > 0 {
			reply = runewidth.Truncate(reply, maxReply, "...")
		}
		fmt.Fprintf(&b, "%d. %s  %s\n", i+1, runewidth.FillRight(e.Pattern, width), reply)
	}
	if len(shown) < len(entries) {
		fmt.Fprintf(&b, "... (%d more)\n", len(entries)-len(shown))
	}
	return strings.TrimRight(b.String(), "\n")
}
