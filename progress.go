// Progress lines on stdout when documents go to disk or an EPUB.
package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"
)

// progressOut receives progress lines. It stays io.Discard when stdout
// carries the converted Markdown or --silent is set.
var progressOut io.Writer = io.Discard

// progressMu keeps lines from concurrent note workers whole.
var progressMu sync.Mutex

func pprintf(format string, args ...any) {
	progressMu.Lock()
	defer progressMu.Unlock()
	fmt.Fprintf(progressOut, format, args...)
}

// shortTitle returns a one-line form of a note title for progress output,
// truncated to 60 runes.
func shortTitle(title string) string {
	t := strings.Join(strings.Fields(title), " ")
	if t == "" {
		return "Untitled"
	}
	if utf8.RuneCountInString(t) > 60 {
		r := []rune(t)
		t = string(r[:57]) + "..."
	}
	return t
}
