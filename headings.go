package main

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSlugLen = 128

var (
	spaceRunRe = regexp.MustCompile(`\s+`)
	unsafeRe   = regexp.MustCompile(`[^0-9A-Za-z_-]+`)
)

// cleanTitle collapses whitespace in a note title, falling back to
// "Untitled".
func cleanTitle(title string) string {
	title = strings.TrimSpace(spaceRunRe.ReplaceAllString(title, " "))
	if title == "" {
		return "Untitled"
	}
	return title
}

// titleHeading renders the H1 that opens every document.
func titleHeading(title string) string {
	return "# " + escapeText(cleanTitle(title), RenderState{})
}

// slugify turns a title into a file-system safe name: accents are folded,
// every other run of characters outside [0-9A-Za-z_-] becomes "_".
func slugify(title string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, title)
	if err != nil {
		folded = title
	}
	slug := strings.Trim(unsafeRe.ReplaceAllString(folded, "_"), "_")
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "_")
	}
	if slug == "" {
		return "Untitled"
	}
	return slug
}

// slugSet hands out slugs that are unique within one run. Comparison is
// case-insensitive so the names also stay distinct on case-insensitive
// filesystems.
type slugSet struct {
	taken map[string]bool
}

func newSlugSet() *slugSet {
	return &slugSet{taken: map[string]bool{}}
}

// claim returns the slug for title, bumping it with _1, _2, ... while taken.
func (s *slugSet) claim(title string) string {
	base := slugify(title)
	slug := base
	for n := 1; s.taken[strings.ToLower(slug)]; n++ {
		slug = base + "_" + strconv.Itoa(n)
	}
	s.taken[strings.ToLower(slug)] = true
	return slug
}

// formatByline builds the HTML line shown under a chapter entry in the EPUB
// contents: date, author and source link. Returns "" when there is nothing
// to show.
func formatByline(meta NoteMeta) string {
	var parts []string
	if !meta.Created.IsZero() {
		parts = append(parts, html.EscapeString(meta.Created.Format("January 2, 2006")))
	}
	if meta.Author != "" {
		parts = append(parts, html.EscapeString(meta.Author))
	}
	if len(meta.Tags) > 0 {
		parts = append(parts, html.EscapeString(strings.Join(meta.Tags, ", ")))
	}
	byline := strings.Join(parts, " · ")

	if meta.SourceURL != "" {
		displayURL := meta.SourceURL
		for _, prefix := range []string{"https://", "http://"} {
			displayURL = strings.TrimPrefix(displayURL, prefix)
		}
		displayURL = strings.TrimSuffix(displayURL, "/")
		link := fmt.Sprintf(`<a href="%s">%s</a>`,
			html.EscapeString(meta.SourceURL), html.EscapeString(displayURL))
		if byline != "" {
			byline += "<br/>" + link
		} else {
			byline = link
		}
	}
	return byline
}

// bookDate is the latest creation time among the notes, used for the EPUB
// description.
func bookDate(docs []Document) time.Time {
	var latest time.Time
	for _, d := range docs {
		if d.Meta.Created.After(latest) {
			latest = d.Meta.Created
		}
	}
	return latest
}
