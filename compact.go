// Whitespace compaction for emitted Markdown.
package main

import (
	"regexp"
	"strings"
	"unicode"
)

type lineClass int

const (
	classNone lineClass = iota
	classText
	classList
	classTable
	classFence
	classFrontmatter
)

var (
	listMarkerRe = regexp.MustCompile(`^ {0,3}([-+*]|\d{1,9}[.)])( |$)`)
	fenceOpenRe  = regexp.MustCompile("^( *)(`{3,}|~{3,})")
	itemFenceRe  = regexp.MustCompile("^ *(?:[-+*]|\\d{1,9}[.)]) +(`{3,}|~{3,})")
)

// compactor accumulates output lines. Blank lines are never written
// directly: a pending blank is materialized in front of the next line.
type compactor struct {
	out    []string
	prev   lineClass
	blank  bool
	inList bool
}

func (c *compactor) write(line string, cls lineClass) {
	if len(c.out) > 0 && (c.blank || needsBlank(c.prev, cls)) {
		c.out = append(c.out, "")
	}
	c.blank = false
	c.out = append(c.out, line)
	c.prev = cls
}

// compactMarkdown normalizes blank lines for GFM:
//   - trailing whitespace is stripped outside closed code fences;
//   - runs of blank lines collapse to one;
//   - lists, tables and code fences are separated from other blocks by a
//     blank line;
//   - blank lines between the items of a list are removed;
//   - the body of a closed code fence, including one opened on a list
//     item's marker line, and a leading frontmatter block are kept line
//     for line.
//
// The result is empty or ends with exactly one newline, and
// compactMarkdown(compactMarkdown(s)) == compactMarkdown(s).
func compactMarkdown(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	c := &compactor{}

	i := 0
	for i < len(lines) && trimLine(lines[i]) == "" {
		i++
	}
	if n := frontmatterLen(lines[i:]); n > 0 {
		for _, l := range lines[i : i+n] {
			c.out = append(c.out, trimLine(l))
		}
		c.prev = classFrontmatter
		i += n
	}

	for ; i < len(lines); i++ {
		line := trimLine(lines[i])
		if line == "" {
			if !(c.inList && continuesList(lines, i)) {
				c.blank = true
				c.inList = false
			}
			continue
		}

		fence, cls := "", classFence
		if m := itemFenceRe.FindStringSubmatch(line); m != nil {
			fence, cls = m[1], classify(line, c.inList)
		} else if m := fenceOpenRe.FindStringSubmatch(line); m != nil {
			fence = m[2]
			if c.inList && m[1] != "" {
				cls = classList
			}
		}
		if fence == "" {
			cls = classify(line, c.inList)
			c.inList = cls == classList
			c.write(line, cls)
			continue
		}

		c.inList = cls == classList
		c.write(line, cls)
		end := fenceClose(lines, i+1, fence)
		// an unclosed fence runs to the end and is trimmed like text
		for i++; i < len(lines); i++ {
			if end < 0 || i == end {
				c.out = append(c.out, trimLine(lines[i]))
			} else {
				c.out = append(c.out, strings.TrimRight(lines[i], "\r"))
			}
			if i == end {
				break
			}
		}
	}

	result := strings.TrimRight(strings.Join(c.out, "\n"), "\n")
	if result == "" {
		return ""
	}
	return result + "\n"
}

func trimLine(s string) string {
	return strings.TrimRightFunc(s, unicode.IsSpace)
}

// fenceClose returns the index of the first line at or after from that
// closes fence, or -1 when the fence runs to the end of the document.
func fenceClose(lines []string, from int, fence string) int {
	for j := from; j < len(lines); j++ {
		if isFenceClose(lines[j], fence) {
			return j
		}
	}
	return -1
}

// classify assigns a line to a block category. Indented lines that follow
// a list line are continuation lines and belong to the list.
func classify(line string, inList bool) lineClass {
	switch {
	case listMarkerRe.MatchString(line) && !isRuleLine(line):
		return classList
	case inList && strings.HasPrefix(line, " "):
		return classList
	case strings.HasPrefix(line, "|"):
		return classTable
	}
	return classText
}

// isRuleLine reports thematic breaks such as "***" or "- - -", which share
// characters with list markers.
func isRuleLine(line string) bool {
	t := strings.ReplaceAll(strings.TrimSpace(line), " ", "")
	if len(t) < 3 || !strings.ContainsAny(t[:1], "-*_") {
		return false
	}
	return strings.Trim(t, t[:1]) == ""
}

// needsBlank reports whether the boundary between two block categories
// requires a blank line.
func needsBlank(prev, next lineClass) bool {
	switch {
	case prev == classNone:
		return false
	case prev == classFrontmatter, prev == classFence, next == classFence:
		return true
	}
	return prev != next && (prev == classList || next == classList || prev == classTable || next == classTable)
}

// continuesList reports whether the next non-blank line after i is a list
// item or an indented continuation line.
func continuesList(lines []string, i int) bool {
	for j := i + 1; j < len(lines); j++ {
		l := trimLine(lines[j])
		if l == "" {
			continue
		}
		return listMarkerRe.MatchString(l) && !isRuleLine(l) || strings.HasPrefix(l, "  ")
	}
	return false
}

func isFenceClose(line, fence string) bool {
	t := strings.TrimSpace(line)
	if len(t) < len(fence) || t[0] != fence[0] {
		return false
	}
	return strings.Trim(t, fence[:1]) == ""
}

// frontmatterLen returns the number of lines of a "---" delimited block at
// the very start of the document, or 0.
func frontmatterLen(lines []string) int {
	if len(lines) == 0 || trimLine(lines[0]) != "---" {
		return 0
	}
	for j := 1; j < len(lines); j++ {
		if trimLine(lines[j]) == "---" {
			return j + 1
		}
	}
	return 0
}
