// Markdown emission: renders a ContentNode tree as GitHub-Flavored Markdown.
package main

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// listIndent is the indentation of nested list levels and item continuation
// lines beneath their marker.
const listIndent = 4

// ListFrame tracks one open list level.
type ListFrame struct {
	Ordered   bool
	NextIndex int
}

// RenderState is threaded by value through the recursive render. Pushing a
// list copies the frame stack so siblings never observe each other's state.
type RenderState struct {
	ListDepth       int
	Lists           []ListFrame
	InsideTable     bool
	InsideCodeBlock bool
}

func (s RenderState) pushList(ordered bool, start int) RenderState {
	lists := make([]ListFrame, len(s.Lists), len(s.Lists)+1)
	copy(lists, s.Lists)
	s.Lists = append(lists, ListFrame{Ordered: ordered, NextIndex: start})
	s.ListDepth++
	return s
}

// Reference is a resolved attachment link target.
type Reference struct {
	Name    string // display name
	Path    string // relative, URL-escaped link target
	IsImage bool
}

// AttachmentResolver maps an en-media hash to a link target. A false return
// means the reference is omitted from the output.
type AttachmentResolver interface {
	Resolve(ref string) (Reference, bool)
}

// emitter renders trees. It holds no per-render state; everything that
// changes during descent lives in RenderState.
type emitter struct {
	res AttachmentResolver
}

// renderMarkdown renders a normalized tree with a fresh RenderState.
func renderMarkdown(root *ContentNode, res AttachmentResolver) string {
	e := emitter{res: res}
	return e.render(root, RenderState{})
}

// render renders any node in block context.
func (e emitter) render(n *ContentNode, st RenderState) string {
	if isInline(n) {
		return e.paragraph([]*ContentNode{n}, st)
	}
	return joinParts(e.blocks([]*ContentNode{n}, st), st)
}

// part is one rendered block; para marks plain paragraph text.
type part struct {
	text string
	para bool
}

// blocks renders a sequence of siblings, grouping runs of inline nodes into
// paragraphs. Paragraph and Unknown containers are flattened into their
// own blocks.
func (e emitter) blocks(nodes []*ContentNode, st RenderState) []part {
	var parts []part
	var run []*ContentNode
	flush := func() {
		if len(run) == 0 {
			return
		}
		for _, p := range e.paragraphs(run, st) {
			parts = append(parts, part{text: p, para: true})
		}
		run = nil
	}
	for _, n := range nodes {
		if isInline(n) {
			run = append(run, n)
			continue
		}
		flush()
		switch n.Kind {
		case KindParagraph, KindUnknown:
			parts = append(parts, e.blocks(n.Children, st)...)
		default:
			if s := e.block(n, st); s != "" {
				parts = append(parts, part{text: s})
			}
		}
	}
	flush()
	return parts
}

// joinParts separates blocks with a blank line, or a space inside tables.
func joinParts(parts []part, st RenderState) string {
	sep := "\n\n"
	if st.InsideTable {
		sep = " "
	}
	texts := make([]string, len(parts))
	for i, p := range parts {
		texts[i] = p.text
	}
	return strings.Join(texts, sep)
}

// block renders one non-inline node.
func (e emitter) block(n *ContentNode, st RenderState) string {
	if st.InsideTable {
		return e.flatBlock(n, st)
	}
	switch n.Kind {
	case KindHeading:
		text := oneLine(e.inline(n.Children, st))
		if text == "" {
			return ""
		}
		level := min(max(n.Level, 1), 6)
		return strings.Repeat("#", level) + " " + text
	case KindList:
		return e.list(n, st)
	case KindListItem:
		return e.list(&ContentNode{Kind: KindList, Children: []*ContentNode{n}}, st)
	case KindCodeBlock:
		st.InsideCodeBlock = true
		return codeFence(n.Text+e.inline(n.Children, st), n.Lang)
	case KindTable:
		return e.table(n, st)
	case KindBlockquote:
		body := joinParts(e.blocks(n.Children, st), st)
		if body == "" {
			return ""
		}
		lines := strings.Split(body, "\n")
		for i, l := range lines {
			if l == "" {
				lines[i] = ">"
			} else {
				lines[i] = "> " + l
			}
		}
		return strings.Join(lines, "\n")
	case KindRule:
		return "***"
	case KindParagraph, KindUnknown:
		return joinParts(e.blocks(n.Children, st), st)
	}
	return ""
}

// flatBlock renders block content on a single line for a table cell.
func (e emitter) flatBlock(n *ContentNode, st RenderState) string {
	switch n.Kind {
	case KindCodeBlock:
		return codeSpan(n.Text, true)
	case KindRule:
		return ""
	case KindList:
		var items []string
		for _, item := range n.Children {
			s := joinParts(e.blocks(item.Children, st), st)
			if item.Checked != nil {
				s = taskBox(*item.Checked) + s
			}
			if s != "" {
				items = append(items, s)
			}
		}
		return strings.Join(items, "; ")
	case KindTable:
		var rows []string
		for _, row := range n.Children {
			var cells []string
			for _, c := range row.Children {
				if s := joinParts(e.blocks(c.Children, st), st); s != "" {
					cells = append(cells, s)
				}
			}
			rows = append(rows, strings.Join(cells, " "))
		}
		return strings.Join(rows, " ")
	}
	return joinParts(e.blocks(n.Children, st), st)
}

func taskBox(checked bool) string {
	if checked {
		return "[x] "
	}
	return "[ ] "
}

// list renders a List. Each item's continuation lines, including nested
// lists, are indented by listIndent beneath the marker. An item that opens
// with a code fence is indented to the marker width instead, so the fence
// body keeps the content column of its opening line.
func (e emitter) list(n *ContentNode, st RenderState) string {
	start := n.Start
	if n.Ordered && start == 0 {
		start = 1
	}
	st = st.pushList(n.Ordered, start)
	frame := &st.Lists[len(st.Lists)-1]

	var lines []string
	for _, item := range n.Children {
		marker := "- "
		if frame.Ordered {
			marker = strconv.Itoa(frame.NextIndex) + ". "
			frame.NextIndex++
		}
		body := e.item(item, st)
		if strings.HasPrefix(body, "```") {
			width := len(marker)
			if item.Checked != nil {
				// a fence cannot share a line with the task box
				marker += strings.TrimSpace(taskBox(*item.Checked)) + "\n" + strings.Repeat(" ", width)
			}
			lines = append(lines, marker+indentContinuation(body, width))
			continue
		}
		if item.Checked != nil {
			marker += taskBox(*item.Checked)
		}
		lines = append(lines, marker+indentContinuation(body, listIndent))
	}
	return strings.Join(lines, "\n")
}

// item renders the content of one list item. Blocks are kept on adjacent
// lines so the list stays tight; consecutive paragraphs are joined with a
// hard line break.
func (e emitter) item(n *ContentNode, st RenderState) string {
	var b strings.Builder
	var prev part
	for i, p := range e.blocks(n.Children, st) {
		if i > 0 {
			if prev.para && p.para {
				b.WriteString("\\")
			}
			b.WriteByte('\n')
		}
		b.WriteString(p.text)
		prev = p
	}
	return b.String()
}

func indentContinuation(s string, width int) string {
	pad := strings.Repeat(" ", width)
	lines := strings.Split(s, "\n")
	for i := 1; i < len(lines); i++ {
		if lines[i] != "" {
			lines[i] = pad + lines[i]
		}
	}
	return strings.Join(lines, "\n")
}

// table renders a GFM table: header row, separator, data rows.
func (e emitter) table(n *ContentNode, st RenderState) string {
	st.InsideTable = true
	var b strings.Builder
	for i, row := range n.Children {
		cells := make([]string, len(row.Children))
		for j, c := range row.Children {
			cells[j] = strings.Join(strings.Fields(joinParts(e.blocks(c.Children, st), st)), " ")
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |")
		if i == 0 {
			sep := make([]string, len(cells))
			for j := range sep {
				sep[j] = "---"
			}
			b.WriteString("\n| " + strings.Join(sep, " | ") + " |")
		}
	}
	return b.String()
}

var hardBreakRunRe = regexp.MustCompile(`(\\\n[ \t]*){2,}`)

// paragraphs renders an inline run. Two or more consecutive hard breaks end
// the paragraph.
func (e emitter) paragraphs(run []*ContentNode, st RenderState) []string {
	text := e.inline(run, st)
	if st.InsideTable {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil
		}
		return []string{text}
	}
	var out []string
	for _, p := range strings.Split(hardBreakRunRe.ReplaceAllString(text, "\n\n"), "\n\n") {
		if p = cleanParagraph(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// paragraph renders an inline run as a single block string.
func (e emitter) paragraph(run []*ContentNode, st RenderState) string {
	return strings.Join(e.paragraphs(run, st), "\n\n")
}

// cleanParagraph trims each line, drops hard breaks at the edges and escapes
// characters that would start a block construct at the beginning of a line.
func cleanParagraph(p string) string {
	p = trimHardBreaks(p)
	lines := strings.Split(p, "\n")
	for i, l := range lines {
		l = strings.TrimLeft(l, " \t")
		if !strings.HasSuffix(l, "\\") {
			l = strings.TrimRight(l, " \t")
		}
		lines[i] = escapeLineStart(l)
	}
	return strings.Join(lines, "\n")
}

func trimHardBreaks(s string) string {
	for {
		t := strings.TrimSpace(s)
		t = strings.TrimPrefix(t, "\\\n")
		// An odd run of trailing backslashes ends in a hard break.
		if n := len(t) - len(strings.TrimRight(t, "\\")); n%2 == 1 {
			t = t[:len(t)-1]
		}
		if t == s {
			return s
		}
		s = t
	}
}

var orderedStartRe = regexp.MustCompile(`^(\d{1,9})([.)])(\s|$)`)

// escapeLineStart escapes a leading character that GFM would read as a
// heading, quote, list marker, table row or setext underline.
func escapeLineStart(l string) string {
	if l == "" {
		return l
	}
	switch l[0] {
	case '#', '>', '|':
		return "\\" + l
	case '-', '+', '=':
		if len(l) == 1 || l[1] == ' ' || strings.Trim(l, string(l[0])+" ") == "" {
			return "\\" + l
		}
	}
	if m := orderedStartRe.FindStringSubmatchIndex(l); m != nil {
		return l[:m[3]] + "\\" + l[m[3]:]
	}
	return l
}

// inline renders a run of inline nodes.
func (e emitter) inline(nodes []*ContentNode, st RenderState) string {
	var b strings.Builder
	for _, n := range nodes {
		b.WriteString(e.inlineNode(n, st))
	}
	return b.String()
}

func (e emitter) inlineNode(n *ContentNode, st RenderState) string {
	switch n.Kind {
	case KindText:
		if st.InsideCodeBlock {
			return n.Text
		}
		return escapeText(n.Text, st)
	case KindBold:
		return wrapEmphasis("**", e.inline(n.Children, st))
	case KindItalic:
		return wrapEmphasis("*", e.inline(n.Children, st))
	case KindStrikethrough:
		return wrapEmphasis("~~", e.inline(n.Children, st))
	case KindCodeInline:
		return codeSpan(n.Text, st.InsideTable)
	case KindLink:
		return e.link(n, st)
	case KindImage:
		return e.image(n, st)
	case KindLineBreak:
		if st.InsideTable {
			return " "
		}
		return "\\\n"
	case KindUnknown:
		return e.inline(n.Children, st)
	}
	// Block content reached through an inline path is flattened to one line.
	return oneLine(e.render(n, st))
}

func (e emitter) link(n *ContentNode, st RenderState) string {
	text := oneLine(e.inline(n.Children, st))
	dest := escapeLinkDest(n.Href)
	if strings.TrimSpace(text) == "" {
		text = escapeText(n.Href, st)
	}
	return "[" + text + "](" + dest + ")"
}

func (e emitter) image(n *ContentNode, st RenderState) string {
	if n.Ref != "" {
		if e.res == nil {
			return ""
		}
		ref, ok := e.res.Resolve(n.Ref)
		if !ok {
			return ""
		}
		label := escapeText(ref.Name, st)
		if ref.IsImage {
			return "![" + label + "](" + ref.Path + ")"
		}
		return "[" + label + "](" + ref.Path + ")"
	}
	// Inline data URIs are not carried over; remote images keep their URL.
	if n.Src == "" || strings.HasPrefix(n.Src, "data:") {
		return ""
	}
	return "![" + escapeText(n.Alt, st) + "](" + escapeLinkDest(n.Src) + ")"
}

// wrapEmphasis surrounds the content with marker, keeping edge whitespace
// and hard breaks outside the delimiters. Empty content gets no markers.
func wrapEmphasis(marker, inner string) string {
	core := inner
	lead, trail := "", ""
	for {
		if strings.HasPrefix(core, "\\\n") {
			lead, core = lead+"\\\n", core[2:]
		} else if core != "" && isSpaceByte(core[0]) {
			lead, core = lead+core[:1], core[1:]
		} else {
			break
		}
	}
	for {
		if strings.HasSuffix(core, "\\\n") {
			trail, core = "\\\n"+trail, core[:len(core)-2]
		} else if core != "" && isSpaceByte(core[len(core)-1]) {
			trail, core = core[len(core)-1:]+trail, core[:len(core)-1]
		} else {
			break
		}
	}
	if core == "" {
		return inner
	}
	return lead + marker + core + marker + trail
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n'
}

// entityRe matches text that GFM would decode as a character reference.
var entityRe = regexp.MustCompile(`^&(?:#[0-9]{1,7}|#[xX][0-9A-Fa-f]{1,6}|[A-Za-z][A-Za-z0-9]{0,31});`)

// escapeText backslash-escapes Markdown metacharacters in literal text.
func escapeText(s string, st RenderState) string {
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		switch r {
		case '\\', '*', '`', '[', ']', '<', '~':
			b.WriteByte('\\')
		case '&':
			if entityRe.MatchString(s[i:]) {
				b.WriteByte('\\')
			}
		case '_':
			if !intraword(s, i) {
				b.WriteByte('\\')
			}
		case '|':
			if st.InsideTable {
				b.WriteByte('\\')
			}
		case '\n':
			r = ' '
		}
		b.WriteRune(r)
	}
	return b.String()
}

func intraword(s string, i int) bool {
	prev, _ := utf8.DecodeLastRuneInString(s[:i])
	next, _ := utf8.DecodeRuneInString(s[i+1:])
	isWord := func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }
	return isWord(prev) && isWord(next)
}

func escapeLinkDest(href string) string {
	r := strings.NewReplacer(" ", "%20", "(", "%28", ")", "%29", "|", "%7C", "<", "%3C", ">", "%3E")
	return r.Replace(strings.TrimSpace(href))
}

// longestRun returns the length of the longest run of c in s.
func longestRun(s string, c byte) int {
	best, cur := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			cur++
			best = max(best, cur)
		} else {
			cur = 0
		}
	}
	return best
}

// codeFence renders a fenced code block whose fence is longer than any
// backtick run in the content.
func codeFence(text, lang string) string {
	fence := strings.Repeat("`", max(3, longestRun(text, '`')+1))
	lang = strings.Map(func(r rune) rune {
		if r == '`' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, lang)
	if text == "" {
		return fence + lang + "\n" + fence
	}
	return fence + lang + "\n" + text + "\n" + fence
}

// codeSpan renders inline code, widening the delimiter past any backtick run
// in the content.
func codeSpan(text string, inTable bool) string {
	text = strings.ReplaceAll(text, "\n", " ")
	if text == "" {
		return ""
	}
	if inTable {
		text = strings.ReplaceAll(text, "|", "\\|")
	}
	delim := strings.Repeat("`", longestRun(text, '`')+1)
	pad := strings.HasPrefix(text, "`") || strings.HasSuffix(text, "`") ||
		(strings.HasPrefix(text, " ") && strings.HasSuffix(text, " ") && strings.TrimSpace(text) != "")
	if pad {
		return delim + " " + text + " " + delim
	}
	return delim + text + delim
}

// oneLine joins hard breaks and newlines into single spaces.
func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\\\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
