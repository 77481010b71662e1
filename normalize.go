// HTML tree normalization: note content → ContentNode tree.
package main

import (
	"encoding/xml"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/JohannesKaufmann/dom"
	"github.com/JohannesKaufmann/html-to-markdown/v2/collapse"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	xmlDeclRe = regexp.MustCompile(`(?s)^\s*<\?xml.*?\?>`)
	doctypeRe = regexp.MustCompile(`(?is)^\s*<!DOCTYPE[^>]*>`)
)

// stripEnvelope removes the XML declaration and DOCTYPE that ENML content
// carries in front of <en-note>.
func stripEnvelope(content string) string {
	content = xmlDeclRe.ReplaceAllString(content, "")
	content = doctypeRe.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}

// checkWellFormed tokenizes the fragment as XML. HTML void elements and
// entities are accepted and mismatched end tags are tolerated the way the
// decoder does in non-strict mode; truncated or garbled markup is not.
func checkWellFormed(content string) error {
	d := xml.NewDecoder(strings.NewReader(content))
	d.Strict = false
	d.AutoClose = xml.HTMLAutoClose
	d.Entity = xml.HTMLEntity
	for {
		_, err := d.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// normalizeContent parses a note's HTML fragment into a ContentNode tree.
// The returned root is an Unknown node whose children are the note's blocks.
func normalizeContent(note, content string) (*ContentNode, []Warning, error) {
	content = stripEnvelope(content)
	if err := checkWellFormed(content); err != nil {
		return nil, nil, &MalformedContentError{Note: note, Cause: err}
	}

	root, err := parseFragment(content)
	if err != nil {
		return nil, nil, &MalformedContentError{Note: note, Cause: err}
	}

	warnings := rewriteEvernoteMarkup(root, note)
	collapse.Collapse(root, &collapse.DomFuncs{
		IsBlockNode:        isCollapseBlock,
		IsVoidNode:         isCollapseVoid,
		IsPreformattedNode: isPreformatted,
	})

	b := &treeBuilder{}
	tree := newNode(KindUnknown, b.children(root)...)
	return tree, warnings, nil
}

// parseFragment parses content in a <body> context and hangs the resulting
// nodes off a detached <body> element.
func parseFragment(content string) (*html.Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(content), body)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}
	return body, nil
}

func isCollapseBlock(n *html.Node) bool {
	switch name := dom.NodeName(n); name {
	case "en-note", "body", "tr", "td", "th", "thead", "tbody", "tfoot", "caption":
		return true
	default:
		return dom.NameIsBlockNode(name)
	}
}

func isCollapseVoid(n *html.Node) bool {
	switch dom.NodeName(n) {
	case "br", "hr", "img", "input", "wbr", "en-media", "en-todo":
		return true
	}
	return false
}

func isPreformatted(n *html.Node) bool {
	name := dom.NodeName(n)
	return name == "pre" || name == "listing" || name == "xmp"
}

// treeBuilder converts the cleaned HTML tree into ContentNodes.
type treeBuilder struct{}

// children builds and tidies the content of n.
func (b *treeBuilder) children(n *html.Node) []*ContentNode {
	var out []*ContentNode
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, b.build(c)...)
	}
	return groupLooseItems(mergeRuns(out))
}

// build maps one HTML node to zero or more ContentNodes.
func (b *treeBuilder) build(n *html.Node) []*ContentNode {
	switch n.Type {
	case html.TextNode:
		if n.Data == "" {
			return nil
		}
		return []*ContentNode{textNode(n.Data)}
	case html.ElementNode:
	default:
		return nil
	}

	if v, ok := dom.GetAttribute(n, taskAttr); ok && n.Data != "ul" && n.Data != "ol" {
		item := newNode(KindListItem, b.children(n)...)
		item.Checked = boolPtr(v == "true")
		return []*ContentNode{item}
	}

	name := dom.NodeName(n)
	switch name {
	case "div", "p", "section", "article", "header", "footer", "main", "aside",
		"nav", "address", "figure", "figcaption", "dd", "dt", "dl", "center", "en-note":
		return []*ContentNode{newNode(KindParagraph, b.children(n)...)}

	case "h1", "h2", "h3", "h4", "h5", "h6":
		h := newNode(KindHeading, b.children(n)...)
		h.Level = int(name[1] - '0')
		return []*ContentNode{h}

	case "b", "strong":
		return []*ContentNode{emphasis(KindBold, b.children(n))}
	case "i", "em", "cite", "dfn", "var":
		return []*ContentNode{emphasis(KindItalic, b.children(n))}
	case "s", "strike", "del":
		return []*ContentNode{emphasis(KindStrikethrough, b.children(n))}

	case "code", "tt", "kbd", "samp":
		return []*ContentNode{{Kind: KindCodeInline, Text: dom.CollectText(n)}}

	case "pre", "listing", "xmp":
		cb := &ContentNode{Kind: KindCodeBlock, Text: preText(n)}
		for _, class := range dom.GetClasses(n) {
			if lang, ok := strings.CutPrefix(class, "language-"); ok {
				cb.Lang = lang
			}
		}
		return []*ContentNode{cb}

	case "ul", "ol":
		return []*ContentNode{b.list(n)}

	case "li":
		return []*ContentNode{newNode(KindListItem, b.children(n)...)}

	case "table":
		if t := b.table(n); t != nil {
			return []*ContentNode{t}
		}
		return nil

	case "a":
		href := strings.TrimSpace(dom.GetAttributeOr(n, "href", ""))
		kids := b.children(n)
		if href == "" {
			return kids
		}
		return []*ContentNode{{Kind: KindLink, Href: href, Children: kids}}

	case "en-media":
		return []*ContentNode{{
			Kind: KindImage,
			Ref:  strings.ToLower(dom.GetAttributeOr(n, "hash", "")),
			Alt:  dom.GetAttributeOr(n, "alt", ""),
		}}
	case "img":
		return []*ContentNode{{
			Kind: KindImage,
			Src:  dom.GetAttributeOr(n, "src", ""),
			Alt:  dom.GetAttributeOr(n, "alt", ""),
		}}

	case "br":
		return []*ContentNode{{Kind: KindLineBreak}}
	case "hr":
		return []*ContentNode{{Kind: KindRule}}
	case "blockquote":
		return []*ContentNode{newNode(KindBlockquote, b.children(n)...)}

	case "input", "en-todo", "en-crypt", "script", "style", "title", "head", "object", "embed":
		return nil
	}

	// Unknown elements pass their content through. Inline-only content is
	// spliced into the parent so neighbouring runs can still merge.
	kids := b.children(n)
	for _, k := range kids {
		if !isInline(k) {
			return []*ContentNode{newNode(KindUnknown, kids...)}
		}
	}
	return kids
}

// emphasis builds an emphasis node, flattening directly nested runs of the
// same kind (<b><b>x</b></b>).
func emphasis(kind NodeKind, kids []*ContentNode) *ContentNode {
	var flat []*ContentNode
	for _, k := range kids {
		if k.Kind == kind {
			flat = append(flat, k.Children...)
			continue
		}
		flat = append(flat, k)
	}
	return newNode(kind, mergeRuns(flat)...)
}

// mergeRuns joins adjacent Text, CodeInline and same-kind emphasis nodes so
// the emitter never produces touching markers such as **a****b**.
func mergeRuns(nodes []*ContentNode) []*ContentNode {
	var out []*ContentNode
	for _, n := range nodes {
		if len(out) > 0 {
			last := out[len(out)-1]
			if last.Kind == n.Kind {
				switch n.Kind {
				case KindText, KindCodeInline:
					last.Text += n.Text
					continue
				case KindBold, KindItalic, KindStrikethrough:
					last.Children = mergeRuns(append(last.Children, n.Children...))
					continue
				}
			}
		}
		out = append(out, n)
	}
	return out
}

// groupLooseItems wraps runs of ListItems that are not inside a List (to-do
// paragraphs) into unordered Lists. Whitespace-only text between the items
// does not break the run.
func groupLooseItems(nodes []*ContentNode) []*ContentNode {
	var out []*ContentNode
	var list *ContentNode
	for i, n := range nodes {
		switch {
		case n.Kind == KindListItem:
			if list == nil {
				list = newNode(KindList)
				out = append(out, list)
			}
			list.Children = append(list.Children, n)
		case list != nil && n.Kind == KindText && strings.TrimSpace(n.Text) == "" && nextIsItem(nodes, i):
		default:
			list = nil
			out = append(out, n)
		}
	}
	return out
}

func nextIsItem(nodes []*ContentNode, i int) bool {
	for _, n := range nodes[i+1:] {
		if n.Kind == KindText && strings.TrimSpace(n.Text) == "" {
			continue
		}
		return n.Kind == KindListItem
	}
	return false
}

// list builds a List whose direct children are all ListItems. Stray nested
// lists attach to the preceding item; other stray content is wrapped.
func (b *treeBuilder) list(n *html.Node) *ContentNode {
	l := &ContentNode{Kind: KindList, Ordered: n.Data == "ol", Start: 1}
	if s, err := strconv.Atoi(dom.GetAttributeOr(n, "start", "")); err == nil {
		l.Start = s
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		built := b.build(c)
		for _, k := range built {
			switch {
			case k.Kind == KindListItem:
				l.Children = append(l.Children, k)
			case k.Kind == KindList && len(l.Children) > 0:
				prev := l.Children[len(l.Children)-1]
				prev.Children = append(prev.Children, k)
			case k.Kind == KindText && strings.TrimSpace(k.Text) == "":
			case len(l.Children) > 0 && isInline(k) && c.Type == html.TextNode:
				prev := l.Children[len(l.Children)-1]
				prev.Children = mergeRuns(append(prev.Children, k))
			default:
				l.Children = append(l.Children, newNode(KindListItem, k))
			}
		}
	}
	return l
}

// table builds a Table of TableRows, padding every row to the widest one.
// Rows of nested tables are left to those tables.
func (b *treeBuilder) table(n *html.Node) *ContentNode {
	t := newNode(KindTable)
	width := 0
	var walk func(*html.Node)
	walk = func(p *html.Node) {
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			switch dom.NodeName(c) {
			case "tr":
				row := newNode(KindTableRow)
				for cell := c.FirstChild; cell != nil; cell = cell.NextSibling {
					if name := dom.NodeName(cell); name == "td" || name == "th" {
						row.Children = append(row.Children, newNode(KindParagraph, b.children(cell)...))
					}
				}
				width = max(width, len(row.Children))
				t.Children = append(t.Children, row)
			case "thead", "tbody", "tfoot":
				walk(c)
			}
		}
	}
	walk(n)
	if len(t.Children) == 0 || width == 0 {
		return nil
	}
	for _, row := range t.Children {
		for len(row.Children) < width {
			row.Children = append(row.Children, newNode(KindParagraph))
		}
	}
	return t
}

// preText returns the verbatim text of a preformatted element.
func preText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch {
			case c.Type == html.TextNode:
				sb.WriteString(c.Data)
			case dom.NodeName(c) == "br":
				sb.WriteByte('\n')
			case c.Type == html.ElementNode && dom.NameIsBlockNode(c.Data) && sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n"):
				sb.WriteByte('\n')
				walk(c)
			default:
				walk(c)
			}
		}
	}
	walk(n)
	// A newline right after <pre> is dropped by HTML parsing already.
	return strings.TrimRight(sb.String(), "\n")
}
