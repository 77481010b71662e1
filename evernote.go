// Evernote-specific markup rewrites applied before the content tree is built.
// The editor encodes code blocks, to-do items and emphasis in inline styles
// and custom elements; these passes turn them into plain HTML equivalents.
package main

import (
	"strings"

	"github.com/JohannesKaufmann/dom"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// taskAttr marks a block element that came from a to-do item.
// Its value is "true" or "false".
const taskAttr = "data-enex-task"

// parseStyle splits an inline style attribute into lower-cased declarations.
func parseStyle(style string) map[string]string {
	decls := map[string]string{}
	for _, part := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.ToLower(strings.TrimSpace(v))
		if k != "" {
			decls[k] = v
		}
	}
	return decls
}

// hoistVoidChildren moves children of en-media and en-todo out to follow the
// element. The HTML parser ignores "/>" on unknown elements, so
// `<en-todo/>Buy milk` would otherwise nest the text inside the marker.
func hoistVoidChildren(root *html.Node) {
	for _, n := range dom.FindAllNodes(root, func(n *html.Node) bool {
		name := dom.NodeName(n)
		return name == "en-media" || name == "en-todo"
	}) {
		for c := n.LastChild; c != nil; c = n.LastChild {
			n.RemoveChild(c)
			if n.NextSibling != nil {
				n.Parent.InsertBefore(c, n.NextSibling)
			} else {
				n.Parent.AppendChild(c)
			}
		}
	}
}

// replaceNBSP turns non-breaking spaces into regular spaces so that the
// whitespace collapse and Markdown output treat them like any other space.
func replaceNBSP(root *html.Node) {
	for _, n := range dom.FindAllNodes(root, func(n *html.Node) bool {
		return n.Type == html.TextNode
	}) {
		n.Data = strings.ReplaceAll(n.Data, "\u00a0", " ")
	}
}

// rewriteEvernoteMarkup runs the Evernote pre-passes over the fragment root.
// It returns warnings for content that had to be dropped.
func rewriteEvernoteMarkup(root *html.Node, note string) []Warning {
	var warnings []Warning

	hoistVoidChildren(root)
	replaceNBSP(root)

	doc := goquery.NewDocumentFromNode(root)

	doc.Find("script, style, title, head, meta, link").Remove()

	doc.Find("en-crypt").Each(func(_ int, s *goquery.Selection) {
		warnings = append(warnings, Warning{
			Kind:    WarnUnsupportedContent,
			Note:    note,
			Message: "encrypted section dropped",
		})
		s.Remove()
	})

	doc.Find(`div[style*="en-codeblock"]`).Each(func(_ int, s *goquery.Selection) {
		decls := parseStyle(s.AttrOr("style", ""))
		if decls["-en-codeblock"] != "true" && decls["--en-codeblock"] != "true" {
			return
		}
		// Nested code block divs are already covered by the outer one.
		if s.ParentsFiltered("pre").Length() > 0 || len(s.Nodes) == 0 || s.Nodes[0].Parent == nil {
			return
		}
		pre := &html.Node{Type: html.ElementNode, Data: "pre", DataAtom: atom.Pre}
		if lang := decls["--en-syntaxlanguage"]; lang != "" && lang != "plain" {
			pre.Attr = []html.Attribute{{Key: "class", Val: "language-" + lang}}
		}
		pre.AppendChild(&html.Node{Type: html.TextNode, Data: codeText(s.Nodes[0])})
		s.ReplaceWithNodes(pre)
	})

	doc.Find("span[style]").Each(func(_ int, s *goquery.Selection) {
		decls := parseStyle(s.AttrOr("style", ""))
		var tags []string
		switch decls["font-weight"] {
		case "bold", "bolder", "600", "700", "800", "900":
			tags = append(tags, "b")
		}
		switch decls["font-style"] {
		case "italic", "oblique":
			tags = append(tags, "i")
		}
		if strings.Contains(decls["text-decoration"], "line-through") {
			tags = append(tags, "s")
		}
		for _, n := range s.Nodes {
			for _, tag := range tags {
				wrapChildren(n, tag)
			}
		}
	})

	// Evernote 10 checklists: <ul style="--en-todo:true"><li style="--en-checked:true">.
	doc.Find(`li[style*="--en-checked"]`).Each(func(_ int, s *goquery.Selection) {
		checked := parseStyle(s.AttrOr("style", ""))["--en-checked"] == "true"
		s.SetAttr(taskAttr, boolAttr(checked))
	})
	doc.Find(`ul[style*="--en-todo"] > li`).Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr(taskAttr); !ok {
			s.SetAttr(taskAttr, "false")
		}
	})

	doc.Find(`en-todo, input[type="checkbox"]`).Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			markTask(n, todoChecked(n))
		}
	})

	return warnings
}

func boolAttr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// todoChecked reads the state of an en-todo or checkbox input.
func todoChecked(n *html.Node) bool {
	if dom.NodeName(n) == "input" {
		_, ok := dom.GetAttribute(n, "checked")
		return ok
	}
	return strings.EqualFold(dom.GetAttributeOr(n, "checked", "false"), "true")
}

// wrapChildren moves all children of n into a new element named tag.
func wrapChildren(n *html.Node, tag string) {
	w := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
		w.AppendChild(c)
	}
	n.AppendChild(w)
}

// codeText flattens a code block container into its lines.
func codeText(n *html.Node) string {
	var b strings.Builder
	endsLine := func() bool {
		s := b.String()
		return s == "" || strings.HasSuffix(s, "\n")
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch {
			case c.Type == html.TextNode:
				b.WriteString(c.Data)
			case c.Type != html.ElementNode:
			case c.Data == "br":
				b.WriteByte('\n')
			case dom.NameIsBlockNode(c.Data):
				if !endsLine() {
					b.WriteByte('\n')
				}
				walk(c)
				if !endsLine() {
					b.WriteByte('\n')
				}
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return strings.TrimRight(b.String(), "\n")
}

func isTaskContainer(n *html.Node) bool {
	switch dom.NodeName(n) {
	case "div", "p", "li":
		return true
	}
	return false
}

// markTask records a to-do marker on the block that holds it and removes the
// marker. When the block holds more than that single item (several to-dos
// separated by <br>, or leading text), the item's run of siblings is split
// into its own <div> first.
func markTask(marker *html.Node, checked bool) {
	parent := marker.Parent
	if parent == nil {
		return
	}
	block := parent
	for block != nil && block.Type == html.ElementNode && !isTaskContainer(block) && !dom.NameIsBlockNode(block.Data) && block.Data != "body" {
		block = block.Parent
	}

	if block != nil && isTaskContainer(block) && soleTask(block, marker) {
		if _, ok := dom.GetAttribute(block, taskAttr); !ok {
			block.Attr = append(block.Attr, html.Attribute{Key: taskAttr, Val: boolAttr(checked)})
		}
		dom.RemoveNode(marker)
		return
	}

	div := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr:     []html.Attribute{{Key: taskAttr, Val: boolAttr(checked)}},
	}
	parent.InsertBefore(div, marker)
	for c := marker.NextSibling; c != nil; {
		next := c.NextSibling
		name := dom.NodeName(c)
		if isTaskMarker(c) || dom.NameIsBlockNode(name) {
			break
		}
		parent.RemoveChild(c)
		if name == "br" {
			break
		}
		div.AppendChild(c)
		c = next
	}
	dom.RemoveNode(marker)
}

// soleTask reports whether marker is the only to-do inside block, with
// nothing but whitespace before it and no nested blocks. Lists nested in a
// list item belong to their own items and are ignored.
func soleTask(block, marker *html.Node) bool {
	count := 0
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			name := dom.NodeName(c)
			switch {
			case isTaskMarker(c):
				count++
			case (name == "ul" || name == "ol") && block.Data == "li":
				continue
			case c.Type == html.ElementNode && dom.NameIsBlockNode(name):
				return false
			}
			if !walk(c) {
				return false
			}
		}
		return true
	}
	if !walk(block) || count != 1 {
		return false
	}
	for n := marker; n != nil && n != block; n = n.Parent {
		for p := n.PrevSibling; p != nil; p = p.PrevSibling {
			if strings.TrimSpace(dom.CollectText(p)) != "" || dom.NodeName(p) == "en-media" || dom.NodeName(p) == "img" {
				return false
			}
		}
	}
	return true
}

func isTaskMarker(n *html.Node) bool {
	switch dom.NodeName(n) {
	case "en-todo":
		return true
	case "input":
		return dom.GetAttributeOr(n, "type", "") == "checkbox"
	}
	return false
}
