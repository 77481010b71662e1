// XHTML sanitization of rendered chapters for EPUB 3.
package main

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/JohannesKaufmann/dom"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// stripInvalidXMLChars removes characters not allowed in XML 1.0 content.
// Valid XML chars: #x9 | #xA | #xD | [#x20-#xD7FF] | [#xE000-#xFFFD] | [#x10000-#x10FFFF]
func stripInvalidXMLChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == 0x9 || r == 0xA || r == 0xD ||
			(r >= 0x20 && r <= 0xD7FF) ||
			(r >= 0xE000 && r <= 0xFFFD) ||
			(r >= 0x10000 && r <= 0x10FFFF) {
			return r
		}
		return -1
	}, s)
}

func isAllowedAttr(a html.Attribute) bool {
	switch a.Key {
	case "id", "class", "title", "lang", "dir",
		"href", "src", "alt", "colspan", "rowspan", "start":
		return true
	}
	return false
}

// voidElements are HTML elements that must be self-closing in XHTML.
var voidElements = map[atom.Atom]bool{
	atom.Area: true, atom.Base: true, atom.Br: true, atom.Col: true,
	atom.Embed: true, atom.Hr: true, atom.Img: true, atom.Input: true,
	atom.Link: true, atom.Meta: true, atom.Source: true, atom.Wbr: true,
}

// isRemote reports absolute URLs and other links that leave the book.
func isRemote(ref string) bool {
	u, err := url.Parse(ref)
	return err == nil && u.Scheme != ""
}

func textNodeOf(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// sanitizeForXHTML turns a rendered chapter into XHTML that epubcheck
// accepts. resolveSrc maps the relative attachment paths used in the
// Markdown to paths inside the book; images it cannot map are replaced by
// their alt text and links to them are unwrapped. Task checkboxes become
// ballot box characters.
func sanitizeForXHTML(htmlStr string, resolveSrc func(string) (string, bool)) string {
	htmlStr = stripInvalidXMLChars(htmlStr)

	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(htmlStr), body)
	if err != nil {
		return htmlStr
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}

	// clean returns the replacement nodes for n; nil removes it.
	var clean func(n *html.Node) []*html.Node
	clean = func(n *html.Node) []*html.Node {
		if n.Type == html.CommentNode {
			return nil
		}
		if n.Type != html.ElementNode {
			return []*html.Node{n}
		}

		switch n.DataAtom {
		case atom.Input:
			if dom.GetAttributeOr(n, "type", "") != "checkbox" {
				return nil
			}
			if _, checked := dom.GetAttribute(n, "checked"); checked {
				return []*html.Node{textNodeOf("☑")}
			}
			return []*html.Node{textNodeOf("☐")}
		case atom.Script, atom.Style, atom.Iframe, atom.Object, atom.Embed:
			return nil
		case atom.Img:
			src := strings.TrimSpace(dom.GetAttributeOr(n, "src", ""))
			if internal, ok := resolveSrc(src); ok && src != "" {
				setAttr(n, "src", internal)
			} else {
				alt := strings.TrimSpace(dom.GetAttributeOr(n, "alt", ""))
				if alt == "" {
					return nil
				}
				return []*html.Node{textNodeOf("[" + alt + "]")}
			}
		case atom.A:
			href := strings.TrimSpace(dom.GetAttributeOr(n, "href", ""))
			switch {
			case href == "", strings.HasPrefix(href, "#"):
				// same-chapter fragments are not generated; unwrap
				href = ""
			case isRemote(href):
			default:
				if internal, ok := resolveSrc(href); ok {
					setAttr(n, "href", internal)
				} else {
					href = ""
				}
			}
			if href == "" {
				var out []*html.Node
				for c := n.FirstChild; c != nil; {
					next := c.NextSibling
					n.RemoveChild(c)
					out = append(out, clean(c)...)
					c = next
				}
				return out
			}
		}

		var kept []html.Attribute
		for _, a := range n.Attr {
			if isAllowedAttr(a) {
				kept = append(kept, a)
			}
		}
		n.Attr = kept

		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			repl := clean(c)
			for _, r := range repl {
				if r != c {
					n.InsertBefore(r, c)
				}
			}
			if len(repl) != 1 || repl[0] != c {
				n.RemoveChild(c)
			}
			c = next
		}
		return []*html.Node{n}
	}
	clean(body)

	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		renderXHTML(&buf, c)
	}
	return buf.String()
}

// renderXHTML renders an html.Node tree as XHTML (self-closing void elements).
func renderXHTML(buf *bytes.Buffer, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		buf.WriteString(html.EscapeString(n.Data))
	case html.ElementNode:
		buf.WriteByte('<')
		buf.WriteString(n.Data)
		for _, a := range n.Attr {
			buf.WriteByte(' ')
			buf.WriteString(a.Key)
			buf.WriteString(`="`)
			buf.WriteString(html.EscapeString(a.Val))
			buf.WriteByte('"')
		}
		if voidElements[n.DataAtom] && n.FirstChild == nil {
			buf.WriteString("/>")
			return
		}
		buf.WriteByte('>')
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			renderXHTML(buf, c)
		}
		buf.WriteString("</")
		buf.WriteString(n.Data)
		buf.WriteByte('>')
	case html.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			renderXHTML(buf, c)
		}
	}
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
