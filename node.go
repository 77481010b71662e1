package main

// NodeKind is the closed set of node types the emitter understands.
type NodeKind int

const (
	KindText NodeKind = iota
	KindParagraph
	KindHeading
	KindBold
	KindItalic
	KindStrikethrough
	KindCodeInline
	KindCodeBlock
	KindList
	KindListItem
	KindTable
	KindTableRow
	KindLink
	KindImage
	KindLineBreak
	KindBlockquote
	KindRule
	KindUnknown
)

var kindNames = [...]string{
	"Text", "Paragraph", "Heading", "Bold", "Italic", "Strikethrough",
	"CodeInline", "CodeBlock", "List", "ListItem", "Table", "TableRow",
	"Link", "Image", "LineBreak", "Blockquote", "Rule", "Unknown",
}

func (k NodeKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Invalid"
}

// ContentNode is one node of a normalized note tree.
//
// Which fields are meaningful depends on Kind: Text for Text/CodeInline/
// CodeBlock, Level for Heading, Ordered/Start for List, Checked for ListItem,
// Href for Link, Ref/Src/Alt for Image. Checked is non-nil only for items
// that came from a to-do marker.
type ContentNode struct {
	Kind     NodeKind
	Text     string
	Level    int
	Ordered  bool
	Start    int
	Checked  *bool
	Href     string
	Ref      string
	Src      string
	Alt      string
	Lang     string
	Children []*ContentNode
}

func textNode(s string) *ContentNode {
	return &ContentNode{Kind: KindText, Text: s}
}

func newNode(kind NodeKind, children ...*ContentNode) *ContentNode {
	return &ContentNode{Kind: kind, Children: children}
}

func boolPtr(b bool) *bool { return &b }

// isInlineKind reports whether nodes of kind k flow inside a paragraph.
func isInlineKind(k NodeKind) bool {
	switch k {
	case KindText, KindBold, KindItalic, KindStrikethrough, KindCodeInline,
		KindLink, KindImage, KindLineBreak:
		return true
	}
	return false
}

// isInline reports whether n renders inline. Unknown nodes are inline when
// all their children are.
func isInline(n *ContentNode) bool {
	if n.Kind == KindUnknown {
		for _, c := range n.Children {
			if !isInline(c) {
				return false
			}
		}
		return true
	}
	return isInlineKind(n.Kind)
}

// plainText concatenates all text below n.
func plainText(n *ContentNode) string {
	switch n.Kind {
	case KindText, KindCodeInline, KindCodeBlock:
		return n.Text
	case KindLineBreak:
		return "\n"
	case KindImage:
		return n.Alt
	}
	var s string
	for _, c := range n.Children {
		s += plainText(c)
	}
	return s
}
