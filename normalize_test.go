package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// findKind collects every node of the given kind below n, in document order.
func findKind(n *ContentNode, kind NodeKind) []*ContentNode {
	var out []*ContentNode
	var walk func(*ContentNode)
	walk = func(n *ContentNode) {
		if n.Kind == kind {
			out = append(out, n)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(n)
	return out
}

func normalize(t *testing.T, content string) *ContentNode {
	t.Helper()
	tree, _, err := normalizeContent("test", content)
	require.NoError(t, err)
	return tree
}

func TestNormalizeContent_StripsEnvelope(t *testing.T) {
	content := `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE en-note SYSTEM "http://xml.evernote.com/pub/enml2.dtd">
<en-note><div>Hello</div></en-note>`
	tree := normalize(t, content)
	assert.Equal(t, "Hello", renderMarkdown(tree, nil))
}

func TestNormalizeContent_MergesAdjacentBold(t *testing.T) {
	tree := normalize(t, `<en-note><div><b>a</b><b>b</b></div></en-note>`)

	bold := findKind(tree, KindBold)
	require.Len(t, bold, 1)
	require.Len(t, bold[0].Children, 1)
	assert.Equal(t, "ab", bold[0].Children[0].Text)
	assert.Equal(t, "**ab**", renderMarkdown(tree, nil))
}

func TestNormalizeContent_NestedSameEmphasisFlattened(t *testing.T) {
	tree := normalize(t, `<en-note><div><i>x<i>y</i></i></div></en-note>`)
	assert.Equal(t, "*xy*", renderMarkdown(tree, nil))
}

func TestNormalizeContent_StyledSpans(t *testing.T) {
	tree := normalize(t, `<en-note><div><span style="font-weight: bold;">strong</span> and <span style="text-decoration: line-through">gone</span></div></en-note>`)
	assert.Equal(t, "**strong** and ~~gone~~", renderMarkdown(tree, nil))
}

func TestNormalizeContent_TodoBecomesTaskItem(t *testing.T) {
	tree := normalize(t, `<en-note><div><en-todo checked="true"/>Buy milk</div><div><en-todo checked="false"/>Eggs</div></en-note>`)

	items := findKind(tree, KindListItem)
	require.Len(t, items, 2)
	require.NotNil(t, items[0].Checked)
	require.NotNil(t, items[1].Checked)
	assert.True(t, *items[0].Checked)
	assert.False(t, *items[1].Checked)

	lists := findKind(tree, KindList)
	require.Len(t, lists, 1, "consecutive to-dos form one list")
	assert.Equal(t, "- [x] Buy milk\n- [ ] Eggs", renderMarkdown(tree, nil))
}

func TestNormalizeContent_TodosSplitOnBreaks(t *testing.T) {
	tree := normalize(t, `<en-note><div><en-todo checked="true"/>one<br/><en-todo/>two</div></en-note>`)
	assert.Equal(t, "- [x] one\n- [ ] two", renderMarkdown(tree, nil))
}

func TestNormalizeContent_EvernoteTenChecklist(t *testing.T) {
	tree := normalize(t, `<en-note><ul style="--en-todo:true;"><li style="--en-checked:true;"><div>done</div></li><li style="--en-checked:false;"><div>open</div></li></ul></en-note>`)
	assert.Equal(t, "- [x] done\n- [ ] open", renderMarkdown(tree, nil))
}

func TestNormalizeContent_PlainItemsHaveNoCheckedState(t *testing.T) {
	tree := normalize(t, `<en-note><ul><li>a</li><li>b</li></ul></en-note>`)
	for _, item := range findKind(tree, KindListItem) {
		assert.Nil(t, item.Checked)
	}
	assert.Equal(t, "- a\n- b", renderMarkdown(tree, nil))
}

func TestNormalizeContent_NestedLists(t *testing.T) {
	tree := normalize(t, `<en-note><ul><li>a<ul><li>b<ul><li>c</li></ul></li></ul></li></ul></en-note>`)
	assert.Equal(t, "- a\n    - b\n        - c", renderMarkdown(tree, nil))

	for _, l := range findKind(tree, KindList) {
		for _, c := range l.Children {
			assert.Equal(t, KindListItem, c.Kind, "lists hold only items")
		}
	}
}

func TestNormalizeContent_StrayNestedListAttachesToPreviousItem(t *testing.T) {
	tree := normalize(t, `<en-note><ul><li>a</li><ul><li>b</li></ul></ul></en-note>`)
	assert.Equal(t, "- a\n    - b", renderMarkdown(tree, nil))
}

func TestNormalizeContent_OrderedListStart(t *testing.T) {
	tree := normalize(t, `<en-note><ol start="3"><li>three</li><li>four</li></ol></en-note>`)
	assert.Equal(t, "3. three\n4. four", renderMarkdown(tree, nil))
}

func TestNormalizeContent_PreKeepsWhitespace(t *testing.T) {
	tree := normalize(t, "<en-note><pre>  a\n    b  c</pre></en-note>")

	blocks := findKind(tree, KindCodeBlock)
	require.Len(t, blocks, 1)
	assert.Equal(t, "  a\n    b  c", blocks[0].Text)
}

func TestNormalizeContent_CodeBlockFirstInListItem(t *testing.T) {
	tree := normalize(t, "<en-note><ul><li><pre>a\n\nb</pre></li></ul></en-note>")
	md := compactMarkdown(renderMarkdown(tree, nil))
	assert.Equal(t, "- ```\n  a\n\n  b\n  ```\n", md)

	var out bytes.Buffer
	require.NoError(t, chapterMarkdown.Convert([]byte(md), &out))
	assert.Contains(t, out.String(), "<pre><code>a\n\nb\n</code></pre>")
}

func TestNormalizeContent_EvernoteCodeBlock(t *testing.T) {
	tree := normalize(t, `<en-note><div style="box-sizing: border-box; -en-codeblock:true;"><div>x := 1</div><div>  y := 2</div></div></en-note>`)

	blocks := findKind(tree, KindCodeBlock)
	require.Len(t, blocks, 1)
	assert.Equal(t, "x := 1\n  y := 2", blocks[0].Text)
	assert.Equal(t, "```\nx := 1\n  y := 2\n```", renderMarkdown(tree, nil))
}

func TestNormalizeContent_TablePadsRows(t *testing.T) {
	tree := normalize(t, `<en-note><table>
<tr><td>a</td><td>b</td></tr>
<tr><td>c</td><td>d</td><td>e</td></tr>
<tr><td>f</td></tr>
</table></en-note>`)

	tables := findKind(tree, KindTable)
	require.Len(t, tables, 1)
	require.Len(t, tables[0].Children, 3)
	for _, row := range tables[0].Children {
		assert.Equal(t, KindTableRow, row.Kind)
		assert.Len(t, row.Children, 3)
	}
	want := "| a | b |  |\n| --- | --- | --- |\n| c | d | e |\n| f |  |  |"
	assert.Equal(t, want, renderMarkdown(tree, nil))
}

func TestNormalizeContent_MediaReference(t *testing.T) {
	tree := normalize(t, `<en-note><div><en-media hash="ABCDEF" type="image/png"/></div></en-note>`)

	images := findKind(tree, KindImage)
	require.Len(t, images, 1)
	assert.Equal(t, "abcdef", images[0].Ref)
}

func TestNormalizeContent_EncryptedSectionDropped(t *testing.T) {
	tree, warnings, err := normalizeContent("secret", `<en-note><div>before</div><en-crypt cipher="AES">Zm9v</en-crypt></en-note>`)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, WarnUnsupportedContent, warnings[0].Kind)
	assert.Equal(t, "before", renderMarkdown(tree, nil))
}

func TestNormalizeContent_NonBreakingSpaces(t *testing.T) {
	tree := normalize(t, "<en-note><div>a&nbsp;b</div></en-note>")
	assert.Equal(t, "a b", renderMarkdown(tree, nil))
}

func TestNormalizeContent_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"truncated", `<en-note><div>unclosed`},
		{"garbled tag", `<en-note><div <<>>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := normalizeContent("bad", tt.content)
			require.Error(t, err)
			var mce *MalformedContentError
			require.True(t, errors.As(err, &mce))
			assert.Equal(t, "bad", mce.Note)
		})
	}
}

func TestNormalizeContent_UnknownElementsPassThrough(t *testing.T) {
	tree := normalize(t, `<en-note><div><font color="red">red</font> text</div></en-note>`)
	assert.Equal(t, "red text", renderMarkdown(tree, nil))
}
