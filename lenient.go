// Lenient conversion of note content that is not well-formed: a forgiving
// HTML to Markdown pass instead of the strict content tree.
package main

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/dom"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/strikethrough"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"
)

// newLenientConverter builds a converter whose en-media and en-todo
// renderers resolve through res. A converter is built per note since the
// resolver differs.
func newLenientConverter(res AttachmentResolver) *converter.Converter {
	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
			strikethrough.NewStrikethroughPlugin(),
		),
	)
	e := emitter{res: res}

	// PriorityEarly runs before the commonmark plugin's handlers.
	conv.Register.RendererFor("en-media", converter.TagTypeInline,
		func(ctx converter.Context, w converter.Writer, n *html.Node) converter.RenderStatus {
			hash := strings.ToLower(strings.TrimSpace(dom.GetAttributeOr(n, "hash", "")))
			if hash != "" {
				w.WriteString(e.image(&ContentNode{Kind: KindImage, Ref: hash}, RenderState{}))
			}
			// The HTML parser nests whatever follows a self-closed tag.
			ctx.RenderChildNodes(ctx, w, n)
			return converter.RenderSuccess
		},
		converter.PriorityEarly,
	)
	conv.Register.RendererFor("en-todo", converter.TagTypeInline,
		func(ctx converter.Context, w converter.Writer, n *html.Node) converter.RenderStatus {
			w.WriteString(taskBox(todoChecked(n)))
			ctx.RenderChildNodes(ctx, w, n)
			return converter.RenderSuccess
		},
		converter.PriorityEarly,
	)
	conv.Register.RendererFor("img", converter.TagTypeInline,
		func(ctx converter.Context, w converter.Writer, n *html.Node) converter.RenderStatus {
			if !strings.HasPrefix(dom.GetAttributeOr(n, "src", ""), "data:") {
				return converter.RenderTryNext
			}
			return converter.RenderSuccess
		},
		converter.PriorityEarly,
	)
	return conv
}

// lenientMarkdown converts raw ENML with html-to-markdown.
func lenientMarkdown(content string, res AttachmentResolver) (string, error) {
	md, err := newLenientConverter(res).ConvertString(stripEnvelope(content))
	if err != nil {
		return "", fmt.Errorf("markdown conversion: %w", err)
	}
	return compactMarkdown(strings.TrimSpace(md)), nil
}
