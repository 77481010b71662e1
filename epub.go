// EPUB output: one chapter per note, with a contents page and cover.
package main

import (
	"bytes"
	"encoding/base64"
	"fmt"
	gohtml "html"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"

	epub "github.com/go-shiori/go-epub"
	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var chapterMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithXHTML()),
)

// markdownToHTML renders emitted Markdown as an XHTML fragment. Raw HTML in
// the source is omitted.
func markdownToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := chapterMarkdown.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("markdown render: %w", err)
	}
	return buf.String(), nil
}

// EpubSink collects documents and writes them as one book on Close.
type EpubSink struct {
	mu     sync.Mutex
	path   string
	title  string
	images optimizeOpts
	docs   []Document
}

func NewEpubSink(path, title string, images optimizeOpts) *EpubSink {
	if strings.TrimSpace(title) == "" {
		title = "Evernote notes"
	}
	return &EpubSink{path: path, title: title, images: images}
}

func (s *EpubSink) Store(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
	return nil
}

func (s *EpubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.docs) == 0 {
		slog.Warn("no notes converted, not writing EPUB", "path", s.path)
		return nil
	}
	return buildEpub(s.docs, s.title, s.path, s.images)
}

const bookCSS = `body { margin: 1em; line-height: 1.5; }
img { max-width: 100%; height: auto; }
pre, code { font-size: 0.85em; }
pre { white-space: pre-wrap; }
table { border-collapse: collapse; }
td, th { border: 1px solid #999; padding: 0.2em 0.4em; }
blockquote { margin-left: 1em; padding-left: 0.5em; border-left: 2px solid #999; }
.byline { font-size: 0.85em; color: #666; margin-top: -0.5em; margin-bottom: 1.5em; }
.byline a { color: #666; }
.toc { list-style-type: none; padding-left: 0; }
.toc li { margin-bottom: 1.2em; }
.toc a { text-decoration: none; }
.toc-meta { font-size: 0.85em; color: #666; margin-top: 0.1em; }
.toc-meta a { color: #666; }`

func dataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func chapterFile(i int) string {
	return fmt.Sprintf("note%03d.xhtml", i+1)
}

// bookIdentifier derives a stable identifier from the book title and the
// slugs of its notes.
func bookIdentifier(title string, docs []Document) string {
	var b strings.Builder
	b.WriteString(title)
	for _, d := range docs {
		b.WriteByte('\n')
		b.WriteString(d.Slug)
	}
	return "urn:uuid:" + uuid.NewSHA1(uuid.NameSpaceURL, []byte("enex2md:"+b.String())).String()
}

// buildTOCBody generates the contents page: a linked list of notes with
// their bylines.
func buildTOCBody(docs []Document) string {
	var b strings.Builder
	b.WriteString("<h1>Contents</h1>\n<ol class=\"toc\">\n")
	for i, d := range docs {
		b.WriteString("<li>\n")
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, chapterFile(i), gohtml.EscapeString(d.Title))
		b.WriteByte('\n')
		if meta := formatByline(d.Meta); meta != "" {
			fmt.Fprintf(&b, `<p class="toc-meta">%s</p>`, meta)
			b.WriteByte('\n')
		}
		b.WriteString("</li>\n")
	}
	b.WriteString("</ol>\n")
	return b.String()
}

// addAttachmentImages embeds a document's image attachments and returns
// the map from their Markdown paths to paths inside the book.
func addAttachmentImages(e *epub.Epub, doc Document, chapter int, opts optimizeOpts, st *stats) map[string]string {
	paths := map[string]string{}
	for j, a := range doc.Attachments {
		if !a.isImage() {
			continue
		}
		data, mime := a.Data, a.MimeType
		if out, m := optimizeForEreader(a.Data, a.MimeType, opts, st); m != "" {
			data, mime = out, m
		}
		ext := strings.ToLower(path.Ext(a.FileName))
		if mime == "image/jpeg" {
			ext = ".jpg"
		} else if ext == "" {
			ext = extensionFor(mime)
		}
		name := fmt.Sprintf("note%03d_img%03d%s", chapter+1, j+1, ext)
		internal, err := e.AddImage(dataURI(mime, data), name)
		if err != nil {
			slog.Warn("could not add image", "note", doc.Title, "file", a.FileName, "err", err)
			continue
		}
		paths[doc.Slug+"/"+a.FileName] = internal
	}
	return paths
}

// chapterBody renders one document as sanitized XHTML with its byline
// under the title.
func chapterBody(doc Document, images map[string]string) (string, error) {
	rendered, err := markdownToHTML(doc.Body)
	if err != nil {
		return "", err
	}
	body := sanitizeForXHTML(rendered, func(src string) (string, bool) {
		key, err := url.PathUnescape(src)
		if err != nil {
			key = src
		}
		internal, ok := images[key]
		return internal, ok
	})
	if byline := formatByline(doc.Meta); byline != "" {
		tag := `<p class="byline">` + byline + `</p>`
		if i := strings.Index(body, "</h1>"); i >= 0 {
			i += len("</h1>")
			body = body[:i] + "\n" + tag + body[i:]
		} else {
			body = tag + "\n" + body
		}
	}
	return body, nil
}

// buildEpub writes docs as an EPUB 3 book: cover, contents page, then one
// section per document.
func buildEpub(docs []Document, title, outputPath string, opts optimizeOpts) error {
	e, err := epub.NewEpub(title)
	if err != nil {
		return fmt.Errorf("creating epub: %w", err)
	}
	e.SetLang("en")
	e.SetAuthor("enex2md")
	e.SetIdentifier(bookIdentifier(title, docs))
	if date := bookDate(docs); !date.IsZero() {
		e.SetDescription(fmt.Sprintf("%s exported from Evernote, latest %s",
			noteCountLabel(len(docs)), date.Format("January 2, 2006")))
	}

	cssPath, err := e.AddCSS(dataURI("text/css", []byte(bookCSS)), "styles.css")
	if err != nil {
		slog.Warn("could not add CSS", "err", err)
		cssPath = ""
	}

	if cover, err := generateCover(title, len(docs)); err != nil {
		slog.Warn("could not generate cover", "err", err)
	} else if imgPath, err := e.AddImage(dataURI("image/png", cover), "cover.png"); err != nil {
		slog.Warn("could not add cover", "err", err)
	} else {
		e.SetCover(imgPath, "")
	}

	if _, err := e.AddSection(buildTOCBody(docs), "Contents", "contents.xhtml", cssPath); err != nil {
		slog.Warn("could not add table of contents", "err", err)
	}

	var st stats
	for i, doc := range docs {
		images := addAttachmentImages(e, doc, i, opts, &st)
		body, err := chapterBody(doc, images)
		if err != nil {
			return fmt.Errorf("rendering %q: %w", doc.Title, err)
		}
		if _, err := e.AddSection(body, doc.Title, chapterFile(i), cssPath); err != nil {
			return fmt.Errorf("adding section %q: %w", doc.Title, err)
		}
	}
	st.log()

	if err := e.Write(outputPath); err != nil {
		return fmt.Errorf("writing epub: %w", err)
	}
	slog.Info("wrote EPUB", "path", outputPath, "notes", len(docs))
	return nil
}
