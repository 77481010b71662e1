// Conversion pipeline: one note → one Document, and whole bundles in
// parallel.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
)

// Document is the converted form of one note, ready for a sink.
type Document struct {
	Title         string
	Slug          string
	Style         MetadataStyle
	MetadataBlock string
	Body          string
	Attachments   []Attachment
	Warnings      []Warning
	Meta          NoteMeta
}

// Markdown joins metadata and body in the configured order.
func (d Document) Markdown() string {
	if d.MetadataBlock == "" {
		return compactMarkdown(d.Body)
	}
	if d.Style == StyleFrontmatter {
		return compactMarkdown(d.MetadataBlock + "\n\n" + d.Body)
	}
	return compactMarkdown(d.Body + "\n\n" + d.MetadataBlock)
}

// NoteFailure records a note that could not be converted.
type NoteFailure struct {
	Index int
	Title string
	Err   error
}

// Report summarizes a conversion run.
type Report struct {
	Notes     int
	Converted int
	Failures  []NoteFailure
	Warnings  []Warning
}

func (r *Report) merge(o Report) {
	r.Notes += o.Notes
	r.Converted += o.Converted
	r.Failures = append(r.Failures, o.Failures...)
	r.Warnings = append(r.Warnings, o.Warnings...)
}

// ConvertNote runs the full pipeline for one note. slug names the note's
// attachment directory.
func ConvertNote(note Note, slug string, cfg Config) (Document, error) {
	title := cleanTitle(note.Title)
	res := NewResolver(title, slug, cfg.OutputMode, note.Attachments, cfg.NameUntitled)
	warnings := append([]Warning(nil), res.Warnings()...)

	var body string
	var refs map[string]bool
	tree, w, err := normalizeContent(title, note.Content)
	switch {
	case err == nil:
		warnings = append(warnings, w...)
		body = renderMarkdown(tree, res)
		refs = collectRefs(tree)
	case cfg.Lenient && isMalformed(err):
		body, err = lenientMarkdown(note.Content, res)
		if err != nil {
			return Document{}, fmt.Errorf("lenient conversion of %q: %w", title, err)
		}
		warnings = append(warnings, Warning{Kind: WarnLenientFallback, Note: title, Message: "converted without strict parsing"})
		refs = mediaRefs(note.Content)
	default:
		return Document{}, err
	}

	parts := []string{titleHeading(title), body}
	if extra := unreferencedSection(res, refs); extra != "" {
		parts = append(parts, extra)
	}

	meta := note.Meta()
	meta.Title = title
	block, err := formatMetadata(meta, cfg.MetadataStyle, cfg.location())
	if err != nil {
		return Document{}, err
	}

	return Document{
		Title:         title,
		Slug:          slug,
		Style:         cfg.MetadataStyle,
		MetadataBlock: block,
		Body:          compactMarkdown(strings.Join(parts, "\n\n")),
		Attachments:   res.Files(),
		Warnings:      warnings,
		Meta:          meta,
	}, nil
}

func isMalformed(err error) bool {
	var mce *MalformedContentError
	return errors.As(err, &mce)
}

// collectRefs returns the attachment hashes referenced in a tree.
func collectRefs(n *ContentNode) map[string]bool {
	refs := map[string]bool{}
	var walk func(*ContentNode)
	walk = func(n *ContentNode) {
		if n.Kind == KindImage && n.Ref != "" {
			refs[n.Ref] = true
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(n)
	return refs
}

var mediaHashRe = regexp.MustCompile(`(?i)<en-media[^>]*\bhash="([0-9a-f]+)"`)

// mediaRefs finds en-media hashes in raw content.
func mediaRefs(content string) map[string]bool {
	refs := map[string]bool{}
	for _, m := range mediaHashRe.FindAllStringSubmatch(content, -1) {
		refs[strings.ToLower(m[1])] = true
	}
	return refs
}

// unreferencedSection lists attachments that the content never places, so
// files written next to the note are still reachable from it.
func unreferencedSection(res *Resolver, refs map[string]bool) string {
	list := newNode(KindList)
	for _, a := range res.Files() {
		if !refs[a.ID] {
			list.Children = append(list.Children, newNode(KindListItem, &ContentNode{Kind: KindImage, Ref: a.ID}))
		}
	}
	if len(list.Children) == 0 {
		return ""
	}
	return "## Attachments\n\n" + renderMarkdown(list, res)
}

type noteResult struct {
	doc Document
	err error
}

// convertNoteSafe converts one note, turning a panic into an error so a
// single bad note cannot take down the batch.
func convertNoteSafe(note Note, slug string, cfg Config) (doc Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic converting %q: %v", note.Title, r)
		}
	}()
	return ConvertNote(note, slug, cfg)
}

// ConvertBundle converts every note of one export. Notes are converted in
// parallel; the returned documents keep the order of the export. Failed
// notes are recorded in the report and never abort the batch. slugs may be
// shared across bundles of one run; nil starts a fresh set.
func ConvertBundle(ctx context.Context, r io.Reader, cfg Config, slugs *slugSet) ([]Document, Report, error) {
	notes, warnings, err := ParseENEX(r)
	if err != nil {
		return nil, Report{}, err
	}
	if slugs == nil {
		slugs = newSlugSet()
	}

	assigned := make([]string, len(notes))
	for i, n := range notes {
		assigned[i] = slugs.claim(cleanTitle(n.Title))
	}

	results := make([]noteResult, len(notes))
	var g errgroup.Group
	g.SetLimit(max(cfg.Workers, 1))
	for i, note := range notes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, err := convertNoteSafe(note, assigned[i], cfg)
			results[i] = noteResult{doc: doc, err: err}
			if err != nil {
				pprintf("  [%d/%d] ✗ %s\n", i+1, len(notes), shortTitle(note.Title))
			} else {
				pprintf("  [%d/%d] ✓ %s\n", i+1, len(notes), shortTitle(note.Title))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Report{}, err
	}

	report := Report{Notes: len(notes), Warnings: warnings}
	var docs []Document
	for i, res := range results {
		if res.err != nil {
			slog.Warn("skipping note", "index", i+1, "title", notes[i].Title, "err", res.err)
			report.Failures = append(report.Failures, NoteFailure{Index: i, Title: notes[i].Title, Err: res.err})
			continue
		}
		report.Converted++
		report.Warnings = append(report.Warnings, res.doc.Warnings...)
		docs = append(docs, res.doc)
	}
	return docs, report, nil
}

// expandInputs resolves glob patterns. Plain paths are passed through so a
// missing file surfaces as an open error.
func expandInputs(patterns []string) ([]string, error) {
	var files []string
	for _, p := range patterns {
		if !strings.ContainsAny(p, "*?[{") {
			files = append(files, p)
			continue
		}
		matches, err := doublestar.FilepathGlob(p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		if len(matches) == 0 {
			slog.Warn("pattern matched no files", "pattern", p)
		}
		files = append(files, matches...)
	}
	return files, nil
}

// Run converts every input file and stores the documents in sink, one
// document at a time.
func Run(ctx context.Context, cfg Config, inputs []string, sink Sink) (Report, error) {
	files, err := expandInputs(inputs)
	if err != nil {
		return Report{}, err
	}
	if len(files) == 0 {
		return Report{}, errors.New("no input files")
	}

	var report Report
	slugs := newSlugSet()
	for i, path := range files {
		pprintf("[%d/%d] %s\n", i+1, len(files), path)
		docs, rep, err := convertFile(ctx, path, cfg, slugs)
		if err != nil {
			return report, err
		}
		report.merge(rep)
		for _, doc := range docs {
			if err := sink.Store(doc); err != nil {
				return report, fmt.Errorf("storing %q: %w", doc.Title, err)
			}
		}
		slog.Info("converted export", "file", path, "notes", rep.Notes, "converted", rep.Converted, "failed", len(rep.Failures))
	}
	for _, w := range report.Warnings {
		slog.Debug("conversion warning", "warning", w.String())
	}
	return report, nil
}

func convertFile(ctx context.Context, path string, cfg Config, slugs *slugSet) ([]Document, Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Report{}, err
	}
	defer f.Close()
	docs, rep, err := ConvertBundle(ctx, f, cfg, slugs)
	if err != nil {
		return nil, rep, fmt.Errorf("%s: %w", path, err)
	}
	return docs, rep, nil
}
