package main

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleDocs(t *testing.T) []Document {
	t.Helper()
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return []Document{
		{
			Title: "First",
			Slug:  "First",
			Body:  "# First\n\n- [x] done\n- [ ] open\n\n![my photo.png](First/my%20photo.png)\n\n[manual.pdf](First/manual.pdf)\n",
			Attachments: []Attachment{
				{FileName: "my photo.png", MimeType: "image/png", Data: makePNG(t, 40, 20)},
				{FileName: "manual.pdf", MimeType: "application/pdf", Data: []byte("%PDF-1.4")},
			},
			Meta: NoteMeta{Title: "First", Author: "Sam", Created: created, SourceURL: "https://example.com/first/"},
		},
		{
			Title: "Second & Last",
			Slug:  "Second_Last",
			Body:  "# Second \\& Last\n\nPlain text.\n",
			Meta:  NoteMeta{Title: "Second & Last", Created: created.Add(24 * time.Hour)},
		},
	}
}

// findZipFile reads the contents of a file from a zip reader by name.
func findZipFile(zr *zip.ReadCloser, name string) string {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return ""
			}
			defer rc.Close()
			data, err := io.ReadAll(rc)
			if err != nil {
				return ""
			}
			return string(data)
		}
	}
	return ""
}

func TestBuildEpub_Basic(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "notes.epub")
	if err := buildEpub(sampleDocs(t), "Test Book", outPath, optimizeOpts{maxWidth: 600}); err != nil {
		t.Fatal(err)
	}

	zr, err := zip.OpenReader(outPath)
	if err != nil {
		t.Fatalf("not a valid zip: %v", err)
	}
	defer zr.Close()

	fileNames := map[string]bool{}
	for _, f := range zr.File {
		fileNames[f.Name] = true
	}
	for _, want := range []string{
		"EPUB/xhtml/contents.xhtml",
		"EPUB/xhtml/note001.xhtml",
		"EPUB/xhtml/note002.xhtml",
		"EPUB/images/note001_img001.jpg",
	} {
		if !fileNames[want] {
			t.Errorf("missing %s", want)
		}
	}
	for name := range fileNames {
		if strings.HasSuffix(name, ".pdf") {
			t.Errorf("non-image attachment %s should not be embedded", name)
		}
	}

	toc := findZipFile(zr, "EPUB/xhtml/contents.xhtml")
	for _, want := range []string{"note001.xhtml", "note002.xhtml", "Second &amp; Last", "Sam", "example.com/first"} {
		if !strings.Contains(toc, want) {
			t.Errorf("contents page should contain %q", want)
		}
	}

	chapter := findZipFile(zr, "EPUB/xhtml/note001.xhtml")
	for _, want := range []string{
		`src="../images/note001_img001.jpg"`,
		"☑ done",
		"☐ open",
		`<p class="byline">`,
		"manual.pdf",
	} {
		if !strings.Contains(chapter, want) {
			t.Errorf("chapter should contain %q", want)
		}
	}
	if strings.Contains(chapter, `href="First/manual.pdf"`) {
		t.Error("link to a file outside the book should be unwrapped")
	}
}

func TestChapterBody_BylineUnderTitle(t *testing.T) {
	doc := sampleDocs(t)[0]
	body, err := chapterBody(doc, map[string]string{"First/my photo.png": "../images/x.jpg"})
	if err != nil {
		t.Fatal(err)
	}
	want := "<h1>First</h1>\n<p class=\"byline\">January 2, 2024 · Sam<br/><a href=\"https://example.com/first/\">example.com/first</a></p>"
	if !strings.HasPrefix(body, want) {
		t.Errorf("body starts with %q\nwant %q", body[:min(len(body), len(want))], want)
	}
	if !strings.Contains(body, `<img src="../images/x.jpg" alt="my photo.png"/>`) {
		t.Errorf("image not resolved: %q", body)
	}
}

func TestChapterBody_NoByline(t *testing.T) {
	body, err := chapterBody(Document{Title: "T", Body: "# T\n\nx\n"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if body != "<h1>T</h1>\n<p>x</p>\n" {
		t.Errorf("got %q", body)
	}
}

func TestBookIdentifier(t *testing.T) {
	docs := sampleDocs(t)
	a := bookIdentifier("Book", docs)
	if a != bookIdentifier("Book", docs) {
		t.Error("identifier should be stable")
	}
	if !strings.HasPrefix(a, "urn:uuid:") {
		t.Errorf("identifier %q should be a uuid URN", a)
	}
	if a == bookIdentifier("Other", docs) {
		t.Error("different titles should give different identifiers")
	}
	if a == bookIdentifier("Book", docs[:1]) {
		t.Error("different notes should give different identifiers")
	}
}

func TestChapterFile(t *testing.T) {
	if got := chapterFile(0); got != "note001.xhtml" {
		t.Errorf("chapterFile(0) = %q", got)
	}
	if got := chapterFile(41); got != "note042.xhtml" {
		t.Errorf("chapterFile(41) = %q", got)
	}
}

func TestEpubSink(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "sink.epub")
	s := NewEpubSink(outPath, "", optimizeOpts{})
	if s.title != "Evernote notes" {
		t.Errorf("default title = %q", s.title)
	}
	for _, d := range sampleDocs(t) {
		if err := s.Store(d); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(outPath); err != nil {
		t.Errorf("epub not written: %v", err)
	}
}

func TestEpubSink_EmptyWritesNothing(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "empty.epub")
	if err := NewEpubSink(outPath, "Empty", optimizeOpts{}).Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(outPath); !os.IsNotExist(err) {
		t.Error("no file should be written for an empty book")
	}
}
