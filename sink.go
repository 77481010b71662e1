// Output sinks: stdout stream and per-run directory tree.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Sink receives converted documents. Store is called once per document and
// must write it completely before returning.
type Sink interface {
	Store(doc Document) error
	Close() error
}

// documentSeparator goes between documents on a stream.
const documentSeparator = "\n---\n\n"

// StreamSink writes every document to one writer.
type StreamSink struct {
	mu sync.Mutex
	w  io.Writer
	n  int
}

func NewStreamSink(w io.Writer) *StreamSink {
	return &StreamSink{w: w}
}

func (s *StreamSink) Store(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := doc.Markdown()
	if s.n > 0 {
		out = documentSeparator + out
	}
	if _, err := io.WriteString(s.w, out); err != nil {
		return err
	}
	s.n++
	return nil
}

func (s *StreamSink) Close() error { return nil }

// runDirLayout names the per-run output directory.
const runDirLayout = "20060102_150405"

// DiskSink writes <root>/<run>/<slug>.md and the note's attachments to
// <root>/<run>/<slug>/.
type DiskSink struct {
	mu     sync.Mutex
	dir    string
	images optimizeOpts
	st     stats
}

// NewDiskSink creates the run directory under root, named after now.
func NewDiskSink(root string, now time.Time, images optimizeOpts) (*DiskSink, error) {
	dir := filepath.Join(root, now.Format(runDirLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &DiskSink{dir: dir, images: images}, nil
}

// Dir is the run directory documents are written to.
func (s *DiskSink) Dir() string { return s.dir }

func (s *DiskSink) Store(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(doc.Attachments) > 0 {
		attDir := filepath.Join(s.dir, doc.Slug)
		if err := os.MkdirAll(attDir, 0o755); err != nil {
			return fmt.Errorf("creating attachment directory: %w", err)
		}
		for _, a := range doc.Attachments {
			data := a.Data
			if s.images.maxWidth > 0 && a.isImage() {
				if out, ok := downscaleImage(a.Data, a.MimeType, s.images, &s.st); ok {
					data = out
				}
			}
			if err := writeFileAtomic(filepath.Join(attDir, a.FileName), data, 0o644); err != nil {
				return fmt.Errorf("writing attachment %s: %w", a.FileName, err)
			}
		}
	}

	path := filepath.Join(s.dir, doc.Slug+".md")
	if err := writeFileAtomic(path, []byte(doc.Markdown()), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	slog.Debug("wrote note", "path", path, "attachments", len(doc.Attachments))
	return nil
}

func (s *DiskSink) Close() error {
	s.st.log()
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place, so readers never see a partial file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".enex2md-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	tmpName = ""
	return nil
}
