package main

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamSink_SeparatesDocuments(t *testing.T) {
	var buf bytes.Buffer
	s := NewStreamSink(&buf)
	require.NoError(t, s.Store(Document{Body: "# A"}))
	require.NoError(t, s.Store(Document{Body: "# B"}))
	require.NoError(t, s.Close())

	assert.Equal(t, "# A\n\n---\n\n# B\n", buf.String())
}

func TestDiskSink_WritesRunDirectory(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s, err := NewDiskSink(root, now, optimizeOpts{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "20240102_030405"), s.Dir())

	doc := Document{
		Slug:        "A",
		Body:        "# A\n\n[x.txt](A/x.txt)",
		Attachments: []Attachment{{FileName: "x.txt", MimeType: "text/plain", Data: []byte("payload")}},
	}
	require.NoError(t, s.Store(doc))
	require.NoError(t, s.Store(Document{Slug: "B", Body: "# B"}))
	require.NoError(t, s.Close())

	md, err := os.ReadFile(filepath.Join(s.Dir(), "A.md"))
	require.NoError(t, err)
	assert.Equal(t, "# A\n\n[x.txt](A/x.txt)\n", string(md))

	att, err := os.ReadFile(filepath.Join(s.Dir(), "A", "x.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(att))

	assert.FileExists(t, filepath.Join(s.Dir(), "B.md"))
	assert.NoDirExists(t, filepath.Join(s.Dir(), "B"), "no attachment directory without attachments")

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".enex2md-", "temp files are renamed away")
	}
}

func TestDiskSink_DownscalesImages(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 400, 200))))

	s, err := NewDiskSink(t.TempDir(), time.Now(), optimizeOpts{maxWidth: 100})
	require.NoError(t, err)
	doc := Document{
		Slug:        "Pic",
		Body:        "# Pic",
		Attachments: []Attachment{{FileName: "big.png", MimeType: "image/png", Data: buf.Bytes()}},
	}
	require.NoError(t, s.Store(doc))

	f, err := os.Open(filepath.Join(s.Dir(), "Pic", "big.png"))
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.md")
	require.NoError(t, writeFileAtomic(path, []byte("first"), 0o644))
	require.NoError(t, writeFileAtomic(path, []byte("second"), 0o644))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	err = writeFileAtomic(filepath.Join(t.TempDir(), "missing", "out.md"), []byte("x"), 0o644)
	assert.Error(t, err)
}
