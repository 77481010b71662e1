// Attachment reference resolution: maps en-media hashes to relative paths
// inside the note's attachment directory.
package main

import (
	"net/url"
	"path"
	"strconv"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
)

// OutputMode is where converted documents go.
type OutputMode string

const (
	ModeStream OutputMode = "stream"
	ModeDisk   OutputMode = "disk"
	ModeEpub   OutputMode = "epub"
)

// materializes reports whether attachments are written next to the document.
func (m OutputMode) materializes() bool {
	return m == ModeDisk || m == ModeEpub
}

// Attachment is a binary resource owned by a Note.
type Attachment struct {
	ID       string // md5 hex of Data, as referenced by <en-media hash>
	FileName string
	MimeType string
	Width    int
	Height   int
	Data     []byte
}

func (a Attachment) isImage() bool {
	return strings.HasPrefix(a.MimeType, "image/")
}

// Resolver resolves attachment references for one note. Names are
// disambiguated per note only.
type Resolver struct {
	refs     map[string]Reference
	files    []Attachment
	warnings []Warning
}

// NewResolver plans the files to write for a note's attachments under dir.
// In stream mode nothing resolves. Attachments without a file name are
// dropped with a warning unless nameUntitled is set.
func NewResolver(note, dir string, mode OutputMode, atts []Attachment, nameUntitled bool) *Resolver {
	r := &Resolver{refs: map[string]Reference{}}
	taken := map[string]bool{}
	seen := map[string]bool{}

	for i, a := range atts {
		if seen[a.ID] && a.ID != "" {
			continue
		}
		seen[a.ID] = true
		name := sanitizeFileName(a.FileName)
		if name == "" {
			if !nameUntitled {
				r.warnings = append(r.warnings, warningFromError(&MissingFieldWarning{Note: note, Field: "attachment file name"}))
				continue
			}
			name = "untitled" + extensionFor(a.MimeType)
		}
		name = disambiguate(name, i+1, taken)
		taken[strings.ToLower(name)] = true

		if !mode.materializes() {
			continue
		}
		a.FileName = name
		r.files = append(r.files, a)
		r.refs[a.ID] = Reference{
			Name:    name,
			Path:    url.PathEscape(dir) + "/" + url.PathEscape(name),
			IsImage: a.isImage(),
		}
	}
	return r
}

// Resolve implements AttachmentResolver.
func (r *Resolver) Resolve(ref string) (Reference, bool) {
	if r == nil {
		return Reference{}, false
	}
	res, ok := r.refs[strings.ToLower(ref)]
	return res, ok
}

// Files returns the attachments to write, with their final file names.
func (r *Resolver) Files() []Attachment { return r.files }

// Warnings returns the issues found while planning.
func (r *Resolver) Warnings() []Warning { return r.warnings }

// disambiguate appends the attachment's ordinal to a name that is already
// taken in this note, bumping further if that is taken too.
func disambiguate(name string, ordinal int, taken map[string]bool) string {
	if !taken[strings.ToLower(name)] {
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := stem + "_" + strconv.Itoa(ordinal) + ext
	for n := 2; taken[strings.ToLower(candidate)]; n++ {
		candidate = stem + "_" + strconv.Itoa(ordinal) + "_" + strconv.Itoa(n) + ext
	}
	return candidate
}

// extensionFor picks a file extension for a MIME type.
func extensionFor(mime string) string {
	if m := mimetype.Lookup(mime); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	if _, sub, ok := strings.Cut(mime, "/"); ok && sub != "" && !strings.ContainsAny(sub, "+.;") {
		return "." + sub
	}
	return ".bin"
}

// isForbiddenFileNameRune reports characters that are unsafe in file names
// on common filesystems.
func isForbiddenFileNameRune(r rune) bool {
	switch r {
	case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
		return true
	}
	return unicode.IsControl(r)
}

// sanitizeFileName makes an attachment file name safe to write. It returns
// "" when nothing usable is left.
func sanitizeFileName(name string) string {
	name = strings.Map(func(r rune) rune {
		if isForbiddenFileNameRune(r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	name = strings.Trim(name, ". ")
	if strings.Trim(name, "_") == "" {
		return ""
	}
	for len(name) > 200 {
		ext := path.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		stem := []rune(strings.TrimSuffix(name, ext))
		name = string(stem[:len(stem)-1]) + ext
	}
	return name
}
