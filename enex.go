// ENEX extraction: streams <note> elements out of an Evernote export.
package main

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// enexTimeLayout is the timestamp format of <created> and <updated>.
const enexTimeLayout = "20060102T150405Z"

// Note is one record of an export.
type Note struct {
	Title       string
	Created     time.Time
	Updated     *time.Time
	Author      string
	Tags        []string
	SourceURL   string
	Content     string
	Attachments []Attachment
}

// Meta returns the metadata fields of n.
func (n Note) Meta() NoteMeta {
	return NoteMeta{
		Title:     n.Title,
		Author:    n.Author,
		SourceURL: n.SourceURL,
		Created:   n.Created,
		Updated:   n.Updated,
		Tags:      n.Tags,
	}
}

type xmlNote struct {
	Title     string        `xml:"title"`
	Content   string        `xml:"content"`
	Created   string        `xml:"created"`
	Updated   string        `xml:"updated"`
	Tags      []string      `xml:"tag"`
	Attrs     xmlNoteAttrs  `xml:"note-attributes"`
	Resources []xmlResource `xml:"resource"`
}

type xmlNoteAttrs struct {
	Author    string `xml:"author"`
	SourceURL string `xml:"source-url"`
}

type xmlResource struct {
	Data struct {
		Encoding string `xml:"encoding,attr"`
		Value    string `xml:",chardata"`
	} `xml:"data"`
	Mime   string `xml:"mime"`
	Width  string `xml:"width"`
	Height string `xml:"height"`
	Attrs  struct {
		FileName string `xml:"file-name"`
	} `xml:"resource-attributes"`
}

// ParseENEX reads every note of an export. Problems confined to one note or
// resource are returned as warnings; an error is returned only when the
// document itself is not well-formed XML.
func ParseENEX(r io.Reader) ([]Note, []Warning, error) {
	d := xml.NewDecoder(r)
	d.Entity = xml.HTMLEntity

	var (
		notes    []Note
		warnings []Warning
		sawRoot  bool
	)
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, warnings, &ENEXError{Offset: d.InputOffset(), Cause: err}
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		sawRoot = true
		if se.Name.Local != "note" {
			continue
		}
		var xn xmlNote
		if err := d.DecodeElement(&xn, &se); err != nil {
			return nil, warnings, &ENEXError{Offset: d.InputOffset(), Cause: fmt.Errorf("note %d: %w", len(notes)+1, err)}
		}
		note, w := xn.toNote()
		notes = append(notes, note)
		warnings = append(warnings, w...)
	}
	if !sawRoot {
		return nil, warnings, &ENEXError{Cause: errors.New("no root element")}
	}
	return notes, warnings, nil
}

func (xn xmlNote) toNote() (Note, []Warning) {
	var warnings []Warning
	missing := func(title, field string) {
		warnings = append(warnings, warningFromError(&MissingFieldWarning{Note: title, Field: field}))
	}

	n := Note{
		Title:     strings.TrimSpace(xn.Title),
		Author:    strings.TrimSpace(xn.Attrs.Author),
		SourceURL: strings.TrimSpace(xn.Attrs.SourceURL),
		Content:   xn.Content,
	}
	if n.Title == "" {
		missing("", "title")
		n.Title = "Untitled"
	}
	if t, err := parseENEXTime(xn.Created); err == nil {
		n.Created = t
	} else {
		missing(n.Title, "created")
	}
	if t, err := parseENEXTime(xn.Updated); err == nil {
		n.Updated = &t
	} else {
		missing(n.Title, "updated")
	}
	if n.Author == "" {
		missing(n.Title, "author")
	}
	for _, tag := range xn.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			n.Tags = append(n.Tags, tag)
		}
	}

	for _, res := range xn.Resources {
		att, err := res.toAttachment(n.Title)
		if err != nil {
			warnings = append(warnings, warningFromError(err))
			continue
		}
		n.Attachments = append(n.Attachments, att)
	}
	return n, warnings
}

func parseENEXTime(s string) (time.Time, error) {
	return time.ParseInLocation(enexTimeLayout, strings.TrimSpace(s), time.UTC)
}

func (res xmlResource) toAttachment(note string) (Attachment, error) {
	name := strings.TrimSpace(res.Attrs.FileName)
	if enc := strings.TrimSpace(res.Data.Encoding); enc != "" && enc != "base64" {
		return Attachment{}, &AttachmentDecodeError{Note: note, FileName: name, Cause: fmt.Errorf("unsupported encoding %q", enc)}
	}
	data, err := decodeBase64(strings.Join(strings.Fields(res.Data.Value), ""))
	if err != nil {
		return Attachment{}, &AttachmentDecodeError{Note: note, FileName: name, Cause: err}
	}
	sum := md5.Sum(data)
	att := Attachment{
		ID:       hex.EncodeToString(sum[:]),
		FileName: name,
		MimeType: strings.TrimSpace(res.Mime),
		Data:     data,
	}
	att.Width, _ = strconv.Atoi(strings.TrimSpace(res.Width))
	att.Height, _ = strconv.Atoi(strings.TrimSpace(res.Height))
	return att, nil
}

// decodeBase64 tries standard then raw (no-padding) base64.
func decodeBase64(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(s)
	}
	return raw, err
}
