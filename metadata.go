// Note metadata rendering: a trailing Markdown section or leading YAML
// frontmatter.
package main

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MetadataStyle selects where and how note metadata is rendered.
type MetadataStyle string

const (
	StyleSection     MetadataStyle = "section"
	StyleFrontmatter MetadataStyle = "frontmatter"
)

// NoteMeta is the metadata part of a Note.
type NoteMeta struct {
	Title     string
	Author    string
	SourceURL string
	Created   time.Time
	Updated   *time.Time
	Tags      []string
}

// frontmatterFields fixes the key order of the YAML block.
type frontmatterFields struct {
	Title     string     `yaml:"title"`
	Author    string     `yaml:"author,omitempty"`
	SourceURL string     `yaml:"source_url,omitempty"`
	Created   *time.Time `yaml:"created,omitempty"`
	Updated   *time.Time `yaml:"updated,omitempty"`
	Tags      []string   `yaml:"tags,omitempty"`
}

// formatMetadata renders meta in the given style with timestamps in loc.
// Optional fields that are empty are left out.
func formatMetadata(meta NoteMeta, style MetadataStyle, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.UTC
	}
	switch style {
	case StyleFrontmatter:
		return formatFrontmatter(meta, loc)
	case StyleSection, "":
		return formatSection(meta, loc), nil
	}
	return "", fmt.Errorf("unknown metadata style %q", style)
}

func formatFrontmatter(meta NoteMeta, loc *time.Location) (string, error) {
	f := frontmatterFields{
		Title:     meta.Title,
		Author:    meta.Author,
		SourceURL: meta.SourceURL,
		Tags:      meta.Tags,
	}
	if !meta.Created.IsZero() {
		t := meta.Created.In(loc)
		f.Created = &t
	}
	if meta.Updated != nil && !meta.Updated.IsZero() {
		t := meta.Updated.In(loc)
		f.Updated = &t
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return "", fmt.Errorf("encoding frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encoding frontmatter: %w", err)
	}
	buf.WriteString("---")
	return buf.String(), nil
}

func formatSection(meta NoteMeta, loc *time.Location) string {
	var st RenderState
	var b strings.Builder
	b.WriteString("## Note metadata\n\n")
	item := func(key, value string) {
		if value != "" {
			fmt.Fprintf(&b, "- %s: %s\n", key, value)
		}
	}
	item("Title", escapeText(meta.Title, st))
	item("Author", escapeText(meta.Author, st))
	if meta.SourceURL != "" {
		item("Source URL", autolink(meta.SourceURL, st))
	}
	if !meta.Created.IsZero() {
		item("Created", meta.Created.In(loc).Format(time.RFC3339))
	}
	if meta.Updated != nil && !meta.Updated.IsZero() {
		item("Updated", meta.Updated.In(loc).Format(time.RFC3339))
	}
	if len(meta.Tags) > 0 {
		tags := make([]string, len(meta.Tags))
		for i, t := range meta.Tags {
			tags[i] = escapeText(t, st)
		}
		item("Tags", strings.Join(tags, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// autolink wraps a URL in angle brackets when it can be; otherwise the text
// is escaped.
func autolink(u string, st RenderState) string {
	if strings.ContainsAny(u, " <>\n") || !strings.Contains(u, ":") {
		return escapeText(u, st)
	}
	return "<" + u + ">"
}
