package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLenientMarkdown_Todos(t *testing.T) {
	md, err := lenientMarkdown(`<en-note><div><en-todo checked="true"/>Buy milk</div><div><en-todo/>Eggs`, nil)
	require.NoError(t, err)
	assert.Contains(t, md, "[x] Buy milk")
	assert.Contains(t, md, "[ ] Eggs")
}

func TestLenientMarkdown_Media(t *testing.T) {
	res := fakeResolver{"abc": {Name: "a.png", Path: "Note/a.png", IsImage: true}}
	md, err := lenientMarkdown(`<en-note><div>see <en-media hash="ABC" type="image/png"/> here<div>`, res)
	require.NoError(t, err)
	assert.Contains(t, md, "![a.png](Note/a.png)")
	assert.Contains(t, md, "here")
}

func TestLenientMarkdown_UnresolvedMediaAndDataImages(t *testing.T) {
	md, err := lenientMarkdown(`<en-note><p>x <en-media hash="zzz"/><img src="data:image/png;base64,AAAA"> y</p>`, nil)
	require.NoError(t, err)
	assert.NotContains(t, md, "data:")
	assert.NotContains(t, md, "zzz")
	assert.Contains(t, md, "x")
	assert.Contains(t, md, "y")
}

func TestLenientMarkdown_StripsEnvelope(t *testing.T) {
	md, err := lenientMarkdown(`<?xml version="1.0" encoding="UTF-8"?><!DOCTYPE en-note SYSTEM "http://xml.evernote.com/pub/enml2.dtd"><en-note><b>bold</b> <i>it`, nil)
	require.NoError(t, err)
	assert.Equal(t, "**bold** *it*\n", md)
}
