package media

import (
	"bytes"
	"image"
	"image/png"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kapouer/url-inspector/types"
)

type stubProber struct {
	tags map[string]any
	err  error
}

func (s stubProber) Probe(kind types.Kind, r io.Reader) (map[string]any, error) {
	return s.tags, s.err
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestSnifferImageDimensions(t *testing.T) {
	data := pngBytes(t, 12, 8)
	tags, err := Sniffer{}.Probe(types.KindImage, bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, 12.0, tags["imagewidth"])
	assert.Equal(t, 8.0, tags["imageheight"])
	assert.Equal(t, "image/png", tags["mimetype"])
	assert.Equal(t, "png", tags["filetypeextension"])
}

func TestSnifferFallsBackToContentSniffing(t *testing.T) {
	tags, err := Sniffer{}.Probe(types.KindFile, bytes.NewReader([]byte("%PDF-1.4 fake pdf body")))
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", tags["mimetype"])
	assert.Equal(t, "pdf", tags["extension"])
}

func TestSnifferEmptyPrefix(t *testing.T) {
	_, err := Sniffer{}.Probe(types.KindImage, bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestTagsImageOntoRecord(t *testing.T) {
	rec := &types.Record{What: types.WhatImage}
	Tags(rec, types.KindImage, bytes.NewReader(pngBytes(t, 32, 16)), Sniffer{})

	assert.Equal(t, 32.0, rec.Width)
	assert.Equal(t, 16.0, rec.Height)
	assert.Equal(t, "image/png", rec.Mime)
	assert.Equal(t, "png", rec.Ext)
}

func TestTagsArtistFolding(t *testing.T) {
	rec := &types.Record{}
	Tags(rec, types.KindAudio, bytes.NewReader(nil), stubProber{tags: map[string]any{
		"title":  "Song",
		"artist": "Band",
	}})
	assert.Equal(t, "Song - Band", rec.Title)

	rec = &types.Record{}
	Tags(rec, types.KindAudio, bytes.NewReader(nil), stubProber{tags: map[string]any{
		"title":  "Song by Band",
		"artist": "Band",
	}})
	assert.Equal(t, "Song by Band", rec.Title)
}

func TestTagsExifDate(t *testing.T) {
	rec := &types.Record{}
	Tags(rec, types.KindImage, bytes.NewReader(nil), stubProber{tags: map[string]any{
		"datetimeoriginal": "2012:12:07 04:24:19",
	}})
	assert.Equal(t, "2012-12-07T04:24:19", rec.Date)

	rec = &types.Record{}
	Tags(rec, types.KindImage, bytes.NewReader(nil), stubProber{tags: map[string]any{
		"modifydate": "not a date",
	}})
	assert.Empty(t, rec.Date)
}

func TestTagsPictureThumbnail(t *testing.T) {
	rec := &types.Record{}
	Tags(rec, types.KindAudio, bytes.NewReader(nil), stubProber{tags: map[string]any{
		"picture": "data:image/jpeg;base64,AAAA",
	}})
	assert.Equal(t, "data:image/jpeg;base64,AAAA", rec.Thumbnail)
}

func TestTagsProbeErrorDegrades(t *testing.T) {
	rec := &types.Record{Title: "kept"}
	Tags(rec, types.KindImage, bytes.NewReader(nil), stubProber{err: assert.AnError})
	assert.Equal(t, "kept", rec.Title)
}

func TestFileRefinesMime(t *testing.T) {
	rec := &types.Record{Mime: "application/octet-stream"}
	File(rec, bytes.NewReader(nil), stubProber{tags: map[string]any{
		"mimetype":  "application/pdf",
		"extension": "pdf",
	}})
	assert.Equal(t, "application/pdf", rec.Mime)
	assert.Equal(t, "pdf", rec.Ext)
}
