package oembed

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kapouer/url-inspector/types"
)

func TestDecodeVideo(t *testing.T) {
	body := `{
		"type": "video",
		"title": "A Video",
		"author_name": "Jane",
		"provider_name": "Vimeo",
		"thumbnail_url": "https://i.example.com/th.jpg",
		"html": "<iframe src=\"https://player.example.com/v/1\"></iframe>",
		"width": 640,
		"height": 360,
		"duration": 238,
		"upload_date": "2019-03-25"
	}`
	rec := &types.Record{Size: 999}
	require.NoError(t, Decode(strings.NewReader(body), rec))

	assert.Equal(t, types.TypeVideo, rec.Type)
	assert.Equal(t, types.WhatVideo, rec.What)
	assert.Equal(t, "A Video", rec.Title)
	assert.Equal(t, "Jane", rec.Author)
	assert.Equal(t, "Vimeo", rec.Site)
	assert.Equal(t, "https://i.example.com/th.jpg", rec.Thumbnail)
	assert.Contains(t, rec.RawHTML, "player.example.com")
	assert.Equal(t, 640.0, rec.Width)
	assert.Equal(t, 360.0, rec.Height)
	assert.Equal(t, "238", rec.RawDuration)
	assert.Equal(t, "2019-03-25", rec.Date)

	// an embed renders as a document and cannot tell the remote size
	assert.Equal(t, "text/html", rec.Mime)
	assert.Equal(t, "html", rec.Ext)
	assert.True(t, rec.UseEmbed)
	assert.Zero(t, rec.Size)
}

func TestDecodePhotoBecomesImage(t *testing.T) {
	rec := &types.Record{}
	require.NoError(t, Decode(strings.NewReader(`{"type":"photo","url":"https://f.example.com/p.jpg"}`), rec))
	assert.Equal(t, types.TypeImage, rec.Type)
	assert.Equal(t, types.WhatImage, rec.What)
	assert.Equal(t, "https://f.example.com/p.jpg", rec.Source)
}

func TestDecodeRichBecomesPage(t *testing.T) {
	rec := &types.Record{}
	require.NoError(t, Decode(strings.NewReader(`{"type":"rich","title":"T"}`), rec))
	assert.Equal(t, "page", rec.Type)
}

func TestDecodeMalformed(t *testing.T) {
	rec := &types.Record{}
	assert.Error(t, Decode(strings.NewReader("<html>not json</html>"), rec))
}
