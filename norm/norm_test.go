package norm

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kapouer/url-inspector/types"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestProcessPageDefaults(t *testing.T) {
	rec := &types.Record{
		URL:   "https://example.com/articles/my-story.html",
		What:  types.WhatPage,
		Mime:  "text/html",
		Ext:   "HTML",
		Title: "Hello <b>World</b>",
	}
	Process(rec, mustParse(t, rec.URL))

	assert.Equal(t, "example.com", rec.Site)
	assert.Equal(t, "html", rec.Ext)
	assert.Equal(t, "Hello World", rec.Title)
	assert.Equal(t, types.TypeLink, rec.Type)
	assert.Equal(t, `<a href="https://example.com/articles/my-story.html">Hello World</a>`, rec.HTML)
}

func TestProcessTitleFromFilename(t *testing.T) {
	rec := &types.Record{
		URL:  "https://example.com/files/my_great-holiday_2019.mp3",
		What: types.WhatAudio,
		Ext:  "mpga",
	}
	Process(rec, mustParse(t, rec.URL))

	assert.Equal(t, "mp3", rec.Ext)
	assert.Equal(t, "my great holiday", rec.Title)
	assert.Equal(t, types.TypeAudio, rec.Type)
	assert.Equal(t, `<audio src="https://example.com/files/my_great-holiday_2019.mp3"></audio>`, rec.HTML)
}

func TestProcessDescriptionDropsTitle(t *testing.T) {
	rec := &types.Record{
		URL:         "https://example.com/a",
		What:        types.WhatPage,
		Ext:         "html",
		Title:       "My Title",
		Description: "My Title - the rest of it\nsecond line",
	}
	Process(rec, mustParse(t, rec.URL))
	assert.Equal(t, "- the rest of it", rec.Description)
}

func TestProcessAuthorAndSiteCleanup(t *testing.T) {
	rec := &types.Record{
		URL:    "https://example.com/a",
		What:   types.WhatPage,
		Ext:    "html",
		Title:  "T",
		Author: "@some_user",
		Site:   "Cool_Site",
	}
	Process(rec, mustParse(t, rec.URL))
	assert.Equal(t, "some user", rec.Author)
	assert.Equal(t, "Cool Site", rec.Site)
}

func TestProcessDurationSeconds(t *testing.T) {
	rec := &types.Record{
		URL:         "https://example.com/v.mp4",
		What:        types.WhatVideo,
		Ext:         "mp4",
		RawDuration: "238",
	}
	Process(rec, mustParse(t, rec.URL))
	assert.Equal(t, "00:03:58", rec.Duration)
}

func TestProcessDurationISO(t *testing.T) {
	rec := &types.Record{
		URL:         "https://example.com/v.mp4",
		What:        types.WhatVideo,
		Ext:         "mp4",
		RawDuration: "PT3M58S",
	}
	Process(rec, mustParse(t, rec.URL))
	assert.Equal(t, "00:03:58", rec.Duration)
}

func TestProcessDurationFromBitrate(t *testing.T) {
	rec := &types.Record{
		URL:     "https://example.com/a.mp3",
		What:    types.WhatAudio,
		Ext:     "mp3",
		Bitrate: 128,
		Size:    3840000,
	}
	Process(rec, mustParse(t, rec.URL))
	// 3840000 bytes at 16000 bytes per second
	assert.Equal(t, "00:04:00", rec.Duration)
	assert.Zero(t, rec.Bitrate)
}

func TestProcessDurationUnparsableDropped(t *testing.T) {
	rec := &types.Record{
		URL:         "https://example.com/v.mp4",
		What:        types.WhatVideo,
		Ext:         "mp4",
		RawDuration: "about an hour",
	}
	Process(rec, mustParse(t, rec.URL))
	assert.Empty(t, rec.Duration)
}

func TestDate(t *testing.T) {
	assert.Equal(t, "2019-03-25", Date("2019-03-25T10:11:12Z"))
	assert.Equal(t, "2019-03-25", Date("March 25, 2019"))
	assert.Equal(t, "2012-12-07", Date("published at 2012-12-7 somewhere"))
	assert.Empty(t, Date("no date here"))
}

func TestKeywordsFiltering(t *testing.T) {
	got := Keywords("Politics Today", "politics, politic, war, 2024, art, elections", nil)
	assert.Equal(t, []string{"politic", "elections"}, got)
}

func TestKeywordsCollapseToLonger(t *testing.T) {
	got := Keywords("", "politics, politic", nil)
	assert.Equal(t, []string{"politics"}, got)
}

func TestKeywordsSubstringDedup(t *testing.T) {
	got := Keywords("", "game, gamer, games", nil)
	// "game" folds into "gamer"; "games" shares no containment with it
	assert.Equal(t, []string{"gamer", "games"}, got)
}

func TestLexize(t *testing.T) {
	assert.Equal(t, "my great file", Lexize("my_great-file.mp3"))
	assert.Equal(t, "holiday picture", Lexize("holiday-picture-03042021.jpeg"))
	assert.Equal(t, "1080p trailer", Lexize("1080p-trailer.mp4"))
	// nothing survives filtering, keep the cleaned input
	assert.Equal(t, "12345678", Lexize("12345678"))
}

func TestHTMLToString(t *testing.T) {
	assert.Equal(t, "Hello World", HTMLToString("Hello <b>World</b>"))
	assert.Equal(t, "a & b", HTMLToString("a &amp; b"))
	assert.Equal(t, "plain", HTMLToString("  plain  "))
}

func TestProcessMediaRefBecomesSnippet(t *testing.T) {
	rec := &types.Record{
		URL:  "https://example.com/watch/1",
		What: types.WhatVideo,
		Type: types.TypeVideo,
		Mime: "text/html",
		Ext:  "html",
		Video: &types.MediaRef{
			URL:    "https://example.com/v.mp4",
			Type:   "video/mp4",
			Width:  640,
			Height: 360,
		},
		Title: "Clip",
	}
	Process(rec, mustParse(t, rec.URL))

	assert.Equal(t, types.TypeEmbed, rec.Type)
	assert.Equal(t, "https://example.com/v.mp4", rec.Source)
	assert.Equal(t, `<video src="https://example.com/v.mp4" width="640" height="360"></video>`, rec.HTML)
	assert.Equal(t, 640.0, rec.Width)
	assert.Nil(t, rec.Video)
}

func TestProcessMediaRefBridgeIframe(t *testing.T) {
	rec := &types.Record{
		URL:  "https://example.com/songs",
		What: types.WhatAudio,
		Mime: "text/html",
		Ext:  "html",
		Audio: &types.MediaRef{
			URL:  "https://example.com/player",
			Type: "text/html",
		},
		Title: "Songs",
	}
	Process(rec, mustParse(t, rec.URL))
	assert.Equal(t, types.TypeEmbed, rec.Type)
	assert.Equal(t, `<iframe src="https://example.com/player"></iframe>`, rec.HTML)
}

func TestProcessThumbnailFromImageRef(t *testing.T) {
	rec := &types.Record{
		URL:   "https://example.com/a",
		What:  types.WhatPage,
		Ext:   "html",
		Title: "T",
		Image: &types.MediaRef{URL: "https://example.com/og.jpg"},
	}
	Process(rec, mustParse(t, rec.URL))
	assert.Equal(t, "https://example.com/og.jpg", rec.Thumbnail)
	assert.Nil(t, rec.Image)
}

func TestProcessScriptStripping(t *testing.T) {
	rec := &types.Record{
		URL:     "https://twitter.com/user/status/1",
		What:    types.WhatPage,
		Ext:     "html",
		Title:   "T",
		RawHTML: `<blockquote class="twitter-tweet"><p>hi</p></blockquote><script async src="https://platform.twitter.com/widgets.js"></script>`,
	}
	Process(rec, mustParse(t, rec.URL))

	assert.Equal(t, types.TypeEmbed, rec.Type)
	assert.NotContains(t, rec.HTML, "<script")
	assert.Contains(t, rec.HTML, "twitter-tweet")
	assert.Equal(t, "https://platform.twitter.com/widgets.js", rec.Script)
	assert.Empty(t, rec.RawHTML)
}

func TestProcessEmbedFallback(t *testing.T) {
	rec := &types.Record{
		URL:   "https://example.com/a",
		What:  types.WhatPage,
		Ext:   "html",
		Title: "T",
		Embed: "https://example.com/embed/1",
	}
	Process(rec, mustParse(t, rec.URL))
	assert.Equal(t, types.TypeEmbed, rec.Type)
	assert.Equal(t, `<iframe src="https://example.com/embed/1"></iframe>`, rec.HTML)
	assert.Equal(t, "https://example.com/embed/1", rec.Source)
	assert.Empty(t, rec.Embed)
}

func TestProcessIdempotent(t *testing.T) {
	rec := &types.Record{
		URL:         "https://example.com/watch/1",
		What:        types.WhatVideo,
		Type:        types.TypeVideo,
		Mime:        "text/html",
		Ext:         "html",
		Title:       "Clip <i>one</i>",
		RawDuration: "238",
		RawKeywords: "skating, skate, 1999",
		Video:       &types.MediaRef{URL: "https://example.com/v.mp4", Type: "video/mp4"},
	}
	u := mustParse(t, rec.URL)
	Process(rec, u)
	first := *rec
	firstKeywords := append([]string(nil), rec.Keywords...)

	Process(rec, u)
	assert.Equal(t, first.Title, rec.Title)
	assert.Equal(t, first.Duration, rec.Duration)
	assert.Equal(t, first.HTML, rec.HTML)
	assert.Equal(t, first.Type, rec.Type)
	assert.Equal(t, first.Source, rec.Source)
	assert.Equal(t, firstKeywords, rec.Keywords)
}

func TestOrigin(t *testing.T) {
	assert.Equal(t, "https://example.com", Origin(mustParse(t, "https://example.com/deep/path?q=1#f")))
}
