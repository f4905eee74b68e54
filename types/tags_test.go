package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagSetPriorities(t *testing.T) {
	ts := NewTagSet()

	assert.True(t, ts.SetText("title", "element text"))
	assert.Equal(t, "element text", ts.Get("title"))

	// a meta tag beats element text
	assert.True(t, ts.Set("title", "og title", PriorityMeta))
	assert.Equal(t, "og title", ts.Get("title"))

	// a lower priority write is refused
	assert.False(t, ts.Set("title", "link title", PriorityLink))
	assert.Equal(t, "og title", ts.Get("title"))

	// at equal priority the last write wins
	assert.True(t, ts.Set("title", "twitter title", PriorityMeta))
	assert.Equal(t, "twitter title", ts.Get("title"))

	// text content never overwrites a claimed field
	assert.False(t, ts.SetText("title", "late text"))
	assert.Equal(t, "twitter title", ts.Get("title"))
}

func TestTagSetSetRejectsEmpty(t *testing.T) {
	ts := NewTagSet()
	assert.False(t, ts.Set("title", "", PriorityMeta))
	assert.False(t, ts.Set("title", nil, PriorityMeta))
	assert.False(t, ts.Has("title"))
}

func TestTagSetDelete(t *testing.T) {
	ts := NewTagSet()
	ts.Set("type", "unknown-thing", PriorityMeta)
	ts.Delete("type")
	assert.False(t, ts.Has("type"))
	// the slot is reclaimable at any priority again
	assert.True(t, ts.SetText("type", "text"))
}

func TestTagSetImport(t *testing.T) {
	ts := NewTagSet()
	ts.Import(map[string]any{
		"Name":         "A Video",
		"thumbnailUrl": "https://example.com/th.jpg",
		"author":       map[string]any{"name": "Jane Doe"},
		"keywords":     []any{"one", "two"},
		"ignored":      "dropped",
	}, map[string]any{
		"name":         "title",
		"thumbnailurl": "thumbnail",
		"author":       map[string]any{"name": "author"},
		"keywords":     "keywords",
	}, PriorityJSONLD)

	assert.Equal(t, "A Video", ts.Get("title"))
	assert.Equal(t, "https://example.com/th.jpg", ts.Get("thumbnail"))
	assert.Equal(t, "Jane Doe", ts.Get("author"))
	assert.Equal(t, "one, two", ts.Get("keywords"))
	assert.False(t, ts.Has("ignored"))
}

func TestTagSetApply(t *testing.T) {
	ts := NewTagSet()
	ts.Set("title", "T", PriorityMeta)
	ts.Set("image", map[string]any{"url": "https://example.com/i.jpg", "width": "640", "height": 360.0}, PriorityMeta)
	ts.Set("html", "<iframe src='x'></iframe>", PriorityMeta)
	ts.Set("duration", "PT1M", PriorityMeta)
	ts.Set("keywords", "a, b", PriorityMeta)

	rec := &Record{}
	ts.Apply(rec)

	assert.Equal(t, "T", rec.Title)
	require.NotNil(t, rec.Image)
	assert.Equal(t, "https://example.com/i.jpg", rec.Image.URL)
	assert.Equal(t, 640.0, rec.Image.Width)
	assert.Equal(t, 360.0, rec.Image.Height)
	assert.Equal(t, "<iframe src='x'></iframe>", rec.RawHTML)
	assert.Equal(t, "PT1M", rec.RawDuration)
	assert.Equal(t, "a, b", rec.RawKeywords)
	assert.Empty(t, rec.HTML)
	assert.Empty(t, rec.Duration)
}

func TestMediaRefFrom(t *testing.T) {
	assert.Nil(t, MediaRefFrom(nil))
	assert.Nil(t, MediaRefFrom(""))
	assert.Nil(t, MediaRefFrom(map[string]any{"width": 10.0}))

	ref := MediaRefFrom("https://example.com/v.mp4")
	require.NotNil(t, ref)
	assert.Equal(t, "https://example.com/v.mp4", ref.URL)
	assert.Empty(t, ref.Type)

	ref = MediaRefFrom([]any{map[string]any{
		"url":  "https://example.com/v.mp4",
		"type": "video/mp4",
	}})
	require.NotNil(t, ref)
	assert.Equal(t, "video/mp4", ref.Type)
}

func TestParseMime(t *testing.T) {
	m := ParseMime("text/html; charset=ISO-8859-1")
	assert.Equal(t, "text", m.Type)
	assert.Equal(t, "html", m.Subtype)
	assert.Equal(t, "iso-8859-1", m.Charset())
	assert.Equal(t, "text/html", m.Format())

	m = ParseMime("image/svg+xml")
	assert.Equal(t, "svg+xml", m.Subtype)
	assert.Equal(t, "xml", m.Suffix)

	assert.True(t, ParseMime("").IsZero())
	assert.True(t, ParseMime("not a mime").IsZero())
}

func TestRecordFillFrom(t *testing.T) {
	rec := &Record{Title: "embed title", Type: TypeEmbed}
	rec.FillFrom(&Record{
		Title:       "page title",
		Description: "page description",
		Width:       640,
	})
	assert.Equal(t, "embed title", rec.Title)
	assert.Equal(t, "page description", rec.Description)
	assert.Equal(t, 640.0, rec.Width)
}
