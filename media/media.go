// Package media obtains EXIF-like tags from image/audio/video/file byte
// prefixes. The decoding engine is an injected collaborator; probe errors
// degrade the record but never fail a lookup.
package media

import (
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kapouer/url-inspector/types"
)

// Prober decodes a flat tag map out of a byte prefix of the given kind.
type Prober interface {
	Probe(kind types.Kind, r io.Reader) (map[string]any, error)
}

var mediaFieldMap = map[string]any{
	"imagewidth":        "width",
	"imageheight":       "height",
	"duration":          "duration",
	"format":            "mime",
	"mimetype":          "mime",
	"filetypeextension": "ext",
	"extension":         "ext",
	"title":             "title",
	"objectname":        "title",
	"audiobitrate":      "bitrate",
	"creator":           "author",
	"credit":            "author",
	"imagedescription":  "description",
	"description":       "description",
	"caption-abstract":  "description",
	"modifydate":        "date",
	"datetimecreated":   "date",
	"datetimeoriginal":  "date",
	"referenceurl":      "reference",
	"keywords":          "keywords",
}

var fileFieldMap = map[string]any{
	"mimetype":          "mime",
	"extension":         "ext",
	"filetypeextension": "ext",
	"title":             "title",
}

// Tags probes an image, audio or video stream and merges the decoded tags
// onto the record.
func Tags(rec *types.Record, kind types.Kind, r io.Reader, p Prober) {
	raw, err := p.Probe(kind, r)
	if err != nil {
		zap.S().Warnw("media probe failed", "kind", kind, "error", err)
		return
	}
	ts := types.NewTagSet()
	ts.Import(raw, mediaFieldMap, types.PriorityMeta)

	// an artist is folded into the title unless already part of it
	title := types.ToString(ts.Get("title"))
	if artist := types.ToString(anyOf(raw, "artist")); artist != "" && title != "" &&
		!strings.Contains(title, artist) {
		ts.Set("title", title+" - "+artist, types.PriorityMeta)
	}
	if date := types.ToString(ts.Get("date")); date != "" {
		if parsed := parseExifDate(date); parsed != "" {
			ts.Set("date", parsed, types.PriorityMeta)
		} else {
			ts.Delete("date")
		}
	}
	ts.Apply(rec)

	if rec.Thumbnail == "" {
		if pic := types.ToString(anyOf(raw, "picture")); pic != "" {
			rec.Thumbnail = pic
		}
	}
}

// File probes a generic file stream, refining mime and extension.
func File(rec *types.Record, r io.Reader, p Prober) {
	raw, err := p.Probe(types.KindFile, r)
	if err != nil {
		zap.S().Warnw("file probe failed", "error", err)
		return
	}
	ts := types.NewTagSet()
	ts.Import(raw, fileFieldMap, types.PriorityMeta)
	ts.Apply(rec)
}

func anyOf(raw map[string]any, key string) any {
	for k, v := range raw {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

// parseExifDate converts "2012:12:07 04:24:19" style timestamps to ISO.
func parseExifDate(s string) string {
	date, clock, found := strings.Cut(s, " ")
	if found {
		s = strings.ReplaceAll(date, ":", "-") + "T" + clock
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02T15:04:05")
		}
	}
	return ""
}
