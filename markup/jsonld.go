package markup

import (
	"encoding/json"
	"regexp"

	"go.uber.org/zap"

	"github.com/kapouer/url-inspector/types"
)

var jsonldMap = map[string]any{
	"name":          "title",
	"description":   "description",
	"embedurl":      "source",
	"thumbnailurl":  "thumbnail",
	"datepublished": "date",
	"uploaddate":    "date",
	"duration":      "duration",
	"keywords":      "keywords",
	"width":         "width",
	"height":        "height",
	"author":        map[string]any{"name": "author"},
	"publisher":     map[string]any{"name": "site"},
}

var (
	reVideo = regexp.MustCompile(`(?i)(^|/|:)(video|movie)`)
	reAudio = regexp.MustCompile(`(?i)(^|/|:)(audio|music)`)
	reImage = regexp.MustCompile(`(?i)(^|/|:)(image|photo)`)
	reNews  = regexp.MustCompile(`(?i)(^|/|:)newsarticle`)
)

// MapType reduces a schema.org/og/oEmbed type string to the coarse record
// type, or "" when it is not recognized.
func MapType(t string) string {
	switch {
	case t == "":
		return ""
	case reVideo.MatchString(t):
		return types.TypeVideo
	case reAudio.MatchString(t):
		return types.TypeAudio
	case reImage.MatchString(t):
		return types.TypeImage
	case reNews.MatchString(t):
		return types.TypeLink
	default:
		return ""
	}
}

// importJSONLD parses a json-ld script body (one object or an array) and
// merges the recognized object into the tag set at the highest priority.
// A malformed document is logged and ignored.
func importJSONLD(tags *types.TagSet, text string) {
	if text == "" {
		return
	}
	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		zap.S().Warnw("cannot parse json-ld, ignoring", "error", err)
		return
	}
	items, ok := parsed.([]any)
	if !ok {
		items = []any{parsed}
	}
	var found map[string]any
	var foundType string
	// descend into nested objects; the last recognized @type wins
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				walk(item)
			}
		case map[string]any:
			if typ, _ := t["@type"].(string); typ != "" {
				if mapped := MapType(typ); mapped != "" {
					found = t
					foundType = mapped
				}
			}
			for _, val := range t {
				switch val.(type) {
				case map[string]any, []any:
					walk(val)
				}
			}
		}
	}
	for _, item := range items {
		walk(item)
	}
	if found == nil {
		return
	}
	tags.Set("type", foundType, types.PriorityJSONLD)
	tags.Import(found, jsonldMap, types.PriorityJSONLD)
}
