// Package markup extracts metadata tags from HTML and SVG byte streams in a
// single pass, without buffering the whole document.
package markup

import (
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/kapouer/url-inspector/types"
)

// Limiter suspends the byte cap of the underlying stream while the parser
// is inside <head>.
type Limiter interface {
	Unlimit(on bool)
}

// Options tune one extraction pass.
type Options struct {
	// OnlyFavicon stops parsing as soon as an icon link is captured.
	OnlyFavicon bool
	Limiter     Limiter
}

var metaProperty = map[string]string{
	"og:title":               "title",
	"og:description":         "description",
	"og:image":               "image",
	"og:audio":               "audio",
	"og:video":               "video",
	"og:url":                 "url",
	"og:type":                "type",
	"og:site_name":           "site",
	"og:video:url":           "video",
	"og:audio:url":           "audio",
	"og:image:url":           "image",
	"og:image:secure_url":    "image",
	"og:audio:secure_url":    "audio",
	"og:video:secure_url":    "video",
	"og:image:type":          "image:type",
	"og:audio:type":          "audio:type",
	"og:video:type":          "video:type",
	"og:image:width":         "image:width",
	"og:image:height":        "image:height",
	"og:video:width":         "video:width",
	"og:video:height":        "video:height",
	"og:video:duration":      "video:duration",
	"article:published_time": "date",
}

var metaName = map[string]string{
	"twitter:title":       "title",
	"twitter:description": "description",
	"twitter:image":       "thumbnail",
	"twitter:url":         "url",
	"twitter:site":        "site",
	"twitter:type":        "type",
	"twitter:creator":     "author",
	"author":              "author",
	"keywords":            "keywords",
}

var itemprops = map[string]string{
	"name":          "title",
	"description":   "description",
	"duration":      "duration",
	"image":         "image",
	"thumbnailurl":  "thumbnail",
	"embedurl":      "embed",
	"width":         "width",
	"height":        "height",
	"datepublished": "date",
}

var linkRel = map[string]string{
	"icon":          "icon",
	"shortcut icon": "icon",
	"canonical":     "canonical",
}

var linkType = map[string]string{
	"application/json+oembed": "oembed",
	"text/json+oembed":        "oembed",
}

// Elements that never carry content and close themselves.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

type htmlState struct {
	tags        *types.TagSet
	opts        Options
	depth       int
	schemaLevel int
	schemaSeen  bool
	pendingKey  string
	text        strings.Builder
	collecting  bool
}

// ExtractHTML consumes an HTML stream and accumulates tags. Parsing stops
// early once the first schema.org scope closes, or (favicon-only mode) once
// an icon link is seen. Parse errors are logged; tags captured before the
// error are kept.
func ExtractHTML(r io.Reader, tags *types.TagSet, opts Options) {
	st := &htmlState{tags: tags, opts: opts, schemaLevel: -1}
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				zap.S().Warnw("markup parse error", "error", err)
			}
			st.finish()
			return
		case html.StartTagToken, html.SelfClosingTagToken:
			raw := z.Token()
			if st.startTag(&raw, raw.Type == html.SelfClosingTagToken) {
				st.finish()
				return
			}
		case html.TextToken:
			if st.collecting {
				st.text.Write(z.Text())
			}
		case html.EndTagToken:
			raw := z.Token()
			if st.endTag(raw.Data) {
				st.finish()
				return
			}
		}
	}
}

// finish folds media sub-properties and maps the raw schema/og type onto
// the coarse record type; an unrecognized type is dropped.
func (st *htmlState) finish() {
	st.foldMediaRefs()
	raw := types.ToString(st.tags.Get("type"))
	if raw == "" {
		return
	}
	if mapped := MapType(raw); mapped != "" {
		st.tags.Set("type", mapped, types.PriorityJSONLD)
	} else {
		st.tags.Delete("type")
	}
}

// foldMediaRefs merges og-style media sub-properties (og:audio:type,
// og:video:width, ...) into a single described media reference.
func (st *htmlState) foldMediaRefs() {
	for _, key := range []string{"image", "audio", "video"} {
		ref := types.MediaRefFrom(st.tags.Get(key))
		found := false
		for _, attr := range []string{"type", "width", "height", "duration"} {
			sub := key + ":" + attr
			if !st.tags.Has(sub) {
				continue
			}
			val := st.tags.Get(sub)
			st.tags.Delete(sub)
			if ref == nil {
				continue
			}
			found = true
			switch attr {
			case "type":
				ref.Type = types.ToString(val)
			case "width":
				ref.Width = types.ToFloat(val)
			case "height":
				ref.Height = types.ToFloat(val)
			case "duration":
				ref.Duration = types.ToString(val)
			}
		}
		if found && ref.URL != "" {
			st.tags.Set(key, ref, types.PriorityMeta)
		}
	}
}

// startTag returns true when parsing should stop.
func (st *htmlState) startTag(tok *html.Token, selfClosing bool) bool {
	name := strings.ToLower(tok.Data)
	if name == "head" && st.opts.Limiter != nil {
		st.opts.Limiter.Unlimit(true)
	}
	if voidElements[name] {
		selfClosing = true
	}
	if !selfClosing {
		st.depth++
	}

	attrs := map[string]string{}
	for _, a := range tok.Attr {
		if a.Val != "" {
			attrs[strings.ToLower(a.Key)] = a.Val
		}
	}

	if v := attrs["itemtype"]; v != "" {
		if st.schemaLevel >= 0 && st.schemaLevel < st.depth {
			zap.S().Debugw("ignoring lower level schema", "itemtype", v, "depth", st.depth)
			return false
		}
		if ignoredSchema(v) {
			return false
		}
		// several itemtype declarations can appear; only the first one
		// claims the record type
		st.schemaLevel = st.depth
		if !st.schemaSeen {
			st.schemaSeen = true
			st.tags.Set("type", v, types.PriorityText)
		}
		return false
	}

	switch name {
	case "title", "h1":
		if !selfClosing {
			st.pendingKey = "title"
			st.text.Reset()
			st.collecting = true
		}
	case "script":
		if strings.EqualFold(attrs["type"], "application/ld+json") && !selfClosing {
			st.pendingKey = "jsonld"
			st.text.Reset()
			st.collecting = true
		}
	case "meta":
		key := ""
		if k, ok := metaProperty[strings.ToLower(attrs["property"])]; ok {
			key = k
		} else if k, ok := metaName[strings.ToLower(attrs["name"])]; ok {
			key = k
		} else if k, ok := itemprops[strings.ToLower(attrs["itemprop"])]; ok {
			key = k
		}
		if key != "" {
			st.tags.Set(key, attrs["content"], types.PriorityMeta)
		}
	case "link":
		key := ""
		if k, ok := linkRel[strings.ToLower(attrs["rel"])]; ok {
			key = k
		} else if k, ok := linkType[strings.ToLower(attrs["type"])]; ok {
			key = k
		}
		if key != "" && st.tags.Set(key, attrs["href"], types.PriorityLink) {
			if key == "icon" && st.opts.OnlyFavicon {
				return true
			}
		}
	default:
		if prop := strings.ToLower(attrs["itemprop"]); prop != "" {
			key, ok := itemprops[prop]
			if !ok {
				break
			}
			if content := attrs["content"]; content != "" {
				st.tags.Set(key, content, types.PriorityMeta)
			} else if !selfClosing {
				st.pendingKey = key
				st.text.Reset()
				st.collecting = true
			}
		}
	}
	return false
}

// endTag returns true when parsing should stop.
func (st *htmlState) endTag(name string) bool {
	name = strings.ToLower(name)
	if name == "head" && st.opts.Limiter != nil {
		st.opts.Limiter.Unlimit(false)
	}
	if st.schemaLevel >= 0 && st.schemaLevel == st.depth {
		// the schema scope that claimed the record just closed; nothing
		// past this point concerns the top-level object
		st.flushText()
		return true
	}
	st.depth--
	st.flushText()
	return false
}

func (st *htmlState) flushText() {
	if !st.collecting {
		return
	}
	text := strings.TrimSpace(st.text.String())
	if st.pendingKey == "jsonld" {
		importJSONLD(st.tags, text)
	} else if text != "" {
		st.tags.SetText(st.pendingKey, text)
	}
	st.collecting = false
	st.pendingKey = ""
	st.text.Reset()
}

func ignoredSchema(itemtype string) bool {
	i := strings.Index(itemtype, "/")
	if i < 0 {
		return false
	}
	for _, suffix := range []string{"Action", "Event", "Page", "Site", "Type", "Status", "Audience"} {
		if strings.HasSuffix(itemtype, suffix) {
			return true
		}
	}
	return false
}

// ExtractSVG reads the root svg element and derives dimensions from its
// viewBox attribute.
func ExtractSVG(r io.Reader, tags *types.TagSet) {
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				zap.S().Warnw("svg parse error", "error", err)
			}
			return
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if strings.ToLower(tok.Data) != "svg" {
				continue
			}
			tags.Set("type", types.TypeImage, types.PriorityMeta)
			for _, a := range tok.Attr {
				if strings.ToLower(a.Key) != "viewbox" {
					continue
				}
				parts := strings.Fields(a.Val)
				if len(parts) == 4 {
					if w, err := strconv.ParseFloat(parts[2], 64); err == nil {
						tags.Set("width", w, types.PriorityMeta)
					}
					if h, err := strconv.ParseFloat(parts[3], 64); err == nil {
						tags.Set("height", h, types.PriorityMeta)
					}
				}
			}
			return
		}
	}
}
