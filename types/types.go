package types

import (
	"mime"
	"strings"
)

// What values classify the resource itself, Type values classify how it
// should be rendered.
const (
	WhatImage = "image"
	WhatAudio = "audio"
	WhatVideo = "video"
	WhatPage  = "page"
	WhatFile  = "file"

	TypeImage   = "image"
	TypeAudio   = "audio"
	TypeVideo   = "video"
	TypeLink    = "link"
	TypeEmbed   = "embed"
	TypeArchive = "archive"
)

// Kind selects the extractor a response body is dispatched to.
type Kind string

const (
	KindSVG     Kind = "svg"
	KindImage   Kind = "image"
	KindAudio   Kind = "audio"
	KindVideo   Kind = "video"
	KindHTML    Kind = "html"
	KindEmbed   Kind = "embed"
	KindArchive Kind = "archive"
	KindFile    Kind = "file"
)

// Record is the normalized metadata describing one resource.
// The json-tagged fields form the public result; the Raw* tail carries
// values between extraction and normalization and is cleared by the
// normalizer.
type Record struct {
	URL         string   `json:"url,omitempty"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Author      string   `json:"author,omitempty"`
	Site        string   `json:"site,omitempty"`
	Date        string   `json:"date,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	What        string   `json:"what,omitempty"`
	Type        string   `json:"type,omitempty"`
	Mime        string   `json:"mime,omitempty"`
	Ext         string   `json:"ext,omitempty"`
	Size        int64    `json:"size,omitempty"`
	Width       float64  `json:"width,omitempty"`
	Height      float64  `json:"height,omitempty"`
	Duration    string   `json:"duration,omitempty"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
	Icon        string   `json:"icon,omitempty"`
	HTML        string   `json:"html,omitempty"`
	Script      string   `json:"script,omitempty"`
	Source      string   `json:"source,omitempty"`

	RawHTML     string    `json:"-"`
	RawKeywords string    `json:"-"`
	RawDuration string    `json:"-"`
	Image       *MediaRef `json:"-"`
	Audio       *MediaRef `json:"-"`
	Video       *MediaRef `json:"-"`
	Embed       string    `json:"-"`
	OEmbed      string    `json:"-"`
	Canonical   string    `json:"-"`
	Bitrate     float64   `json:"-"`
	Reference   string    `json:"-"`
	UseEmbed    bool      `json:"-"`
}

// FillFrom copies fields from other into r wherever r has no value yet.
// Used when merging a page inspection under an oEmbed result: the fields
// already present on r win.
func (r *Record) FillFrom(other *Record) {
	if other == nil {
		return
	}
	fillStr(&r.URL, other.URL)
	fillStr(&r.Title, other.Title)
	fillStr(&r.Description, other.Description)
	fillStr(&r.Author, other.Author)
	fillStr(&r.Site, other.Site)
	fillStr(&r.Date, other.Date)
	fillStr(&r.What, other.What)
	fillStr(&r.Type, other.Type)
	fillStr(&r.Mime, other.Mime)
	fillStr(&r.Ext, other.Ext)
	fillStr(&r.Duration, other.Duration)
	fillStr(&r.Thumbnail, other.Thumbnail)
	fillStr(&r.Icon, other.Icon)
	fillStr(&r.HTML, other.HTML)
	fillStr(&r.Script, other.Script)
	fillStr(&r.Source, other.Source)
	if len(r.Keywords) == 0 {
		r.Keywords = other.Keywords
	}
	if r.Size == 0 {
		r.Size = other.Size
	}
	if r.Width == 0 {
		r.Width = other.Width
	}
	if r.Height == 0 {
		r.Height = other.Height
	}
}

func fillStr(dst *string, src string) {
	if *dst == "" {
		*dst = src
	}
}

// MediaRef is an og:image/og:audio/og:video style reference: either a bare
// URL or a described object. The shape is resolved once at ingestion.
type MediaRef struct {
	URL      string
	Type     string
	Width    float64
	Height   float64
	Duration string
}

// MediaRefFrom builds a MediaRef from a raw tag value, which may be a
// string, a map, or a list of either (the first entry wins).
func MediaRefFrom(v any) *MediaRef {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return &MediaRef{URL: t}
	case *MediaRef:
		return t
	case []any:
		if len(t) == 0 {
			return nil
		}
		return MediaRefFrom(t[0])
	case map[string]any:
		ref := &MediaRef{}
		for k, val := range t {
			switch strings.ToLower(k) {
			case "url", "contenturl":
				ref.URL, _ = val.(string)
			case "type", "encodingformat":
				ref.Type, _ = val.(string)
			case "width":
				ref.Width = ToFloat(val)
			case "height":
				ref.Height = ToFloat(val)
			case "duration":
				ref.Duration = ToString(val)
			}
		}
		if ref.URL == "" {
			return nil
		}
		return ref
	default:
		return nil
	}
}

// MimeInfo is a parsed content-type.
type MimeInfo struct {
	Type    string
	Subtype string
	Suffix  string
	Params  map[string]string
}

// ParseMime parses a content-type header value. A malformed or empty value
// yields a zero MimeInfo.
func ParseMime(s string) MimeInfo {
	if s == "" {
		return MimeInfo{}
	}
	mediatype, params, err := mime.ParseMediaType(s)
	if err != nil {
		return MimeInfo{}
	}
	parts := strings.SplitN(mediatype, "/", 2)
	if len(parts) != 2 {
		return MimeInfo{}
	}
	info := MimeInfo{Type: parts[0], Subtype: parts[1], Params: params}
	if i := strings.LastIndex(info.Subtype, "+"); i >= 0 {
		info.Suffix = info.Subtype[i+1:]
	}
	return info
}

func (m MimeInfo) IsZero() bool {
	return m.Type == ""
}

// Format renders the mime as type/subtype, without parameters.
func (m MimeInfo) Format() string {
	if m.IsZero() {
		return ""
	}
	return m.Type + "/" + m.Subtype
}

// Charset returns the charset parameter, lower-cased.
func (m MimeInfo) Charset() string {
	return strings.ToLower(m.Params["charset"])
}
