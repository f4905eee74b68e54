package types

import (
	"strconv"
	"strings"
)

// Source priorities. A field already set by a higher-priority source is
// never overwritten by a lower one; at equal priority the last write wins,
// except text content which only fills unset fields.
const (
	PriorityText   = 1
	PriorityLink   = 2
	PriorityMeta   = 3
	PriorityJSONLD = 4
)

// TagSet accumulates normalized field values during one extraction pass.
type TagSet struct {
	values     map[string]any
	priorities map[string]int
}

func NewTagSet() *TagSet {
	return &TagSet{
		values:     map[string]any{},
		priorities: map[string]int{},
	}
}

// Set writes val under key when prio is at least as high as the priority of
// the previous write. Returns whether the write happened.
func (t *TagSet) Set(key string, val any, prio int) bool {
	if val == nil || val == "" {
		return false
	}
	if prio < t.priorities[key] {
		return false
	}
	t.priorities[key] = prio
	t.values[key] = val
	return true
}

// SetText writes element text content under key, but only when no other
// source has claimed the field yet.
func (t *TagSet) SetText(key, val string) bool {
	if val == "" || t.priorities[key] != 0 {
		return false
	}
	t.priorities[key] = PriorityText
	t.values[key] = val
	return true
}

// Delete removes an accumulated field.
func (t *TagSet) Delete(key string) {
	delete(t.values, key)
	delete(t.priorities, key)
}

// Get returns the raw accumulated value.
func (t *TagSet) Get(key string) any {
	return t.values[key]
}

// Has reports whether key was written.
func (t *TagSet) Has(key string) bool {
	_, ok := t.values[key]
	return ok
}

// Len returns the number of accumulated fields.
func (t *TagSet) Len() int {
	return len(t.values)
}

// Values exposes the accumulated map, for tests and diagnostics.
func (t *TagSet) Values() map[string]any {
	return t.values
}

// Import renames and merges a flat or nested key-value map into the tag set
// under fieldMap, at the given priority. fieldMap values are either a target
// field name or a nested map to descend into (e.g. author -> {name: author}).
// List values with a common target are joined with ", ".
func (t *TagSet) Import(src map[string]any, fieldMap map[string]any, prio int) {
	for tag, val := range src {
		if val == nil {
			continue
		}
		var target any = strings.ToLower(tag)
		if fieldMap != nil {
			target = fieldMap[strings.ToLower(tag)]
			if target == nil {
				continue
			}
		}
		list, ok := val.([]any)
		if !ok {
			list = []any{val}
		}
		switch key := target.(type) {
		case string:
			var parts []string
			for _, item := range list {
				if s := ToString(item); s != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				t.Set(key, strings.Join(parts, ", "), prio)
			}
		case map[string]any:
			for _, item := range list {
				if sub, ok := item.(map[string]any); ok {
					t.Import(sub, key, prio)
				}
			}
		}
	}
}

// Apply merges the accumulated tags onto a Record. Raw shapes (media refs,
// html, keywords) land on the Record's transient fields for the normalizer.
func (t *TagSet) Apply(r *Record) {
	for key, val := range t.values {
		switch key {
		case "title":
			r.Title = ToString(val)
		case "description":
			r.Description = ToString(val)
		case "author":
			r.Author = ToString(val)
		case "site":
			r.Site = ToString(val)
		case "date":
			r.Date = ToString(val)
		case "type":
			r.Type = ToString(val)
		case "url":
			if s := ToString(val); s != "" {
				r.URL = s
			}
		case "keywords":
			r.RawKeywords = ToString(val)
		case "image":
			r.Image = MediaRefFrom(val)
		case "audio":
			r.Audio = MediaRefFrom(val)
		case "video":
			r.Video = MediaRefFrom(val)
		case "thumbnail":
			r.Thumbnail = ToString(val)
		case "icon":
			r.Icon = ToString(val)
		case "canonical":
			r.Canonical = ToString(val)
		case "oembed":
			r.OEmbed = ToString(val)
		case "embed":
			r.Embed = ToString(val)
		case "source":
			r.Source = ToString(val)
		case "html":
			r.RawHTML = ToString(val)
		case "script":
			r.Script = ToString(val)
		case "width":
			r.Width = ToFloat(val)
		case "height":
			r.Height = ToFloat(val)
		case "duration":
			r.RawDuration = ToString(val)
		case "bitrate":
			r.Bitrate = ToFloat(val)
		case "reference":
			r.Reference = ToString(val)
		case "mime":
			r.Mime = ToString(val)
		case "ext":
			r.Ext = ToString(val)
		case "size":
			if n := ToFloat(val); n > 0 {
				r.Size = int64(n)
			}
		}
	}
}

// ToString renders a scalar tag value as a string.
func ToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return ""
	}
}

// ToFloat parses a numeric tag value, returning 0 when it cannot.
func ToFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
