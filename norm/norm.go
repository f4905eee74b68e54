// Package norm assembles the final, client-facing record out of the raw
// fields accumulated by the extractors. Pure and idempotent: re-normalizing
// an already-normalized record changes nothing.
package norm

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/sosodev/duration"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/kapouer/url-inspector/types"
)

var (
	reClock         = regexp.MustCompile(`^\d{2,}:\d{2}:\d{2}$`)
	reCalendarDate  = regexp.MustCompile(`\d{4}-\d{1,2}-\d{1,2}`)
	reDigits        = regexp.MustCompile(`^\d+$`)
	reDigitsLetters = regexp.MustCompile(`^\d{1,6}[a-zA-Z]{1,4}$`)
	reLettersDigits = regexp.MustCompile(`[a-zA-Z]+\d+`)
	reNewlines      = regexp.MustCompile(`\n+`)
	reSpaces        = regexp.MustCompile(`\s+`)
)

// Process normalizes rec in place against the resolved request URL.
func Process(rec *types.Record, u *url.URL) {
	if rec.Site == "" {
		rec.Site = u.Hostname()
	}

	rec.Ext = strings.ToLower(rec.Ext)
	switch rec.Ext {
	case "jpeg":
		rec.Ext = "jpg"
	case "mpga":
		rec.Ext = "mp3"
	}

	if rec.Title != "" {
		rec.Title = HTMLToString(rec.Title)
	} else if u.Path != "" && u.Path != "/" {
		rec.Title = Lexize(path.Base(u.Path))
	}
	if rec.Description != "" {
		if rec.Title != "" {
			rec.Description = strings.TrimSpace(strings.Replace(rec.Description, rec.Title, "", 1))
		}
		rec.Description = strings.TrimSpace(firstLine(HTMLToString(rec.Description)))
	}
	rec.Site = CleanName(HTMLToString(rec.Site))
	rec.Author = CleanName(HTMLToString(rec.Author))

	applyMedia(rec)
	applyDuration(rec)

	if rec.Source == "" && rec.Embed != "" {
		rec.Source = rec.Embed
	}
	src := rec.Source
	if src == "" {
		src = rec.URL
	}
	switch {
	case rec.RawHTML != "":
		// externally supplied html: keep only a sanitized snippet, the
		// script source is surfaced separately
		rec.Type = types.TypeEmbed
		stripped, script := stripScripts(rec.RawHTML)
		rec.HTML = stripped
		if script != "" {
			rec.Script = script
		}
		rec.RawHTML = ""
	case rec.HTML != "":
		// already normalized
	case rec.Embed != "":
		rec.Type = types.TypeEmbed
		rec.HTML = `<iframe src="` + rec.Embed + `"></iframe>`
	case rec.Ext == "html":
		rec.Type = types.TypeLink
		rec.HTML = `<a href="` + src + `">` + rec.Title + `</a>`
	case rec.What == types.WhatImage:
		rec.Type = types.TypeImage
		rec.HTML = `<img src="` + src + `" alt="` + url.PathEscape(rec.Title) + `" />`
	case rec.What == types.WhatVideo:
		rec.Type = types.TypeVideo
		rec.HTML = `<video src="` + src + `"></video>`
	case rec.What == types.WhatAudio:
		rec.Type = types.TypeAudio
		rec.HTML = `<audio src="` + src + `"></audio>`
	default:
		rec.Type = types.TypeLink
		rec.HTML = `<a href="` + src + `" target="_blank">` + rec.Title + `</a>`
	}

	if rec.Image != nil {
		if rec.Thumbnail == "" && rec.What != types.WhatImage {
			if rec.Image.Type == "" || strings.HasPrefix(rec.Image.Type, "image/") {
				rec.Thumbnail = rec.Image.URL
			}
		}
		rec.Image = nil
	}
	rec.Audio = nil
	rec.Video = nil
	rec.Embed = ""
	rec.OEmbed = ""

	if rec.Date != "" {
		rec.Date = Date(rec.Date)
	}

	rec.Keywords = Keywords(rec.Title, rec.RawKeywords, rec.Keywords)
	rec.RawKeywords = ""

	if strings.Contains(rec.Title, "\n") {
		parts := reNewlines.Split(rec.Title, -1)
		rec.Title = parts[0]
		if rec.Description == "" && len(parts) > 1 {
			rec.Description = strings.Join(parts[1:], "\n")
		}
	}
}

// Origin renders the scheme://host form of u.
func Origin(u *url.URL) string {
	o := *u
	o.Path = ""
	o.RawQuery = ""
	o.Fragment = ""
	o.User = nil
	return o.String()
}

// applyMedia resolves the media reference matching the record's kind: its
// url becomes the source, and a described reference of a bridge or native
// mime yields an html snippet.
func applyMedia(rec *types.Record) {
	var ref *types.MediaRef
	switch rec.What {
	case types.WhatImage:
		ref, rec.Image = rec.Image, nil
	case types.WhatAudio:
		ref, rec.Audio = rec.Audio, nil
	case types.WhatVideo:
		ref, rec.Video = rec.Video, nil
	default:
		return
	}
	if ref == nil || ref.URL == "" {
		return
	}
	rec.Source = ref.URL
	if ref.Duration != "" {
		rec.RawDuration = ref.Duration
	}
	attrs := []string{`src="` + ref.URL + `"`}
	if ref.Width > 0 {
		attrs = append(attrs, `width="`+formatNum(ref.Width)+`"`)
		rec.Width = ref.Width
	}
	if ref.Height > 0 {
		attrs = append(attrs, `height="`+formatNum(ref.Height)+`"`)
		rec.Height = ref.Height
	}
	switch {
	case ref.Type == "":
		// untyped: the url is just a source to inspect
	case strings.HasPrefix(ref.Type, "text/html") || strings.HasSuffix(ref.Type, "/vnd.facebook.bridge"):
		rec.RawHTML = `<iframe ` + strings.Join(attrs, " ") + `></iframe>`
	case nativeMime(ref.Type, rec.What) && rec.Type == rec.What:
		if rec.What == types.WhatImage {
			rec.RawHTML = `<img ` + strings.Join(attrs, " ") + ` />`
		} else {
			rec.RawHTML = `<` + rec.What + ` ` + strings.Join(attrs, " ") + `></` + rec.What + `>`
		}
	}
}

func nativeMime(mimeType, what string) bool {
	sub, ok := strings.CutPrefix(mimeType, what+"/")
	if !ok || sub == "" {
		return false
	}
	return !strings.ContainsAny(sub, "/ ")
}

// applyDuration canonicalizes the duration to hh:mm:ss, estimating it from
// bitrate and size when possible. An unparsable duration is dropped.
func applyDuration(rec *types.Record) {
	raw := rec.RawDuration
	if raw == "" {
		raw = rec.Duration
	}
	rec.RawDuration = ""
	bitrate := rec.Bitrate
	rec.Bitrate = 0

	switch {
	case raw == "" && bitrate > 0 && rec.Size > 0:
		rate := bitrate * 1000 / 8
		rec.Duration = formatClock(float64(rec.Size) / rate)
	case raw == "":
		rec.Duration = ""
	case reClock.MatchString(raw):
		rec.Duration = raw
	default:
		if d, err := duration.Parse(raw); err == nil {
			rec.Duration = formatClock(d.ToTimeDuration().Seconds())
		} else if secs, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			rec.Duration = formatClock(float64(secs))
		} else {
			zap.S().Debugw("dropping unparsable duration", "duration", raw)
			rec.Duration = ""
		}
	}
}

func formatClock(seconds float64) string {
	total := int64(seconds)
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

func formatNum(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// Date canonicalizes any parsable date string to the ISO calendar date; a
// YYYY-M-D shaped substring is the fallback. Unparsable dates are dropped.
func Date(s string) string {
	if t, err := dateparse.ParseAny(s); err == nil {
		return t.Format("2006-01-02")
	}
	if m := reCalendarDate.FindString(s); m != "" {
		if t, err := dateparse.ParseAny(m); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

// Keywords splits raw comma/whitespace delimited keywords, drops numeric or
// short tokens and tokens already present in the title, and deduplicates by
// substring containment.
func Keywords(title, raw string, existing []string) []string {
	var tokens []string
	tokens = append(tokens, existing...)
	if raw != "" {
		tokens = append(tokens, reSpaces.Split(strings.ReplaceAll(raw, ",", " "), -1)...)
	}
	if len(tokens) == 0 {
		return nil
	}
	titleWords := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(title)) {
		titleWords[w] = true
	}
	var list []string
	for _, tok := range tokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if n, err := strconv.Atoi(tok); err == nil && strconv.Itoa(n) == tok {
			continue
		}
		if len(tok) < 4 || titleWords[tok] {
			continue
		}
		list = subPush(list, tok)
	}
	return list
}

// subPush collapses a keyword into the list: a token that contains (or is
// contained by) an existing one keeps only the longer form.
func subPush(list []string, str string) []string {
	for i, item := range list {
		if strings.Contains(item, str) {
			return list
		}
		if strings.Contains(str, item) {
			list[i] = str
			return list
		}
	}
	return append(list, str)
}

// HTMLToString strips markup and decodes entities out of a tag value.
func HTMLToString(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			b.Write(z.Text())
		}
	}
	return strings.TrimSpace(b.String())
}

// CleanName drops a leading @ and turns underscores into spaces.
func CleanName(s string) string {
	s = strings.TrimPrefix(s, "@")
	return strings.ReplaceAll(s, "_", " ")
}

// Lexize derives a human title from a file name.
func Lexize(s string) string {
	if parts := strings.Split(s, "."); len(parts) > 1 {
		if ext := parts[len(parts)-1]; len(ext) <= 4 {
			s = strings.Join(parts[:len(parts)-1], " ")
		}
	}
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")
	s = reSpaces.ReplaceAllString(s, " ")
	var words []string
	for _, word := range strings.Fields(s) {
		if reDigits.MatchString(word) {
			continue
		}
		if !reDigitsLetters.MatchString(word) && reLettersDigits.MatchString(word) {
			continue
		}
		if len(word) <= 1 {
			continue
		}
		words = append(words, word)
	}
	if len(words) == 0 {
		return s
	}
	out := strings.Join(words, " ")
	if len(out) <= 1 {
		return s
	}
	return out
}

// stripScripts removes script elements from an html snippet, returning the
// sanitized snippet and the last script src seen.
func stripScripts(snippet string) (string, string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snippet))
	if err != nil {
		zap.S().Warnw("cannot parse html snippet", "error", err)
		return snippet, ""
	}
	var script string
	scripts := doc.Find("script")
	if scripts.Length() == 0 {
		return snippet, ""
	}
	scripts.Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && src != "" {
			script = src
		}
		s.Remove()
	})
	out, err := doc.Find("body").Html()
	if err != nil {
		return snippet, script
	}
	return strings.TrimSpace(out), script
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
