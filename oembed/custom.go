package oembed

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/kapouer/url-inspector/types"
)

// Curated overrides for sites that need special handling beyond the
// generic oEmbed protocol.

var (
	reTweetDate  = regexp.MustCompile(`>([\w,\s]+)</a></blockquote>`)
	reTweetTitle = regexp.MustCompile(`\((@\w+)\)`)
	reTweetText  = regexp.MustCompile(`(?s)<p[^>]*>(.*?)(<a\s|</p>)`)
	reSpaces     = regexp.MustCompile(`\s+`)
	reYoutubeID  = regexp.MustCompile(`^/[a-zA-Z0-9_-]+$`)
)

var custom = []*Provider{
	{
		Name: "maps.google.com",
		Endpoints: []*Endpoint{{
			Regexps: []*regexp.Regexp{
				regexp.MustCompile(`.*google\.[^/]+/maps/place/.+`),
				regexp.MustCompile(`goo\.gl/maps/.+`),
			},
			Builder: func(u *url.URL, rec *types.Record) {
				rec.Type = types.TypeEmbed
				rec.RawHTML = `<iframe src="//maps.google.com/maps?t=m&q=` + url.QueryEscape(rec.Title) + `&output=embed"></iframe>`
				rec.Site = "Google Maps"
				parts := strings.Split(rec.Title, "·")
				if len(parts) >= 2 {
					rec.Title = strings.TrimSpace(parts[0])
					rec.Description = strings.Join(parts[1:], "·")
				}
			},
		}},
	},
	{
		Name: "youtube.com",
		Endpoints: []*Endpoint{{
			Schemes: []string{`https://*.youtube.com/watch\?*`},
			UA:      "AdsBot-Google",
		}, {
			Schemes: []string{
				"https://*.youtube.com/v/*",
				"https://*.youtube.com/embed/*",
				"https://youtu.be/*",
			},
			UA:  "AdsBot-Google",
			URL: "https://www.youtube.com/oembed",
			Rewrite: func(u *url.URL) bool {
				if u.Path == "/watch" {
					return false
				}
				var videoID string
				switch {
				case strings.HasPrefix(u.Path, "/embed/"):
					videoID = u.Path[strings.LastIndex(u.Path, "/")+1:]
				case u.Hostname() == "youtu.be" && reYoutubeID.MatchString(u.Path):
					videoID = u.Path[1:]
				}
				if videoID == "" {
					return false
				}
				u.Host = "www.youtube.com"
				u.Path = "/watch"
				u.RawQuery = "v=" + url.QueryEscape(videoID)
				return true
			},
		}},
	},
	{
		Name: "twitter.com",
		Endpoints: []*Endpoint{{
			Schemes: []string{"https://twitter.com/*/status/*"},
			Last:    boolPtr(false),
			Builder: func(u *url.URL, rec *types.Record) {
				if m := reTweetDate.FindStringSubmatch(rec.RawHTML); m != nil {
					rec.Date = strings.TrimSpace(m[1])
				}
				rec.Icon = "https://abs.twimg.com/favicons/twitter.2.ico"
				if m := reTweetTitle.FindStringSubmatch(rec.RawHTML); m != nil {
					rec.Title = m[1]
				}
				if m := reTweetText.FindStringSubmatch(rec.RawHTML); m != nil {
					text := strings.ReplaceAll(m[1], "<br>", " ")
					rec.Description = reSpaces.ReplaceAllString(text, " ")
				}
			},
		}},
	},
	{
		Name: "instagram",
		Endpoints: []*Endpoint{{
			Schemes: []string{
				"http://instagram.com/p/*",
				"http://instagr.am/p/*",
				"http://www.instagram.com/p/*",
				"http://www.instagr.am/p/*",
				"https://instagram.com/p/*",
				"https://instagr.am/p/*",
				"https://www.instagram.com/p/*",
				"https://www.instagr.am/p/*",
				"http://www.instagram.com/tv/*",
				"https://www.instagram.com/tv/*",
				"http://www.instagram.com/reel/*",
				"https://www.instagram.com/reel/*",
				"https://instagram.com/reel/*",
			},
			URL: "https://api.instagram.com/oembed/",
			Builder: func(u *url.URL, rec *types.Record) {
				rec.Icon = "https://www.instagram.com/favicon.ico"
			},
		}},
	},
}

// CustomProviders returns the built-in curated provider table.
func CustomProviders() []*Provider {
	return custom
}

func boolPtr(b bool) *bool {
	return &b
}
