// Package oembed resolves oEmbed provider endpoints for a target URL and
// decodes oEmbed responses.
package oembed

import (
	_ "embed"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	ierrors "github.com/kapouer/url-inspector/internal/errors"
	"github.com/kapouer/url-inspector/types"
)

// BuilderFunc synthesizes record fields directly from an already-fetched
// response, bypassing the generic decode path.
type BuilderFunc func(u *url.URL, rec *types.Record)

// RedirectFunc may rewrite the target URL; when it returns true the caller
// must restart resolution against the new URL without issuing any request.
type RedirectFunc func(u *url.URL) bool

// RewriteFunc mutates the target URL in place; resolution continues with
// the same endpoint.
type RewriteFunc func(u *url.URL) bool

// Endpoint is one provider endpoint definition. Scheme patterns are globs
// (* matches any characters, anchored at both ends) unless a Regexp is
// supplied.
type Endpoint struct {
	Schemes   []string `json:"schemes"`
	URL       string   `json:"url"`
	Discovery bool     `json:"discovery"`

	Regexps  []*regexp.Regexp `json:"-"`
	UA       string           `json:"-"`
	Last     *bool            `json:"-"` // default true: stop at this table
	Builder  BuilderFunc      `json:"-"`
	Redirect RedirectFunc     `json:"-"`
	Rewrite  RewriteFunc      `json:"-"`

	compiled []*regexp.Regexp
	once     sync.Once
}

// Provider groups endpoints under a provider name.
type Provider struct {
	Name      string      `json:"provider_name"`
	Endpoints []*Endpoint `json:"endpoints"`
}

// Resolution is the outcome of provider resolution for one URL.
type Resolution struct {
	// URL is the oEmbed request URL, when the endpoint declares one.
	URL string
	// UA overrides the outbound User-Agent.
	UA string
	// Discovery marks endpoints that need the target page fetched first.
	Discovery bool
	// Redirect signals that the target URL was rewritten and resolution
	// must restart.
	Redirect bool
	// Builder, when set, synthesizes the record from the fetched response.
	Builder BuilderFunc
}

func (e *Endpoint) patterns() []*regexp.Regexp {
	e.once.Do(func() {
		e.compiled = append(e.compiled, e.Regexps...)
		for _, scheme := range e.Schemes {
			re, err := regexp.Compile("^" + strings.ReplaceAll(scheme, "*", ".*") + "$")
			if err != nil {
				zap.S().Debugw("invalid provider scheme", "scheme", scheme, "error", err)
				continue
			}
			e.compiled = append(e.compiled, re)
		}
	})
	return e.compiled
}

func (e *Endpoint) matches(href string) bool {
	for _, re := range e.patterns() {
		if re.MatchString(href) {
			return true
		}
	}
	return false
}

//go:embed providers.json
var communityJSON []byte

var (
	communityOnce sync.Once
	community     []*Provider
)

// CommunityProviders returns the embedded community provider database.
func CommunityProviders() []*Provider {
	communityOnce.Do(func() {
		if err := json.Unmarshal(communityJSON, &community); err != nil {
			zap.S().Errorw("cannot parse embedded providers database", "error", err)
		}
	})
	return community
}

// LoadProviders reads a caller-supplied provider table from JSON.
func LoadProviders(data []byte) ([]*Provider, error) {
	var list []*Provider
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, ierrors.Wrap(err, "failed to parse providers list")
	}
	return list, nil
}

// Resolve finds a matching endpoint for u across the user table, the
// built-in custom table and the community database, in that order. A match
// whose Last flag is explicitly false lets lower-priority tables overlay
// additional fields (a custom builder picking up the community endpoint
// url, for instance).
func Resolve(u *url.URL, user []*Provider) *Resolution {
	ret := &Resolution{}
	href := u.String()
	merged := &Endpoint{}
	matched := false
	for _, table := range [][]*Provider{user, CustomProviders(), CommunityProviders()} {
		found, last := findEndpoint(href, table, merged)
		matched = matched || found
		if found && last {
			break
		}
	}
	if !matched {
		return ret
	}
	zap.S().Debugw("found oembed provider", "url", href, "endpoint", merged.URL, "discovery", merged.Discovery)

	ret.Builder = merged.Builder
	ret.UA = merged.UA
	if merged.Redirect != nil && merged.Redirect(u) {
		zap.S().Debugw("provider redirects", "url", u.String())
		ret.Redirect = true
		return ret
	}
	if merged.Rewrite != nil && merged.Rewrite(u) {
		zap.S().Debugw("provider rewrites", "url", u.String())
	}
	if merged.URL != "" {
		ret.URL = buildRequestURL(merged.URL, href)
	}
	ret.Discovery = merged.Discovery
	return ret
}

// findEndpoint scans one table; on a match it overlays the endpoint's set
// fields onto merged and reports whether lower tables must be skipped.
func findEndpoint(href string, table []*Provider, merged *Endpoint) (bool, bool) {
	for _, provider := range table {
		for _, point := range provider.Endpoints {
			if len(point.Schemes) == 0 && len(point.Regexps) == 0 {
				continue
			}
			if !point.matches(href) {
				continue
			}
			overlay(merged, point)
			last := point.Last == nil || *point.Last
			return true, last
		}
	}
	return false, false
}

func overlay(dst, src *Endpoint) {
	if src.URL != "" {
		dst.URL = src.URL
	}
	if src.UA != "" {
		dst.UA = src.UA
	}
	if src.Discovery {
		dst.Discovery = true
	}
	if src.Builder != nil {
		dst.Builder = src.Builder
	}
	if src.Redirect != nil {
		dst.Redirect = src.Redirect
	}
	if src.Rewrite != nil {
		dst.Rewrite = src.Rewrite
	}
}

// buildRequestURL fills the endpoint template: {format} becomes json (or a
// format=json parameter is appended) and the percent-encoded target URL is
// always appended.
func buildRequestURL(template, target string) string {
	formatted := strings.Contains(template, "{format}")
	filled := strings.ReplaceAll(template, "{format}", "json")
	epURL, err := url.Parse(filled)
	if err != nil {
		zap.S().Debugw("invalid oembed endpoint url", "url", template, "error", err)
		return ""
	}
	q := epURL.Query()
	if !formatted {
		q.Set("format", "json")
	}
	q.Set("url", target)
	epURL.RawQuery = q.Encode()
	return epURL.String()
}
