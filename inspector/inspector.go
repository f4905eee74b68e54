// Package inspector orchestrates a full metadata lookup: provider
// resolution, page or oEmbed fetching, extraction, normalization, and the
// bounded follow-up inspections (canonical, embed, source, thumbnail,
// favicon).
package inspector

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/kapouer/url-inspector/agent"
	"github.com/kapouer/url-inspector/config"
	ierrors "github.com/kapouer/url-inspector/internal/errors"
	"github.com/kapouer/url-inspector/markup"
	"github.com/kapouer/url-inspector/media"
	"github.com/kapouer/url-inspector/norm"
	"github.com/kapouer/url-inspector/oembed"
	"github.com/kapouer/url-inspector/types"
)

const (
	acceptImage    = "image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8"
	acceptDocument = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// Options configure an Inspector.
type Options struct {
	// Providers is an additional provider table checked before the built-in
	// ones.
	Providers []*oembed.Provider
	// UserAgent overrides the default document user agent.
	UserAgent string
	// NoFavicon disables the favicon guess on the main lookup.
	NoFavicon bool
	// FileAccess enables file: URLs.
	FileAccess bool
	// Prober decodes media tags; nil selects the built-in sniffer.
	Prober media.Prober
}

// Inspector runs lookups over a shared fetch agent.
type Inspector struct {
	agent  *agent.Agent
	opts   Options
	prober media.Prober
}

// New creates an Inspector.
func New(a *agent.Agent, opts Options) *Inspector {
	prober := opts.Prober
	if prober == nil {
		prober = media.Sniffer{}
	}
	return &Inspector{agent: a, opts: opts, prober: prober}
}

// flags carry per-lookup state across the recursive sub-inspections.
type flags struct {
	noembed     bool
	nosource    bool
	nocanonical bool
	nofavicon   bool
	onlyFavicon bool
	isEmbed     bool
	redirects   int
	ua          string
	savedErr    error
}

// Lookup inspects href and returns the normalized record.
func (ins *Inspector) Lookup(ctx context.Context, href string) (*types.Record, error) {
	return ins.lookup(ctx, href, flags{nofavicon: ins.opts.NoFavicon})
}

// Normalize re-runs normalization on a caller-built record.
func (ins *Inspector) Normalize(rec *types.Record) error {
	u, _, err := ins.prepare(rec.URL, &flags{noembed: true})
	if err != nil {
		return err
	}
	norm.Process(rec, u)
	return nil
}

func (ins *Inspector) lookup(ctx context.Context, href string, fl flags) (*types.Record, error) {
	u, res, err := ins.prepare(href, &fl)
	if err != nil {
		return nil, err
	}
	if res.UA != "" {
		// a provider user-agent override also covers the thumbnail and
		// source sub-lookups
		fl.ua = res.UA
	}
	rec, err := ins.requestPageOrEmbed(ctx, u, res, fl)
	if err != nil {
		return nil, err
	}
	if fl.savedErr != nil {
		zap.S().Debugw("lookup recovered from oembed failure", "url", href, "error", fl.savedErr)
	}
	if rec.Thumbnail != "" {
		if tu, terr := u.Parse(rec.Thumbnail); terr == nil {
			rec.Thumbnail = tu.String()
			ins.thumbnailDimensions(ctx, tu, rec, fl)
		} else {
			rec.Thumbnail = ""
		}
	}
	norm.Process(rec, u)
	ins.sourceInspection(ctx, rec, fl)

	if rec.Icon != "" && !strings.HasPrefix(rec.Icon, "data:") {
		if iu, ierr := u.Parse(rec.Icon); ierr == nil {
			rec.Icon = iu.String()
		}
	} else if rec.Icon == "" && (!fl.nofavicon || u.Scheme == "file") {
		ins.guessIcon(ctx, u, rec)
	}
	rec.Reference = ""
	return rec, nil
}

// prepare parses the target URL, gates its scheme, and resolves the oEmbed
// provider. A provider redirect rewrites the URL and resolution restarts.
func (ins *Inspector) prepare(href string, fl *flags) (*url.URL, *oembed.Resolution, error) {
	u, err := parseTarget(href)
	if err != nil {
		return nil, nil, err
	}
	switch u.Scheme {
	case "http", "https":
	case "file":
		if !ins.opts.FileAccess {
			return nil, nil, &types.UnsupportedProtocolError{Scheme: "file"}
		}
	default:
		return nil, nil, &types.UnsupportedProtocolError{Scheme: u.Scheme}
	}
	if fl.noembed || u.Scheme == "file" {
		return u, &oembed.Resolution{}, nil
	}
	res := oembed.Resolve(u, ins.opts.Providers)
	for i := 0; res.Redirect && i < 3; i++ {
		res = oembed.Resolve(u, ins.opts.Providers)
	}
	return u, res, nil
}

// parseTarget accepts http(s) and file URLs; a relative file path is
// resolved against the working directory.
func parseTarget(href string) (*url.URL, error) {
	if strings.HasPrefix(href, "file:") {
		p := strings.TrimPrefix(href, "file:")
		p = strings.TrimPrefix(p, "//")
		if !path.IsAbs(p) {
			wd, err := os.Getwd()
			if err != nil {
				return nil, ierrors.Wrap(err, "cannot resolve relative path")
			}
			p = path.Join(wd, p)
		}
		return &url.URL{Scheme: "file", Path: p}, nil
	}
	u, err := url.Parse(href)
	if err != nil {
		return nil, ierrors.Wrapf(err, "invalid url %s", href)
	}
	return u, nil
}

func (ins *Inspector) documentHeader(ua string) http.Header {
	if ua == "" {
		ua = ins.opts.UserAgent
	}
	if ua == "" {
		ua = config.DefaultUserAgent
	}
	h := http.Header{}
	h.Set("Accept", acceptDocument)
	h.Set("Cache-Control", "no-cache")
	h.Set("DNT", "1")
	h.Set("Pragma", "no-cache")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("User-Agent", ua)
	return h
}

// requestPageOrEmbed fetches either the resolved oEmbed endpoint or the
// page itself, with fallbacks both ways: a failed endpoint falls back to the
// page, a titleless oEmbed result is completed from the page, and a failed
// page under a discovery endpoint falls back to the endpoint.
func (ins *Inspector) requestPageOrEmbed(ctx context.Context, u *url.URL, res *oembed.Resolution, fl flags) (*types.Record, error) {
	var embedURL *url.URL
	if !res.Discovery && res.URL != "" {
		if eu, err := url.Parse(res.URL); err == nil {
			embedURL = eu
		}
	}
	header := ins.documentHeader(fl.ua)

	target := u
	sub := fl
	if embedURL != nil {
		zap.S().Debugw("oembed candidate", "url", embedURL.String())
		target = embedURL
		sub.isEmbed = true
	}
	rec, err := ins.request(ctx, target, header, sub, nil)
	if err == nil {
		if embedURL != nil {
			rec.URL = u.String()
		}
		if res.Builder != nil {
			res.Builder(u, rec)
		}
		if embedURL != nil && rec.Title == "" {
			// the endpoint said nothing useful; inspect the page too and
			// keep the embed fields on top
			pfl := fl
			pfl.noembed = true
			if prec, perr := ins.lookup(ctx, u.String(), pfl); perr == nil {
				rec.FillFrom(prec)
			}
		}
		return rec, nil
	}
	if embedURL != nil {
		zap.S().Debugw("oembed endpoint failed, inspecting page", "url", u.String(), "error", err)
		pfl := fl
		pfl.noembed = true
		pfl.savedErr = err
		return ins.lookup(ctx, u.String(), pfl)
	}
	if res.URL != "" && res.Discovery {
		zap.S().Debugw("page failed, trying oembed endpoint", "url", res.URL, "error", err)
		direct := *res
		direct.Discovery = false
		return ins.requestPageOrEmbed(ctx, u, &direct, fl)
	}
	return nil, err
}

// request performs one fetch, dispatches the body to the extractor matching
// its kind, then chains at most one oEmbed fetch or one canonical-URL
// refetch. When base is non-nil the response accumulates onto it.
func (ins *Inspector) request(ctx context.Context, u *url.URL, header http.Header, fl flags, base *types.Record) (*types.Record, error) {
	req := &agent.Request{URL: u, Header: header, IsEmbed: fl.isEmbed, Redirects: fl.redirects}
	resp, err := ins.agent.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Abort()

	rec := base
	if rec == nil {
		rec = &types.Record{}
	}
	// an embed endpoint describes the page; its own address never becomes
	// the record url
	if !fl.isEmbed || rec.URL == "" {
		rec.URL = resp.URL.String()
	}
	rec.Mime = resp.Mime.Format()
	rec.What = resp.What
	rec.Ext = resp.Ext
	if resp.Size >= 0 {
		rec.Size = resp.Size
	}

	switch resp.Kind {
	case types.KindSVG:
		ts := types.NewTagSet()
		markup.ExtractSVG(resp.Body, ts)
		ts.Apply(rec)
	case types.KindImage, types.KindAudio, types.KindVideo:
		media.Tags(rec, resp.Kind, resp.Body, ins.prober)
	case types.KindHTML:
		ts := types.NewTagSet()
		markup.ExtractHTML(resp.Body, ts, markup.Options{
			OnlyFavicon: fl.onlyFavicon,
			Limiter:     resp,
		})
		ts.Apply(rec)
		// a page embedding a single media object is, for the caller, that
		// media object
		switch rec.Type {
		case types.TypeImage, types.TypeAudio, types.TypeVideo:
			rec.What = rec.Type
		}
	case types.KindEmbed:
		if derr := oembed.Decode(resp.Body, rec); derr != nil {
			return nil, derr
		}
	case types.KindArchive:
		rec.Type = types.TypeArchive
	case types.KindFile:
		media.File(rec, resp.Body, ins.prober)
	}
	resp.Abort()

	// chase the discovered oEmbed endpoint unless the page already yielded
	// both a thumbnail and an embed snippet
	fetchEmbed := !fl.noembed && rec.OEmbed != "" &&
		(rec.Thumbnail == "" || rec.RawHTML == "")
	canonical := rec.Canonical
	rec.Canonical = ""

	if fetchEmbed {
		if eu, perr := resp.URL.Parse(rec.OEmbed); perr == nil {
			zap.S().Debugw("fetching oembed endpoint", "url", eu.String())
			efl := fl
			efl.noembed = true
			efl.isEmbed = true
			clone := *rec
			clone.OEmbed = ""
			if erec, eerr := ins.request(ctx, eu, header, efl, &clone); eerr == nil {
				// the endpoint cannot tell the remote size
				erec.Size = rec.Size
				return erec, nil
			}
		}
		return rec, nil
	}

	if canonical != "" && !fl.nocanonical && !resp.Local && canonical != rec.Source {
		if cu, perr := resp.URL.Parse(canonical); perr == nil &&
			fl.redirects+1 < agent.MaxRedirects && differentPath(cu.Path, resp.URL.Path) {
			zap.S().Debugw("fetching canonical url", "url", cu.String())
			cfl := fl
			cfl.redirects++
			if crec, cerr := ins.request(ctx, cu, header, cfl, rec); cerr == nil {
				crec.URL = cu.String()
				return crec, nil
			}
		}
	}
	return rec, nil
}

// differentPath ignores a lone trailing-slash difference.
func differentPath(a, b string) bool {
	return a != b && a+"/" != b && a != b+"/"
}

// thumbnailDimensions fetches the thumbnail once when a video record lacks
// dimensions; an unreachable thumbnail is dropped.
func (ins *Inspector) thumbnailDimensions(ctx context.Context, tu *url.URL, rec *types.Record, fl flags) {
	if (rec.Width > 0 && rec.Height > 0) || rec.What != types.WhatVideo {
		return
	}
	header := ins.documentHeader(fl.ua)
	header.Set("Accept", acceptImage)
	header.Set("Origin", norm.Origin(tu))
	sfl := flags{nofavicon: true, nocanonical: true, nosource: true, noembed: true, ua: fl.ua}
	srec, err := ins.request(ctx, tu, header, sfl, nil)
	if err != nil {
		zap.S().Debugw("thumbnail probe failed", "url", tu.String(), "error", err)
		rec.Thumbnail = ""
		return
	}
	rec.Thumbnail = tu.String()
	if srec.Width > 0 && srec.Height > 0 {
		rec.Width = srec.Width
		rec.Height = srec.Height
	}
}

// sourceInspection follows the source URL once. The inspected source only
// matters when it turns out to be an embed of the same nature; its transport
// facts then override the page's.
func (ins *Inspector) sourceInspection(ctx context.Context, rec *types.Record, fl flags) {
	if fl.nosource || rec.Source == "" || rec.Source == rec.URL {
		return
	}
	switch rec.What {
	case types.WhatImage, types.WhatAudio, types.WhatVideo, types.WhatPage:
	default:
		return
	}
	base, err := url.Parse(rec.URL)
	if err != nil {
		return
	}
	su, err := base.Parse(rec.Source)
	if err != nil || su.Path == "" || path.Ext(su.Path) == "" {
		return
	}
	zap.S().Debugw("source inspection", "mime", rec.Mime, "what", rec.What, "source", rec.Source)
	sfl := fl
	sfl.nosource = true
	sfl.nocanonical = true
	if rec.Icon != "" {
		sfl.nofavicon = true
	}
	srec, err := ins.lookup(ctx, su.String(), sfl)
	if err != nil {
		zap.S().Debugw("source inspection failed", "url", su.String(), "error", err)
		return
	}
	if srec.What != rec.What || srec.Type != types.TypeEmbed {
		return
	}
	rec.Source = srec.URL
	if srec.Mime != "" {
		rec.Mime = srec.Mime
	}
	if srec.Ext != "" {
		rec.Ext = srec.Ext
	}
	if srec.Type != "" {
		rec.Type = srec.Type
	}
	if srec.Size > 0 {
		rec.Size = srec.Size
	}
	if srec.Width > 0 {
		rec.Width = srec.Width
	}
	if srec.Height > 0 {
		rec.Height = srec.Height
	}
	if srec.Duration != "" {
		rec.Duration = srec.Duration
	}
}

// guessIcon fills the icon: pages get a /favicon.ico existence probe, other
// resources get a favicon-only markup pass over the site root (or over the
// reference page when the record points at one).
func (ins *Inspector) guessIcon(ctx context.Context, u *url.URL, rec *types.Record) {
	if rec.What == types.WhatPage {
		iu := *u
		iu.Path = "/favicon.ico"
		iu.RawQuery = ""
		iu.Fragment = ""
		header := http.Header{}
		header.Set("Accept", acceptImage)
		header.Set("Origin", norm.Origin(u))
		if m, ok := ins.agent.Exists(ctx, &iu, header); ok && m.Type == "image" {
			rec.Icon = iu.String()
		}
		return
	}

	root := *u
	root.Path = "/"
	root.RawQuery = ""
	root.Fragment = ""
	if rec.Reference != "" {
		// another url for the same object
		if ru, err := url.Parse(rec.Reference); err == nil {
			root = *ru
			rec.Site = ru.Hostname()
		}
		rec.Reference = ""
	}
	header := ins.documentHeader("")
	header.Set("Accept", acceptImage)
	header.Set("Origin", norm.Origin(&root))
	zap.S().Debugw("find favicon", "url", root.String())
	ffl := flags{onlyFavicon: true, noembed: true, nosource: true, nocanonical: true, nofavicon: true}
	frec, err := ins.request(ctx, &root, header, ffl, nil)
	if err != nil {
		zap.S().Debugw("favicon not found", "url", root.String(), "error", err)
		return
	}
	if frec.Icon == "" {
		return
	}
	if base, err := url.Parse(frec.URL); err == nil {
		if iu, err := base.Parse(frec.Icon); err == nil {
			rec.Icon = iu.String()
			return
		}
	}
	rec.Icon = frec.Icon
}
