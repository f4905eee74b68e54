// Package agent performs single HTTP(S) or local-file requests and exposes
// the response as a byte-capped stream plus parsed mime information.
package agent

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	ierrors "github.com/kapouer/url-inspector/internal/errors"
	"github.com/kapouer/url-inspector/types"
)

// MaxRedirects bounds any redirect chain, including chains carried over
// from canonical-URL hops.
const MaxRedirects = 5

// Config - Agent configuration
type Config struct {
	Timeout   int // seconds
	UserAgent string
}

// Agent issues outbound requests on a shared keep-alive transport.
type Agent struct {
	client    *http.Client
	userAgent string
}

// New creates an Agent.
func New(cfg *Config) *Agent {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15
	}
	zap.S().Debugw("creating agent",
		"timeout", timeout,
		"user_agent", cfg.UserAgent)
	return &Agent{
		client: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
		userAgent: cfg.UserAgent,
	}
}

// Request describes one fetch attempt. Created fresh for every attempt and
// discarded once the response is consumed.
type Request struct {
	URL       *url.URL
	Header    http.Header
	IsEmbed   bool
	Redirects int
}

// Response owns the single-pass body stream of one request. The stream must
// either be drained by an extractor or aborted; it is never read twice.
type Response struct {
	URL      *url.URL // effective URL, content-disposition applied
	Status   int
	Header   http.Header
	Mime     types.MimeInfo
	Kind     types.Kind
	What     string
	Ext      string
	Size     int64 // -1 when unknown
	Location *url.URL
	Body     io.Reader
	Local    bool

	cap    *capReader
	cancel context.CancelFunc
	closer io.Closer
}

// Abort tears down the underlying transfer.
func (r *Response) Abort() {
	if r.cap != nil {
		r.cap.aborted = true
	}
	if r.cancel != nil {
		r.cancel()
	}
	if r.closer != nil {
		r.closer.Close()
	}
}

// Unlimit suspends (or restores) the byte cap; used while the markup
// extractor is inside <head>.
func (r *Response) Unlimit(on bool) {
	if r.cap != nil {
		r.cap.unlimited = on
	}
}

// BytesRead reports how many body bytes were consumed so far.
func (r *Response) BytesRead() int64 {
	if r.cap == nil {
		return 0
	}
	return r.cap.count
}

type budget struct {
	limit   int64
	percent float64
}

// Per-kind download budgets. A zero budget means the body is not worth
// reading at all.
var budgets = map[types.Kind]budget{
	types.KindEmbed:   {30000, 0},
	types.KindSVG:     {30000, 0},
	types.KindImage:   {128000, 0.1},
	types.KindAudio:   {200000, 0.1},
	types.KindVideo:   {512000, 0.1},
	types.KindHTML:    {512000, 0},
	types.KindFile:    {32000, 0},
	types.KindArchive: {0, 0},
}

var archiveSubtypes = map[string]bool{
	"x-tar": true, "x-archive": true, "x-brotli": true, "x-bz2": true,
	"x-lzma": true, "x-lzip": true, "gzip": true, "x-xz": true,
	"x-compress": true, "zstd": true, "x-7z-compressed": true, "x-arj": true,
	"x-rar-compressed": true, "x-gtar": true, "zip": true,
}

var htmlSubtype = regexp.MustCompile(`^x?html$`)

// ClassifyKind maps a mime to the extractor kind. A json body is only an
// embed when the current fetch targets an oEmbed endpoint.
func ClassifyKind(m types.MimeInfo, isEmbed bool) types.Kind {
	switch {
	case strings.HasPrefix(m.Subtype, "svg"):
		return types.KindSVG
	case m.Type == "image" || m.Type == "audio" || m.Type == "video":
		return types.Kind(m.Type)
	case htmlSubtype.MatchString(m.Subtype):
		return types.KindHTML
	case m.Subtype == "json":
		if isEmbed {
			return types.KindEmbed
		}
		return types.KindArchive
	case archiveSubtypes[m.Subtype]:
		return types.KindArchive
	default:
		return types.KindFile
	}
}

// What maps a mime to the coarse resource classification.
func What(m types.MimeInfo) string {
	switch {
	case htmlSubtype.MatchString(m.Subtype):
		return types.WhatPage
	case m.Type == "image" || m.Type == "audio" || m.Type == "video":
		return m.Type
	default:
		return types.WhatFile
	}
}

// Fetch performs one request and classifies the response.
func (a *Agent) Fetch(ctx context.Context, req *Request) (*Response, error) {
	if req.URL.Scheme == "file" {
		return a.fetchFile(req)
	}
	return a.fetchHTTP(ctx, req)
}

// Exists issues a HEAD probe and reports the mime when the resource is
// reachable and non-empty.
func (a *Agent) Exists(ctx context.Context, u *url.URL, header http.Header) (types.MimeInfo, bool) {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return types.MimeInfo{}, false
	}
	copyHeader(hreq.Header, header)
	resp, err := a.client.Do(hreq)
	if err != nil {
		return types.MimeInfo{}, false
	}
	defer resp.Body.Close()
	zap.S().Debugw("existence probe", "url", u.String(), "status", resp.StatusCode)
	if resp.StatusCode == http.StatusNoContent || resp.Header.Get("Content-Length") == "0" {
		return types.MimeInfo{}, false
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return types.ParseMime(resp.Header.Get("Content-Type")), true
	}
	return types.MimeInfo{}, false
}

func (a *Agent) fetchHTTP(ctx context.Context, req *Request) (*Response, error) {
	resp, cancel, err := a.do(ctx, req)
	if err != nil {
		// Crafted user agents trip bot-detection middleboxes; retry once
		// with the transport default. A 403 counts as such a failure.
		if req.Header.Get("User-Agent") != "" && (types.StatusOf(err) == http.StatusForbidden || types.StatusOf(err) == 0) &&
			!errors.Is(err, types.ErrTooManyRedirects) {
			zap.S().Debugw("retrying without custom user agent", "url", req.URL.String(), "error", err)
			req.Header.Del("User-Agent")
			resp, cancel, err = a.do(ctx, req)
		}
		if err != nil {
			return nil, err
		}
	}

	status := resp.StatusCode
	if status < 200 || (status >= 400 && status < 600) {
		cancel()
		resp.Body.Close()
		return nil, types.NewStatusError(status, req.URL.String())
	}

	out := &Response{
		URL:    req.URL,
		Status: status,
		Header: resp.Header,
		Size:   -1,
		cancel: cancel,
		closer: resp.Body,
	}
	if final := resp.Request.URL; final != nil && final.String() != req.URL.String() {
		out.Location = final
		out.URL = final
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		if locURL, err := out.URL.Parse(loc); err == nil {
			out.Location = locURL
		}
	}
	if cl := resp.ContentLength; cl >= 0 {
		out.Size = cl
	}
	a.classify(out, req)

	if b := budgets[out.Kind]; b.limit == 0 && b.percent == 0 {
		// byte inspection is not useful for this kind
		out.Abort()
		out.Body = strings.NewReader("")
		return out, nil
	}

	limit := budgets[out.Kind].limit
	if pct := budgets[out.Kind].percent; pct > 0 && out.Size > 0 {
		if derived := int64(float64(out.Size) * pct); derived > limit {
			limit = derived
		}
	}
	cr := &capReader{r: resp.Body, limit: limit, cancel: cancel}
	out.cap = cr
	out.Body = cr
	a.decode(out)
	zap.S().Debugw("response received",
		"url", out.URL.String(),
		"status", status,
		"mime", out.Mime.Format(),
		"what", out.What,
		"kind", out.Kind,
		"size", out.Size,
		"cap", limit)
	return out, nil
}

// do issues the request, following up to MaxRedirects redirects with cookie
// propagation.
func (a *Agent) do(ctx context.Context, req *Request) (*http.Response, context.CancelFunc, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	hreq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, req.URL.String(), nil)
	if err != nil {
		cancel()
		return nil, nil, ierrors.Wrap(err, "failed to create request")
	}
	copyHeader(hreq.Header, req.Header)
	if hreq.Header.Get("Accept-Encoding") == "" {
		// let the transport negotiate and transparently decompress
		hreq.Header.Del("Accept-Encoding")
	}

	client := *a.client
	client.CheckRedirect = func(next *http.Request, via []*http.Request) error {
		if len(via)+req.Redirects > MaxRedirects {
			return types.ErrTooManyRedirects
		}
		prev := via[len(via)-1]
		if next.Response != nil {
			if setCookies := next.Response.Header.Values("Set-Cookie"); len(setCookies) > 0 {
				next.Header.Set("Cookie", mergeCookies(prev.Header.Get("Cookie"), setCookies))
			}
		}
		return nil
	}

	resp, err := client.Do(hreq)
	if err != nil {
		cancel()
		if errors.Is(err, types.ErrTooManyRedirects) {
			return nil, nil, types.ErrTooManyRedirects
		}
		return nil, nil, ierrors.Wrapf(err, "failed to fetch %s", req.URL.String())
	}
	if resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		cancel()
		return nil, nil, types.NewStatusError(http.StatusForbidden, req.URL.String())
	}
	return resp, cancel, nil
}

func (a *Agent) fetchFile(req *Request) (*Response, error) {
	p := req.URL.Path
	info, err := os.Stat(p)
	if err != nil {
		return nil, ierrors.Wrapf(err, "failed to stat %s", p)
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, ierrors.Wrapf(err, "failed to open %s", p)
	}
	header := http.Header{}
	header.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	out := &Response{
		URL:    req.URL,
		Status: http.StatusOK,
		Header: header,
		Size:   info.Size(),
		Body:   f,
		Local:  true,
		closer: f,
	}
	a.classify(out, req)
	// local reads are not byte-capped
	a.decode(out)
	zap.S().Debugw("local file", "path", p, "size", out.Size, "mime", out.Mime.Format())
	return out, nil
}

// classify parses the content-type, falling back to the url extension, and
// derives kind, what and extension.
func (a *Agent) classify(out *Response, req *Request) {
	contentType := out.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(out.URL.Path))
	}
	out.Mime = types.ParseMime(contentType)
	out.Kind = ClassifyKind(out.Mime, req.IsEmbed)
	out.What = What(out.Mime)
	out.Ext = extFromMime(out.Mime, out.URL)

	if disposition := out.Header.Get("Content-Disposition"); disposition != "" {
		if strings.HasPrefix(disposition, "filename=") {
			disposition = "attachment; " + disposition
		}
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if filename := params["filename"]; filename != "" {
				if named, err := out.URL.Parse(filename); err == nil {
					out.URL = named
				}
			}
		} else {
			zap.S().Debugw("unknown content-disposition format", "value", disposition)
		}
	}
}

// decode wraps the body so that a declared non-UTF-8 charset is transcoded.
func (a *Agent) decode(out *Response) {
	cs := out.Mime.Charset()
	if cs == "" || cs == "utf-8" {
		return
	}
	if out.Mime.Type != "text" && !strings.HasPrefix(out.Mime.Subtype, "svg") && out.Mime.Suffix != "xml" && !htmlSubtype.MatchString(out.Mime.Subtype) {
		return
	}
	decoded, err := charset.NewReaderLabel(cs, out.Body)
	if err != nil {
		zap.S().Warnw("unknown charset", "charset", cs)
		return
	}
	out.Body = decoded
}

var preferredExts = map[string]string{
	"text/html":             "html",
	"application/xhtml+xml": "html",
	"image/jpeg":            "jpg",
	"image/png":             "png",
	"image/gif":             "gif",
	"image/webp":            "webp",
	"image/svg+xml":         "svg",
	"audio/mpeg":            "mp3",
	"audio/ogg":             "ogg",
	"video/mp4":             "mp4",
	"video/webm":            "webm",
	"application/json":      "json",
	"application/pdf":       "pdf",
	"text/plain":            "txt",
}

func extFromMime(m types.MimeInfo, u *url.URL) string {
	if ext, ok := preferredExts[m.Format()]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(m.Format()); err == nil && len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return strings.TrimPrefix(path.Ext(u.Path), ".")
}

// mergeCookies merges set-cookie values into a prior cookie string. New
// cookies take precedence, order is preserved.
func mergeCookies(prior string, setCookies []string) string {
	var order []string
	values := map[string]string{}
	add := func(pair string) {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" {
			return
		}
		if _, seen := values[name]; !seen {
			order = append(order, name)
		}
		values[name] = value
	}
	for _, pair := range strings.Split(prior, ";") {
		if pair != "" {
			add(pair)
		}
	}
	for _, sc := range setCookies {
		head, _, _ := strings.Cut(sc, ";")
		add(head)
	}
	parts := make([]string, 0, len(order))
	for _, name := range order {
		parts = append(parts, name+"="+values[name])
	}
	return strings.Join(parts, "; ")
}

func copyHeader(dst, src http.Header) {
	for key, vals := range src {
		for _, v := range vals {
			dst.Set(key, v)
		}
	}
}

// capReader counts bytes and tears down the transfer once the budget is
// exceeded. The chunk that crosses the budget is still delivered; the next
// read reports end of stream.
type capReader struct {
	r         io.Reader
	limit     int64
	count     int64
	unlimited bool
	aborted   bool
	cancel    context.CancelFunc
}

func (c *capReader) Read(p []byte) (int, error) {
	if c.aborted {
		return 0, io.EOF
	}
	n, err := c.r.Read(p)
	c.count += int64(n)
	if !c.unlimited && c.limit > 0 && c.count >= c.limit {
		zap.S().Debugw("byte budget reached, aborting transfer", "read", c.count, "limit", c.limit)
		c.aborted = true
		if c.cancel != nil {
			c.cancel()
		}
		if err != nil && !errors.Is(err, io.EOF) {
			// the teardown races the in-flight read; either way the
			// stream ends cleanly for the extractor
			err = nil
		}
	}
	return n, err
}
