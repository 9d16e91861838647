package netcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/charlesng35/dealcache/internal/monitoring"
	"github.com/charlesng35/dealcache/pkg/logger"
)

const maxBodyBytes = 32 << 20

// Response sources reported in SourceHeader and metrics.
const (
	SourceNetwork = "network"
	SourceCache   = "cache"
	SourceStale   = "stale"
	SourceOffline = "offline"
)

// Proxy serves requests from the origin and the named caches.
type Proxy struct {
	opts     Options
	origin   *url.URL
	names    CacheNames
	storage  *Storage
	client   *http.Client
	listings map[string]struct{}
	log      *zap.Logger

	background sync.WaitGroup
}

// New builds a Proxy.
func New(storage *Storage, opts Options) (*Proxy, error) {
	if storage == nil {
		return nil, errors.New("netcache: storage is required")
	}
	opts, origin, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	listings := make(map[string]struct{}, len(opts.ListingPaths))
	for _, p := range opts.ListingPaths {
		if p = strings.TrimSpace(p); p != "" {
			listings[p] = struct{}{}
		}
	}

	return &Proxy{
		opts:    opts,
		origin:  origin,
		names:   NamesFor(opts.Version),
		storage: storage,
		client: &http.Client{
			Transport: opts.Transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		listings: listings,
		log:      logger.WithModule("netcache"),
	}, nil
}

// Names returns the cache names of the running version.
func (p *Proxy) Names() CacheNames {
	return p.names
}

// Wait blocks until background revalidations finish.
func (p *Proxy) Wait() {
	p.background.Wait()
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := newOutgoing(r)
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	strategy := Classify(r, p.opts.APIPrefix)
	var source string
	switch strategy {
	case StrategyAPI:
		source = p.serveAPI(w, req)
	case StrategyImage:
		source = p.serveImage(w, req)
	case StrategyAsset:
		source = p.serveAsset(w, req)
	case StrategyNavigation:
		source = p.serveNavigation(w, req)
	default:
		source = p.serveDefault(w, req)
	}
	monitoring.RecordStrategyOutcome(string(strategy), source)
}

func (p *Proxy) serveAPI(w http.ResponseWriter, req *outgoing) string {
	entry, err := p.fetch(req.ctx, req)
	if err == nil {
		if req.method == http.MethodGet && isSuccess(entry.Status) {
			p.store(req.ctx, p.names.API, req.key(), entry)
		}
		writeEntry(w, req, entry, SourceNetwork)
		return SourceNetwork
	}
	p.log.Debug("api fetch failed", zap.String("uri", req.uri), zap.Error(err))

	if req.method == http.MethodGet {
		if cached, ok := p.lookup(req.ctx, p.names.API, req.key()); ok {
			writeEntry(w, req, cached, SourceCache)
			return SourceCache
		}
		if _, ok := p.listings[req.path]; ok {
			writeJSON(w, http.StatusOK, map[string]any{"deals": []any{}, "offline": true})
			return SourceOffline
		}
	}

	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"error":   "offline",
		"message": "The deals service is unreachable and no cached copy is available.",
	})
	return SourceOffline
}

func (p *Proxy) serveImage(w http.ResponseWriter, req *outgoing) string {
	now := p.opts.Clock()
	cached, hit := p.lookup(req.ctx, p.names.Images, req.key())
	if hit && cached.Age(now) < p.opts.ImageTTL {
		writeEntry(w, req, cached, SourceCache)
		return SourceCache
	}

	entry, err := p.fetch(req.ctx, req)
	if err == nil {
		if req.method == http.MethodGet && isSuccess(entry.Status) {
			stamped := *entry
			stamped.Header = entry.Header.Clone()
			stamped.Header.Set(CacheDateHeader, now.UTC().Format(http.TimeFormat))
			p.store(req.ctx, p.names.Images, req.key(), &stamped)
		}
		writeEntry(w, req, entry, SourceNetwork)
		return SourceNetwork
	}

	if hit {
		writeEntry(w, req, cached, SourceStale)
		return SourceStale
	}
	http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	return SourceOffline
}

func (p *Proxy) serveAsset(w http.ResponseWriter, req *outgoing) string {
	if cached, ok := p.lookup(req.ctx, p.names.Static, req.key()); ok {
		writeEntry(w, req, cached, SourceCache)
		p.revalidate(req)
		return SourceCache
	}

	entry, err := p.fetch(req.ctx, req)
	if err != nil {
		p.log.Debug("asset fetch failed", zap.String("uri", req.uri), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return SourceOffline
	}
	if req.method == http.MethodGet && isSuccess(entry.Status) {
		p.store(req.ctx, p.names.Static, req.key(), entry)
	}
	writeEntry(w, req, entry, SourceNetwork)
	return SourceNetwork
}

// revalidate refreshes a static entry in the background. Failures are only logged.
func (p *Proxy) revalidate(req *outgoing) {
	if req.method != http.MethodGet {
		return
	}
	detached := req.detach()
	p.background.Add(1)
	go func() {
		defer p.background.Done()
		ctx, cancel := context.WithTimeout(detached.ctx, p.opts.FetchTimeout)
		defer cancel()

		entry, err := p.fetch(ctx, detached)
		if err != nil {
			p.log.Debug("revalidation failed", zap.String("uri", detached.uri), zap.Error(err))
			return
		}
		if isSuccess(entry.Status) {
			p.store(ctx, p.names.Static, detached.key(), entry)
		}
	}()
}

func (p *Proxy) serveNavigation(w http.ResponseWriter, req *outgoing) string {
	entry, err := p.fetch(req.ctx, req)
	if err == nil {
		writeEntry(w, req, entry, SourceNetwork)
		return SourceNetwork
	}
	p.log.Debug("navigation fetch failed", zap.String("uri", req.uri), zap.Error(err))

	if page, ok := p.lookup(req.ctx, p.names.Static, requestKey(http.MethodGet, p.opts.OfflinePage)); ok {
		writeEntry(w, req, page, SourceOffline)
		return SourceOffline
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set(SourceHeader, SourceOffline)
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = io.WriteString(w, "Offline")
	return SourceOffline
}

func (p *Proxy) serveDefault(w http.ResponseWriter, req *outgoing) string {
	entry, err := p.fetch(req.ctx, req)
	if err == nil {
		writeEntry(w, req, entry, SourceNetwork)
		return SourceNetwork
	}

	cached, ok, lookupErr := p.storage.Match(req.ctx, req.key())
	if lookupErr != nil {
		p.log.Warn("cache match failed", zap.String("uri", req.uri), zap.Error(lookupErr))
	}
	if ok {
		writeEntry(w, req, cached, SourceCache)
		return SourceCache
	}
	http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
	return SourceOffline
}

// fetch performs the request against the origin. Only transport failures are errors; any HTTP
// status is a response.
func (p *Proxy) fetch(ctx context.Context, req *outgoing) (*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()

	target := p.origin.String() + req.uri
	var body io.Reader
	if len(req.body) > 0 {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("netcache: build request: %w", err)
	}
	httpReq.Header = req.header.Clone()

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("netcache: read body: %w", err)
	}

	header := resp.Header.Clone()
	stripHopHeaders(header)
	header.Del("Content-Length")
	return &Entry{
		Method:   req.method,
		URL:      req.uri,
		Status:   resp.StatusCode,
		Header:   header,
		Body:     payload,
		StoredAt: p.opts.Clock().UTC(),
	}, nil
}

func (p *Proxy) lookup(ctx context.Context, cacheName, key string) (*Entry, bool) {
	entry, ok, err := p.storage.Get(ctx, cacheName, key)
	if err != nil {
		p.log.Warn("cache lookup failed", zap.String("cache", cacheName), zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return entry, ok
}

func (p *Proxy) store(ctx context.Context, cacheName, key string, entry *Entry) {
	if err := p.storage.Put(context.WithoutCancel(ctx), cacheName, key, entry); err != nil {
		p.log.Warn("cache store failed", zap.String("cache", cacheName), zap.String("key", key), zap.Error(err))
	}
}

// outgoing is the origin-bound copy of an incoming request.
type outgoing struct {
	ctx    context.Context
	method string
	path   string
	uri    string
	header http.Header
	body   []byte
}

func newOutgoing(r *http.Request) (*outgoing, error) {
	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if err != nil {
			return nil, err
		}
		if len(data) > maxBodyBytes {
			return nil, errors.New("netcache: request body too large")
		}
		body = data
	}

	header := r.Header.Clone()
	stripHopHeaders(header)
	header.Del("Accept-Encoding")

	return &outgoing{
		ctx:    r.Context(),
		method: r.Method,
		path:   r.URL.Path,
		uri:    r.URL.RequestURI(),
		header: header,
		body:   body,
	}, nil
}

func (o *outgoing) key() string {
	return requestKey(o.method, o.uri)
}

func (o *outgoing) detach() *outgoing {
	cp := *o
	cp.ctx = context.WithoutCancel(o.ctx)
	cp.header = o.header.Clone()
	return &cp
}

func writeEntry(w http.ResponseWriter, req *outgoing, entry *Entry, source string) {
	header := w.Header()
	for name, values := range entry.Header {
		header[name] = append([]string(nil), values...)
	}
	header.Set("Content-Length", strconv.Itoa(len(entry.Body)))
	header.Set(SourceHeader, source)
	w.WriteHeader(entry.Status)
	if req.method != http.MethodHead {
		_, _ = w.Write(entry.Body)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		data = []byte(`{"error":"internal"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(SourceHeader, SourceOffline)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

