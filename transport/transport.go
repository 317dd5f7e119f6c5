// Package transport executes fragment requests over a shared connection pool,
// optionally through an HTTP cache.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/always-cache/fragment-gateway/cache"
	"github.com/always-cache/fragment-gateway/fragment"
)

// ErrFetchCancelled is returned when a fetch hook stops a round trip without
// supplying a response.
var ErrFetchCancelled = errors.New("Fetch cancelled by extension")

// Config is read once by New.
type Config struct {
	ConnectTimeout time.Duration
	SocketTimeout  time.Duration
	// MaxConnectionsPerHost bounds the connections per route.
	MaxConnectionsPerHost int
	// MaxConnectionsTotal bounds the requests in flight over all routes.
	// Zero means unbounded.
	MaxConnectionsTotal int

	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string

	// Cache enables the HTTP cache when non-nil.
	Cache       cache.CacheProvider
	CacheConfig CacheConfig

	Redirects RedirectStrategy
	Hooks     *fragment.Chain
	Logger    zerolog.Logger

	// RoundTripper replaces the pooled network transport.
	RoundTripper http.RoundTripper
}

// Transport is safe for concurrent use and is not modified after New.
type Transport struct {
	roundTripper http.RoundTripper
	pool         *http.Transport
	caching      *cachingRoundTripper
	redirects    RedirectStrategy
	log          zerolog.Logger
}

func New(config Config) (*Transport, error) {
	t := &Transport{
		redirects: config.Redirects,
		log:       config.Logger,
	}
	if t.redirects == nil {
		t.redirects = DefaultRedirects{}
	}
	rt := config.RoundTripper
	if rt == nil {
		pool, err := newPool(config)
		if err != nil {
			return nil, err
		}
		t.pool = pool
		rt = newDeadline(pool, config.SocketTimeout)
	}
	if config.MaxConnectionsTotal > 0 {
		rt = newLimiter(rt, config.MaxConnectionsTotal)
	}
	rt = &hookRoundTripper{next: rt, hooks: config.Hooks}
	if config.Cache != nil {
		t.caching = newCachingRoundTripper(rt, config.Cache, config.CacheConfig, config.Logger)
		rt = t.caching
	}
	t.roundTripper = rt
	return t, nil
}

type requestConfigKey struct{}

func requestConfigFrom(ctx context.Context) (fragment.RequestConfig, bool) {
	cfg, ok := ctx.Value(requestConfigKey{}).(fragment.RequestConfig)
	return cfg, ok
}

// Execute sends the request to its target host. The jar may be nil.
func (t *Transport) Execute(ctx context.Context, req *fragment.OutgoingRequest, jar http.CookieJar) (*http.Response, error) {
	ctx = context.WithValue(ctx, requestConfigKey{}, req.Config)
	httpReq, err := req.HTTPRequest(ctx)
	if err != nil {
		return nil, err
	}
	client := &http.Client{
		Transport:     t.roundTripper,
		Jar:           jar,
		CheckRedirect: t.redirects.CheckRedirect(req.Config),
	}
	t.log.Trace().Str("url", httpReq.URL.String()).Str("host", httpReq.Host).Msg("Sending request")
	res, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("Could not fetch %s: %w", req.URI(), err)
	}
	return res, nil
}

// Close stops the cache janitor and drops idle connections. The cache
// storage is left open.
func (t *Transport) Close() {
	if t.caching != nil {
		t.caching.stop()
	}
	if t.pool != nil {
		t.pool.CloseIdleConnections()
	}
}
