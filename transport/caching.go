package transport

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/always-cache/fragment-gateway/cache"
	cachekey "github.com/always-cache/fragment-gateway/pkg/cache-key"
	serializer "github.com/always-cache/fragment-gateway/pkg/response-serializer"
	"github.com/always-cache/fragment-gateway/rfc9111"
	"github.com/always-cache/fragment-gateway/rfc9211"
)

const (
	defaultMaxObjectSize  = 1 << 20
	defaultStaleRetention = time.Hour
	defaultSweepInterval  = 5 * time.Minute
	defaultCacheName      = "Fragment-Gateway"
)

type CacheConfig struct {
	// Namespace separates gateways that share one storage.
	Namespace string
	// Name identifies the cache in Cache-Status.
	Name string
	// MaxObjectSize is the largest body stored. Larger bodies are streamed.
	MaxObjectSize int64
	// StaleRetention is how long a stale response with validators is kept
	// for revalidation.
	StaleRetention time.Duration
	// SweepInterval is how often expired entries are purged. Zero means five
	// minutes, a negative interval disables purging.
	SweepInterval time.Duration
}

// cachingRoundTripper is a shared HTTP cache. Entries are keyed by the
// virtual URI, so responses fetched from any node of a virtual host serve
// requests routed to the others.
type cachingRoundTripper struct {
	next    http.RoundTripper
	storage cache.CacheProvider
	keyer   cachekey.CacheKeyer
	config  CacheConfig
	log     zerolog.Logger

	done     chan struct{}
	stopOnce sync.Once
}

func newCachingRoundTripper(next http.RoundTripper, storage cache.CacheProvider, config CacheConfig, logger zerolog.Logger) *cachingRoundTripper {
	if config.MaxObjectSize <= 0 {
		config.MaxObjectSize = defaultMaxObjectSize
	}
	if config.StaleRetention <= 0 {
		config.StaleRetention = defaultStaleRetention
	}
	if config.Name == "" {
		config.Name = defaultCacheName
	}
	if config.SweepInterval == 0 {
		config.SweepInterval = defaultSweepInterval
	}
	c := &cachingRoundTripper{
		next:    next,
		storage: storage,
		keyer:   cachekey.NewCacheKeyer(config.Namespace),
		config:  config,
		log:     logger.With().Str("component", "cache").Logger(),
		done:    make(chan struct{}),
	}
	if config.SweepInterval > 0 {
		go c.sweep()
	}
	return c
}

func (c *cachingRoundTripper) sweep() {
	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			n, err := c.storage.PurgeExpired(now)
			if err != nil {
				c.log.Warn().Err(err).Msg("Could not purge expired entries")
				continue
			}
			if n > 0 {
				c.log.Debug().Int("count", n).Msg("Purged expired entries")
			}
		}
	}
}

func (c *cachingRoundTripper) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *cachingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	status := rfc9211.New(c.config.Name)
	if req.Method != http.MethodGet {
		status.Forward(rfc9211.FwdReasonMethod)
		res, err := c.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if rfc9111.MustInvalidate(req, res) {
			c.invalidate(req)
		}
		return withStatus(res, status), nil
	}

	prefix := c.keyer.GetKeyPrefix(req)
	var stale *serializer.TimedResponse
	if rfc9111.RequestForbidsReuse(req) {
		status.Forward(rfc9211.FwdReasonRequest)
	} else {
		hit, candidate, reason := c.lookup(prefix, req)
		if hit != nil {
			status.Hit()
			status.TimeToLive(rfc9111.TimeToLive(hit.Response, hit.RequestTime, hit.ResponseTime))
			rfc9111.AddAgeHeader(hit.Response, hit.RequestTime, hit.ResponseTime)
			c.log.Trace().Str("key", prefix).Msg("Serving stored response")
			return withStatus(hit.Response, status), nil
		}
		stale = candidate
		status.Forward(reason)
	}

	upstream := req
	if stale != nil {
		upstream = rfc9111.ConditionalRequest(req, stale.Response)
	}
	requestTime := time.Now()
	res, err := c.next.RoundTrip(upstream)
	if err != nil {
		return nil, err
	}
	responseTime := time.Now()
	status.ForwardStatus(res.StatusCode)

	if stale != nil && res.StatusCode == http.StatusNotModified {
		res.Body.Close()
		return c.serveValidated(prefix, req, *stale, res, requestTime, responseTime, status)
	}

	if res.Header.Get("Date") == "" {
		res.Header.Set("Date", rfc9111.ToHttpDate(responseTime))
	}
	if rfc9111.RequestForbidsStore(req) || rfc9111.MustNotStore(req, res) || rfc9111.VaryWildcard(res) {
		return withStatus(res, status), nil
	}
	body, complete, err := readAtMost(res.Body, c.config.MaxObjectSize)
	if err != nil {
		res.Body.Close()
		return nil, err
	}
	if !complete {
		c.log.Trace().Str("key", prefix).Int64("limit", c.config.MaxObjectSize).Msg("Response too large to store")
		res.Body = &prefixedBody{Reader: io.MultiReader(bytes.NewReader(body), res.Body), Closer: res.Body}
		return withStatus(res, status), nil
	}
	res.Body.Close()
	res.Body = io.NopCloser(bytes.NewReader(body))
	stored := serializer.TimedResponse{Response: res, RequestTime: requestTime, ResponseTime: responseTime}
	if c.store(prefix, req, stored, body) {
		status.Stored()
	}
	return withStatus(res, status), nil
}

// lookup returns a fresh stored response, or else a stale one that can be
// validated, along with the reason for forwarding. Entries past their expiry
// are purged instead of used.
func (c *cachingRoundTripper) lookup(prefix string, req *http.Request) (*serializer.TimedResponse, *serializer.TimedResponse, rfc9211.FwdReason) {
	now := time.Now()
	// responses without Vary are stored under the prefix itself
	if entry, ok, err := c.storage.Get(prefix); err == nil && ok && !c.expired(entry, now) {
		if stored, match := c.decode(prefix, req, entry); match && rfc9111.IsFresh(stored.Response, stored.RequestTime, stored.ResponseTime) {
			return &stored, nil, ""
		}
	}

	entries, err := c.storage.All(prefix)
	if err != nil {
		c.log.Warn().Err(err).Str("key", prefix).Msg("Could not read stored responses")
		return nil, nil, rfc9211.FwdReasonMiss
	}
	var stale *serializer.TimedResponse
	live, matched := 0, false
	for _, entry := range entries {
		if c.expired(entry, now) {
			continue
		}
		live++
		stored, match := c.decode(prefix, req, entry)
		if !match {
			continue
		}
		matched = true
		if rfc9111.IsFresh(stored.Response, stored.RequestTime, stored.ResponseTime) {
			return &stored, nil, ""
		}
		if stale == nil && rfc9111.HasValidators(stored.Response) {
			stale = &stored
		}
	}
	if live == 0 {
		return nil, nil, rfc9211.FwdReasonUriMiss
	}
	if !matched {
		return nil, nil, rfc9211.FwdReasonVaryMiss
	}
	return nil, stale, rfc9211.FwdReasonStale
}

// decode reports whether the stored response is the variant selected by req.
func (c *cachingRoundTripper) decode(prefix string, req *http.Request, entry cache.CacheEntry) (serializer.TimedResponse, bool) {
	stored, err := serializer.BytesToStoredResponse(entry.Bytes, req)
	if err != nil {
		c.log.Warn().Err(err).Str("key", entry.Key).Msg("Could not decode stored response")
		return stored, false
	}
	return stored, c.keyer.AddVaryKeys(prefix, req, stored.Response) == entry.Key
}

func (c *cachingRoundTripper) expired(entry cache.CacheEntry, now time.Time) bool {
	if entry.Expires.IsZero() || entry.Expires.After(now) {
		return false
	}
	if err := c.storage.Purge(entry.Key); err != nil {
		c.log.Warn().Err(err).Str("key", entry.Key).Msg("Could not purge expired response")
	}
	return true
}

func (c *cachingRoundTripper) serveValidated(
	prefix string, req *http.Request, stored serializer.TimedResponse, validation *http.Response,
	requestTime, responseTime time.Time, status *rfc9211.CacheStatus,
) (*http.Response, error) {
	body, err := io.ReadAll(stored.Response.Body)
	if err != nil {
		return nil, err
	}
	rfc9111.Freshen(stored.Response, validation)
	stored.Response.Header.Del("Age")
	stored.RequestTime = requestTime
	stored.ResponseTime = responseTime
	if c.store(prefix, req, stored, body) {
		status.Stored()
	}
	res := stored.Response
	res.Body = io.NopCloser(bytes.NewReader(body))
	res.ContentLength = int64(len(body))
	rfc9111.AddAgeHeader(res, requestTime, responseTime)
	c.log.Trace().Str("key", prefix).Msg("Stored response validated")
	return withStatus(res, status), nil
}

func (c *cachingRoundTripper) store(prefix string, req *http.Request, sRes serializer.TimedResponse, body []byte) bool {
	expires := sRes.ResponseTime.Add(rfc9111.FreshnessLifetime(sRes.Response))
	if rfc9111.HasValidators(sRes.Response) {
		expires = expires.Add(c.config.StaleRetention)
	}
	if !expires.After(time.Now()) {
		return false
	}
	bts, err := serializer.StoredResponseToBytes(sRes, body)
	if err != nil {
		c.log.Warn().Err(err).Str("key", prefix).Msg("Could not serialize response")
		return false
	}
	key := c.keyer.AddVaryKeys(prefix, req, sRes.Response)
	if err := c.storage.Put(cache.CacheEntry{Key: key, Expires: expires, Bytes: bts}); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Could not store response")
		return false
	}
	c.log.Trace().Str("key", key).Time("expires", expires).Msg("Stored response")
	return true
}

// invalidate drops every stored variant of the request URI.
func (c *cachingRoundTripper) invalidate(req *http.Request) {
	prefix := c.keyer.GetKeyPrefix(&http.Request{Method: http.MethodGet, URL: req.URL, Host: req.Host})
	n, err := c.storage.PurgePrefix(prefix)
	if err != nil {
		c.log.Warn().Err(err).Str("key", prefix).Msg("Could not invalidate stored responses")
		return
	}
	if n > 0 {
		c.log.Debug().Str("key", prefix).Int("count", n).Msg("Invalidated stored responses")
	}
}

func withStatus(res *http.Response, status *rfc9211.CacheStatus) *http.Response {
	if res.Header == nil {
		res.Header = make(http.Header)
	}
	res.Header.Add(rfc9211.HeaderName, status.String())
	return res
}

// readAtMost reads up to max bytes and reports whether that was all of r.
func readAtMost(r io.Reader, max int64) ([]byte, bool, error) {
	buf, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, false, err
	}
	return buf, int64(len(buf)) <= max, nil
}

type prefixedBody struct {
	io.Reader
	io.Closer
}
