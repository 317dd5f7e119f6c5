package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/always-cache/fragment-gateway/cache"
	"github.com/always-cache/fragment-gateway/fragment"
	urirewriter "github.com/always-cache/fragment-gateway/pkg/uri-rewriter"
)

func outgoing(t *testing.T, method, serverURL, path, virtualHost string) *fragment.OutgoingRequest {
	target, err := urirewriter.ExtractHost(serverURL)
	if err != nil {
		t.Fatal(err)
	}
	virtual := target
	if virtualHost != "" {
		virtual = urirewriter.Host{Scheme: "http", Hostname: virtualHost}
	}
	uri, _ := urirewriter.RewriteURI(serverURL+path, virtual)
	req := fragment.NewOutgoingRequest(method, uri, 1, 1, nil)
	req.TargetHost = target
	req.VirtualHost = virtual
	req.Header.Set("Host", virtual.HostString())
	req.Config = fragment.RequestConfig{
		ConnectTimeout:           time.Second,
		SocketTimeout:            time.Second,
		CircularRedirectsAllowed: true,
		RedirectsEnabled:         true,
		MaxRedirects:             10,
		CookiePolicy:             fragment.CookiePolicyBrowserCompatibility,
	}
	return req
}

func newTransport(t *testing.T, config Config) *Transport {
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = time.Second
	}
	if config.SocketTimeout == 0 {
		config.SocketTimeout = time.Second
	}
	if config.MaxConnectionsPerHost == 0 {
		config.MaxConnectionsPerHost = 4
	}
	config.Logger = zerolog.Nop()
	tr, err := New(config)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(tr.Close)
	return tr
}

func readBody(t *testing.T, res *http.Response) string {
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func countingOrigin(name string, hits *int32, handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("X-Node", name)
		handler(w, r)
	}))
}

func TestVirtualHostSentToTarget(t *testing.T) {
	var hits int32
	origin := countingOrigin("node1", &hits, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Host + " " + r.URL.RequestURI()))
	})
	defer origin.Close()
	tr := newTransport(t, Config{})
	res, err := tr.Execute(context.Background(), outgoing(t, "GET", origin.URL, "/frag?x=1", "edge.example"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if body := readBody(t, res); body != "edge.example /frag?x=1" {
		t.Fatalf("Origin saw %s", body)
	}
}

func TestCacheSharedAcrossNodes(t *testing.T) {
	var hits1, hits2 int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=60")
		w.Write([]byte("fragment"))
	}
	node1 := countingOrigin("node1", &hits1, handler)
	defer node1.Close()
	node2 := countingOrigin("node2", &hits2, handler)
	defer node2.Close()
	tr := newTransport(t, Config{Cache: cache.NewMemCache()})

	res, err := tr.Execute(context.Background(), outgoing(t, "GET", node1.URL, "/frag", "edge.example"), nil)
	if err != nil {
		t.Fatal(err)
	}
	readBody(t, res)
	if cs := res.Header.Get("Cache-Status"); !strings.Contains(cs, "fwd=uri-miss") || !strings.Contains(cs, "stored") {
		t.Fatalf("Cache-Status is %s", cs)
	}

	res, err = tr.Execute(context.Background(), outgoing(t, "GET", node2.URL, "/frag", "edge.example"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if body := readBody(t, res); body != "fragment" {
		t.Fatalf("Body is %s", body)
	}
	if cs := res.Header.Get("Cache-Status"); !strings.Contains(cs, "; hit") {
		t.Fatalf("Cache-Status is %s", cs)
	}
	if res.Header.Get("Age") == "" {
		t.Fatal("Age header missing from stored response")
	}
	if hits1 != 1 || hits2 != 0 {
		t.Fatalf("Origin hits: node1 %d, node2 %d", hits1, hits2)
	}
}

type fetchRecorder struct {
	fragment.HookFuncs
	requests []*http.Request
	statuses []int
}

func (f *fetchRecorder) PreFetch(evt *fragment.FetchEvent) fragment.Action {
	f.requests = append(f.requests, evt.HTTPRequest)
	return fragment.Continue
}

func (f *fetchRecorder) PostFetch(evt *fragment.FetchEvent) fragment.Action {
	f.statuses = append(f.statuses, evt.HTTPResponse.StatusCode)
	return fragment.Continue
}

func TestStaleRevalidation(t *testing.T) {
	var hits int32
	origin := countingOrigin("node1", &hits, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=0")
		w.Header().Set("ETag", `"v1"`)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Write([]byte("fragment"))
	})
	defer origin.Close()
	recorder := &fetchRecorder{}
	tr := newTransport(t, Config{Cache: cache.NewMemCache(), Hooks: fragment.NewChain(recorder)})

	res, err := tr.Execute(context.Background(), outgoing(t, "GET", origin.URL, "/frag", ""), nil)
	if err != nil {
		t.Fatal(err)
	}
	readBody(t, res)

	res, err = tr.Execute(context.Background(), outgoing(t, "GET", origin.URL, "/frag", ""), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != 200 {
		t.Fatalf("Status is %d", res.StatusCode)
	}
	if body := readBody(t, res); body != "fragment" {
		t.Fatalf("Body is %q", body)
	}
	if cs := res.Header.Get("Cache-Status"); !strings.Contains(cs, "fwd=stale; fwd-status=304") {
		t.Fatalf("Cache-Status is %s", cs)
	}
	if len(recorder.requests) != 2 || recorder.requests[1].Header.Get("If-None-Match") != `"v1"` {
		t.Fatalf("Fetch hooks saw %d requests", len(recorder.requests))
	}
	if recorder.statuses[1] != http.StatusNotModified {
		t.Fatalf("Fetch hook statuses %v", recorder.statuses)
	}
}

func TestExpiredEntryNotRevalidated(t *testing.T) {
	var hits, conditional int32
	origin := countingOrigin("node1", &hits, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") != "" {
			atomic.AddInt32(&conditional, 1)
		}
		w.Header().Set("Cache-Control", "max-age=0")
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("fragment"))
	})
	defer origin.Close()
	storage := cache.NewMemCache()
	tr := newTransport(t, Config{Cache: storage, CacheConfig: CacheConfig{StaleRetention: 50 * time.Millisecond}})

	res, err := tr.Execute(context.Background(), outgoing(t, "GET", origin.URL, "/frag", ""), nil)
	if err != nil {
		t.Fatal(err)
	}
	readBody(t, res)
	time.Sleep(100 * time.Millisecond)

	res, err = tr.Execute(context.Background(), outgoing(t, "GET", origin.URL, "/frag", ""), nil)
	if err != nil {
		t.Fatal(err)
	}
	readBody(t, res)
	if cs := res.Header.Get("Cache-Status"); !strings.Contains(cs, "fwd=uri-miss") {
		t.Fatalf("Cache-Status is %s", cs)
	}
	if n := atomic.LoadInt32(&conditional); n != 0 {
		t.Fatalf("Expired entry revalidated %d times", n)
	}
}

func TestSweepEnabledByDefault(t *testing.T) {
	tr := newTransport(t, Config{Cache: cache.NewMemCache()})
	if tr.caching.config.SweepInterval != defaultSweepInterval {
		t.Fatalf("Sweep interval is %s", tr.caching.config.SweepInterval)
	}
	tr = newTransport(t, Config{Cache: cache.NewMemCache(), CacheConfig: CacheConfig{SweepInterval: -1}})
	if tr.caching.config.SweepInterval > 0 {
		t.Fatalf("Sweep interval is %s", tr.caching.config.SweepInterval)
	}
}

func TestUnsafeMethodInvalidates(t *testing.T) {
	var hits int32
	origin := countingOrigin("node1", &hits, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=60")
		w.Write([]byte(r.Method))
	})
	defer origin.Close()
	tr := newTransport(t, Config{Cache: cache.NewMemCache()})
	for _, method := range []string{"GET", "POST", "GET"} {
		res, err := tr.Execute(context.Background(), outgoing(t, method, origin.URL, "/frag", "edge.example"), nil)
		if err != nil {
			t.Fatal(err)
		}
		readBody(t, res)
	}
	if hits != 3 {
		t.Fatalf("Origin hit %d times, expected 3", hits)
	}
}

func TestLargeBodyStreamedNotStored(t *testing.T) {
	var hits int32
	origin := countingOrigin("node1", &hits, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=60")
		w.Write([]byte("0123456789"))
	})
	defer origin.Close()
	tr := newTransport(t, Config{Cache: cache.NewMemCache(), CacheConfig: CacheConfig{MaxObjectSize: 4}})
	for i := 0; i < 2; i++ {
		res, err := tr.Execute(context.Background(), outgoing(t, "GET", origin.URL, "/big", ""), nil)
		if err != nil {
			t.Fatal(err)
		}
		if body := readBody(t, res); body != "0123456789" {
			t.Fatalf("Body is %q", body)
		}
	}
	if hits != 2 {
		t.Fatalf("Origin hit %d times, expected 2", hits)
	}
}

func TestRedirects(t *testing.T) {
	var hits int32
	origin := countingOrigin("node1", &hits, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/new", http.StatusFound)
			return
		}
		w.Write([]byte(r.Host))
	})
	defer origin.Close()
	tr := newTransport(t, Config{})

	req := outgoing(t, "GET", origin.URL, "/old", "edge.example")
	res, err := tr.Execute(context.Background(), req, nil)
	if err != nil {
		t.Fatal(err)
	}
	if body := readBody(t, res); res.StatusCode != 200 || body != "edge.example" {
		t.Fatalf("Redirect followed to %d %s", res.StatusCode, body)
	}

	req = outgoing(t, "GET", origin.URL, "/old", "edge.example")
	req.Config.RedirectsEnabled = false
	res, err = tr.Execute(context.Background(), req, nil)
	if err != nil {
		t.Fatal(err)
	}
	readBody(t, res)
	if res.StatusCode != http.StatusFound {
		t.Fatalf("Status is %d, expected the redirect", res.StatusCode)
	}
}

func TestPreFetchExit(t *testing.T) {
	var hits int32
	origin := countingOrigin("node1", &hits, func(w http.ResponseWriter, r *http.Request) {})
	defer origin.Close()
	exit := &exitingFetchHook{}
	tr := newTransport(t, Config{Hooks: fragment.NewChain(exit)})
	_, err := tr.Execute(context.Background(), outgoing(t, "GET", origin.URL, "/", ""), nil)
	if !errors.Is(err, ErrFetchCancelled) {
		t.Fatalf("Error is %v", err)
	}
	if hits != 0 {
		t.Fatal("Origin should not be contacted")
	}
}

type exitingFetchHook struct {
	fragment.HookFuncs
}

func (exitingFetchHook) PreFetch(*fragment.FetchEvent) fragment.Action  { return fragment.Exit }
func (exitingFetchHook) PostFetch(*fragment.FetchEvent) fragment.Action { return fragment.Continue }

func TestSocketTimeout(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer origin.Close()
	tr := newTransport(t, Config{SocketTimeout: 50 * time.Millisecond})
	_, err := tr.Execute(context.Background(), outgoing(t, "GET", origin.URL, "/", ""), nil)
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("Expected a timeout, got %v", err)
	}
}

func TestSocketTimeoutIgnoresIdleConnection(t *testing.T) {
	for _, method := range []string{"POST", "GET"} {
		var hits int32
		origin := countingOrigin("node1", &hits, func(w http.ResponseWriter, r *http.Request) {
			if atomic.LoadInt32(&hits) > 1 {
				time.Sleep(600 * time.Millisecond)
			}
			w.Write([]byte("fragment"))
		})
		tr := newTransport(t, Config{SocketTimeout: time.Second})
		for i := 0; i < 2; i++ {
			if i == 1 {
				// the pooled connection idles past half the timeout
				time.Sleep(700 * time.Millisecond)
			}
			req := outgoing(t, method, origin.URL, "/", "")
			if method == "POST" {
				req.Body = []byte("a=1")
			}
			res, err := tr.Execute(context.Background(), req, nil)
			if err != nil {
				t.Fatalf("%s fetch %d: %v", method, i+1, err)
			}
			if body := readBody(t, res); body != "fragment" {
				t.Fatalf("Body is %q", body)
			}
		}
		if n := atomic.LoadInt32(&hits); n != 2 {
			t.Fatalf("%s: origin hit %d times, expected 2", method, n)
		}
		origin.Close()
	}
}

func TestSocketTimeoutBetweenBodyReads(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("start"))
		w.(http.Flusher).Flush()
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte("end"))
	}))
	defer origin.Close()
	tr := newTransport(t, Config{SocketTimeout: 100 * time.Millisecond})
	res, err := tr.Execute(context.Background(), outgoing(t, "GET", origin.URL, "/", ""), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	_, err = io.ReadAll(res.Body)
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("Expected a timeout, got %v", err)
	}
}

type stubRoundTripper func(*http.Request) (*http.Response, error)

func (s stubRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return s(req)
}

func TestLimiterHoldsSlotUntilBodyClosed(t *testing.T) {
	l := newLimiter(stubRoundTripper(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader("")), Request: req}, nil
	}), 1)
	req, _ := http.NewRequest("GET", "http://node1/", nil)
	first, err := l.RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := l.RoundTrip(req.WithContext(ctx)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Second round trip should wait for a slot, got %v", err)
	}
	first.Body.Close()
	first.Body.Close()
	second, err := l.RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}
	second.Body.Close()
}

func TestProxyURL(t *testing.T) {
	u, err := proxyURL(Config{ProxyHost: "proxy.local", ProxyPort: 3128, ProxyUser: "user", ProxyPassword: "p@ss"})
	if err != nil {
		t.Fatal(err)
	}
	if u.Host != "proxy.local:3128" || u.User.Username() != "user" {
		t.Fatalf("Proxy URL is %s", u)
	}
	if p, _ := u.User.Password(); p != "p@ss" {
		t.Fatalf("Password is %s", p)
	}
}
