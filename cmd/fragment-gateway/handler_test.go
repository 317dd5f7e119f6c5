package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	fragmentgateway "github.com/always-cache/fragment-gateway"
	cookiebridge "github.com/always-cache/fragment-gateway/pkg/cookie-bridge"
)

func newGateway(t *testing.T, backendURL string) http.Handler {
	return newGatewayWith(t, backendURL, fragmentgateway.Config{}, "")
}

func newGatewayWith(t *testing.T, backendURL string, config fragmentgateway.Config, sessionCookie string) http.Handler {
	logger := zerolog.Nop()
	config.Logger = &logger
	executor, err := fragmentgateway.CreateExecutor(config)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { executor.Close() })
	backend, err := url.Parse(backendURL)
	if err != nil {
		t.Fatal(err)
	}
	gw := &gateway{executor: executor, backend: backend, sessionCookie: sessionCookie, log: logger}
	return gw.routes(http.NotFoundHandler())
}

func TestFragmentEndpoint(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		w.Header().Set("X-Fragment", "1")
		w.Write([]byte(r.Method + " " + r.URL.RequestURI()))
	}))
	defer backend.Close()
	gw := newGateway(t, backend.URL)

	w := httptest.NewRecorder()
	gw.ServeHTTP(w, httptest.NewRequest("GET", "/fragment?src=/header%3Flang%3Den", nil))
	if w.Code != 200 || w.Body.String() != "GET /header?lang=en" {
		t.Fatalf("Got %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Fragment") != "1" {
		t.Fatalf("Headers are %v", w.Header())
	}

	w = httptest.NewRecorder()
	gw.ServeHTTP(w, httptest.NewRequest("GET", "/fragment?src=/missing", nil))
	if w.Code != 404 || !strings.Contains(w.Body.String(), "gone") {
		t.Fatalf("Got %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	gw.ServeHTTP(w, httptest.NewRequest("GET", "/fragment", nil))
	if w.Code != 400 {
		t.Fatalf("Got %d", w.Code)
	}

	w = httptest.NewRecorder()
	gw.ServeHTTP(w, httptest.NewRequest("GET", "/fragment?src=ftp://elsewhere/", nil))
	if w.Code != 400 {
		t.Fatalf("Got %d", w.Code)
	}
}

func TestPassThrough(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Write([]byte(r.Method + " " + r.URL.RequestURI() + " " + string(body)))
	}))
	defer backend.Close()
	gw := newGateway(t, backend.URL)

	w := httptest.NewRecorder()
	gw.ServeHTTP(w, httptest.NewRequest("POST", "/form?x=1", strings.NewReader("a=1")))
	if w.Code != 200 || w.Body.String() != "POST /form?x=1 a=1" {
		t.Fatalf("Got %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	gw.ServeHTTP(w, httptest.NewRequest("PATCH", "/form", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("Got %d", w.Code)
	}
}

func TestPassThroughLoginCookies(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "1", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "token", Value: "t", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "tracking", Value: "x", Path: "/"})
		w.Write([]byte("logged in"))
	}))
	defer backend.Close()
	manager := cookiebridge.New(cookiebridge.Config{
		Discard: []string{"tracking"},
		Persist: []string{"token"},
	}, zerolog.Nop())
	gw := newGatewayWith(t, backend.URL, fragmentgateway.Config{CookieManager: manager}, "sid")

	r := httptest.NewRequest("POST", "/login", strings.NewReader("user=a"))
	r.Header.Set("Cookie", "sid=s1")
	w := httptest.NewRecorder()
	gw.ServeHTTP(w, r)
	if w.Code != 200 {
		t.Fatalf("Got %d %s", w.Code, w.Body.String())
	}
	got := make(map[string]string)
	for _, c := range w.Result().Cookies() {
		got[c.Name] = c.Value
	}
	if got["JSESSIONID"] != "1" {
		t.Fatalf("Client cookies are %v", got)
	}
	if _, ok := got["token"]; ok {
		t.Fatalf("Session cookie sent to client: %v", got)
	}
	if _, ok := got["tracking"]; ok {
		t.Fatalf("Discarded cookie sent to client: %v", got)
	}
	if cookies := manager.SessionCookies("s1"); len(cookies) != 1 || cookies[0].Value != "t" {
		t.Fatalf("Session cookies are %v", cookies)
	}
}

func TestMetricsRoute(t *testing.T) {
	gw := newGateway(t, "http://127.0.0.1:1")
	w := httptest.NewRecorder()
	gw.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("Got %d", w.Code)
	}
}
