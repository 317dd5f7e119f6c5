package cookiebridge

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/rs/zerolog"

	"github.com/always-cache/fragment-gateway/fragment"
)

func incoming(cookie, session string) *fragment.IncomingRequest {
	in := &fragment.IncomingRequest{Method: "GET", URI: "http://edge.example/", Header: http.Header{}}
	if cookie != "" {
		in.Header.Set("Cookie", cookie)
	}
	in.User.SessionID = session
	return in
}

func names(cookies []*http.Cookie) map[string]string {
	m := make(map[string]string)
	for _, c := range cookies {
		m[c.Name] = c.Value
	}
	return m
}

func TestSeedsIncomingCookies(t *testing.T) {
	m := New(Config{Discard: []string{"secret"}}, zerolog.Nop())
	jar := m.BridgeStoreFor(incoming("a=1; secret=x", ""))
	u, _ := url.Parse("http://node1:8080/frag")
	got := names(jar.Cookies(u))
	if got["a"] != "1" {
		t.Fatalf("Cookies are %v", got)
	}
	if _, ok := got["secret"]; ok {
		t.Fatalf("Discarded cookie forwarded: %v", got)
	}
}

func TestSetCookiesVisibleWithinFetch(t *testing.T) {
	m := New(Config{Discard: []string{"tracking"}}, zerolog.Nop())
	jar := m.BridgeStoreFor(incoming("", ""))
	u, _ := url.Parse("http://node1/login")
	jar.SetCookies(u, []*http.Cookie{{Name: "token", Value: "t"}, {Name: "tracking", Value: "x"}})
	got := names(jar.Cookies(u))
	if got["token"] != "t" {
		t.Fatalf("Cookies are %v", got)
	}
	if _, ok := got["tracking"]; ok {
		t.Fatalf("Discarded cookie stored: %v", got)
	}
}

func TestPersistAcrossFetches(t *testing.T) {
	m := New(Config{Persist: []string{"token"}}, zerolog.Nop())
	u, _ := url.Parse("http://node1/")
	first := m.BridgeStoreFor(incoming("", "s1"))
	first.SetCookies(u, []*http.Cookie{{Name: "token", Value: "t"}, {Name: "other", Value: "o"}})

	second := m.BridgeStoreFor(incoming("", "s1"))
	got := names(second.Cookies(u))
	if got["token"] != "t" {
		t.Fatalf("Persisted cookie missing: %v", got)
	}
	if _, ok := got["other"]; ok {
		t.Fatalf("Cookie not on the persist list was kept: %v", got)
	}
	if got := names(m.BridgeStoreFor(incoming("", "s2")).Cookies(u)); len(got) != 0 {
		t.Fatalf("Other session sees cookies: %v", got)
	}

	first.SetCookies(u, []*http.Cookie{{Name: "token", MaxAge: -1}})
	if len(m.SessionCookies("s1")) != 0 {
		t.Fatal("Expired cookie still persisted")
	}
}

func TestForwardedCookies(t *testing.T) {
	m := New(Config{Discard: []string{"tracking"}, Persist: []string{"token"}}, zerolog.Nop())
	u, _ := url.Parse("http://node1/login")
	jar := m.BridgeStoreFor(incoming("", "s1"))
	jar.SetCookies(u, []*http.Cookie{{Name: "JSESSIONID", Value: "1"}, {Name: "token", Value: "t"}, {Name: "tracking", Value: "x"}})
	got := names(jar.(*requestStore).ForwardedCookies())
	if len(got) != 1 || got["JSESSIONID"] != "1" {
		t.Fatalf("Forwarded cookies are %v", got)
	}

	// without a session nothing can be kept, so persist-listed cookies go to the client
	jar = m.BridgeStoreFor(incoming("", ""))
	jar.SetCookies(u, []*http.Cookie{{Name: "token", Value: "t"}})
	if got := names(jar.(*requestStore).ForwardedCookies()); got["token"] != "t" {
		t.Fatalf("Forwarded cookies are %v", got)
	}
}
