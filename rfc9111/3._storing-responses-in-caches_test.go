package rfc9111

import (
	"net/http"
	"testing"
)

func TestStorePublic(t *testing.T) {
	req, _ := http.NewRequest("GET", "http://example.com/", nil)
	res := responseWithHeaders("Cache-Control", "public, max-age=60")
	if MustNotStore(req, res) {
		t.Fatal("Public response should be storable")
	}
}

func TestNotStoreWithoutExplicitFreshness(t *testing.T) {
	req, _ := http.NewRequest("GET", "http://example.com/", nil)
	if !MustNotStore(req, responseWithHeaders("Content-Type", "text/html")) {
		t.Fatal("Response without caching directives should not be stored")
	}
}

func TestNotStorePrivateOrNoStore(t *testing.T) {
	req, _ := http.NewRequest("GET", "http://example.com/", nil)
	for _, cc := range []string{"private, max-age=60", "no-store, max-age=60"} {
		if !MustNotStore(req, responseWithHeaders("Cache-Control", cc)) {
			t.Fatalf("%s should not be stored", cc)
		}
	}
}

func TestNotStorePost(t *testing.T) {
	req, _ := http.NewRequest("POST", "http://example.com/", nil)
	if !MustNotStore(req, responseWithHeaders("Cache-Control", "max-age=60")) {
		t.Fatal("POST response should not be stored")
	}
}

func TestAuthorizedRequest(t *testing.T) {
	req, _ := http.NewRequest("GET", "http://example.com/", nil)
	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	if !MustNotStore(req, responseWithHeaders("Cache-Control", "max-age=60")) {
		t.Fatal("Authorized response should not be stored without explicit permission")
	}
	if MustNotStore(req, responseWithHeaders("Cache-Control", "s-maxage=60")) {
		t.Fatal("s-maxage allows storing authorized responses")
	}
}

func TestStorableHeader(t *testing.T) {
	h := make(http.Header)
	h.Set("Connection", "X-Hop")
	h.Set("X-Hop", "1")
	h.Set("Set-Cookie", "a=b")
	h.Set("Content-Type", "text/html")
	s := StorableHeader(h)
	if s.Get("X-Hop") != "" || s.Get("Connection") != "" || s.Get("Set-Cookie") != "" {
		t.Fatalf("Stored header is %v", s)
	}
	if s.Get("Content-Type") != "text/html" {
		t.Fatalf("Content-Type missing from %v", s)
	}
}

func TestQualifiedPrivateStoresWithoutFields(t *testing.T) {
	req, _ := http.NewRequest("GET", "http://example.com/", nil)
	res := responseWithHeaders("Cache-Control", `private="X-User, X-Session", max-age=60`)
	res.Header.Set("X-User", "alice")
	res.Header.Set("X-Session", "s1")
	res.Header.Set("X-Fragment", "header")
	if MustNotStore(req, res) {
		t.Fatal("Qualified private response should be storable")
	}
	h := StorableHeader(res.Header)
	if h.Get("X-User") != "" || h.Get("X-Session") != "" || h.Get("X-Fragment") != "header" {
		t.Fatalf("Stored header is %v", h)
	}
}
