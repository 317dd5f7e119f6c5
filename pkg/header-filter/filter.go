// Package headerfilter decides which header fields are forwarded between the
// client, the gateway and the fragment origins.
package headerfilter

import (
	"net/http"
	"strings"
)

// Policy decides per header name whether it is copied.
type Policy interface {
	CopyRequestHeader(name string) bool
	CopyResponseHeader(name string) bool
}

var hopByHop = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Proxy-Connection":    true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// Default drops hop-by-hop fields and fields the transport sets itself, plus
// the configured discard lists.
type Default struct {
	discardRequest  map[string]bool
	discardResponse map[string]bool
}

func NewDefault(discardRequest, discardResponse []string) *Default {
	return &Default{
		discardRequest:  toSet(discardRequest),
		discardResponse: toSet(discardResponse),
	}
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			set[http.CanonicalHeaderKey(name)] = true
		}
	}
	return set
}

func (d *Default) CopyRequestHeader(name string) bool {
	name = http.CanonicalHeaderKey(name)
	switch name {
	case "User-Agent", "Accept":
		return true
	case "Host", "Content-Length":
		return false
	}
	// X-Forwarded-* are set by the edge in front of us
	if hopByHop[name] || strings.HasPrefix(name, "X-Forwarded-") {
		return false
	}
	return !d.discardRequest[name]
}

func (d *Default) CopyResponseHeader(name string) bool {
	name = http.CanonicalHeaderKey(name)
	if hopByHop[name] {
		return false
	}
	return !d.discardResponse[name]
}

// Copy adds the fields of src that decide accepts to dst. Fields listed in
// the Connection field of src are never copied.
func Copy(dst, src http.Header, decide func(name string) bool) {
	connection := make(map[string]bool)
	for _, v := range src.Values("Connection") {
		for _, token := range strings.Split(v, ",") {
			if token = strings.TrimSpace(token); token != "" {
				connection[http.CanonicalHeaderKey(token)] = true
			}
		}
	}
	for name, values := range src {
		if connection[http.CanonicalHeaderKey(name)] || !decide(name) {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}
