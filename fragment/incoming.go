// Package fragment holds the data model of a fragment fetch: the request the
// client made, the request sent to the origin, and the event passed through
// the extension hooks.
package fragment

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"

	urirewriter "github.com/always-cache/fragment-gateway/pkg/uri-rewriter"
)

// UserContext identifies the client a fragment is fetched for.
type UserContext struct {
	User       string
	SessionID  string
	Attributes map[string]string
}

// IncomingRequest is the client request fragments are fetched for. It is
// never modified once built.
type IncomingRequest struct {
	Method     string
	URI        string
	ProtoMajor int
	ProtoMinor int
	Header     http.Header
	// Body is buffered so it can be replayed into any number of fetches.
	Body       []byte
	User       UserContext
	Driver     string
	RemoteAddr string
}

// NewIncomingRequest buffers the request body and resolves the absolute URI
// the client addressed. The body of r is replaced with the buffered copy.
func NewIncomingRequest(r *http.Request, driver string) (*IncomingRequest, error) {
	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		b, err := io.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("Could not read request body: %w", err)
		}
		r.Body = io.NopCloser(bytes.NewReader(b))
		body = b
	}
	header := r.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	// net/http moves the Host header to r.Host
	if header.Get("Host") == "" && r.Host != "" {
		header.Set("Host", r.Host)
	}
	in := &IncomingRequest{
		Method:     r.Method,
		URI:        absoluteURI(r),
		ProtoMajor: r.ProtoMajor,
		ProtoMinor: r.ProtoMinor,
		Header:     header,
		Body:       body,
		Driver:     driver,
		RemoteAddr: r.RemoteAddr,
	}
	if user, _, ok := r.BasicAuth(); ok {
		in.User.User = user
	}
	return in, nil
}

func absoluteURI(r *http.Request) string {
	if r.URL.IsAbs() {
		return r.URL.String()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

// Host returns the host the client addressed: the scheme of the URI with
// the authority of the Host header, or of the URI when there is none.
func (in *IncomingRequest) Host() (urirewriter.Host, error) {
	u, err := url.Parse(in.URI)
	if err != nil {
		return urirewriter.Host{}, &urirewriter.InvalidURIError{URI: in.URI, Err: err}
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "http"
	}
	authority := in.Header.Get("Host")
	if authority == "" {
		authority = u.Host
	}
	h, err := urirewriter.ParseAuthority(scheme, authority)
	if err != nil {
		return urirewriter.Host{}, &urirewriter.InvalidURIError{URI: in.URI, Err: err}
	}
	return h, nil
}

// Cookies parses the Cookie header.
func (in *IncomingRequest) Cookies() []*http.Cookie {
	r := &http.Request{Header: http.Header{"Cookie": in.Header.Values("Cookie")}}
	return r.Cookies()
}
