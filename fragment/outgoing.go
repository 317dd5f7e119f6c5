package fragment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	urirewriter "github.com/always-cache/fragment-gateway/pkg/uri-rewriter"
)

type CookiePolicy string

// CookiePolicyBrowserCompatibility accepts cookies the way browsers do.
const CookiePolicyBrowserCompatibility CookiePolicy = "browser-compatibility"

// RequestConfig holds the transport settings of one fetch.
type RequestConfig struct {
	ConnectTimeout           time.Duration
	SocketTimeout            time.Duration
	CircularRedirectsAllowed bool
	RedirectsEnabled         bool
	MaxRedirects             int
	CookiePolicy             CookiePolicy
}

// OutgoingRequest is the request sent to a fragment origin.
type OutgoingRequest struct {
	Method     string
	ProtoMajor int
	ProtoMinor int
	Header     http.Header
	// Body is nil for methods without an entity.
	Body   []byte
	Config RequestConfig
	// TargetHost is where the request is routed.
	TargetHost urirewriter.Host
	// VirtualHost is the host the request identifies itself as.
	VirtualHost urirewriter.Host
	Proxy       bool

	uri      string
	original *IncomingRequest
}

func NewOutgoingRequest(method, uri string, protoMajor, protoMinor int, original *IncomingRequest) *OutgoingRequest {
	if protoMajor == 0 {
		protoMajor, protoMinor = 1, 1
	}
	return &OutgoingRequest{
		Method:     method,
		ProtoMajor: protoMajor,
		ProtoMinor: protoMinor,
		Header:     make(http.Header),
		uri:        uri,
		original:   original,
	}
}

// URI returns the request URI, expressed on the virtual host.
func (o *OutgoingRequest) URI() string {
	return o.uri
}

// SetURI replaces the request URI. The target host is unchanged.
func (o *OutgoingRequest) SetURI(uri string) {
	o.uri = uri
}

// Original returns the client request this request was built for.
func (o *OutgoingRequest) Original() *IncomingRequest {
	return o.original
}

func (o *OutgoingRequest) User() UserContext {
	if o.original == nil {
		return UserContext{}
	}
	return o.original.User
}

func (o *OutgoingRequest) Driver() string {
	if o.original == nil {
		return ""
	}
	return o.original.Driver
}

func (o *OutgoingRequest) String() string {
	return fmt.Sprintf("%s %s HTTP/%d.%d", o.Method, o.uri, o.ProtoMajor, o.ProtoMinor)
}

// HTTPRequest renders the request for the transport: the URL points at the
// target host and Host carries the virtual host.
func (o *OutgoingRequest) HTTPRequest(ctx context.Context) (*http.Request, error) {
	u, err := url.Parse(o.uri)
	if err != nil {
		return nil, &urirewriter.InvalidURIError{URI: o.uri, Err: err}
	}
	if !o.TargetHost.IsZero() {
		u.Scheme = o.TargetHost.Scheme
		u.Host = o.TargetHost.HostString()
	}
	u.Fragment = ""
	u.RawFragment = ""
	var body io.Reader
	if o.Body != nil {
		body = bytes.NewReader(o.Body)
	}
	req, err := http.NewRequestWithContext(ctx, o.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("Could not create request %s: %w", o, err)
	}
	req.Header = o.Header.Clone()
	req.Host = req.Header.Get("Host")
	req.Header.Del("Host")
	if req.Host == "" && !o.VirtualHost.IsZero() {
		req.Host = o.VirtualHost.HostString()
	}
	req.Proto = fmt.Sprintf("HTTP/%d.%d", o.ProtoMajor, o.ProtoMinor)
	req.ProtoMajor = o.ProtoMajor
	req.ProtoMinor = o.ProtoMinor
	return req, nil
}
