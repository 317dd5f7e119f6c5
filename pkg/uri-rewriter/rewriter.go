// Package urirewriter decides which physical host a fragment is fetched from
// and which virtual host the fetch claims to be for.
package urirewriter

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Host identifies an HTTP endpoint. Port 0 means the scheme default.
type Host struct {
	Scheme   string
	Hostname string
	Port     int
}

func defaultPort(scheme string) int {
	switch scheme {
	case "http":
		return 80
	case "https":
		return 443
	}
	return 0
}

// HostString returns the authority as it appears in a Host header.
func (h Host) HostString() string {
	hostname := h.Hostname
	if strings.Contains(hostname, ":") {
		hostname = "[" + hostname + "]"
	}
	if h.Port == 0 || h.Port == defaultPort(h.Scheme) {
		return hostname
	}
	return hostname + ":" + strconv.Itoa(h.Port)
}

func (h Host) String() string {
	return h.Scheme + "://" + h.HostString()
}

func (h Host) IsZero() bool {
	return h.Hostname == ""
}

// InvalidURIError is returned for URIs a fragment cannot be fetched from.
type InvalidURIError struct {
	URI    string
	Reason string
	Err    error
}

func (e *InvalidURIError) Error() string {
	msg := "Invalid URI " + strconv.Quote(e.URI)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidURIError) Unwrap() error {
	return e.Err
}

// ExtractHost returns the host of an absolute http or https URI.
func ExtractHost(uri string) (Host, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Host{}, &InvalidURIError{URI: uri, Err: err}
	}
	if !u.IsAbs() {
		return Host{}, &InvalidURIError{URI: uri, Reason: "not absolute"}
	}
	scheme := strings.ToLower(u.Scheme)
	if defaultPort(scheme) == 0 {
		return Host{}, &InvalidURIError{URI: uri, Reason: fmt.Sprintf("unsupported scheme %s", u.Scheme)}
	}
	host, err := ParseAuthority(scheme, u.Host)
	if err != nil {
		return Host{}, &InvalidURIError{URI: uri, Err: err}
	}
	return host, nil
}

// ParseAuthority parses a host[:port] authority, for example the value of a
// Host header.
func ParseAuthority(scheme, authority string) (Host, error) {
	scheme = strings.ToLower(scheme)
	// url.URL splits host and port without validating the whole URL
	u := &url.URL{Host: strings.TrimSpace(authority)}
	hostname := strings.ToLower(u.Hostname())
	if hostname == "" {
		return Host{}, fmt.Errorf("missing host in %q", authority)
	}
	h := Host{Scheme: scheme, Hostname: hostname}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return Host{}, fmt.Errorf("invalid port %q", p)
		}
		if port != defaultPort(scheme) {
			h.Port = port
		}
	} else if strings.HasSuffix(u.Host, ":") {
		return Host{}, fmt.Errorf("empty port in %q", authority)
	}
	return h, nil
}

// RewriteURI replaces scheme and authority of uri with host, keeping path,
// query and fragment untouched.
func RewriteURI(uri string, host Host) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", &InvalidURIError{URI: uri, Err: err}
	}
	u.Scheme = host.Scheme
	u.Host = host.HostString()
	return u.String(), nil
}

// Rewrite is the outcome of preparing a target URI for fetching.
type Rewrite struct {
	// Target is the host the request is routed to.
	Target Host
	// Virtual is the host the request identifies itself as, used for the
	// Host header and the cache key.
	Virtual Host
	// URI is the target URI rewritten onto Virtual.
	URI string
}

// RewriteForFetch resolves the hosts of a fragment fetch. When preserveHost
// is set the virtual host is the host the incoming request addressed,
// otherwise it is the target host itself.
func RewriteForFetch(targetURI string, incoming Host, preserveHost bool) (Rewrite, error) {
	target, err := ExtractHost(targetURI)
	if err != nil {
		return Rewrite{}, err
	}
	virtual := target
	if preserveHost {
		if incoming.IsZero() {
			return Rewrite{}, &InvalidURIError{URI: targetURI, Reason: "incoming host unknown"}
		}
		virtual = incoming
	}
	uri, err := RewriteURI(targetURI, virtual)
	if err != nil {
		return Rewrite{}, err
	}
	return Rewrite{Target: target, Virtual: virtual, URI: uri}, nil
}
