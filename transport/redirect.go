package transport

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/always-cache/fragment-gateway/fragment"
)

// RedirectStrategy turns a request configuration into an http.Client
// CheckRedirect function.
type RedirectStrategy interface {
	CheckRedirect(config fragment.RequestConfig) func(req *http.Request, via []*http.Request) error
}

var ErrCircularRedirect = errors.New("Circular redirect")

// DefaultRedirects follows redirects when the configuration enables them.
// Redirects to the virtual or target host of the first request keep its
// routing and its Host header.
type DefaultRedirects struct{}

func (DefaultRedirects) CheckRedirect(config fragment.RequestConfig) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if !config.RedirectsEnabled {
			return http.ErrUseLastResponse
		}
		max := config.MaxRedirects
		if max <= 0 {
			max = 10
		}
		if len(via) > max {
			return fmt.Errorf("Stopped after %d redirects", max)
		}
		first := via[0]
		if first.Host != "" && first.Host != first.URL.Host {
			switch req.URL.Host {
			case first.Host:
				req.URL.Scheme = first.URL.Scheme
				req.URL.Host = first.URL.Host
				req.Host = first.Host
			case first.URL.Host:
				req.Host = first.Host
			}
		}
		if !config.CircularRedirectsAllowed {
			for _, prev := range via {
				if prev.URL.String() == req.URL.String() {
					return fmt.Errorf("%w to %s", ErrCircularRedirect, req.URL)
				}
			}
		}
		return nil
	}
}

// NoRedirects never follows redirects; the redirect response is returned.
type NoRedirects struct{}

func (NoRedirects) CheckRedirect(fragment.RequestConfig) func(req *http.Request, via []*http.Request) error {
	return func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
}
