package fragmentgateway

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/always-cache/fragment-gateway/fragment"
	headerfilter "github.com/always-cache/fragment-gateway/pkg/header-filter"
	httpmethod "github.com/always-cache/fragment-gateway/pkg/http-method"
	urirewriter "github.com/always-cache/fragment-gateway/pkg/uri-rewriter"
)

// CreateRequest builds the request fetching uri for the client request in.
// A proxied request keeps the method and body of in, any other request is a
// GET that follows redirects.
func (e *RequestExecutor) CreateRequest(in *fragment.IncomingRequest, uri string, proxy bool) (*fragment.OutgoingRequest, error) {
	if in == nil {
		return nil, errors.New("Missing incoming request")
	}
	var incoming urirewriter.Host
	if e.config.PreserveHost {
		h, err := in.Host()
		if err != nil {
			return nil, err
		}
		incoming = h
	}
	rw, err := urirewriter.RewriteForFetch(uri, incoming, e.config.PreserveHost)
	if err != nil {
		return nil, err
	}

	method := http.MethodGet
	if proxy {
		method = strings.ToUpper(in.Method)
	}
	req := fragment.NewOutgoingRequest(method, rw.URI, in.ProtoMajor, in.ProtoMinor, in)
	switch httpmethod.Classify(method) {
	case httpmethod.EntityBearing:
		req.Body = bytes.Clone(in.Body)
		if req.Body == nil {
			req.Body = []byte{}
		}
	case httpmethod.Simple:
	default:
		return nil, &UnsupportedMethodError{Method: method, URI: uri}
	}

	req.Config = fragment.RequestConfig{
		ConnectTimeout:           e.config.ConnectTimeout,
		SocketTimeout:            e.config.SocketTimeout,
		CircularRedirectsAllowed: true,
		RedirectsEnabled:         !proxy,
		MaxRedirects:             e.config.MaxRedirects,
		CookiePolicy:             fragment.CookiePolicyBrowserCompatibility,
	}
	headerfilter.Copy(req.Header, in.Header, e.headers.CopyRequestHeader)
	req.Header.Set("Host", rw.Virtual.HostString())
	req.TargetHost = rw.Target
	req.VirtualHost = rw.Virtual
	req.Proxy = proxy

	e.log.Trace().Str("request", req.String()).Str("target", rw.Target.String()).Msg("Created request")
	return req, nil
}

// Execute runs the hooks and, unless a hook answered the request, fetches it.
// I/O failures are returned as a synthesized 502 or 504 response. The result
// is nil when a hook cancelled the request.
func (e *RequestExecutor) Execute(ctx context.Context, req *fragment.OutgoingRequest) *http.Response {
	execCtx := fragment.NewExecContext()
	if e.cookies != nil && req.Original() != nil {
		if jar := e.cookies.BridgeStoreFor(req.Original()); jar != nil {
			execCtx.CookieJar = jar
			// the jar supplies the cookies
			req.Header.Del("Cookie")
		}
	}

	evt := fragment.NewEvent(req, execCtx)
	logger := e.log.With().Str("id", evt.ID).Str("uri", req.URI()).Logger()

	if e.hooks.FirePre(evt) == fragment.Exit {
		logger.Debug().Bool("response", evt.Response != nil).Msg("Fetch stopped by pre fragment hook")
		return evt.Response
	}

	if evt.Response == nil {
		evt.Response = e.fetch(fragment.WithEvent(ctx, evt), evt, logger)
	} else {
		logger.Trace().Int("status", evt.Response.StatusCode).Msg("Response supplied by hook")
	}

	if e.hooks.FirePost(evt) == fragment.Exit {
		logger.Trace().Msg("Post fragment hooks stopped")
	}

	if evt.Response == nil {
		logger.Debug().Msg("Fetch cancelled by post fragment hook")
	} else {
		logger.Debug().Int("status", evt.Response.StatusCode).Msg("Fetched fragment")
	}
	return evt.Response
}

func (e *RequestExecutor) fetch(ctx context.Context, evt *fragment.Event, logger zerolog.Logger) *http.Response {
	res, err := e.transport.Execute(ctx, evt.Request, evt.Context.CookieJar)
	if err != nil {
		failure := failureResponse(err)
		logger.Warn().Err(err).Int("status", failure.StatusCode).Msg("Could not fetch fragment")
		return failure
	}
	return e.copyResponse(res, evt.Context.CookieJar)
}

// cookieForwarder is implemented by cookie stores that hand origin cookies
// back to the client.
type cookieForwarder interface {
	ForwardedCookies() []*http.Cookie
}

// copyResponse builds the response returned to the caller. The body is the
// unbuffered stream of res. With a jar, the Set-Cookie fields are the
// cookies the jar forwards.
func (e *RequestExecutor) copyResponse(res *http.Response, jar http.CookieJar) *http.Response {
	out := &http.Response{
		Status:        res.Status,
		StatusCode:    res.StatusCode,
		Proto:         res.Proto,
		ProtoMajor:    res.ProtoMajor,
		ProtoMinor:    res.ProtoMinor,
		Header:        make(http.Header, len(res.Header)),
		Body:          res.Body,
		ContentLength: res.ContentLength,
		Request:       res.Request,
		TLS:           res.TLS,
	}
	headerfilter.Copy(out.Header, res.Header, func(name string) bool {
		// cookies set by the origin went to the jar
		if jar != nil && name == "Set-Cookie" {
			return false
		}
		return e.headers.CopyResponseHeader(name)
	})
	if f, ok := jar.(cookieForwarder); ok && e.headers.CopyResponseHeader("Set-Cookie") {
		for _, c := range f.ForwardedCookies() {
			if v := c.String(); v != "" {
				out.Header.Add("Set-Cookie", v)
			}
		}
	}
	return out
}

// CreateAndExecuteRequest creates and executes a request, turning a
// cancelled request or an error response into an *HTTPErrorPage.
func (e *RequestExecutor) CreateAndExecuteRequest(ctx context.Context, in *fragment.IncomingRequest, uri string, proxy bool) (*http.Response, error) {
	req, err := e.CreateRequest(in, uri, proxy)
	if err != nil {
		return nil, err
	}
	res := e.Execute(ctx, req)
	if res == nil {
		return nil, cancelledPage()
	}
	if e.isError(res) {
		page := NewHTTPErrorPage(res)
		if page.Truncated {
			e.log.Warn().Str("uri", req.URI()).Int("status", page.StatusCode).Int("limit", maxErrorPageSize).Msg("Error page body truncated")
		}
		return nil, page
	}
	return res, nil
}
