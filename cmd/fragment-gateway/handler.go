package main

import (
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	fragmentgateway "github.com/always-cache/fragment-gateway"
	"github.com/always-cache/fragment-gateway/fragment"
	urirewriter "github.com/always-cache/fragment-gateway/pkg/uri-rewriter"
)

const driverName = "fragment-gateway"

type gateway struct {
	executor      *fragmentgateway.RequestExecutor
	backend       *url.URL
	sessionCookie string
	log           zerolog.Logger
}

// routes serves fragments on /fragment and passes everything else through
// to the backend. metrics may be nil.
func (g *gateway) routes(metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/fragment", g.serveFragment)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	r.HandleFunc("/*", g.passThrough)
	return r
}

func (g *gateway) incoming(r *http.Request) (*fragment.IncomingRequest, error) {
	in, err := fragment.NewIncomingRequest(r, driverName)
	if err != nil {
		return nil, err
	}
	if g.sessionCookie != "" {
		if c, err := r.Cookie(g.sessionCookie); err == nil {
			in.User.SessionID = c.Value
		}
	}
	return in, nil
}

func (g *gateway) serveFragment(w http.ResponseWriter, r *http.Request) {
	src := r.URL.Query().Get("src")
	if src == "" {
		http.Error(w, "Missing src", http.StatusBadRequest)
		return
	}
	// relative sources are fetched from the backend
	target, err := g.backend.Parse(src)
	if err != nil {
		http.Error(w, "Invalid src", http.StatusBadRequest)
		return
	}
	g.serve(w, r, target.String(), false)
}

func (g *gateway) passThrough(w http.ResponseWriter, r *http.Request) {
	target := *g.backend
	target.Path = ""
	target.RawPath = ""
	target.RawQuery = ""
	g.serve(w, r, target.String()+r.URL.RequestURI(), true)
}

func (g *gateway) serve(w http.ResponseWriter, r *http.Request, uri string, proxy bool) {
	in, err := g.incoming(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := g.executor.CreateAndExecuteRequest(r.Context(), in, uri, proxy)
	if err != nil {
		g.writeError(w, uri, err)
		return
	}
	defer res.Body.Close()
	writeResponse(w, res)
}

func (g *gateway) writeError(w http.ResponseWriter, uri string, err error) {
	var page *fragmentgateway.HTTPErrorPage
	var uriErr *urirewriter.InvalidURIError
	var methodErr *fragmentgateway.UnsupportedMethodError
	switch {
	case errors.As(err, &page):
		g.log.Debug().Str("uri", uri).Int("status", page.StatusCode).Bool("truncated", page.Truncated).Msg("Serving error page")
		page.Render(w)
	case errors.As(err, &uriErr):
		http.Error(w, uriErr.Error(), http.StatusBadRequest)
	case errors.As(err, &methodErr):
		http.Error(w, methodErr.Error(), http.StatusMethodNotAllowed)
	default:
		g.log.Error().Err(err).Str("uri", uri).Msg("Could not serve request")
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func writeResponse(w http.ResponseWriter, res *http.Response) {
	copyHeader(w.Header(), res.Header)
	w.WriteHeader(res.StatusCode)
	io.Copy(w, res.Body)
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
