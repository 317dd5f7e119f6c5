package transport

import (
	"net/http"

	"github.com/always-cache/fragment-gateway/fragment"
)

// hookRoundTripper fires the fetch hooks around every physical round trip.
type hookRoundTripper struct {
	next  http.RoundTripper
	hooks *fragment.Chain
}

func (h *hookRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	evt := &fragment.FetchEvent{
		HTTPRequest: req,
		Fragment:    fragment.EventFrom(req.Context()),
	}
	if h.hooks.FirePreFetch(evt) == fragment.Exit {
		if evt.HTTPResponse == nil {
			return nil, ErrFetchCancelled
		}
		return withRequest(evt.HTTPResponse, req), nil
	}
	if evt.HTTPResponse == nil {
		res, err := h.next.RoundTrip(evt.HTTPRequest)
		if err != nil {
			return nil, err
		}
		evt.HTTPResponse = res
	}
	h.hooks.FirePostFetch(evt)
	return withRequest(evt.HTTPResponse, req), nil
}

func withRequest(res *http.Response, req *http.Request) *http.Response {
	if res.Request == nil {
		res.Request = req
	}
	return res
}
