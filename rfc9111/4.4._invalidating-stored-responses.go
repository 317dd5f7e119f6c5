package rfc9111

import "net/http"

// §  4.4.  Invalidating Stored Responses
// §
// §     Because unsafe request methods (Section 9.2.1 of [HTTP]) such as PUT,
// §     POST, or DELETE have the potential for changing state on the origin
// §     server, intervening caches are required to invalidate stored
// §     responses to keep their contents up to date.
// §
// §     A cache MUST invalidate the target URI (Section 7.1 of [HTTP]) when it
// §     receives a non-error status code in response to an unsafe request
// §     method (including methods whose safety is unknown).
func UnsafeRequest(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace, "PROPFIND":
		return false
	}
	return true
}

// MustInvalidate returns whether the response to an unsafe request requires
// invalidating the stored responses of the target URI.
func MustInvalidate(req *http.Request, res *http.Response) bool {
	// §     [...] a non-error status code [...]
	return UnsafeRequest(req) && res.StatusCode >= 200 && res.StatusCode < 400
}
