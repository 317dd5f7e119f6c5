package rfc9111

import "net/http"

// HasValidators returns whether a stored response can be validated with a
// conditional request.
func HasValidators(res *http.Response) bool {
	return res.Header.Get("ETag") != "" || res.Header.Get("Last-Modified") != ""
}

// ConditionalRequest returns a copy of the request made conditional on the
// validators of the stored response.
//
// §  4.3.1.  Sending a Validation Request
// §
// §     When generating a conditional request for validation, a cache either
// §     starts with a request it is attempting to satisfy or -- if it is
// §     initiating the request independently -- synthesizes a request using a
// §     stored response by copying the method, target URI, and request header
// §     fields identified by the Vary header field (Section 4.1).
// §
// §     It then updates that request with one or more precondition header
// §     fields.  These contain validator metadata sourced from a stored
// §     response(s) that has the same URI.
func ConditionalRequest(req *http.Request, stored *http.Response) *http.Request {
	r := req.Clone(req.Context())
	if etag := stored.Header.Get("ETag"); etag != "" {
		r.Header.Set("If-None-Match", etag)
	}
	// §     When generating a conditional request for validation, a cache
	// §     SHOULD send an If-Modified-Since header field with the
	// §     Last-Modified value of the stored response.
	if lastModified := stored.Header.Get("Last-Modified"); lastModified != "" {
		r.Header.Set("If-Modified-Since", lastModified)
	}
	return r
}

// Freshen updates the stored response with the header fields of a 304
// validation response.
//
// §  4.3.4.  Freshening Stored Responses upon Validation
// §
// §     For each stored response identified, the cache MUST update its header
// §     fields with the header fields provided in the 304 (Not Modified)
// §     response, as per Section 3.2.
func Freshen(stored *http.Response, validation *http.Response) {
	updateStoredHeader(stored.Header, validation.Header)
}
