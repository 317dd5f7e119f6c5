package rfc9111

import "net/http"

func mustNotStore(req *http.Request, res *http.Response) bool {
	resCacheControl := ParseCacheControl(res.Header.Values("Cache-Control"))
	// §    A cache MUST NOT store a response to a request unless:
	// §      *  the request method is understood by the cache;
	if !requestMethodIsUnderstood(req.Method) {
		return true
	}
	// §      *  the response status code is final (see Section 15 of [HTTP]);
	if !responseStatusCodeIsFinal(res.StatusCode) {
		return true
	}
	// §      *  if the response status code is 206 or 304, or the must-understand
	// §         cache directive (see Section 5.2.2.3) is present: the cache
	// §         understands the response status code;
	if !statusCodeUnderstoodIfNeeded(res, resCacheControl) {
		return true
	}
	// §      *  the no-store cache directive is not present in the response (see
	// §         Section 5.2.2.5);
	if resCacheControl.HasDirective("no-store") {
		return true
	}
	// §      *  if the cache is shared: the private response directive is either
	// §         not present or allows a shared cache to store a modified response;
	// a qualified private lists the fields to drop before storing
	if resCacheControl.HasDirective("private") && len(resCacheControl.FieldNames("private")) == 0 {
		return true
	}
	// §      *  if the cache is shared: the Authorization header field is not
	// §         present in the request (see Section 11.6.2 of [HTTP]) or a
	// §         response directive is present that explicitly allows shared
	// §         caching (see Section 3.5); and
	if req.Header.Get("Authorization") != "" && !mayUseResponseForAuthenticatedRequest(resCacheControl) {
		return true
	}
	// §      *  the response contains at least one of the following:
	// §         -  a public response directive (see Section 5.2.2.9);
	// §         -  an Expires header field (see Section 5.3);
	// §         -  a max-age response directive (see Section 5.2.2.1);
	// §         -  if the cache is shared: an s-maxage response directive (see
	// §            Section 5.2.2.10);
	return !(resCacheControl.HasDirective("public") ||
		res.Header.Get("Expires") != "" ||
		resCacheControl.HasDirective("max-age") ||
		resCacheControl.HasDirective("s-maxage"))
}

// §  3.5.  Storing Responses to Authenticated Requests
// §
// §     A shared cache MUST NOT use a cached response to a request with an
// §     Authorization header field (Section 11.6.2 of [HTTP]) to satisfy any
// §     subsequent request unless the response contains a Cache-Control field
// §     with a response directive (Section 5.2.2) that allows it to be stored
// §     by a shared cache, and the cache conforms to the requirements of that
// §     directive for that response.
func mayUseResponseForAuthenticatedRequest(resCacheControl CacheControl) bool {
	return resCacheControl.HasDirective("public") ||
		resCacheControl.HasDirective("s-maxage") ||
		resCacheControl.HasDirective("must-revalidate")
}

func statusCodeUnderstoodIfNeeded(res *http.Response, resCacheControl CacheControl) bool {
	if res.StatusCode == 206 || res.StatusCode == 304 || resCacheControl.HasDirective("must-understand") {
		return responseStatusCodeIsUnderstood(res.StatusCode)
	}
	return true
}

// only GET responses are ever stored
func requestMethodIsUnderstood(method string) bool {
	return method == http.MethodGet
}

func responseStatusCodeIsUnderstood(statusCode int) bool {
	switch statusCode {
	case 200, 203, 204, 300, 301, 308, 404, 405, 410, 414, 501:
		return true
	}
	return false
}

func responseStatusCodeIsFinal(statusCode int) bool {
	return statusCode >= 200 && statusCode <= 599
}
