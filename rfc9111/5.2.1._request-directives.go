package rfc9111

import (
	"net/http"
	"strings"
)

// RequestForbidsReuse returns whether the request directives prevent
// satisfying the request from storage without contacting the origin.
//
// §  5.2.1.4.  no-cache
// §
// §     The no-cache request directive indicates that the client prefers a
// §     stored response not be used to satisfy the request without successful
// §     validation on the origin server.
func RequestForbidsReuse(req *http.Request) bool {
	cc := ParseCacheControl(req.Header.Values("Cache-Control"))
	if cc.HasDirective("no-cache") {
		return true
	}
	if maxAge, ok := cc.MaxAge(); ok && maxAge == 0 {
		return true
	}
	// §  5.4.  Pragma
	// §
	// §     When the Cache-Control header field is not present in a request,
	// §     caches MUST consider the no-cache request pragma directive as having
	// §     the same effect as if "Cache-Control: no-cache" were present.
	if FieldAbsent(req.Header, "Cache-Control") {
		for _, pragma := range GetListHeader(req.Header, "Pragma") {
			if strings.EqualFold(pragma, "no-cache") {
				return true
			}
		}
	}
	return false
}

// RequestForbidsStore returns whether the request carries no-store.
//
// §  5.2.1.5.  no-store
// §
// §     The no-store request directive indicates that a cache MUST NOT store
// §     any part of either this request or any response to it.
func RequestForbidsStore(req *http.Request) bool {
	return ParseCacheControl(req.Header.Values("Cache-Control")).HasDirective("no-store")
}
