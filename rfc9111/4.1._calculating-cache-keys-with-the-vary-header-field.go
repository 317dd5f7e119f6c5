package rfc9111

import "net/http"

// §     A stored response with a Vary header field value containing a member
// §     "*" always fails to match.
func VaryWildcard(res *http.Response) bool {
	for _, name := range GetListHeader(res.Header, "Vary") {
		if name == "*" {
			return true
		}
	}
	return false
}
