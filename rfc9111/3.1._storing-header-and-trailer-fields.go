package rfc9111

import "net/http"

// StorableHeader returns a copy of the header with the fields removed that
// must not be stored.
func StorableHeader(header http.Header) http.Header {
	if header == nil {
		return nil
	}
	// §     Caches MUST include all received response header fields -- including
	// §     unrecognized ones -- when storing a response; this assures that new
	// §     HTTP header fields can be successfully deployed.  However, the
	// §     following exceptions are made:
	h := header.Clone()
	// §     *  The Connection header field and fields whose names are listed in
	// §        it are required by Section 7.6.1 of [HTTP] to be removed before
	// §        forwarding the message.  This MAY be implemented by doing so
	// §        before storage.
	for _, name := range GetListHeader(header, "Connection") {
		h.Del(name)
	}
	h.Del("Connection")
	h.Del("Proxy-Connection")
	h.Del("Keep-Alive")
	h.Del("TE")
	h.Del("Transfer-Encoding")
	h.Del("Upgrade")
	// §     *  Header fields that are specific to the proxy that a cache uses
	// §        when forwarding a request MUST NOT be stored, unless the cache
	// §        incorporates the identity of the proxy into the cache key.
	h.Del("Proxy-Authenticate")
	h.Del("Proxy-Authentication-Info")
	h.Del("Proxy-Authorization")
	// §  The qualified form of the private response directive [...] indicates
	// §  that only the listed header fields are limited to a single user
	for _, name := range ParseCacheControl(header.Values("Cache-Control")).FieldNames("private") {
		h.Del(name)
	}
	// cookies belong to the user that triggered the fetch
	h.Del("Set-Cookie")
	// the stored body length is authoritative
	h.Del("Content-Length")
	return h
}
