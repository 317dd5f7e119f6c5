package cachekey

import (
	"net/http"
	"strings"

	"github.com/always-cache/fragment-gateway/rfc9111"
)

const (
	namespaceSeparator = ":"
	methodSeparator    = ":"
	varySeparator      = "\t"
)

// CacheKeyer builds storage keys from the URI that identifies a resource to
// the client, i.e. the virtual host, never the physical node a request is
// routed to.
type CacheKeyer struct {
	// Namespace separates entries of several gateways sharing one storage.
	Namespace string
	// Cache key prefix for this namespace
	NamespacePrefix string
}

func NewCacheKeyer(namespace string) CacheKeyer {
	return CacheKeyer{
		Namespace:       namespace,
		NamespacePrefix: namespace + namespaceSeparator,
	}
}

// VirtualURI returns the absolute URI of the request as addressed by its
// Host header rather than by the URL it is routed to.
func VirtualURI(r *http.Request) string {
	scheme := r.URL.Scheme
	if scheme == "" {
		scheme = "http"
	}
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	return strings.ToLower(scheme) + "://" + strings.ToLower(host) + r.URL.RequestURI()
}

// GetKeyPrefix returns the cache key for a request without the vary headers (i.e. a key prefix).
// The returned key is suitable for finding all stored response variants for a particular request.
func (c CacheKeyer) GetKeyPrefix(r *http.Request) string {
	return c.MethodPrefix(r.Method) + VirtualURI(r) + varySeparator
}

// MethodPrefix gets the key prefix for the namespace with the given method.
func (c CacheKeyer) MethodPrefix(method string) string {
	return c.NamespacePrefix + method + methodSeparator
}

// AddVaryKeys returns the full cache key (including vary headers) based on a previously generated
// cache key prefix and the request and response involved.
func (c CacheKeyer) AddVaryKeys(prefix string, req *http.Request, res *http.Response) string {
	key := prefix
	for _, name := range rfc9111.GetListHeader(res.Header, "Vary") {
		if !rfc9111.FieldAbsent(req.Header, name) {
			key = key + "\n" + strings.ToLower(name) + ": " + strings.Join(req.Header.Values(name), ", ")
		}
	}
	return key
}
