// Package rfc9111 implements the parts of HTTP Caching (RFC 9111) that a shared
// cache in front of fragment origins needs: storability, freshness, age,
// validation and invalidation.
//
// Files are named after the RFC section they implement. Quoted RFC text is
// prefixed with "§".
package rfc9111

import (
	"net/http"
	"time"
)

// MustNotStore returns whether the response to the given request MUST NOT be
// stored in a shared cache.
func MustNotStore(req *http.Request, res *http.Response) bool {
	return mustNotStore(req, res)
}

// IsFresh returns whether a stored response can be reused without validation.
// The request and response times are the times recorded when the stored
// response was fetched.
func IsFresh(res *http.Response, requestTime, responseTime time.Time) bool {
	return isFresh(res, requestTime, responseTime)
}

// FreshnessLifetime returns the explicit freshness lifetime of the response,
// or zero if it has none.
func FreshnessLifetime(res *http.Response) time.Duration {
	return freshness_lifetime(res)
}

// CurrentAge returns the current age of a stored response.
func CurrentAge(res *http.Response, requestTime, responseTime time.Time) time.Duration {
	return current_age(res, requestTime, responseTime)
}

// AddAgeHeader sets the Age header of a response served from storage.
func AddAgeHeader(res *http.Response, requestTime, responseTime time.Time) {
	res.Header.Set("Age", toDeltaSeconds(current_age(res, requestTime, responseTime)))
}

// TimeToLive returns the remaining freshness of a stored response.
// The value is negative for stale responses.
func TimeToLive(res *http.Response, requestTime, responseTime time.Time) time.Duration {
	return freshness_lifetime(res) - current_age(res, requestTime, responseTime)
}
