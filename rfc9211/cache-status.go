// Package rfc9211 renders the Cache-Status response header field (RFC 9211).
package rfc9211

import (
	"fmt"
	"strings"
	"time"
)

// §  2.  The Cache-Status HTTP Response Header Field
// §
// §     The Cache-Status HTTP response header field indicates how caches have
// §     handled that response and its corresponding request.
const HeaderName = "Cache-Status"

type Status string

const (
	StatusHit Status = "hit"
	StatusFwd Status = "fwd"
)

// FwdReason is the value of the "fwd" parameter.
type FwdReason string

const (
	// The cache was configured to not handle this request.
	FwdReasonBypass FwdReason = "bypass"
	// The request method's semantics require the request to be
	// forwarded.
	FwdReasonMethod FwdReason = "method"
	// The cache did not contain any responses that matched the
	// request URI.
	FwdReasonUriMiss FwdReason = "uri-miss"
	// The cache contained a response that matched the request
	// URI, but it could not select a response based upon this request's
	// header fields and stored Vary header fields.
	FwdReasonVaryMiss FwdReason = "vary-miss"
	// The cache did not contain any responses that could be used to
	// satisfy this request.
	FwdReasonMiss FwdReason = "miss"
	// The cache was able to select a fresh response for the
	// request, but the request's semantics did not allow its use.
	FwdReasonRequest FwdReason = "request"
	// The cache was able to select a response for the request, but
	// it was stale.
	FwdReasonStale FwdReason = "stale"
)

// CacheStatus collects the parameters of one Cache-Status list member.
type CacheStatus struct {
	Name      string
	status    Status
	fwdReason FwdReason
	fwdStatus int
	ttl       *time.Duration
	stored    bool
	detail    string
}

func New(name string) *CacheStatus {
	return &CacheStatus{Name: name}
}

func (cs *CacheStatus) Hit() {
	cs.status = StatusHit
	cs.fwdReason = ""
}

func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.status = StatusFwd
	cs.fwdReason = reason
}

// ForwardStatus records the status code the next hop returned.
func (cs *CacheStatus) ForwardStatus(statusCode int) {
	cs.fwdStatus = statusCode
}

// TimeToLive records the remaining freshness of the response.
func (cs *CacheStatus) TimeToLive(ttl time.Duration) {
	cs.ttl = &ttl
}

func (cs *CacheStatus) Stored() {
	cs.stored = true
}

func (cs *CacheStatus) Detail(detail string) {
	cs.detail = detail
}

func (cs *CacheStatus) IsHit() bool {
	return cs.status == StatusHit
}

func (cs *CacheStatus) Reason() FwdReason {
	return cs.fwdReason
}

func (cs *CacheStatus) String() string {
	var b strings.Builder
	b.WriteString(cs.Name)
	if cs.status == StatusHit {
		b.WriteString("; hit")
	}
	if cs.status == StatusFwd {
		b.WriteString("; fwd=")
		if cs.fwdReason != "" {
			b.WriteString(string(cs.fwdReason))
		} else {
			b.WriteString(string(FwdReasonMiss))
		}
		if cs.fwdStatus != 0 {
			fmt.Fprintf(&b, "; fwd-status=%d", cs.fwdStatus)
		}
	}
	if cs.ttl != nil {
		fmt.Fprintf(&b, "; ttl=%d", int64(cs.ttl.Seconds()))
	}
	if cs.stored {
		b.WriteString("; stored")
	}
	if cs.detail != "" {
		b.WriteString("; detail=" + cs.detail)
	}
	return b.String()
}
