package fragmentgateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"

	"github.com/always-cache/fragment-gateway/fragment"
	"github.com/always-cache/fragment-gateway/transport"
)

// classifyFailure maps a transport error to the status and reason of the
// response shown in place of the fragment.
func classifyFailure(err error) (int, string) {
	if errors.Is(err, transport.ErrFetchCancelled) {
		return http.StatusBadGateway, "Fetch cancelled"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return http.StatusBadGateway, "Unknown host"
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return http.StatusBadGateway, "Connection refused"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" && opErr.Timeout() {
		return http.StatusBadGateway, "Connection timeout"
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return http.StatusGatewayTimeout, "Socket timeout"
	}
	return http.StatusBadGateway, "Error retrieving URL"
}

func failureResponse(err error) *http.Response {
	status, reason := classifyFailure(err)
	return fragment.NewResponse(status, reason, reason)
}
