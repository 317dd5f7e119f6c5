package fragmentgateway

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	headerfilter "github.com/always-cache/fragment-gateway/pkg/header-filter"
)

// maxErrorPageSize bounds the body kept from an error response.
const maxErrorPageSize = 1 << 20

// ErrCancelledByServer is wrapped by the error page returned when a hook
// cancelled the request.
var ErrCancelledByServer = errors.New("Request was cancelled by server")

// UnsupportedMethodError is returned for methods that cannot be fetched.
type UnsupportedMethodError struct {
	Method string
	URI    string
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("Method %s not supported for %s", e.Method, e.URI)
}

// HTTPErrorPage is an error response of an origin, or the page shown when the
// fetch produced no response.
type HTTPErrorPage struct {
	StatusCode int
	Reason     string
	Header     http.Header
	Body       []byte
	// Truncated is set when the body of the origin exceeded the size kept.
	Truncated bool

	cause error
}

// NewHTTPErrorPage reads and closes the body of res. At most 1 MiB of the
// body is kept.
func NewHTTPErrorPage(res *http.Response) *HTTPErrorPage {
	page := &HTTPErrorPage{
		StatusCode: res.StatusCode,
		Reason:     reasonPhrase(res),
		Header:     res.Header.Clone(),
	}
	if page.Header == nil {
		page.Header = make(http.Header)
	}
	if res.Body != nil {
		body, err := io.ReadAll(io.LimitReader(res.Body, maxErrorPageSize+1))
		res.Body.Close()
		if len(body) > maxErrorPageSize {
			body = body[:maxErrorPageSize]
			page.Truncated = true
		}
		page.Body = body
		page.cause = err
	}
	return page
}

func cancelledPage() *HTTPErrorPage {
	header := make(http.Header)
	header.Set("Content-Type", "text/plain; charset=utf-8")
	return &HTTPErrorPage{
		StatusCode: http.StatusInternalServerError,
		Reason:     ErrCancelledByServer.Error(),
		Header:     header,
		Body:       []byte(ErrCancelledByServer.Error()),
		cause:      ErrCancelledByServer,
	}
}

func reasonPhrase(res *http.Response) string {
	reason := strings.TrimSpace(strings.TrimPrefix(res.Status, strconv.Itoa(res.StatusCode)))
	if reason == "" {
		reason = http.StatusText(res.StatusCode)
	}
	return reason
}

func (e *HTTPErrorPage) Error() string {
	return fmt.Sprintf("HTTP error %d %s", e.StatusCode, e.Reason)
}

func (e *HTTPErrorPage) Unwrap() error {
	return e.cause
}

// Render writes the page as the response to the client.
func (e *HTTPErrorPage) Render(w http.ResponseWriter) {
	headerfilter.Copy(w.Header(), e.Header, func(name string) bool {
		return name != "Content-Length" && name != "Set-Cookie"
	})
	w.Header().Set("Content-Length", strconv.Itoa(len(e.Body)))
	w.WriteHeader(e.StatusCode)
	w.Write(e.Body)
}
