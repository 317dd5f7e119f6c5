package fragment

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// NewResponse synthesizes a plain text response, for hooks that answer a
// fetch without contacting the origin.
func NewResponse(statusCode int, reason, body string) *http.Response {
	if reason == "" {
		reason = http.StatusText(statusCode)
	}
	header := make(http.Header)
	header.Set("Content-Type", "text/plain; charset=utf-8")
	header.Set("Content-Length", strconv.Itoa(len(body)))
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", statusCode, reason),
		StatusCode:    statusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}
