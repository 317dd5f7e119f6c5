package transport

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// deadline enforces the socket timeout of a round trip: the time allowed
// without progress while a request is in flight. The timer runs from sending
// the request to the response headers and then between body reads, so idle
// pooled connections are not charged.
type deadline struct {
	next    http.RoundTripper
	timeout time.Duration
}

func newDeadline(next http.RoundTripper, timeout time.Duration) *deadline {
	return &deadline{next: next, timeout: timeout}
}

func (d *deadline) RoundTrip(req *http.Request) (*http.Response, error) {
	timeout := d.timeout
	if cfg, ok := requestConfigFrom(req.Context()); ok && cfg.SocketTimeout > 0 {
		timeout = cfg.SocketTimeout
	}
	if timeout <= 0 {
		return d.next.RoundTrip(req)
	}
	ctx, cancel := context.WithCancel(req.Context())
	w := &watchdog{timeout: timeout, cancel: cancel}
	w.timer = time.AfterFunc(timeout, w.fire)

	res, err := d.next.RoundTrip(req.WithContext(ctx))
	if err != nil {
		w.stop()
		if w.expired.Load() {
			return nil, errSocketTimeout
		}
		return nil, err
	}
	if res.Body == nil || res.Body == http.NoBody {
		w.stop()
		return res, nil
	}
	w.reset()
	res.Body = &watchedBody{ReadCloser: res.Body, w: w}
	return res, nil
}

type watchdog struct {
	timeout time.Duration
	cancel  context.CancelFunc
	timer   *time.Timer
	expired atomic.Bool
}

func (w *watchdog) fire() {
	w.expired.Store(true)
	w.cancel()
}

func (w *watchdog) reset() {
	w.timer.Reset(w.timeout)
}

func (w *watchdog) stop() {
	w.timer.Stop()
	w.cancel()
}

type watchedBody struct {
	io.ReadCloser
	w *watchdog
}

func (b *watchedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	switch {
	case err == nil:
		b.w.reset()
	case err == io.EOF:
		b.w.timer.Stop()
	case b.w.expired.Load():
		err = errSocketTimeout
	}
	return n, err
}

func (b *watchedBody) Close() error {
	b.w.stop()
	return b.ReadCloser.Close()
}

var errSocketTimeout error = socketTimeoutError{}

// socketTimeoutError is a net.Error reporting a timeout.
type socketTimeoutError struct{}

func (socketTimeoutError) Error() string   { return "Socket timeout waiting for data" }
func (socketTimeoutError) Timeout() bool   { return true }
func (socketTimeoutError) Temporary() bool { return true }
