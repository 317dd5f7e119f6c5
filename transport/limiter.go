package transport

import (
	"io"
	"net/http"
	"sync"
)

// limiter bounds the round trips in flight. A slot is held until the
// response body is closed.
type limiter struct {
	next  http.RoundTripper
	slots chan struct{}
}

func newLimiter(next http.RoundTripper, max int) *limiter {
	return &limiter{next: next, slots: make(chan struct{}, max)}
}

func (l *limiter) RoundTrip(req *http.Request) (*http.Response, error) {
	select {
	case l.slots <- struct{}{}:
	case <-req.Context().Done():
		return nil, req.Context().Err()
	}
	res, err := l.next.RoundTrip(req)
	if err != nil {
		<-l.slots
		return nil, err
	}
	if res.Body == nil {
		<-l.slots
		return res, nil
	}
	res.Body = &releasingBody{ReadCloser: res.Body, release: func() { <-l.slots }}
	return res, nil
}

type releasingBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}
