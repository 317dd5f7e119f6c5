package hooks

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/always-cache/fragment-gateway/fragment"
)

// Throttle limits the fetch rate per virtual host. A fetch over the limit is
// answered with 429 Too Many Requests without contacting the origin.
type Throttle struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewThrottle(rps float64, burst int) *Throttle {
	if rps <= 0 {
		rps = 100
	}
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &Throttle{
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (t *Throttle) get(key string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok := t.limiters[key]; ok {
		return l
	}
	l := rate.NewLimiter(t.rps, t.burst)
	t.limiters[key] = l
	return l
}

func (t *Throttle) PreFragment(evt *fragment.Event) fragment.Action {
	if evt.Response != nil {
		return fragment.Continue
	}
	key := evt.Request.VirtualHost.HostString()
	if !t.get(key).Allow() {
		res := fragment.NewResponse(http.StatusTooManyRequests, "", "Too many fragment requests for "+key)
		res.Header.Set("Retry-After", "1")
		evt.Response = res
	}
	return fragment.Continue
}

func (t *Throttle) PostFragment(evt *fragment.Event) fragment.Action {
	return fragment.Continue
}
