package fragment

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// Action tells the chain whether to run the next hook.
type Action int

const (
	Continue Action = iota
	Exit
)

func (a Action) String() string {
	if a == Exit {
		return "exit"
	}
	return "continue"
}

// ExecContext carries per-fetch state shared by the hooks and the transport.
type ExecContext struct {
	// CookieJar is the request-scoped cookie store, nil without a cookie manager.
	CookieJar http.CookieJar

	mu         sync.Mutex
	attributes map[string]any
}

func NewExecContext() *ExecContext {
	return &ExecContext{attributes: make(map[string]any)}
}

func (c *ExecContext) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attributes[key] = value
}

func (c *ExecContext) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.attributes[key]
	return v, ok
}

// Event is passed to the hooks of one fragment fetch. A hook may set Response
// in the pre phase to skip the network, or replace it in the post phase.
type Event struct {
	ID       string
	Request  *OutgoingRequest
	Original *IncomingRequest
	Context  *ExecContext
	Response *http.Response
}

func NewEvent(req *OutgoingRequest, ctx *ExecContext) *Event {
	if ctx == nil {
		ctx = NewExecContext()
	}
	return &Event{
		ID:       uuid.NewString(),
		Request:  req,
		Original: req.Original(),
		Context:  ctx,
	}
}

// FetchEvent is passed to fetch hooks around every round trip to an origin,
// cache validations included.
type FetchEvent struct {
	HTTPRequest  *http.Request
	HTTPResponse *http.Response
	// Fragment is the fetch that caused the round trip, if any.
	Fragment *Event
}

type eventKey struct{}

func WithEvent(ctx context.Context, evt *Event) context.Context {
	return context.WithValue(ctx, eventKey{}, evt)
}

func EventFrom(ctx context.Context) *Event {
	evt, _ := ctx.Value(eventKey{}).(*Event)
	return evt
}
