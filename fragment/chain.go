package fragment

import "net/http"

// Hook is an extension point around a fragment fetch.
type Hook interface {
	PreFragment(evt *Event) Action
	PostFragment(evt *Event) Action
}

// FetchHook is implemented by hooks that also want to observe every round
// trip to an origin.
type FetchHook interface {
	PreFetch(evt *FetchEvent) Action
	PostFetch(evt *FetchEvent) Action
}

// CookieManager provides the cookie store a fetch reads and writes.
type CookieManager interface {
	BridgeStoreFor(in *IncomingRequest) http.CookieJar
}

// HookFuncs adapts functions to a Hook. Nil functions continue.
type HookFuncs struct {
	Pre  func(evt *Event) Action
	Post func(evt *Event) Action
}

func (h HookFuncs) PreFragment(evt *Event) Action {
	if h.Pre == nil {
		return Continue
	}
	return h.Pre(evt)
}

func (h HookFuncs) PostFragment(evt *Event) Action {
	if h.Post == nil {
		return Continue
	}
	return h.Post(evt)
}

// Chain runs hooks in registration order. It is immutable and safe for
// concurrent use; a nil Chain has no hooks.
type Chain struct {
	hooks      []Hook
	fetchHooks []FetchHook
}

func NewChain(hooks ...Hook) *Chain {
	c := &Chain{}
	for _, h := range hooks {
		if h == nil {
			continue
		}
		c.hooks = append(c.hooks, h)
		if fh, ok := h.(FetchHook); ok {
			c.fetchHooks = append(c.fetchHooks, fh)
		}
	}
	return c
}

func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.hooks)
}

// FirePre runs the pre hooks until one exits.
func (c *Chain) FirePre(evt *Event) Action {
	if c == nil {
		return Continue
	}
	for _, h := range c.hooks {
		if h.PreFragment(evt) == Exit {
			return Exit
		}
	}
	return Continue
}

// FirePost runs the post hooks until one exits.
func (c *Chain) FirePost(evt *Event) Action {
	if c == nil {
		return Continue
	}
	for _, h := range c.hooks {
		if h.PostFragment(evt) == Exit {
			return Exit
		}
	}
	return Continue
}

func (c *Chain) FirePreFetch(evt *FetchEvent) Action {
	if c == nil {
		return Continue
	}
	for _, h := range c.fetchHooks {
		if h.PreFetch(evt) == Exit {
			return Exit
		}
	}
	return Continue
}

func (c *Chain) FirePostFetch(evt *FetchEvent) Action {
	if c == nil {
		return Continue
	}
	for _, h := range c.fetchHooks {
		if h.PostFetch(evt) == Exit {
			return Exit
		}
	}
	return Continue
}
