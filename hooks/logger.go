// Package hooks contains the built-in fragment hooks.
package hooks

import (
	"github.com/rs/zerolog"

	"github.com/always-cache/fragment-gateway/fragment"
)

// Logger logs every fragment fetch and every round trip it causes.
type Logger struct {
	log zerolog.Logger
}

func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{log: logger.With().Str("hook", "log").Logger()}
}

func (l *Logger) PreFragment(evt *fragment.Event) fragment.Action {
	l.log.Debug().
		Str("event", evt.ID).
		Str("request", evt.Request.String()).
		Str("target", evt.Request.TargetHost.String()).
		Str("driver", evt.Request.Driver()).
		Msg("Fetching fragment")
	return fragment.Continue
}

func (l *Logger) PostFragment(evt *fragment.Event) fragment.Action {
	e := l.log.Debug().Str("event", evt.ID).Str("request", evt.Request.String())
	if evt.Response != nil {
		e = e.Int("status", evt.Response.StatusCode)
	}
	e.Msg("Fetched fragment")
	return fragment.Continue
}

func (l *Logger) PreFetch(evt *fragment.FetchEvent) fragment.Action {
	e := l.log.Trace().Str("method", evt.HTTPRequest.Method).Str("url", evt.HTTPRequest.URL.String()).Str("host", evt.HTTPRequest.Host)
	if evt.Fragment != nil {
		e = e.Str("event", evt.Fragment.ID)
	}
	e.Msg("Round trip")
	return fragment.Continue
}

func (l *Logger) PostFetch(evt *fragment.FetchEvent) fragment.Action {
	e := l.log.Trace().Str("url", evt.HTTPRequest.URL.String())
	if evt.HTTPResponse != nil {
		e = e.Int("status", evt.HTTPResponse.StatusCode)
	}
	if evt.Fragment != nil {
		e = e.Str("event", evt.Fragment.ID)
	}
	e.Msg("Round trip done")
	return fragment.Continue
}
