// Package httpmethod classifies request methods by whether their requests
// carry an entity body.
package httpmethod

type Class int

const (
	Unsupported Class = iota
	// Simple methods are sent without a body.
	Simple
	// EntityBearing methods forward the incoming body.
	EntityBearing
)

func (c Class) String() string {
	switch c {
	case Simple:
		return "simple"
	case EntityBearing:
		return "entity-bearing"
	}
	return "unsupported"
}

var classes = map[string]Class{
	"GET":     Simple,
	"HEAD":    Simple,
	"OPTIONS": Simple,
	"TRACE":   Simple,
	"DELETE":  Simple,

	"POST": EntityBearing,
	"PUT":  EntityBearing,
	// WebDAV
	"PROPFIND":  EntityBearing,
	"PROPPATCH": EntityBearing,
	"MKCOL":     EntityBearing,
	"COPY":      EntityBearing,
	"MOVE":      EntityBearing,
	"LOCK":      EntityBearing,
	"UNLOCK":    EntityBearing,
}

// Classify matches the method exactly; callers upper-case it first.
func Classify(method string) Class {
	return classes[method]
}
