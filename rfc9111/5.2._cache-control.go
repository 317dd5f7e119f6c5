package rfc9111

import (
	"strings"
	"time"
)

// CacheControl holds the parsed directives of the "Cache-Control" field.
//
// §  5.2.  Cache-Control
// §
// §     The "Cache-Control" header field is used to list directives for
// §     caches along the request/response chain.
type CacheControl map[string]string

// ParseCacheControl parses every line of the field. The last occurrence of
// a directive wins.
func ParseCacheControl(lines []string) CacheControl {
	cc := make(CacheControl)
	for _, line := range lines {
		for _, directive := range splitDirectives(line) {
			name, arg, _ := strings.Cut(directive, "=")
			// §  Cache directives are identified by a token, to be compared
			// §  case-insensitively
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			cc[name] = unquote(strings.TrimSpace(arg))
		}
	}
	return cc
}

// splitDirectives splits on commas outside quoted strings, since arguments
// such as no-cache="Set-Cookie, Vary" list field names.
func splitDirectives(line string) []string {
	var directives []string
	quoted, start := false, 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			if quoted {
				i++
			}
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				directives = append(directives, line[start:i])
				start = i + 1
			}
		}
	}
	return append(directives, line[start:])
}

// §  [...] and have an optional argument that can use both token and
// §  quoted-string syntax.
func unquote(arg string) string {
	if len(arg) < 2 || arg[0] != '"' || arg[len(arg)-1] != '"' {
		return arg
	}
	arg = arg[1 : len(arg)-1]
	if !strings.Contains(arg, `\`) {
		return arg
	}
	var b strings.Builder
	for i := 0; i < len(arg); i++ {
		if arg[i] == '\\' && i+1 < len(arg) {
			i++
		}
		b.WriteByte(arg[i])
	}
	return b.String()
}

// Get returns the argument of a directive and whether it is present.
func (c CacheControl) Get(directive string) (string, bool) {
	val, ok := c[directive]
	return val, ok
}

func (c CacheControl) HasDirective(directive string) bool {
	_, ok := c[directive]
	return ok
}

// MaxAge returns "max-age" and whether it was given with a value.
func (c CacheControl) MaxAge() (time.Duration, bool) {
	return c.deltaSeconds("max-age")
}

// SMaxAge returns "s-maxage" and whether it was given with a value.
func (c CacheControl) SMaxAge() (time.Duration, bool) {
	return c.deltaSeconds("s-maxage")
}

func (c CacheControl) deltaSeconds(directive string) (time.Duration, bool) {
	if arg, ok := c[directive]; ok && arg != "" {
		return deltaSeconds(arg), true
	}
	return 0, false
}

// FieldNames returns the field names listed in the argument of a directive,
// as in no-cache="Set-Cookie".
func (c CacheControl) FieldNames(directive string) []string {
	arg, ok := c[directive]
	if !ok || arg == "" {
		return nil
	}
	var names []string
	for _, name := range strings.Split(arg, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
