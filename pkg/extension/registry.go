// Package extension resolves pluggable components by configuration key.
package extension

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

var ErrUnknownExtension = errors.New("Unknown extension")

// Properties are the configuration values handed to a factory.
type Properties map[string]string

func (p Properties) String(key, def string) string {
	if v, ok := p[key]; ok && v != "" {
		return v
	}
	return def
}

func (p Properties) Bool(key string, def bool) bool {
	if b, err := strconv.ParseBool(p[key]); err == nil {
		return b
	}
	return def
}

func (p Properties) Int(key string, def int) int {
	if i, err := strconv.Atoi(strings.TrimSpace(p[key])); err == nil {
		return i
	}
	return def
}

func (p Properties) Float(key string, def float64) float64 {
	if f, err := strconv.ParseFloat(strings.TrimSpace(p[key]), 64); err == nil {
		return f
	}
	return def
}

// Duration accepts Go durations ("1.5s") and plain milliseconds.
func (p Properties) Duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p[key])
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

// Bytes accepts human readable sizes such as "512KB" or "1 MiB".
func (p Properties) Bytes(key string, def int64) int64 {
	if b, err := humanize.ParseBytes(strings.TrimSpace(p[key])); err == nil {
		return int64(b)
	}
	return def
}

// List splits a comma-separated value.
func (p Properties) List(key string) []string {
	var list []string
	for _, item := range strings.Split(p[key], ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

type Factory[T any] func(props Properties) (T, error)

// Registry maps names to factories of one kind of component.
type Registry[T any] struct {
	kind string

	mu        sync.RWMutex
	factories map[string]Factory[T]
}

func NewRegistry[T any](kind string) *Registry[T] {
	return &Registry[T]{kind: kind, factories: make(map[string]Factory[T])}
}

// Register adds or replaces the factory for name.
func (r *Registry[T]) Register(name string, factory Factory[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Resolve builds the component registered under name.
func (r *Registry[T]) Resolve(name string, props Properties) (T, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s %q (known: %s)", ErrUnknownExtension, r.kind, name, strings.Join(r.Names(), ", "))
	}
	component, err := factory(props)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("Could not create %s %q: %w", r.kind, name, err)
	}
	return component, nil
}

func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
