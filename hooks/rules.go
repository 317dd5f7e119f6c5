package hooks

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/always-cache/fragment-gateway/fragment"
)

// Rule sets caching headers on successful GET responses whose path matches.
type Rule struct {
	Prefix   string            `yaml:"prefix"`
	Path     string            `yaml:"path"`
	Default  string            `yaml:"default"`
	Override string            `yaml:"override"`
	Query    map[string]string `yaml:"query"`
	Headers  map[string]string `yaml:"headers"`
}

type Rules []Rule

func LoadRules(filename string) (Rules, error) {
	var rules Rules
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, &rules); err != nil {
		return nil, fmt.Errorf("Could not parse rules %s: %w", filename, err)
	}
	return rules, nil
}

func (r Rules) find(req *http.Request) *Rule {
	if req.Method != http.MethodGet {
		return nil
	}
rulesLoop:
	for i, rule := range r {
		if rule.Path != "" && rule.Path != req.URL.Path {
			continue
		}
		if rule.Prefix != "" && !strings.HasPrefix(req.URL.Path, rule.Prefix) {
			continue
		}
		if len(rule.Query) > 0 {
			qry := req.URL.Query()
			for name, value := range rule.Query {
				if value == "" && !qry.Has(name) {
					continue rulesLoop
				} else if value != "" && qry.Get(name) != value {
					continue rulesLoop
				}
			}
		}
		return &r[i]
	}
	return nil
}

// CacheRules rewrites origin responses before the cache sees them, so
// fragments of origins that send no caching headers can still be cached.
type CacheRules struct {
	rules Rules
	log   zerolog.Logger
}

func NewCacheRules(rules Rules, logger zerolog.Logger) *CacheRules {
	return &CacheRules{rules: rules, log: logger.With().Str("hook", "rules").Logger()}
}

func (c *CacheRules) PreFragment(evt *fragment.Event) fragment.Action {
	return fragment.Continue
}

func (c *CacheRules) PostFragment(evt *fragment.Event) fragment.Action {
	return fragment.Continue
}

func (c *CacheRules) PreFetch(evt *fragment.FetchEvent) fragment.Action {
	return fragment.Continue
}

// PostFetch applies the first matching rule to a 200 response.
func (c *CacheRules) PostFetch(evt *fragment.FetchEvent) fragment.Action {
	res := evt.HTTPResponse
	if res == nil || res.StatusCode != http.StatusOK {
		return fragment.Continue
	}
	rule := c.rules.find(evt.HTTPRequest)
	if rule == nil {
		return fragment.Continue
	}
	if rule.Override != "" {
		c.log.Trace().Str("url", evt.HTTPRequest.URL.String()).Msg("Overriding Cache-Control header")
		res.Header.Set("Cache-Control", rule.Override)
	} else if rule.Default != "" && res.Header.Get("Cache-Control") == "" {
		c.log.Trace().Str("url", evt.HTTPRequest.URL.String()).Msg("Applying default Cache-Control header")
		res.Header.Set("Cache-Control", rule.Default)
	}
	for name, value := range rule.Headers {
		res.Header.Set(name, value)
	}
	return fragment.Continue
}
