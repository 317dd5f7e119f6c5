package fragmentgateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/always-cache/fragment-gateway/cache"
	"github.com/always-cache/fragment-gateway/fragment"
	"github.com/always-cache/fragment-gateway/hooks"
	cookiebridge "github.com/always-cache/fragment-gateway/pkg/cookie-bridge"
	"github.com/always-cache/fragment-gateway/pkg/extension"
	headerfilter "github.com/always-cache/fragment-gateway/pkg/header-filter"
	"github.com/always-cache/fragment-gateway/transport"
)

// Extensions holds the components that can be selected by name in the
// configuration.
type Extensions struct {
	CookieManagers     *extension.Registry[fragment.CookieManager]
	RedirectStrategies *extension.Registry[transport.RedirectStrategy]
	HeaderPolicies     *extension.Registry[headerfilter.Policy]
	CacheStorages      *extension.Registry[cache.CacheProvider]
	Hooks              *extension.Registry[fragment.Hook]
}

// ExtensionRef selects an extension and configures it.
type ExtensionRef struct {
	Name       string               `yaml:"name"`
	Properties extension.Properties `yaml:"properties"`
}

// Selection names the extensions of an executor. Empty names keep the
// defaults of Config.
type Selection struct {
	CookieManager ExtensionRef   `yaml:"cookieManager"`
	Redirects     ExtensionRef   `yaml:"redirects"`
	HeaderPolicy  ExtensionRef   `yaml:"headerPolicy"`
	CacheStorage  ExtensionRef   `yaml:"cacheStorage"`
	Hooks         []ExtensionRef `yaml:"hooks"`
}

// DefaultExtensions registers the built-in extensions. Metrics are
// registered with reg.
func DefaultExtensions(logger zerolog.Logger, reg prometheus.Registerer) *Extensions {
	x := &Extensions{
		CookieManagers:     extension.NewRegistry[fragment.CookieManager]("cookie manager"),
		RedirectStrategies: extension.NewRegistry[transport.RedirectStrategy]("redirect strategy"),
		HeaderPolicies:     extension.NewRegistry[headerfilter.Policy]("header policy"),
		CacheStorages:      extension.NewRegistry[cache.CacheProvider]("cache storage"),
		Hooks:              extension.NewRegistry[fragment.Hook]("hook"),
	}

	x.CookieManagers.Register("default", func(props extension.Properties) (fragment.CookieManager, error) {
		return cookiebridge.New(cookiebridge.Config{
			Discard: props.List("discardCookies"),
			Persist: props.List("storeCookiesInSession"),
		}, logger.With().Str("component", "cookies").Logger()), nil
	})
	x.CookieManagers.Register("none", func(extension.Properties) (fragment.CookieManager, error) {
		return nil, nil
	})

	x.RedirectStrategies.Register("default", func(extension.Properties) (transport.RedirectStrategy, error) {
		return transport.DefaultRedirects{}, nil
	})
	x.RedirectStrategies.Register("none", func(extension.Properties) (transport.RedirectStrategy, error) {
		return transport.NoRedirects{}, nil
	})

	x.HeaderPolicies.Register("default", func(props extension.Properties) (headerfilter.Policy, error) {
		return headerfilter.NewDefault(props.List("discardRequestHeaders"), props.List("discardResponseHeaders")), nil
	})

	x.CacheStorages.Register("memory", func(extension.Properties) (cache.CacheProvider, error) {
		return cache.NewMemCache(), nil
	})
	x.CacheStorages.Register("sqlite", func(props extension.Properties) (cache.CacheProvider, error) {
		return cache.NewSQLiteCache(props.String("path", "fragment-cache.db"))
	})
	x.CacheStorages.Register("pebble", func(props extension.Properties) (cache.CacheProvider, error) {
		return cache.NewPebbleCache(props.String("path", "fragment-cache"))
	})

	x.Hooks.Register("log", func(extension.Properties) (fragment.Hook, error) {
		return hooks.NewLogger(logger.With().Str("component", "hooks").Logger()), nil
	})
	x.Hooks.Register("metrics", func(extension.Properties) (fragment.Hook, error) {
		return hooks.NewMetrics(reg)
	})
	x.Hooks.Register("throttle", func(props extension.Properties) (fragment.Hook, error) {
		return hooks.NewThrottle(props.Float("rps", 100), props.Int("burst", 0)), nil
	})
	x.Hooks.Register("rules", func(props extension.Properties) (fragment.Hook, error) {
		rules, err := hooks.LoadRules(props.String("file", "rules.yaml"))
		if err != nil {
			return nil, err
		}
		return hooks.NewCacheRules(rules, logger.With().Str("component", "hooks").Logger()), nil
	})

	return x
}

// Apply resolves the selected extensions into config. A cache storage is
// only opened when config.UseCache is set.
func (x *Extensions) Apply(sel Selection, config *Config) error {
	if sel.CookieManager.Name != "" {
		m, err := x.CookieManagers.Resolve(sel.CookieManager.Name, sel.CookieManager.Properties)
		if err != nil {
			return err
		}
		config.CookieManager = m
	}
	if sel.Redirects.Name != "" {
		r, err := x.RedirectStrategies.Resolve(sel.Redirects.Name, sel.Redirects.Properties)
		if err != nil {
			return err
		}
		config.RedirectStrategy = r
	}
	if sel.HeaderPolicy.Name != "" {
		p, err := x.HeaderPolicies.Resolve(sel.HeaderPolicy.Name, sel.HeaderPolicy.Properties)
		if err != nil {
			return err
		}
		config.HeaderPolicy = p
	}
	if sel.CacheStorage.Name != "" && config.UseCache {
		c, err := x.CacheStorages.Resolve(sel.CacheStorage.Name, sel.CacheStorage.Properties)
		if err != nil {
			return err
		}
		config.Cache = c
	}
	for _, ref := range sel.Hooks {
		h, err := x.Hooks.Resolve(ref.Name, ref.Properties)
		if err != nil {
			return err
		}
		config.Hooks = append(config.Hooks, h)
	}
	return nil
}
