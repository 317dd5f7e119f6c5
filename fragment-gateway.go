// Package fragmentgateway fetches page fragments from origin servers on
// behalf of an incoming client request. Requests are rewritten onto a virtual
// host, passed through the extension hooks and executed over a shared,
// optionally caching, transport.
package fragmentgateway

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/always-cache/fragment-gateway/cache"
	"github.com/always-cache/fragment-gateway/fragment"
	headerfilter "github.com/always-cache/fragment-gateway/pkg/header-filter"
	"github.com/always-cache/fragment-gateway/transport"
)

const (
	defaultConnectTimeout        = time.Second
	defaultSocketTimeout         = 10 * time.Second
	defaultMaxConnectionsPerHost = 20
	defaultMaxRedirects          = 10
)

type Config struct {
	// PreserveHost sends fetches with the host of the incoming request as
	// virtual host. Otherwise the host of the target URI is used.
	PreserveHost bool

	ConnectTimeout        time.Duration
	SocketTimeout         time.Duration
	MaxConnectionsPerHost int
	// MaxConnectionsTotal defaults to MaxConnectionsPerHost.
	MaxConnectionsTotal int
	MaxRedirects        int

	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string

	// UseCache enables the HTTP cache. Cache defaults to an in-memory
	// storage.
	UseCache    bool
	Cache       cache.CacheProvider
	CacheConfig transport.CacheConfig

	// Hooks are called in order.
	Hooks []fragment.Hook
	// CookieManager is optional. Without one the Cookie header of the
	// incoming request is forwarded as is.
	CookieManager    fragment.CookieManager
	HeaderPolicy     headerfilter.Policy
	RedirectStrategy transport.RedirectStrategy
	// IsError tells CreateAndExecuteRequest which responses are errors.
	// Defaults to status codes from 400 up.
	IsError func(res *http.Response) bool

	Logger *zerolog.Logger

	// RoundTripper replaces the network. Used in tests.
	RoundTripper http.RoundTripper
}

// RequestExecutor builds and executes fragment requests. It is safe for
// concurrent use.
type RequestExecutor struct {
	config    Config
	transport *transport.Transport
	hooks     *fragment.Chain
	cookies   fragment.CookieManager
	headers   headerfilter.Policy
	isError   func(res *http.Response) bool
	log       zerolog.Logger
}

// CreateExecutor validates the config and builds the transport. The config is
// not read again afterwards.
func CreateExecutor(config Config) (*RequestExecutor, error) {
	if err := applyDefaults(&config); err != nil {
		return nil, err
	}

	if config.Logger == nil {
		logger := zerolog.New(zerolog.NewConsoleWriter())
		config.Logger = &logger
	}
	logger := config.Logger.With().Str("component", "executor").Logger()

	if config.UseCache && config.Cache == nil {
		config.Cache = cache.NewMemCache()
	}
	var storage cache.CacheProvider
	if config.UseCache {
		storage = config.Cache
	}

	hooks := fragment.NewChain(config.Hooks...)
	t, err := transport.New(transport.Config{
		ConnectTimeout:        config.ConnectTimeout,
		SocketTimeout:         config.SocketTimeout,
		MaxConnectionsPerHost: config.MaxConnectionsPerHost,
		MaxConnectionsTotal:   config.MaxConnectionsTotal,
		ProxyHost:             config.ProxyHost,
		ProxyPort:             config.ProxyPort,
		ProxyUser:             config.ProxyUser,
		ProxyPassword:         config.ProxyPassword,
		Cache:                 storage,
		CacheConfig:           config.CacheConfig,
		Redirects:             config.RedirectStrategy,
		Hooks:                 hooks,
		Logger:                config.Logger.With().Str("component", "transport").Logger(),
		RoundTripper:          config.RoundTripper,
	})
	if err != nil {
		return nil, fmt.Errorf("Could not create transport: %w", err)
	}

	logger.Debug().
		Bool("preserveHost", config.PreserveHost).
		Bool("cache", config.UseCache).
		Int("hooks", hooks.Len()).
		Int("maxConnectionsPerHost", config.MaxConnectionsPerHost).
		Msg("Created request executor")

	return &RequestExecutor{
		config:    config,
		transport: t,
		hooks:     hooks,
		cookies:   config.CookieManager,
		headers:   config.HeaderPolicy,
		isError:   config.IsError,
		log:       logger,
	}, nil
}

func applyDefaults(config *Config) error {
	if config.ConnectTimeout < 0 || config.SocketTimeout < 0 {
		return errors.New("Timeouts must not be negative")
	}
	if config.MaxConnectionsPerHost < 0 || config.MaxConnectionsTotal < 0 || config.MaxRedirects < 0 {
		return errors.New("Connection and redirect limits must not be negative")
	}
	if config.ProxyPort < 0 || config.ProxyPort > 65535 {
		return fmt.Errorf("Invalid proxy port %d", config.ProxyPort)
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = defaultConnectTimeout
	}
	if config.SocketTimeout == 0 {
		config.SocketTimeout = defaultSocketTimeout
	}
	if config.MaxConnectionsPerHost == 0 {
		config.MaxConnectionsPerHost = defaultMaxConnectionsPerHost
	}
	if config.MaxConnectionsTotal == 0 {
		config.MaxConnectionsTotal = config.MaxConnectionsPerHost
	}
	if config.MaxRedirects == 0 {
		config.MaxRedirects = defaultMaxRedirects
	}
	if config.HeaderPolicy == nil {
		config.HeaderPolicy = headerfilter.NewDefault(nil, nil)
	}
	if config.RedirectStrategy == nil {
		config.RedirectStrategy = transport.DefaultRedirects{}
	}
	if config.IsError == nil {
		config.IsError = func(res *http.Response) bool {
			return res.StatusCode >= 400
		}
	}
	return nil
}

// Close releases pooled connections and stops the cache janitor. The cache
// storage is not closed since it may be shared.
func (e *RequestExecutor) Close() error {
	e.transport.Close()
	return nil
}
