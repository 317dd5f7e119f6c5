package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	fragmentgateway "github.com/always-cache/fragment-gateway"
	"github.com/always-cache/fragment-gateway/transport"
)

type Config struct {
	// Backend is the base URL requests are passed through to.
	Backend      string `yaml:"backend"`
	Port         int    `yaml:"port"`
	PreserveHost bool   `yaml:"preserveHost"`
	// SessionCookie names the cookie identifying the client session.
	SessionCookie string `yaml:"sessionCookie"`

	ConnectTimeout        Duration `yaml:"connectTimeout"`
	SocketTimeout         Duration `yaml:"socketTimeout"`
	MaxConnectionsPerHost int      `yaml:"maxConnectionsPerHost"`
	MaxConnectionsTotal   int      `yaml:"maxConnectionsTotal"`
	MaxRedirects          int      `yaml:"maxRedirects"`

	Proxy      ProxyConfig               `yaml:"proxy"`
	Cache      CacheConfig               `yaml:"cache"`
	Extensions fragmentgateway.Selection `yaml:"extensions"`
}

type ProxyConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type CacheConfig struct {
	Enabled        bool      `yaml:"enabled"`
	Namespace      string    `yaml:"namespace"`
	MaxObjectSize  SizeBytes `yaml:"maxObjectSize"`
	StaleRetention Duration  `yaml:"staleRetention"`
	SweepInterval  Duration  `yaml:"sweepInterval"`
}

// SizeBytes is a byte count written as "64MB" or a plain integer.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

// Duration is written as "250ms" or as plain milliseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}

func getConfig(filename string) (Config, error) {
	var config Config
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}

// applyEnv overrides config with FRAGMENT_GATEWAY_* variables.
func applyEnv(config *Config, getenv func(string) string) error {
	if v := getenv("FRAGMENT_GATEWAY_BACKEND"); v != "" {
		config.Backend = v
	}
	if v := getenv("FRAGMENT_GATEWAY_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FRAGMENT_GATEWAY_PORT: %w", err)
		}
		config.Port = port
	}
	if v := getenv("FRAGMENT_GATEWAY_PRESERVE_HOST"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid FRAGMENT_GATEWAY_PRESERVE_HOST: %w", err)
		}
		config.PreserveHost = b
	}
	if v := getenv("FRAGMENT_GATEWAY_SOCKET_TIMEOUT"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return err
		}
		config.SocketTimeout = Duration(d)
	}
	if v := getenv("FRAGMENT_GATEWAY_PROXY_HOST"); v != "" {
		config.Proxy.Host = v
	}
	if v := getenv("FRAGMENT_GATEWAY_PROXY_USER"); v != "" {
		config.Proxy.User = v
	}
	if v := getenv("FRAGMENT_GATEWAY_PROXY_PASSWORD"); v != "" {
		config.Proxy.Password = v
	}
	return nil
}

// executorConfig maps the file config onto the executor config. Extensions
// are resolved separately.
func (c Config) executorConfig() fragmentgateway.Config {
	return fragmentgateway.Config{
		PreserveHost:          c.PreserveHost,
		ConnectTimeout:        time.Duration(c.ConnectTimeout),
		SocketTimeout:         time.Duration(c.SocketTimeout),
		MaxConnectionsPerHost: c.MaxConnectionsPerHost,
		MaxConnectionsTotal:   c.MaxConnectionsTotal,
		MaxRedirects:          c.MaxRedirects,
		ProxyHost:             c.Proxy.Host,
		ProxyPort:             c.Proxy.Port,
		ProxyUser:             c.Proxy.User,
		ProxyPassword:         c.Proxy.Password,
		UseCache:              c.Cache.Enabled,
		CacheConfig: transport.CacheConfig{
			Namespace:      c.Cache.Namespace,
			MaxObjectSize:  int64(c.Cache.MaxObjectSize),
			StaleRetention: time.Duration(c.Cache.StaleRetention),
			SweepInterval:  time.Duration(c.Cache.SweepInterval),
		},
	}
}

func (c Config) hasHook(name string) bool {
	for _, ref := range c.Extensions.Hooks {
		if ref.Name == name {
			return true
		}
	}
	return false
}
