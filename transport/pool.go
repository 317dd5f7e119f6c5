package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

func newPool(config Config) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   config.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	pool := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			d := *dialer
			if cfg, ok := requestConfigFrom(ctx); ok && cfg.ConnectTimeout > 0 {
				d.Timeout = cfg.ConnectTimeout
			}
			return d.DialContext(ctx, network, addr)
		},
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          config.MaxConnectionsTotal,
		MaxIdleConnsPerHost:   config.MaxConnectionsPerHost,
		MaxConnsPerHost:       config.MaxConnectionsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   config.ConnectTimeout,
		ExpectContinueTimeout: time.Second,
	}
	if config.ProxyHost != "" {
		proxyURL, err := proxyURL(config)
		if err != nil {
			return nil, err
		}
		pool.Proxy = http.ProxyURL(proxyURL)
	}
	return pool, nil
}

func proxyURL(config Config) (*url.URL, error) {
	port := config.ProxyPort
	if port == 0 {
		port = 8080
	}
	u, err := url.Parse("http://" + net.JoinHostPort(config.ProxyHost, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("Invalid proxy %s:%d: %w", config.ProxyHost, port, err)
	}
	if config.ProxyUser != "" {
		u.User = url.UserPassword(config.ProxyUser, config.ProxyPassword)
	}
	return u, nil
}
