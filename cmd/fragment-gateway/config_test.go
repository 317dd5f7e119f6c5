package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testConfig = `
backend: http://node1:8080
preserveHost: true
sessionCookie: JSESSIONID
connectTimeout: 500ms
socketTimeout: 2000
maxConnectionsPerHost: 40
proxy:
  host: proxy.internal
  port: 3128
cache:
  enabled: true
  maxObjectSize: 2MB
  sweepInterval: 1m
extensions:
  cookieManager:
    name: default
    properties:
      storeCookiesInSession: JSESSIONID
  cacheStorage:
    name: sqlite
    properties:
      path: /tmp/fragments.db
  hooks:
    - name: log
    - name: metrics
`

func TestGetConfig(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(filename, []byte(testConfig), 0644); err != nil {
		t.Fatal(err)
	}
	config, err := getConfig(filename)
	if err != nil {
		t.Fatal(err)
	}
	if config.Backend != "http://node1:8080" || !config.PreserveHost || config.SessionCookie != "JSESSIONID" {
		t.Fatalf("Config is %+v", config)
	}
	if time.Duration(config.ConnectTimeout) != 500*time.Millisecond || time.Duration(config.SocketTimeout) != 2*time.Second {
		t.Fatalf("Timeouts are %v and %v", config.ConnectTimeout, config.SocketTimeout)
	}
	if config.Cache.MaxObjectSize != 2000000 || time.Duration(config.Cache.SweepInterval) != time.Minute {
		t.Fatalf("Cache config is %+v", config.Cache)
	}
	if config.Extensions.CacheStorage.Properties.String("path", "") != "/tmp/fragments.db" {
		t.Fatalf("Extensions are %+v", config.Extensions)
	}
	if !config.hasHook("metrics") || config.hasHook("throttle") {
		t.Fatalf("Hooks are %+v", config.Extensions.Hooks)
	}

	ec := config.executorConfig()
	if ec.ProxyHost != "proxy.internal" || ec.ProxyPort != 3128 || !ec.UseCache || ec.MaxConnectionsPerHost != 40 {
		t.Fatalf("Executor config is %+v", ec)
	}
	if ec.CacheConfig.MaxObjectSize != 2000000 {
		t.Fatalf("Max object size is %d", ec.CacheConfig.MaxObjectSize)
	}
}

func TestInvalidSize(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(filename, []byte("cache:\n  maxObjectSize: lots\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := getConfig(filename); err == nil {
		t.Fatalf("Invalid size accepted")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"FRAGMENT_GATEWAY_BACKEND":        "http://node2",
		"FRAGMENT_GATEWAY_PORT":           "9090",
		"FRAGMENT_GATEWAY_SOCKET_TIMEOUT": "3s",
		"FRAGMENT_GATEWAY_PROXY_PASSWORD": "secret",
	}
	config := Config{Backend: "http://node1"}
	if err := applyEnv(&config, func(key string) string { return env[key] }); err != nil {
		t.Fatal(err)
	}
	if config.Backend != "http://node2" || config.Port != 9090 || time.Duration(config.SocketTimeout) != 3*time.Second || config.Proxy.Password != "secret" {
		t.Fatalf("Config is %+v", config)
	}

	env["FRAGMENT_GATEWAY_PORT"] = "http"
	if err := applyEnv(&config, func(key string) string { return env[key] }); err == nil {
		t.Fatalf("Invalid port accepted")
	}
}
