package transport

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/NoahCxrest/wakatime-stats-proxy/internal/config"
)

// NewHTTPClient constructs the http.Client used for WakaTime requests. Upstream calls
// are infrequent, so the idle pool stays small and TLS sessions are resumed.
func NewHTTPClient(cfg config.Config) *http.Client {
	dialer := &net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: 30 * time.Second}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.DialTimeout,
		ResponseHeaderTimeout: cfg.TransportTimeout,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			ClientSessionCache: tls.NewLRUClientSessionCache(16),
		},
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.TransportTimeout,
	}
}
