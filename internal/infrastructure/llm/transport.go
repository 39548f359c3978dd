package llm

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// NewHTTPClient builds the shared HTTP client configuration for protocol
// clients. No overall timeout: model calls may legitimately stream for a
// long time, and cancellation arrives through the request context instead.
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 300 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
	return &http.Client{Transport: transport}
}
