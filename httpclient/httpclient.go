// Package httpclient provides the single long-lived outbound HTTP client
// shared by every poller: one bounded connection pool, one per-call
// timeout budget, and a metrics-reporting round tripper.
package httpclient

import (
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config bounds the shared client's connection pool and per-call timeouts.
type Config struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxIdleConns   int
	MaxConnsTotal  int
	KeepAlive      time.Duration
}

// DefaultConfig bounds the shared client: connect ≤5s, read ≤20s, ≤200
// connections per host, ≤20 kept alive. The transport puts no cap on the
// total number of connections across all hosts.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    20 * time.Second,
		MaxIdleConns:   20,
		MaxConnsTotal:  200,
		KeepAlive:      30 * time.Second,
	}
}

// Client wraps the one shared *http.Client used for every upstream call.
type Client struct {
	http *http.Client
	reqs *prometheus.CounterVec
}

// New builds the shared client. reg may be nil to skip metric registration
// (used in tests).
func New(cfg Config, reg prometheus.Registerer) *Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: cfg.KeepAlive}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns,
		MaxConnsPerHost:     cfg.MaxConnsTotal,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
	}

	reqs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opscore",
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Upstream HTTP requests by host and outcome.",
	}, []string{"host", "outcome"})
	if reg != nil {
		reg.MustRegister(reqs)
	}

	c := &Client{reqs: reqs}
	c.http = &http.Client{
		Transport: &metricsRoundTripper{inner: transport, c: c},
		Timeout:   cfg.ConnectTimeout + cfg.ReadTimeout,
	}
	return c
}

// Do performs req through the shared client.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req)
}

// Std returns the underlying *http.Client, e.g. to hand to a third-party
// SDK client constructor that wants its own *http.Client.
func (c *Client) Std() *http.Client { return c.http }

// Close idles out open connections on shutdown.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

type metricsRoundTripper struct {
	inner http.RoundTripper
	c     *Client
}

func (m *metricsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := m.inner.RoundTrip(req)
	host := req.URL.Host
	outcome := "error"
	if err == nil {
		if resp.StatusCode < 400 {
			outcome = "ok"
		} else {
			outcome = "http_error"
		}
	}
	m.c.reqs.WithLabelValues(host, outcome).Inc()
	return resp, err
}
