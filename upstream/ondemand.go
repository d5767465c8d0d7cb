package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridgeway-transit/opscore/apierr"
	"github.com/ridgeway-transit/opscore/httpclient"
)

// OnDemandClient wraps the shared HTTP client with the paratransit
// provider's base URL and session cookie. The provider authenticates by
// cookie rather than API key, so every request carries the configured
// cookie header verbatim.
type OnDemandClient struct {
	http    *httpclient.Client
	baseURL string
	cookie  string
	log     zerolog.Logger
	record  CallRecorder
}

// NewOnDemandClient builds a client for the configured OnDemand provider.
// Returns nil when baseURL is empty, so callers can treat the whole
// integration as absent with a single nil check.
func NewOnDemandClient(h *httpclient.Client, baseURL, cookie string, log zerolog.Logger, record CallRecorder) *OnDemandClient {
	if baseURL == "" {
		return nil
	}
	if record == nil {
		record = func(string, string, int, time.Duration, error) {}
	}
	return &OnDemandClient{http: h, baseURL: strings.TrimRight(baseURL, "/"), cookie: cookie, log: log, record: record}
}

func (c *OnDemandClient) get(ctx context.Context, path string) ([]byte, error) {
	full := c.baseURL + path

	t0 := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, apierr.Wrap(apierr.TransientUpstream, "building ondemand request", err)
	}
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.http.Do(req)
	took := time.Since(t0)
	if err != nil {
		c.record(http.MethodGet, full, 0, took, err)
		return nil, apierr.Wrap(apierr.TransientUpstream, "calling ondemand "+path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	c.record(http.MethodGet, full, resp.StatusCode, took, nil)
	if err != nil {
		return nil, apierr.Wrap(apierr.TransientUpstream, "reading ondemand body", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, apierr.New(apierr.UpstreamNotFound, fmt.Sprintf("ondemand %s returned %d (cookie expired?)", path, resp.StatusCode))
	}
	if resp.StatusCode >= 500 {
		return nil, apierr.New(apierr.TransientUpstream, fmt.Sprintf("ondemand %s returned %d", path, resp.StatusCode))
	}
	return body, nil
}

// FetchPositions retrieves the current OnDemand driver positions: which
// driver is signed into which paratransit vehicle right now.
func (c *OnDemandClient) FetchPositions(ctx context.Context) ([]OnDemandPositionWire, error) {
	body, err := c.get(ctx, "/positions")
	if err != nil {
		return nil, err
	}
	var wire []OnDemandPositionWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, apierr.Wrap(apierr.BadUpstreamPayload, "parsing ondemand positions", err)
	}
	return wire, nil
}
