package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/NoahCxrest/wakatime-stats-proxy/internal/wakatime"
)

const maxEnvelopeBytes = 8 << 20

// ErrInvalidEnvelope is returned when the proxy answers with JSON of an unexpected shape.
var ErrInvalidEnvelope = errors.New("invalid data format received")

// Response is one decoded answer from the proxy.
type Response struct {
	Envelope wakatime.Envelope
	Snapshot *wakatime.Snapshot
}

// Client requests the snapshot envelope from the proxy.
type Client struct {
	endpoint *url.URL
	http     *http.Client
	now      func() time.Time
}

// NewClient builds a client for the proxy at baseURL.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/api/wakatime")
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("proxy url %q must use http or https scheme", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{endpoint: u, http: httpClient, now: time.Now}, nil
}

// Fetch requests the envelope, bypassing any intermediate caches.
func (c *Client) Fetch(ctx context.Context) (*Response, error) {
	u := *c.endpoint
	q := u.Query()
	q.Set("t", strconv.FormatInt(c.now().UnixMilli(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Expires", "0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxEnvelopeBytes))
		return nil, fmt.Errorf("HTTP error! Status: %d", resp.StatusCode)
	}

	var env wakatime.Envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxEnvelopeBytes)).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	return decodeResponse(env)
}

func decodeResponse(env wakatime.Envelope) (*Response, error) {
	if !env.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidEnvelope, env.Status)
	}

	res := &Response{Envelope: env}
	if env.Status == wakatime.StatusError {
		return res, nil
	}

	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: %s envelope without data", ErrInvalidEnvelope, env.Status)
	}

	var snap wakatime.Snapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if snap.CodingActivity == nil {
		return nil, fmt.Errorf("%w: missing coding activity", ErrInvalidEnvelope)
	}

	res.Snapshot = &snap
	return res, nil
}
