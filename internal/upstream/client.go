package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"

	"github.com/NoahCxrest/wakatime-stats-proxy/internal/wakatime"
)

const (
	userAgent       = "WakaTimeStatsProxy/1.0"
	contentTypeJSON = "application/json"
	maxBodyBytes    = 8 << 20
)

var (
	// ErrUpstreamStatus is returned when an upstream answers with a non-2xx status.
	ErrUpstreamStatus = errors.New("upstream returned non-success status")
	// ErrInvalidPayload is returned when an upstream body is not a JSON object.
	ErrInvalidPayload = errors.New("upstream returned invalid JSON")
)

// Client fetches the WakaTime documents and combines them into one payload.
type Client struct {
	http      *http.Client
	endpoints Endpoints
	logger    *slog.Logger
}

// NewClient constructs an upstream client.
func NewClient(httpClient *http.Client, endpoints Endpoints, logger *slog.Logger) *Client {
	return &Client{
		http:      httpClient,
		endpoints: endpoints,
		logger:    logger.With(slog.String("component", "upstream")),
	}
}

// Fetch retrieves every configured endpoint and returns the composite payload.
// When two endpoints are configured they are fetched concurrently and either failure
// fails the whole call.
func (c *Client) Fetch(ctx context.Context) (json.RawMessage, error) {
	if c.endpoints.CodingActivity == nil {
		return nil, errors.New("no coding activity endpoint configured")
	}

	var payload wakatime.Payload

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		raw, err := c.fetchJSON(gctx, "coding_activity", c.endpoints.CodingActivity)
		payload.CodingActivity = raw
		return err
	})
	if c.endpoints.Languages != nil {
		g.Go(func() error {
			raw, err := c.fetchJSON(gctx, "languages", c.endpoints.Languages)
			payload.Languages = raw
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return json.Marshal(payload)
}

func (c *Client) fetchJSON(ctx context.Context, name string, target *url.URL) (json.RawMessage, error) {
	c.logger.Debug("fetching upstream", slog.String("endpoint", name), slog.String("host", target.Host))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	req.Header.Set("Pragma", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, fmt.Errorf("%s: %w: %s", name, ErrUpstreamStatus, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", name, err)
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' || !json.Valid(body) {
		return nil, fmt.Errorf("%s: %w", name, ErrInvalidPayload)
	}

	return json.RawMessage(body), nil
}
