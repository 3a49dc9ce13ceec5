package upstream

import (
	"fmt"
	"net/url"
	"strings"
)

// Endpoints are the WakaTime embeddable JSON documents the proxy reads.
// Languages is optional.
type Endpoints struct {
	CodingActivity *url.URL
	Languages      *url.URL
}

// ParseEndpoints validates the configured upstream URLs. An empty languages URL is allowed.
func ParseEndpoints(codingActivity, languages string) (Endpoints, error) {
	coding, err := ParseEndpoint(codingActivity)
	if err != nil {
		return Endpoints{}, fmt.Errorf("coding activity: %w", err)
	}

	eps := Endpoints{CodingActivity: coding}
	if strings.TrimSpace(languages) == "" {
		return eps, nil
	}

	eps.Languages, err = ParseEndpoint(languages)
	if err != nil {
		return Endpoints{}, fmt.Errorf("languages: %w", err)
	}

	return eps, nil
}

// ParseEndpoint parses and validates a single upstream URL.
func ParseEndpoint(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("no upstream url provided")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url %q: %w", raw, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream url %q must use http or https scheme", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("upstream url %q has no host", raw)
	}

	return u, nil
}
