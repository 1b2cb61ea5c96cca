package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"videostream/aggregatorservice/internal/domain"
	"videostream/aggregatorservice/internal/extract"
	"videostream/aggregatorservice/internal/fetch"
	"videostream/aggregatorservice/internal/metrics"
)

const defaultUserAgent = "Mozilla/5.0"

// Provider fetches raw result listings from a SearXNG-compatible search
// engine. The engine is an opaque HTML source: no API, no versioned schema.
type Provider struct {
	caller    *fetch.Caller
	endpoint  string
	userAgent string
}

type Config struct {
	Endpoint  string
	UserAgent string
	Client    *http.Client
	Policy    fetch.Policy
}

func NewProvider(cfg Config) *Provider {
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Provider{
		caller:    fetch.NewCaller(cfg.Client, cfg.Policy),
		endpoint:  strings.TrimSpace(cfg.Endpoint),
		userAgent: userAgent,
	}
}

// Search runs one query against the engine and extracts the result entries.
// An endpoint override (per-request setting) takes precedence over the
// configured default. A page with no recognizable results is an empty
// success, not an error.
func (p *Provider) Search(ctx context.Context, query, endpointOverride string) ([]domain.RawLink, error) {
	endpoint := strings.TrimSpace(endpointOverride)
	if endpoint == "" {
		endpoint = p.endpoint
	}
	if endpoint == "" {
		return nil, fmt.Errorf("search engine url is not configured")
	}

	searchURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid search engine url: %w", err)
	}
	params := searchURL.Query()
	params.Set("q", strings.TrimSpace(query))
	params.Set("categories", "general")
	params.Set("language", "auto")
	params.Set("safesearch", "0")
	params.Set("format", "html")
	searchURL.RawQuery = params.Encode()

	header := http.Header{}
	header.Set("User-Agent", p.userAgent)
	header.Set("Accept", "text/html,application/xhtml+xml")

	startedAt := time.Now()
	resp, err := p.caller.Do(ctx, http.MethodGet, searchURL.String(), header, nil)
	metrics.UpstreamRequestDuration.WithLabelValues("searxng").Observe(time.Since(startedAt).Seconds())
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("searxng", "error").Inc()
		return nil, fmt.Errorf("search engine fetch: %w", err)
	}
	metrics.UpstreamRequestsTotal.WithLabelValues("searxng", "ok").Inc()
	return extract.SearchResults(extract.DecodeHTML(resp.Body)), nil
}
