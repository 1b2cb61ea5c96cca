package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"videostream/aggregatorservice/internal/ai"
	"videostream/aggregatorservice/internal/domain"
	"videostream/aggregatorservice/internal/extract"
	"videostream/aggregatorservice/internal/fetch"
	"videostream/aggregatorservice/internal/metrics"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

var (
	// ErrEpisodesNotFound means the episode-list container was absent after
	// the full fallback selector chain, on both the detail page and the
	// first-episode page. Distinct from a present-but-empty container.
	ErrEpisodesNotFound = errors.New("episode list not found on catalog page")

	// ErrInvalidSource rejects a request whose source base URL is not an
	// absolute http(s) URL before any network call is made.
	ErrInvalidSource = errors.New("source base url must be absolute http(s)")
)

// StreamExtractor is the optional AI fallback used when the structural
// player-config extraction comes up empty.
type StreamExtractor interface {
	ExtractStreamURL(ctx context.Context, cfg ai.Config, pageHTML, title string) (string, error)
}

type Config struct {
	Sources    []Source
	UserAgent  string
	Client     *http.Client
	Policy     fetch.Policy
	Logger     *slog.Logger
	AIFallback StreamExtractor
	AIConfig   ai.Config
}

// Provider scrapes the catalog sites: title search, episode enumeration, and
// final stream URL extraction from the embedded player configuration.
type Provider struct {
	caller     *fetch.Caller
	sources    []Source
	userAgent  string
	logger     *slog.Logger
	aiFallback StreamExtractor
	aiConfig   ai.Config
}

func NewProvider(cfg Config) *Provider {
	sources := cfg.Sources
	if len(sources) == 0 {
		sources = DefaultSources()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		caller:     fetch.NewCaller(cfg.Client, cfg.Policy),
		sources:    sources,
		userAgent:  userAgent,
		logger:     logger,
		aiFallback: cfg.AIFallback,
		aiConfig:   cfg.AIConfig,
	}
}

func (p *Provider) Sources() []domain.CatalogSource {
	infos := make([]domain.CatalogSource, 0, len(p.sources))
	for _, source := range p.sources {
		infos = append(infos, source.Info())
	}
	return infos
}

// Search runs the query against every configured source and merges the
// results. A source that fails is logged and skipped; the search only errors
// when every source failed and nothing was found.
func (p *Provider) Search(ctx context.Context, query string) ([]domain.CatalogItem, error) {
	var (
		items   []domain.CatalogItem
		lastErr error
	)
	for _, source := range p.sources {
		html, err := p.fetchPage(ctx, source.SearchURL(query), source.BaseURL)
		if err != nil {
			p.logger.Warn("catalog source search failed",
				slog.String("source", source.Name),
				slog.String("error", err.Error()),
			)
			lastErr = err
			continue
		}
		items = append(items, extract.CatalogItems(html, source.BaseURL, p.logger)...)
	}
	if len(items) == 0 && lastErr != nil {
		return nil, fmt.Errorf("catalog search: %w", lastErr)
	}
	if items == nil {
		items = []domain.CatalogItem{}
	}
	return items, nil
}

// Episodes fetches the item's detail page and extracts the episode list.
// When the detail page carries no recognizable list container, the
// first-episode player page is tried before giving up, because some theme
// revisions only render the list there.
func (p *Provider) Episodes(ctx context.Context, itemID, sourceBaseURL string) ([]domain.EpisodeRef, error) {
	if err := validateSourceBase(sourceBaseURL); err != nil {
		return nil, err
	}

	pagePaths := []string{
		fmt.Sprintf("/voddetail/%s.html", itemID),
		fmt.Sprintf("/vodplay/%s-1-1.html", itemID),
	}
	var lastErr error
	for _, pagePath := range pagePaths {
		pageURL, err := JoinPagePath(sourceBaseURL, pagePath)
		if err != nil {
			return nil, err
		}
		html, err := p.fetchPage(ctx, pageURL, sourceBaseURL)
		if err != nil {
			lastErr = err
			continue
		}
		episodes, err := extract.EpisodeList(html)
		if err == nil {
			return episodes, nil
		}
		if !errors.Is(err, extract.ErrNoEpisodeContainer) {
			return nil, err
		}
		lastErr = err
	}
	if errors.Is(lastErr, extract.ErrNoEpisodeContainer) {
		return nil, ErrEpisodesNotFound
	}
	return nil, fmt.Errorf("fetch episode list: %w", lastErr)
}

// ResolvePlayback fetches the episode's player page and extracts the stream
// URLs from the embedded player configuration. When structural extraction
// fails and an AI fallback is configured, the page is handed to the model as
// a last resort; otherwise the typed not-found error propagates so the
// facade can name the missing marker.
func (p *Provider) ResolvePlayback(ctx context.Context, sourceBaseURL, episodePagePath, title string) (domain.PlayerConfig, error) {
	if err := validateSourceBase(sourceBaseURL); err != nil {
		return domain.PlayerConfig{}, err
	}
	if !strings.HasPrefix(strings.TrimSpace(episodePagePath), "/") {
		return domain.PlayerConfig{}, fmt.Errorf("episode page path must start with /")
	}

	pageURL, err := JoinPagePath(sourceBaseURL, episodePagePath)
	if err != nil {
		return domain.PlayerConfig{}, err
	}
	html, err := p.fetchPage(ctx, pageURL, sourceBaseURL)
	if err != nil {
		return domain.PlayerConfig{}, fmt.Errorf("fetch player page: %w", err)
	}

	config, err := extract.PlayerConfig(html)
	if err == nil {
		return config, nil
	}

	var notFound *extract.PlayerNotFoundError
	if errors.As(err, &notFound) && p.aiFallback != nil {
		p.logger.Info("player config marker missing, trying ai extraction",
			slog.String("page", episodePagePath),
		)
		streamURL, aiErr := p.aiFallback.ExtractStreamURL(ctx, p.aiConfig, html, title)
		if aiErr == nil {
			return domain.PlayerConfig{StreamURL: streamURL}, nil
		}
		p.logger.Warn("ai stream extraction failed", slog.String("error", aiErr.Error()))
	}
	return domain.PlayerConfig{}, err
}

func (p *Provider) fetchPage(ctx context.Context, pageURL, refererBase string) (string, error) {
	header := http.Header{}
	header.Set("User-Agent", p.userAgent)
	header.Set("Referer", strings.TrimRight(refererBase, "/")+"/")
	header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")

	upstream := upstreamLabel(pageURL)
	startedAt := time.Now()
	resp, err := p.caller.Do(ctx, http.MethodGet, pageURL, header, nil)
	metrics.UpstreamRequestDuration.WithLabelValues(upstream).Observe(time.Since(startedAt).Seconds())
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(upstream, "error").Inc()
		return "", err
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(upstream, "ok").Inc()
	return extract.DecodeHTML(resp.Body), nil
}

func upstreamLabel(pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Host == "" {
		return "catalog"
	}
	return parsed.Host
}

func validateSourceBase(raw string) error {
	value := strings.TrimSpace(raw)
	if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
		return ErrInvalidSource
	}
	return nil
}
