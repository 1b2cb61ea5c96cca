package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"videostream/aggregatorservice/internal/ai"
	"videostream/aggregatorservice/internal/domain"
)

var (
	ErrInvalidQuery    = errors.New("query is required")
	ErrUnknownStrategy = errors.New("unknown search strategy")
)

// WebSearcher fetches raw result links from the generic search engine.
type WebSearcher interface {
	Search(ctx context.Context, query, endpointOverride string) ([]domain.RawLink, error)
}

// Classifier filters raw links down to direct video playback pages.
type Classifier interface {
	Defaults() ai.Config
	ClassifyLinks(ctx context.Context, cfg ai.Config, links []domain.RawLink) ([]domain.ClassifiedLink, error)
}

// CatalogSearcher runs a title search across the configured catalog sites.
type CatalogSearcher interface {
	Search(ctx context.Context, query string) ([]domain.CatalogItem, error)
}

type Service struct {
	web           WebSearcher
	classifier    Classifier
	catalog       CatalogSearcher
	logger        *slog.Logger
	timeout       time.Duration
	cacheDisabled bool
	cacheMu       sync.Mutex
	cache         map[string]*cachedSearchItems
	cacheCfg      cacheConfig
	redisCache    *RedisCacheBackend
}

type ServiceOption func(*Service)

func WithRedisCache(backend *RedisCacheBackend) ServiceOption {
	return func(s *Service) {
		s.redisCache = backend
	}
}

func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheCfg.ttl = ttl
		}
	}
}

func WithCacheDisabled(disabled bool) ServiceOption {
	return func(s *Service) {
		s.cacheDisabled = disabled
	}
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(web WebSearcher, classifier Classifier, catalog CatalogSearcher, timeout time.Duration, opts ...ServiceOption) *Service {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	svc := &Service{
		web:        web,
		classifier: classifier,
		catalog:    catalog,
		logger:     slog.Default(),
		timeout:    timeout,
		cache:      make(map[string]*cachedSearchItems),
		cacheCfg:   defaultCacheConfig(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Search runs the requested strategy and returns items tagged with the
// pipeline that produced them. Per-request AI settings overlay the process
// defaults. When the AI pipeline is the sole producer the merged config is
// validated before any network call so a missing key fails fast instead of
// after a full web search; the combined strategy instead treats a config
// error as a generic-pipeline failure so catalog results can still be served.
func (s *Service) Search(ctx context.Context, request domain.SearchRequest) ([]domain.SearchItem, error) {
	query := strings.TrimSpace(request.Query)
	if query == "" {
		return nil, ErrInvalidQuery
	}
	strategy, ok := domain.NormalizeStrategy(string(request.Strategy))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, request.Strategy)
	}

	aiConfig := s.classifier.Defaults().Merge(ai.Config{
		APIURL: request.Settings.APIURL,
		APIKey: request.Settings.APIKey,
		Model:  request.Settings.Model,
	})
	if strategy == domain.StrategyGenericAI {
		if err := aiConfig.Validate(); err != nil {
			return nil, err
		}
	}

	if s.cacheDisabled || request.NoCache {
		return s.executeSearch(ctx, strategy, query, request.Settings, aiConfig)
	}

	cacheKey := buildSearchCacheKey(strategy, query, request.Settings)
	if cached, ok := s.cacheLookup(ctx, cacheKey, time.Now()); ok {
		return cached, nil
	}

	items, err := s.executeSearch(ctx, strategy, query, request.Settings, aiConfig)
	if err != nil {
		return nil, err
	}
	s.cacheStore(ctx, cacheKey, items, time.Now())
	return items, nil
}

func (s *Service) executeSearch(ctx context.Context, strategy domain.SearchStrategy, query string, settings domain.AISettings, aiConfig ai.Config) ([]domain.SearchItem, error) {
	runCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	switch strategy {
	case domain.StrategyGenericAI:
		return s.searchGeneric(runCtx, query, settings, aiConfig)
	case domain.StrategyCatalogNative:
		return s.searchCatalog(runCtx, query)
	case domain.StrategyAll:
		return s.searchAll(runCtx, query, settings, aiConfig)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

// searchGeneric is the web-search-then-classify pipeline. An empty result
// page short-circuits to an empty success without spending an AI call. A
// classification failure is surfaced as an error rather than silently
// degraded to an empty list, so the client can tell "nothing found" from
// "the classifier is down".
func (s *Service) searchGeneric(ctx context.Context, query string, settings domain.AISettings, aiConfig ai.Config) ([]domain.SearchItem, error) {
	startedAt := time.Now()
	links, err := s.web.Search(ctx, query, settings.SearchEngineURL)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	if len(links) == 0 {
		s.logger.Info("web search returned no results",
			slog.String("query", query),
			slog.Int64("elapsedMs", time.Since(startedAt).Milliseconds()),
		)
		return []domain.SearchItem{}, nil
	}

	classified, err := s.classifier.ClassifyLinks(ctx, aiConfig, links)
	if err != nil {
		return nil, fmt.Errorf("classify links: %w", err)
	}

	s.logger.Info("generic search completed",
		slog.String("query", query),
		slog.Int("rawLinks", len(links)),
		slog.Int("classified", len(classified)),
		slog.Int64("elapsedMs", time.Since(startedAt).Milliseconds()),
	)

	items := make([]domain.SearchItem, 0, len(classified))
	for _, link := range classified {
		items = append(items, domain.SearchItem{
			Strategy:  domain.StrategyGenericAI,
			Title:     link.Title,
			VideoLink: link.VideoLink,
			Website:   link.Website,
		})
	}
	return items, nil
}

func (s *Service) searchCatalog(ctx context.Context, query string) ([]domain.SearchItem, error) {
	found, err := s.catalog.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog search: %w", err)
	}
	items := make([]domain.SearchItem, 0, len(found))
	for _, entry := range found {
		item := entry
		items = append(items, domain.SearchItem{
			Strategy: domain.StrategyCatalogNative,
			Title:    entry.Title,
			Catalog:  &item,
		})
	}
	return items, nil
}

// searchAll runs both pipelines concurrently and merges their items, generic
// results first. One pipeline failing is tolerated as long as the other
// produced something; both failing propagates the generic pipeline's error.
func (s *Service) searchAll(ctx context.Context, query string, settings domain.AISettings, aiConfig ai.Config) ([]domain.SearchItem, error) {
	var (
		genericItems []domain.SearchItem
		genericErr   error
		catalogItems []domain.SearchItem
		catalogErr   error
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := aiConfig.Validate(); err != nil {
			genericErr = err
			return nil
		}
		genericItems, genericErr = s.searchGeneric(groupCtx, query, settings, aiConfig)
		return nil
	})
	group.Go(func() error {
		catalogItems, catalogErr = s.searchCatalog(groupCtx, query)
		return nil
	})
	_ = group.Wait()

	if genericErr != nil && catalogErr != nil {
		return nil, genericErr
	}
	if genericErr != nil {
		s.logger.Warn("generic pipeline failed, serving catalog results only",
			slog.String("query", query),
			slog.String("error", genericErr.Error()),
		)
	}
	if catalogErr != nil {
		s.logger.Warn("catalog pipeline failed, serving generic results only",
			slog.String("query", query),
			slog.String("error", catalogErr.Error()),
		)
	}

	merged := make([]domain.SearchItem, 0, len(genericItems)+len(catalogItems))
	merged = append(merged, genericItems...)
	merged = append(merged, catalogItems...)
	return merged, nil
}
