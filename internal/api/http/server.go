package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"videostream/aggregatorservice/internal/ai"
	"videostream/aggregatorservice/internal/catalog"
	"videostream/aggregatorservice/internal/domain"
	"videostream/aggregatorservice/internal/extract"
	"videostream/aggregatorservice/internal/search"
)

type SearchService interface {
	Search(ctx context.Context, request domain.SearchRequest) ([]domain.SearchItem, error)
}

type CatalogService interface {
	Sources() []domain.CatalogSource
	Episodes(ctx context.Context, itemID, sourceBaseURL string) ([]domain.EpisodeRef, error)
	ResolvePlayback(ctx context.Context, sourceBaseURL, episodePagePath, title string) (domain.PlayerConfig, error)
}

const maxQueryLength = 500

type Server struct {
	search            SearchService
	catalog           CatalogService
	logger            *slog.Logger
	searchEngineURL   string
	parsingInterfaces []domain.ParsingInterface
	playerURLTemplate string
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFrontendDefaults sets the non-secret values served by GET /config.
func WithFrontendDefaults(searchEngineURL string, interfaces []domain.ParsingInterface) ServerOption {
	return func(s *Server) {
		s.searchEngineURL = searchEngineURL
		s.parsingInterfaces = interfaces
	}
}

// WithPlayerURLTemplate sets the template used to build player_url in
// playback responses. The {url} placeholder is replaced with the episode
// page URL by plain substitution; the template is never fetched or parsed.
func WithPlayerURLTemplate(template string) ServerOption {
	return func(s *Server) {
		s.playerURLTemplate = strings.TrimSpace(template)
	}
}

func NewServer(searchService SearchService, catalogService CatalogService, options ...ServerOption) *Server {
	server := &Server{
		search:  searchService,
		catalog: catalogService,
		logger:  slog.Default(),
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/catalog/episodes", s.handleEpisodes)
	mux.HandleFunc("/catalog/play", s.handlePlay)
	mux.HandleFunc("/config", s.handleConfig)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "video-aggregator",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(50, 100, metricsMiddleware(traced)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	var payload struct {
		Query    string            `json:"query"`
		Strategy string            `json:"strategy"`
		Settings domain.AISettings `json:"settings"`
		NoCache  bool              `json:"nocache"`
	}
	if err := decodeJSONBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	query := strings.TrimSpace(payload.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long (max 500 characters)")
		return
	}

	startedAt := time.Now()
	items, err := s.search.Search(r.Context(), domain.SearchRequest{
		Query:    query,
		Strategy: domain.SearchStrategy(payload.Strategy),
		Settings: payload.Settings,
		NoCache:  payload.NoCache,
	})
	if err != nil {
		s.logger.Warn("search request failed",
			slog.String("query", truncate(query, 80)),
			slog.String("strategy", payload.Strategy),
			slog.String("error", err.Error()),
		)
		switch {
		case errors.Is(err, search.ErrInvalidQuery), errors.Is(err, search.ErrUnknownStrategy):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, ai.ErrNotConfigured):
			writeError(w, http.StatusInternalServerError, "ai_not_configured", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
		}
		return
	}

	s.logger.Info("search completed",
		slog.String("query", truncate(query, 80)),
		slog.String("strategy", payload.Strategy),
		slog.Int("items", len(items)),
		slog.Int64("elapsedMs", time.Since(startedAt).Milliseconds()),
	)
	if items == nil {
		items = []domain.SearchItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/catalog/episodes" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.catalog == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "catalog service is not configured")
		return
	}

	var payload struct {
		ItemID        string `json:"item_id"`
		SourceBaseURL string `json:"source_base_url"`
	}
	if err := decodeJSONBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	itemID := strings.TrimSpace(payload.ItemID)
	if itemID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "item_id is required")
		return
	}

	episodes, err := s.catalog.Episodes(r.Context(), itemID, payload.SourceBaseURL)
	if err != nil {
		s.logger.Warn("episode listing failed",
			slog.String("id", itemID),
			slog.String("source", payload.SourceBaseURL),
			slog.String("error", err.Error()),
		)
		switch {
		case errors.Is(err, catalog.ErrInvalidSource):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, catalog.ErrEpisodesNotFound):
			writeError(w, http.StatusNotFound, "episodes_not_found", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "episode listing failed")
		}
		return
	}
	if episodes == nil {
		episodes = []domain.EpisodeRef{}
	}
	writeJSON(w, http.StatusOK, domain.EpisodesResponse{Episodes: episodes})
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/catalog/play" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.catalog == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "catalog service is not configured")
		return
	}

	var payload struct {
		ItemID          string `json:"item_id"`
		SourceBaseURL   string `json:"source_base_url"`
		EpisodePagePath string `json:"episode_page_path"`
		Title           string `json:"title"`
	}
	if err := decodeJSONBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(payload.EpisodePagePath) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "episode_page_path is required")
		return
	}

	config, err := s.catalog.ResolvePlayback(r.Context(), payload.SourceBaseURL, payload.EpisodePagePath, payload.Title)
	if err != nil {
		s.logger.Warn("playback resolution failed",
			slog.String("page", payload.EpisodePagePath),
			slog.String("source", payload.SourceBaseURL),
			slog.String("error", err.Error()),
		)
		var notFound *extract.PlayerNotFoundError
		switch {
		case errors.Is(err, catalog.ErrInvalidSource):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.As(err, &notFound):
			writeError(w, http.StatusNotFound, "player_not_found", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "playback resolution failed")
		}
		return
	}

	pageURL, err := catalog.JoinPagePath(payload.SourceBaseURL, payload.EpisodePagePath)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, domain.PlaybackResponse{
		PlayerURL:     s.buildPlayerURL(pageURL),
		StreamURL:     config.StreamURL,
		NextStreamURL: config.NextStreamURL,
	})
}

func (s *Server) buildPlayerURL(pageURL string) string {
	if s.playerURLTemplate == "" {
		return pageURL
	}
	return strings.ReplaceAll(s.playerURLTemplate, "{url}", pageURL)
}

// handleConfig serves the non-secret defaults the frontend needs on boot.
// The AI API key stays server-side and is never part of this payload.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/config" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	interfaces := s.parsingInterfaces
	if interfaces == nil {
		interfaces = []domain.ParsingInterface{}
	}
	var sources []domain.CatalogSource
	if s.catalog != nil {
		sources = s.catalog.Sources()
	}
	if sources == nil {
		sources = []domain.CatalogSource{}
	}
	writeJSON(w, http.StatusOK, domain.ConfigResponse{
		DefaultSearchEngineURL:   s.searchEngineURL,
		DefaultParsingInterfaces: interfaces,
		CatalogSources:           sources,
	})
}

func decodeJSONBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
