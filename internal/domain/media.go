package domain

import (
	"net/url"
	"strings"
)

type SearchStrategy string

const (
	StrategyGenericAI     SearchStrategy = "generic_ai"
	StrategyCatalogNative SearchStrategy = "catalog_native"
	// StrategyAll runs both pipelines concurrently and merges the tagged results.
	StrategyAll SearchStrategy = "all"
)

// NormalizeStrategy maps raw client input onto a known strategy.
// An empty value means "run everything", matching the reference frontend
// which always fired both pipelines in parallel.
func NormalizeStrategy(raw string) (SearchStrategy, bool) {
	switch SearchStrategy(strings.ToLower(strings.TrimSpace(raw))) {
	case StrategyGenericAI:
		return StrategyGenericAI, true
	case StrategyCatalogNative:
		return StrategyCatalogNative, true
	case StrategyAll, "":
		return StrategyAll, true
	default:
		return "", false
	}
}

// AISettings is the per-request override of the process-wide AI configuration.
// Empty fields fall back to the configured defaults.
type AISettings struct {
	SearchEngineURL string `json:"search_engine_url,omitempty"`
	APIURL          string `json:"ai_url,omitempty"`
	APIKey          string `json:"ai_key,omitempty"`
	Model           string `json:"ai_model,omitempty"`
}

type SearchRequest struct {
	Query    string
	Strategy SearchStrategy
	Settings AISettings
	NoCache  bool
}

// RawLink is one entry scraped from a generic search results page.
// Held in memory for the duration of a single request only.
type RawLink struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ClassifiedLink is a RawLink the model judged to be a direct video
// playback page. Website is always populated: when the classifier omits
// it, the host of VideoLink is used instead.
type ClassifiedLink struct {
	Title     string `json:"title"`
	VideoLink string `json:"video_link"`
	Website   string `json:"website"`
}

// CatalogItem is one card scraped from the catalog site's search results.
// ID is an opaque site-specific identifier and is only meaningful together
// with SourceBaseURL.
type CatalogItem struct {
	Title         string `json:"title"`
	CoverImage    string `json:"cover_image,omitempty"`
	Note          string `json:"note,omitempty"`
	ID            string `json:"id"`
	DetailPath    string `json:"detail_path"`
	SourceBaseURL string `json:"source_base_url"`
}

// EpisodeRef points at one episode's player page.
type EpisodeRef struct {
	Label    string `json:"label"`
	Index    int    `json:"index"`
	PagePath string `json:"page_path"`
}

// PlayerConfig is the JSON object embedded in the episode page's script
// block. StreamURL is typically an HLS manifest; escaped slashes are
// normalized before the value leaves the extractor.
type PlayerConfig struct {
	StreamURL     string `json:"stream_url"`
	NextStreamURL string `json:"next_stream_url,omitempty"`
}

// ParsingInterface is a configured third-party player template used as a
// fallback unblocking mechanism for generic video page links.
type ParsingInterface struct {
	Name             string `json:"name"`
	URL              string `json:"url"`
	RestrictedMobile bool   `json:"restricted_mobile"`
}

// SearchItem is one element of the /search response, tagged with the
// strategy that produced it.
type SearchItem struct {
	Strategy  SearchStrategy `json:"strategy"`
	Title     string         `json:"title"`
	VideoLink string         `json:"video_link,omitempty"`
	Website   string         `json:"website,omitempty"`
	Catalog   *CatalogItem   `json:"catalog,omitempty"`
}

type EpisodesResponse struct {
	Episodes []EpisodeRef `json:"episodes"`
}

type PlaybackResponse struct {
	PlayerURL     string `json:"player_url"`
	StreamURL     string `json:"stream_url"`
	NextStreamURL string `json:"next_stream_url,omitempty"`
}

// ConfigResponse carries the non-secret defaults the frontend needs.
// It must never include the AI API key.
type ConfigResponse struct {
	DefaultSearchEngineURL   string             `json:"default_search_engine_url"`
	DefaultParsingInterfaces []ParsingInterface `json:"default_parsing_interfaces"`
	CatalogSources           []CatalogSource    `json:"catalog_sources"`
}

// CatalogSource describes one scrapeable catalog site.
type CatalogSource struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
}

// WebsiteFromLink derives the registrable domain shown next to a
// classified link: the URL host with a leading "www." stripped.
func WebsiteFromLink(link string) string {
	parsed, err := url.Parse(strings.TrimSpace(link))
	if err != nil || parsed.Host == "" {
		return ""
	}
	host := strings.ToLower(parsed.Host)
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	return strings.TrimPrefix(host, "www.")
}
