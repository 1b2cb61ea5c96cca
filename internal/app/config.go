package app

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"videostream/aggregatorservice/internal/domain"
)

type Config struct {
	HTTPAddr          string
	RequestTimeout    time.Duration
	AITimeout         time.Duration
	LogLevel          string
	LogFormat         string
	UserAgent         string
	SearchEngineURL   string
	AIAPIURL          string
	AIAPIKey          string
	AIModel           string
	AIFallbackEnabled bool
	ParsingInterfaces []domain.ParsingInterface
	PlayerURLTemplate string
	CatalogSources    string
	RedisURL          string
	CacheTTL          time.Duration
	CacheDisabled     bool
	OTLPEndpoint      string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:          getEnv("HTTP_ADDR", ":8090"),
		RequestTimeout:    time.Duration(getEnvInt("SEARCH_TIMEOUT_SECONDS", 120)) * time.Second,
		AITimeout:         time.Duration(getEnvInt("AI_TIMEOUT_SECONDS", 90)) * time.Second,
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserAgent:         getEnv("SCRAPE_USER_AGENT", ""),
		SearchEngineURL:   getEnv("SEARXNG_URL", ""),
		AIAPIURL:          getEnv("AI_API_URL", ""),
		AIAPIKey:          strings.TrimSpace(os.Getenv("AI_API_KEY")),
		AIModel:           getEnv("AI_MODEL", ""),
		AIFallbackEnabled: getEnvBool("AI_STREAM_FALLBACK", true),
		ParsingInterfaces: parseParsingInterfaces(os.Getenv("DEFAULT_PARSING_INTERFACES")),
		PlayerURLTemplate: getEnv("PLAYER_URL_TEMPLATE", ""),
		CatalogSources:    getEnv("CATALOG_SOURCES", ""),
		RedisURL:          getEnv("REDIS_URL", ""),
		CacheTTL:          time.Duration(getEnvInt("SEARCH_CACHE_TTL_MINUTES", 10)) * time.Minute,
		CacheDisabled:     getEnvBool("SEARCH_CACHE_DISABLED", false),
		OTLPEndpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// parseParsingInterfaces reads the JSON array of third-party player
// templates. Entries without a name or URL are dropped; a malformed value
// yields an empty list rather than a startup failure.
func parseParsingInterfaces(raw string) []domain.ParsingInterface {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	var parsed []domain.ParsingInterface
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return nil
	}
	interfaces := make([]domain.ParsingInterface, 0, len(parsed))
	for _, entry := range parsed {
		entry.Name = strings.TrimSpace(entry.Name)
		entry.URL = strings.TrimSpace(entry.URL)
		if entry.Name == "" || entry.URL == "" {
			continue
		}
		interfaces = append(interfaces, entry)
	}
	return interfaces
}

// ParseCatalogSources reads the CATALOG_SOURCES value: a semicolon-separated
// list of name|base_url|search_path_template triples. An empty value keeps
// the built-in sources.
func ParseCatalogSources(raw string) []CatalogSourceConfig {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	entries := strings.Split(trimmed, ";")
	sources := make([]CatalogSourceConfig, 0, len(entries))
	for _, entry := range entries {
		parts := strings.SplitN(strings.TrimSpace(entry), "|", 3)
		if len(parts) != 3 {
			continue
		}
		source := CatalogSourceConfig{
			Name:               strings.TrimSpace(parts[0]),
			BaseURL:            strings.TrimSpace(parts[1]),
			SearchPathTemplate: strings.TrimSpace(parts[2]),
		}
		if source.Name == "" || source.BaseURL == "" || source.SearchPathTemplate == "" {
			continue
		}
		sources = append(sources, source)
	}
	return sources
}

type CatalogSourceConfig struct {
	Name               string
	BaseURL            string
	SearchPathTemplate string
}
