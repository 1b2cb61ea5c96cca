package app

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()
	if cfg.HTTPAddr != ":8090" {
		t.Fatalf("unexpected default addr: %q", cfg.HTTPAddr)
	}
	if cfg.RequestTimeout != 120*time.Second || cfg.AITimeout != 90*time.Second {
		t.Fatalf("unexpected default timeouts: %v %v", cfg.RequestTimeout, cfg.AITimeout)
	}
	if cfg.CacheDisabled {
		t.Fatal("cache should be enabled by default")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("AI_API_KEY", "  sk-test  ")
	t.Setenv("SEARCH_CACHE_TTL_MINUTES", "42")
	t.Setenv("SEARCH_CACHE_DISABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://otel:4318")

	cfg := LoadConfig()
	if cfg.HTTPAddr != ":9999" {
		t.Fatalf("unexpected addr: %q", cfg.HTTPAddr)
	}
	if cfg.AIAPIKey != "sk-test" {
		t.Fatalf("expected trimmed key, got %q", cfg.AIAPIKey)
	}
	if cfg.CacheTTL != 42*time.Minute {
		t.Fatalf("unexpected ttl: %v", cfg.CacheTTL)
	}
	if !cfg.CacheDisabled {
		t.Fatal("expected cache disabled")
	}
	if cfg.OTLPEndpoint != "http://otel:4318" {
		t.Fatalf("unexpected otlp endpoint: %q", cfg.OTLPEndpoint)
	}
}

func TestParseParsingInterfaces(t *testing.T) {
	interfaces := parseParsingInterfaces(`[
		{"name":"jx","url":"https://jx.test/?url=","restricted_mobile":true},
		{"name":"","url":"https://dropped.test"},
		{"name":"no-url","url":"  "}
	]`)
	if len(interfaces) != 1 {
		t.Fatalf("expected 1 valid interface, got %d", len(interfaces))
	}
	if interfaces[0].Name != "jx" || !interfaces[0].RestrictedMobile {
		t.Fatalf("unexpected interface: %+v", interfaces[0])
	}
}

func TestParseParsingInterfaces_Malformed(t *testing.T) {
	if got := parseParsingInterfaces("{not json"); got != nil {
		t.Fatalf("expected nil for malformed value, got %+v", got)
	}
}

func TestParseCatalogSources(t *testing.T) {
	sources := ParseCatalogSources("pkcom|https://www.pkcom.cc|/vodsearch/{query}-------------.html;broken-entry;a|b|")
	if len(sources) != 1 {
		t.Fatalf("expected 1 valid source, got %d", len(sources))
	}
	if sources[0].Name != "pkcom" || sources[0].BaseURL != "https://www.pkcom.cc" {
		t.Fatalf("unexpected source: %+v", sources[0])
	}
}

func TestParseCatalogSources_Empty(t *testing.T) {
	if got := ParseCatalogSources("   "); got != nil {
		t.Fatalf("expected nil for empty value, got %+v", got)
	}
}
