package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"videostream/aggregatorservice/internal/fetch"
)

func testPolicy() fetch.Policy {
	return fetch.Policy{MaxAttempts: 2, RetryDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestSearch_ParsesResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("q") != "inception" {
			t.Errorf("unexpected query: %q", q.Get("q"))
		}
		if q.Get("categories") != "general" || q.Get("format") != "html" {
			t.Errorf("missing expected search params: %v", q)
		}
		_, _ = w.Write([]byte(`
<article class="result"><h3><a href="https://v.qq.com/x/cover/1.html">Inception</a></h3></article>
<article class="result"><h3><a href="ftp://bad.scheme/x">Bad</a></h3></article>`))
	}))
	defer server.Close()

	provider := NewProvider(Config{Endpoint: server.URL, Client: server.Client(), Policy: testPolicy()})
	links, err := provider.Search(context.Background(), "inception", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}
	if links[0].URL != "https://v.qq.com/x/cover/1.html" {
		t.Fatalf("unexpected link: %+v", links[0])
	}
}

func TestSearch_EmptyPageIsEmptySuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>nothing</body></html>"))
	}))
	defer server.Close()

	provider := NewProvider(Config{Endpoint: server.URL, Client: server.Client(), Policy: testPolicy()})
	links, err := provider.Search(context.Background(), "obscure", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 0 {
		t.Fatalf("expected empty result, got %d", len(links))
	}
}

func TestSearch_EndpointOverride(t *testing.T) {
	var overrideHit bool
	override := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		overrideHit = true
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer override.Close()

	provider := NewProvider(Config{Endpoint: "https://unreachable.invalid", Client: override.Client(), Policy: testPolicy()})
	if _, err := provider.Search(context.Background(), "q", override.URL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !overrideHit {
		t.Fatal("expected override endpoint to be used")
	}
}

func TestSearch_MissingEndpoint(t *testing.T) {
	provider := NewProvider(Config{Policy: testPolicy()})
	if _, err := provider.Search(context.Background(), "q", ""); err == nil {
		t.Fatal("expected configuration error")
	}
}
