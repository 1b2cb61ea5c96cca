package search

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"videostream/aggregatorservice/internal/ai"
	"videostream/aggregatorservice/internal/domain"
)

type fakeWeb struct {
	links []domain.RawLink
	err   error
	calls atomic.Int64
}

func (f *fakeWeb) Search(_ context.Context, _, _ string) ([]domain.RawLink, error) {
	f.calls.Add(1)
	return f.links, f.err
}

type fakeClassifier struct {
	defaults   ai.Config
	classified []domain.ClassifiedLink
	err        error
	calls      atomic.Int64
}

func (f *fakeClassifier) Defaults() ai.Config {
	if f.defaults == (ai.Config{}) {
		return ai.Config{APIURL: "https://ai.test/v1/chat/completions", APIKey: "test-key", Model: "test-model"}
	}
	return f.defaults
}

func (f *fakeClassifier) ClassifyLinks(_ context.Context, _ ai.Config, _ []domain.RawLink) ([]domain.ClassifiedLink, error) {
	f.calls.Add(1)
	return f.classified, f.err
}

type fakeCatalog struct {
	items []domain.CatalogItem
	err   error
	calls atomic.Int64
}

func (f *fakeCatalog) Search(_ context.Context, _ string) ([]domain.CatalogItem, error) {
	f.calls.Add(1)
	return f.items, f.err
}

func newTestService(web *fakeWeb, classifier *fakeClassifier, catalog *fakeCatalog, opts ...ServiceOption) *Service {
	return NewService(web, classifier, catalog, 5*time.Second, opts...)
}

func TestSearch_EmptyQuery(t *testing.T) {
	svc := newTestService(&fakeWeb{}, &fakeClassifier{}, &fakeCatalog{})
	_, err := svc.Search(context.Background(), domain.SearchRequest{Query: "   ", Strategy: domain.StrategyGenericAI})
	if !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestSearch_UnknownStrategy(t *testing.T) {
	svc := newTestService(&fakeWeb{}, &fakeClassifier{}, &fakeCatalog{})
	_, err := svc.Search(context.Background(), domain.SearchRequest{Query: "x", Strategy: "telepathy"})
	if !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestSearch_GenericEmptyWebResultSkipsClassifier(t *testing.T) {
	web := &fakeWeb{links: []domain.RawLink{}}
	classifier := &fakeClassifier{}
	svc := newTestService(web, classifier, &fakeCatalog{})

	items, err := svc.Search(context.Background(), domain.SearchRequest{Query: "obscure", Strategy: domain.StrategyGenericAI})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty items, got %d", len(items))
	}
	if classifier.calls.Load() != 0 {
		t.Fatalf("classifier should not be called for empty web results, got %d calls", classifier.calls.Load())
	}
}

func TestSearch_GenericTagsItems(t *testing.T) {
	web := &fakeWeb{links: []domain.RawLink{{Title: "Movie", URL: "https://v.qq.com/x/1.html"}}}
	classifier := &fakeClassifier{classified: []domain.ClassifiedLink{
		{Title: "Movie", VideoLink: "https://v.qq.com/x/1.html", Website: "v.qq.com"},
	}}
	svc := newTestService(web, classifier, &fakeCatalog{})

	items, err := svc.Search(context.Background(), domain.SearchRequest{Query: "movie", Strategy: domain.StrategyGenericAI})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].Strategy != domain.StrategyGenericAI || items[0].Website != "v.qq.com" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestSearch_GenericClassifierFailureIsError(t *testing.T) {
	web := &fakeWeb{links: []domain.RawLink{{Title: "Movie", URL: "https://a.test/1"}}}
	classifier := &fakeClassifier{err: errors.New("model unavailable")}
	svc := newTestService(web, classifier, &fakeCatalog{})

	if _, err := svc.Search(context.Background(), domain.SearchRequest{Query: "movie", Strategy: domain.StrategyGenericAI}); err == nil {
		t.Fatal("expected classification failure to surface as an error")
	}
}

func TestSearch_GenericFailsFastWhenUnconfigured(t *testing.T) {
	web := &fakeWeb{links: []domain.RawLink{{Title: "Movie", URL: "https://a.test/1"}}}
	classifier := &fakeClassifier{defaults: ai.Config{APIURL: "https://ai.test", APIKey: "YOUR_KEY_PLACEHOLDER", Model: "m"}}
	svc := newTestService(web, classifier, &fakeCatalog{})

	_, err := svc.Search(context.Background(), domain.SearchRequest{Query: "movie", Strategy: domain.StrategyGenericAI})
	if !errors.Is(err, ai.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if web.calls.Load() != 0 {
		t.Fatalf("web search should not run before config validation, got %d calls", web.calls.Load())
	}
}

func TestSearch_CatalogDoesNotRequireAIConfig(t *testing.T) {
	catalog := &fakeCatalog{items: []domain.CatalogItem{{Title: "Show", ID: "5", DetailPath: "/voddetail/5.html"}}}
	classifier := &fakeClassifier{defaults: ai.Config{APIURL: "", APIKey: "", Model: ""}}
	svc := newTestService(&fakeWeb{}, classifier, catalog)

	items, err := svc.Search(context.Background(), domain.SearchRequest{Query: "show", Strategy: domain.StrategyCatalogNative})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].Strategy != domain.StrategyCatalogNative || items[0].Catalog == nil {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestSearch_AllMergesBothPipelines(t *testing.T) {
	web := &fakeWeb{links: []domain.RawLink{{Title: "Movie", URL: "https://a.test/1"}}}
	classifier := &fakeClassifier{classified: []domain.ClassifiedLink{
		{Title: "Movie", VideoLink: "https://a.test/1", Website: "a.test"},
	}}
	catalog := &fakeCatalog{items: []domain.CatalogItem{{Title: "Movie", ID: "9", DetailPath: "/voddetail/9.html"}}}
	svc := newTestService(web, classifier, catalog)

	items, err := svc.Search(context.Background(), domain.SearchRequest{Query: "movie", Strategy: domain.StrategyAll})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 merged items, got %d", len(items))
	}
	if items[0].Strategy != domain.StrategyGenericAI || items[1].Strategy != domain.StrategyCatalogNative {
		t.Fatalf("unexpected ordering: %+v", items)
	}
}

func TestSearch_AllToleratesSinglePipelineFailure(t *testing.T) {
	web := &fakeWeb{err: errors.New("engine down")}
	catalog := &fakeCatalog{items: []domain.CatalogItem{{Title: "Movie", ID: "9", DetailPath: "/voddetail/9.html"}}}
	svc := newTestService(web, &fakeClassifier{}, catalog)

	items, err := svc.Search(context.Background(), domain.SearchRequest{Query: "movie", Strategy: domain.StrategyAll})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].Strategy != domain.StrategyCatalogNative {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestSearch_AllServesCatalogWhenAIUnconfigured(t *testing.T) {
	web := &fakeWeb{links: []domain.RawLink{{Title: "Movie", URL: "https://a.test/1"}}}
	classifier := &fakeClassifier{defaults: ai.Config{APIURL: "https://ai.test", APIKey: "YOUR_KEY_PLACEHOLDER", Model: "m"}}
	catalog := &fakeCatalog{items: []domain.CatalogItem{{Title: "Movie", ID: "9", DetailPath: "/voddetail/9.html"}}}
	svc := newTestService(web, classifier, catalog)

	items, err := svc.Search(context.Background(), domain.SearchRequest{Query: "movie"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].Strategy != domain.StrategyCatalogNative {
		t.Fatalf("expected catalog results only, got %+v", items)
	}
	if web.calls.Load() != 0 {
		t.Fatalf("generic pipeline should stop at config validation, got %d web calls", web.calls.Load())
	}
	if catalog.calls.Load() != 1 {
		t.Fatalf("expected catalog pipeline to run, got %d calls", catalog.calls.Load())
	}
}

func TestSearch_AllFailsWhenBothPipelinesFail(t *testing.T) {
	web := &fakeWeb{err: errors.New("engine down")}
	catalog := &fakeCatalog{err: errors.New("catalog down")}
	svc := newTestService(web, &fakeClassifier{}, catalog)

	if _, err := svc.Search(context.Background(), domain.SearchRequest{Query: "movie", Strategy: domain.StrategyAll}); err == nil {
		t.Fatal("expected error when both pipelines fail")
	}
}

func TestSearch_EmptyStrategyRunsBoth(t *testing.T) {
	web := &fakeWeb{links: []domain.RawLink{}}
	catalog := &fakeCatalog{items: []domain.CatalogItem{}}
	svc := newTestService(web, &fakeClassifier{}, catalog)

	items, err := svc.Search(context.Background(), domain.SearchRequest{Query: "movie"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty merge, got %d", len(items))
	}
	if web.calls.Load() != 1 || catalog.calls.Load() != 1 {
		t.Fatalf("expected both pipelines to run, web=%d catalog=%d", web.calls.Load(), catalog.calls.Load())
	}
}

func TestSearch_CachesSuccessfulResults(t *testing.T) {
	catalog := &fakeCatalog{items: []domain.CatalogItem{{Title: "Show", ID: "5", DetailPath: "/voddetail/5.html"}}}
	svc := newTestService(&fakeWeb{}, &fakeClassifier{}, catalog)

	request := domain.SearchRequest{Query: "show", Strategy: domain.StrategyCatalogNative}
	if _, err := svc.Search(context.Background(), request); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Search(context.Background(), request); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if catalog.calls.Load() != 1 {
		t.Fatalf("expected second search to hit cache, got %d catalog calls", catalog.calls.Load())
	}
}

func TestSearch_NoCacheBypassesCache(t *testing.T) {
	catalog := &fakeCatalog{items: []domain.CatalogItem{}}
	svc := newTestService(&fakeWeb{}, &fakeClassifier{}, catalog)

	request := domain.SearchRequest{Query: "show", Strategy: domain.StrategyCatalogNative, NoCache: true}
	for i := 0; i < 2; i++ {
		if _, err := svc.Search(context.Background(), request); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if catalog.calls.Load() != 2 {
		t.Fatalf("expected cache bypass, got %d catalog calls", catalog.calls.Load())
	}
}

func TestSearch_FailuresAreNotCached(t *testing.T) {
	catalog := &fakeCatalog{err: errors.New("catalog down")}
	svc := newTestService(&fakeWeb{}, &fakeClassifier{}, catalog)

	request := domain.SearchRequest{Query: "show", Strategy: domain.StrategyCatalogNative}
	for i := 0; i < 2; i++ {
		if _, err := svc.Search(context.Background(), request); err == nil {
			t.Fatal("expected error")
		}
	}
	if catalog.calls.Load() != 2 {
		t.Fatalf("expected failed searches to retry the pipeline, got %d calls", catalog.calls.Load())
	}
}
