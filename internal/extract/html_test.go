package extract

import (
	"testing"
)

func TestSearchResults(t *testing.T) {
	html := `
<div id="results">
  <article class="result">
    <h3><a href="https://v.example.com/play/1">Inception HD</a></h3>
  </article>
  <article class="result">
    <h3><a href="/relative/path">Relative Link</a></h3>
  </article>
  <article class="result">
    <h3><a href="https://v.example.com/play/2">  </a></h3>
  </article>
  <article class="result">
    <h3><a href="http://other.example.org/watch">Other Site</a></h3>
  </article>
</div>`

	links := SearchResults(html)
	if len(links) != 2 {
		t.Fatalf("expected 2 links (relative and empty-title dropped), got %d", len(links))
	}
	if links[0].Title != "Inception HD" || links[0].URL != "https://v.example.com/play/1" {
		t.Fatalf("unexpected first link: %+v", links[0])
	}
	if links[1].URL != "http://other.example.org/watch" {
		t.Fatalf("order not preserved: %+v", links[1])
	}
}

func TestSearchResults_EmptyPage(t *testing.T) {
	if links := SearchResults("<html><body><p>no results</p></body></html>"); len(links) != 0 {
		t.Fatalf("expected no links, got %d", len(links))
	}
}

func TestCatalogItems_SkipsIncompleteCards(t *testing.T) {
	html := `
<div>
  <div class="module-search-item">
    <a href="/voddetail/53631.html" title="Inception"><img data-original="/upload/1.jpg"></a>
    <div class="module-item-note">HD</div>
  </div>
  <div class="module-search-item">
    <a href="/voddetail/53632.html" title="No Cover Movie"></a>
  </div>
</div>`

	items := CatalogItems(html, "https://catalog.test", nil)
	if len(items) != 1 {
		t.Fatalf("expected exactly 1 item (card without cover skipped), got %d", len(items))
	}
	item := items[0]
	if item.Title != "Inception" {
		t.Fatalf("unexpected title: %q", item.Title)
	}
	if item.ID != "53631" {
		t.Fatalf("expected id parsed from detail path, got %q", item.ID)
	}
	if item.CoverImage != "/upload/1.jpg" {
		t.Fatalf("unexpected cover: %q", item.CoverImage)
	}
	if item.Note != "HD" {
		t.Fatalf("unexpected note: %q", item.Note)
	}
	if item.SourceBaseURL != "https://catalog.test" {
		t.Fatalf("unexpected source base: %q", item.SourceBaseURL)
	}
}

func TestCatalogItems_FallbackSelector(t *testing.T) {
	html := `
<ul>
  <li class="searchlist_item">
    <a href="/voddetail/99.html" title="Old Theme Movie"><img src="/cover.png"></a>
  </li>
</ul>`

	items := CatalogItems(html, "https://catalog.test", nil)
	if len(items) != 1 {
		t.Fatalf("expected fallback selector to match, got %d items", len(items))
	}
	if items[0].ID != "99" {
		t.Fatalf("unexpected id: %q", items[0].ID)
	}
}

func TestEpisodeList_SortedByURLIndex(t *testing.T) {
	html := `
<div class="module-play-list-content">
  <a href="/vodplay/53631-1-3.html"><span>第3集</span></a>
  <a href="/vodplay/53631-1-1.html"><span>第1集</span></a>
  <a href="/vodplay/53631-1-2.html"><span>第2集</span></a>
  <a href="/vodplay/special.html"><span>花絮</span></a>
</div>`

	episodes, err := EpisodeList(html)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(episodes) != 3 {
		t.Fatalf("expected 3 episodes (unparseable index dropped), got %d", len(episodes))
	}
	for i, want := range []int{1, 2, 3} {
		if episodes[i].Index != want {
			t.Fatalf("episode %d: expected index %d, got %d", i, want, episodes[i].Index)
		}
	}
	if episodes[0].Label != "第1集" {
		t.Fatalf("unexpected label: %q", episodes[0].Label)
	}
	if episodes[2].PagePath != "/vodplay/53631-1-3.html" {
		t.Fatalf("unexpected page path: %q", episodes[2].PagePath)
	}
}

func TestEpisodeList_ContainerMissing(t *testing.T) {
	_, err := EpisodeList("<html><body><div>nothing here</div></body></html>")
	if err != ErrNoEpisodeContainer {
		t.Fatalf("expected ErrNoEpisodeContainer, got %v", err)
	}
}

func TestEpisodeList_EmptyContainerIsNotAnError(t *testing.T) {
	episodes, err := EpisodeList(`<div class="module-play-list-content"></div>`)
	if err != nil {
		t.Fatalf("empty container must not be an error, got %v", err)
	}
	if len(episodes) != 0 {
		t.Fatalf("expected empty list, got %d", len(episodes))
	}
}

func TestEpisodeList_LabelFallsBackToAnchorText(t *testing.T) {
	episodes, err := EpisodeList(`<div class="module-play-list-content"><a href="/vodplay/1-1-7.html">EP07</a></div>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(episodes) != 1 || episodes[0].Label != "EP07" || episodes[0].Index != 7 {
		t.Fatalf("unexpected episodes: %+v", episodes)
	}
}

func TestTrailingEpisodeIndex(t *testing.T) {
	tests := []struct {
		href  string
		want  int
		found bool
	}{
		{"/vodplay/53631-1-12.html", 12, true},
		{"/vodplay/53631-1-3.html?from=nav", 3, true},
		{"/vodplay/about.html", 0, false},
		{"https://catalog.test/vodplay/7-2-1.html", 1, true},
	}
	for _, tt := range tests {
		got, found := trailingEpisodeIndex(tt.href)
		if got != tt.want || found != tt.found {
			t.Errorf("trailingEpisodeIndex(%q) = (%d, %v), want (%d, %v)", tt.href, got, found, tt.want, tt.found)
		}
	}
}

func TestDecodeHTML_GBKFallback(t *testing.T) {
	// "电影" encoded as GBK.
	gbk := []byte{0xb5, 0xe7, 0xd3, 0xb0}
	decoded := DecodeHTML(gbk)
	if decoded != "电影" {
		t.Fatalf("expected GBK payload decoded, got %q", decoded)
	}
	if DecodeHTML([]byte("plain utf-8")) != "plain utf-8" {
		t.Fatal("valid utf-8 must pass through unchanged")
	}
}
