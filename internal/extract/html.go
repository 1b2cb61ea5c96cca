package extract

import (
	"errors"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/simplifiedchinese"

	"videostream/aggregatorservice/internal/domain"
)

// ErrNoEpisodeContainer is returned when none of the episode-list selectors
// match. Distinct from a container that matched but holds zero episodes,
// which is a valid empty result (single-episode movies).
var ErrNoEpisodeContainer = errors.New("episode list container not found")

// Selector chains are tried in order; the first structural match wins. The
// catalog site's markup drifts between theme revisions, so the alternates
// are configuration, not dead code.
var (
	searchResultSelectors = []string{
		"article.result h3 a[href]",
		".result h3 a[href]",
	}

	catalogCardSelectors = []string{
		".module-search-item",
		".module-item",
		".stui-vodlist__box",
		"li.searchlist_item",
	}

	episodeContainerSelectors = []string{
		".module-play-list-content",
		".module-play-list",
		"#playlist ul",
		".stui-content__playlist",
	}
)

var digitRunPattern = regexp.MustCompile(`[0-9]+`)

// DecodeHTML converts a raw response body to a UTF-8 string. Chinese catalog
// sites occasionally serve GBK; invalid UTF-8 falls back to a GB18030 decode.
func DecodeHTML(payload []byte) string {
	if utf8.Valid(payload) {
		return string(payload)
	}
	decoded, err := simplifiedchinese.GB18030.NewDecoder().Bytes(payload)
	if err != nil {
		return string(payload)
	}
	return string(decoded)
}

// SearchResults extracts result entries from a generic search engine page.
// Only entries with a non-empty title and an absolute http(s) link are kept;
// encounter order is preserved and duplicates are not collapsed.
func SearchResults(html string) []domain.RawLink {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var links []domain.RawLink
	for _, selector := range searchResultSelectors {
		doc.Find(selector).Each(func(_ int, anchor *goquery.Selection) {
			href, _ := anchor.Attr("href")
			href = strings.TrimSpace(href)
			title := normalizeText(anchor.Text())
			if title == "" || !isAbsoluteHTTP(href) {
				return
			}
			links = append(links, domain.RawLink{Title: title, URL: href})
		})
		if len(links) > 0 {
			break
		}
	}
	return links
}

// CatalogItems extracts card-like entries from a catalog search page.
// A card missing its title, detail link, or cover image is skipped with a
// diagnostic; a single bad card never aborts the listing.
func CatalogItems(html, sourceBaseURL string, logger *slog.Logger) []domain.CatalogItem {
	if logger == nil {
		logger = slog.Default()
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var items []domain.CatalogItem
	for _, selector := range catalogCardSelectors {
		doc.Find(selector).Each(func(index int, card *goquery.Selection) {
			item, ok := parseCatalogCard(card, sourceBaseURL)
			if !ok {
				logger.Debug("catalog card skipped",
					slog.String("selector", selector),
					slog.Int("index", index),
				)
				return
			}
			items = append(items, item)
		})
		if len(items) > 0 {
			break
		}
	}
	return items
}

func parseCatalogCard(card *goquery.Selection, sourceBaseURL string) (domain.CatalogItem, bool) {
	anchor := card.Find("a[href]").First()
	detailPath, _ := anchor.Attr("href")
	detailPath = strings.TrimSpace(detailPath)
	if detailPath == "" {
		return domain.CatalogItem{}, false
	}

	title := strings.TrimSpace(anchor.AttrOr("title", ""))
	if title == "" {
		title = normalizeText(card.Find("h3, h4, .module-card-item-title, .title").First().Text())
	}
	if title == "" {
		return domain.CatalogItem{}, false
	}

	cover := coverImageURL(card)
	if cover == "" {
		return domain.CatalogItem{}, false
	}

	id := lastDigitRun(detailPath)
	if id == "" {
		return domain.CatalogItem{}, false
	}

	return domain.CatalogItem{
		Title:         title,
		CoverImage:    cover,
		Note:          normalizeText(card.Find(".module-item-note, .pic-text, .note").First().Text()),
		ID:            id,
		DetailPath:    detailPath,
		SourceBaseURL: sourceBaseURL,
	}, true
}

func coverImageURL(card *goquery.Selection) string {
	img := card.Find("img").First()
	for _, attr := range []string{"data-original", "data-src", "src"} {
		if value := strings.TrimSpace(img.AttrOr(attr, "")); value != "" {
			return value
		}
	}
	return ""
}

// EpisodeList extracts the episode anchors from a catalog detail or player
// page. The display label comes from a nested span when present, the anchor
// text otherwise. The ordering index is parsed from the link URL (the more
// stable of the two); anchors without a parseable trailing integer are
// dropped, never kept with a zero index.
func EpisodeList(html string) ([]domain.EpisodeRef, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var container *goquery.Selection
	for _, selector := range episodeContainerSelectors {
		if found := doc.Find(selector).First(); found.Length() > 0 {
			container = found
			break
		}
	}
	if container == nil {
		return nil, ErrNoEpisodeContainer
	}

	episodes := make([]domain.EpisodeRef, 0)
	container.Find("a[href]").Each(func(_ int, anchor *goquery.Selection) {
		href := strings.TrimSpace(anchor.AttrOr("href", ""))
		if href == "" {
			return
		}
		index, ok := trailingEpisodeIndex(href)
		if !ok {
			return
		}
		label := normalizeText(anchor.Find("span").First().Text())
		if label == "" {
			label = normalizeText(anchor.Text())
		}
		if label == "" {
			label = strconv.Itoa(index)
		}
		episodes = append(episodes, domain.EpisodeRef{
			Label:    label,
			Index:    index,
			PagePath: href,
		})
	})

	sort.SliceStable(episodes, func(i, j int) bool {
		return episodes[i].Index < episodes[j].Index
	})
	return episodes, nil
}

// trailingEpisodeIndex parses the last run of digits in the link path, e.g.
// /vodplay/53631-1-12.html -> 12.
func trailingEpisodeIndex(href string) (int, bool) {
	path := href
	if cut := strings.IndexAny(path, "?#"); cut >= 0 {
		path = path[:cut]
	}
	if dot := strings.LastIndex(path, "."); dot >= 0 {
		path = path[:dot]
	}
	raw := lastDigitRun(path)
	if raw == "" {
		return 0, false
	}
	index, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return index, true
}

func lastDigitRun(value string) string {
	runs := digitRunPattern.FindAllString(value, -1)
	if len(runs) == 0 {
		return ""
	}
	return runs[len(runs)-1]
}

func isAbsoluteHTTP(raw string) bool {
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}

func normalizeText(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
