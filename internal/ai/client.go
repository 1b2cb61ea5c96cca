package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"videostream/aggregatorservice/internal/domain"
	"videostream/aggregatorservice/internal/extract"
	"videostream/aggregatorservice/internal/fetch"
	"videostream/aggregatorservice/internal/metrics"
)

const (
	defaultMaxTokens   = 30000
	extractMaxTokens   = 500
	maxPlayPageSnippet = 15000
)

// ErrNotConfigured is returned before any network call when the AI endpoint,
// key, or model is missing or still the unset placeholder. Retrying cannot
// help, so this is kept distinct from transient failures.
var ErrNotConfigured = errors.New("ai api is not configured")

// Config identifies one OpenAI-style chat-completion endpoint. A request may
// carry its own Config; zero fields fall back to the process defaults.
type Config struct {
	APIURL string
	APIKey string
	Model  string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return fmt.Errorf("%w: missing endpoint url", ErrNotConfigured)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: missing model name", ErrNotConfigured)
	}
	key := strings.TrimSpace(c.APIKey)
	if key == "" || strings.Contains(strings.ToUpper(key), "PLACEHOLDER") {
		return fmt.Errorf("%w: missing api key", ErrNotConfigured)
	}
	return nil
}

// Merge overlays per-request overrides onto the process defaults.
func (c Config) Merge(override Config) Config {
	merged := c
	if v := strings.TrimSpace(override.APIURL); v != "" {
		merged.APIURL = v
	}
	if v := strings.TrimSpace(override.APIKey); v != "" {
		merged.APIKey = v
	}
	if v := strings.TrimSpace(override.Model); v != "" {
		merged.Model = v
	}
	return merged
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Client talks to an OpenAI-compatible chat-completion API through the
// resilient caller. Sampling is pinned at temperature 0 for deterministic
// classification output.
type Client struct {
	caller   *fetch.Caller
	defaults Config
}

// NewClient builds a client. The http.Client should carry the long AI
// timeout (the completion call dominates the critical path).
func NewClient(httpClient *http.Client, policy fetch.Policy, defaults Config) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &Client{
		caller:   fetch.NewCaller(httpClient, policy),
		defaults: defaults,
	}
}

func (c *Client) Defaults() Config { return c.defaults }

// complete posts one completion request and returns the first choice's
// message content. 401/403 from the provider are fatal via the caller's
// default predicate; timeouts and 5xx burn the retry budget.
func (c *Client) complete(ctx context.Context, cfg Config, operation string, messages []message, maxTokens int) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	startedAt := time.Now()
	status := "error"
	defer func() {
		metrics.AIRequestsTotal.WithLabelValues(operation, status).Inc()
		metrics.AIRequestDuration.WithLabelValues(operation).Observe(time.Since(startedAt).Seconds())
	}()

	body, err := json.Marshal(completionRequest{
		Model:       cfg.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: 0,
		Stream:      false,
	})
	if err != nil {
		return "", err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+strings.TrimSpace(cfg.APIKey))
	header.Set("Content-Type", "application/json")

	resp, err := c.caller.Do(ctx, http.MethodPost, cfg.APIURL, header, body)
	if err != nil {
		return "", err
	}

	var completion completionResponse
	if err := json.Unmarshal(resp.Body, &completion); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("completion response has no choices")
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("completion response content is empty")
	}
	status = "ok"
	return content, nil
}

// ClassifyLinks sends a batch of raw search results to the model and returns
// only the entries it judged to be direct video playback pages. Every
// returned link has a populated website field; when the model omits it, the
// host of the video link is used.
//
// Malformed model output is a content problem and is surfaced as an error
// without retrying; an empty classified list is a valid result.
func (c *Client) ClassifyLinks(ctx context.Context, cfg Config, links []domain.RawLink) ([]domain.ClassifiedLink, error) {
	if len(links) == 0 {
		return []domain.ClassifiedLink{}, nil
	}

	content, err := c.complete(ctx, cfg, "classify", []message{
		{Role: "user", Content: classificationPrompt(links)},
	}, defaultMaxTokens)
	if err != nil {
		return nil, err
	}

	raw, err := extract.LLMJSON(content)
	if err != nil {
		return nil, err
	}

	var candidates []struct {
		Title     string `json:"title"`
		VideoLink string `json:"video_link"`
		Website   string `json:"website"`
	}
	if err := json.Unmarshal(raw, &candidates); err != nil {
		return nil, &extract.MalformedOutputError{Fragment: fragment(content)}
	}

	classified := make([]domain.ClassifiedLink, 0, len(candidates))
	for _, candidate := range candidates {
		title := strings.TrimSpace(candidate.Title)
		videoLink := strings.TrimSpace(candidate.VideoLink)
		if title == "" || videoLink == "" {
			continue
		}
		website := strings.TrimSpace(candidate.Website)
		if website == "" {
			website = domain.WebsiteFromLink(videoLink)
		}
		if website == "" {
			website = "unknown"
		}
		classified = append(classified, domain.ClassifiedLink{
			Title:     title,
			VideoLink: videoLink,
			Website:   website,
		})
	}
	return classified, nil
}

// ExtractStreamURL asks the model to pull the .m3u8 stream URL out of a play
// page whose markup defeated the structural extractor. The reply is expected
// to be the bare URL; quotes, backticks, and a leading "URL:" prefix are
// stripped before validation.
func (c *Client) ExtractStreamURL(ctx context.Context, cfg Config, pageHTML, title string) (string, error) {
	snippet := pageHTML
	if len(snippet) > maxPlayPageSnippet {
		snippet = snippet[:maxPlayPageSnippet]
	}

	content, err := c.complete(ctx, cfg, "extract_stream", []message{
		{
			Role:    "system",
			Content: "You are an expert web scraper. Your task is to extract the primary video stream URL (usually ending in .m3u8) from the given HTML content. Respond ONLY with the URL itself, without any introductory text, explanations, or formatting like backticks or quotes.",
		},
		{
			Role:    "user",
			Content: fmt.Sprintf("Extract the video stream URL (e.g., https://.../video.m3u8) from this HTML:\n\n```html\n%s\n```\n\nReturn only the URL.", snippet),
		},
	}, extractMaxTokens)
	if err != nil {
		return "", err
	}

	streamURL := strings.Trim(content, "\"'` \t\n")
	streamURL = strings.TrimPrefix(streamURL, "URL:")
	streamURL = strings.TrimPrefix(streamURL, "url:")
	streamURL = strings.TrimSpace(streamURL)
	streamURL = strings.ReplaceAll(streamURL, `\/`, "/")

	if streamURL == "" || !strings.Contains(streamURL, ".m3u8") {
		return "", fmt.Errorf("model did not return a usable stream url for %q", title)
	}
	if !strings.HasPrefix(streamURL, "http") && !strings.HasPrefix(streamURL, "/") {
		return "", fmt.Errorf("model returned a malformed stream url for %q", title)
	}
	return streamURL, nil
}

func classificationPrompt(links []domain.RawLink) string {
	var input strings.Builder
	for _, link := range links {
		fmt.Fprintf(&input, "Title: %s\nURL: %s\n", link.Title, link.URL)
	}

	return fmt.Sprintf(`Analyze the following list of search results (each with a Title and URL).
Your task is to identify ONLY the URLs that point DIRECTLY to video playback pages for movies or TV series episodes.
Prioritize links from major video platforms like Tencent Video (v.qq.com), iQiyi (iq.com), Bilibili (bilibili.com), Youku (youku.com), Mango TV (mgtv.com), Wasu (wasu.cn), etc., but include ANY valid direct video playback link you find from other dedicated video streaming sites.

Explicitly EXCLUDE links to:
- General informational pages (like Wikipedia, Baidu Baike, Douban info pages without player)
- News articles, blog posts
- Forum discussions or communities (like Zhihu, Tieba, Reddit)
- Social media sites (unless it's an official platform channel hosting full episodes like YouTube)
- E-commerce sites, download sites, search results pages
- General website homepages or channel pages (unless the URL structure strongly implies direct playback)
- Short video clips (focus on full episodes/movies)

Return your findings ONLY as a JSON list of objects. Each object in the list MUST have the following exact keys:
- "title": The original title associated with the identified video link.
- "video_link": The URL that you identified as a direct video playback link.
- "website": The domain name of the video platform extracted from the video_link (e.g., "v.qq.com", "bilibili.com", "iq.com"). Use the root domain (e.g., www.bilibili.com -> bilibili.com).

If no valid video playback links are found in the provided list, return an empty JSON list: [].
Do not include any explanations or introductory text outside the JSON structure. Just the JSON list itself.

Here is the list of search results to analyze:
--- START OF LIST ---
%s--- END OF LIST ---

Your JSON output:`, input.String())
}

func fragment(content string) string {
	if len(content) > 200 {
		return content[:197] + "..."
	}
	return content
}
