package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"videostream/aggregatorservice/internal/domain"
)

// playerMarkers are the variable-assignment markers that precede the embedded
// player configuration object, tried in order. The site's player script has
// been observed under more than one name across theme revisions.
var playerMarkers = []string{
	"var player_aaaa",
	"var player_data",
}

// PlayerNotFoundError reports that no recognizable player configuration was
// embedded in the page. This is an expected outcome for pages whose markup
// drifted, not a crash.
type PlayerNotFoundError struct {
	Markers []string
}

func (e *PlayerNotFoundError) Error() string {
	return fmt.Sprintf("player config marker not found (looked for %s)", strings.Join(e.Markers, ", "))
}

// MalformedOutputError carries a truncated copy of model output that failed
// to parse as JSON. Content-level malformedness is terminal, never retried.
type MalformedOutputError struct {
	Fragment string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("model output is not valid JSON: %q", e.Fragment)
}

type playerPayload struct {
	URL     string `json:"url"`
	URLNext string `json:"url_next"`
}

// PlayerConfig locates the script-embedded player configuration object and
// pulls the stream URLs out of it. JSON-escaped slashes are normalized so no
// literal backslash survives in the returned URLs.
func PlayerConfig(html string) (domain.PlayerConfig, error) {
	for _, marker := range playerMarkers {
		at := strings.Index(html, marker)
		if at < 0 {
			continue
		}
		object, ok := balancedJSONObject(html[at:])
		if !ok {
			continue
		}
		var payload playerPayload
		if err := json.Unmarshal([]byte(object), &payload); err != nil {
			continue
		}
		streamURL := normalizeEscapedSlashes(payload.URL)
		if streamURL == "" {
			continue
		}
		return domain.PlayerConfig{
			StreamURL:     streamURL,
			NextStreamURL: normalizeEscapedSlashes(payload.URLNext),
		}, nil
	}
	return domain.PlayerConfig{}, &PlayerNotFoundError{Markers: playerMarkers}
}

// balancedJSONObject isolates the first balanced {...} literal following a
// marker, tracking strings and escapes so braces inside values don't break
// the scan.
func balancedJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func normalizeEscapedSlashes(raw string) string {
	return strings.ReplaceAll(strings.TrimSpace(raw), `\/`, "/")
}

// LLMJSON strips an optional Markdown code fence from model output and
// validates the remainder as JSON. Parse failure is a content problem and is
// surfaced as a MalformedOutputError for diagnostics, never retried.
func LLMJSON(output string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(output)
	if after, ok := strings.CutPrefix(trimmed, "```json"); ok {
		trimmed = after
	} else if after, ok := strings.CutPrefix(trimmed, "```"); ok {
		trimmed = after
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	trimmed = strings.TrimSpace(trimmed)

	if !json.Valid([]byte(trimmed)) {
		return nil, &MalformedOutputError{Fragment: truncateFragment(trimmed, 200)}
	}
	return json.RawMessage(trimmed), nil
}

func truncateFragment(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}
