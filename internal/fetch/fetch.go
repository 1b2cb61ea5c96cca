package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"
)

// Policy controls the retry behavior for a single logical outbound call.
type Policy struct {
	MaxAttempts int
	RetryDelay  time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// FatalStatus reports whether an HTTP status must not be retried.
	// When nil, 401 and 403 are fatal.
	FatalStatus func(status int) bool
}

// DefaultPolicy returns the defaults used for scraping targets:
// 3 attempts, 1s→2s between attempts.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		RetryDelay:  1 * time.Second,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
	}
}

type FailureKind string

const (
	KindFatal     FailureKind = "fatal"
	KindExhausted FailureKind = "exhausted"
)

// CallError classifies a failed outbound call. Fatal means a failure that
// retrying cannot fix (auth statuses, certificate errors); Exhausted means
// the retry budget ran out on transient errors.
type CallError struct {
	Kind   FailureKind
	Status int
	Err    error
}

func (e *CallError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s upstream failure (HTTP %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s upstream failure: %v", e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// IsFatal reports whether err is a non-retryable upstream failure.
func IsFatal(err error) bool {
	var callErr *CallError
	return errors.As(err, &callErr) && callErr.Kind == KindFatal
}

// Response is a fully buffered upstream response. Bodies are read eagerly
// (bounded) so retries never race a half-consumed reader.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

const maxResponseBytes = 4 * 1024 * 1024

// Caller performs outbound HTTP calls with bounded retries. It is the single
// mechanism behind every network call in the service: the search engine, the
// catalog site, and the AI completion endpoint all go through Do.
type Caller struct {
	client *http.Client
	policy Policy
}

func NewCaller(client *http.Client, policy Policy) *Caller {
	if client == nil {
		client = &http.Client{}
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.Multiplier <= 0 {
		policy.Multiplier = 1
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = policy.RetryDelay
	}
	return &Caller{client: client, policy: policy}
}

// Do executes the request, retrying transient failures up to the policy's
// attempt budget. Request bodies are replayed from body on every attempt;
// pass nil for GET.
//
// A non-2xx status is an error: fatal statuses stop immediately, anything
// else is treated as transient. Network errors retry only when
// IsTransientError says another attempt can help. The total wall clock is
// bounded by MaxAttempts * (client timeout + retry delay).
func (c *Caller) Do(ctx context.Context, method, url string, header http.Header, body []byte) (*Response, error) {
	fatal := c.policy.FatalStatus
	if fatal == nil {
		fatal = func(status int) bool {
			return status == http.StatusUnauthorized || status == http.StatusForbidden
		}
	}

	var lastErr error
	delay := c.policy.RetryDelay

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		response, err := c.attempt(ctx, method, url, header, body)
		if err == nil && response.StatusCode >= 200 && response.StatusCode < 300 {
			return response, nil
		}

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !IsTransientError(err) {
				return nil, &CallError{Kind: KindFatal, Err: err}
			}
			lastErr = err
		} else {
			statusErr := fmt.Errorf("HTTP %d: %s", response.StatusCode, bodySnippet(response.Body))
			if fatal(response.StatusCode) {
				return nil, &CallError{Kind: KindFatal, Status: response.StatusCode, Err: statusErr}
			}
			lastErr = statusErr
		}

		if attempt == c.policy.MaxAttempts {
			break
		}
		if err := sleepWithJitter(ctx, delay, c.policy.MaxDelay); err != nil {
			return nil, err
		}
		delay = time.Duration(float64(delay) * c.policy.Multiplier)
		if delay > c.policy.MaxDelay {
			delay = c.policy.MaxDelay
		}
	}

	return nil, &CallError{Kind: KindExhausted, Err: lastErr}
}

func (c *Caller) attempt(ctx context.Context, method, url string, header http.Header, body []byte) (*Response, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: payload}, nil
}

func sleepWithJitter(ctx context.Context, delay, maxDelay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	// ±25% jitter to avoid hammering a recovering upstream in lockstep.
	jittered := time.Duration(float64(delay) * (0.75 + rand.Float64()*0.5))
	if jittered > maxDelay {
		jittered = maxDelay
	}
	timer := time.NewTimer(jittered)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsTransientError reports whether a network-level error may succeed on
// retry: timeouts, resets, refused connections, truncated reads, TLS
// handshake noise. Certificate validation and malformed-request errors are
// not transient.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// url.Error satisfies net.Error unconditionally, so only a real timeout
	// counts here; everything else falls through to the message checks.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "deadline exceeded") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "tls handshake") ||
		strings.Contains(lower, "eof")
}

func bodySnippet(payload []byte) string {
	value := strings.Join(strings.Fields(string(payload)), " ")
	if len(value) > 200 {
		value = value[:197] + "..."
	}
	if value == "" {
		return "empty response body"
	}
	return value
}
