package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultBaseURL is the Graph v1.0 endpoint.
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"

	// maxAttempts bounds retries for a single call, including the first try.
	maxAttempts = 3

	// defaultRetryAfter is used when a 429 response carries no Retry-After
	// hint.
	defaultRetryAfter = 60 * time.Second

	// maxErrorBody caps how much of an error response is kept for logging.
	maxErrorBody = 512
)

// Client executes Graph API calls with bearer auth, conditional-update
// headers and bounded retry on throttling.
type Client struct {
	// BaseURL is prepended to every endpoint. Defaults to DefaultBaseURL.
	BaseURL string

	// HTTP is the underlying HTTP client.
	HTTP *http.Client

	// Sleep is called to wait out a throttled response. Tests replace it to
	// avoid real sleeps.
	Sleep func(time.Duration)

	log zerolog.Logger
}

// NewClient creates a Graph client with default base URL and timeouts.
func NewClient(logger zerolog.Logger) *Client {
	return &Client{
		BaseURL: DefaultBaseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Sleep:   time.Sleep,
		log:     logger,
	}
}

// Do executes a JSON call. A nil body sends no payload. A non-empty etag is
// attached as an If-Match header for conditional updates and deletes.
// A 204 response yields a nil result. A 429 response is retried up to
// maxAttempts total tries, sleeping for the server-advertised Retry-After
// (or defaultRetryAfter when absent); exhausting the budget returns
// ErrRetryExhausted.
func (c *Client) Do(ctx context.Context, method, endpoint, token string, body any, etag string) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request for %s %s: %w", method, endpoint, err)
		}
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	if etag != "" {
		headers["If-Match"] = etag
	}

	return c.execute(ctx, method, endpoint, token, payload, headers)
}

// DoBytes executes a call with a raw binary body, used for file uploads.
// The retry contract is identical to Do.
func (c *Client) DoBytes(ctx context.Context, method, endpoint, token string, data []byte, contentType string) (json.RawMessage, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	headers := map[string]string{"Content-Type": contentType}
	return c.execute(ctx, method, endpoint, token, data, headers)
}

func (c *Client) execute(ctx context.Context, method, endpoint, token string, payload []byte, headers map[string]string) (json.RawMessage, error) {
	url := c.BaseURL + endpoint

	for attempt := 0; attempt < maxAttempts; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("build request for %s %s: %w", method, endpoint, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := retryAfter(resp)
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			c.log.Warn().
				Str("endpoint", endpoint).
				Dur("wait", wait).
				Int("attempt", attempt+1).
				Msg("throttled by Graph API, backing off")
			c.Sleep(wait)
			continue
		}

		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%s %s: read response: %w", method, endpoint, err)
		}

		if resp.StatusCode == http.StatusNoContent {
			return nil, nil
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return raw, nil
		}

		body := string(raw)
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &StatusError{
			Code:     resp.StatusCode,
			Method:   method,
			Endpoint: endpoint,
			Body:     body,
		}
	}

	return nil, fmt.Errorf("%s %s: %w", method, endpoint, ErrRetryExhausted)
}

// retryAfter extracts the advertised wait from a 429 response.
func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultRetryAfter
}

// nextEndpoint converts an @odata.nextLink into an endpoint relative to the
// client's base URL. An empty link means the listing is complete.
func (c *Client) nextEndpoint(link string) string {
	if link == "" {
		return ""
	}
	return strings.TrimPrefix(link, c.BaseURL)
}

func decode[T any](raw json.RawMessage, endpoint string) (T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode response from %s: %w", endpoint, err)
	}
	return out, nil
}
