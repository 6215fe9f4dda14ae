package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// JSONClient posts JSON to a REST backend, retrying rate limits and
// server errors with exponential backoff.
type JSONClient struct {
	BaseURL    string
	Headers    map[string]string
	MaxRetries int
	HTTP       *http.Client
	// Sleep is swapped out in tests.
	Sleep func(time.Duration)
}

// NewJSONClient returns a client with the given timeout (30s when zero).
func NewJSONClient(baseURL string, timeout time.Duration, maxRetries int, headers map[string]string) *JSONClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &JSONClient{
		BaseURL:    baseURL,
		Headers:    headers,
		MaxRetries: maxRetries,
		HTTP:       &http.Client{Timeout: timeout},
		Sleep:      time.Sleep,
	}
}

// StatusError is returned for non-2xx responses that were not retried away.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

// PostJSON sends body to BaseURL+path and decodes the response into out.
func (c *JSONClient) PostJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	url := c.BaseURL + path
	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range c.Headers {
			req.Header.Set(k, v)
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return err
			}
			if attempt < c.MaxRetries {
				c.Sleep(retryDelay(attempt))
				continue
			}
			return err
		}

		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &StatusError{Status: resp.StatusCode, Body: string(payload)}
			if attempt < c.MaxRetries {
				// Respect Retry-After if provided
				if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
					c.Sleep(time.Duration(secs) * time.Second)
				} else {
					c.Sleep(retryDelay(attempt))
				}
				continue
			}
			return lastErr
		}
		if resp.StatusCode >= 300 {
			return &StatusError{Status: resp.StatusCode, Body: string(payload)}
		}
		if readErr != nil {
			return fmt.Errorf("read response: %w", readErr)
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return lastErr
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
