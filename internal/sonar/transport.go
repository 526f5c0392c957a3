// Package sonar implements the HTTP clients sonarboard talks to: Client for
// the dashboard backend (/api/medidas, /api/historico, ...) and Upstream for
// the SonarQube Web API behind it. All methods are context-aware and respect
// a shared rate limiter.
package sonar

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const userAgent = "sonarboard/1.0"

// HTTPError is returned for any non-2xx response.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "…"
	}
	if body == "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, body)
}

// Temporary reports whether the request may succeed if retried.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// response is a fully read HTTP response.
type response struct {
	Status int
	Header http.Header
	Body   []byte
}

// transport is the rate-limited GET loop shared by Client and Upstream.
type transport struct {
	name       string
	httpClient *http.Client
	limiter    *rate.Limiter
	attempts   int
	token      string
}

func newTransport(name string, timeout time.Duration, ratePerSec float64, attempts int) *transport {
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	if attempts < 1 {
		attempts = 1
	}
	return &transport{
		name:       name,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), burst),
		attempts:   attempts,
	}
}

// get performs a GET request, retrying on 429 and 5xx with exponential
// backoff while attempts remain. Non-2xx responses become *HTTPError.
func (t *transport) get(ctx context.Context, reqURL, accept string) (*response, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	slog.Debug(t.name+" request", "url", reqURL)

	var lastErr error
	for attempt := 0; attempt < t.attempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))*500) * time.Millisecond
			slog.Debug("retrying after backoff", "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Accept", accept)
		req.Header.Set("User-Agent", userAgent)
		if t.token != "" {
			req.SetBasicAuth(t.token, "")
		}

		resp, err := t.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading body: %w", err)
			continue
		}
		slog.Debug(t.name+" response", "status", resp.StatusCode, "bytes", len(body))

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			herr := &HTTPError{
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Body:       strings.TrimSpace(string(body)),
			}
			if herr.Temporary() {
				lastErr = herr
				continue
			}
			return nil, herr
		}
		return &response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
	}
	if t.attempts == 1 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("after %d attempts: %w", t.attempts, lastErr)
}
