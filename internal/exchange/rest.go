package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sugawarayuuta/sonnet"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// RESTClient issues rate-limited public GET requests against one venue.
type RESTClient struct {
	venue      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewRESTClient creates a client. rps <= 0 disables limiting.
func NewRESTClient(venue, baseURL string, rps float64, hc *http.Client) *RESTClient {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &RESTClient{
		venue:      venue,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// GetJSON fetches path with params and decodes the JSON body into out.
func (c *RESTClient) GetJSON(ctx context.Context, path string, params url.Values, out any) error {
	body, err := c.Get(ctx, path, params)
	if err != nil {
		return err
	}
	if err := sonnet.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode %s: %w", c.venue, path, err)
	}
	return nil
}

// Get fetches path with params and returns the raw body.
func (c *RESTClient) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%s: rest url not configured: %w", c.venue, domain.ErrInvalidInput)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limiter: %w", c.venue, err)
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", c.venue, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: http request: %w", c.venue, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", c.venue, err)
	}
	if err := c.checkStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkStatus maps non-2xx HTTP status codes to errors.
func (c *RESTClient) checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %s: %w", c.venue, snippet, domain.ErrNotFound)
	case http.StatusTooManyRequests, http.StatusTeapot:
		return fmt.Errorf("%s: %s: %w", c.venue, snippet, domain.ErrRateLimited)
	default:
		return fmt.Errorf("%s: HTTP %d: %s", c.venue, statusCode, snippet)
	}
}
