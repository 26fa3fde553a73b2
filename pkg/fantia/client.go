package fantia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	errs "fantiadl/pkg/errors"
	"fantiadl/pkg/logger"
	"fantiadl/pkg/ratelimit"
	"fantiadl/pkg/retry"
)

// Client is an authenticated Fantia API/page client. All requests go through
// the shared rate limiter so listing fetches, post payloads, and item
// downloads keep a single sequential pace.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	limiter    ratelimit.Limiter
	retryCfg   *retry.Config
	logger     logger.Logger
}

// Options configures a Client
type Options struct {
	SessionID  string
	UserAgent  string
	Timeout    time.Duration
	BaseURL    string
	MaxRetries int
	Limiter    ratelimit.Limiter
}

// NewClient creates a new Fantia client
func NewClient(opts Options, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.BaseURL == "" {
		opts.BaseURL = BaseURL
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.NewTokenBucket(60, time.Minute)
	}

	headers := map[string]string{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
		"Cache-Control":   "no-cache",
	}
	if opts.UserAgent != "" {
		headers["User-Agent"] = opts.UserAgent
	}
	if opts.SessionID != "" {
		headers["Cookie"] = "_session_id=" + opts.SessionID
	}

	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		headers:    headers,
		baseURL:    opts.BaseURL,
		limiter:    opts.Limiter,
		retryCfg: &retry.Config{
			MaxAttempts: opts.MaxRetries,
			Backoff:     retry.DefaultExponentialBackoff(),
			RetryIf:     retry.DefaultRetryIf,
			Logger:      log,
		},
		logger: log,
	}
}

// BaseURL returns the base URL requests are issued against
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// doRequest performs a single HTTP request with the configured headers,
// honoring the rate limiter and the context
func (c *Client) doRequest(ctx context.Context, method, url string, extraHeaders map[string]string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, err, "failed to create request")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	for key, value := range extraHeaders {
		req.Header.Set(key, value)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": method,
		"url":    url,
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   method,
			"url":      url,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Wrap(errs.KindNetwork, err, fmt.Sprintf("network error: %v", err))
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   method,
		"url":      url,
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// get performs a GET with retry on transient failures; the response has
// already passed the status check
func (c *Client) get(ctx context.Context, url string, extraHeaders map[string]string) (*http.Response, error) {
	cfg := *c.retryCfg
	cfg.Context = ctx

	return retry.DoWithResult(func() (*http.Response, error) {
		resp, err := c.doRequest(ctx, http.MethodGet, url, extraHeaders)
		if err != nil {
			return nil, err
		}
		if err := c.checkResponseStatus(resp); err != nil {
			resp.Body.Close()
			return nil, err
		}
		return resp, nil
	}, &cfg)
}

// GetJSON performs a GET request and decodes the JSON response
func (c *Client) GetJSON(ctx context.Context, url string, extraHeaders map[string]string, target interface{}) error {
	resp, err := c.get(ctx, url, extraHeaders)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Wrap(errs.KindNetwork, err, "failed to read response body").WithCode(resp.StatusCode)
	}

	if err := json.Unmarshal(body, target); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          url,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return errs.Wrap(errs.KindParsing, err, "failed to parse JSON").WithCode(resp.StatusCode)
	}

	return nil
}

// GetDocument performs a GET request and parses the HTML response
func (c *Client) GetDocument(ctx context.Context, url string) (*goquery.Document, error) {
	resp, err := c.get(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.KindParsing, err, "failed to parse HTML").WithCode(resp.StatusCode)
	}

	return doc, nil
}

// Download opens a streaming download of url. The caller owns the returned
// body and must close it.
func (c *Client) Download(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	resp, err := c.get(ctx, url, map[string]string{"Accept": "*/*"})
	if err != nil {
		return nil, 0, err
	}
	return resp.Body, resp.ContentLength, nil
}

// FetchCSRFToken scrapes the CSRF token from a post's HTML page. The post
// detail API rejects requests without it.
func (c *Client) FetchCSRFToken(ctx context.Context, postID string) (string, error) {
	doc, err := c.GetDocument(ctx, PostPageURL(c.baseURL, postID))
	if err != nil {
		return "", err
	}

	token, ok := doc.Find(`meta[name="csrf-token"]`).Attr("content")
	if !ok || token == "" {
		return "", errs.Newf(errs.KindParsing, "no csrf-token meta tag on post page %s", postID)
	}
	return token, nil
}

// FetchPost fetches a post's detail payload
func (c *Client) FetchPost(ctx context.Context, postID string) (*Post, error) {
	token, err := c.FetchCSRFToken(ctx, postID)
	if err != nil {
		return nil, err
	}

	var response PostResponse
	headers := map[string]string{
		"X-CSRF-Token":     token,
		"X-Requested-With": "XMLHttpRequest",
	}
	if err := c.GetJSON(ctx, PostAPIURL(c.baseURL, postID), headers, &response); err != nil {
		return nil, err
	}

	return &response.Post, nil
}

// checkResponseStatus maps HTTP status codes onto classified errors
func (c *Client) checkResponseStatus(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		c.logger.WarnWithFields("authentication error", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    resp.Request.URL.String(),
		})
		return errs.New(errs.KindAuth, "authentication required or session expired").WithCode(resp.StatusCode)
	case http.StatusNotFound, http.StatusGone:
		c.logger.WarnWithFields("resource gone", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    resp.Request.URL.String(),
		})
		return errs.New(errs.KindPostGone, "resource deleted or inaccessible").WithCode(resp.StatusCode)
	case http.StatusTooManyRequests:
		c.logger.WarnWithFields("rate limit exceeded", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    resp.Request.URL.String(),
		})
		return errs.New(errs.KindRateLimit, "rate limit exceeded").WithCode(resp.StatusCode)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		c.logger.ErrorWithFields("server error", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    resp.Request.URL.String(),
		})
		return errs.New(errs.KindServerError, "server error").WithCode(resp.StatusCode)
	default:
		if resp.StatusCode >= 400 {
			c.logger.ErrorWithFields("unexpected API error", map[string]interface{}{
				"status": resp.StatusCode,
				"url":    resp.Request.URL.String(),
			})
			return errs.Newf(errs.KindUnknown, "unexpected status code: %d", resp.StatusCode).WithCode(resp.StatusCode)
		}
		return nil
	}
}
