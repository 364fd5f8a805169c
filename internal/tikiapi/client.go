// Package tikiapi implements the resilient client for the Tiki review
// and product APIs: one shared rate gate, rotating user agents and
// proxies, and jittered retries on throttling and transport failures.
package tikiapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vielabs/tiki-review-crawler/internal/config"
	"github.com/vielabs/tiki-review-crawler/internal/ratelimit"
	"github.com/vielabs/tiki-review-crawler/internal/review"
	"github.com/vielabs/tiki-review-crawler/internal/rotation"
	"github.com/vielabs/tiki-review-crawler/internal/telemetry"
)

var (
	productIDSlug  = regexp.MustCompile(`-p(\d+)(?:\.html|$)`)
	productIDQuery = regexp.MustCompile(`[?&]product_id=(\d+)`)
)

// ParseProductID extracts the numeric product ID from a product page
// URL, trying the slug form first and the query parameter second.
func ParseProductID(rawURL string) (string, error) {
	if rawURL == "" {
		return "", ErrNoProductID
	}
	if m := productIDSlug.FindStringSubmatch(rawURL); m != nil {
		return m[1], nil
	}
	if m := productIDQuery.FindStringSubmatch(rawURL); m != nil {
		return m[1], nil
	}
	return "", ErrNoProductID
}

// ProductInfo is the subset of product metadata the crawler consumes.
type ProductInfo struct {
	Name  string
	Brand string
}

// Client talks to the upstream review API. All requests from every
// caller flow through one Limiter, so process-wide pacing holds no
// matter how many goroutines fetch. Safe for concurrent use.
type Client struct {
	cfg     config.APIConfig
	limiter *ratelimit.Limiter
	agents  *rotation.Rotator
	proxies *rotation.Rotator
	log     *zap.Logger

	mu      sync.Mutex
	clients map[string]*http.Client
}

// New builds a Client from the API configuration.
func New(cfg config.APIConfig, limiter *ratelimit.Limiter, log *zap.Logger) *Client {
	return &Client{
		cfg:     cfg,
		limiter: limiter,
		agents:  rotation.New(cfg.UserAgents),
		proxies: rotation.New(cfg.Proxies),
		log:     log,
		clients: make(map[string]*http.Client),
	}
}

// clientFor returns the cached http.Client for a proxy, building one on
// first use so connection pools persist across rotations.
func (c *Client) clientFor(proxy string) (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hc, ok := c.clients[proxy]; ok {
		return hc, nil
	}

	hc := &http.Client{Timeout: c.cfg.Timeout()}
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %q: %w", proxy, err)
		}
		hc.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}
	c.clients[proxy] = hc
	return hc, nil
}

// get runs one rate-limited, retried GET and decodes the JSON body.
func (c *Client) get(ctx context.Context, path string, params url.Values) (map[string]any, error) {
	target := c.cfg.BaseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			telemetry.ObserveRetry()
			select {
			case <-time.After(c.backoff(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		body, err := c.fetch(ctx, target)
		if err == nil {
			var data map[string]any
			if err := json.Unmarshal(body, &data); err != nil {
				return nil, fmt.Errorf("decode response from %s: %w", target, err)
			}
			return data, nil
		}

		lastErr = err
		if !retryable(err) {
			return nil, err
		}
		c.log.Warn("upstream request failed, retrying",
			zap.String("url", target),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return nil, fmt.Errorf("%w: giving up after %d attempts: %w", ErrFetchFailed, c.cfg.MaxRetries, lastErr)
}

func (c *Client) fetch(ctx context.Context, target string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	hc, err := c.clientFor(c.proxies.Next())
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := c.agents.Next(); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, &StatusError{Code: resp.StatusCode, URL: target}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body from %s: %w", target, err)
	}
	return body, nil
}

// backoff doubles the delay per attempt up to the cap, with up to half
// the delay again as jitter.
func (c *Client) backoff(attempt int) time.Duration {
	delay := float64(c.cfg.BackoffInitial()) * math.Pow(2, float64(attempt-1))
	if ceil := float64(c.cfg.BackoffMax()); delay > ceil {
		delay = ceil
	}
	jitter := rand.Int63n(int64(delay)/2 + 1) //nolint:gosec // jitter, not crypto
	return time.Duration(delay) + time.Duration(jitter)
}

// ReviewsPage fetches one page of reviews for a product, optionally
// filtered to a star level (0 disables the filter).
func (c *Client) ReviewsPage(ctx context.Context, productID string, page, star int) ([]review.ReviewRecord, PageMeta, error) {
	params := url.Values{}
	params.Set("product_id", productID)
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(c.cfg.PageLimit))
	params.Set("sort", c.cfg.Sort)
	if star >= 1 && star <= 5 {
		params.Set(c.cfg.StarParam, strconv.Itoa(star))
	}

	data, err := c.get(ctx, c.cfg.ReviewsEndpoint, params)
	if err != nil {
		return nil, PageMeta{}, err
	}
	return parseReviews(data), parsePageMeta(data, page), nil
}

// ProductInfo fetches product metadata. The brand may arrive as an
// object or a bare string.
func (c *Client) ProductInfo(ctx context.Context, productID string) (ProductInfo, error) {
	data, err := c.get(ctx, fmt.Sprintf(c.cfg.ProductEndpoint, productID), nil)
	if err != nil {
		return ProductInfo{}, err
	}

	info := ProductInfo{Name: asString(data["name"])}
	switch b := data["brand"].(type) {
	case map[string]any:
		info.Brand = asString(b["name"])
	case string:
		info.Brand = b
	}
	return info, nil
}
