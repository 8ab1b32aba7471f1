package evaluator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/ternarybob/arbor"

	"github.com/NickHafner/scraper/internal/common"
	"github.com/NickHafner/scraper/internal/models"
)

const (
	// DefaultTimeout for page fetches
	DefaultTimeout = 30 * time.Second
	// DefaultRateLimit in requests per second across all workers
	DefaultRateLimit = 4
	// DefaultMaxBodySize caps response bodies at 10MB
	DefaultMaxBodySize = 10 * 1024 * 1024
)

// Fetcher retrieves pages over HTTP with a shared rate limit. One
// instance is shared by both worker pools so the combined crawl traffic
// honors a single budget.
type Fetcher struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	maxBody    int64
	logger     arbor.ILogger
}

// FetcherOption configures the Fetcher
type FetcherOption func(*Fetcher)

// WithHTTPClient substitutes the underlying HTTP client, used by tests
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.httpClient = client
	}
}

// WithRateLimit sets a custom requests-per-second budget
func WithRateLimit(requestsPerSecond int) FetcherOption {
	return func(f *Fetcher) {
		f.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewFetcher creates a Fetcher from configuration
func NewFetcher(cfg common.FetchConfig, logger arbor.ILogger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{
			Timeout: common.Duration(cfg.Timeout, DefaultTimeout),
		},
		limiter:   rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		userAgent: cfg.UserAgent,
		maxBody:   cfg.MaxBodySize,
		logger:    logger,
	}
	if cfg.RequestsPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestsPerSecond)
	}
	if f.maxBody <= 0 {
		f.maxBody = DefaultMaxBodySize
	}
	if f.userAgent == "" {
		f.userAgent = "scraper/" + common.Version
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves one page and returns its body as a string. Network
// failures and retryable upstream statuses come back as transient fetch
// errors; other statuses as extraction errors.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", models.NewTransientFetchError(fmt.Errorf("rate limit wait: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", models.NewValidationError(fmt.Errorf("invalid url %s: %w", pageURL, err))
	}
	req.Header.Set("User-Agent", f.userAgent)

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", models.NewTransientFetchError(fmt.Errorf("fetch %s: %w", pageURL, err))
	}
	defer resp.Body.Close()

	if retryableStatus(resp.StatusCode) {
		return "", models.NewTransientFetchError(fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", models.NewExtractionError(fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return "", models.NewTransientFetchError(fmt.Errorf("read body of %s: %w", pageURL, err))
	}
	if int64(len(body)) > f.maxBody {
		return "", models.NewExtractionError(fmt.Errorf("body of %s exceeds %d bytes", pageURL, f.maxBody))
	}

	f.logger.Debug().
		Str("url", pageURL).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Str("elapsed", time.Since(start).String()).
		Msg("Fetched page")

	return string(body), nil
}

// retryableStatus reports whether an HTTP status warrants redelivery
func retryableStatus(code int) bool {
	switch {
	case code >= 500:
		return true
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return true
	default:
		return false
	}
}
