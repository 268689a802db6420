package embedding

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/replybot/backend/internal/domain"
)

// Supported embedding runtimes
const (
	ProviderTEI    = "tei"
	ProviderOpenAI = "openai"
)

const (
	defaultBatchSize = 32
	defaultTimeout   = 30 * time.Second
	maxAttempts      = 3
	maxErrorBody     = 512
)

// Config holds connection settings for the embedding runtime
type Config struct {
	Provider      string
	BaseURL       string
	APIKey        string
	Model         string
	BatchSize     int
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// Client talks to a hosted embedding runtime over HTTP.
// It is safe for concurrent use.
type Client struct {
	httpClient  *http.Client
	config      Config
	rateLimiter *rate.Limiter
	logger      *zap.Logger
	backoff     func(attempt int) time.Duration
}

// NewClient creates a new embedding client
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	switch config.Provider {
	case ProviderTEI, ProviderOpenAI:
	case "":
		config.Provider = ProviderTEI
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", config.Provider)
	}
	if strings.TrimSpace(config.BaseURL) == "" {
		return nil, fmt.Errorf("embedding base url is required")
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	limit := rate.Inf
	if config.RatePerSecond > 0 {
		limit = rate.Limit(config.RatePerSecond)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config:      config,
		rateLimiter: rate.NewLimiter(limit, burst),
		logger:      logger,
		backoff:     linearBackoff,
	}, nil
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.config.Model
}

// Encode returns one vector per text, in input order. Inputs larger than the
// configured batch size are sent in several requests.
func (c *Client) Encode(ctx context.Context, texts []string) ([]domain.Vector, error) {
	if len(texts) == 0 {
		return []domain.Vector{}, nil
	}

	out := make([]domain.Vector, 0, len(texts))
	for start := 0; start < len(texts); start += c.config.BatchSize {
		end := min(start+c.config.BatchSize, len(texts))

		vectors, err := c.encodeBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}

	if err := checkDimensions(out); err != nil {
		return nil, err
	}
	return out, nil
}

// encodeBatch sends one request, retrying transport failures, 429 and 5xx
func (c *Client) encodeBatch(ctx context.Context, texts []string) ([]domain.Vector, error) {
	path, body, err := encodeRequest(c.config.Provider, c.config.Model, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEncodingFailed, err)
	}
	endpoint := c.config.BaseURL + path

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %w", domain.ErrEncodingFailed, err)
		}

		resp, err := c.doRequest(ctx, endpoint, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", domain.ErrEncodingFailed, ctx.Err())
			}
			c.logger.Warn("embedding request failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			lastErr = err
			if err := c.wait(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("%w: read response: %w", domain.ErrEncodingFailed, err)
			if err := c.wait(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			statusErr := fmt.Errorf("%w: status %d: %s",
				domain.ErrEncodingFailed, resp.StatusCode, truncate(respBody, maxErrorBody))
			if !retryable(resp.StatusCode) {
				c.logger.Error("embedding request rejected",
					zap.Int("status", resp.StatusCode),
					zap.Int("batch", len(texts)),
				)
				return nil, statusErr
			}

			c.logger.Warn("embedding runtime error",
				zap.Int("attempt", attempt),
				zap.Int("status", resp.StatusCode),
			)
			lastErr = statusErr
			if err := c.wait(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}

		vectors, err := decodeResponse(c.config.Provider, respBody, len(texts))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrEncodingFailed, err)
		}

		c.logger.Debug("embedding batch encoded",
			zap.Int("batch", len(texts)),
			zap.Int("attempt", attempt),
		)
		return vectors, nil
	}

	c.logger.Error("embedding retries exhausted", zap.Int("batch", len(texts)), zap.Error(lastErr))
	return nil, lastErr
}

// doRequest executes an HTTP POST request with proper headers and error handling
func (c *Client) doRequest(ctx context.Context, endpoint string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", domain.ErrEncodingFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ReplyBot/1.0")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEncodingFailed, err)
	}
	return resp, nil
}

// wait sleeps before the next attempt, returning early when ctx ends
func (c *Client) wait(ctx context.Context, attempt int) error {
	if attempt >= maxAttempts {
		return nil
	}

	timer := time.NewTimer(c.backoff(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", domain.ErrEncodingFailed, ctx.Err())
	case <-timer.C:
		return nil
	}
}

func linearBackoff(attempt int) time.Duration {
	return time.Duration(attempt*500) * time.Millisecond
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
