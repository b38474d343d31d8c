package hfapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vler0ux/modetrend/pkg/types"
)

// DefaultEndpoint is the hosted clothing segmentation model
const DefaultEndpoint = "https://api-inference.huggingface.co/models/mattmdjaga/segformer_b3_clothes"

// DefaultRequestTimeout bounds a single HTTP attempt
const DefaultRequestTimeout = 60 * time.Second

// DefaultRetryConfig returns the retry behaviour used by NewClient
func DefaultRetryConfig() types.RetryConfig {
	return types.RetryConfig{
		MaxAttempts:          3,
		DelaySeconds:         5,
		WarmupBufferSeconds:  2,
		MaxWarmupWaitSeconds: 120,
	}
}

// Client submits encoded images to a hosted segmentation endpoint and
// retries transient failures up to a configured bound
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	retry      types.RetryConfig
	logger     *zap.Logger

	// sleep is swapped out in tests so retry timing can be observed
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client with default retry behaviour and timeout.
// An empty endpoint selects DefaultEndpoint.
func NewClient(endpoint, token string, logger *zap.Logger) *Client {
	return NewClientWithConfig(endpoint, token, DefaultRetryConfig(), DefaultRequestTimeout, logger)
}

// NewClientWithConfig creates a client with custom retry behaviour and
// per-attempt timeout. Non-positive retry values fall back to defaults.
func NewClientWithConfig(endpoint, token string, retry types.RetryConfig, timeout time.Duration, logger *zap.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	defaults := DefaultRetryConfig()
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = defaults.MaxAttempts
	}
	if retry.DelaySeconds <= 0 {
		retry.DelaySeconds = defaults.DelaySeconds
	}
	if retry.WarmupBufferSeconds <= 0 {
		retry.WarmupBufferSeconds = defaults.WarmupBufferSeconds
	}
	if retry.MaxWarmupWaitSeconds <= 0 {
		retry.MaxWarmupWaitSeconds = defaults.MaxWarmupWaitSeconds
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint: endpoint,
		token:    token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retry:  retry,
		logger: logger.Named("hfapi"),
		sleep:  sleepContext,
	}
}

// Segment sends the encoded image to the endpoint and returns the parsed
// segment list. Transient conditions (warm-up, rate limit, timeout, other
// failures) are retried up to MaxAttempts; authentication failures are not.
func (c *Client) Segment(ctx context.Context, imageBytes []byte) (*types.Result, error) {
	delay := time.Duration(c.retry.DelaySeconds) * time.Second

	var lastStatus int
	var lastBody string
	var lastErr error

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		c.logger.Debug("sending segmentation request",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.retry.MaxAttempts),
			zap.Int("payload_bytes", len(imageBytes)))

		status, body, err := c.post(ctx, imageBytes)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if isTimeout(err) {
				c.logger.Warn("request timed out", zap.Int("attempt", attempt))
				lastErr = err
				if attempt < c.retry.MaxAttempts {
					if werr := c.sleep(ctx, delay); werr != nil {
						return nil, werr
					}
					continue
				}
				return nil, &RetriesExhaustedError{Attempts: attempt, Err: err}
			}
			c.logger.Warn("connection error", zap.Int("attempt", attempt), zap.Error(err))
			lastErr = err
			if attempt < c.retry.MaxAttempts {
				if werr := c.sleep(ctx, delay); werr != nil {
					return nil, werr
				}
				continue
			}
			// No HTTP response was ever received: surface the network
			// error itself rather than wrapping it
			return nil, err
		}

		lastStatus = status
		lastBody = truncate(string(body), 1024)
		lastErr = nil

		switch status {
		case http.StatusOK:
			result, perr := parseResult(body)
			if perr != nil {
				return nil, perr
			}
			c.logger.Info("segmentation succeeded",
				zap.Int("attempt", attempt),
				zap.Int("segments", len(result.Segments)))
			return result, nil

		case http.StatusServiceUnavailable:
			wait := c.warmupWait(body)
			c.logger.Info("model is warming up",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait))
			if attempt < c.retry.MaxAttempts {
				if werr := c.sleep(ctx, wait); werr != nil {
					return nil, werr
				}
			}

		case http.StatusTooManyRequests:
			c.logger.Warn("rate limited", zap.Int("attempt", attempt))
			if attempt < c.retry.MaxAttempts {
				if werr := c.sleep(ctx, delay); werr != nil {
					return nil, werr
				}
			}

		case http.StatusUnauthorized:
			return nil, &AuthError{Body: lastBody}

		default:
			c.logger.Warn("unexpected status",
				zap.Int("attempt", attempt),
				zap.Int("status", status),
				zap.String("body", lastBody))
			if attempt < c.retry.MaxAttempts {
				if werr := c.sleep(ctx, delay); werr != nil {
					return nil, werr
				}
			}
		}
	}

	if lastErr != nil {
		return nil, &RetriesExhaustedError{Attempts: c.retry.MaxAttempts, Err: lastErr}
	}
	return nil, &RetriesExhaustedError{
		Attempts:   c.retry.MaxAttempts,
		LastStatus: lastStatus,
		LastBody:   lastBody,
	}
}

// post issues a single attempt and returns the status and full body
func (c *Client) post(ctx context.Context, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// warmupWait derives the sleep for a 503 warm-up response. A server-reported
// estimate is clamped to MaxWarmupWaitSeconds before the fixed buffer is
// added; an absent or unparsable estimate falls back to the retry delay.
func (c *Client) warmupWait(body []byte) time.Duration {
	var parsed struct {
		EstimatedTime float64 `json:"estimated_time"`
	}
	seconds := float64(c.retry.DelaySeconds)
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.EstimatedTime > 0 {
		seconds = parsed.EstimatedTime
	}
	if ceiling := float64(c.retry.MaxWarmupWaitSeconds); seconds > ceiling {
		seconds = ceiling
	}
	wait := time.Duration(seconds * float64(time.Second))
	return wait + time.Duration(c.retry.WarmupBufferSeconds)*time.Second
}

func parseResult(body []byte) (*types.Result, error) {
	var segments []types.Segment
	if err := json.Unmarshal(body, &segments); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &types.Result{
		Segments: segments,
		Raw:      json.RawMessage(body),
	}, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
