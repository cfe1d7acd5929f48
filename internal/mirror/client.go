package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/observability/metrics"
	"LedgerAgent-Kit/pkg/logger"
)

// Config describes how to reach a mirror node.
type Config struct {
	// Network selects a public mirror node: mainnet, testnet or previewnet.
	Network string
	// BaseURL overrides Network. {API_KEY} is replaced with APIKey.
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client reads ledger state from a mirror node. It is safe for concurrent use.
type Client struct {
	http     *resty.Client
	endpoint endpoint
	policy   RetryPolicy
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithRetryPolicy overrides the process-wide default policy for this client.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.policy = p.normalized()
	}
}

// WithRateLimit paces requests to rps with the given burst. Zero disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithHTTPClient routes requests through hc, e.g. an httptest client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http.SetTransport(hc.Transport)
		}
	}
}

// WithLogger replaces the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a client for cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	base, err := Resolve(cfg.Network, cfg.BaseURL, cfg.APIKey)
	if err != nil {
		return nil, err
	}
	ep, err := parseEndpoint(base)
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
		endpoint: ep,
		policy:   DefaultRetryPolicy(),
		logger:   logger.Named("mirror"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// RetryPolicy returns the policy this client retries with.
func (c *Client) RetryPolicy() RetryPolicy { return c.policy }

// StatusError is a non-2xx mirror node response.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}

func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsNotFound reports whether err is a mirror node 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// getJSON fetches path under the base URL and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.fetchJSON(ctx, c.endpoint.url(path, query), out)
}

func (c *Client) fetchJSON(ctx context.Context, target string, out any) error {
	body, err := c.fetch(ctx, target)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return xerrors.Wrap(xerrors.CodeQueryFailure, err, "解析镜像节点响应失败",
			xerrors.WithRetryable(false), xerrors.WithMetadata("url", target))
	}
	return nil
}

// fetch performs a GET with retries. Non-retryable responses are returned
// after the first attempt; exhausting retries returns the last error.
func (c *Client) fetch(ctx context.Context, target string) ([]byte, error) {
	delay := c.policy.InitialDelay
	var lastErr error
	attempts := c.policy.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "等待镜像节点限流令牌被取消")
			}
		}
		body, err := c.attempt(ctx, target)
		if err == nil {
			metrics.MirrorRequests.WithLabelValues("ok").Inc()
			return body, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, ctxErr, "镜像节点请求被取消", xerrors.WithMetadata("url", target))
		}

		var se *StatusError
		if errors.As(err, &se) && !se.retryable() {
			metrics.MirrorRequests.WithLabelValues("fatal").Inc()
			return nil, xerrors.Wrap(xerrors.CodeQueryFailure, err, "镜像节点返回不可重试的错误",
				xerrors.WithRetryable(false),
				xerrors.WithMetadata("status", strconv.Itoa(se.StatusCode)),
				xerrors.WithMetadata("url", target))
		}
		metrics.MirrorRequests.WithLabelValues("retryable").Inc()
		lastErr = err
		if attempt == attempts {
			break
		}

		c.logger.Warn("镜像节点请求失败，准备重试",
			slog.String("url", target),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
		metrics.MirrorRetries.Inc()
		if err := sleepContext(ctx, delay); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "镜像节点重试等待被取消", xerrors.WithMetadata("url", target))
		}
		delay = c.policy.nextDelay(delay)
	}
	return nil, xerrors.Wrap(xerrors.CodeQueryFailure, lastErr,
		fmt.Sprintf("镜像节点请求在 %d 次尝试后仍失败", attempts),
		xerrors.WithMetadata("url", target))
}

func (c *Client) attempt(ctx context.Context, target string) ([]byte, error) {
	started := time.Now()
	resp, err := c.http.R().SetContext(ctx).Get(target)
	metrics.MirrorRequestDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		return nil, err
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return nil, &StatusError{StatusCode: code, URL: target, Body: truncate(resp.String(), 512)}
	}
	return resp.Body(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
