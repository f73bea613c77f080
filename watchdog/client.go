package watchdog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// DefaultClientTimeout bounds a single control call, retries included.
const DefaultClientTimeout = 5 * time.Second

// Client sends control operations to a watchdog.
type Client struct {
	Logger     *zap.SugaredLogger
	HTTPClient *http.Client

	baseURL                  string
	timeout                  time.Duration
	retryMax                 int
	waitInterval             time.Duration
	customizeRetryableClient func(*retryablehttp.Client)
}

type ClientOption func(c *Client)

func WithClientTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithClientRetryMax sets how many times a failed call is retried. Zero disables retries.
func WithClientRetryMax(n int) ClientOption {
	return func(c *Client) {
		c.retryMax = n
	}
}

func WithClientWaitInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.waitInterval = d
	}
}

func WithCustomizeRetryableClient(f func(r *retryablehttp.Client)) ClientOption {
	return func(c *Client) {
		c.customizeRetryableClient = f
	}
}

type logAdapter struct {
	*zap.SugaredLogger
}

func (a *logAdapter) Printf(msg string, args ...interface{}) { a.Debugf(msg, args...) }

// NewClient returns a client for the watchdog listening on addr (host:port).
func NewClient(log *zap.SugaredLogger, addr string, opts ...ClientOption) (*Client, error) {
	baseURL := "http://" + addr
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parsing watchdog address: %w", err)
	}

	c := &Client{
		Logger:       log.Named("watchdog_client"),
		baseURL:      baseURL,
		timeout:      DefaultClientTimeout,
		retryMax:     3,
		waitInterval: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = &http.Client{
		// every control call closes its connection
		Transport: &http.Transport{DisableKeepAlives: true},
	}
	retryClient.RetryMax = c.retryMax
	retryClient.RetryWaitMin = 50 * time.Millisecond
	retryClient.RetryWaitMax = 500 * time.Millisecond
	retryClient.Logger = &logAdapter{SugaredLogger: c.Logger}

	if c.customizeRetryableClient != nil {
		c.customizeRetryableClient(retryClient)
	}

	c.HTTPClient = retryClient.StandardClient()
	return c, nil
}

// Do sends op and checks for a 200 response with the operation's fixed body.
func (c *Client) Do(ctx context.Context, op Operation) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+op.Path(), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Close = true

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending %s: %w", op, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return fmt.Errorf("reading %s response: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected %s status code %d", op, resp.StatusCode)
	}
	if string(b) != op.Reply() {
		return fmt.Errorf("unexpected %s response body %q", op, b)
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error          { return c.Do(ctx, OpPing) }
func (c *Client) Shutdown(ctx context.Context) error      { return c.Do(ctx, OpShutdown) }
func (c *Client) Restart(ctx context.Context) error       { return c.Do(ctx, OpRestart) }
func (c *Client) EnableNotify(ctx context.Context) error  { return c.Do(ctx, OpEnableNotify) }
func (c *Client) DisableNotify(ctx context.Context) error { return c.Do(ctx, OpDisableNotify) }

// WaitForServer pings until the watchdog answers or ctx is done.
func (c *Client) WaitForServer(ctx context.Context) error {
	ticker := time.NewTicker(c.waitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			err := c.Ping(ctx)
			if err == nil {
				c.Logger.Debug("ping succeeded, done waiting for server")
				return nil
			}
			c.Logger.Debugf("got ping error: %s", err)
		}
	}
}
