package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hermesdl/hermesctl/internal/auth"
	"github.com/hermesdl/hermesctl/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "http://localhost:8000"
	apiPrefix      = "/api/v1"
)

// Client is the authenticated request pipeline for the hermes API.
//
// Per call the flow is: attach bearer credential, send, and on a 401 refresh
// the token pair once and retry the original call once. Concurrent 401s
// collapse into a single refresh via [singleflight.Group]. A failed refresh
// or retried 401 clears the stored credentials and fires the session-expired
// hook.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      *auth.Store
	limiter    *rate.Limiter
	refreshing singleflight.Group
	onExpired  func()
	logger     *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRateLimit bounds outbound requests to n per second.
func WithRateLimit(n float64) Option {
	return func(c *Client) {
		if n > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(n), 1)
		}
	}
}

// WithSessionExpiredHook registers a callback fired once per terminal
// authentication failure, after credentials have been cleared. The consumer
// layer uses it to steer the user back to login.
func WithSessionExpiredHook(fn func()) Option {
	return func(c *Client) {
		c.onExpired = fn
	}
}

// NewClient creates an API client against baseURL backed by the given
// credential store.
func NewClient(baseURL string, creds *auth.Store, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		creds:      creds,
		logger:     shared.NewLogger(nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type requestOptions struct {
	skipAuth bool
}

// RequestOption modifies a single call.
type RequestOption func(*requestOptions)

// SkipAuth omits the bearer credential, for public endpoints.
func SkipAuth() RequestOption {
	return func(o *requestOptions) {
		o.skipAuth = true
	}
}

// Request performs one call against the API. A non-nil body is sent as JSON;
// a non-nil out receives the decoded 2xx response body. All failures are a
// [*Error] in the returned chain.
func (c *Client) Request(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	options := requestOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = data
	}

	status, respBody, header, err := c.send(ctx, method, path, payload, options.skipAuth)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && !options.skipAuth {
		if err := c.refresh(ctx); err != nil {
			return c.expireSession(err)
		}

		status, respBody, header, err = c.send(ctx, method, path, payload, false)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return c.expireSession(classify(status, respBody, header))
		}
	}

	if status < 200 || status >= 300 {
		return classify(status, respBody, header)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// Get is shorthand for an authenticated GET.
func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Request(ctx, http.MethodGet, path, nil, out, opts...)
}

// Post is shorthand for an authenticated POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Request(ctx, http.MethodPost, path, body, out, opts...)
}

// send performs one HTTP round trip. Network-level failures come back as a
// typed error; HTTP-level failures are left to the caller to classify so the
// 401 path can intervene.
func (c *Client) send(ctx context.Context, method, path string, payload []byte, skipAuth bool) (int, []byte, http.Header, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, nil, networkError(err)
		}
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !skipAuth && c.creds != nil {
		if access, ok := c.creds.AccessToken(); ok {
			req.Header.Set("Authorization", "Bearer "+access)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, networkError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, networkError(err)
	}

	return resp.StatusCode, respBody, resp.Header, nil
}

// refresh exchanges the refresh token for a new pair. Concurrent callers
// share one exchange.
func (c *Client) refresh(ctx context.Context) error {
	_, err, _ := c.refreshing.Do("refresh", func() (any, error) {
		return nil, c.doRefresh(ctx)
	})
	return err
}

func (c *Client) doRefresh(ctx context.Context) error {
	if c.creds == nil {
		return shared.ErrNotAuthenticated
	}

	refreshToken, err := c.creds.RefreshToken()
	if err != nil {
		return err
	}

	c.logger.Debug("access token rejected, refreshing")

	var pair TokenPair
	payload := map[string]string{"refresh_token": refreshToken}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal refresh request: %w", err)
	}

	status, respBody, header, err := c.send(ctx, http.MethodPost, apiPrefix+"/auth/refresh", data, true)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: %v", shared.ErrRefreshFailed, classify(status, respBody, header))
	}
	if err := json.Unmarshal(respBody, &pair); err != nil {
		return fmt.Errorf("%w: failed to decode token pair: %v", shared.ErrRefreshFailed, err)
	}

	return c.creds.Set(pair.Token())
}

// expireSession clears credentials, fires the hook, and wraps cause as a
// terminal authentication error.
func (c *Client) expireSession(cause error) error {
	if c.creds != nil {
		if err := c.creds.Clear(); err != nil {
			c.logger.Warn("failed to clear credentials", "error", err)
		}
	}
	if c.onExpired != nil {
		c.onExpired()
	}

	c.logger.Debug("session expired", "cause", cause)
	return &Error{
		Kind:    KindAuthentication,
		Status:  http.StatusUnauthorized,
		Message: shared.ErrSessionExpired.Error(),
		cause:   cause,
	}
}

// Token converts the wire pair into the stored credential shape.
func (p TokenPair) Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
	}
	if p.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(p.ExpiresIn) * time.Second)
	}
	return token
}
