package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Queue fetches the collection snapshot of download jobs with aggregate
// counts.
func (c *Client) Queue(ctx context.Context, query QueueQuery) (*DownloadQueue, error) {
	var queue DownloadQueue
	if err := c.Get(ctx, apiPrefix+"/queue/"+query.encode(), &queue); err != nil {
		return nil, err
	}
	return &queue, nil
}

// Download fetches the snapshot of a single job.
func (c *Client) Download(ctx context.Context, id string) (*DownloadStatus, error) {
	if id == "" {
		return nil, fmt.Errorf("download id is required")
	}

	var status DownloadStatus
	if err := c.Get(ctx, apiPrefix+"/download/"+url.PathEscape(id), &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// StartDownload submits a new download job.
func (c *Client) StartDownload(ctx context.Context, req DownloadRequest) (*DownloadResponse, error) {
	var resp DownloadResponse
	if err := c.Post(ctx, apiPrefix+"/download/", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelDownload requests cancellation of a job.
func (c *Client) CancelDownload(ctx context.Context, id string) (*CancelResponse, error) {
	if id == "" {
		return nil, fmt.Errorf("download id is required")
	}

	var resp CancelResponse
	if err := c.Post(ctx, apiPrefix+"/download/"+url.PathEscape(id)+"/cancel", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login exchanges a username and password for a token pair. Public endpoint.
func (c *Client) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	payload := map[string]string{"username": username, "password": password}

	var pair TokenPair
	if err := c.Post(ctx, apiPrefix+"/auth/login", payload, &pair, SkipAuth()); err != nil {
		return nil, err
	}

	if err := c.creds.Set(pair.Token()); err != nil {
		return nil, err
	}
	return &pair, nil
}

// ForceRefresh exchanges the stored refresh token immediately instead of
// waiting for a 401.
func (c *Client) ForceRefresh(ctx context.Context) error {
	return c.refresh(ctx)
}

// Health checks server availability. Public endpoint.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var health map[string]any
	if err := c.Request(ctx, http.MethodGet, apiPrefix+"/health/", nil, &health, SkipAuth()); err != nil {
		return nil, err
	}
	return health, nil
}
