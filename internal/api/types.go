package api

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// Status represents the lifecycle state of a server-side download job.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// NormalizeStatus maps wire-level aliases onto the canonical Status values.
// The server reports newly created jobs as "pending".
// Unrecognized values pass through untouched so consumers can decide how to
// treat them.
func NormalizeStatus(raw string) Status {
	switch raw {
	case "pending":
		return StatusQueued
	default:
		return Status(raw)
	}
}

// UnmarshalJSON normalizes status aliases during decoding.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode status: %w", err)
	}
	*s = NormalizeStatus(raw)
	return nil
}

// Active reports whether the job is in a phase that makes forward progress.
func (s Status) Active() bool {
	return s == StatusDownloading || s == StatusProcessing
}

// Terminal reports whether no future update is possible for the job.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// DownloadProgress carries progress measurements for an in-flight job.
// Fields are pointers: the server omits anything it cannot measure yet.
type DownloadProgress struct {
	Percentage      *float64 `json:"percentage"`
	DownloadedBytes *int64   `json:"downloaded_bytes,omitempty"`
	TotalBytes      *int64   `json:"total_bytes,omitempty"`
	Speed           *float64 `json:"speed,omitempty"`
	Eta             *float64 `json:"eta,omitempty"`
}

// DownloadResult contains final video information once a job completes.
type DownloadResult struct {
	URL      string   `json:"url,omitempty"`
	Title    string   `json:"title,omitempty"`
	FileSize *int64   `json:"file_size,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
}

// DownloadStatus is the server's snapshot of a single job. It is replaced
// wholesale on each fetch, never partially mutated.
type DownloadStatus struct {
	DownloadID      string            `json:"download_id"`
	Status          Status            `json:"status"`
	Progress        *DownloadProgress `json:"progress,omitempty"`
	CurrentFilename string            `json:"current_filename,omitempty"`
	Message         string            `json:"message,omitempty"`
	Error           string            `json:"error,omitempty"`
	Result          *DownloadResult   `json:"result,omitempty"`
}

// Percent returns the reported progress percentage, or nil when the server
// supplied no figure for this snapshot.
func (d DownloadStatus) Percent() *float64 {
	if d.Progress == nil {
		return nil
	}
	return d.Progress.Percentage
}

// Title returns the best human-readable label available for the job.
func (d DownloadStatus) Title() string {
	if d.Result != nil && d.Result.Title != "" {
		return d.Result.Title
	}
	if d.CurrentFilename != "" {
		return d.CurrentFilename
	}
	return d.DownloadID
}

// DownloadQueue is the collection snapshot returned by the queue endpoint.
type DownloadQueue struct {
	TotalItems int              `json:"total_items"`
	Pending    int              `json:"pending"`
	Active     int              `json:"active"`
	Completed  int              `json:"completed"`
	Failed     int              `json:"failed"`
	Items      []DownloadStatus `json:"items"`
}

// DownloadRequest starts a new download job on the server.
type DownloadRequest struct {
	URL               string `json:"url"`
	Format            string `json:"format,omitempty"`
	DownloadSubtitles bool   `json:"download_subtitles,omitempty"`
	DownloadThumbnail bool   `json:"download_thumbnail,omitempty"`
	OutputDirectory   string `json:"output_directory,omitempty"`
}

// DownloadResponse acknowledges a started job.
type DownloadResponse struct {
	DownloadID string `json:"download_id"`
	Status     Status `json:"status"`
	Message    string `json:"message"`
}

// CancelResponse acknowledges a cancellation request.
type CancelResponse struct {
	DownloadID string `json:"download_id"`
	Cancelled  bool   `json:"cancelled"`
	Message    string `json:"message"`
}

// TokenPair is the credential payload returned by the login and refresh
// endpoints.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// QueueQuery filters the queue endpoint.
type QueueQuery struct {
	Status string
	Limit  int
	Offset int
}

func (q QueueQuery) encode() string {
	values := url.Values{}
	if q.Status != "" {
		values.Set("status", q.Status)
	}
	if q.Limit > 0 {
		values.Set("limit", fmt.Sprintf("%d", q.Limit))
	}
	if q.Offset > 0 {
		values.Set("offset", fmt.Sprintf("%d", q.Offset))
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}
