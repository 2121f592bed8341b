// package poll schedules queue refreshes so that views stay current without
// hammering the server.
//
// The cadence adapts to what is on screen: a short interval while any job is
// actively downloading or processing, a relaxed one while everything is
// waiting in the queue, a slow heartbeat when nothing is in flight, and no
// polling at all for views that show finished history. Manual refreshes are
// coalesced through a freshness window so a burst of keypresses costs one
// request.
package poll

import (
	"time"

	"github.com/hermesdl/hermesctl/internal/api"
)

// ViewMode selects the polling rules for the surface being rendered.
type ViewMode int

const (
	// ViewQueue displays live jobs and polls adaptively.
	ViewQueue ViewMode = iota
	// ViewHistory displays finished jobs and never polls.
	ViewHistory
)

func (m ViewMode) String() string {
	switch m {
	case ViewQueue:
		return "queue"
	case ViewHistory:
		return "history"
	default:
		return "unknown"
	}
}

// Delays holds the cadence intervals. Zero values are not meaningful; use
// DefaultDelays and override fields as needed.
type Delays struct {
	Active    time.Duration
	Queued    time.Duration
	Idle      time.Duration
	Freshness time.Duration
}

func DefaultDelays() Delays {
	return Delays{
		Active:    2 * time.Second,
		Queued:    10 * time.Second,
		Idle:      30 * time.Second,
		Freshness: time.Second,
	}
}

// Next returns the wait before the following poll and whether polling should
// happen at all for the given view contents.
func (d Delays) Next(items []api.DownloadStatus, mode ViewMode) (time.Duration, bool) {
	if mode == ViewHistory {
		return 0, false
	}

	queued := false
	for _, item := range items {
		if item.Status.Active() {
			return d.Active, true
		}
		if item.Status == api.StatusQueued {
			queued = true
		}
	}
	if queued {
		return d.Queued, true
	}
	return d.Idle, true
}

// ForStatus returns the wait before re-checking a single job in the given
// state. Terminal jobs report false.
func (d Delays) ForStatus(status api.Status) (time.Duration, bool) {
	switch {
	case status.Terminal():
		return 0, false
	case status.Active():
		return d.Active, true
	default:
		return d.Queued, true
	}
}

// NextDelay applies the default cadence. See [Delays.Next].
func NextDelay(items []api.DownloadStatus, mode ViewMode) (time.Duration, bool) {
	return DefaultDelays().Next(items, mode)
}
