package poll

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hermesdl/hermesctl/internal/api"
	"github.com/hermesdl/hermesctl/internal/shared"
)

// FetchFunc retrieves the current queue contents.
type FetchFunc func(ctx context.Context) ([]api.DownloadStatus, error)

// StatusFunc retrieves the current state of one job.
type StatusFunc func(ctx context.Context, id string) (*api.DownloadStatus, error)

// Snapshot is one delivered poll result.
type Snapshot struct {
	Items []api.DownloadStatus
	Err   error
	At    time.Time
}

// Controller drives the queue poll loop for a view. Results are delivered on
// the Snapshots channel; a fetch that completes after the controller is
// stopped is discarded rather than delivered stale.
type Controller struct {
	fetch  FetchFunc
	delays Delays
	logger *log.Logger

	mu        sync.Mutex
	mode      ViewMode
	lastFetch time.Time

	kick      chan struct{}
	snapshots chan Snapshot
	cancel    context.CancelFunc
	done      chan struct{}
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

func WithDelays(d Delays) ControllerOption {
	return func(c *Controller) {
		c.delays = d
	}
}

func WithMode(m ViewMode) ControllerOption {
	return func(c *Controller) {
		c.mode = m
	}
}

func WithControllerLogger(l *log.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = l
	}
}

func NewController(fetch FetchFunc, opts ...ControllerOption) *Controller {
	c := &Controller{
		fetch:     fetch,
		delays:    DefaultDelays(),
		logger:    shared.NewLogger(nil),
		mode:      ViewQueue,
		kick:      make(chan struct{}, 1),
		snapshots: make(chan Snapshot, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshots returns the channel poll results are delivered on.
func (c *Controller) Snapshots() <-chan Snapshot {
	return c.snapshots
}

// Start launches the poll loop. It returns immediately; call Stop to end the
// loop and wait for it to exit.
func (c *Controller) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
}

// Stop cancels the loop and blocks until it has exited.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	<-c.done
}

// Refresh requests an immediate poll. Requests inside the freshness window of
// the previous fetch are dropped so repeated triggers coalesce into one.
func (c *Controller) Refresh() {
	c.mu.Lock()
	fresh := time.Since(c.lastFetch) < c.delays.Freshness
	c.mu.Unlock()
	if fresh {
		return
	}
	c.wake()
}

// SetMode switches the polling rules, waking the loop so the change applies
// without waiting out the current interval.
func (c *Controller) SetMode(mode ViewMode) {
	c.mu.Lock()
	changed := c.mode != mode
	c.mode = mode
	c.mu.Unlock()
	if changed {
		c.wake()
	}
}

func (c *Controller) wake() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.done)

	lastDelay := c.delays.Idle
	for {
		c.mu.Lock()
		mode := c.mode
		c.mu.Unlock()

		if mode == ViewHistory {
			// Nothing to poll; park until woken or cancelled.
			select {
			case <-c.kick:
				continue
			case <-ctx.Done():
				return
			}
		}

		items, err := c.fetch(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.logger.Debug("queue poll failed", "error", err)
		}

		c.mu.Lock()
		c.lastFetch = time.Now()
		mode = c.mode
		c.mu.Unlock()

		snap := Snapshot{Items: items, Err: err, At: time.Now()}
		select {
		case c.snapshots <- snap:
		case <-ctx.Done():
			return
		}

		delay := lastDelay
		if err == nil {
			// A failed fetch keeps the previous cadence rather than
			// reclassifying an empty result as idle.
			var ok bool
			delay, ok = c.delays.Next(items, mode)
			if !ok {
				continue
			}
			lastDelay = delay
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-c.kick:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// maxConsecutiveFailures bounds how many retryable errors a job poller
// tolerates before giving up.
const maxConsecutiveFailures = 3

// JobPoller follows a single job until it reaches a terminal status.
type JobPoller struct {
	id     string
	fetch  StatusFunc
	delays Delays
	logger *log.Logger
}

// JobPollerOption configures a JobPoller.
type JobPollerOption func(*JobPoller)

func WithJobDelays(d Delays) JobPollerOption {
	return func(p *JobPoller) {
		p.delays = d
	}
}

func WithJobLogger(l *log.Logger) JobPollerOption {
	return func(p *JobPoller) {
		p.logger = l
	}
}

func NewJobPoller(id string, fetch StatusFunc, opts ...JobPollerOption) *JobPoller {
	p := &JobPoller{
		id:     id,
		fetch:  fetch,
		delays: DefaultDelays(),
		logger: shared.NewLogger(nil),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls the job until it finishes, invoking onUpdate for every report.
// Transient failures are retried a few times; authentication and validation
// failures end the follow immediately.
func (p *JobPoller) Run(ctx context.Context, onUpdate func(*api.DownloadStatus)) (*api.DownloadStatus, error) {
	failures := 0
	for {
		status, err := p.fetch(ctx, p.id)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			failures++
			if !api.IsRetryable(err) || failures >= maxConsecutiveFailures {
				return nil, err
			}
			p.logger.Debug("job poll failed, retrying", "id", p.id, "attempt", failures, "error", err)
			if !sleep(ctx, p.delays.Queued) {
				return nil, ctx.Err()
			}
			continue
		}
		failures = 0

		if onUpdate != nil {
			onUpdate(status)
		}
		delay, again := p.delays.ForStatus(status.Status)
		if !again {
			return status, nil
		}
		if !sleep(ctx, delay) {
			return nil, ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
