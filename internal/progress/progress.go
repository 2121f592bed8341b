// package progress smooths the percentage reported for a download so that
// displayed values never move backwards while a job is running.
//
// Servers report progress from whichever worker last touched a job, so raw
// percentages can regress between polls. The filter keeps a per-job high-water
// mark: queued resets it, running observations ratchet it upward, and terminal
// observations freeze the display at the last mark rather than adopting
// whatever number arrived with the final status.
package progress

import (
	"sync"

	"github.com/hermesdl/hermesctl/internal/api"
)

// Observation is a single polled report for one job.
type Observation struct {
	Status  api.Status
	Percent *float64
}

// Compute applies one observation to a job's high-water mark and returns the
// updated mark alongside the percentage that should be displayed.
func Compute(prevMax float64, obs Observation) (newMax, display float64) {
	if obs.Status == api.StatusQueued {
		return 0, 0
	}
	if !obs.Status.Active() {
		// Terminal or unrecognized: no new information, hold the mark.
		return prevMax, prevMax
	}

	newMax = prevMax
	if obs.Percent != nil {
		if v := clamp(*obs.Percent); v > newMax {
			newMax = v
		}
	}
	return newMax, newMax
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// Tracker holds high-water marks for every job a view is displaying. Safe for
// concurrent use.
type Tracker struct {
	mu     sync.Mutex
	maxima map[string]float64
}

func NewTracker() *Tracker {
	return &Tracker{maxima: make(map[string]float64)}
}

// Observe folds a report into the job's mark and returns the display value.
func (t *Tracker) Observe(jobID string, obs Observation) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	newMax, display := Compute(t.maxima[jobID], obs)
	t.maxima[jobID] = newMax
	return display
}

// Display returns the current display value without folding in a new report.
func (t *Tracker) Display(jobID string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxima[jobID]
}

// Forget drops the mark for a job that is no longer displayed.
func (t *Tracker) Forget(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.maxima, jobID)
}
