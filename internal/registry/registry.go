// package registry maintains the set of download jobs this machine is
// tracking, shared across every running process.
//
// The set lives in two files under the state directory: tracked.json holds
// the job IDs, last_event.json describes the most recent mutation. Writers
// replace both atomically; other processes pick up the change through a
// filesystem watch on the directory and reload the set. A process recognizes
// its own writes by the event ID and does not re-notify itself.
//
// When the state directory cannot be written the registry degrades to an
// in-memory set for the life of the process rather than failing mutations.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/hermesdl/hermesctl/internal/shared"
)

const (
	trackedFile   = "tracked.json"
	lastEventFile = "last_event.json"
)

// Action describes the kind of mutation an event records.
type Action string

const (
	ActionAdded   Action = "added"
	ActionRemoved Action = "removed"
	ActionCleared Action = "cleared"
)

// Event records one mutation of the tracked set.
type Event struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id,omitempty"`
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// Registry is a process's handle on the shared tracked set.
type Registry struct {
	dir    string
	logger *log.Logger

	mu       sync.Mutex
	jobs     []string
	degraded bool
	own      map[string]struct{}
	subs     map[int]chan Event
	setSubs  map[int]chan []string
	nextSub  int

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// New opens the registry rooted at dir, creating the directory if needed and
// loading whatever set a previous process left behind. A corrupt state file
// is treated as an empty set.
func New(dir string, logger *log.Logger) (*Registry, error) {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	r := &Registry{
		dir:     dir,
		logger:  logger,
		own:     make(map[string]struct{}),
		subs:    make(map[int]chan Event),
		setSubs: make(map[int]chan []string),
		done:    make(chan struct{}),
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	r.jobs = r.loadTracked()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch state directory: %w", err)
	}
	r.watcher = watcher
	go r.watch()

	return r, nil
}

// Close stops the watcher and closes all subscriber channels.
func (r *Registry) Close() error {
	err := r.watcher.Close()
	<-r.done

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ch := range r.subs {
		close(ch)
		delete(r.subs, id)
	}
	for id, ch := range r.setSubs {
		close(ch)
		delete(r.setSubs, id)
	}
	return err
}

// Add inserts a job into the tracked set. Adding a job that is already
// tracked is a no-op.
func (r *Registry) Add(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("%w: empty job id", shared.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.reloadLocked()
	if slices.Contains(r.jobs, jobID) {
		return nil
	}
	// Newest first, so views show the most recent job on top.
	r.jobs = slices.Insert(r.jobs, 0, jobID)
	return r.commitLocked(Event{JobID: jobID, Action: ActionAdded})
}

// Remove deletes a job from the tracked set. Removing an untracked job is a
// no-op.
func (r *Registry) Remove(jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reloadLocked()
	i := slices.Index(r.jobs, jobID)
	if i < 0 {
		return nil
	}
	r.jobs = slices.Delete(r.jobs, i, i+1)
	return r.commitLocked(Event{JobID: jobID, Action: ActionRemoved})
}

// Clear empties the tracked set.
func (r *Registry) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reloadLocked()
	if len(r.jobs) == 0 {
		return nil
	}
	r.jobs = nil
	return r.commitLocked(Event{Action: ActionCleared})
}

// List returns the tracked job IDs, newest first. The state file is
// re-read so the answer reflects writes from sibling processes even if a
// watch notification has not arrived yet.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reloadLocked()
	return slices.Clone(r.jobs)
}

// Contains reports whether a job is tracked.
func (r *Registry) Contains(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reloadLocked()
	return slices.Contains(r.jobs, jobID)
}

// Subscribe registers for the full tracked set after each mutation from any
// process. The returned function cancels the subscription.
func (r *Registry) Subscribe() (<-chan []string, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextSub
	r.nextSub++
	ch := make(chan []string, 8)
	r.setSubs[id] = ch

	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if ch, ok := r.setSubs[id]; ok {
			close(ch)
			delete(r.setSubs, id)
		}
	}
}

// SubscribeEvents registers for individual mutation events from any process.
// The returned function cancels the subscription.
func (r *Registry) SubscribeEvents() (<-chan Event, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextSub
	r.nextSub++
	ch := make(chan Event, 8)
	r.subs[id] = ch

	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if ch, ok := r.subs[id]; ok {
			close(ch)
			delete(r.subs, id)
		}
	}
}

// Degraded reports whether persistence has failed and the set is in-memory
// only.
func (r *Registry) Degraded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.degraded
}

// reloadLocked refreshes the in-memory set from disk. Skipped once the
// registry has degraded to memory-only operation.
func (r *Registry) reloadLocked() {
	if r.degraded {
		return
	}
	r.jobs = r.loadTracked()
}

func (r *Registry) loadTracked() []string {
	data, err := os.ReadFile(filepath.Join(r.dir, trackedFile))
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Debug("failed to read tracked set, starting empty", "error", err)
		}
		return nil
	}

	var jobs []string
	if err := json.Unmarshal(data, &jobs); err != nil {
		r.logger.Debug("tracked set file is corrupt, starting empty", "error", err)
		return nil
	}
	return jobs
}

// commitLocked persists the set and the mutation event, then notifies
// local subscribers. A persistence failure flips the registry into degraded
// in-memory mode; the mutation itself still succeeds.
func (r *Registry) commitLocked(ev Event) error {
	ev.ID = uuid.NewString()
	ev.Timestamp = time.Now().UTC()

	if !r.degraded {
		r.own[ev.ID] = struct{}{}
		if err := r.persistLocked(ev); err != nil {
			delete(r.own, ev.ID)
			r.degraded = true
			r.logger.Warn("state directory not writable, tracked set is now in-memory only", "error", err)
		}
	}

	r.notifyLocked(ev)
	return nil
}

func (r *Registry) persistLocked(ev Event) error {
	jobs := r.jobs
	if jobs == nil {
		jobs = []string{}
	}
	if err := writeJSON(filepath.Join(r.dir, trackedFile), jobs); err != nil {
		return err
	}
	return writeJSON(filepath.Join(r.dir, lastEventFile), ev)
}

func (r *Registry) notifyLocked(ev Event) {
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			r.logger.Debug("dropping registry event for slow subscriber", "action", ev.Action)
		}
	}
	if len(r.setSubs) == 0 {
		return
	}
	jobs := slices.Clone(r.jobs)
	for _, ch := range r.setSubs {
		select {
		case ch <- jobs:
		default:
			r.logger.Debug("dropping registry snapshot for slow subscriber", "action", ev.Action)
		}
	}
}

// watch reloads the set whenever another process rewrites the state files.
func (r *Registry) watch() {
	defer close(r.done)

	for {
		select {
		case fsEvent, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(fsEvent.Name) != lastEventFile {
				continue
			}
			if !fsEvent.Op.Has(fsnotify.Create) && !fsEvent.Op.Has(fsnotify.Write) {
				continue
			}
			r.handleExternalChange()
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("watcher error", "error", err)
		}
	}
}

func (r *Registry) handleExternalChange() {
	ev, err := r.readLastEvent()
	if err != nil {
		r.logger.Debug("failed to read last event", "error", err)
		return
	}

	r.mu.Lock()
	if _, mine := r.own[ev.ID]; mine {
		delete(r.own, ev.ID)
		r.mu.Unlock()
		return
	}
	if !r.degraded {
		r.jobs = r.loadTracked()
	}
	r.notifyLocked(ev)
	r.mu.Unlock()
}

func (r *Registry) readLastEvent() (Event, error) {
	var ev Event
	data, err := os.ReadFile(filepath.Join(r.dir, lastEventFile))
	if err != nil {
		return ev, err
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("failed to decode event: %w", err)
	}
	return ev, nil
}

// writeJSON replaces path atomically so watchers never observe a partial
// file.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
