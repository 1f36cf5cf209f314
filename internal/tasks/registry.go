package tasks

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/patent-harvester/internal/schema"
)

// Registry owns all live extraction tasks. It is created at service
// start and passed by reference to whoever needs it; there is no
// ambient global task table. All task state lives behind one lock per
// registry, so every snapshot is a consistent view of the progress map
// and counters.
type Registry struct {
	mu        sync.Mutex
	tasks     map[string]*Task
	retention time.Duration
	now       func() time.Time
}

// NewRegistry creates an empty registry. Tasks are evicted once they
// are older than retention, on the next Sweep.
func NewRegistry(retention time.Duration) *Registry {
	return &Registry{
		tasks:     make(map[string]*Task),
		retention: retention,
		now:       time.Now,
	}
}

// Create registers a new task for the dataset and returns its id.
func (r *Registry) Create(dataset *schema.Dataset) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := &Task{
		ID:        uuid.NewString(),
		Dataset:   dataset,
		CreatedAt: r.now(),
		state:     StateInitializing,
		fragments: make(map[string]FragmentStatus),
	}
	r.tasks[t.ID] = t
	return t.ID
}

// Sweep deletes tasks older than the retention window, returning how
// many were evicted. It runs opportunistically on each new extraction
// request.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.retention)
	evicted := 0
	for id, t := range r.tasks {
		if t.CreatedAt.Before(cutoff) {
			delete(r.tasks, id)
			evicted++
		}
	}
	return evicted
}

// Snapshot returns the task's current progress, or false if the id is
// unknown or already reclaimed.
func (r *Registry) Snapshot(id string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return Snapshot{}, false
	}
	return t.snapshot(), true
}

// Result returns the finalized CSV. ok is false for unknown ids; ready
// is false while the task has not completed with a stored result.
func (r *Registry) Result(id string) (csv string, ready, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, okTask := r.tasks[id]
	if !okTask {
		return "", false, false
	}
	if t.state != StateCompleted || !t.hasResult {
		return "", false, true
	}
	return t.result, true, true
}

// SetState moves the task to a new lifecycle state. Terminal states are
// sticky: a completed or failed task never transitions again.
func (r *Registry) SetState(id string, state State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || t.state == StateCompleted || t.state == StateError {
		return
	}
	t.state = state
}

// Fail moves the task to the error state with the failure message.
func (r *Registry) Fail(id, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || t.state == StateCompleted || t.state == StateError {
		return
	}
	t.state = StateError
	t.failure = msg
}

// Complete stores the final CSV and moves the task to completed.
func (r *Registry) Complete(id, csv string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || t.state == StateCompleted || t.state == StateError {
		return
	}
	t.state = StateCompleted
	t.result = csv
	t.hasResult = true
}

// RegisterFragment adds a fragment in pending state.
func (r *Registry) RegisterFragment(id, fragmentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return
	}
	if _, exists := t.fragments[fragmentID]; exists {
		return
	}
	t.fragments[fragmentID] = FragmentPending
	t.counters.TablesFound++
}

// MarkFragment advances a fragment's status. Regressions and
// transitions out of a terminal status are ignored, keeping the
// sequence pending -> processing -> one terminal value.
func (r *Registry) MarkFragment(id, fragmentID string, status FragmentStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return
	}
	current, exists := t.fragments[fragmentID]
	if !exists || current.terminal() {
		return
	}
	if status == FragmentPending || (status == FragmentProcessing && current != FragmentPending) {
		return
	}
	t.fragments[fragmentID] = status
}

// AddError appends one entry to the task's error log.
func (r *Registry) AddError(id, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tasks[id]; ok {
		t.errors = append(t.errors, msg)
	}
}

// SetFilesFound records how many documents matched the query.
func (r *Registry) SetFilesFound(id string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tasks[id]; ok {
		t.counters.FilesFound = n
	}
}

// IncFilesProcessed bumps the processed-documents counter.
func (r *Registry) IncFilesProcessed(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tasks[id]; ok {
		t.counters.FilesProcessed++
	}
}
