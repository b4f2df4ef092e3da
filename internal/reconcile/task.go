package reconcile

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Task names.
const (
	TaskDiscovery = "discovery"
	TaskValidate  = "validate"
	TaskClockSync = "clock_sync"
	TaskSchedule  = "schedule_broadcast"
	TaskCleanup   = "cleanup"
	TaskHealth    = "health"
)

// State is where a task is in its cycle.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Result is the outcome of a task's last completed run.
type Result string

const (
	ResultNone    Result = ""
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// TaskStatus is a snapshot of one task.
type TaskStatus struct {
	Name      string    `json:"name"`
	State     State     `json:"state"`
	Result    Result    `json:"result,omitempty"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
}

// tracker holds the status table shared by all loops.
type tracker struct {
	mu    sync.RWMutex
	tasks map[string]*TaskStatus
}

func newTracker(names ...string) *tracker {
	t := &tracker{tasks: make(map[string]*TaskStatus, len(names))}
	for _, n := range names {
		t.tasks[n] = &TaskStatus{Name: n, State: StateIdle}
	}
	return t
}

func (t *tracker) start(name string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.entry(name)
	s.State = StateRunning
	s.LastRun = at
}

func (t *tracker) finish(name string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.entry(name)
	s.State = StateIdle
	s.Runs++
	if err != nil {
		s.Result = ResultFailure
		s.LastError = err.Error()
		s.Failures++
		return
	}
	s.Result = ResultSuccess
	s.LastError = ""
}

func (t *tracker) entry(name string) *TaskStatus {
	s, ok := t.tasks[name]
	if !ok {
		s = &TaskStatus{Name: name, State: StateIdle}
		t.tasks[name] = s
	}
	return s
}

func (t *tracker) get(name string) (TaskStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.tasks[name]
	if !ok {
		return TaskStatus{}, false
	}
	return *s, true
}

func (t *tracker) all() []TaskStatus {
	t.mu.RLock()
	out := make([]TaskStatus, 0, len(t.tasks))
	for _, s := range t.tasks {
		out = append(out, *s)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
