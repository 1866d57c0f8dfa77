package eventloop

import (
	"context"
	"sync"
	"time"
)

// Completion is the outcome of a host task that ran off the JS goroutine.
// The loop passes it back to the runner unchanged.
type Completion struct {
	Value any
	Err   error
}

// PendingTask is an in-flight host task whose result will be settled on
// the JS goroutine when it arrives.
type PendingTask struct {
	ResultCh <-chan Completion
	ID       int
}

// Runner executes loop work on the JS goroutine.
type Runner interface {
	// FireTimer invokes the callback registered for timer id.
	FireTimer(id int)
	// Settle resolves or rejects the promise of task id.
	Settle(id int, c Completion)
	// RunMicrotasks drains the promise job queue.
	RunMicrotasks()
}

// timerEntry represents a pending setTimeout or setInterval callback.
// The callback itself is held by the runner; Go only tracks scheduling
// metadata.
type timerEntry struct {
	deadline time.Time
	interval time.Duration // 0 for setTimeout, >0 for setInterval
	id       int
	cleared  bool
}

// MinInterval is the shortest period an interval timer is allowed.
const MinInterval = 10 * time.Millisecond

// EventLoop manages Go-backed timers for setTimeout/setInterval and
// pending host tasks that need to be settled on the JS goroutine.
type EventLoop struct {
	mu      sync.Mutex
	timers  map[int]*timerEntry
	nextID  int
	pending []*PendingTask
}

// New creates a new EventLoop.
func New() *EventLoop {
	return &EventLoop{
		timers: make(map[int]*timerEntry),
	}
}

// RegisterTimer creates a timer entry and returns its ID.
func (el *EventLoop) RegisterTimer(delay time.Duration, isInterval bool) int {
	el.mu.Lock()
	defer el.mu.Unlock()
	if delay < 0 {
		delay = 0
	}
	el.nextID++
	id := el.nextID
	entry := &timerEntry{
		deadline: time.Now().Add(delay),
		id:       id,
	}
	if isInterval {
		if delay < MinInterval {
			delay = MinInterval
		}
		entry.interval = delay
	}
	el.timers[id] = entry
	return id
}

// ClearTimer cancels a timer by ID. It reports whether the timer was live.
func (el *EventLoop) ClearTimer(id int) bool {
	el.mu.Lock()
	defer el.mu.Unlock()
	t, ok := el.timers[id]
	if ok {
		t.cleared = true
		delete(el.timers, id)
	}
	return ok
}

// AddPending registers a host task whose result will be settled when it
// arrives.
func (el *EventLoop) AddPending(pt *PendingTask) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.pending = append(el.pending, pt)
}

// DrainPending does non-blocking reads on all pending task channels and
// settles the completed ones. Returns true if any task was settled.
func (el *EventLoop) DrainPending(rt Runner) bool {
	el.mu.Lock()
	if len(el.pending) == 0 {
		el.mu.Unlock()
		return false
	}
	pending := el.pending
	el.pending = nil
	el.mu.Unlock()

	var remaining []*PendingTask
	didWork := false
	for _, pt := range pending {
		select {
		case c := <-pt.ResultCh:
			rt.Settle(pt.ID, c)
			// Microtask checkpoint after each settlement.
			rt.RunMicrotasks()
			didWork = true
		default:
			remaining = append(remaining, pt)
		}
	}

	el.mu.Lock()
	// Settlements may have started new tasks.
	el.pending = append(remaining, el.pending...)
	el.mu.Unlock()
	return didWork
}

// nextTimer returns the live timer with the earliest deadline.
func (el *EventLoop) nextTimer() *timerEntry {
	el.mu.Lock()
	defer el.mu.Unlock()
	var next *timerEntry
	for _, t := range el.timers {
		if t.cleared {
			continue
		}
		if next == nil || t.deadline.Before(next.deadline) {
			next = t
		}
	}
	return next
}

// pollInterval bounds how long Drain sleeps while host tasks are in flight.
const pollInterval = time.Millisecond

// Drain fires timers and settles host tasks until nothing is pending or ctx
// is done, in which case ctx's error is returned. It must be called on the
// runtime's goroutine.
func (el *EventLoop) Drain(ctx context.Context, rt Runner) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if el.DrainPending(rt) {
			continue
		}

		el.mu.Lock()
		hasTasks := len(el.pending) > 0
		el.mu.Unlock()
		next := el.nextTimer()

		if next == nil && !hasTasks {
			return nil
		}

		var wait time.Duration
		if next != nil {
			wait = time.Until(next.deadline)
		}
		if next == nil || (hasTasks && wait > pollInterval) {
			wait = pollInterval
		}
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if next == nil || time.Now().Before(next.deadline) {
			continue
		}

		el.mu.Lock()
		if next.cleared {
			el.mu.Unlock()
			continue
		}
		timerID := next.id
		if next.interval > 0 {
			next.deadline = time.Now().Add(next.interval)
		} else {
			delete(el.timers, next.id)
		}
		el.mu.Unlock()

		rt.FireTimer(timerID)
		rt.RunMicrotasks()
	}
}

// HasPending returns true if there are any active timers or pending tasks.
func (el *EventLoop) HasPending() bool {
	el.mu.Lock()
	defer el.mu.Unlock()
	return len(el.timers) > 0 || len(el.pending) > 0
}

// Reset clears all timers and pending tasks.
func (el *EventLoop) Reset() {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.timers = make(map[int]*timerEntry)
	el.nextID = 0
	el.pending = nil
}
