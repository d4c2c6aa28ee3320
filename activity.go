package sessionkit

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// ActivityTracker records the instant of the last user interaction. The host
// UI forwards pointer/key/scroll/touch events by calling Touch, or wires a
// channel through Watch. Pure leaf: the tracker depends on nothing else.
type ActivityTracker struct {
	mu     sync.Mutex
	last   time.Time
	store  Store
	clock  func() time.Time
	logger Logger
}

// NewActivityTracker creates a tracker. store may be nil to keep the
// timestamp in memory only.
func NewActivityTracker(store Store) *ActivityTracker {
	return &ActivityTracker{
		store:  store,
		clock:  time.Now,
		logger: defLogger{},
	}
}

func (t *ActivityTracker) withClock(clock func() time.Time) *ActivityTracker {
	if clock != nil {
		t.clock = clock
	}
	return t
}

func (t *ActivityTracker) withLogger(logger Logger) *ActivityTracker {
	if logger != nil {
		t.logger = logger
	}
	return t
}

// Touch records an interaction now and persists the timestamp.
func (t *ActivityTracker) Touch() {
	now := t.clock()

	t.mu.Lock()
	t.last = now
	t.mu.Unlock()

	if t.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := t.store.Set(ctx, keyLastActivity, strconv.FormatInt(now.UnixMilli(), 10)); err != nil {
		t.logger.Warn("activity timestamp persist failed: %v", err)
	}
}

// LastActivity returns the most recent interaction instant.
func (t *ActivityTracker) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Watch consumes interaction signals from src until the returned stop func is
// called or src is closed. Signals are passive: they only update the
// timestamp.
func (t *ActivityTracker) Watch(src <-chan struct{}) func() {
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case _, ok := <-src:
				if !ok {
					return
				}
				t.Touch()
			case <-done:
				return
			}
		}
	}()

	return func() {
		once.Do(func() { close(done) })
	}
}
