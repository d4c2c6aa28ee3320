package sessionkit

import (
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AuthEventKind enumerates session-state transitions.
type AuthEventKind string

const (
	EventSignedIn       AuthEventKind = "SIGNED_IN"
	EventSignedOut      AuthEventKind = "SIGNED_OUT"
	EventTokenRefreshed AuthEventKind = "TOKEN_REFRESHED"
)

// AuthEvent is a typed notification of a session-state transition.
type AuthEvent struct {
	Kind       AuthEventKind
	Session    *Session
	OccurredAt time.Time
}

// AuthListener consumes auth events. Listeners run synchronously in
// subscription order; a panicking listener is contained and logged.
type AuthListener func(AuthEvent)

// eventBus fans auth events out to registered listeners. Emission is rate
// gated: the platform and the Manager both signal the same transition, and
// without the gate every downstream consumer would re-render twice.
type eventBus struct {
	mu        sync.Mutex
	seq       int
	listeners map[int]AuthListener
	limiter   *rate.Limiter
	logger    Logger
	sink      func(AuthEvent) // test/metrics tap, may be nil
}

func newEventBus(minInterval time.Duration, logger Logger) *eventBus {
	if logger == nil {
		logger = defLogger{}
	}
	return &eventBus{
		listeners: map[int]AuthListener{},
		limiter:   rate.NewLimiter(rate.Every(minInterval), 1),
		logger:    logger,
	}
}

// Subscribe registers a listener and returns its unsubscribe func.
func (b *eventBus) Subscribe(fn AuthListener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	id := b.seq
	b.listeners[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// Emit delivers event to every listener in subscription order. Events arriving
// faster than the configured minimum spacing are dropped.
func (b *eventBus) Emit(event AuthEvent) bool {
	if !b.limiter.Allow() {
		b.logger.Debug("auth event %s dropped by rate gate", event.Kind)
		return false
	}

	b.mu.Lock()
	ids := make([]int, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]AuthListener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, b.listeners[id])
	}
	sink := b.sink
	b.mu.Unlock()

	for _, fn := range fns {
		b.deliver(fn, event)
	}
	if sink != nil {
		sink(event)
	}
	return true
}

func (b *eventBus) deliver(fn AuthListener, event AuthEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("auth event listener panic: %v", r)
		}
	}()
	fn(event)
}
