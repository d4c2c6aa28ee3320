package sessionkit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Reconciler mirrors one identity's notification inbox against the platform's
// filtered change stream and reconciles optimistic local mutations with it.
// Instantiate one per profile id and Close it when the identity changes.
type Reconciler struct {
	profileID int64
	api       InboxAPI
	stream    StreamOpener
	snapshots SnapshotStore
	notifier  DesktopNotifier
	logger    Logger
	metrics   *Collector
	clock     func() time.Time
	debounce  time.Duration

	mu           sync.Mutex
	box          inbox
	loaded       bool
	stopped      bool
	recountTimer *time.Timer
	closeStream  func()
}

// ReconcilerOption customizes a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithStream attaches the realtime channel opener. Without one the mirror
// converges only through Load.
func WithStream(opener StreamOpener) ReconcilerOption {
	return func(r *Reconciler) { r.stream = opener }
}

// WithSnapshots attaches the persistent snapshot fallback.
func WithSnapshots(store SnapshotStore) ReconcilerOption {
	return func(r *Reconciler) { r.snapshots = store }
}

// WithDesktopNotifier attaches the host notification surface.
func WithDesktopNotifier(notifier DesktopNotifier) ReconcilerOption {
	return func(r *Reconciler) { r.notifier = notifier }
}

// WithReconcilerLogger overrides the logger.
func WithReconcilerLogger(logger Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithReconcilerClock injects a custom clock (useful for tests).
func WithReconcilerClock(clock func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithReconcilerMetrics attaches the metrics collector.
func WithReconcilerMetrics(metrics *Collector) ReconcilerOption {
	return func(r *Reconciler) { r.metrics = metrics }
}

// WithRecountDebounce overrides the debounce applied to the full unread
// recount after stream events.
func WithRecountDebounce(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.debounce = d
		}
	}
}

// NewReconciler builds a reconciler for one profile id.
func NewReconciler(profileID int64, api InboxAPI, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		profileID: profileID,
		api:       api,
		logger:    defLogger{},
		clock:     time.Now,
		debounce:  300 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// ProfileID returns the profile id this reconciler is scoped to.
func (r *Reconciler) ProfileID() int64 {
	return r.profileID
}

// Load fetches the full inbox, replaces the mirror, recomputes the unread
// counter from scratch, and persists the result as the fallback snapshot. On
// fetch failure the most recent snapshot is served instead of an empty inbox.
// The realtime channel is opened after the first successful load.
func (r *Reconciler) Load(ctx context.Context) error {
	items, err := r.api.FetchNotifications(ctx, r.profileID)
	if err != nil {
		r.logger.Error("inbox fetch failed for profile %d: %v", r.profileID, err)
		if r.restoreSnapshot(ctx) {
			return nil
		}
		return wrapPlatformErr(err, "fetch-notifications")
	}

	r.mu.Lock()
	r.box.replace(items)
	r.loaded = true
	r.mu.Unlock()

	r.saveSnapshot(ctx, items)

	if err := r.openStream(ctx); err != nil {
		r.logger.Error("realtime channel open failed for profile %d: %v", r.profileID, err)
	}

	r.logger.Debug("inbox loaded: %d records, %d unread", len(items), r.UnreadCount())
	return nil
}

func (r *Reconciler) restoreSnapshot(ctx context.Context) bool {
	if r.snapshots == nil {
		return false
	}
	payload, savedAt, err := r.snapshots.LoadSnapshot(ctx, r.profileID)
	if err != nil {
		return false
	}
	var cached []Notification
	if err := json.Unmarshal(payload, &cached); err != nil {
		r.logger.Warn("inbox snapshot decode failed: %v", err)
		return false
	}

	r.mu.Lock()
	r.box.replace(cached)
	r.loaded = true
	r.mu.Unlock()

	r.metrics.snapshotFallback()
	r.logger.Info("inbox served from snapshot taken at %s", savedAt.Format(time.RFC3339))
	return true
}

func (r *Reconciler) saveSnapshot(ctx context.Context, items []Notification) {
	if r.snapshots == nil {
		return
	}
	payload, err := json.Marshal(items)
	if err != nil {
		r.logger.Warn("inbox snapshot encode failed: %v", err)
		return
	}
	if err := r.snapshots.SaveSnapshot(ctx, r.profileID, payload); err != nil {
		r.logger.Warn("inbox snapshot write failed: %v", err)
	}
}

func (r *Reconciler) openStream(ctx context.Context) error {
	if r.stream == nil {
		return nil
	}

	r.mu.Lock()
	if r.closeStream != nil || r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	events, closer, err := r.stream.OpenChannel(ctx, r.profileID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		closer()
		return nil
	}
	r.closeStream = closer
	r.mu.Unlock()

	go func() {
		for event := range events {
			r.handleEvent(event)
		}
	}()
	return nil
}

// handleEvent applies one channel event in arrival order and schedules the
// debounced counter correction. Update/delete deliveries can arrive out of
// order relative to a concurrent optimistic mutation; only the full recount
// guarantees the counter never permanently drifts.
func (r *Reconciler) handleEvent(event ChangeEvent) {
	r.metrics.streamEvent(event.Kind)

	var notify *Notification

	r.mu.Lock()
	switch event.Kind {
	case ChangeInsert:
		if event.New != nil {
			if r.box.prepend(*event.New) && event.New.Status == StatusUnread {
				n := *event.New
				notify = &n
			}
		}
	case ChangeUpdate:
		if event.New != nil {
			r.box.merge(*event.New)
		}
	case ChangeDelete:
		if event.Old != nil {
			r.box.remove(event.Old.ID)
		}
	}
	r.mu.Unlock()

	r.scheduleRecount()

	if notify != nil && r.notifier != nil && r.notifier.Granted() {
		go r.notifier.Notify(notify.Title, notify.Content)
	}
}

func (r *Reconciler) scheduleRecount() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	if r.recountTimer != nil {
		r.recountTimer.Stop()
	}
	r.recountTimer = time.AfterFunc(r.debounce, func() {
		r.mu.Lock()
		r.box.recount()
		r.mu.Unlock()
	})
}

// MarkAsRead optimistically marks a record read, then confirms remotely,
// reverting the mirror entry and counter on rejection.
func (r *Reconciler) MarkAsRead(ctx context.Context, id uuid.UUID) error {
	now := r.clock()
	return r.optimisticStatus(ctx, id, "mark_read",
		func(n *Notification) {
			n.Status = StatusRead
			n.ReadAt = &now
		},
		func(ctx context.Context) error {
			return r.api.MarkRead(ctx, id, r.profileID)
		})
}

// MarkAsHandled optimistically marks a record handled, then confirms remotely,
// reverting on rejection.
func (r *Reconciler) MarkAsHandled(ctx context.Context, id uuid.UUID) error {
	now := r.clock()
	return r.optimisticStatus(ctx, id, "mark_handled",
		func(n *Notification) {
			n.Status = StatusHandled
			n.HandledAt = &now
		},
		func(ctx context.Context) error {
			return r.api.MarkHandled(ctx, id, r.profileID)
		})
}

func (r *Reconciler) optimisticStatus(ctx context.Context, id uuid.UUID, label string, apply func(*Notification), call func(context.Context) error) error {
	r.mu.Lock()
	i := r.box.indexOf(id)
	if i < 0 {
		r.mu.Unlock()
		return ErrNotificationNotFound
	}
	prev := r.box.items[i]
	updated := prev
	apply(&updated)
	r.box.items[i] = updated
	if prev.Status == StatusUnread && updated.Status != StatusUnread {
		r.box.unread--
	}
	r.mu.Unlock()

	if err := call(ctx); err != nil {
		r.rollbackReplace(prev, updated)
		r.metrics.rollback(label)
		r.logger.Error("%s rejected for %s, rolled back: %v", label, id, err)
		return wrapPlatformErr(err, label)
	}
	return nil
}

// rollbackReplace restores prev after a rejected mutation. The rollback
// restores the state before this specific call, not the globally true state;
// a record the stream removed in the meantime stays removed.
func (r *Reconciler) rollbackReplace(prev, applied Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.box.indexOf(prev.ID)
	if i < 0 {
		return
	}
	current := r.box.items[i]
	r.box.items[i] = prev

	if current.Status == applied.Status {
		// still our optimistic write; undo the counter adjustment
		if prev.Status == StatusUnread && applied.Status != StatusUnread {
			r.box.unread++
		}
	} else {
		r.box.recount()
	}
}

// Delete optimistically removes a record, then confirms remotely, restoring
// the record at its original position on rejection.
func (r *Reconciler) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	removed, index, ok := r.box.remove(id)
	r.mu.Unlock()
	if !ok {
		return ErrNotificationNotFound
	}

	if err := r.api.Delete(ctx, id); err != nil {
		r.mu.Lock()
		r.box.insertAt(removed, index)
		r.mu.Unlock()
		r.metrics.rollback("delete")
		r.logger.Error("delete rejected for %s, rolled back: %v", id, err)
		return wrapPlatformErr(err, "delete-notification")
	}
	return nil
}

// Notifications returns a copy of the mirrored inbox.
func (r *Reconciler) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.box.snapshot()
}

// UnreadCount returns the derived unread counter.
func (r *Reconciler) UnreadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.box.unread
}

// Loaded reports whether the mirror holds a load result (remote or snapshot).
func (r *Reconciler) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loaded
}

// Close tears the channel subscription down. Call it whenever the owning
// identity changes, including to none.
func (r *Reconciler) Close() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	if r.recountTimer != nil {
		r.recountTimer.Stop()
		r.recountTimer = nil
	}
	closer := r.closeStream
	r.closeStream = nil
	r.mu.Unlock()

	if closer != nil {
		closer()
	}
}
