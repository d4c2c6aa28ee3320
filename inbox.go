package sessionkit

import (
	"time"

	"github.com/google/uuid"
)

// NotificationStatus enumerates inbox record states.
type NotificationStatus string

const (
	StatusUnread  NotificationStatus = "unread"
	StatusRead    NotificationStatus = "read"
	StatusHandled NotificationStatus = "handled"
)

// Notification is one inbox record. The remote service is the source of
// truth; the local mirror is a cache that reconverges after any optimistic
// mutation fails.
type Notification struct {
	ID        uuid.UUID          `json:"id"`
	ProfileID int64              `json:"user_id"`
	Type      string             `json:"type,omitempty"`
	Title     string             `json:"title"`
	Content   string             `json:"content,omitempty"`
	Metadata  map[string]any     `json:"metadata,omitempty"`
	Status    NotificationStatus `json:"status"`
	Priority  int                `json:"priority,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	ReadAt    *time.Time         `json:"read_at,omitempty"`
	HandledAt *time.Time         `json:"handled_at,omitempty"`
	ExpiresAt *time.Time         `json:"expires_at,omitempty"`
}

// inbox is the reconciler's local mirror plus its incrementally maintained
// unread counter. Not goroutine safe; the reconciler serializes access.
type inbox struct {
	items  []Notification
	unread int
}

func (b *inbox) replace(items []Notification) {
	b.items = items
	b.recount()
}

// recount recomputes the unread counter from scratch. Used on load and by the
// debounced correction pass; incremental adjustments handle the hot path.
func (b *inbox) recount() {
	count := 0
	for _, n := range b.items {
		if n.Status == StatusUnread {
			count++
		}
	}
	b.unread = count
}

func (b *inbox) indexOf(id uuid.UUID) int {
	for i, n := range b.items {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// prepend adds a new record at the head, de-duplicating by id so a duplicate
// delivery cannot double-count the unread total.
func (b *inbox) prepend(n Notification) bool {
	if b.indexOf(n.ID) >= 0 {
		return false
	}
	b.items = append([]Notification{n}, b.items...)
	if n.Status == StatusUnread {
		b.unread++
	}
	return true
}

func (b *inbox) merge(n Notification) bool {
	i := b.indexOf(n.ID)
	if i < 0 {
		return false
	}
	b.items[i] = n
	return true
}

func (b *inbox) remove(id uuid.UUID) (Notification, int, bool) {
	i := b.indexOf(id)
	if i < 0 {
		return Notification{}, -1, false
	}
	removed := b.items[i]
	b.items = append(b.items[:i:i], b.items[i+1:]...)
	if removed.Status == StatusUnread {
		b.unread--
	}
	return removed, i, true
}

// insertAt restores a previously removed record to its original position,
// clamping the index against concurrent inserts.
func (b *inbox) insertAt(n Notification, index int) {
	if index < 0 {
		index = 0
	}
	if index > len(b.items) {
		index = len(b.items)
	}
	b.items = append(b.items[:index:index], append([]Notification{n}, b.items[index:]...)...)
	if n.Status == StatusUnread {
		b.unread++
	}
}

func (b *inbox) snapshot() []Notification {
	out := make([]Notification, len(b.items))
	copy(out, b.items)
	return out
}
