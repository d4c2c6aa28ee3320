package sessionkit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/goliatone/go-sessionkit"
	"github.com/goliatone/go-sessionkit/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testProfileID int64 = 42

func notification(status sessionkit.NotificationStatus) sessionkit.Notification {
	return sessionkit.Notification{
		ID:        uuid.New(),
		ProfileID: testProfileID,
		Title:     "hello",
		Content:   "body",
		Status:    status,
		CreatedAt: time.Now(),
	}
}

func TestReconcilerLoad(t *testing.T) {
	api := &MockInboxAPI{}
	snapshots := store.NewMemorySnapshots()

	items := []sessionkit.Notification{
		notification(sessionkit.StatusUnread),
		notification(sessionkit.StatusUnread),
		notification(sessionkit.StatusRead),
	}
	api.On("FetchNotifications", mock.Anything, testProfileID).Return(items, nil)

	r := sessionkit.NewReconciler(testProfileID, api, sessionkit.WithSnapshots(snapshots))
	defer r.Close()

	require.NoError(t, r.Load(context.Background()))

	assert.True(t, r.Loaded())
	assert.Len(t, r.Notifications(), 3)
	assert.Equal(t, 2, r.UnreadCount())

	// the load result doubles as the fallback snapshot
	payload, _, err := snapshots.LoadSnapshot(context.Background(), testProfileID)
	require.NoError(t, err)

	var saved []sessionkit.Notification
	require.NoError(t, json.Unmarshal(payload, &saved))
	assert.Len(t, saved, 3)
}

func TestReconcilerLoadFallsBackToSnapshot(t *testing.T) {
	ctx := context.Background()
	api := &MockInboxAPI{}
	snapshots := store.NewMemorySnapshots()

	cached := []sessionkit.Notification{
		notification(sessionkit.StatusUnread),
		notification(sessionkit.StatusRead),
	}
	payload, err := json.Marshal(cached)
	require.NoError(t, err)
	require.NoError(t, snapshots.SaveSnapshot(ctx, testProfileID, payload))

	api.On("FetchNotifications", mock.Anything, testProfileID).Return(nil, assert.AnError)

	r := sessionkit.NewReconciler(testProfileID, api, sessionkit.WithSnapshots(snapshots))
	defer r.Close()

	require.NoError(t, r.Load(ctx))
	assert.True(t, r.Loaded())
	assert.Len(t, r.Notifications(), 2)
	assert.Equal(t, 1, r.UnreadCount())
}

func TestReconcilerLoadFailsWithoutSnapshot(t *testing.T) {
	api := &MockInboxAPI{}
	api.On("FetchNotifications", mock.Anything, testProfileID).Return(nil, assert.AnError)

	r := sessionkit.NewReconciler(testProfileID, api)
	defer r.Close()

	assert.Error(t, r.Load(context.Background()))
	assert.False(t, r.Loaded())
}

func TestReconcilerStreamInsert(t *testing.T) {
	api := &MockInboxAPI{}
	stream := newStubStream()

	api.On("FetchNotifications", mock.Anything, testProfileID).
		Return([]sessionkit.Notification{}, nil)

	r := sessionkit.NewReconciler(testProfileID, api,
		sessionkit.WithStream(stream),
		sessionkit.WithRecountDebounce(10*time.Millisecond))
	defer r.Close()

	require.NoError(t, r.Load(context.Background()))
	require.Equal(t, 1, stream.openCount())

	inserted := notification(sessionkit.StatusUnread)
	stream.events <- sessionkit.ChangeEvent{Kind: sessionkit.ChangeInsert, New: &inserted}

	require.Eventually(t, func() bool {
		return r.UnreadCount() == 1
	}, time.Second, 5*time.Millisecond)

	// a duplicate delivery must not double-count
	stream.events <- sessionkit.ChangeEvent{Kind: sessionkit.ChangeInsert, New: &inserted}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, r.UnreadCount())
	assert.Len(t, r.Notifications(), 1)
}

func TestReconcilerStreamUpdateAndDelete(t *testing.T) {
	api := &MockInboxAPI{}
	stream := newStubStream()

	first := notification(sessionkit.StatusUnread)
	second := notification(sessionkit.StatusUnread)
	api.On("FetchNotifications", mock.Anything, testProfileID).
		Return([]sessionkit.Notification{first, second}, nil)

	r := sessionkit.NewReconciler(testProfileID, api,
		sessionkit.WithStream(stream),
		sessionkit.WithRecountDebounce(10*time.Millisecond))
	defer r.Close()

	require.NoError(t, r.Load(context.Background()))
	require.Equal(t, 2, r.UnreadCount())

	updated := first
	updated.Status = sessionkit.StatusRead
	stream.events <- sessionkit.ChangeEvent{Kind: sessionkit.ChangeUpdate, New: &updated}

	// the debounced recount folds the merge into the counter
	require.Eventually(t, func() bool {
		return r.UnreadCount() == 1
	}, time.Second, 5*time.Millisecond)

	stream.events <- sessionkit.ChangeEvent{Kind: sessionkit.ChangeDelete, Old: &second}

	require.Eventually(t, func() bool {
		return r.UnreadCount() == 0 && len(r.Notifications()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestReconcilerDesktopNotification(t *testing.T) {
	api := &MockInboxAPI{}
	stream := newStubStream()
	notifier := newStubNotifier(true)

	api.On("FetchNotifications", mock.Anything, testProfileID).
		Return([]sessionkit.Notification{}, nil)

	r := sessionkit.NewReconciler(testProfileID, api,
		sessionkit.WithStream(stream),
		sessionkit.WithDesktopNotifier(notifier))
	defer r.Close()

	require.NoError(t, r.Load(context.Background()))

	inserted := notification(sessionkit.StatusUnread)
	stream.events <- sessionkit.ChangeEvent{Kind: sessionkit.ChangeInsert, New: &inserted}

	select {
	case fired := <-notifier.fired:
		assert.Equal(t, "hello", fired[0])
		assert.Equal(t, "body", fired[1])
	case <-time.After(time.Second):
		t.Fatal("expected a desktop notification")
	}
}

func TestReconcilerDesktopNotificationRequiresGrant(t *testing.T) {
	api := &MockInboxAPI{}
	stream := newStubStream()
	notifier := newStubNotifier(false)

	api.On("FetchNotifications", mock.Anything, testProfileID).
		Return([]sessionkit.Notification{}, nil)

	r := sessionkit.NewReconciler(testProfileID, api,
		sessionkit.WithStream(stream),
		sessionkit.WithDesktopNotifier(notifier))
	defer r.Close()

	require.NoError(t, r.Load(context.Background()))

	inserted := notification(sessionkit.StatusUnread)
	stream.events <- sessionkit.ChangeEvent{Kind: sessionkit.ChangeInsert, New: &inserted}

	require.Eventually(t, func() bool {
		return len(r.Notifications()) == 1
	}, time.Second, 5*time.Millisecond)

	select {
	case <-notifier.fired:
		t.Fatal("notification fired without permission")
	default:
	}
}

func TestMarkAsRead(t *testing.T) {
	api := &MockInboxAPI{}
	target := notification(sessionkit.StatusUnread)

	api.On("FetchNotifications", mock.Anything, testProfileID).
		Return([]sessionkit.Notification{target}, nil)
	api.On("MarkRead", mock.Anything, target.ID, testProfileID).Return(nil)

	r := sessionkit.NewReconciler(testProfileID, api)
	defer r.Close()

	require.NoError(t, r.Load(context.Background()))
	require.NoError(t, r.MarkAsRead(context.Background(), target.ID))

	assert.Equal(t, 0, r.UnreadCount())
	got := r.Notifications()[0]
	assert.Equal(t, sessionkit.StatusRead, got.Status)
	assert.NotNil(t, got.ReadAt)
}

func TestMarkAsReadUnknownID(t *testing.T) {
	api := &MockInboxAPI{}
	api.On("FetchNotifications", mock.Anything, testProfileID).
		Return([]sessionkit.Notification{}, nil)

	r := sessionkit.NewReconciler(testProfileID, api)
	defer r.Close()

	require.NoError(t, r.Load(context.Background()))
	assert.Error(t, r.MarkAsRead(context.Background(), uuid.New()))
	api.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything)
}

// Exercises the load → stream insert → rejected mark-read sequence end to end:
// the optimistic decrement and the rollback increment cancel out.
func TestMarkAsReadRollbackOnRemoteFailure(t *testing.T) {
	api := &MockInboxAPI{}
	stream := newStubStream()

	target := notification(sessionkit.StatusUnread)
	items := []sessionkit.Notification{
		target,
		notification(sessionkit.StatusUnread),
		notification(sessionkit.StatusRead),
	}
	api.On("FetchNotifications", mock.Anything, testProfileID).Return(items, nil)
	api.On("MarkRead", mock.Anything, target.ID, testProfileID).Return(assert.AnError)

	r := sessionkit.NewReconciler(testProfileID, api,
		sessionkit.WithStream(stream),
		sessionkit.WithRecountDebounce(10*time.Millisecond))
	defer r.Close()

	require.NoError(t, r.Load(context.Background()))
	require.Equal(t, 2, r.UnreadCount())

	inserted := notification(sessionkit.StatusUnread)
	stream.events <- sessionkit.ChangeEvent{Kind: sessionkit.ChangeInsert, New: &inserted}
	require.Eventually(t, func() bool {
		return r.UnreadCount() == 3
	}, time.Second, 5*time.Millisecond)

	require.Error(t, r.MarkAsRead(context.Background(), target.ID))

	assert.Equal(t, 3, r.UnreadCount())
	for _, n := range r.Notifications() {
		if n.ID == target.ID {
			assert.Equal(t, sessionkit.StatusUnread, n.Status)
			assert.Nil(t, n.ReadAt)
		}
	}
}

func TestMarkAsHandledRollbackOnRemoteFailure(t *testing.T) {
	api := &MockInboxAPI{}

	target := notification(sessionkit.StatusUnread)
	items := []sessionkit.Notification{
		target,
		notification(sessionkit.StatusRead),
	}
	api.On("FetchNotifications", mock.Anything, testProfileID).Return(items, nil)
	api.On("MarkHandled", mock.Anything, target.ID, testProfileID).Return(assert.AnError)

	r := sessionkit.NewReconciler(testProfileID, api)
	defer r.Close()

	require.NoError(t, r.Load(context.Background()))
	require.Equal(t, 1, r.UnreadCount())

	require.Error(t, r.MarkAsHandled(context.Background(), target.ID))

	assert.Equal(t, 1, r.UnreadCount())
	for _, n := range r.Notifications() {
		if n.ID == target.ID {
			assert.Equal(t, sessionkit.StatusUnread, n.Status)
			assert.Nil(t, n.HandledAt)
		}
	}
}

func TestMarkAsHandled(t *testing.T) {
	api := &MockInboxAPI{}
	target := notification(sessionkit.StatusUnread)

	api.On("FetchNotifications", mock.Anything, testProfileID).
		Return([]sessionkit.Notification{target}, nil)
	api.On("MarkHandled", mock.Anything, target.ID, testProfileID).Return(nil)

	r := sessionkit.NewReconciler(testProfileID, api)
	defer r.Close()

	require.NoError(t, r.Load(context.Background()))
	require.NoError(t, r.MarkAsHandled(context.Background(), target.ID))

	assert.Equal(t, 0, r.UnreadCount())
	got := r.Notifications()[0]
	assert.Equal(t, sessionkit.StatusHandled, got.Status)
	assert.NotNil(t, got.HandledAt)
}

func TestDeleteRollbackRestoresPosition(t *testing.T) {
	api := &MockInboxAPI{}

	first := notification(sessionkit.StatusRead)
	second := notification(sessionkit.StatusUnread)
	third := notification(sessionkit.StatusRead)

	api.On("FetchNotifications", mock.Anything, testProfileID).
		Return([]sessionkit.Notification{first, second, third}, nil)
	api.On("Delete", mock.Anything, second.ID).Return(assert.AnError)

	r := sessionkit.NewReconciler(testProfileID, api)
	defer r.Close()

	require.NoError(t, r.Load(context.Background()))
	require.Error(t, r.Delete(context.Background(), second.ID))

	got := r.Notifications()
	require.Len(t, got, 3)
	assert.Equal(t, second.ID, got[1].ID)
	assert.Equal(t, 1, r.UnreadCount())
}

func TestDelete(t *testing.T) {
	api := &MockInboxAPI{}
	target := notification(sessionkit.StatusUnread)

	api.On("FetchNotifications", mock.Anything, testProfileID).
		Return([]sessionkit.Notification{target}, nil)
	api.On("Delete", mock.Anything, target.ID).Return(nil)

	r := sessionkit.NewReconciler(testProfileID, api)
	defer r.Close()

	require.NoError(t, r.Load(context.Background()))
	require.NoError(t, r.Delete(context.Background(), target.ID))

	assert.Empty(t, r.Notifications())
	assert.Equal(t, 0, r.UnreadCount())
}

func TestReconcilerCloseReleasesStream(t *testing.T) {
	api := &MockInboxAPI{}
	stream := newStubStream()

	api.On("FetchNotifications", mock.Anything, testProfileID).
		Return([]sessionkit.Notification{}, nil)

	r := sessionkit.NewReconciler(testProfileID, api, sessionkit.WithStream(stream))
	require.NoError(t, r.Load(context.Background()))

	r.Close()
	r.Close()

	assert.Equal(t, 1, stream.closeCount())
}
