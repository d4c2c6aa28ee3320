package sessionkit_test

import (
	"context"
	"sync"

	"github.com/goliatone/go-sessionkit"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockPlatformClient implements sessionkit.PlatformClient
type MockPlatformClient struct {
	mock.Mock

	mu        sync.Mutex
	listeners []func(kind sessionkit.AuthEventKind, session *sessionkit.Session)
}

func (m *MockPlatformClient) SignInWithPassword(ctx context.Context, principal, secret string) (*sessionkit.Session, error) {
	args := m.Called(ctx, principal, secret)
	return sessionOrNil(args.Get(0)), args.Error(1)
}

func (m *MockPlatformClient) SetSession(ctx context.Context, accessToken, refreshToken string) (*sessionkit.Session, error) {
	args := m.Called(ctx, accessToken, refreshToken)
	return sessionOrNil(args.Get(0)), args.Error(1)
}

func (m *MockPlatformClient) VerifyOTP(ctx context.Context, principal, code string, purpose sessionkit.OTPPurpose) (*sessionkit.Session, error) {
	args := m.Called(ctx, principal, code, purpose)
	return sessionOrNil(args.Get(0)), args.Error(1)
}

func (m *MockPlatformClient) UpdateIdentity(ctx context.Context, patch sessionkit.IdentityPatch) (*sessionkit.Identity, error) {
	args := m.Called(ctx, patch)
	return identityOrNil(args.Get(0)), args.Error(1)
}

func (m *MockPlatformClient) RequestCredentialReset(ctx context.Context, principal, redirectTo string) error {
	args := m.Called(ctx, principal, redirectTo)
	return args.Error(0)
}

func (m *MockPlatformClient) RegisterIdentity(ctx context.Context, principal, secret string) (*sessionkit.Session, error) {
	args := m.Called(ctx, principal, secret)
	return sessionOrNil(args.Get(0)), args.Error(1)
}

func (m *MockPlatformClient) RefreshSession(ctx context.Context) (*sessionkit.Session, error) {
	args := m.Called(ctx)
	return sessionOrNil(args.Get(0)), args.Error(1)
}

func (m *MockPlatformClient) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockPlatformClient) GetSession(ctx context.Context) (*sessionkit.Session, error) {
	args := m.Called(ctx)
	return sessionOrNil(args.Get(0)), args.Error(1)
}

func (m *MockPlatformClient) GetIdentity(ctx context.Context) (*sessionkit.Identity, error) {
	args := m.Called(ctx)
	return identityOrNil(args.Get(0)), args.Error(1)
}

func (m *MockPlatformClient) OnAuthStateChange(fn func(kind sessionkit.AuthEventKind, session *sessionkit.Session)) func() {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	i := len(m.listeners) - 1
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		m.listeners[i] = nil
		m.mu.Unlock()
	}
}

// FireAuthStateChange simulates a platform-side session notification.
func (m *MockPlatformClient) FireAuthStateChange(kind sessionkit.AuthEventKind, session *sessionkit.Session) {
	m.mu.Lock()
	listeners := make([]func(sessionkit.AuthEventKind, *sessionkit.Session), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		if fn != nil {
			fn(kind, session)
		}
	}
}

func sessionOrNil(v any) *sessionkit.Session {
	if v == nil {
		return nil
	}
	return v.(*sessionkit.Session)
}

func identityOrNil(v any) *sessionkit.Identity {
	if v == nil {
		return nil
	}
	return v.(*sessionkit.Identity)
}

// MockInboxAPI implements sessionkit.InboxAPI
type MockInboxAPI struct {
	mock.Mock
}

func (m *MockInboxAPI) FetchNotifications(ctx context.Context, profileID int64) ([]sessionkit.Notification, error) {
	args := m.Called(ctx, profileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]sessionkit.Notification), args.Error(1)
}

func (m *MockInboxAPI) MarkRead(ctx context.Context, id uuid.UUID, profileID int64) error {
	args := m.Called(ctx, id, profileID)
	return args.Error(0)
}

func (m *MockInboxAPI) MarkHandled(ctx context.Context, id uuid.UUID, profileID int64) error {
	args := m.Called(ctx, id, profileID)
	return args.Error(0)
}

func (m *MockInboxAPI) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockPermissionSource implements sessionkit.PermissionSource
type MockPermissionSource struct {
	mock.Mock
}

func (m *MockPermissionSource) FetchRoles(ctx context.Context, identityID string) ([]sessionkit.RoleGrant, error) {
	args := m.Called(ctx, identityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]sessionkit.RoleGrant), args.Error(1)
}

func (m *MockPermissionSource) FetchPermissions(ctx context.Context, identityID string) ([]sessionkit.PermissionGrant, error) {
	args := m.Called(ctx, identityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]sessionkit.PermissionGrant), args.Error(1)
}

// MockProfileResolver implements sessionkit.ProfileResolver
type MockProfileResolver struct {
	mock.Mock
}

func (m *MockProfileResolver) ResolveProfileID(ctx context.Context, identityID string) (int64, error) {
	args := m.Called(ctx, identityID)
	return args.Get(0).(int64), args.Error(1)
}

// stubStream hands out a fixed event channel.
type stubStream struct {
	events chan sessionkit.ChangeEvent

	mu     sync.Mutex
	opened int
	closed int
	err    error
}

func newStubStream() *stubStream {
	return &stubStream{events: make(chan sessionkit.ChangeEvent, 16)}
}

func (s *stubStream) OpenChannel(_ context.Context, _ int64) (<-chan sessionkit.ChangeEvent, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, nil, s.err
	}
	s.opened++
	return s.events, func() {
		s.mu.Lock()
		s.closed++
		s.mu.Unlock()
	}, nil
}

func (s *stubStream) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

func (s *stubStream) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// stubNotifier records desktop notifications on a channel.
type stubNotifier struct {
	granted bool
	fired   chan [2]string
}

func newStubNotifier(granted bool) *stubNotifier {
	return &stubNotifier{granted: granted, fired: make(chan [2]string, 16)}
}

func (n *stubNotifier) Granted() bool {
	return n.granted
}

func (n *stubNotifier) Notify(title, body string) {
	n.fired <- [2]string{title, body}
}

// eventRecorder captures auth events in arrival order.
type eventRecorder struct {
	mu     sync.Mutex
	events []sessionkit.AuthEvent
}

func (r *eventRecorder) Listen(event sessionkit.AuthEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) Kinds() []sessionkit.AuthEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]sessionkit.AuthEventKind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}
