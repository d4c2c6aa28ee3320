package sessionkit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"
)

// Manager is the single authority for the current session. Construct exactly
// one per process and share it by reference; tests build isolated instances.
type Manager struct {
	client      PlatformClient
	cfg         Config
	logger      Logger
	store       Store
	bus         *eventBus
	tracker     *ActivityTracker
	metrics     *Collector
	clock       func() time.Time
	sleep       func(time.Duration)
	navigate    func(path string)
	activitySrc <-chan struct{}

	mu       sync.Mutex
	refresh  RefreshState
	state    SessionState
	autoStop func()
	autoGen  int
}

// NewManager returns a Manager wired to the given platform client.
func NewManager(client PlatformClient, cfg Config) *Manager {
	cfg = cfg.Normalize()
	logger := defLogger{}
	return &Manager{
		client: client,
		cfg:    cfg,
		logger: logger,
		bus:    newEventBus(cfg.NotifyMinInterval, logger),
		clock:  time.Now,
		sleep:  time.Sleep,
		state:  StateAnonymous,
	}
}

func (m *Manager) WithLogger(logger Logger) *Manager {
	if logger != nil {
		m.logger = logger
		m.bus.logger = logger
		if m.tracker != nil {
			m.tracker.withLogger(logger)
		}
	}
	return m
}

// WithStore attaches the shared local key-value store used for the activity
// timestamp, per-identity lookups, and the logout scrub.
func (m *Manager) WithStore(store Store) *Manager {
	m.store = store
	return m
}

// WithClock injects a custom clock (useful for tests).
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	if clock != nil {
		m.clock = clock
		if m.tracker != nil {
			m.tracker.withClock(clock)
		}
	}
	return m
}

func (m *Manager) WithMetrics(metrics *Collector) *Manager {
	m.metrics = metrics
	return m
}

// WithRedirect sets the fallback navigation hook Logout uses when no in-app
// callback is supplied.
func (m *Manager) WithRedirect(navigate func(path string)) *Manager {
	m.navigate = navigate
	return m
}

// WithActivitySource wires a channel of user-interaction signals that
// StartAutoRefresh will consume into the activity tracker.
func (m *Manager) WithActivitySource(src <-chan struct{}) *Manager {
	m.activitySrc = src
	return m
}

// ActivityTracker returns the tracker, creating it on first use.
func (m *Manager) ActivityTracker() *ActivityTracker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tracker == nil {
		m.tracker = NewActivityTracker(m.store).
			withClock(m.clock).
			withLogger(m.logger)
	}
	return m.tracker
}

// OnAuthStateChange subscribes a listener to SIGNED_IN / SIGNED_OUT /
// TOKEN_REFRESHED transitions. The returned func unsubscribes.
func (m *Manager) OnAuthStateChange(fn AuthListener) func() {
	return m.bus.Subscribe(fn)
}

// State reports where the manager sits in the session lifecycle.
func (m *Manager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RefreshStatus returns a copy of the refresh bookkeeping.
func (m *Manager) RefreshStatus() RefreshState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refresh
}

// GetSession reads through to the platform without side effects.
func (m *Manager) GetSession(ctx context.Context) (*Session, error) {
	session, err := m.client.GetSession(ctx)
	if err != nil {
		m.logger.Error("get session failed: %v", err)
		return nil, wrapPlatformErr(err, "get-session")
	}
	return session, nil
}

// GetIdentity reads through to the platform without side effects.
func (m *Manager) GetIdentity(ctx context.Context) (*Identity, error) {
	identity, err := m.client.GetIdentity(ctx)
	if err != nil {
		m.logger.Error("get identity failed: %v", err)
		return nil, wrapPlatformErr(err, "get-identity")
	}
	return identity, nil
}

// SignInWithPassword authenticates principal/secret. On success the SIGNED_IN
// event is emitted before returning so route guards observe the new identity
// with minimal latency.
func (m *Manager) SignInWithPassword(ctx context.Context, principal, secret string) (*Session, error) {
	if err := (signInRequest{Principal: principal, Secret: secret}).Validate(); err != nil {
		return nil, wrapValidationErr(err)
	}
	normalized, err := NormalizePrincipal(principal)
	if err != nil {
		return nil, err
	}

	m.setState(StateAuthenticating)

	session, err := m.client.SignInWithPassword(ctx, normalized.String(), secret)
	if err != nil {
		m.setState(StateAnonymous)
		m.logger.Error("password sign-in failed: %v", err)
		return nil, wrapPlatformErr(err, "sign-in")
	}

	m.setState(StateAuthenticated)
	m.ActivityTracker().Touch()
	m.emit(EventSignedIn, session)
	m.logger.Info("password sign-in succeeded for %s", session.IdentityID())

	return session, nil
}

// SetSession establishes a session from explicit credentials (invite links or
// recovery flows). Emits SIGNED_IN before returning, same as password sign-in.
func (m *Manager) SetSession(ctx context.Context, accessToken, refreshToken string) (*Session, error) {
	if err := (setSessionRequest{AccessToken: accessToken, RefreshToken: refreshToken}).Validate(); err != nil {
		return nil, wrapValidationErr(err)
	}

	m.setState(StateAuthenticating)

	session, err := m.client.SetSession(ctx, accessToken, refreshToken)
	if err != nil {
		m.setState(StateAnonymous)
		m.logger.Error("set session failed: %v", err)
		return nil, wrapPlatformErr(err, "set-session")
	}

	m.setState(StateAuthenticated)
	m.emit(EventSignedIn, session)

	return session, nil
}

// VerifyOneTimeCode redeems a one-time code for the invite, recovery, signup,
// magiclink, or email flows.
func (m *Manager) VerifyOneTimeCode(ctx context.Context, principal, code string, purpose OTPPurpose) (*Session, error) {
	if err := (verifyOTPRequest{Principal: principal, Code: code, Purpose: purpose}).Validate(); err != nil {
		return nil, wrapValidationErr(err)
	}
	normalized, err := NormalizePrincipal(principal)
	if err != nil {
		return nil, err
	}

	session, err := m.client.VerifyOTP(ctx, normalized.String(), code, purpose)
	if err != nil {
		m.logger.Error("one-time code verification failed: %v", err)
		return nil, wrapPlatformErr(err, "verify-otp")
	}
	return session, nil
}

// UpdateIdentity applies a partial identity update and stamps the cross-tab
// refresh signal so other processes invalidate identity-derived caches.
func (m *Manager) UpdateIdentity(ctx context.Context, patch IdentityPatch) (*Identity, error) {
	identity, err := m.client.UpdateIdentity(ctx, patch)
	if err != nil {
		m.logger.Error("identity update failed: %v", err)
		return nil, wrapPlatformErr(err, "update-identity")
	}

	if m.store != nil {
		if err := m.store.Set(ctx, keyRefreshSignal, uuid.NewString()); err != nil {
			m.logger.Warn("refresh signal write failed: %v", err)
		}
	}

	return identity, nil
}

// RequestCredentialReset asks the platform to start a credential reset flow.
func (m *Manager) RequestCredentialReset(ctx context.Context, principal, redirectTo string) error {
	normalized, err := NormalizePrincipal(principal)
	if err != nil {
		return err
	}
	if err := m.client.RequestCredentialReset(ctx, normalized.String(), redirectTo); err != nil {
		m.logger.Error("credential reset request failed: %v", err)
		return wrapPlatformErr(err, "request-credential-reset")
	}
	return nil
}

// RegisterIdentity creates a new identity with principal/secret.
func (m *Manager) RegisterIdentity(ctx context.Context, principal, secret string) (*Session, error) {
	if err := (signInRequest{Principal: principal, Secret: secret}).Validate(); err != nil {
		return nil, wrapValidationErr(err)
	}
	normalized, err := NormalizePrincipal(principal)
	if err != nil {
		return nil, err
	}

	session, err := m.client.RegisterIdentity(ctx, normalized.String(), secret)
	if err != nil {
		m.logger.Error("identity registration failed: %v", err)
		return nil, wrapPlatformErr(err, "register-identity")
	}
	return session, nil
}

// ResolveProfileID maps the current identity to its numeric profile id,
// memoizing the lookup in the local store.
func (m *Manager) ResolveProfileID(ctx context.Context, resolver ProfileResolver) (int64, error) {
	identity, err := m.GetIdentity(ctx)
	if err != nil {
		return 0, err
	}
	if identity == nil {
		return 0, ErrNoActiveSession
	}

	key := identityKey(keyProfileIDPrefix, identity.ID)
	if m.store != nil {
		if raw, ok, err := m.store.Get(ctx, key); err == nil && ok {
			if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
				return id, nil
			}
		}
	}

	id, err := resolver.ResolveProfileID(ctx, identity.ID)
	if err != nil {
		m.logger.Error("profile id resolution failed: %v", err)
		return 0, errors.Wrap(err, ErrProfileUnresolved.Category, ErrProfileUnresolved.Message).
			WithTextCode(ErrProfileUnresolved.TextCode)
	}

	if m.store != nil {
		if err := m.store.Set(ctx, key, strconv.FormatInt(id, 10)); err != nil {
			m.logger.Warn("profile id cache write failed: %v", err)
		}
	}
	return id, nil
}

func (m *Manager) setState(state SessionState) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

func (m *Manager) emit(kind AuthEventKind, session *Session) {
	event := AuthEvent{Kind: kind, Session: session, OccurredAt: m.clock()}
	if m.bus.Emit(event) {
		m.metrics.eventEmitted(kind)
	} else {
		m.metrics.eventDropped()
	}
}

func (m *Manager) debugDump(label string, payload any) {
	m.logger.Debug("%s %s", label, print.MaybePrettyJSON(payload))
}
