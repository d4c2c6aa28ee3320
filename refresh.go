package sessionkit

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
)

// SmartRefresh decides whether the access credential is due and, if so,
// performs at most one platform refresh. Concurrent callers are collapsed:
// the second caller observes a skip, never a second refresh.
func (m *Manager) SmartRefresh(ctx context.Context) (RefreshResult, error) {
	now := m.clock()

	m.mu.Lock()
	if !m.refresh.LastRefreshAt.IsZero() && now.Sub(m.refresh.LastRefreshAt) < m.cfg.MinRefreshInterval {
		m.mu.Unlock()
		m.metrics.refreshSkip()
		return RefreshResult{Skipped: true}, nil
	}
	if m.refresh.IsRefreshing {
		m.mu.Unlock()
		m.metrics.refreshSkip()
		return RefreshResult{Skipped: true}, nil
	}
	m.refresh.IsRefreshing = true
	m.mu.Unlock()

	// cleared unconditionally so a failure never leaves the manager locked
	defer func() {
		m.mu.Lock()
		m.refresh.IsRefreshing = false
		m.mu.Unlock()
	}()

	session, err := m.client.GetSession(ctx)
	if err != nil {
		return RefreshResult{}, m.failRefresh(ctx, err)
	}
	if !session.Established() {
		// absence of a session is not a refresh failure
		return RefreshResult{}, ErrNoActiveSession
	}

	if session.TimeUntilExpiry(now) > m.cfg.RefreshThreshold {
		m.metrics.refreshSkip()
		return RefreshResult{Skipped: true}, nil
	}

	m.setState(StateRefreshPending)
	m.logger.Info("access credential near expiry, refreshing")

	if _, err := m.client.RefreshSession(ctx); err != nil {
		return RefreshResult{}, m.failRefresh(ctx, err)
	}

	m.mu.Lock()
	m.refresh.LastRefreshAt = now
	m.refresh.RetryCount = 0
	m.state = StateAuthenticated
	m.mu.Unlock()

	m.metrics.refreshSuccess()
	m.logger.Info("session refresh succeeded")
	return RefreshResult{Refreshed: true}, nil
}

func (m *Manager) failRefresh(ctx context.Context, cause error) error {
	m.metrics.refreshFailure()

	m.mu.Lock()
	m.refresh.RetryCount++
	count := m.refresh.RetryCount
	if m.state == StateRefreshPending {
		// the session is still usable until the retry ceiling is hit
		m.state = StateAuthenticated
	}
	m.mu.Unlock()

	m.logger.Error("session refresh failed (attempt %d): %v", count, cause)

	if count >= m.cfg.MaxRetryAttempts {
		// a session that cannot be refreshed after repeated attempts is
		// unrecoverable; tear it down rather than retrying forever
		m.metrics.forcedLogout()
		m.logger.Error("refresh retry ceiling reached, forcing logout")
		m.logout(ctx, true, nil)
		return errors.Wrap(cause, ErrRefreshCeiling.Category, ErrRefreshCeiling.Message).
			WithTextCode(ErrRefreshCeiling.TextCode)
	}

	return wrapPlatformErr(cause, "refresh-session")
}

// EnsureValidToken runs a SmartRefresh pass as a pre-call guard for API
// consumers.
func (m *Manager) EnsureValidToken(ctx context.Context) error {
	_, err := m.SmartRefresh(ctx)
	if err != nil {
		return err
	}
	return nil
}

// CheckAuthStatus probes session and identity liveness in one call.
func (m *Manager) CheckAuthStatus(ctx context.Context) (*Identity, error) {
	session, err := m.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if !session.Established() {
		return nil, ErrNoActiveSession
	}

	identity, err := m.GetIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, ErrNoActiveSession
	}
	return identity, nil
}

// Status returns a diagnostic snapshot of the session and refresh state.
func (m *Manager) Status(ctx context.Context) TokenStatus {
	m.mu.Lock()
	status := TokenStatus{
		IsRefreshing:  m.refresh.IsRefreshing,
		LastRefreshAt: m.refresh.LastRefreshAt,
		RetryCount:    m.refresh.RetryCount,
	}
	m.mu.Unlock()

	session, err := m.client.GetSession(ctx)
	if err != nil || !session.Established() {
		return status
	}

	status.HasSession = true
	status.ExpiresAt = session.ExpiresAt
	status.TimeUntilExpiry = session.TimeUntilExpiry(m.clock())

	m.debugDump("token status", status)
	return status
}

// LogoutOption customizes a logout pass.
type LogoutOption func(*logoutOptions)

type logoutOptions struct {
	navigate func(path string)
}

// WithNavigate supplies an in-app navigation callback, preferred over the
// manager's fallback redirect hook.
func WithNavigate(fn func(path string)) LogoutOption {
	return func(o *logoutOptions) {
		o.navigate = fn
	}
}

// Logout tears the session down: scrub persisted keys, platform sign-out,
// reset refresh bookkeeping, notify listeners, redirect. Every step is
// attempted even when an earlier one fails; a user stuck "logged in" is worse
// than a partially cleaned one.
func (m *Manager) Logout(ctx context.Context, opts ...LogoutOption) error {
	o := &logoutOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return m.logout(ctx, false, o.navigate)
}

func (m *Manager) logout(ctx context.Context, forced bool, navigate func(path string)) error {
	var firstErr error

	m.logger.Info("logout started (forced=%v)", forced)

	if m.store != nil {
		if n, err := m.store.DeleteMatching(ctx, scrubPatterns...); err != nil {
			m.logger.Error("logout local store scrub failed: %v", err)
			firstErr = err
		} else {
			m.logger.Debug("logout scrubbed %d local keys", n)
		}
	}

	if err := m.client.SignOut(ctx); err != nil {
		m.logger.Error("logout platform sign-out failed: %v", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	m.mu.Lock()
	m.refresh = RefreshState{}
	if forced {
		m.state = StateAnonymousForced
	} else {
		m.state = StateAnonymous
	}
	stop := m.autoStop
	m.autoStop = nil
	m.mu.Unlock()

	if stop != nil {
		stop()
	}

	m.emit(EventSignedOut, nil)

	m.redirect(navigate)

	if firstErr != nil {
		return wrapPlatformErr(firstErr, "logout")
	}
	return nil
}

func (m *Manager) redirect(navigate func(path string)) {
	path := m.cfg.LoginPath
	switch {
	case navigate != nil:
		navigate(path)
	case m.navigate != nil:
		m.navigate(path)
	default:
		m.logger.Warn("logout redirect skipped: no navigation hook configured")
	}
}

// StartAutoRefresh arms the recurring refresh timer, subscribes to the
// platform's own session-change notifications, and begins consuming the
// activity source. Calling it again re-arms. The returned disposer cancels
// everything and must be invoked exactly once on teardown.
func (m *Manager) StartAutoRefresh() func() {
	m.mu.Lock()
	previous := m.autoStop
	m.mu.Unlock()
	if previous != nil {
		previous()
	}

	stopCh := make(chan struct{})
	ticker := time.NewTicker(m.cfg.CheckInterval)

	m.mu.Lock()
	m.autoGen++
	generation := m.autoGen
	m.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				result, err := m.SmartRefresh(context.Background())
				if err != nil && !IsNoSessionError(err) {
					m.logger.Error("auto refresh failed: %v", err)
				} else if result.Refreshed {
					m.logger.Debug("auto refresh completed")
				}
			case <-stopCh:
				return
			}
		}
	}()

	unsubscribe := m.client.OnAuthStateChange(func(kind AuthEventKind, session *Session) {
		go func() {
			// let the platform's internal bookkeeping settle first
			m.sleep(m.cfg.SettleDelay)
			select {
			case <-stopCh:
				return
			default:
			}
			m.handlePlatformEvent(kind, session)
		}()
	})

	var detach func()
	if m.activitySrc != nil {
		detach = m.ActivityTracker().Watch(m.activitySrc)
	}

	var once sync.Once
	dispose := func() {
		once.Do(func() {
			close(stopCh)
			ticker.Stop()
			unsubscribe()
			if detach != nil {
				detach()
			}
			m.mu.Lock()
			if m.autoGen == generation {
				m.autoStop = nil
			}
			m.mu.Unlock()
		})
	}

	m.mu.Lock()
	m.autoStop = dispose
	m.mu.Unlock()

	return dispose
}

func (m *Manager) handlePlatformEvent(kind AuthEventKind, session *Session) {
	switch kind {
	case EventSignedIn, EventSignedOut, EventTokenRefreshed:
		m.emit(kind, session)
	default:
		return
	}

	if kind == EventSignedIn || kind == EventTokenRefreshed {
		m.ActivityTracker().Touch()
	}

	if kind == EventTokenRefreshed {
		m.mu.Lock()
		m.refresh.LastRefreshAt = m.clock()
		m.refresh.RetryCount = 0
		m.state = StateAuthenticated
		m.mu.Unlock()
	}
}
