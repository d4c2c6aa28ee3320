package sessionkit

import (
	"fmt"
	"time"
)

// Session bundles the credentials and identity claims that authorize this
// client against the remote platform. It is owned by the Manager, replaced
// wholesale on refresh or sign-in, and cleared on logout; nothing else
// mutates it.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Identity     *Identity `json:"identity,omitempty"`
}

// IdentityID returns the id of the session's identity, or "" when anonymous.
func (s *Session) IdentityID() string {
	if s == nil || s.Identity == nil {
		return ""
	}
	return s.Identity.ID
}

// TimeUntilExpiry reports how long the access credential remains valid
// relative to now.
func (s *Session) TimeUntilExpiry(now time.Time) time.Duration {
	if s == nil || s.ExpiresAt.IsZero() {
		return 0
	}
	return s.ExpiresAt.Sub(now)
}

// Established reports whether the session carries a usable access credential.
func (s *Session) Established() bool {
	return s != nil && s.AccessToken != "" && !s.ExpiresAt.IsZero()
}

func (s Session) String() string {
	expires := "<nil>"
	if !s.ExpiresAt.IsZero() {
		expires = s.ExpiresAt.Format(time.RFC1123)
	}
	return fmt.Sprintf("identity=%s exp=%s", s.IdentityID(), expires)
}

// SessionState tracks where the Manager sits in the session lifecycle.
type SessionState string

const (
	StateAnonymous       SessionState = "anonymous"
	StateAuthenticating  SessionState = "authenticating"
	StateAuthenticated   SessionState = "authenticated"
	StateRefreshPending  SessionState = "refresh_pending"
	StateAnonymousForced SessionState = "anonymous_forced"
)

// RefreshState mirrors the bookkeeping around proactive refreshes. IsRefreshing
// is true for the entire duration of at most one in-flight refresh.
type RefreshState struct {
	IsRefreshing   bool      `json:"is_refreshing"`
	LastRefreshAt  time.Time `json:"last_refresh_at"`
	RetryCount     int       `json:"retry_count"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// RefreshResult describes the outcome of one SmartRefresh pass.
type RefreshResult struct {
	Refreshed bool `json:"refreshed"`
	Skipped   bool `json:"skipped"`
}

// TokenStatus is a diagnostic snapshot of the session and refresh state.
type TokenStatus struct {
	HasSession      bool          `json:"has_session"`
	ExpiresAt       time.Time     `json:"expires_at,omitempty"`
	TimeUntilExpiry time.Duration `json:"time_until_expiry,omitempty"`
	IsRefreshing    bool          `json:"is_refreshing"`
	LastRefreshAt   time.Time     `json:"last_refresh_at"`
	RetryCount      int           `json:"retry_count"`
}
