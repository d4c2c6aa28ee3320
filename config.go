package sessionkit

import "time"

// Config holds the cadence and ceiling knobs for the session runtime. The
// zero value is usable; Normalize fills in defaults.
type Config struct {
	// RefreshThreshold is how close to expiry a token must be before
	// SmartRefresh asks the platform for a new one.
	RefreshThreshold time.Duration

	// MinRefreshInterval is the minimum spacing between refresh attempts.
	// Refreshing more often is never useful because platform token lifetimes
	// are measured in tens of minutes.
	MinRefreshInterval time.Duration

	// MaxRetryAttempts is the consecutive-failure ceiling; crossing it tears
	// the session down.
	MaxRetryAttempts int

	// CheckInterval is the auto-refresh timer period.
	CheckInterval time.Duration

	// NotifyMinInterval gates auth event fan-out so the platform and the
	// manager signaling the same transition cannot storm listeners.
	NotifyMinInterval time.Duration

	// SettleDelay is applied before re-emitting platform notifications, giving
	// the platform's own bookkeeping time to settle.
	SettleDelay time.Duration

	// RecountDebounce delays the full unread recount after stream events.
	RecountDebounce time.Duration

	// PermissionTTL bounds how long a memoized permission predicate may be
	// served without recomputation.
	PermissionTTL time.Duration

	// LoginPath is where Logout redirects.
	LoginPath string
}

// Normalize returns a copy with defaults applied to zero fields.
func (c Config) Normalize() Config {
	if c.RefreshThreshold <= 0 {
		c.RefreshThreshold = 5 * time.Minute
	}
	if c.MinRefreshInterval <= 0 {
		c.MinRefreshInterval = time.Minute
	}
	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = 3
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 5 * time.Minute
	}
	if c.NotifyMinInterval <= 0 {
		c.NotifyMinInterval = time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 10 * time.Millisecond
	}
	if c.RecountDebounce <= 0 {
		c.RecountDebounce = 300 * time.Millisecond
	}
	if c.PermissionTTL <= 0 {
		c.PermissionTTL = 5 * time.Minute
	}
	if c.LoginPath == "" {
		c.LoginPath = "/login"
	}
	return c
}
