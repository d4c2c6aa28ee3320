package sessionkit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of the authenticated principal.
type Identity struct {
	ID       string         `json:"id"`
	Email    string         `json:"email,omitempty"`
	Phone    string         `json:"phone,omitempty"`
	Role     string         `json:"role,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IdentityPatch carries partial identity updates. Nil fields are left alone.
type IdentityPatch struct {
	Email    *string        `json:"email,omitempty"`
	Password *string        `json:"password,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// OTPPurpose enumerates the one-time-code flows the platform supports.
type OTPPurpose string

const (
	OTPPurposeInvite    OTPPurpose = "invite"
	OTPPurposeRecovery  OTPPurpose = "recovery"
	OTPPurposeSignup    OTPPurpose = "signup"
	OTPPurposeMagicLink OTPPurpose = "magiclink"
	OTPPurposeEmail     OTPPurpose = "email"
)

// PlatformClient is the boundary to the remote identity service. Every method
// maps to one platform credential operation; implementations normalize their
// transport errors before returning.
type PlatformClient interface {
	SignInWithPassword(ctx context.Context, principal, secret string) (*Session, error)
	SetSession(ctx context.Context, accessToken, refreshToken string) (*Session, error)
	VerifyOTP(ctx context.Context, principal, code string, purpose OTPPurpose) (*Session, error)
	UpdateIdentity(ctx context.Context, patch IdentityPatch) (*Identity, error)
	RequestCredentialReset(ctx context.Context, principal, redirectTo string) error
	RegisterIdentity(ctx context.Context, principal, secret string) (*Session, error)
	RefreshSession(ctx context.Context) (*Session, error)
	SignOut(ctx context.Context) error

	// GetSession returns (nil, nil) when no session is established.
	GetSession(ctx context.Context) (*Session, error)
	GetIdentity(ctx context.Context) (*Identity, error)

	// OnAuthStateChange registers for the platform's own session-change
	// notifications. The returned func unsubscribes.
	OnAuthStateChange(fn func(kind AuthEventKind, session *Session)) func()
}

// Store is the shared local key-value store (the browser-localStorage analog).
// It is shared across processes of the same installation; callers treat it as
// append/overwrite-only shared state.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error

	// DeleteMatching removes every key matching any of the SQL-LIKE patterns
	// and reports how many entries were removed.
	DeleteMatching(ctx context.Context, patterns ...string) (int, error)
}

// SnapshotStore persists per-identity inbox snapshots used as the load
// fallback when the remote fetch fails.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, profileID int64, payload []byte) error
	LoadSnapshot(ctx context.Context, profileID int64) ([]byte, time.Time, error)
}

// InboxAPI is the query/RPC surface for the notification inbox.
type InboxAPI interface {
	FetchNotifications(ctx context.Context, profileID int64) ([]Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID, profileID int64) error
	MarkHandled(ctx context.Context, id uuid.UUID, profileID int64) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ProfileResolver maps an identity id to its numeric profile id.
type ProfileResolver interface {
	ResolveProfileID(ctx context.Context, identityID string) (int64, error)
}

// ChangeKind enumerates realtime channel event kinds.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "INSERT"
	ChangeUpdate ChangeKind = "UPDATE"
	ChangeDelete ChangeKind = "DELETE"
)

// ChangeEvent is one server-pushed mutation on the notifications relation,
// already filtered to a single profile id.
type ChangeEvent struct {
	Kind ChangeKind
	New  *Notification
	Old  *Notification
}

// StreamOpener opens one filtered realtime channel per profile id. The second
// return value closes the channel.
type StreamOpener interface {
	OpenChannel(ctx context.Context, profileID int64) (<-chan ChangeEvent, func(), error)
}

// DesktopNotifier surfaces newly arrived notifications to the host system.
// Delivery is fire-and-forget and never affects the data path.
type DesktopNotifier interface {
	Granted() bool
	Notify(title, body string)
}

// PermissionSource retrieves the role and permission sets for an identity.
type PermissionSource interface {
	FetchRoles(ctx context.Context, identityID string) ([]RoleGrant, error)
	FetchPermissions(ctx context.Context, identityID string) ([]PermissionGrant, error)
}

// RoleGrant is one role assigned to an identity.
type RoleGrant struct {
	Name        string     `json:"name"`
	DisplayName string     `json:"display_name,omitempty"`
	GrantedAt   *time.Time `json:"granted_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// PermissionGrant is one permission derived from an identity's roles.
type PermissionGrant struct {
	Name     string `json:"name"`
	Resource string `json:"resource,omitempty"`
	Action   string `json:"action,omitempty"`
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SESSIONKIT "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SESSIONKIT "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SESSIONKIT "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SESSIONKIT "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
