package sessionkit

import "github.com/goliatone/hashid/pkg/hashid"

// Local store key names. Per-identity keys are namespaced through an opaque
// hashid-derived suffix so raw principals never land in the shared store.
const (
	keyLastActivity  = "last_activity_timestamp"
	keyRefreshSignal = "user_refresh_signal"

	keyProfileIDPrefix = "user_profile_id."
)

// scrubPatterns matches every locally persisted key that can carry identity
// fragments. Logout scrubs by pattern, not by allow-list, so stale keys
// written by other subsystems do not leak a previous identity.
var scrubPatterns = []string{
	"%auth%",
	"%session%",
	"%token%",
	"%user%",
	"%profile%",
	"%permission%",
	"%activity%",
}

// identityKey derives a deterministic opaque key for an identity-scoped store
// entry.
func identityKey(prefix, identityID string) string {
	if id, err := hashid.NewUUID(identityID); err == nil {
		return prefix + id.String()
	}
	return prefix + identityID
}
