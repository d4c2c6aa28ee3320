// Package sessionkit keeps a client-resident authentication session alive and
// consistent against a remote identity/data/realtime platform, and keeps local
// derived state (a notification inbox, permission lookups) converged with the
// platform's push stream.
//
// Session lifecycle:
//   - Manager owns the current session, serializes proactive token refreshes,
//     and drives a forced-logout cascade once the retry ceiling is crossed.
//     Construct one Manager per process and start it with StartAutoRefresh;
//     the returned disposer tears down the timer, the platform subscription,
//     and the activity feed.
//
// Auth events:
//   - Listeners subscribe through Manager.OnAuthStateChange and receive
//     SIGNED_IN / SIGNED_OUT / TOKEN_REFRESHED transitions in emission order.
//     Emission is rate gated so the platform and the Manager double-signaling
//     the same transition never storms subscribers.
//
// Realtime inbox:
//   - Reconciler mirrors one identity's notification inbox against a filtered
//     change channel, applies user mutations optimistically with rollback on
//     remote rejection, and treats a full Load as the convergence backstop.
//
// Permissions:
//   - Permissions memoizes role/permission predicates with a TTL and clears
//     everything wholesale on RefreshPermissions; role changes are rare enough
//     that per-key invalidation is not worth the bookkeeping.
package sessionkit
