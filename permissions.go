package sessionkit

import (
	"context"
	"sync"
	"time"
)

// superAdminRole is the platform role claim that bypasses permission checks.
const superAdminRole = "service_role"

type permCacheEntry struct {
	result     bool
	computedAt time.Time
}

func (e permCacheEntry) fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.computedAt) < ttl
}

// Permissions memoizes permission and role predicates over the identity's
// loaded grant sets. Entries older than the TTL are recomputed; the only
// invalidation path is RefreshPermissions, which clears everything.
type Permissions struct {
	manager *Manager
	source  PermissionSource
	ttl     time.Duration
	clock   func() time.Time
	logger  Logger

	mu         sync.Mutex
	roles      []RoleGrant
	perms      []PermissionGrant
	superAdmin bool
	permCache  map[string]permCacheEntry
	roleCache  map[string]permCacheEntry
}

// NewPermissions builds the permission layer on top of the manager's current
// identity.
func NewPermissions(manager *Manager, source PermissionSource) *Permissions {
	return &Permissions{
		manager:   manager,
		source:    source,
		ttl:       manager.cfg.PermissionTTL,
		clock:     manager.clock,
		logger:    manager.logger,
		permCache: map[string]permCacheEntry{},
		roleCache: map[string]permCacheEntry{},
	}
}

// RefreshPermissions refetches the role and permission sets for the current
// identity and clears both predicate caches wholesale.
func (p *Permissions) RefreshPermissions(ctx context.Context) error {
	identity, err := p.manager.GetIdentity(ctx)
	if err != nil {
		return err
	}
	if identity == nil {
		p.reset()
		return ErrNoActiveSession
	}

	roles, err := p.source.FetchRoles(ctx, identity.ID)
	if err != nil {
		p.logger.Error("role fetch failed: %v", err)
		return wrapPlatformErr(err, "fetch-roles")
	}

	perms, err := p.source.FetchPermissions(ctx, identity.ID)
	if err != nil {
		p.logger.Error("permission fetch failed: %v", err)
		return wrapPlatformErr(err, "fetch-permissions")
	}

	superAdmin := false
	if session, err := p.manager.GetSession(ctx); err == nil && session.Established() {
		superAdmin = roleClaim(session.AccessToken) == superAdminRole
	}

	p.mu.Lock()
	p.roles = roles
	p.perms = perms
	p.superAdmin = superAdmin
	p.permCache = map[string]permCacheEntry{}
	p.roleCache = map[string]permCacheEntry{}
	p.mu.Unlock()

	p.logger.Debug("permissions refreshed: %d roles, %d permissions", len(roles), len(perms))
	return nil
}

func (p *Permissions) reset() {
	p.mu.Lock()
	p.roles = nil
	p.perms = nil
	p.superAdmin = false
	p.permCache = map[string]permCacheEntry{}
	p.roleCache = map[string]permCacheEntry{}
	p.mu.Unlock()
}

// HasPermission reports whether the identity holds the named permission.
// Results are memoized for the configured TTL.
func (p *Permissions) HasPermission(name string) bool {
	now := p.clock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.permCache[name]; ok && entry.fresh(now, p.ttl) {
		return entry.result
	}

	result := p.superAdmin
	if !result {
		for _, grant := range p.perms {
			if grant.Name == name {
				result = true
				break
			}
		}
	}

	p.permCache[name] = permCacheEntry{result: result, computedAt: now}
	return result
}

// HasRole reports whether the identity holds the named role, memoized like
// HasPermission.
func (p *Permissions) HasRole(name string) bool {
	now := p.clock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.roleCache[name]; ok && entry.fresh(now, p.ttl) {
		return entry.result
	}

	result := false
	for _, grant := range p.roles {
		if grant.Name == name {
			result = true
			break
		}
	}

	p.roleCache[name] = permCacheEntry{result: result, computedAt: now}
	return result
}

// HasAnyPermission reports whether any of the named permissions is held.
func (p *Permissions) HasAnyPermission(names ...string) bool {
	if p.IsSuperAdmin() {
		return true
	}
	for _, name := range names {
		if p.HasPermission(name) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every named permission is held.
func (p *Permissions) HasAllPermissions(names ...string) bool {
	if p.IsSuperAdmin() {
		return true
	}
	for _, name := range names {
		if !p.HasPermission(name) {
			return false
		}
	}
	return true
}

// HasAnyRole reports whether any of the named roles is held.
func (p *Permissions) HasAnyRole(names ...string) bool {
	for _, name := range names {
		if p.HasRole(name) {
			return true
		}
	}
	return false
}

// IsSuperAdmin reports whether the access credential carries the platform's
// super-admin role claim.
func (p *Permissions) IsSuperAdmin() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.superAdmin
}

// RoleGrants returns a copy of the loaded role grants.
func (p *Permissions) RoleGrants() []RoleGrant {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]RoleGrant, len(p.roles))
	copy(out, p.roles)
	return out
}

// PermissionGrants returns a copy of the loaded permission grants.
func (p *Permissions) PermissionGrants() []PermissionGrant {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PermissionGrant, len(p.perms))
	copy(out, p.perms)
	return out
}
