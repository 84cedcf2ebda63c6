// Package registry is the source of truth for identity ownership. It
// binds 32-byte identity hashes to owner handles (a bijection) and
// holds the authentication secret for each identity.
package registry

import (
	"strings"
	"sync"
	"time"

	"github.com/kwachapay/ledger-service/internal/lederr"
	"github.com/kwachapay/ledger-service/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when the identity is unknown so that
// Authenticate costs the same and answers false on both paths.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Registry owns the identity maps and the caller ACL.
type Registry struct {
	mu         sync.RWMutex
	owner      string // owning principal, exclusive ACL/parameter rights
	authorized map[string]bool
	byID       map[string]*models.Identity
	byOwner    map[string]string // owner handle -> identity id
}

// New creates a registry whose ACL is managed by ownerPrincipal.
// The owning principal is itself authorized to mutate.
func New(ownerPrincipal string) *Registry {
	return &Registry{
		owner:      ownerPrincipal,
		authorized: map[string]bool{ownerPrincipal: true},
		byID:       make(map[string]*models.Identity),
		byOwner:    make(map[string]string),
	}
}

func (r *Registry) isAuthorized(caller string) bool {
	return r.authorized[caller]
}

// Register binds id to owner with the given secret hash.
func (r *Registry) Register(caller, id, owner, secretHash string) (*models.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isAuthorized(caller) {
		return nil, lederr.ErrNotAuthorized
	}
	if strings.TrimSpace(owner) == "" {
		return nil, lederr.ErrInvalidOwner
	}
	if _, ok := r.byID[id]; ok {
		return nil, lederr.ErrAlreadyRegistered
	}
	if _, ok := r.byOwner[owner]; ok {
		return nil, lederr.ErrDuplicateOwner
	}

	stored, err := bcrypt.GenerateFromPassword([]byte(secretHash), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	identity := &models.Identity{
		ID:         id,
		Owner:      owner,
		SecretHash: string(stored),
		Registered: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.byID[id] = identity
	r.byOwner[owner] = id
	return identity, nil
}

// Resolve returns the owner handle for id, or "" when unregistered.
func (r *Registry) Resolve(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if identity, ok := r.byID[id]; ok {
		return identity.Owner
	}
	return ""
}

// ReverseResolve returns the identity id for an owner handle, or "".
func (r *Registry) ReverseResolve(owner string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byOwner[owner]
}

// IsRegistered reports whether id is bound.
func (r *Registry) IsRegistered(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

// Authenticate checks candidateHash against the stored secret. It
// answers false uniformly for "unregistered" and "wrong secret";
// callers must not be able to tell the two apart.
func (r *Registry) Authenticate(id, candidateHash string) bool {
	r.mu.RLock()
	identity, ok := r.byID[id]
	r.mu.RUnlock()

	stored := dummyHash
	if ok {
		stored = identity.SecretHash
	}
	err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidateHash))
	return ok && err == nil
}

// UpdateSecret replaces the secret hash for a registered identity.
func (r *Registry) UpdateSecret(caller, id, newHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isAuthorized(caller) {
		return lederr.ErrNotAuthorized
	}
	identity, ok := r.byID[id]
	if !ok {
		return lederr.ErrNotRegistered
	}
	stored, err := bcrypt.GenerateFromPassword([]byte(newHash), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	identity.SecretHash = string(stored)
	identity.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return nil
}

// ReassignOwner is the recovery path: it atomically clears the old
// reverse mapping and binds id to newOwner.
func (r *Registry) ReassignOwner(caller, id, newOwner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isAuthorized(caller) {
		return lederr.ErrNotAuthorized
	}
	identity, ok := r.byID[id]
	if !ok {
		return lederr.ErrNotRegistered
	}
	if strings.TrimSpace(newOwner) == "" {
		return lederr.ErrInvalidOwner
	}
	if bound, ok := r.byOwner[newOwner]; ok && bound != id {
		return lederr.ErrDuplicateOwner
	}

	delete(r.byOwner, identity.Owner)
	identity.Owner = newOwner
	identity.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	r.byOwner[newOwner] = id
	return nil
}

// GrantAuthorization allows principal to call mutating operations.
func (r *Registry) GrantAuthorization(caller, principal string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return lederr.ErrNotOwner
	}
	r.authorized[principal] = true
	return nil
}

// RevokeAuthorization removes principal from the ACL. The owning
// principal cannot revoke itself.
func (r *Registry) RevokeAuthorization(caller, principal string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return lederr.ErrNotOwner
	}
	if principal == r.owner {
		return lederr.ErrNotAuthorized
	}
	delete(r.authorized, principal)
	return nil
}

// Owner returns the owning principal.
func (r *Registry) Owner() string {
	return r.owner
}

// IsAuthorizedPrincipal reports whether principal may call mutating
// operations. Read-only; used by the command layer as its ACL check.
func (r *Registry) IsAuthorizedPrincipal(principal string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.authorized[principal]
}

// Restore inserts a previously journaled identity without re-hashing
// its secret. Boot-time only, before the registry serves calls.
func (r *Registry) Restore(identity models.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := identity
	r.byID[identity.ID] = &copied
	r.byOwner[identity.Owner] = identity.ID
}

// Snapshot returns a copy of all identities for journaling.
func (r *Registry) Snapshot() []models.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Identity, 0, len(r.byID))
	for _, identity := range r.byID {
		out = append(out, *identity)
	}
	return out
}
