// Package allowlist projects AML attestations onto an external allow/deny
// registry of accounts.
package allowlist

//go:generate mockgen -source=registry.go -destination=mocks/mocks.go -package=mocks Registry

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	dErrors "passport/pkg/domain-errors"
)

// Status is the registry membership of an account.
type Status string

const (
	StatusNone    Status = "NONE"
	StatusAllowed Status = "ALLOWED"
	StatusAdmin   Status = "ADMIN"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusNone, StatusAllowed, StatusAdmin:
		return true
	}
	return false
}

var (
	ErrInvalidStatus        = dErrors.New(dErrors.CodeValidation, "INVALID_STATUS")
	ErrProtectedStatus      = dErrors.New(dErrors.CodeConflict, "PROTECTED_STATUS")
	ErrNotAdmin             = dErrors.New(dErrors.CodeForbidden, "NOT_ADMIN")
	ErrCannotRevokeOwnAdmin = dErrors.New(dErrors.CodeForbidden, "CANNOT_REVOKE_OWN_ADMIN")
)

// Registry is the external allow-list. Setting a non-admin status on an ADMIN
// account fails with ErrProtectedStatus; admins leave only through RemoveAdmin.
type Registry interface {
	Status(ctx context.Context, account common.Address) (Status, error)
	SetStatus(ctx context.Context, account common.Address, status Status) error
	RemoveAdmin(ctx context.Context, caller, account common.Address) error
}

// MemoryRegistry is an in-process Registry.
type MemoryRegistry struct {
	mu       sync.RWMutex
	statuses map[common.Address]Status
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{statuses: make(map[common.Address]Status)}
}

func (r *MemoryRegistry) Status(_ context.Context, account common.Address) (Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.statuses[account]; ok {
		return s, nil
	}
	return StatusNone, nil
}

func (r *MemoryRegistry) SetStatus(_ context.Context, account common.Address, status Status) error {
	if !status.IsValid() {
		return ErrInvalidStatus
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.statuses[account] == StatusAdmin && status != StatusAdmin {
		return ErrProtectedStatus
	}
	if status == StatusNone {
		delete(r.statuses, account)
		return nil
	}
	r.statuses[account] = status
	return nil
}

// RemoveAdmin demotes account to NONE. caller must be an admin other than account.
func (r *MemoryRegistry) RemoveAdmin(_ context.Context, caller, account common.Address) error {
	if caller == account {
		return ErrCannotRevokeOwnAdmin
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.statuses[caller] != StatusAdmin {
		return ErrNotAdmin
	}
	delete(r.statuses, account)
	return nil
}
