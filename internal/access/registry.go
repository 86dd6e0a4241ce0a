// Package access holds the owner/provider role registry and the global
// kill switch that gate every mutating ledger operation.
package access

import (
	"errors"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotAuthorized = errors.New("not authorized")
	ErrSystemPaused  = errors.New("system paused")
)

// Registry is the access-control state. It is not safe for concurrent use;
// the ledger serialises all access behind its own lock.
type Registry struct {
	owner     common.Address
	providers map[common.Address]bool
	paused    bool
	cooldown  int64
}

func NewRegistry(owner common.Address, cooldownSec int64) *Registry {
	return &Registry{
		owner:     owner,
		providers: make(map[common.Address]bool),
		cooldown:  cooldownSec,
	}
}

func (r *Registry) Owner() common.Address  { return r.owner }
func (r *Registry) Paused() bool           { return r.paused }
func (r *Registry) CooldownSeconds() int64 { return r.cooldown }

// IsProvider reports provider membership; unknown identities are not providers.
func (r *Registry) IsProvider(id common.Address) bool { return r.providers[id] }

// Providers returns the authorised providers sorted by address.
func (r *Registry) Providers() []common.Address {
	out := make([]common.Address, 0, len(r.providers))
	for p, ok := range r.providers {
		if ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

func (r *Registry) RequireOwner(caller common.Address) error {
	if caller != r.owner {
		return ErrNotAuthorized
	}
	return nil
}

func (r *Registry) RequireProvider(caller common.Address) error {
	if !r.providers[caller] {
		return ErrNotAuthorized
	}
	return nil
}

func (r *Registry) RequireActive() error {
	if r.paused {
		return ErrSystemPaused
	}
	return nil
}

// The setters below apply already-validated changes.

func (r *Registry) SetOwner(owner common.Address) { r.owner = owner }
func (r *Registry) SetPaused(paused bool)         { r.paused = paused }
func (r *Registry) SetCooldown(sec int64)         { r.cooldown = sec }

func (r *Registry) SetProvider(id common.Address, allowed bool) {
	if allowed {
		r.providers[id] = true
		return
	}
	delete(r.providers, id)
}
