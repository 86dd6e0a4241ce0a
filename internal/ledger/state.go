package ledger

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-sealed-ledger/internal/ratelimit"
)

// ChangeSet is everything one successful operation writes. The store
// commits it atomically before the ledger applies it in memory, so a failed
// commit leaves both sides untouched.
type ChangeSet struct {
	Owner     *common.Address
	Paused    *bool
	Cooldown  *int64
	Providers map[common.Address]bool
	Batch     *Batch
	Payment   *PaymentEntry
	Context   *DecryptionContext
	Reveal    *Reveal
	Throttle  []ThrottleRecord
	Events    []Event
}

// Snapshot is the full persisted state, as loaded at startup.
type Snapshot struct {
	Owner     *common.Address
	Paused    bool
	Cooldown  *int64
	Providers []common.Address
	Batches   []*Batch
	Payments  []*PaymentEntry
	Contexts  []*DecryptionContext
	Reveals   []*Reveal
	Throttle  []ThrottleRecord
}

// apply folds a committed change set into memory. Caller holds l.mu.
func (l *Ledger) apply(cs *ChangeSet) {
	if cs.Owner != nil {
		l.reg.SetOwner(*cs.Owner)
	}
	if cs.Paused != nil {
		l.reg.SetPaused(*cs.Paused)
	}
	if cs.Cooldown != nil {
		l.reg.SetCooldown(*cs.Cooldown)
	}
	for id, ok := range cs.Providers {
		l.reg.SetProvider(id, ok)
	}
	if cs.Batch != nil {
		if cs.Batch.ID == uint64(len(l.batches)) {
			l.batches = append(l.batches, cs.Batch)
		} else {
			l.batches[cs.Batch.ID] = cs.Batch
		}
	}
	if cs.Payment != nil {
		l.payments = append(l.payments, cs.Payment)
	}
	if cs.Context != nil {
		l.contexts[cs.Context.RequestID] = cs.Context
	}
	if cs.Reveal != nil {
		l.reveals[cs.Reveal.RequestID] = cs.Reveal
	}
	for _, r := range cs.Throttle {
		l.throttle.Record(r.Class, r.Who, r.At)
	}
	for _, e := range cs.Events {
		l.log.Info(string(e.Kind), e.fields()...)
	}
}

// Restore replaces the in-memory state with a loaded snapshot. A snapshot
// without an owner is a fresh deployment; the configured owner, cooldown
// and providers are kept and Bootstrap should be called to persist them.
func (l *Ledger) Restore(s *Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s.Owner != nil {
		l.reg.SetOwner(*s.Owner)
		for _, p := range l.reg.Providers() {
			l.reg.SetProvider(p, false)
		}
		for _, p := range s.Providers {
			l.reg.SetProvider(p, true)
		}
	}
	if s.Cooldown != nil {
		l.reg.SetCooldown(*s.Cooldown)
	}
	l.reg.SetPaused(s.Paused)

	l.batches = append(l.batches[:0], s.Batches...)
	l.payments = append(l.payments[:0], s.Payments...)
	l.contexts = make(map[uint64]*DecryptionContext, len(s.Contexts))
	for _, c := range s.Contexts {
		l.contexts[c.RequestID] = c
	}
	l.reveals = make(map[uint64]*Reveal, len(s.Reveals))
	for _, r := range s.Reveals {
		l.reveals[r.RequestID] = r
	}
	l.throttle = ratelimit.NewTracker()
	for _, r := range s.Throttle {
		l.throttle.Record(r.Class, r.Who, r.At)
	}
	l.bootstrapped = s.Owner != nil
}
