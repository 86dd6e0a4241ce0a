// Package ledger is the encrypted batch-payment ledger: an append-only log of
// encrypted contributions grouped into batches whose homomorphic totals can
// be revealed, and only revealed, through an oracle-verified decryption
// protocol.
//
// All state lives on one Ledger value guarded by a single mutex. Every
// mutating operation validates its preconditions, builds a ChangeSet,
// commits it through the Store and only then applies it in memory.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-sealed-ledger/internal/access"
	"github.com/0gfoundation/0g-sealed-ledger/internal/ratelimit"
)

type Ledger struct {
	mu sync.RWMutex

	system   common.Address
	chainID  *big.Int
	oracleID common.Address

	reg      *access.Registry
	throttle *ratelimit.Tracker
	payments []*PaymentEntry
	batches  []*Batch
	contexts map[uint64]*DecryptionContext
	reveals  map[uint64]*Reveal

	bootstrapped bool

	store  Store
	oracle Oracle
	clock  ratelimit.Clock
	log    *zap.Logger
}

func New(cfg Config, store Store, oracle Oracle, clock ratelimit.Clock, log *zap.Logger) *Ledger {
	if clock == nil {
		clock = ratelimit.SystemClock
	}
	chainID := cfg.ChainID
	if chainID == nil {
		chainID = new(big.Int)
	}
	reg := access.NewRegistry(cfg.Owner, cfg.CooldownSec)
	for _, p := range cfg.Providers {
		reg.SetProvider(p, true)
	}
	return &Ledger{
		system:   cfg.System,
		chainID:  new(big.Int).Set(chainID),
		oracleID: cfg.Oracle,
		reg:      reg,
		throttle: ratelimit.NewTracker(),
		contexts: make(map[uint64]*DecryptionContext),
		reveals:  make(map[uint64]*Reveal),
		store:    store,
		oracle:   oracle,
		clock:    clock,
		log:      log,
	}
}

// Bootstrap persists the configured owner, cooldown and providers the first
// time the ledger runs against an empty store. It is a no-op afterwards.
func (l *Ledger) Bootstrap(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.bootstrapped {
		return nil
	}
	owner := l.reg.Owner()
	cooldown := l.reg.CooldownSeconds()
	providers := make(map[common.Address]bool)
	for _, p := range l.reg.Providers() {
		providers[p] = true
	}
	cs := &ChangeSet{Owner: &owner, Cooldown: &cooldown, Providers: providers}
	if err := l.commit(ctx, cs); err != nil {
		return err
	}
	l.bootstrapped = true
	return nil
}

func (l *Ledger) commit(ctx context.Context, cs *ChangeSet) error {
	if err := l.store.Commit(ctx, cs); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	l.apply(cs)
	return nil
}

func (l *Ledger) now() int64 { return l.clock.Now().Unix() }

// ── Access control ───────────────────────────────────────────────────────────

func (l *Ledger) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.reg.RequireOwner(caller); err != nil {
		return err
	}
	return l.commit(ctx, &ChangeSet{
		Owner: &newOwner,
		Events: []Event{{
			Kind: EventOwnershipTransferred, At: l.now(), Actor: caller, Subject: ptr(newOwner),
		}},
	})
}

func (l *Ledger) AddProvider(ctx context.Context, caller, id common.Address) error {
	return l.setProvider(ctx, caller, id, true)
}

func (l *Ledger) RemoveProvider(ctx context.Context, caller, id common.Address) error {
	return l.setProvider(ctx, caller, id, false)
}

func (l *Ledger) setProvider(ctx context.Context, caller, id common.Address, allowed bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.reg.RequireOwner(caller); err != nil {
		return err
	}
	kind := EventProviderAdded
	if !allowed {
		kind = EventProviderRemoved
	}
	return l.commit(ctx, &ChangeSet{
		Providers: map[common.Address]bool{id: allowed},
		Events:    []Event{{Kind: kind, At: l.now(), Actor: caller, Subject: ptr(id)}},
	})
}

func (l *Ledger) SetPaused(ctx context.Context, caller common.Address, paused bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.reg.RequireOwner(caller); err != nil {
		return err
	}
	return l.commit(ctx, &ChangeSet{
		Paused: &paused,
		Events: []Event{{Kind: EventPausedSet, At: l.now(), Actor: caller, Paused: ptr(paused)}},
	})
}

// SetCooldownSeconds changes the cooldown for every later gated action.
// Recorded last-action times are kept, so the new value applies at once.
func (l *Ledger) SetCooldownSeconds(ctx context.Context, caller common.Address, sec int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.reg.RequireOwner(caller); err != nil {
		return err
	}
	if sec < 0 {
		return fmt.Errorf("%w: %d seconds is negative", ErrInvalidCooldown, sec)
	}
	return l.commit(ctx, &ChangeSet{
		Cooldown: &sec,
		Events:   []Event{{Kind: EventCooldownSet, At: l.now(), Actor: caller, Cooldown: ptr(sec)}},
	})
}

// ── Read accessors ───────────────────────────────────────────────────────────

func (l *Ledger) Owner() common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reg.Owner()
}

func (l *Ledger) Paused() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reg.Paused()
}

func (l *Ledger) CooldownSeconds() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reg.CooldownSeconds()
}

func (l *Ledger) IsProvider(id common.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reg.IsProvider(id)
}

func (l *Ledger) Providers() []common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reg.Providers()
}

// OracleIdentity is the only caller accepted by OnDecryptionCallback.
func (l *Ledger) OracleIdentity() common.Address { return l.oracleID }

// SystemIdentity is the address mixed into every fingerprint.
func (l *Ledger) SystemIdentity() common.Address { return l.system }

func (l *Ledger) BatchCount() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.batches))
}

func (l *Ledger) Batch(id uint64) (*Batch, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if id >= uint64(len(l.batches)) {
		return nil, false
	}
	return l.batches[id].clone(), true
}

func (l *Ledger) LatestBatch() (*Batch, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.batches) == 0 {
		return nil, false
	}
	return l.batches[len(l.batches)-1].clone(), true
}

func (l *Ledger) PaymentCount() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.payments))
}

func (l *Ledger) Payment(index uint64) (*PaymentEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index >= uint64(len(l.payments)) {
		return nil, false
	}
	p := *l.payments[index]
	p.Ciphertext = p.Ciphertext.Clone()
	return &p, true
}

func (l *Ledger) DecryptionContext(requestID uint64) (*DecryptionContext, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.contexts[requestID]
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}

// Reveal returns the finalized total for a request, if any.
func (l *Ledger) Reveal(requestID uint64) (*Reveal, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.reveals[requestID]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

// PendingDecryptions lists contexts still waiting for their callback,
// ordered by request id.
func (l *Ledger) PendingDecryptions() []DecryptionContext {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []DecryptionContext
	for _, c := range l.contexts {
		if !c.Processed {
			out = append(out, *c)
		}
	}
	sortContexts(out)
	return out
}
