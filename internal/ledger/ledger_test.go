package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-sealed-ledger/internal/fhe"
)

// ── helpers ───────────────────────────────────────────────────────────────────

var (
	testOwner    = common.HexToAddress("0x0000000000000000000000000000000000000A01")
	testProvider = common.HexToAddress("0x0000000000000000000000000000000000000B01")
	testOther    = common.HexToAddress("0x0000000000000000000000000000000000000C01")
	testOracle   = common.HexToAddress("0x0000000000000000000000000000000000000D01")
	testSystem   = common.HexToAddress("0xDeAdBeEfDeAdBeEfDeAdBeEfDeAdBeEfDeAdBeEf")
	testChainID  = big.NewInt(16602)
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memStore records commits; fail makes the next Commit return an error.
type memStore struct {
	mu      sync.Mutex
	commits []*ChangeSet
	fail    error
}

func (s *memStore) Commit(_ context.Context, cs *ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		err := s.fail
		s.fail = nil
		return err
	}
	s.commits = append(s.commits, cs)
	return nil
}

func (s *memStore) events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, cs := range s.commits {
		out = append(out, cs.Events...)
	}
	return out
}

// fakeOracle decrypts with a real secret key and accepts a proof equal to
// "ok". requests records every queued ciphertext set.
type fakeOracle struct {
	mu       sync.Mutex
	next     uint64
	requests map[uint64][][]byte
	sk       *fhe.SecretKey
	err      error
}

func (o *fakeOracle) RequestDecryption(_ context.Context, cts [][]byte) (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return 0, o.err
	}
	o.next++
	if o.requests == nil {
		o.requests = make(map[uint64][][]byte)
	}
	o.requests[o.next] = cts
	return o.next, nil
}

func (o *fakeOracle) VerifyDecryptionProof(_ uint64, _ [][]byte, _, proof []byte) bool {
	return string(proof) == "ok"
}

// answer decrypts the ciphertext queued for id, as the real oracle would.
func (o *fakeOracle) answer(t *testing.T, id uint64) []byte {
	t.Helper()
	o.mu.Lock()
	cts := o.requests[id]
	o.mu.Unlock()
	ct, err := fhe.Parse(cts[0])
	if err != nil {
		t.Fatalf("parse queued ciphertext: %v", err)
	}
	total, err := o.sk.Decrypt(ct, 1<<20)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	return EncodePayload(total)
}

type harness struct {
	l      *Ledger
	store  *memStore
	oracle *fakeOracle
	clock  *fakeClock
	pk     *fhe.PublicKey
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	pk, sk, err := fhe.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		store:  &memStore{},
		oracle: &fakeOracle{sk: sk},
		clock:  &fakeClock{t: time.Unix(1_700_000_000, 0)},
		pk:     pk,
	}
	h.l = New(Config{
		Owner:       testOwner,
		System:      testSystem,
		ChainID:     testChainID,
		Oracle:      testOracle,
		CooldownSec: 10,
		Providers:   []common.Address{testProvider},
	}, h.store, h.oracle, h.clock, zap.NewNop())
	return h
}

func (h *harness) encrypt(t *testing.T, v uint32) *fhe.Ciphertext {
	t.Helper()
	ct, err := h.pk.EncryptValue(v)
	if err != nil {
		t.Fatal(err)
	}
	return ct
}

// settle advances the clock past the cooldown.
func (h *harness) settle() { h.clock.Advance(11 * time.Second) }

func mustNil(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func mustIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}

// ── Bootstrap ─────────────────────────────────────────────────────────────────

func TestBootstrap_PersistsConfiguredState(t *testing.T) {
	h := newHarness(t)
	mustNil(t, h.l.Bootstrap(context.Background()))
	mustNil(t, h.l.Bootstrap(context.Background()))

	if len(h.store.commits) != 1 {
		t.Fatalf("expected one bootstrap commit, got %d", len(h.store.commits))
	}
	cs := h.store.commits[0]
	if *cs.Owner != testOwner || *cs.Cooldown != 10 || !cs.Providers[testProvider] {
		t.Fatalf("bootstrap change set incomplete: %+v", cs)
	}
}

func TestRestore_SkipsBootstrap(t *testing.T) {
	h := newHarness(t)
	owner := testOther
	cooldown := int64(3)
	h.l.Restore(&Snapshot{Owner: &owner, Cooldown: &cooldown, Providers: []common.Address{testOther}})
	mustNil(t, h.l.Bootstrap(context.Background()))

	if len(h.store.commits) != 0 {
		t.Fatal("bootstrap must not run over a restored snapshot")
	}
	if h.l.Owner() != testOther || h.l.CooldownSeconds() != 3 {
		t.Fatal("snapshot not applied")
	}
	if h.l.IsProvider(testProvider) || !h.l.IsProvider(testOther) {
		t.Fatal("snapshot providers must replace configured ones")
	}
}

// ── Access control ────────────────────────────────────────────────────────────

func TestTransferOwnership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	mustIs(t, h.l.TransferOwnership(ctx, testOther, testOther), ErrNotAuthorized)
	mustNil(t, h.l.TransferOwnership(ctx, testOwner, testOther))
	if h.l.Owner() != testOther {
		t.Fatalf("owner: got %s", h.l.Owner().Hex())
	}
	mustIs(t, h.l.SetPaused(ctx, testOwner, true), ErrNotAuthorized)

	ev := h.store.events()
	if len(ev) != 1 || ev[0].Kind != EventOwnershipTransferred || *ev[0].Subject != testOther {
		t.Fatalf("unexpected events: %+v", ev)
	}
}

func TestAddRemoveProvider_OwnerOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	mustIs(t, h.l.AddProvider(ctx, testProvider, testOther), ErrNotAuthorized)
	mustNil(t, h.l.AddProvider(ctx, testOwner, testOther))
	mustNil(t, h.l.AddProvider(ctx, testOwner, testOther))
	if !h.l.IsProvider(testOther) {
		t.Fatal("provider not added")
	}
	mustNil(t, h.l.RemoveProvider(ctx, testOwner, testOther))
	mustNil(t, h.l.RemoveProvider(ctx, testOwner, testOther))
	if h.l.IsProvider(testOther) {
		t.Fatal("provider not removed")
	}
	// each call still emits its event
	if n := len(h.store.events()); n != 4 {
		t.Fatalf("expected 4 events, got %d", n)
	}
}

func TestSetPaused_BlocksMutationsNotReads(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.l.OpenBatch(ctx, testProvider)
	mustNil(t, err)
	h.settle()

	mustNil(t, h.l.SetPaused(ctx, testOwner, true))

	_, err = h.l.OpenBatch(ctx, testProvider)
	mustIs(t, err, ErrSystemPaused)
	_, err = h.l.SubmitPayment(ctx, testProvider, h.encrypt(t, 1))
	mustIs(t, err, ErrSystemPaused)
	_, err = h.l.CloseBatch(ctx, testProvider)
	mustIs(t, err, ErrSystemPaused)
	_, err = h.l.RequestDecryption(ctx, testOther, 0)
	mustIs(t, err, ErrSystemPaused)

	if !h.l.Paused() || h.l.BatchCount() != 1 {
		t.Fatal("reads must keep working while paused")
	}

	mustNil(t, h.l.SetPaused(ctx, testOwner, false))
	_, err = h.l.SubmitPayment(ctx, testProvider, h.encrypt(t, 1))
	mustNil(t, err)
}

func TestSetCooldownSeconds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mustIs(t, h.l.SetCooldownSeconds(ctx, testOther, 1), ErrNotAuthorized)
	mustIs(t, h.l.SetCooldownSeconds(ctx, testOwner, -1), ErrInvalidCooldown)
	mustNil(t, h.l.SetCooldownSeconds(ctx, testOwner, 100))
	if h.l.CooldownSeconds() != 100 {
		t.Fatalf("cooldown: got %d", h.l.CooldownSeconds())
	}
}

func TestCommitFailure_LeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.fail = errors.New("redis down")

	if _, err := h.l.OpenBatch(ctx, testProvider); err == nil {
		t.Fatal("expected commit error")
	}
	if h.l.BatchCount() != 0 {
		t.Fatal("batch applied despite failed commit")
	}
	// cooldown was not recorded either
	_, err := h.l.OpenBatch(ctx, testProvider)
	mustNil(t, err)
}
