package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// sealedBatch opens batch 0, submits values and closes it.
func (h *harness) sealedBatch(t *testing.T, values ...uint32) uint64 {
	t.Helper()
	ctx := context.Background()
	id, err := h.l.OpenBatch(ctx, testProvider)
	mustNil(t, err)
	for _, v := range values {
		h.settle()
		_, err := h.l.SubmitPayment(ctx, testProvider, h.encrypt(t, v))
		mustNil(t, err)
	}
	_, err = h.l.CloseBatch(ctx, testProvider)
	mustNil(t, err)
	return id
}

func TestScenario_OpenSubmitCloseReveal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	batchID := h.sealedBatch(t, 10, 15)

	dc, err := h.l.RequestDecryption(ctx, testOther, batchID)
	mustNil(t, err)
	if dc.Processed || dc.BatchID != batchID {
		t.Fatalf("unexpected context: %+v", dc)
	}

	total, err := h.l.OnDecryptionCallback(ctx, testOracle, dc.RequestID, h.oracle.answer(t, dc.RequestID), []byte("ok"))
	mustNil(t, err)
	if total != 25 {
		t.Fatalf("total: got %d, want 25", total)
	}

	got, _ := h.l.DecryptionContext(dc.RequestID)
	if !got.Processed || got.Fingerprint != dc.Fingerprint {
		t.Fatalf("context after finalize: %+v", got)
	}
	rv, ok := h.l.Reveal(dc.RequestID)
	if !ok || rv.Total != 25 {
		t.Fatalf("reveal: %+v", rv)
	}
	ev := h.store.events()
	last := ev[len(ev)-1]
	if last.Kind != EventDecryptionFinalized || *last.Total != 25 || *last.RequestID != dc.RequestID {
		t.Fatalf("finalize event: %+v", last)
	}
}

func TestRequestDecryption_OpenBatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.l.OpenBatch(ctx, testProvider)
	mustNil(t, err)
	_, err = h.l.RequestDecryption(ctx, testOther, 0)
	mustIs(t, err, ErrInvalidBatch)
}

func TestRequestDecryption_UnknownBatch(t *testing.T) {
	h := newHarness(t)
	_, err := h.l.RequestDecryption(context.Background(), testOther, 7)
	mustIs(t, err, ErrInvalidBatch)
}

func TestRequestDecryption_FingerprintBindsState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	batchID := h.sealedBatch(t, 3)
	b, _ := h.l.Batch(batchID)

	dc, err := h.l.RequestDecryption(ctx, testOther, batchID)
	mustNil(t, err)
	want := Fingerprint([][]byte{b.Aggregate.Bytes()}, testChainID, testSystem)
	if dc.Fingerprint != want {
		t.Fatal("fingerprint does not match aggregate")
	}
	// another deployment would derive a different binding
	other := Fingerprint([][]byte{b.Aggregate.Bytes()}, testChainID, testOther)
	if other == want {
		t.Fatal("system identity not part of the fingerprint")
	}
}

func TestRequestDecryption_Cooldown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	batchID := h.sealedBatch(t, 1)

	_, err := h.l.RequestDecryption(ctx, testOther, batchID)
	mustNil(t, err)
	_, err = h.l.RequestDecryption(ctx, testOther, batchID)
	mustIs(t, err, ErrCooldownActive)

	// independent of the submission clock and of other participants
	_, err = h.l.RequestDecryption(ctx, testProvider, batchID)
	mustNil(t, err)

	h.clock.Advance(10 * time.Second)
	_, err = h.l.RequestDecryption(ctx, testOther, batchID)
	mustNil(t, err)
}

func TestRequestDecryption_OracleFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	batchID := h.sealedBatch(t, 1)
	h.oracle.err = errors.New("queue unavailable")

	if _, err := h.l.RequestDecryption(ctx, testOther, batchID); err == nil {
		t.Fatal("expected oracle error")
	}
	if len(h.l.PendingDecryptions()) != 0 {
		t.Fatal("context stored despite oracle failure")
	}
	h.oracle.err = nil
	_, err := h.l.RequestDecryption(ctx, testOther, batchID)
	mustNil(t, err)
}

func TestCallback_OnlyOracle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dc, err := h.l.RequestDecryption(ctx, testOther, h.sealedBatch(t, 4))
	mustNil(t, err)

	_, err = h.l.OnDecryptionCallback(ctx, testOther, dc.RequestID, h.oracle.answer(t, dc.RequestID), []byte("ok"))
	mustIs(t, err, ErrNotAuthorized)
	got, _ := h.l.DecryptionContext(dc.RequestID)
	if got.Processed {
		t.Fatal("unauthorised callback finalized the request")
	}
}

func TestCallback_UnknownRequest(t *testing.T) {
	h := newHarness(t)
	_, err := h.l.OnDecryptionCallback(context.Background(), testOracle, 99, EncodePayload(1), []byte("ok"))
	mustIs(t, err, ErrUnknownRequest)
}

func TestCallback_Replay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dc, err := h.l.RequestDecryption(ctx, testOther, h.sealedBatch(t, 10, 15))
	mustNil(t, err)
	payload := h.oracle.answer(t, dc.RequestID)

	_, err = h.l.OnDecryptionCallback(ctx, testOracle, dc.RequestID, payload, []byte("ok"))
	mustNil(t, err)
	n := len(h.store.commits)

	_, err = h.l.OnDecryptionCallback(ctx, testOracle, dc.RequestID, EncodePayload(999), []byte("ok"))
	mustIs(t, err, ErrReplayAttempt)
	if len(h.store.commits) != n {
		t.Fatal("replayed callback wrote state")
	}
	rv, _ := h.l.Reveal(dc.RequestID)
	if rv.Total != 25 {
		t.Fatalf("total changed by replay: %d", rv.Total)
	}
}

func TestCallback_StateMismatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	batchID := h.sealedBatch(t, 10)
	dc, err := h.l.RequestDecryption(ctx, testOther, batchID)
	mustNil(t, err)
	payload := h.oracle.answer(t, dc.RequestID)

	// Tamper with the sealed aggregate behind the ledger's back.
	h.l.mu.Lock()
	h.l.batches[batchID].Aggregate.Add(h.l.batches[batchID].Aggregate, h.encrypt(t, 1))
	h.l.mu.Unlock()

	_, err = h.l.OnDecryptionCallback(ctx, testOracle, dc.RequestID, payload, []byte("ok"))
	mustIs(t, err, ErrStateMismatch)
	got, _ := h.l.DecryptionContext(dc.RequestID)
	if got.Processed {
		t.Fatal("mismatched callback finalized the request")
	}
}

func TestCallback_StoredFingerprintMismatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dc, err := h.l.RequestDecryption(ctx, testOther, h.sealedBatch(t, 10))
	mustNil(t, err)

	h.l.mu.Lock()
	h.l.contexts[dc.RequestID].Fingerprint = common.HexToHash("0x01")
	h.l.mu.Unlock()

	_, err = h.l.OnDecryptionCallback(ctx, testOracle, dc.RequestID, h.oracle.answer(t, dc.RequestID), []byte("ok"))
	mustIs(t, err, ErrStateMismatch)
}

func TestCallback_InvalidProof(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dc, err := h.l.RequestDecryption(ctx, testOther, h.sealedBatch(t, 10))
	mustNil(t, err)

	_, err = h.l.OnDecryptionCallback(ctx, testOracle, dc.RequestID, h.oracle.answer(t, dc.RequestID), []byte("forged"))
	mustIs(t, err, ErrInvalidProof)

	// a correct answer still finalizes afterwards
	total, err := h.l.OnDecryptionCallback(ctx, testOracle, dc.RequestID, h.oracle.answer(t, dc.RequestID), []byte("ok"))
	mustNil(t, err)
	if total != 10 {
		t.Fatalf("total: got %d", total)
	}
}

func TestCallback_MalformedPayload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dc, err := h.l.RequestDecryption(ctx, testOther, h.sealedBatch(t, 10))
	mustNil(t, err)
	_, err = h.l.OnDecryptionCallback(ctx, testOracle, dc.RequestID, []byte{1, 2, 3}, []byte("ok"))
	mustIs(t, err, ErrInvalidProof)
}

func TestCallback_NotGatedByPause(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dc, err := h.l.RequestDecryption(ctx, testOther, h.sealedBatch(t, 6))
	mustNil(t, err)
	mustNil(t, h.l.SetPaused(ctx, testOwner, true))

	total, err := h.l.OnDecryptionCallback(ctx, testOracle, dc.RequestID, h.oracle.answer(t, dc.RequestID), []byte("ok"))
	mustNil(t, err)
	if total != 6 {
		t.Fatalf("total: got %d", total)
	}
}

func TestPendingDecryptions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	batchID := h.sealedBatch(t, 1)
	a, err := h.l.RequestDecryption(ctx, testOther, batchID)
	mustNil(t, err)
	b, err := h.l.RequestDecryption(ctx, testProvider, batchID)
	mustNil(t, err)

	pending := h.l.PendingDecryptions()
	if len(pending) != 2 || pending[0].RequestID != a.RequestID || pending[1].RequestID != b.RequestID {
		t.Fatalf("pending: %+v", pending)
	}
	_, err = h.l.OnDecryptionCallback(ctx, testOracle, a.RequestID, h.oracle.answer(t, a.RequestID), []byte("ok"))
	mustNil(t, err)
	if p := h.l.PendingDecryptions(); len(p) != 1 || p[0].RequestID != b.RequestID {
		t.Fatalf("pending after finalize: %+v", p)
	}
}

func TestPayloadEncoding(t *testing.T) {
	p := EncodePayload(25)
	if len(p) != PayloadSize {
		t.Fatalf("payload size %d", len(p))
	}
	v, err := DecodePayload(p)
	mustNil(t, err)
	if v != 25 {
		t.Fatalf("decoded %d", v)
	}
	over := make([]byte, PayloadSize)
	over[0] = 1
	if _, err := DecodePayload(over); err == nil {
		t.Fatal("overflowing payload accepted")
	}
}
