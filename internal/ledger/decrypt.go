package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/0gfoundation/0g-sealed-ledger/internal/ratelimit"
)

// PayloadSize is the length of a plaintext payload: one ABI uint256 word.
const PayloadSize = 32

// closedBatch returns batch id if it exists and is closed.
func (l *Ledger) closedBatch(id uint64) (*Batch, error) {
	if id >= uint64(len(l.batches)) {
		return nil, ErrInvalidBatch
	}
	b := l.batches[id]
	if !b.Closed {
		return nil, ErrInvalidBatch
	}
	return b, nil
}

func (l *Ledger) fingerprint(b *Batch) ([][]byte, common.Hash) {
	cts := [][]byte{b.Aggregate.Bytes()}
	return cts, Fingerprint(cts, l.chainID, l.system)
}

// RequestDecryption asks the oracle to decrypt a closed batch's aggregate
// and records a pending context bound to the aggregate's fingerprint.
// Anyone may call it; it returns as soon as the request is queued.
func (l *Ledger) RequestDecryption(ctx context.Context, caller common.Address, batchID uint64) (*DecryptionContext, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if err := l.reg.RequireActive(); err != nil {
		return nil, err
	}
	if err := l.throttle.Check(ratelimit.DecryptionRequest, caller, now, l.reg.CooldownSeconds()); err != nil {
		return nil, err
	}
	b, err := l.closedBatch(batchID)
	if err != nil {
		return nil, err
	}
	cts, fp := l.fingerprint(b)

	requestID, err := l.oracle.RequestDecryption(ctx, cts)
	if err != nil {
		return nil, fmt.Errorf("request decryption: %w", err)
	}
	if _, dup := l.contexts[requestID]; dup {
		return nil, fmt.Errorf("oracle reused request id %d", requestID)
	}
	dc := &DecryptionContext{
		RequestID:   requestID,
		BatchID:     batchID,
		Fingerprint: fp,
		Requester:   caller,
		RequestedAt: now,
	}
	err = l.commit(ctx, &ChangeSet{
		Context:  dc,
		Throttle: []ThrottleRecord{{Class: ratelimit.DecryptionRequest, Who: caller, At: now}},
		Events: []Event{{
			Kind: EventDecryptionRequested, At: now, Actor: caller,
			RequestID: ptr(requestID), BatchID: ptr(batchID), Hash: ptr(fp),
		}},
	})
	if err != nil {
		return nil, err
	}
	cp := *dc
	return &cp, nil
}

// OnDecryptionCallback finalizes a request with the oracle's answer. Only
// the configured oracle identity may call it. The answer is accepted only
// if the batch still hashes to the fingerprint recorded at request time and
// the proof authenticates payload for those exact ciphertexts.
func (l *Ledger) OnDecryptionCallback(ctx context.Context, caller common.Address, requestID uint64, payload, proof []byte) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.oracleID {
		return 0, ErrNotAuthorized
	}
	dc, ok := l.contexts[requestID]
	if !ok {
		return 0, ErrUnknownRequest
	}
	if dc.Processed {
		return 0, ErrReplayAttempt
	}
	b, err := l.closedBatch(dc.BatchID)
	if err != nil {
		return 0, err
	}
	cts, fp := l.fingerprint(b)
	if fp != dc.Fingerprint {
		return 0, ErrStateMismatch
	}
	if !l.oracle.VerifyDecryptionProof(requestID, cts, payload, proof) {
		return 0, ErrInvalidProof
	}
	total, err := DecodePayload(payload)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}

	now := l.now()
	done := *dc
	done.Processed = true
	err = l.commit(ctx, &ChangeSet{
		Context: &done,
		Reveal:  &Reveal{RequestID: requestID, BatchID: dc.BatchID, Total: total, FinalizedAt: now},
		Events: []Event{{
			Kind: EventDecryptionFinalized, At: now, Actor: caller,
			RequestID: ptr(requestID), BatchID: ptr(dc.BatchID), Total: ptr(total),
		}},
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// EncodePayload encodes a total as a big-endian uint256 word.
func EncodePayload(total uint64) []byte {
	w := uint256.NewInt(total).Bytes32()
	return w[:]
}

// DecodePayload is the inverse of EncodePayload. Totals that do not fit in
// 64 bits are rejected.
func DecodePayload(payload []byte) (uint64, error) {
	if len(payload) != PayloadSize {
		return 0, fmt.Errorf("payload: got %d bytes, want %d", len(payload), PayloadSize)
	}
	v := new(uint256.Int).SetBytes32(payload)
	if !v.IsUint64() {
		return 0, fmt.Errorf("payload: total overflows uint64")
	}
	return v.Uint64(), nil
}

func sortContexts(cs []DecryptionContext) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].RequestID < cs[j].RequestID })
}
