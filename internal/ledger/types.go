package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-sealed-ledger/internal/fhe"
	"github.com/0gfoundation/0g-sealed-ledger/internal/ratelimit"
)

// PaymentEntry is one accepted contribution. Never mutated after creation.
type PaymentEntry struct {
	Index       uint64          `json:"index"`
	BatchID     uint64          `json:"batch_id"`
	Provider    common.Address  `json:"provider"`
	Ciphertext  *fhe.Ciphertext `json:"ciphertext"`
	SubmittedAt int64           `json:"submitted_at"`
}

// Batch groups payments under a running homomorphic aggregate.
type Batch struct {
	ID        uint64          `json:"id"`
	Aggregate *fhe.Ciphertext `json:"aggregate"`
	Closed    bool            `json:"closed"`
	Payments  uint64          `json:"payments"`
	OpenedBy  common.Address  `json:"opened_by"`
	OpenedAt  int64           `json:"opened_at"`
	ClosedAt  int64           `json:"closed_at,omitempty"`
}

func (b *Batch) clone() *Batch {
	c := *b
	c.Aggregate = b.Aggregate.Clone()
	return &c
}

// DecryptionContext binds a pending oracle request to the batch state it
// targets. Only Processed ever changes, false to true, once.
type DecryptionContext struct {
	RequestID   uint64         `json:"request_id"`
	BatchID     uint64         `json:"batch_id"`
	Fingerprint common.Hash    `json:"fingerprint"`
	Processed   bool           `json:"processed"`
	Requester   common.Address `json:"requester"`
	RequestedAt int64          `json:"requested_at"`
}

// Reveal is the finalized plaintext total of a request.
type Reveal struct {
	RequestID   uint64 `json:"request_id"`
	BatchID     uint64 `json:"batch_id"`
	Total       uint64 `json:"total"`
	FinalizedAt int64  `json:"finalized_at"`
}

// ThrottleRecord is a last-action timestamp update.
type ThrottleRecord struct {
	Class ratelimit.Class `json:"class"`
	Who   common.Address  `json:"who"`
	At    int64           `json:"at"`
}

// Oracle is the external decryption collaborator.
type Oracle interface {
	// RequestDecryption queues the ciphertexts for off-system decryption and
	// returns a request id unique across all requests.
	RequestDecryption(ctx context.Context, ciphertexts [][]byte) (uint64, error)
	// VerifyDecryptionProof reports whether proof authenticates payload as
	// the decryption of ciphertexts for requestID.
	VerifyDecryptionProof(requestID uint64, ciphertexts [][]byte, payload, proof []byte) bool
}

// Store persists change sets. Commit must be all-or-nothing.
type Store interface {
	Commit(ctx context.Context, cs *ChangeSet) error
}

// Config carries the identities the ledger is built around.
type Config struct {
	Owner       common.Address
	System      common.Address // identity mixed into fingerprints
	ChainID     *big.Int
	Oracle      common.Address // only caller allowed to deliver callbacks
	CooldownSec int64
	Providers   []common.Address // seeded on first start only
}
