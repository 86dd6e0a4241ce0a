package ledger

import (
	"errors"

	"github.com/0gfoundation/0g-sealed-ledger/internal/access"
	"github.com/0gfoundation/0g-sealed-ledger/internal/ratelimit"
)

// Every error below aborts the operation before any state is written.
var (
	ErrNotAuthorized  = access.ErrNotAuthorized
	ErrSystemPaused   = access.ErrSystemPaused
	ErrCooldownActive = ratelimit.ErrCooldownActive

	ErrNoOpenBatch    = errors.New("no open batch")
	ErrInvalidBatch   = errors.New("invalid batch")
	ErrUnknownRequest = errors.New("unknown decryption request")
	ErrReplayAttempt  = errors.New("decryption request already processed")
	ErrStateMismatch  = errors.New("state fingerprint mismatch")
	ErrInvalidProof   = errors.New("invalid decryption proof")

	ErrInvalidCooldown = errors.New("invalid cooldown")
)
