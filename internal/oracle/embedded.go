package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-sealed-ledger/internal/ledger"
)

// LedgerDeliverer delivers results to an in-process ledger, for deployments
// that run the worker inside ledgerd.
type LedgerDeliverer struct {
	Ledger *ledger.Ledger
	Caller common.Address // the oracle identity the ledger was built with
}

func (d LedgerDeliverer) Deliver(ctx context.Context, requestID uint64, payload, sig []byte) error {
	_, err := d.Ledger.OnDecryptionCallback(ctx, d.Caller, requestID, payload, sig)
	return classify(err)
}

// classify maps ledger errors onto the worker's retry taxonomy. Anything
// that is not a ledger verdict (a failed commit, say) stays transient.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrReplayAttempt):
		return fmt.Errorf("%w: %v", ErrAlreadyFinalized, err)
	case errors.Is(err, ledger.ErrNotAuthorized),
		errors.Is(err, ledger.ErrUnknownRequest),
		errors.Is(err, ledger.ErrInvalidBatch),
		errors.Is(err, ledger.ErrStateMismatch),
		errors.Is(err, ledger.ErrInvalidProof):
		return fmt.Errorf("%w: %v", ErrRejected, err)
	default:
		return err
	}
}
