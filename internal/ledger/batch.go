package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-sealed-ledger/internal/fhe"
	"github.com/0gfoundation/0g-sealed-ledger/internal/ratelimit"
)

// requireSubmitter runs the provider, pause and submission-cooldown gates.
func (l *Ledger) requireSubmitter(caller common.Address, now int64) error {
	if err := l.reg.RequireProvider(caller); err != nil {
		return err
	}
	if err := l.reg.RequireActive(); err != nil {
		return err
	}
	return l.throttle.Check(ratelimit.Submission, caller, now, l.reg.CooldownSeconds())
}

// openBatch returns the most recent batch if it is still open.
func (l *Ledger) openBatch() (*Batch, bool) {
	if len(l.batches) == 0 {
		return nil, false
	}
	b := l.batches[len(l.batches)-1]
	if b.Closed {
		return nil, false
	}
	return b, true
}

// OpenBatch appends a new open batch with an encrypted-zero aggregate.
//
// It does not check whether the previous batch is still open: a second
// call while a batch is open leaves that batch open but unreachable, since
// submissions and closes only ever target the latest batch.
func (l *Ledger) OpenBatch(ctx context.Context, caller common.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if err := l.requireSubmitter(caller, now); err != nil {
		return 0, err
	}
	id := uint64(len(l.batches))
	b := &Batch{
		ID:        id,
		Aggregate: fhe.Zero(),
		OpenedBy:  caller,
		OpenedAt:  now,
	}
	err := l.commit(ctx, &ChangeSet{
		Batch:    b,
		Throttle: []ThrottleRecord{{Class: ratelimit.Submission, Who: caller, At: now}},
		Events:   []Event{{Kind: EventBatchOpened, At: now, Actor: caller, BatchID: ptr(id)}},
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// SubmitPayment appends ct to the ledger and folds it into the latest
// batch's aggregate. It returns the payment's ledger index.
func (l *Ledger) SubmitPayment(ctx context.Context, caller common.Address, ct *fhe.Ciphertext) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if err := l.requireSubmitter(caller, now); err != nil {
		return 0, err
	}
	cur, ok := l.openBatch()
	if !ok {
		return 0, ErrNoOpenBatch
	}

	next := cur.clone()
	next.Aggregate.Add(cur.Aggregate, ct)
	next.Payments++

	index := uint64(len(l.payments))
	entry := &PaymentEntry{
		Index:       index,
		BatchID:     cur.ID,
		Provider:    caller,
		Ciphertext:  ct.Clone(),
		SubmittedAt: now,
	}
	err := l.commit(ctx, &ChangeSet{
		Batch:    next,
		Payment:  entry,
		Throttle: []ThrottleRecord{{Class: ratelimit.Submission, Who: caller, At: now}},
		Events: []Event{{
			Kind: EventPaymentSubmitted, At: now, Actor: caller, BatchID: ptr(cur.ID), Index: ptr(index),
		}},
	})
	if err != nil {
		return 0, err
	}
	return index, nil
}

// CloseBatch seals the latest batch. Its aggregate never changes again.
func (l *Ledger) CloseBatch(ctx context.Context, caller common.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.reg.RequireProvider(caller); err != nil {
		return 0, err
	}
	if err := l.reg.RequireActive(); err != nil {
		return 0, err
	}
	cur, ok := l.openBatch()
	if !ok {
		return 0, ErrNoOpenBatch
	}
	now := l.now()
	next := cur.clone()
	next.Closed = true
	next.ClosedAt = now
	err := l.commit(ctx, &ChangeSet{
		Batch:  next,
		Events: []Event{{Kind: EventBatchClosed, At: now, Actor: caller, BatchID: ptr(cur.ID)}},
	})
	if err != nil {
		return 0, err
	}
	return cur.ID, nil
}
