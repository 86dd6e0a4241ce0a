package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type EventKind string

const (
	EventOwnershipTransferred EventKind = "OwnershipTransferred"
	EventProviderAdded        EventKind = "ProviderAdded"
	EventProviderRemoved      EventKind = "ProviderRemoved"
	EventPausedSet            EventKind = "PausedSet"
	EventCooldownSet          EventKind = "CooldownSet"
	EventBatchOpened          EventKind = "BatchOpened"
	EventPaymentSubmitted     EventKind = "PaymentSubmitted"
	EventBatchClosed          EventKind = "BatchClosed"
	EventDecryptionRequested  EventKind = "DecryptionRequested"
	EventDecryptionFinalized  EventKind = "DecryptionFinalized"
)

// Event is a notification emitted by a successful operation.
type Event struct {
	Kind      EventKind       `json:"kind"`
	At        int64           `json:"at"`
	Actor     common.Address  `json:"actor"`
	Subject   *common.Address `json:"subject,omitempty"`
	BatchID   *uint64         `json:"batch_id,omitempty"`
	Index     *uint64         `json:"index,omitempty"`
	RequestID *uint64         `json:"request_id,omitempty"`
	Hash      *common.Hash    `json:"fingerprint,omitempty"`
	Total     *uint64         `json:"total,omitempty"`
	Paused    *bool           `json:"paused,omitempty"`
	Cooldown  *int64          `json:"cooldown_sec,omitempty"`
}

func ptr[T any](v T) *T { return &v }

func (e Event) fields() []zap.Field {
	fs := []zap.Field{zap.String("actor", e.Actor.Hex()), zap.Int64("at", e.At)}
	if e.Subject != nil {
		fs = append(fs, zap.String("subject", e.Subject.Hex()))
	}
	if e.BatchID != nil {
		fs = append(fs, zap.Uint64("batch_id", *e.BatchID))
	}
	if e.Index != nil {
		fs = append(fs, zap.Uint64("index", *e.Index))
	}
	if e.RequestID != nil {
		fs = append(fs, zap.Uint64("request_id", *e.RequestID))
	}
	if e.Hash != nil {
		fs = append(fs, zap.String("fingerprint", e.Hash.Hex()))
	}
	if e.Total != nil {
		fs = append(fs, zap.Uint64("total", *e.Total))
	}
	if e.Paused != nil {
		fs = append(fs, zap.Bool("paused", *e.Paused))
	}
	if e.Cooldown != nil {
		fs = append(fs, zap.Int64("cooldown_sec", *e.Cooldown))
	}
	return fs
}
