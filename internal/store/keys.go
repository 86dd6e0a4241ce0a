package store

// Redis key layout. Hashes are keyed by decimal id or checksummed address.
const (
	OwnerKey     = "ledger:owner"
	PausedKey    = "ledger:paused"
	CooldownKey  = "ledger:cooldown"
	ProvidersKey = "ledger:providers" // set of checksummed addresses
	BatchesKey   = "ledger:batches"   // hash id → Batch JSON
	PaymentsKey  = "ledger:payments"  // list of PaymentEntry JSON, index order
	ContextsKey  = "ledger:decrypt"   // hash request id → DecryptionContext JSON
	RevealsKey   = "ledger:reveals"   // hash request id → Reveal JSON
	EventsKey    = "ledger:events"    // list of Event JSON, append order

	ThrottleKeyFmt = "ledger:throttle:%s" // %s = ratelimit class; hash address → unix seconds
)
