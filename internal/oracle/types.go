package oracle

import (
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Redis key templates
const (
	QueueKey       = "oracle:queue"
	DLQKey         = "oracle:dlq"
	SeqKey         = "oracle:request:seq"
	InflightKeyFmt = "oracle:inflight:%d" // %d = request id
	inflightPrefix = "oracle:inflight:"
)

// Job is one queued decryption request.
type Job struct {
	RequestID   uint64          `json:"request_id"`
	Ciphertexts []hexutil.Bytes `json:"ciphertexts"`
	QueuedAt    int64           `json:"queued_at"`
	Attempts    int             `json:"attempts"`
}

func (j *Job) ciphertexts() [][]byte {
	out := make([][]byte, len(j.Ciphertexts))
	for i, c := range j.Ciphertexts {
		out[i] = c
	}
	return out
}

// DeadLetter is a job the worker gave up on. Raw is the job as it was
// popped, which may not be valid JSON.
type DeadLetter struct {
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
	At     int64  `json:"at"`
}

var (
	// ErrRejected marks a delivery the ledger refused for good. The job is
	// dead-lettered.
	ErrRejected = errors.New("callback rejected")
	// ErrAlreadyFinalized marks a delivery for a request that was already
	// finalized. The job is dropped.
	ErrAlreadyFinalized = errors.New("request already finalized")
)
