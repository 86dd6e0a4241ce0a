// Package oracle is the asynchronous decryption service. The Gateway is the
// ledger's side: it queues requests in Redis and checks proofs. The Worker
// holds the decryption key: it drains the queue, decrypts, signs the result
// and delivers it back through a Deliverer.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/0gfoundation/0g-sealed-ledger/internal/proof"
)

// Gateway implements ledger.Oracle on top of a Redis queue.
type Gateway struct {
	rdb      *redis.Client
	verifier proof.Verifier
	now      func() time.Time
}

func NewGateway(rdb *redis.Client, verifier proof.Verifier) *Gateway {
	return &Gateway{rdb: rdb, verifier: verifier, now: time.Now}
}

// RequestDecryption allocates a request id and queues the job. Ids come
// from a Redis counter so they stay unique across restarts.
func (g *Gateway) RequestDecryption(ctx context.Context, ciphertexts [][]byte) (uint64, error) {
	seq, err := g.rdb.Incr(ctx, SeqKey).Result()
	if err != nil {
		return 0, fmt.Errorf("allocate request id: %w", err)
	}
	job := Job{RequestID: uint64(seq), QueuedAt: g.now().Unix()}
	for _, ct := range ciphertexts {
		job.Ciphertexts = append(job.Ciphertexts, ct)
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return 0, err
	}
	if err := g.rdb.RPush(ctx, QueueKey, raw).Err(); err != nil {
		return 0, fmt.Errorf("enqueue request %d: %w", job.RequestID, err)
	}
	return job.RequestID, nil
}

// VerifyDecryptionProof checks the proof was signed by the oracle key over
// exactly these inputs.
func (g *Gateway) VerifyDecryptionProof(requestID uint64, ciphertexts [][]byte, payload, sig []byte) bool {
	return g.verifier.Verify(requestID, ciphertexts, payload, sig)
}

// QueueStats is a point-in-time view of the oracle queues.
type QueueStats struct {
	Queued   int64 `json:"queued"`
	Inflight int64 `json:"inflight"`
	Dead     int64 `json:"dead"`
}

func (g *Gateway) Stats(ctx context.Context) (QueueStats, error) {
	var s QueueStats
	var err error
	if s.Queued, err = g.rdb.LLen(ctx, QueueKey).Result(); err != nil {
		return s, err
	}
	if s.Dead, err = g.rdb.LLen(ctx, DLQKey).Result(); err != nil {
		return s, err
	}
	keys, err := scanInflight(ctx, g.rdb)
	if err != nil {
		return s, err
	}
	s.Inflight = int64(len(keys))
	return s, nil
}

func scanInflight(ctx context.Context, rdb *redis.Client) ([]string, error) {
	var out []string
	var cursor uint64
	for {
		keys, next, err := rdb.Scan(ctx, cursor, inflightPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan inflight: %w", err)
		}
		out = append(out, keys...)
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}
