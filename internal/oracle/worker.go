package oracle

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-sealed-ledger/internal/fhe"
	"github.com/0gfoundation/0g-sealed-ledger/internal/ledger"
	"github.com/0gfoundation/0g-sealed-ledger/internal/proof"
)

// Deliverer hands a signed result back to the ledger.
type Deliverer interface {
	Deliver(ctx context.Context, requestID uint64, payload, sig []byte) error
}

// WorkerConfig tunes the worker loop. Zero values fall back to defaults.
type WorkerConfig struct {
	PollTimeout   time.Duration // BLPOP timeout
	RetryDelay    time.Duration // pause after the first transient failure, doubled per attempt
	MaxRetryDelay time.Duration // cap on the doubled pause
	MaxAttempts   int           // deliveries before a job is dead-lettered
	MaxTotal      uint64        // largest total the discrete log search covers
}

func (c *WorkerConfig) setDefaults() {
	if c.PollTimeout <= 0 {
		c.PollTimeout = 5 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = 5 * time.Minute
	}
	if c.MaxRetryDelay < c.RetryDelay {
		c.MaxRetryDelay = c.RetryDelay
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.MaxTotal == 0 {
		c.MaxTotal = 1 << 36
	}
}

// Worker drains the decryption queue. Run at most one per Redis database:
// in-flight recovery assumes it owns every oracle:inflight key.
type Worker struct {
	rdb     *redis.Client
	sk      *fhe.SecretKey
	key     *ecdsa.PrivateKey
	domain  proof.Domain
	deliver Deliverer
	cfg     WorkerConfig
	log     *zap.Logger
}

func NewWorker(rdb *redis.Client, sk *fhe.SecretKey, key *ecdsa.PrivateKey, domain proof.Domain, d Deliverer, cfg WorkerConfig, log *zap.Logger) *Worker {
	cfg.setDefaults()
	return &Worker{rdb: rdb, sk: sk, key: key, domain: domain, deliver: d, cfg: cfg, log: log}
}

// Run is the worker loop: recover in-flight jobs, then BLPOP → decrypt →
// sign → deliver until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("oracle worker started", zap.String("queue", QueueKey))
	if err := w.RecoverInflight(ctx); err != nil {
		w.log.Error("oracle: recover inflight", zap.Error(err))
	}

	for {
		if ctx.Err() != nil {
			w.log.Info("oracle worker stopped")
			return
		}
		results, err := w.rdb.BLPop(ctx, w.cfg.PollTimeout, QueueKey).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Error("oracle: BLPOP error", zap.Error(err))
			sleep(ctx, time.Second)
			continue
		}
		if wait := w.Handle(ctx, results[1]); wait > 0 {
			sleep(ctx, wait)
		}
	}
}

// Handle processes one popped job. When delivery failed transiently and the
// job went back on the queue it returns how long to back off; otherwise 0.
func (w *Worker) Handle(ctx context.Context, raw string) time.Duration {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		w.log.Error("oracle: unmarshal job", zap.String("raw", raw), zap.Error(err))
		w.deadLetter(ctx, raw, "", "undecodable job")
		return 0
	}
	log := w.log.With(zap.Uint64("request_id", job.RequestID), zap.Int("attempt", job.Attempts+1))

	// Persist first so a crash mid-delivery re-queues the job on restart.
	inflightKey := fmt.Sprintf(InflightKeyFmt, job.RequestID)
	if err := w.rdb.Set(ctx, inflightKey, raw, 0).Err(); err != nil {
		log.Error("oracle: persist inflight", zap.Error(err))
		w.requeue(ctx, job, "", log)
		return w.cfg.RetryDelay
	}

	payload, sig, err := w.Answer(&job)
	if err != nil {
		log.Error("oracle: cannot answer request", zap.Error(err))
		w.deadLetter(ctx, raw, inflightKey, err.Error())
		return 0
	}

	err = w.deliver.Deliver(ctx, job.RequestID, payload, sig)
	switch {
	case err == nil:
		log.Info("decryption delivered")
		w.rdb.Del(ctx, inflightKey)
	case errors.Is(err, ErrAlreadyFinalized):
		log.Warn("oracle: request already finalized, dropping")
		w.rdb.Del(ctx, inflightKey)
	case errors.Is(err, ErrRejected):
		log.Error("oracle: callback rejected", zap.Error(err))
		w.deadLetter(ctx, raw, inflightKey, err.Error())
	default:
		job.Attempts++
		if job.Attempts >= w.cfg.MaxAttempts {
			log.Error("oracle: delivery attempts exhausted", zap.Error(err))
			w.deadLetter(ctx, raw, inflightKey, err.Error())
			return 0
		}
		wait := w.Backoff(job.Attempts)
		log.Warn("oracle: delivery failed, re-queueing", zap.Duration("backoff", wait), zap.Error(err))
		w.requeue(ctx, job, inflightKey, log)
		return wait
	}
	return 0
}

// Backoff is the pause after the given number of failed deliveries:
// RetryDelay doubled per earlier failure, capped at MaxRetryDelay.
func (w *Worker) Backoff(failures int) time.Duration {
	d := w.cfg.RetryDelay
	for i := 1; i < failures && d < w.cfg.MaxRetryDelay; i++ {
		d *= 2
	}
	return min(d, w.cfg.MaxRetryDelay)
}

// Answer decrypts the homomorphic sum of the job's ciphertexts and signs
// the encoded total.
func (w *Worker) Answer(job *Job) (payload, sig []byte, err error) {
	if len(job.Ciphertexts) == 0 {
		return nil, nil, errors.New("no ciphertexts")
	}
	sum := fhe.Zero()
	for i, raw := range job.Ciphertexts {
		ct, err := fhe.Parse(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("ciphertext %d: %w", i, err)
		}
		sum.Add(sum, ct)
	}
	total, err := w.sk.Decrypt(sum, w.cfg.MaxTotal)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypt: %w", err)
	}
	payload = ledger.EncodePayload(total)
	sig, err = w.domain.Sign(w.key, job.RequestID, job.ciphertexts(), payload)
	if err != nil {
		return nil, nil, fmt.Errorf("sign: %w", err)
	}
	return payload, sig, nil
}

// requeue appends job to the tail of the queue and clears its inflight key.
func (w *Worker) requeue(ctx context.Context, job Job, inflightKey string, log *zap.Logger) {
	raw, _ := json.Marshal(job)
	_, err := w.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, QueueKey, raw)
		if inflightKey != "" {
			pipe.Del(ctx, inflightKey)
		}
		return nil
	})
	if err != nil {
		log.Error("oracle: re-queue failed", zap.Error(err))
	}
}

// deadLetter moves a job to the DLQ and clears its inflight key.
func (w *Worker) deadLetter(ctx context.Context, raw, inflightKey, reason string) {
	entry, _ := json.Marshal(DeadLetter{Raw: raw, Reason: reason, At: time.Now().Unix()})
	_, err := w.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, DLQKey, entry)
		if inflightKey != "" {
			pipe.Del(ctx, inflightKey)
		}
		return nil
	})
	if err != nil {
		w.log.Error("oracle: dead-letter failed", zap.String("reason", reason), zap.Error(err))
	}
}

// RecoverInflight re-queues jobs that were popped but never finished, e.g.
// because the worker crashed mid-delivery.
func (w *Worker) RecoverInflight(ctx context.Context) error {
	keys, err := scanInflight(ctx, w.rdb)
	if err != nil {
		return err
	}
	for _, key := range keys {
		raw, err := w.rdb.Get(ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", key, err)
		}
		_, err = w.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LPush(ctx, QueueKey, raw)
			pipe.Del(ctx, key)
			return nil
		})
		if err != nil {
			return fmt.Errorf("re-queue %s: %w", key, err)
		}
		w.log.Info("recovered inflight decryption", zap.String("key", key))
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
