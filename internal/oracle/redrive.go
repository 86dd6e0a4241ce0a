package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedriveResult counts what one Redrive pass did.
type RedriveResult struct {
	Requeued int `json:"requeued"`
	Skipped  int `json:"skipped"`
}

// Redrive moves up to limit dead letters back onto the work queue with a
// fresh attempt budget. Entries whose job cannot be decoded stay in the
// DLQ (rotated to its tail). A limit of 0 or less means the whole DLQ as it
// stood when the pass began. Run it from a single process at a time.
func Redrive(ctx context.Context, rdb *redis.Client, limit int) (RedriveResult, error) {
	var res RedriveResult
	n, err := rdb.LLen(ctx, DLQKey).Result()
	if err != nil {
		return res, fmt.Errorf("dlq length: %w", err)
	}
	if limit > 0 && int64(limit) < n {
		n = int64(limit)
	}
	for i := int64(0); i < n; i++ {
		entry, err := rdb.LIndex(ctx, DLQKey, 0).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return res, fmt.Errorf("read dlq head: %w", err)
		}

		dest, out := DLQKey, entry
		var dl DeadLetter
		var job Job
		if json.Unmarshal([]byte(entry), &dl) == nil && json.Unmarshal([]byte(dl.Raw), &job) == nil && job.RequestID != 0 {
			job.Attempts = 0
			raw, err := json.Marshal(job)
			if err != nil {
				return res, err
			}
			dest, out = QueueKey, string(raw)
		}

		_, err = rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LPop(ctx, DLQKey)
			pipe.RPush(ctx, dest, out)
			return nil
		})
		if err != nil {
			return res, fmt.Errorf("move dead letter: %w", err)
		}
		if dest == QueueKey {
			res.Requeued++
		} else {
			res.Skipped++
		}
	}
	return res, nil
}
