// Package monitor watches decryption requests that the oracle has not
// answered. Requests never expire; stale ones are only reported.
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/0gfoundation/0g-sealed-ledger/internal/ledger"
	"github.com/0gfoundation/0g-sealed-ledger/internal/oracle"
)

// PendingSource lists unanswered requests. Satisfied by *ledger.Ledger.
type PendingSource interface {
	PendingDecryptions() []ledger.DecryptionContext
}

// QueueSource reports oracle queue depth. Satisfied by *oracle.Gateway.
type QueueSource interface {
	Stats(ctx context.Context) (oracle.QueueStats, error)
}

type Config struct {
	Interval  time.Duration
	WarnAfter time.Duration
}

// Run scans every cfg.Interval until ctx is cancelled. queue may be nil.
func Run(ctx context.Context, cfg Config, pending PendingSource, queue QueueSource, log *zap.Logger) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info("pending monitor started",
		zap.Duration("interval", cfg.Interval),
		zap.Duration("warn_after", cfg.WarnAfter),
	)

	for {
		select {
		case <-ctx.Done():
			log.Info("pending monitor stopped")
			return
		case now := <-ticker.C:
			scan(ctx, cfg, pending, queue, now, log)
		}
	}
}

// scan logs requests pending longer than cfg.WarnAfter and returns them.
func scan(ctx context.Context, cfg Config, pending PendingSource, queue QueueSource, now time.Time, log *zap.Logger) []ledger.DecryptionContext {
	var stale []ledger.DecryptionContext
	cutoff := now.Add(-cfg.WarnAfter).Unix()
	for _, dc := range pending.PendingDecryptions() {
		if dc.RequestedAt > cutoff {
			continue
		}
		stale = append(stale, dc)
		log.Warn("decryption pending too long",
			zap.Uint64("request_id", dc.RequestID),
			zap.Uint64("batch_id", dc.BatchID),
			zap.Duration("age", now.Sub(time.Unix(dc.RequestedAt, 0))),
		)
	}

	if queue == nil {
		return stale
	}
	stats, err := queue.Stats(ctx)
	if err != nil {
		log.Error("monitor: queue stats", zap.Error(err))
		return stale
	}
	if stats.Dead > 0 {
		log.Warn("oracle dead-letter queue not empty", zap.Int64("dead", stats.Dead))
	}
	log.Debug("oracle queue",
		zap.Int64("queued", stats.Queued),
		zap.Int64("inflight", stats.Inflight),
		zap.Int("stale", len(stale)),
	)
	return stale
}
