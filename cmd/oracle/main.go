// cmd/oracle is the standalone decryption worker. It holds the FHE secret
// key and the oracle signing key, drains the Redis queue shared with
// ledgerd and posts signed results to ORACLE_LEDGER_URL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-sealed-ledger/internal/callback"
	"github.com/0gfoundation/0g-sealed-ledger/internal/config"
	"github.com/0gfoundation/0g-sealed-ledger/internal/oracle"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load(config.RoleOracle)
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}
	sk, err := cfg.FHESecretKey()
	if err != nil {
		log.Fatal("fhe key", zap.Error(err))
	}
	key, err := cfg.OracleKey()
	if err != nil {
		log.Fatal("oracle key", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}

	log.Info("oracle identity", zap.String("address", cfg.OracleAddress().Hex()), zap.String("ledger", cfg.Oracle.LedgerURL))
	w := oracle.NewWorker(rdb, sk, key, cfg.ProofDomain(),
		callback.NewClient(cfg.Oracle.LedgerURL, key),
		oracle.WorkerConfig{MaxTotal: cfg.FHE.MaxTotal}, log)
	w.Run(ctx)
	log.Info("shutdown complete")
}
