package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-sealed-ledger/internal/api"
	"github.com/0gfoundation/0g-sealed-ledger/internal/auth"
	"github.com/0gfoundation/0g-sealed-ledger/internal/config"
	"github.com/0gfoundation/0g-sealed-ledger/internal/ledger"
	"github.com/0gfoundation/0g-sealed-ledger/internal/monitor"
	"github.com/0gfoundation/0g-sealed-ledger/internal/oracle"
	"github.com/0gfoundation/0g-sealed-ledger/internal/proof"
	"github.com/0gfoundation/0g-sealed-ledger/internal/ratelimit"
	"github.com/0gfoundation/0g-sealed-ledger/internal/store"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load(config.RoleLedger)
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	pk, err := cfg.FHEPublicKey()
	if err != nil {
		log.Fatal("fhe public key", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Redis ─────────────────────────────────────────────────────────────────
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}

	// ── Ledger (restore persisted state, seed on first start) ─────────────────
	st := store.New(rdb)
	gateway := oracle.NewGateway(rdb, proof.Verifier{Domain: cfg.ProofDomain(), Signer: cfg.OracleAddress()})
	l, err := openLedger(ctx, cfg, st, gateway, ratelimit.SystemClock, log)
	if err != nil {
		log.Fatal("open ledger failed", zap.Error(err))
	}
	log.Info("ledger ready",
		zap.String("owner", l.Owner().Hex()),
		zap.String("oracle", l.OracleIdentity().Hex()),
		zap.Uint64("batches", l.BatchCount()),
		zap.Uint64("payments", l.PaymentCount()),
		zap.Int("pending", len(l.PendingDecryptions())),
	)

	// ── Goroutines ────────────────────────────────────────────────────────────
	if cfg.Oracle.Embedded {
		sk, err := cfg.FHESecretKey()
		if err != nil {
			log.Fatal("fhe key", zap.Error(err))
		}
		key, err := cfg.OracleKey()
		if err != nil {
			log.Fatal("oracle key", zap.Error(err))
		}
		w := oracle.NewWorker(rdb, sk, key, cfg.ProofDomain(),
			oracle.LedgerDeliverer{Ledger: l, Caller: cfg.OracleAddress()},
			oracle.WorkerConfig{MaxTotal: cfg.FHE.MaxTotal}, log)
		go w.Run(ctx)
	}
	go monitor.Run(ctx, monitor.Config{
		Interval:  time.Minute,
		WarnAfter: time.Duration(cfg.Oracle.PendingWarnSec) * time.Second,
	}, l, gateway, log)

	limiter := api.NewIPLimiter(cfg.Server.RequestsPerSec, cfg.Server.Burst)
	go limiter.Cleanup(ctx)

	// ── HTTP server ───────────────────────────────────────────────────────────
	r := gin.New()
	r.Use(gin.Recovery(), limiter.Middleware())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	api.NewHandler(l, pk, st, gateway, log).Register(r.Group("/api/v1"), auth.Middleware(rdb))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}

// openLedger builds the ledger, restores whatever the store holds and seeds
// the initial roles when the store is empty.
func openLedger(ctx context.Context, cfg *config.Config, st *store.Redis, o ledger.Oracle, clock ratelimit.Clock, log *zap.Logger) (*ledger.Ledger, error) {
	l := ledger.New(ledger.Config{
		Owner:       cfg.OwnerAddress(),
		System:      cfg.SystemAddress(),
		ChainID:     cfg.ChainID(),
		Oracle:      cfg.OracleAddress(),
		CooldownSec: cfg.Ledger.CooldownSec,
		Providers:   cfg.ProviderAddresses(),
	}, st, o, clock, log)

	snap, err := st.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	l.Restore(snap)
	if err := l.Bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return l, nil
}
