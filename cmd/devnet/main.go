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

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/bank"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/config"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/logging"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/loot"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/metrics"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/native"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/relay"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/rpc"
)

func main() {
	boot, _ := zap.NewProduction()

	cfg, err := config.Load(config.RoleDevnet)
	if err != nil {
		boot.Fatal("config load failed", zap.Error(err))
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		boot.Fatal("logger init failed", zap.Error(err))
	}
	defer log.Sync() //nolint:errcheck

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

	// ── Ledger ────────────────────────────────────────────────────────────────
	store, err := openStore(cfg.Ledger)
	if err != nil {
		log.Fatal("ledger store open failed", zap.String("driver", cfg.Ledger.Driver), zap.Error(err))
	}
	ledger := bank.New(store, log.Named("bank"))
	defer ledger.Close() //nolint:errcheck
	native.RegisterAll(ledger)

	// ── Loot program ──────────────────────────────────────────────────────────
	serverKey, err := cfg.ServerPubkey()
	if err != nil {
		log.Fatal("server key", zap.Error(err))
	}
	var opts []loot.Option
	if cfg.Program.ReplayGuard {
		opts = append(opts, loot.WithReplayGuard())
	}
	program, err := loot.NewProgram(cfg.ProgramID(), serverKey, log.Named("loot"), opts...)
	if err != nil {
		log.Fatal("loot program init failed", zap.Error(err))
	}
	ledger.Register(program.ID(), program)
	if err := ledger.Modify(func(l bank.Ledger) error {
		return loot.SeedCapsMint(l, program.Authorities())
	}); err != nil {
		log.Fatal("caps mint genesis failed", zap.Error(err))
	}
	log.Info("loot program deployed",
		zap.String("program_id", program.ID().String()),
		zap.String("server_pubkey", serverKey.String()),
		zap.String("caps_mint", program.Authorities().CapsMint.Address.String()),
		zap.Bool("replay_guard", program.ReplayGuard()))

	// ── Relay (Redis queue → ledger) ──────────────────────────────────────────
	go relay.Run(ctx, cfg.Relay.Queue, rdb, ledger, log.Named("relay"))

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: newRouter(ledger, program, rdb, cfg, log),
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

func newRouter(ledger *bank.Bank, program *loot.Program, rdb *redis.Client, cfg *config.Config, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), metrics.Middleware())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "slot": ledger.Slot()})
	})
	r.GET("/metrics", metrics.Handler())
	rpc.NewHandler(ledger, program, rdb, cfg.Relay.Queue, cfg.Ledger.CapsSupply, log).Register(r.Group("/"))
	return r
}

func openStore(cfg config.LedgerConfig) (bank.Store, error) {
	switch cfg.Driver {
	case config.LedgerBolt:
		return bank.OpenBoltStore(cfg.Path)
	case config.LedgerLevelDB:
		return bank.OpenLevelStore(cfg.Path)
	case config.LedgerMemory:
		return bank.NewMemStore(), nil
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.Driver)
	}
}
