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

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/auth"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/config"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/issuer"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/logging"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/metrics"
)

func main() {
	boot, _ := zap.NewProduction()

	cfg, err := config.Load(config.RoleIssuer)
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

	// ── Voucher signer (server key → sign → cooldown in Redis) ────────────────
	privKey, err := cfg.SecretKey()
	if err != nil {
		log.Fatal("server key", zap.Error(err))
	}
	signer := issuer.NewSigner(
		privKey,
		time.Duration(cfg.Issuer.CooldownSeconds)*time.Second,
		rdb,
	)
	log.Info("voucher signer ready",
		zap.String("server_pubkey", signer.PublicKey().String()),
		zap.Int64("cooldown_seconds", cfg.Issuer.CooldownSeconds))

	// ── HTTP server ───────────────────────────────────────────────────────────
	r := gin.New()
	r.Use(gin.Recovery(), metrics.Middleware())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api",
		issuer.RateLimit(rdb, cfg.Issuer.RateLimit, time.Duration(cfg.Issuer.RateWindowSec)*time.Second, log),
		auth.Middleware(rdb, log),
	)
	issuer.NewHandler(signer, log).Register(api)

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
