package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Savvy-Save/Aetherium/internal/auth"
	"github.com/Savvy-Save/Aetherium/internal/platform"
	"github.com/Savvy-Save/Aetherium/internal/server"
	"github.com/Savvy-Save/Aetherium/internal/session"
	"github.com/Savvy-Save/Aetherium/internal/storage"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := platform.DisableCoreDumps(); err != nil {
		logger.Warn("could not disable core dumps", zap.Error(err))
	}

	addr := envOr("VAULTD_ADDR", ":8080")
	cfg := server.Config{
		MongoURI:   os.Getenv("VAULTD_MONGO_URI"),
		MongoDB:    envOr("VAULTD_MONGO_DB", "aetherium"),
		JWTIssuer:  envOr("VAULTD_JWT_ISSUER", "aetherium-backend"),
		TOTPIssuer: envOr("VAULTD_TOTP_ISSUER", "Aetherium"),
		Session:    session.Policy{LockTimeout: envDuration("VAULTD_LOCK_TIMEOUT", session.DefaultPolicy().LockTimeout)},
		SMTP: server.SMTPConfig{
			Host:     os.Getenv("VAULTD_SMTP_HOST"),
			Port:     os.Getenv("VAULTD_SMTP_PORT"),
			User:     os.Getenv("VAULTD_SMTP_USER"),
			Pass:     os.Getenv("VAULTD_SMTP_PASS"),
			From:     os.Getenv("VAULTD_SMTP_FROM"),
			Security: os.Getenv("VAULTD_SMTP_SECURITY"),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *server.Server
	if cfg.MongoURI != "" {
		srv, err = server.New(ctx, cfg, logger)
	} else {
		// No Mongo configured: run fully in memory. State is lost on exit.
		logger.Warn("VAULTD_MONGO_URI not set, using in-memory stores")
		srv, err = server.NewWithStores(cfg, auth.NewMemoryUserStore(), storage.NewMemoryStore(), logger)
	}
	if err != nil {
		logger.Fatal("server init", zap.Error(err))
	}

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutCtx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("serve", zap.Error(err))
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
