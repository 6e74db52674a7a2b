package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/julienbonastre/produce-shipping/internal/auth"
	"github.com/julienbonastre/produce-shipping/internal/config"
	"github.com/julienbonastre/produce-shipping/internal/database"
	"github.com/julienbonastre/produce-shipping/internal/handlers"
	"github.com/julienbonastre/produce-shipping/internal/logging"
	"github.com/julienbonastre/produce-shipping/internal/metrics"
	"github.com/julienbonastre/produce-shipping/internal/quote"
	settingsync "github.com/julienbonastre/produce-shipping/internal/sync"
)

const sessionCleanupInterval = time.Hour

func main() {
	// Command line flags
	configPath := flag.String("config", "", "Path to a YAML config file (optional; SHIPCALC_* env vars override it)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("database ready", zap.String("path", cfg.Database.Path))

	sessionStore := database.NewSessionStore(db, cfg.Server.Secure, []byte(cfg.Auth.SessionKey))

	var secrets *database.SecretBox
	if cfg.Auth.EncryptionKey != "" {
		key, err := database.ParseEncryptionKey(cfg.Auth.EncryptionKey)
		if err != nil {
			return fmt.Errorf("auth.encryption_key: %w", err)
		}
		if secrets, err = database.NewSecretBox(key); err != nil {
			return err
		}
	} else if cfg.Auth.OAuthEnabled() {
		logger.Warn("auth.encryption_key not set; refresh tokens will not be stored")
	}

	authn := auth.New(auth.Config{
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		AuthURL:      cfg.Auth.AuthURL,
		TokenURL:     cfg.Auth.TokenURL,
		UserInfoURL:  cfg.Auth.UserInfoURL,
		RedirectURL:  cfg.Auth.RedirectURL,
		Scopes:       cfg.Auth.Scopes,
	}, db, sessionStore, secrets, logger)

	if cfg.Auth.DevTenant != "" {
		tenant, created, err := db.GetOrCreateTenantFromLogin(ctx, "dev:"+cfg.Auth.DevTenant, "", cfg.Auth.DevTenant)
		if err != nil {
			return fmt.Errorf("failed to prepare dev tenant: %w", err)
		}
		if created {
			if err := db.SeedDefaultRules(ctx, tenant.ID); err != nil {
				return fmt.Errorf("failed to seed dev tenant: %w", err)
			}
		}
		authn.SetDevTenant(tenant.ID)
		logger.Warn("dev tenant enabled; every request acts as this tenant",
			zap.String("tenant", cfg.Auth.DevTenant),
			zap.Int64("tenant_id", tenant.ID))
	}

	m := metrics.New()
	quotes := quote.NewService(db, logger, m)
	h := handlers.NewHandler(db, quotes, settingsync.NewService(db, logger), authn, logger, m)

	go cleanupSessions(ctx, sessionStore, logger)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting shipping calculator",
			zap.String("addr", "http://localhost"+server.Addr),
			zap.Bool("oauth", authn.OAuthEnabled()))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func cleanupSessions(ctx context.Context, store *database.SessionStore, logger *zap.Logger) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.CleanupExpiredSessions(ctx)
			if err != nil {
				logger.Warn("session cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("expired sessions removed", zap.Int64("count", n))
			}
		}
	}
}
