package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tiendapos/backend/internal/cache"
	"tiendapos/backend/internal/config"
	"tiendapos/backend/internal/httpapi"
	"tiendapos/backend/internal/obs"
	"tiendapos/backend/internal/service"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/store/memory"
	pgstore "tiendapos/backend/internal/store/postgres"
)

// validateSecurityConfig rejects credentials too weak for a deployment
// backed by a real database. Dev mode (no DATABASE_URL) is exempt.
func validateSecurityConfig(cfg config.Config) error {
	if cfg.DatabaseURL == "" {
		return nil
	}
	if len(cfg.AuthSecret) < 32 {
		return errors.New("AUTH_SECRET must be at least 32 characters when DATABASE_URL is set")
	}
	if cfg.AdminPINHash == "" && cfg.AdminPIN != "" && len(cfg.AdminPIN) < 6 {
		return errors.New("ADMIN_PIN must be at least 6 characters; prefer ADMIN_PIN_HASH")
	}
	return nil
}

func main() {
	cfg := config.Load()
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel)

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("refusing to start with weak security config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set; refusing in-memory fallback")
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("schema migration failed")
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info().Msg("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Info().Msg("repository: in-memory (seeded)")
	}

	settingsCache := cache.SettingsCache(cache.NoopSettingsCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSettingsCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, using noop settings cache")
		} else {
			settingsCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info().Msg("settings cache: redis")
		}
	} else {
		logger.Info().Msg("settings cache: noop")
	}

	metrics := obs.NewMetrics("tiendapos", nil)
	svc := service.New(repo, settingsCache, metrics, logger, cfg.DefaultTaxRate,
		time.Duration(cfg.SettingsCacheTTLSeconds)*time.Second)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute,
		cfg.AdminPIN, cfg.AdminPINHash)
	api := httpapi.New(svc, auth, metrics, logger, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Address()).Msg("POS backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error().Err(err).Msg("close error")
		}
	}

	logger.Info().Msg("server stopped")
}
