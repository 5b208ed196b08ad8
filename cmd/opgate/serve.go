package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/lborres/opgate"
	fiberadapter "github.com/lborres/opgate/adapters/fiber"
	"github.com/lborres/opgate/adapters/gotrue"
	"github.com/lborres/opgate/adapters/localidp"
	"github.com/lborres/opgate/adapters/mail"
	"github.com/lborres/opgate/internal/config"
	"github.com/lborres/opgate/internal/logger"
	"github.com/lborres/opgate/internal/metrics"
	"github.com/lborres/opgate/pkg/cache"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the auth endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.Named("serve")

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	provider, err := identityProvider(cfg)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	identityCache, closeCache, err := identityCache(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer closeCache()

	app := fiber.New(fiber.Config{AppName: "opgate"})
	app.Get("/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "version": version})
	})
	if m != nil {
		app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	}

	var opts []fiberadapter.Option
	if m != nil {
		opts = append(opts, fiberadapter.WithMetrics(m))
	}

	_, err = opgate.New(opgate.Config{
		Database:      store,
		Identity:      provider,
		HTTP:          fiberadapter.New(app, opts...),
		DashboardURL:  cfg.DashboardURL,
		IdentityCache: identityCache,
		DisableCache:  cfg.IdentityCache == config.CacheNone,
		Notifier:      resetNotifier(cfg),
		ResetTTL:      cfg.ResetTTL(),
		BasePath:      cfg.BasePath,
	})
	if err != nil {
		return fmt.Errorf("build opgate: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("base_path", cfg.BasePath),
			zap.String("store", cfg.StoreDriver),
			zap.String("identity_provider", cfg.IdentityProvider),
		)
		errCh <- app.Listen(cfg.HTTPAddr, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func identityProvider(cfg *config.Config) (opgate.IdentityProvider, error) {
	switch cfg.IdentityProvider {
	case config.ProviderLocal:
		p, err := localidp.New(localidp.Config{Secret: cfg.LocalIDPSecret})
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.ProviderGoTrue:
		return gotrue.New(gotrue.Config{
			URL:            cfg.ResolvedGoTrueURL(),
			ServiceRoleKey: cfg.ResolvedServiceRoleKey(),
		}), nil
	default:
		return nil, fmt.Errorf("unknown identity provider %q", cfg.IdentityProvider)
	}
}

// identityCache returns nil for IDENTITY_CACHE=none.
func identityCache(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (opgate.IdentityCache, func(), error) {
	noop := func() {}

	switch cfg.IdentityCache {
	case config.CacheRedis:
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.CacheTTL(),
		})
		if err != nil {
			return nil, nil, err
		}
		return rc, func() { _ = rc.Close() }, nil

	case config.CacheMemory:
		mc := cache.NewInMemoryCache(opgate.CacheConfig{TTL: cfg.CacheTTL(), MaxSize: 1000})
		if m != nil {
			if err := m.WatchCache(config.CacheMemory, mc.Stats); err != nil {
				return nil, nil, err
			}
		}
		return mc, noop, nil

	default:
		return nil, noop, nil
	}
}

func resetNotifier(cfg *config.Config) opgate.ResetNotifier {
	if cfg.SMTPHost != "" {
		return mail.NewSMTPNotifier(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			TLSMode:  cfg.SMTPTLSMode,
		})
	}
	if cfg.IsProduction() {
		logger.Named("serve").Warn("SMTP_HOST not set, reset links will not be delivered")
		return nil
	}
	return mail.NewConsoleNotifier(os.Stderr)
}
