package router

import (
	"context"
	"errors"
	"fmt"

	"isp-contracts/internal/adapters/auth/jwt"
	billingclient "isp-contracts/internal/adapters/billing"
	rediscache "isp-contracts/internal/adapters/cache/redis"
	"isp-contracts/internal/adapters/storage/objectstore"
	pg "isp-contracts/internal/adapters/storage/postgres"
	"isp-contracts/internal/domain/signatures"
	"isp-contracts/internal/platform/config"
	"isp-contracts/internal/platform/logger"
)

// FromConfig abre los adapters configurados. Lo que no está configurado queda en nil
// y NewRouter cae a memoria o modo dev. cleanup libera lo abierto.
func FromConfig(ctx context.Context, cfg config.Config, log logger.Logger) (opts Options, cleanup func(), err error) {
	var closers []func() error
	cleanup = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}
	defer func() {
		if err != nil {
			cleanup()
		}
	}()

	opts.Logger = log
	opts.Signature = signatures.Options{MinInkCoverage: cfg.Signature.MinInkCoverage}

	if cfg.Database.DSN != "" {
		db, err := pg.Open(cfg.Database.DSN)
		if err != nil {
			return Options{}, cleanup, fmt.Errorf("open postgres: %w", err)
		}
		closers = append(closers, db.Close)
		opts.DB = db
		log.Info("using postgres stores", nil)
	} else {
		log.Warn("DB_DSN not set, using in-memory stores", nil)
	}

	if cfg.Minio.Endpoint != "" {
		store, err := objectstore.NewArtifactStore(objectstore.Config{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
		})
		if err != nil {
			return Options{}, cleanup, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return Options{}, cleanup, err
		}
		opts.Artifacts = store
		log.Info("using minio artifact store", map[string]any{"bucket": cfg.Minio.Bucket})
	}

	cache, err := rediscache.New(ctx, cfg.Redis.URL, cfg.Redis.TTL)
	if err != nil {
		return Options{}, cleanup, err
	}
	// cache es *DocumentCache nil cuando no hay URL: no asignarlo a la interfaz
	if cache != nil {
		closers = append(closers, cache.Close)
		opts.Cache = cache
	}

	if cfg.Auth.JWTSecret != "" {
		opts.AuthVerifier = jwt.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	} else {
		log.Warn("JWT_SECRET not set, accepting X-Debug-User-ID", nil)
	}

	notifier, err := billingclient.NewClient(billingclient.Config{
		BaseURL: cfg.Billing.BaseURL,
		Token:   cfg.Billing.Token,
		Timeout: cfg.Billing.Timeout,
	})
	switch {
	case errors.Is(err, billingclient.ErrBillingNotConfigured):
		log.Info("billing notifications disabled", nil)
	case err != nil:
		return Options{}, cleanup, err
	default:
		opts.Notifier = notifier
	}

	return opts, cleanup, nil
}
