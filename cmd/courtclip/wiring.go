package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"courtclip/internal/branding"
	"courtclip/internal/config"
	"courtclip/internal/deps"
	"courtclip/internal/engine"
	"courtclip/internal/finishing"
	"courtclip/internal/heartbeat"
	"courtclip/internal/ledger"
	"courtclip/internal/notifications"
	"courtclip/internal/recency"
	"courtclip/internal/retry"
	"courtclip/internal/storage"
	"courtclip/internal/storage/local"
	"courtclip/internal/storage/minio"
	"courtclip/internal/telemetry"
)

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendMinio:
		store, err := minio.New(minio.Config{
			Endpoint:      cfg.Storage.Endpoint,
			AccessKey:     cfg.Storage.AccessKey,
			SecretKey:     cfg.Storage.SecretKey,
			Bucket:        cfg.Storage.Bucket,
			Region:        cfg.Storage.Region,
			UseSSL:        cfg.Storage.UseSSL,
			PublicBaseURL: cfg.Storage.PublicBaseURL,
			PresignExpiry: time.Duration(cfg.Storage.PresignExpiryHours) * time.Hour,
		})
		if err != nil {
			return nil, fmt.Errorf("open minio storage: %w", err)
		}
		return store, nil
	default:
		store, err := local.New(cfg.Storage.LocalRoot)
		if err != nil {
			return nil, fmt.Errorf("open local storage: %w", err)
		}
		return store, nil
	}
}

func newPublisher(cfg *config.Config, store storage.Store, metrics *telemetry.Metrics, logger *slog.Logger) *recency.Publisher {
	return recency.NewPublisher(store, recency.Options{
		ArchivePrefix: cfg.Storage.ArchivePrefix,
		FileName:      cfg.Index.FileName,
		Retention:     cfg.RetentionWindow(),
		PruneByAge:    cfg.Index.PruneByAge,
		Retry:         retry.FromConfig(cfg.Retry),
		Metrics:       metrics,
	}, logger)
}

func newHeartbeatStore(cfg *config.Config, store storage.Store, logger *slog.Logger) *heartbeat.Store {
	return heartbeat.NewStore(store, cfg.Storage.HeartbeatKey, cfg.LockPath("heartbeat"), retry.FromConfig(cfg.Retry), logger)
}

// newRunner wires a finishing runner. The returned close function releases
// the ledger.
func newRunner(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics, logger *slog.Logger) (*finishing.Runner, func(), error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	resolver, err := branding.NewResolver(cfg.Branding.ClubsRoot, cfg.Branding.PrimaryLogo, cfg.Branding.TertiaryLogoEnabled)
	if err != nil {
		return nil, nil, err
	}
	if missing := deps.MissingRequired(deps.CheckBinaries(deps.EngineRequirements(cfg.Finishing.FFmpegBinary, cfg.Finishing.FFprobeBinary))); len(missing) > 0 {
		return nil, nil, fmt.Errorf("%s: %s", missing[0].Name, missing[0].Detail)
	}
	eng, err := engine.NewFFmpeg(cfg.Finishing.FFmpegBinary, cfg.Finishing.FFprobeBinary, cfg.Finishing.ThreadsPerJob)
	if err != nil {
		return nil, nil, err
	}
	led, err := ledger.Open(ctx, cfg.LedgerPath())
	if err != nil {
		return nil, nil, err
	}
	runner, err := finishing.NewRunner(cfg, finishing.Deps{
		Store:    store,
		Engine:   eng,
		Branding: resolver,
		Ledger:   led,
		Notifier: notifications.NewService(cfg),
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		_ = led.Close()
		return nil, nil, err
	}
	return runner, func() { _ = led.Close() }, nil
}
