// Package clipstats keeps the clip metrics: an append-only CSV log with one
// row per archived clip and an aggregated stats document derived from it.
// The dedup registry decides which archived clips are already in the log.
package clipstats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"courtclip/internal/assetname"
	"courtclip/internal/config"
	"courtclip/internal/dedup"
	"courtclip/internal/logging"
	"courtclip/internal/retry"
	"courtclip/internal/services"
	"courtclip/internal/storage"
)

const (
	LogFileName   = "videos_log.csv"
	StatsFileName = "videos_stats.json"
)

// Options configures a Collector.
type Options struct {
	ArchivePrefix string
	MetricsPrefix string
	Location      *time.Location
	Retry         retry.Policy
	Now           func() time.Time
}

// OptionsFromConfig derives collector options from cfg.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	loc, err := time.LoadLocation(cfg.Telemetry.StatsTZ)
	if err != nil {
		return Options{}, services.Wrap(services.ErrConfiguration, "metrics", "load timezone", cfg.Telemetry.StatsTZ, err)
	}
	return Options{
		ArchivePrefix: cfg.Storage.ArchivePrefix,
		MetricsPrefix: cfg.Storage.MetricsPrefix,
		Location:      loc,
		Retry:         retry.FromConfig(cfg.Retry),
	}, nil
}

// Report summarizes one collection pass.
type Report struct {
	Archived int
	Added    int
	Rows     int
	Stats    Stats
}

// Collector appends newly archived clips to the log and refreshes the stats.
type Collector struct {
	store    storage.Store
	registry dedup.Registry
	opts     Options
	logger   *slog.Logger
}

// NewCollector constructs a collector.
func NewCollector(store storage.Store, registry dedup.Registry, opts Options, logger *slog.Logger) *Collector {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.Once()
	}
	return &Collector{
		store:    store,
		registry: registry,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "clipstats"),
	}
}

func (c *Collector) logKey() string   { return storage.Join(c.opts.MetricsPrefix, LogFileName) }
func (c *Collector) statsKey() string { return storage.Join(c.opts.MetricsPrefix, StatsFileName) }

type archived struct {
	id  string
	row Row
}

// Collect lists the archive, appends a row for every clip whose stable ID is
// not yet registered, records the new IDs and rewrites the stats document.
// The log is written before IDs are recorded, so a failure in between can
// repeat rows on the next pass but never loses one.
func (c *Collector) Collect(ctx context.Context) (Report, error) {
	ctx = services.WithStage(ctx, "metrics")
	logger := logging.WithContext(ctx, c.logger)

	clips, err := c.listArchive(ctx)
	if err != nil {
		return Report{}, err
	}
	ids := make([]string, 0, len(clips))
	for _, clip := range clips {
		ids = append(ids, clip.id)
	}
	seen, err := c.registry.Seen(ctx, ids)
	if err != nil {
		return Report{}, services.Wrap(services.ErrTransientIO, "metrics", "dedup lookup", "", err)
	}

	rows, err := c.readLog(ctx, logger)
	if err != nil {
		return Report{}, err
	}

	var newIDs []string
	queued := map[string]bool{}
	for _, clip := range clips {
		if seen[clip.id] || queued[clip.id] {
			continue
		}
		queued[clip.id] = true
		newIDs = append(newIDs, clip.id)
		rows = append(rows, clip.row)
	}

	if len(newIDs) > 0 {
		data, err := EncodeLog(rows)
		if err != nil {
			return Report{}, err
		}
		if err := c.write(ctx, c.logKey(), data, "text/csv"); err != nil {
			return Report{}, err
		}
		if _, err := c.registry.Record(ctx, newIDs); err != nil {
			return Report{}, services.Wrap(services.ErrTransientIO, "metrics", "dedup record", "", err)
		}
		logger.Info("clip log updated", logging.Int("added", len(newIDs)), logging.Int("rows", len(rows)))
	} else {
		logger.Info("no new clips; recomputing stats from the existing log", logging.Int("rows", len(rows)))
	}

	stats := Compute(rows, c.opts.Now())
	payload, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return Report{}, fmt.Errorf("encode stats: %w", err)
	}
	if err := c.write(ctx, c.statsKey(), payload, "application/json"); err != nil {
		return Report{}, err
	}
	return Report{Archived: len(clips), Added: len(newIDs), Rows: len(rows), Stats: stats}, nil
}

// listArchive returns every clip stored at {archive}/{venue}/{court}/{side}/{name}.mp4.
func (c *Collector) listArchive(ctx context.Context) ([]archived, error) {
	var objects []storage.Object
	err := c.opts.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		objects, err = c.store.List(ctx, c.opts.ArchivePrefix, true)
		return err
	})
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrTransientIO, "metrics", "list archive", c.opts.ArchivePrefix, err)
	}

	prefix := strings.Trim(c.opts.ArchivePrefix, "/")
	var clips []archived
	for _, obj := range objects {
		rel := strings.TrimPrefix(strings.TrimPrefix(obj.Key, prefix), "/")
		parts := strings.Split(rel, "/")
		if len(parts) != 4 || !strings.HasSuffix(strings.ToLower(parts[3]), ".mp4") {
			continue
		}
		cell := assetname.Cell{Venue: parts[0], Court: parts[1], Side: parts[2]}
		clips = append(clips, archived{
			id:  dedup.StableID(cell, parts[3]),
			row: NewRow(cell.Venue, cell.Court, cell.Side, obj.Modified, c.opts.Location),
		})
	}
	return clips, nil
}

func (c *Collector) readLog(ctx context.Context, logger *slog.Logger) ([]Row, error) {
	var data []byte
	err := c.opts.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		data, err = c.store.ReadObject(ctx, c.logKey())
		return err
	})
	switch {
	case errors.Is(err, services.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, services.Wrap(services.ErrTransientIO, "metrics", "read log", c.logKey(), err)
	}
	rows, err := ParseLog(data)
	if err != nil {
		// Rewriting would drop every existing row; refuse instead.
		logging.ErrorWithContext(logger, "clip log unreadable", "clip_log_corrupt",
			logging.String("key", c.logKey()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "repair the CSV at the logged key"),
		)
		return nil, services.Wrap(services.ErrRegistryCorruption, "metrics", "parse log", c.logKey(), err)
	}
	return rows, nil
}

func (c *Collector) write(ctx context.Context, key string, data []byte, contentType string) error {
	err := c.opts.Retry.Do(ctx, func(ctx context.Context) error {
		return c.store.WriteObject(ctx, key, data, contentType)
	})
	if err != nil {
		return services.Wrap(services.ErrTransientIO, "metrics", "write", key, err)
	}
	return nil
}
