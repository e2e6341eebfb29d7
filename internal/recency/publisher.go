// Package recency publishes the per-cell index of recently finished clips.
package recency

import (
	"context"
	"encoding/json"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"courtclip/internal/assetname"
	"courtclip/internal/logging"
	"courtclip/internal/retry"
	"courtclip/internal/services"
	"courtclip/internal/storage"
	"courtclip/internal/telemetry"
)

// DefaultFileName is the index document name inside a cell folder.
const DefaultFileName = "videos_recientes.json"

var disambiguationSuffix = regexp.MustCompile(` \(\d+\)$`)

// BaseName strips a trailing " (N)" disambiguation suffix from the stem of
// name. Other parenthesized text is left untouched.
func BaseName(name string) string {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return disambiguationSuffix.ReplaceAllString(stem, "") + ext
}

// Options configures a Publisher.
type Options struct {
	ArchivePrefix string
	FileName      string
	Retention     time.Duration
	PruneByAge    bool
	Retry         retry.Policy
	Metrics       *telemetry.Metrics
	Now           func() time.Time
}

// Publisher regenerates recency indexes.
type Publisher struct {
	store   storage.Store
	opts    Options
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// NewPublisher constructs a publisher over store.
func NewPublisher(store storage.Store, opts Options, logger *slog.Logger) *Publisher {
	if opts.FileName == "" {
		opts.FileName = DefaultFileName
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.Once()
	}
	return &Publisher{
		store:   store,
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "recency"),
		metrics: opts.Metrics,
	}
}

// Folder returns the storage prefix of a cell.
func (p *Publisher) Folder(cell assetname.Cell) string {
	return storage.Join(p.opts.ArchivePrefix, cell.Venue, cell.Court, cell.Side)
}

// Publish lists the cell folder, removes disambiguated duplicates, applies the
// retention window and overwrites the index document. Storage failures while
// deleting duplicates or pruning are logged and do not fail the publish.
func (p *Publisher) Publish(ctx context.Context, cell assetname.Cell) (Index, error) {
	if !cell.Valid() {
		return Index{}, services.Wrap(services.ErrValidation, "index", "publish", "cell requires venue, court and side", nil)
	}
	folder := p.Folder(cell)
	logger := p.logger.With(logging.Cell(cell.Path()))

	var objects []storage.Object
	err := p.opts.Retry.Do(ctx, func(ctx context.Context) error {
		var listErr error
		objects, listErr = p.store.List(ctx, folder, false)
		return listErr
	})
	if err != nil {
		return Index{}, services.Wrap(services.ErrTransientIO, "index", "list", folder, err)
	}

	now := p.opts.Now()
	cutoff := now.Add(-p.opts.Retention)
	videos := make([]storage.Object, 0, len(objects))
	for _, obj := range objects {
		name := obj.Name()
		if name == p.opts.FileName || !assetname.IsVideo(name) {
			continue
		}
		videos = append(videos, obj)
	}
	survivors := pickSurvivors(videos)

	kept := make([]storage.Object, 0, len(survivors))
	for _, obj := range videos {
		if survivors[BaseName(obj.Name())] != obj.Key {
			p.remove(ctx, logger, obj, "duplicate")
			continue
		}
		if obj.Modified.Before(cutoff) {
			if p.opts.PruneByAge {
				p.remove(ctx, logger, obj, "expired")
			}
			continue
		}
		kept = append(kept, obj)
	}

	entries := make([]Entry, 0, len(kept))
	for _, obj := range kept {
		link, err := p.store.PublicURL(ctx, obj.Key)
		if err != nil {
			logging.WarnWithContext(logger, "public url unavailable", "index_url_failed",
				logging.String("key", obj.Key),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check storage credentials and bucket policy"),
				logging.String(logging.FieldImpact, "clip omitted from the recency index"),
			)
			continue
		}
		entries = append(entries, Entry{Nombre: obj.Name(), URL: storage.RewriteShareLink(link)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Nombre > entries[j].Nombre })

	index := Index{Videos: entries, GeneradoEl: now.UTC()}
	payload, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return Index{}, services.Wrap(services.ErrValidation, "index", "encode", "", err)
	}
	key := storage.Join(folder, p.opts.FileName)
	err = p.opts.Retry.Do(ctx, func(ctx context.Context) error {
		return p.store.WriteObject(ctx, key, payload, "application/json")
	})
	if err != nil {
		return Index{}, services.Wrap(services.ErrTransientIO, "index", "write", key, err)
	}

	p.metrics.IndexPublished(cell.Path(), len(entries))
	logger.Info("recency index published",
		logging.String(logging.FieldEventType, "index_published"),
		logging.Int("entries", len(entries)),
		logging.String("key", key),
	)
	return index, nil
}

func (p *Publisher) remove(ctx context.Context, logger *slog.Logger, obj storage.Object, reason string) {
	if err := p.store.Delete(ctx, obj.Key); err != nil {
		logging.WarnWithContext(logger, "failed to delete clip from archive", "index_delete_failed",
			logging.String("key", obj.Key),
			logging.String("reason", reason),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the next publish will retry the delete"),
			logging.String(logging.FieldImpact, "clip left in storage but excluded from the index"),
		)
		return
	}
	logger.Info("removed clip from archive",
		logging.String(logging.FieldEventType, "index_clip_removed"),
		logging.String("key", obj.Key),
		logging.String("reason", reason),
	)
}

// pickSurvivors maps each base name to the key that stays in the cell. The
// undecorated name wins; otherwise the first listed copy does. Backends list
// "X (1).mp4" before "X.mp4", so listing order alone would keep the copy.
func pickSurvivors(videos []storage.Object) map[string]string {
	survivors := make(map[string]string, len(videos))
	for _, obj := range videos {
		name := obj.Name()
		base := BaseName(name)
		if _, ok := survivors[base]; !ok || name == base {
			survivors[base] = obj.Key
		}
	}
	return survivors
}
