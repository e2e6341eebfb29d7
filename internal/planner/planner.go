// Package planner turns the inbound listing into an ordered batch.
package planner

import (
	"log/slog"
	"sort"

	"courtclip/internal/assetname"
	"courtclip/internal/logging"
)

// Order selects the timestamp direction of a batch.
type Order string

const (
	NewestFirst Order = "newest-first"
	OldestFirst Order = "oldest-first"
)

// Plan is the outcome of planning one batch.
type Plan struct {
	// Selected holds at most limit parseable names in processing order.
	Selected []assetname.Name
	// Deferred holds parseable names cut by the limit, in processing order.
	Deferred []assetname.Name
	// Skipped holds names that failed to parse, in listing order.
	Skipped []string
}

// Ordered returns the full ordering: every parseable name first, then the
// skipped ones.
func (p Plan) Ordered() []string {
	out := make([]string, 0, len(p.Selected)+len(p.Deferred)+len(p.Skipped))
	for _, n := range p.Selected {
		out = append(out, n.Filename)
	}
	for _, n := range p.Deferred {
		out = append(out, n.Filename)
	}
	return append(out, p.Skipped...)
}

// Build parses, sorts and truncates pending. Invalid names never count toward
// limit; each is logged once. limit <= 0 means unlimited. Duplicate listing
// entries are collapsed.
func Build(pending []string, order Order, limit int, logger *slog.Logger) Plan {
	logger = logging.NewComponentLogger(logger, "planner")
	seen := make(map[string]struct{}, len(pending))
	var plan Plan
	valid := make([]assetname.Name, 0, len(pending))
	for _, raw := range pending {
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		name, err := assetname.Parse(raw)
		if err != nil {
			plan.Skipped = append(plan.Skipped, raw)
			logger.Info("skipping asset with invalid name",
				logging.String(logging.FieldEventType, "asset_skipped"),
				logging.String(logging.FieldAsset, raw),
				logging.Error(err),
			)
			continue
		}
		valid = append(valid, name)
	}

	sort.SliceStable(valid, func(i, j int) bool {
		a, b := valid[i], valid[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			if order == OldestFirst {
				return a.Timestamp.Before(b.Timestamp)
			}
			return a.Timestamp.After(b.Timestamp)
		}
		return a.Filename < b.Filename
	})

	if limit > 0 && len(valid) > limit {
		plan.Selected = valid[:limit]
		plan.Deferred = valid[limit:]
	} else {
		plan.Selected = valid
	}
	return plan
}
