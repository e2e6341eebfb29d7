package clipstats_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"courtclip/internal/clipstats"
	"courtclip/internal/dedup"
	"courtclip/internal/logging"
	"courtclip/internal/services"
	"courtclip/internal/testsupport"
)

var collectedAt = time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)

func newCollector(t *testing.T, store *testsupport.MemoryStore) (*clipstats.Collector, dedup.Registry) {
	t.Helper()
	registry, err := dedup.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "courtclip.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = registry.Close() })
	collector := clipstats.NewCollector(store, registry, clipstats.Options{
		ArchivePrefix: "Locaciones",
		MetricsPrefix: "Metricas",
		Location:      time.UTC,
		Now:           func() time.Time { return collectedAt },
	}, logging.NewNop())
	return collector, registry
}

func seedArchive(store *testsupport.MemoryStore) {
	at := time.Date(2025, 3, 1, 20, 5, 0, 0, time.UTC)
	store.Put("Locaciones/Arena/Court1/SideA/Arena_Court1_SideA_20250301_200000.mp4", []byte("a"), at)
	store.Put("Locaciones/Arena/Court1/SideB/Arena_Court1_SideB_20250301_200000.MP4", []byte("b"), at)
	store.Put("Locaciones/Arena/Court1/SideA/videos_recientes.json", []byte("{}"), at)
	store.Put("Locaciones/Arena/Court1/stray.mp4", []byte("c"), at)
	store.Put("Locaciones/Arena/Court1/SideA/old/nested.mp4", []byte("d"), at)
}

func TestCollectAppendsOnlyNewClips(t *testing.T) {
	store := testsupport.NewMemoryStore()
	seedArchive(store)
	collector, registry := newCollector(t, store)

	report, err := collector.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Archived != 2 || report.Added != 2 || report.Rows != 2 {
		t.Fatalf("unexpected first report %+v", report)
	}
	if n, _ := registry.Count(context.Background()); n != 2 {
		t.Fatalf("expected two registered ids, got %d", n)
	}

	report, err = collector.Collect(context.Background())
	if err != nil {
		t.Fatalf("second Collect: %v", err)
	}
	if report.Added != 0 || report.Rows != 2 {
		t.Fatalf("expected no new rows on the second pass, got %+v", report)
	}

	store.Put("Locaciones/Arena/Court1/SideA/Arena_Court1_SideA_20250301_210000.mp4", []byte("e"), time.Date(2025, 3, 1, 21, 1, 0, 0, time.UTC))
	report, err = collector.Collect(context.Background())
	if err != nil {
		t.Fatalf("third Collect: %v", err)
	}
	if report.Added != 1 || report.Rows != 3 {
		t.Fatalf("unexpected third report %+v", report)
	}

	data, ok := store.Get("Metricas/videos_log.csv")
	if !ok {
		t.Fatal("expected clip log")
	}
	rows, err := clipstats.ParseLog(data)
	if err != nil || len(rows) != 3 {
		t.Fatalf("unexpected log rows %+v %v", rows, err)
	}
	if rows[2].Hour != "21" || rows[2].Side != "SideA" {
		t.Fatalf("unexpected appended row %+v", rows[2])
	}

	var stats clipstats.Stats
	raw, ok := store.Get("Metricas/videos_stats.json")
	if !ok {
		t.Fatal("expected stats document")
	}
	if err := json.Unmarshal(raw, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if len(stats.ByDay) != 1 || stats.ByDay[0].Count != 3 {
		t.Fatalf("unexpected stats %+v", stats.ByDay)
	}
	if stats.GeneratedAt != "2025-03-02T12:00:00Z" {
		t.Fatalf("unexpected generated_at %q", stats.GeneratedAt)
	}
}

func TestCollectKeepsExistingLogRows(t *testing.T) {
	store := testsupport.NewMemoryStore()
	store.Put("Metricas/videos_log.csv", []byte("loc,can,lado,local_date,local_hour\nClub,Court2,North,2025-02-01,08\n"), collectedAt)
	seedArchive(store)
	collector, _ := newCollector(t, store)

	report, err := collector.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Rows != 3 || report.Added != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestCollectRefusesUnreadableLog(t *testing.T) {
	store := testsupport.NewMemoryStore()
	store.Put("Metricas/videos_log.csv", []byte("loc,can,lado\n\"unterminated,x\n"), collectedAt)
	seedArchive(store)
	collector, registry := newCollector(t, store)

	_, err := collector.Collect(context.Background())
	if !errors.Is(err, services.ErrRegistryCorruption) {
		t.Fatalf("expected registry corruption, got %v", err)
	}
	if n, _ := registry.Count(context.Background()); n != 0 {
		t.Fatalf("expected no ids recorded, got %d", n)
	}
}

func TestCollectLogWriteFailureRecordsNothing(t *testing.T) {
	store := testsupport.NewMemoryStore()
	seedArchive(store)
	store.FailOn("write", "Metricas/videos_log.csv", services.Wrap(services.ErrTransientIO, "storage", "write", "", errors.New("offline")))
	collector, registry := newCollector(t, store)

	if _, err := collector.Collect(context.Background()); !errors.Is(err, services.ErrTransientIO) {
		t.Fatalf("expected transient failure, got %v", err)
	}
	if n, _ := registry.Count(context.Background()); n != 0 {
		t.Fatalf("expected ids to stay unrecorded, got %d", n)
	}
}

func TestCollectEmptyArchive(t *testing.T) {
	store := testsupport.NewMemoryStore()
	collector, _ := newCollector(t, store)
	report, err := collector.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Archived != 0 || report.Rows != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if _, ok := store.Get("Metricas/videos_stats.json"); !ok {
		t.Fatal("expected stats document even without clips")
	}
	if _, ok := store.Get("Metricas/videos_log.csv"); ok {
		t.Fatal("expected no log without clips")
	}
}
