package ledger_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"courtclip/internal/ledger"
)

func openStore(t *testing.T) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(context.Background(), filepath.Join(t.TempDir(), "state", "courtclip.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndLatest(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	entries := []ledger.Outcome{
		{RunID: "run-1", JobID: "a", Asset: "A_1_x_20250101_100000.mp4", Status: "ok", Duration: 1500 * time.Millisecond, FinishedAt: base},
		{RunID: "run-1", JobID: "b", Asset: "A_1_x_20250101_110000.mp4", Status: "brand-failed", Stage: "brand", Error: "encode failure", FinishedAt: base.Add(time.Minute)},
		{RunID: "run-2", JobID: "c", Asset: "A_1_x_20250101_120000.mp4", Status: "ok", Skipped: true, FinishedAt: base.Add(2 * time.Minute)},
	}
	for _, entry := range entries {
		if _, err := store.Record(ctx, entry); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	latest, err := store.Latest(ctx, 2)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(latest))
	}
	if latest[0].JobID != "c" || !latest[0].Skipped {
		t.Fatalf("unexpected newest outcome %+v", latest[0])
	}
	if latest[1].Stage != "brand" || latest[1].Error != "encode failure" {
		t.Fatalf("unexpected second outcome %+v", latest[1])
	}

	run, err := store.ForRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("ForRun: %v", err)
	}
	if len(run) != 2 || run[0].Duration != 1500*time.Millisecond {
		t.Fatalf("unexpected run outcomes %+v", run)
	}

	counts, err := store.StatusCounts(ctx, base)
	if err != nil {
		t.Fatalf("StatusCounts: %v", err)
	}
	if counts["ok"] != 2 || counts["brand-failed"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}

	removed, err := store.Prune(ctx, base.Add(90*time.Second))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 pruned outcomes, got %d", removed)
	}
}

func TestRecordRequiresAssetAndStatus(t *testing.T) {
	store := openStore(t)
	if _, err := store.Record(context.Background(), ledger.Outcome{Status: "ok"}); err == nil {
		t.Fatal("expected error without asset")
	}
	if _, err := store.Record(context.Background(), ledger.Outcome{Asset: "x.mp4"}); err == nil {
		t.Fatal("expected error without status")
	}
}

func TestAddClipsIsAppendOnly(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	now := time.Now()

	added, err := store.AddClips(ctx, []string{"aaa", "bbb"}, now)
	if err != nil {
		t.Fatalf("AddClips: %v", err)
	}
	if added != 2 {
		t.Fatalf("expected 2 new ids, got %d", added)
	}
	added, err = store.AddClips(ctx, []string{"bbb", "ccc"}, now)
	if err != nil {
		t.Fatalf("AddClips: %v", err)
	}
	if added != 1 {
		t.Fatalf("expected 1 new id, got %d", added)
	}
	count, err := store.ClipCount(ctx)
	if err != nil {
		t.Fatalf("ClipCount: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 ids, got %d", count)
	}
	seen, err := store.HasClip(ctx, "ccc")
	if err != nil || !seen {
		t.Fatalf("expected ccc to be recorded, seen=%v err=%v", seen, err)
	}
	seen, err = store.HasClip(ctx, "zzz")
	if err != nil || seen {
		t.Fatalf("expected zzz to be absent, seen=%v err=%v", seen, err)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "courtclip.db")
	store, err := ledger.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("update version: %v", err)
	}
	_ = db.Close()

	if _, err := ledger.Open(context.Background(), path); !errors.Is(err, ledger.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "courtclip.db")
	ctx := context.Background()
	store, err := ledger.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := store.AddClips(ctx, []string{"abc"}, time.Now()); err != nil {
		t.Fatalf("AddClips: %v", err)
	}
	_ = store.Close()

	reopened, err := ledger.Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if count, _ := reopened.ClipCount(ctx); count != 1 {
		t.Fatalf("expected data to persist, count=%d", count)
	}
}
