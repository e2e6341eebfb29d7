package finishing_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"courtclip/internal/config"
	"courtclip/internal/finishing"
	"courtclip/internal/pool"
	"courtclip/internal/services"
	"courtclip/internal/testsupport"
)

func TestRunHonoursBatchLimitAndOrder(t *testing.T) {
	f := newFixture(t, testsupport.WithFinishing(config.OrderNewestFirst, 2, 2))
	names := []string{
		"Arena_Court1_SideA_20250101_100000.mp4",
		"Arena_Court1_SideA_20250101_130000.mp4",
		"Arena_Court1_SideB_20250101_110000.mp4",
		"Arena_Court2_SideA_20250101_120000.mp4",
	}
	for _, name := range names {
		f.mem.Put(f.inbound(name), []byte("raw"), time.Now())
	}
	f.mem.Put(f.inbound("bad_name.mp4"), []byte("raw"), time.Now())
	f.mem.Put(f.inbound("heartbeats.txt"), []byte("{}"), time.Now())

	summary, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Tally.OK != 2 || summary.Tally.Failed != 0 {
		t.Fatalf("unexpected tally %+v", summary.Tally)
	}
	if len(summary.Plan.Skipped) != 1 || summary.Plan.Skipped[0] != "bad_name.mp4" {
		t.Fatalf("expected the invalid name to be skipped, got %v", summary.Plan.Skipped)
	}
	if len(summary.Plan.Deferred) != 2 {
		t.Fatalf("expected two deferred clips, got %d", len(summary.Plan.Deferred))
	}
	published := []string{
		"Locaciones/Arena/Court1/SideA/Arena_Court1_SideA_20250101_130000.mp4",
		"Locaciones/Arena/Court2/SideA/Arena_Court2_SideA_20250101_120000.mp4",
	}
	for _, key := range published {
		if !f.mem.Has(key) {
			t.Fatalf("expected %s to be published", key)
		}
	}
	for _, name := range []string{names[0], names[2], "bad_name.mp4", "heartbeats.txt"} {
		if !f.mem.Has(f.inbound(name)) {
			t.Fatalf("expected %s to stay in inbound", name)
		}
	}

	outcomes, err := f.ledger.ForRun(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("ForRun: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected two recorded outcomes, got %d", len(outcomes))
	}
	if _, err := os.Stat(filepath.Join(f.cfg.Paths.StagingDir, summary.RunID)); !os.IsNotExist(err) {
		t.Fatal("run directory should be removed")
	}
}

func TestRunReportsAllFailed(t *testing.T) {
	f := newFixture(t)
	f.mem.Put(f.inbound(clip), []byte("raw"), time.Now())
	f.mem.Put(f.inbound("Arena_Court1_SideA_20250101_120500.mp4"), []byte("raw"), time.Now())
	f.engine.overlayErr = services.Wrap(services.ErrEncodeFailure, "engine", "ffmpeg", "exit 1", nil)

	summary, err := f.runner.Run(context.Background())
	if !errors.Is(err, pool.ErrAllFailed) {
		t.Fatalf("expected all-failed error, got %v", err)
	}
	if summary.Tally.Failed != 2 || len(summary.Results) != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	for _, res := range summary.Results {
		if res.Status != finishing.StatusBrandFailed {
			t.Fatalf("unexpected status %s", res.Status)
		}
	}
}

func TestRunPartialFailureIsSuccess(t *testing.T) {
	f := newFixture(t)
	f.mem.Put(f.inbound(clip), []byte("raw"), time.Now())
	other := "Arena_Court1_SideA_20250101_120500.mp4"
	f.mem.Put(f.inbound(other), []byte("raw"), time.Now())
	f.mem.FailOn("download", f.inbound(other), services.Wrap(services.ErrNotFound, "storage", "download", other, nil))

	summary, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("expected partial failure to succeed, got %v", err)
	}
	if summary.Tally.OK != 1 || summary.Tally.Failed != 1 {
		t.Fatalf("unexpected tally %+v", summary.Tally)
	}
}

func TestRunEmptyInboundSucceeds(t *testing.T) {
	f := newFixture(t)
	summary, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Tally.Total() != 0 {
		t.Fatalf("expected empty tally, got %+v", summary.Tally)
	}
}

func TestRunSingleFileOverride(t *testing.T) {
	f := newFixture(t)
	other := "Arena_Court1_SideA_20250101_120500.mp4"
	f.mem.Put(f.inbound(clip), []byte("raw"), time.Now())
	f.mem.Put(f.inbound(other), []byte("raw"), time.Now())
	f.cfg.Finishing.SingleFile = other

	summary, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Results) != 1 || summary.Results[0].Filename != other {
		t.Fatalf("expected only %s to run, got %+v", other, summary.Results)
	}
	if !f.mem.Has(f.inbound(clip)) {
		t.Fatal("other clips must be left alone")
	}
}

func TestRunRefusesConcurrentRun(t *testing.T) {
	f := newFixture(t)
	lockPath := f.cfg.LockPath("finishing")
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		t.Fatal(err)
	}
	held := flock.New(lockPath)
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("could not take lock: ok=%v err=%v", ok, err)
	}
	defer held.Unlock()

	if _, err := f.runner.Run(context.Background()); !errors.Is(err, finishing.ErrRunInProgress) {
		t.Fatalf("expected run in progress, got %v", err)
	}
}
