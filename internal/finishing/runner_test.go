package finishing_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"courtclip/internal/branding"
	"courtclip/internal/config"
	"courtclip/internal/engine"
	"courtclip/internal/finishing"
	"courtclip/internal/ledger"
	"courtclip/internal/logging"
	"courtclip/internal/retry"
	"courtclip/internal/services"
	"courtclip/internal/telemetry"
	"courtclip/internal/testsupport"
)

const clip = "Arena_Court1_SideA_20250101_120000.mp4"

type fakeEngine struct {
	mu          sync.Mutex
	overlays    []branding.Bundle
	concats     [][]engine.Segment
	overlayErr  error
	concatErr   error
	overlayHook func(input string)
}

func (f *fakeEngine) ApplyOverlays(_ context.Context, input string, bundle branding.Bundle, output string) error {
	f.mu.Lock()
	f.overlays = append(f.overlays, bundle)
	hook := f.overlayHook
	f.mu.Unlock()
	if hook != nil {
		hook(input)
	}
	if f.overlayErr != nil {
		return f.overlayErr
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	return os.WriteFile(output, append([]byte("branded:"), data...), 0o644)
}

func (f *fakeEngine) Concatenate(_ context.Context, segments []engine.Segment, output string) error {
	f.mu.Lock()
	f.concats = append(f.concats, segments)
	f.mu.Unlock()
	if f.concatErr != nil {
		return f.concatErr
	}
	return os.WriteFile(output, []byte("spliced"), 0o644)
}

type fixture struct {
	cfg    *config.Config
	mem    *testsupport.MemoryStore
	engine *fakeEngine
	runner *finishing.Runner
	ledger *ledger.Store
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	resolver, err := branding.NewResolver(cfg.Branding.ClubsRoot, cfg.Branding.PrimaryLogo, cfg.Branding.TertiaryLogoEnabled)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	store, err := ledger.Open(context.Background(), cfg.LedgerPath())
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{cfg: cfg, mem: testsupport.NewMemoryStore(), engine: &fakeEngine{}, ledger: store}
	runner, err := finishing.NewRunner(cfg, finishing.Deps{
		Store:    f.mem,
		Engine:   f.engine,
		Branding: resolver,
		Ledger:   store,
		Metrics:  telemetry.NewMetrics(),
		Logger:   logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	f.runner = runner.WithRetryPolicies(retry.Once(), retry.Once())
	return f
}

func (f *fixture) inbound(name string) string { return "Entrantes/" + name }

func (f *fixture) assertWorkspaceGone(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.cfg.Paths.StagingDir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("read staging: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected staging dir to be empty, found %d entries", len(entries))
	}
}

func TestFinishWithOnlyPrimaryLogo(t *testing.T) {
	f := newFixture(t)
	f.mem.Put(f.inbound(clip), []byte("raw"), time.Now())

	res := f.runner.Finish(context.Background(), clip)
	if res.Status != finishing.StatusOK || res.Err != nil || res.Warning != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.DestinationKey != "Locaciones/Arena/Court1/SideA/"+clip {
		t.Fatalf("unexpected destination %q", res.DestinationKey)
	}
	if len(f.engine.overlays) != 1 {
		t.Fatalf("expected one overlay call, got %d", len(f.engine.overlays))
	}
	bundle := f.engine.overlays[0]
	if bundle.PrimaryLogo != f.cfg.Branding.PrimaryLogo || bundle.SecondaryLogo != "" || bundle.TertiaryLogo != "" {
		t.Fatalf("expected only the primary logo, got %+v", bundle)
	}
	if len(f.engine.concats) != 0 {
		t.Fatal("expected no splice without intro or outro")
	}
	data, ok := f.mem.Get(res.DestinationKey)
	if !ok || string(data) != "branded:raw" {
		t.Fatalf("unexpected published data %q", data)
	}
	if f.mem.Has(f.inbound(clip)) {
		t.Fatal("expected inbound original to be removed")
	}
	f.assertWorkspaceGone(t)

	latest, err := f.ledger.Latest(context.Background(), 5)
	if err != nil || len(latest) != 1 || latest[0].Status != "ok" || latest[0].Cell != "Arena/Court1/SideA" {
		t.Fatalf("unexpected ledger state %+v err=%v", latest, err)
	}
}

func TestFinishSplicesIntroAndOutro(t *testing.T) {
	f := newFixture(t, testsupport.WithVenueAssets("Arena", "logo.png", "intro.mp4", "outro.mp4"))
	f.mem.Put(f.inbound(clip), []byte("raw"), time.Now())

	res := f.runner.Finish(context.Background(), clip)
	if res.Status != finishing.StatusOK {
		t.Fatalf("unexpected result %+v", res)
	}
	if f.engine.overlays[0].SecondaryLogo == "" {
		t.Fatal("expected venue logo in bundle")
	}
	if len(f.engine.concats) != 1 {
		t.Fatalf("expected one concat call, got %d", len(f.engine.concats))
	}
	segments := f.engine.concats[0]
	if len(segments) != 3 || !segments[1].Reference || segments[0].Reference || segments[2].Reference {
		t.Fatalf("expected intro, body (reference), outro; got %+v", segments)
	}
	if filepath.Base(segments[0].Path) != "intro.mp4" || filepath.Base(segments[2].Path) != "outro.mp4" {
		t.Fatalf("unexpected segment order %+v", segments)
	}
	if data, _ := f.mem.Get(res.DestinationKey); string(data) != "spliced" {
		t.Fatalf("expected spliced output to be published, got %q", data)
	}
}

func TestFinishFailureStatuses(t *testing.T) {
	encodeErr := services.Wrap(services.ErrEncodeFailure, "engine", "ffmpeg", "exit 1", nil)
	tests := []struct {
		name       string
		setup      func(f *fixture)
		opts       []testsupport.ConfigOption
		wantStatus finishing.Status
		wantStage  string
	}{
		{
			name:       "missing source",
			setup:      func(f *fixture) {},
			wantStatus: finishing.StatusFetchFailed,
			wantStage:  finishing.StageFetch,
		},
		{
			name: "brand failure",
			setup: func(f *fixture) {
				f.mem.Put(f.inbound(clip), []byte("raw"), time.Now())
				f.engine.overlayErr = encodeErr
			},
			wantStatus: finishing.StatusBrandFailed,
			wantStage:  finishing.StageBrand,
		},
		{
			name: "splice failure",
			opts: []testsupport.ConfigOption{testsupport.WithVenueAssets("Arena", "intro.mp4")},
			setup: func(f *fixture) {
				f.mem.Put(f.inbound(clip), []byte("raw"), time.Now())
				f.engine.concatErr = encodeErr
			},
			wantStatus: finishing.StatusSpliceFailed,
			wantStage:  finishing.StageSplice,
		},
		{
			name: "upload failure",
			setup: func(f *fixture) {
				f.mem.Put(f.inbound(clip), []byte("raw"), time.Now())
				f.mem.FailOn("upload", "", services.Wrap(services.ErrTransientIO, "storage", "upload", "", nil))
			},
			wantStatus: finishing.StatusPublishFailed,
			wantStage:  finishing.StagePublish,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.opts...)
			tc.setup(f)
			res := f.runner.Finish(context.Background(), clip)
			if res.Status != tc.wantStatus || res.Stage != tc.wantStage || res.Err == nil {
				t.Fatalf("unexpected result %+v", res)
			}
			if tc.wantStatus != finishing.StatusFetchFailed && !f.mem.Has(f.inbound(clip)) {
				t.Fatal("source must stay in inbound after a failure")
			}
			if f.mem.Has("Locaciones/Arena/Court1/SideA/" + clip) {
				t.Fatal("nothing should be published after a failure")
			}
			f.assertWorkspaceGone(t)
		})
	}
}

func TestFinishInvalidName(t *testing.T) {
	f := newFixture(t)
	res := f.runner.Finish(context.Background(), "not-a-clip.mp4")
	if res.Status != finishing.StatusInvalidName || !errors.Is(res.Err, services.ErrInvalidName) {
		t.Fatalf("unexpected result %+v", res)
	}
	if calls := f.mem.Calls(); len(calls) != 0 {
		t.Fatalf("invalid names must not touch storage, got %v", calls)
	}
}

func TestFinishDeleteFailureIsPartialPublish(t *testing.T) {
	f := newFixture(t)
	f.mem.Put(f.inbound(clip), []byte("raw"), time.Now())
	f.mem.FailOn("delete", f.inbound(clip), services.Wrap(services.ErrConfiguration, "storage", "delete", "denied", nil))

	res := f.runner.Finish(context.Background(), clip)
	if res.Status != finishing.StatusOK {
		t.Fatalf("expected ok status, got %+v", res)
	}
	if !errors.Is(res.Warning, services.ErrPublishPartial) {
		t.Fatalf("expected publish partial warning, got %v", res.Warning)
	}
	if !f.mem.Has(res.DestinationKey) || !f.mem.Has(f.inbound(clip)) {
		t.Fatal("expected both destination and original to exist")
	}
}

func TestFinishSkipsAlreadyPublished(t *testing.T) {
	f := newFixture(t)
	f.mem.Put(f.inbound(clip), []byte("raw"), time.Now())
	f.mem.Put("Locaciones/Arena/Court1/SideA/"+clip, []byte("earlier"), time.Now())

	res := f.runner.Finish(context.Background(), clip)
	if res.Status != finishing.StatusOK || !res.Skipped {
		t.Fatalf("expected skipped ok result, got %+v", res)
	}
	if len(f.engine.overlays) != 0 {
		t.Fatal("engine must not run for an already published clip")
	}
	if f.mem.Has(f.inbound(clip)) {
		t.Fatal("expected inbound original to be removed")
	}
	if data, _ := f.mem.Get(res.DestinationKey); string(data) != "earlier" {
		t.Fatal("existing destination must not be overwritten")
	}
}

func TestFinishWorkspaceIsExclusive(t *testing.T) {
	f := newFixture(t)
	f.mem.Put(f.inbound(clip), []byte("raw"), time.Now())
	var workspace string
	f.engine.overlayHook = func(input string) { workspace = filepath.Dir(input) }

	res := f.runner.Finish(context.Background(), clip)
	if res.Status != finishing.StatusOK {
		t.Fatalf("unexpected result %+v", res)
	}
	if filepath.Base(workspace) != res.JobID || filepath.Base(filepath.Dir(workspace)) != res.RunID {
		t.Fatalf("workspace %s should be staging/<run>/<job>", workspace)
	}
	if _, err := os.Stat(workspace); !os.IsNotExist(err) {
		t.Fatalf("workspace %s should be removed after the job, stat err=%v", workspace, err)
	}
}
