package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"courtclip/internal/orchestrator"
	"courtclip/internal/services"
	"courtclip/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckReadableFile(t *testing.T) {
	dir := t.TempDir()
	logo := filepath.Join(dir, "logo.png")
	if err := os.WriteFile(logo, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	empty := filepath.Join(dir, "empty.png")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if r := CheckReadableFile("logo", logo); !r.Passed {
		t.Fatalf("expected pass, got %s", r.Detail)
	}
	for _, path := range []string{"", empty, dir, filepath.Join(dir, "missing.png")} {
		if r := CheckReadableFile("logo", path); r.Passed {
			t.Fatalf("expected failure for %q", path)
		}
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_PassesWithStubbedEngine(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	if err := os.MkdirAll(cfg.Branding.ClubsRoot, 0o755); err != nil {
		t.Fatal(err)
	}

	results := RunAll(context.Background(), cfg)
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d: %+v", len(results), results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures %+v", failed)
	}
}

func TestRunAll_ReportsMissingLogo(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	cfg.Branding.ClubsRoot = ""
	cfg.Branding.PrimaryLogo = filepath.Join(t.TempDir(), "missing.png")

	failed := Failed(RunAll(context.Background(), cfg))
	if len(failed) != 1 || failed[0].Name != "Primary logo" {
		t.Fatalf("expected only the logo check to fail, got %+v", failed)
	}
}

func TestCheckStorage(t *testing.T) {
	store := testsupport.NewMemoryStore()
	if r := CheckStorage(context.Background(), store, "Entrantes"); !r.Passed {
		t.Fatalf("expected reachable storage, got %s", r.Detail)
	}
	store.FailOn("list", "Entrantes", services.Wrap(services.ErrTransientIO, "storage", "list", "", errors.New("access denied")))
	if r := CheckStorage(context.Background(), store, "Entrantes"); r.Passed {
		t.Fatal("expected storage failure")
	}
}

type failingOrchestrator struct{}

func (failingOrchestrator) InProgress(context.Context) (bool, error) {
	return false, services.Wrap(services.ErrOrchestratorQuery, "orchestrator", "list runs", "", errors.New("401"))
}
func (failingOrchestrator) Trigger(context.Context) error { return nil }

func TestCheckOrchestrator(t *testing.T) {
	if r := CheckOrchestrator(context.Background(), orchestrator.None{}); !r.Passed || r.Detail != "Disabled" {
		t.Fatalf("unexpected result for None: %+v", r)
	}
	if r := CheckOrchestrator(context.Background(), failingOrchestrator{}); r.Passed {
		t.Fatal("expected failure")
	}
}
