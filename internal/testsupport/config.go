package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"courtclip/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It uses the local storage backend, writes a primary logo and applies any
// provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Storage.Backend = config.BackendLocal
	cfgVal.Storage.LocalRoot = filepath.Join(base, "storage")
	cfgVal.Branding.ClubsRoot = filepath.Join(base, "clubs")
	cfgVal.Branding.PrimaryLogo = filepath.Join(base, "logos", "primary.png")
	cfgVal.Orchestrator.Kind = config.OrchestratorNone
	cfgVal.Retry.InitialBackoffMillis = 1
	cfgVal.Retry.MaxBackoffMillis = 2
	cfgVal.Retry.PollIntervalSeconds = 1
	writeAsset(t, cfgVal.Branding.PrimaryLogo, 16)

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithVenueAssets writes the named branding files (logo.png, tercer_logo.png,
// intro.mp4, outro.mp4) into the venue folder.
func WithVenueAssets(venue string, files ...string) ConfigOption {
	return func(b *configBuilder) {
		for _, name := range files {
			writeAsset(b.t, filepath.Join(b.cfg.Branding.ClubsRoot, venue, name), 16)
		}
	}
}

// WithTertiaryLogo toggles the tertiary logo feature flag.
func WithTertiaryLogo(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Branding.TertiaryLogoEnabled = enabled
	}
}

// WithFinishing overrides batch ordering and limits.
func WithFinishing(order string, limit, parallel int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Finishing.Order = order
		b.cfg.Finishing.BatchLimit = limit
		b.cfg.Finishing.MaxParallel = parallel
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
