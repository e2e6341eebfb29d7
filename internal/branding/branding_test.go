package branding_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"courtclip/internal/branding"
	"courtclip/internal/services"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestNewResolverRequiresPrimaryLogo(t *testing.T) {
	root := t.TempDir()
	_, err := branding.NewResolver(root, filepath.Join(root, "missing.png"), false)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := branding.NewResolver(root, root, false); err == nil {
		t.Fatal("expected directory primary logo to be rejected")
	}
}

func TestResolvePrimaryOnly(t *testing.T) {
	root := t.TempDir()
	primary := filepath.Join(root, "primary.png")
	touch(t, primary)

	resolver, err := branding.NewResolver(filepath.Join(root, "clubs"), primary, true)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	bundle := resolver.Resolve("ClubA")
	if bundle != (branding.Bundle{PrimaryLogo: primary}) {
		t.Fatalf("unexpected bundle %+v", bundle)
	}
	if bundle.NeedsSplice() {
		t.Fatal("primary-only bundle should not need splicing")
	}
	if got := bundle.Overlays(); len(got) != 1 || got[0] != primary {
		t.Fatalf("unexpected overlays %v", got)
	}
}

func TestResolveFullBundleAndTertiaryFlag(t *testing.T) {
	root := t.TempDir()
	primary := filepath.Join(root, "primary.png")
	clubs := filepath.Join(root, "clubs")
	touch(t, primary)
	for _, name := range []string{"logo.png", "tercer_logo.png", "intro.mp4", "outro.mp4"} {
		touch(t, filepath.Join(clubs, "ClubA", name))
	}

	enabled, err := branding.NewResolver(clubs, primary, true)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	full := enabled.Resolve("ClubA")
	if full.SecondaryLogo == "" || full.TertiaryLogo == "" || full.Intro == "" || full.Outro == "" {
		t.Fatalf("expected complete bundle, got %+v", full)
	}
	if len(full.Overlays()) != 3 || !full.NeedsSplice() {
		t.Fatalf("unexpected bundle helpers for %+v", full)
	}

	disabled, err := branding.NewResolver(clubs, primary, false)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	if got := disabled.Resolve("ClubA"); got.TertiaryLogo != "" {
		t.Fatalf("tertiary logo should be ignored when disabled, got %q", got.TertiaryLogo)
	}
}
