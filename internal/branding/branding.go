// Package branding resolves the overlay assets and bookend clips that apply to
// a venue.
package branding

import (
	"fmt"
	"os"
	"path/filepath"

	"courtclip/internal/services"
)

// Conventional file names inside a venue folder.
const (
	SecondaryLogoFile = "logo.png"
	TertiaryLogoFile  = "tercer_logo.png"
	IntroFile         = "intro.mp4"
	OutroFile         = "outro.mp4"
)

// Bundle lists the branding assets for one job. Empty paths mean the asset is
// absent.
type Bundle struct {
	PrimaryLogo   string
	SecondaryLogo string
	TertiaryLogo  string
	Intro         string
	Outro         string
}

// Overlays returns the logo paths in overlay order, skipping absent ones.
func (b Bundle) Overlays() []string {
	out := make([]string, 0, 3)
	for _, p := range []string{b.PrimaryLogo, b.SecondaryLogo, b.TertiaryLogo} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NeedsSplice reports whether an intro or outro clip is present.
func (b Bundle) NeedsSplice() bool {
	return b.Intro != "" || b.Outro != ""
}

// Resolver looks up branding assets under a clubs root directory.
type Resolver struct {
	root            string
	primary         string
	tertiaryEnabled bool
}

// NewResolver validates that the primary logo exists. A missing primary logo
// is a configuration error and should stop the run before any job starts.
func NewResolver(root, primaryLogo string, tertiaryEnabled bool) (*Resolver, error) {
	if primaryLogo == "" {
		return nil, services.Wrap(services.ErrConfiguration, "branding", "primary logo", "branding.primary_logo is not set", nil)
	}
	info, err := os.Stat(primaryLogo)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "branding", "primary logo", fmt.Sprintf("primary logo %s is not readable", primaryLogo), err)
	}
	if info.IsDir() {
		return nil, services.Wrap(services.ErrConfiguration, "branding", "primary logo", fmt.Sprintf("primary logo %s is a directory", primaryLogo), nil)
	}
	return &Resolver{root: root, primary: primaryLogo, tertiaryEnabled: tertiaryEnabled}, nil
}

// Resolve returns the bundle for venue. It never fails: optional assets that
// are missing or unreadable are reported as absent.
func (r *Resolver) Resolve(venue string) Bundle {
	bundle := Bundle{PrimaryLogo: r.primary}
	if venue == "" || r.root == "" {
		return bundle
	}
	dir := filepath.Join(r.root, venue)
	bundle.SecondaryLogo = existing(filepath.Join(dir, SecondaryLogoFile))
	if r.tertiaryEnabled {
		bundle.TertiaryLogo = existing(filepath.Join(dir, TertiaryLogoFile))
	}
	bundle.Intro = existing(filepath.Join(dir, IntroFile))
	bundle.Outro = existing(filepath.Join(dir, OutroFile))
	return bundle
}

func existing(path string) string {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return ""
	}
	return path
}
