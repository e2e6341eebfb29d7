// Package engine defines the transcoding contract used by the finishing job
// and implements it on top of ffmpeg filter graphs.
package engine

import (
	"context"

	"courtclip/internal/branding"
)

// Engine brands and splices clips. Implementations return errors wrapping
// services.ErrEncodeFailure when the underlying tool fails.
type Engine interface {
	// ApplyOverlays burns the bundle's logos onto input and writes output.
	// Audio is carried through untouched.
	ApplyOverlays(ctx context.Context, input string, bundle branding.Bundle, output string) error
	// Concatenate joins segments in order into output. Every segment is
	// normalized to the frame size of the Reference segment.
	Concatenate(ctx context.Context, segments []Segment, output string) error
}

// Segment is one input to Concatenate.
type Segment struct {
	Path string
	// Reference marks the segment whose frame size the output adopts. When no
	// segment is marked the first one is used.
	Reference bool
}

// Placement positions one logo on the frame.
type Placement struct {
	Width int
	X     string
	Y     string
}

// Logo placements in overlay order: primary top-left, secondary top-right,
// tertiary bottom-center.
var (
	PrimaryPlacement   = Placement{Width: 300, X: "30", Y: "30"}
	SecondaryPlacement = Placement{Width: 200, X: "W-w-15", Y: "15"}
	TertiaryPlacement  = Placement{Width: 240, X: "(W-w)/2", Y: "H-h-30"}
)

// Overlay pairs a logo file with its placement.
type Overlay struct {
	Path      string
	Placement Placement
}

// OverlaysFor lists the overlays for bundle, skipping absent logos.
func OverlaysFor(bundle branding.Bundle) []Overlay {
	out := make([]Overlay, 0, 3)
	if bundle.PrimaryLogo != "" {
		out = append(out, Overlay{Path: bundle.PrimaryLogo, Placement: PrimaryPlacement})
	}
	if bundle.SecondaryLogo != "" {
		out = append(out, Overlay{Path: bundle.SecondaryLogo, Placement: SecondaryPlacement})
	}
	if bundle.TertiaryLogo != "" {
		out = append(out, Overlay{Path: bundle.TertiaryLogo, Placement: TertiaryPlacement})
	}
	return out
}
