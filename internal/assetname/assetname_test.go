package assetname_test

import (
	"errors"
	"testing"
	"time"

	"courtclip/internal/assetname"
	"courtclip/internal/services"
)

func TestParseValidName(t *testing.T) {
	name, err := assetname.Parse("ClubA_Court1_North_20240105_183000.mp4")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if name.Venue != "ClubA" || name.Court != "Court1" || name.Side != "North" {
		t.Fatalf("unexpected cell fields %+v", name)
	}
	want := time.Date(2024, 1, 5, 18, 30, 0, 0, time.UTC)
	if !name.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %s, want %s", name.Timestamp, want)
	}
	if name.Ext != ".mp4" || name.Filename != "ClubA_Court1_North_20240105_183000.mp4" {
		t.Fatalf("unexpected ext/filename %+v", name)
	}
	if got := name.Cell().Path(); got != "ClubA/Court1/North" {
		t.Fatalf("cell path = %q", got)
	}
}

func TestParseAcceptsUppercaseExtensionAndDirectory(t *testing.T) {
	name, err := assetname.Parse("Entrantes/ClubA_Court1_North_20240105_183000.MP4")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if name.Filename != "ClubA_Court1_North_20240105_183000.MP4" || name.Ext != ".MP4" {
		t.Fatalf("unexpected parse result %+v", name)
	}
}

func TestParseRejectsInvalidNames(t *testing.T) {
	cases := map[string]string{
		"missing field":    "ClubA_Court1_20240105_183000.mp4",
		"extra field":      "ClubA_Court1_North_Extra_20240105_183000.mp4",
		"wrong extension":  "ClubA_Court1_North_20240105_183000.mov",
		"short date":       "ClubA_Court1_North_2024015_183000.mp4",
		"impossible date":  "ClubA_Court1_North_20250231_120000.mp4",
		"impossible time":  "ClubA_Court1_North_20250101_256000.mp4",
		"empty":            "",
		"duplicate suffix": "ClubA_Court1_North_20240105_183000 (1).mp4",
		"no underscores":   "bad.mp4",
	}
	for label, input := range cases {
		t.Run(label, func(t *testing.T) {
			_, err := assetname.Parse(input)
			if err == nil {
				t.Fatalf("expected %q to be rejected", input)
			}
			if !errors.Is(err, services.ErrInvalidName) {
				t.Fatalf("expected ErrInvalidName, got %v", err)
			}
			if assetname.Valid(input) {
				t.Fatalf("Valid(%q) should be false", input)
			}
		})
	}
}

func TestCellLabel(t *testing.T) {
	cell := assetname.Cell{Venue: "club-norte", Court: "cancha1", Side: "ladoa"}
	if got := cell.Label(); got != "Club Norte · Cancha1 · Ladoa" {
		t.Fatalf("Label() = %q", got)
	}
	if !cell.Valid() {
		t.Fatal("expected populated cell to be valid")
	}
	if (assetname.Cell{Venue: "x"}).Valid() {
		t.Fatal("expected partial cell to be invalid")
	}
}

func TestIsVideo(t *testing.T) {
	if !assetname.IsVideo("a.MP4") || assetname.IsVideo("videos_recientes.json") {
		t.Fatal("unexpected IsVideo result")
	}
}
