// Package assetname parses and validates clip file names of the form
// {venue}_{court}_{side}_{YYYYMMDD}_{HHMMSS}.mp4.
package assetname

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"courtclip/internal/services"
)

// Extension is the only accepted clip container.
const Extension = ".mp4"

const timestampLayout = "20060102_150405"

var pattern = regexp.MustCompile(`(?i)^([^_]+)_([^_]+)_([^_]+)_(\d{8})_(\d{6})\.mp4$`)

var titleCaser = cases.Title(language.Und)

// Cell identifies one camera position: a side of a court at a venue.
type Cell struct {
	Venue string
	Court string
	Side  string
}

// Path joins the cell fields as venue/court/side.
func (c Cell) Path() string {
	return path.Join(c.Venue, c.Court, c.Side)
}

// Valid reports whether every field is populated.
func (c Cell) Valid() bool {
	return c.Venue != "" && c.Court != "" && c.Side != ""
}

// Label renders a human-readable form for tables and notifications.
func (c Cell) Label() string {
	return fmt.Sprintf("%s · %s · %s", display(c.Venue), display(c.Court), display(c.Side))
}

func (c Cell) String() string { return c.Path() }

// Name is a parsed clip file name. Timestamp carries no zone; it is the
// camera's wall-clock time interpreted as UTC.
type Name struct {
	Venue     string
	Court     string
	Side      string
	Timestamp time.Time
	Ext       string
	Filename  string
}

// Cell returns the camera position the clip was recorded at.
func (n Name) Cell() Cell {
	return Cell{Venue: n.Venue, Court: n.Court, Side: n.Side}
}

func (n Name) String() string { return n.Filename }

// Parse validates filename against the naming contract. Any leading directory
// is ignored. The returned error wraps services.ErrInvalidName.
func Parse(filename string) (Name, error) {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	m := pattern.FindStringSubmatch(base)
	if m == nil {
		return Name{}, services.Wrap(services.ErrInvalidName, "", "parse", fmt.Sprintf("%q does not match venue_court_side_YYYYMMDD_HHMMSS.mp4", base), nil)
	}
	ts, err := time.Parse(timestampLayout, m[4]+"_"+m[5])
	if err != nil {
		return Name{}, services.Wrap(services.ErrInvalidName, "", "parse", fmt.Sprintf("%q has no valid timestamp", base), err)
	}
	return Name{
		Venue:     m[1],
		Court:     m[2],
		Side:      m[3],
		Timestamp: ts,
		Ext:       base[len(base)-len(Extension):],
		Filename:  base,
	}, nil
}

// Valid reports whether filename satisfies the naming contract.
func Valid(filename string) bool {
	_, err := Parse(filename)
	return err == nil
}

// IsVideo reports whether name carries the clip extension.
func IsVideo(name string) bool {
	return strings.EqualFold(path.Ext(name), Extension)
}

func display(value string) string {
	return titleCaser.String(strings.NewReplacer("-", " ", ".", " ").Replace(value))
}
