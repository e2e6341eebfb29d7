package heartbeat

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"courtclip/internal/assetname"
	"courtclip/internal/services"
)

// Version is the only document version this package reads and writes.
const Version = 1

// Registry is the decoded heartbeat document.
type Registry struct {
	V       int
	Updated time.Time
	Devices map[string]Device
}

// Device is the last known state of one camera device.
type Device struct {
	Start time.Time
	Last  time.Time
	Beats int
	Venue string
	Court string
	Side  string
}

// Cell returns the camera position the device reports.
func (d Device) Cell() assetname.Cell {
	return assetname.Cell{Venue: d.Venue, Court: d.Court, Side: d.Side}
}

type wireRegistry struct {
	V       int                   `json:"v"`
	Updated string                `json:"updated"`
	Pis     map[string]wireDevice `json:"pis"`
}

type wireDevice struct {
	Start string `json:"start"`
	Last  string `json:"last"`
	Beats int    `json:"beats"`
	Loc   string `json:"loc"`
	Can   string `json:"can"`
	Lado  string `json:"lado"`
}

// Empty returns a registry with no devices.
func Empty() Registry {
	return Registry{V: Version, Devices: map[string]Device{}}
}

// Decode parses a heartbeat document. An empty payload decodes to an empty
// registry. Unknown versions and malformed JSON wrap
// services.ErrRegistryCorruption. Devices whose last timestamp cannot be
// parsed are kept with a zero Last and therefore never count as live.
func Decode(data []byte) (Registry, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return Empty(), nil
	}
	var wire wireRegistry
	if err := json.Unmarshal(data, &wire); err != nil {
		return Empty(), services.Wrap(services.ErrRegistryCorruption, "heartbeat", "decode", "malformed heartbeat document", err)
	}
	if wire.V != Version {
		return Empty(), services.Wrap(services.ErrRegistryCorruption, "heartbeat", "decode", fmt.Sprintf("unsupported document version %d", wire.V), nil)
	}
	reg := Registry{V: wire.V, Updated: parseTime(wire.Updated), Devices: make(map[string]Device, len(wire.Pis))}
	for id, d := range wire.Pis {
		reg.Devices[id] = Device{
			Start: parseTime(d.Start),
			Last:  parseTime(d.Last),
			Beats: d.Beats,
			Venue: d.Loc,
			Court: d.Can,
			Side:  d.Lado,
		}
	}
	return reg, nil
}

// Encode renders the registry in the v1 wire format with UTC "Z" timestamps.
func Encode(reg Registry) ([]byte, error) {
	wire := wireRegistry{V: Version, Updated: formatTime(reg.Updated), Pis: make(map[string]wireDevice, len(reg.Devices))}
	for id, d := range reg.Devices {
		wire.Pis[id] = wireDevice{
			Start: formatTime(d.Start),
			Last:  formatTime(d.Last),
			Beats: d.Beats,
			Loc:   d.Venue,
			Can:   d.Court,
			Lado:  d.Side,
		}
	}
	return json.MarshalIndent(wire, "", "  ")
}

// Live returns the distinct cells with a device whose last heartbeat is no
// older than ttl, sorted by venue, court and side. Devices missing any cell
// field are ignored.
func (r Registry) Live(now time.Time, ttl time.Duration) []assetname.Cell {
	set := make(map[assetname.Cell]struct{})
	for _, d := range r.Devices {
		if d.Last.IsZero() || !d.Cell().Valid() {
			continue
		}
		if now.Sub(d.Last) <= ttl {
			set[d.Cell()] = struct{}{}
		}
	}
	cells := make([]assetname.Cell, 0, len(set))
	for c := range set {
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool {
		a, b := cells[i], cells[j]
		if a.Venue != b.Venue {
			return a.Venue < b.Venue
		}
		if a.Court != b.Court {
			return a.Court < b.Court
		}
		return a.Side < b.Side
	})
	return cells
}

// Beat records a heartbeat from device at now, starting a new device entry
// when none exists.
func (r *Registry) Beat(device string, cell assetname.Cell, now time.Time) {
	if r.Devices == nil {
		r.Devices = map[string]Device{}
	}
	d, ok := r.Devices[device]
	if !ok || d.Start.IsZero() {
		d.Start = now
	}
	d.Last = now
	d.Beats++
	d.Venue, d.Court, d.Side = cell.Venue, cell.Court, cell.Side
	r.Devices[device] = d
	r.V = Version
	r.Updated = now
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseTime accepts RFC 3339 and zone-less ISO timestamps, the latter read as
// UTC.
func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
