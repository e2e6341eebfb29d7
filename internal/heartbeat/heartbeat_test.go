package heartbeat_test

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"courtclip/internal/assetname"
	"courtclip/internal/heartbeat"
	"courtclip/internal/logging"
	"courtclip/internal/retry"
	"courtclip/internal/services"
	"courtclip/internal/testsupport"
)

const key = "Entrantes/heartbeats.txt"

var now = time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)

func TestDecodeAndLive(t *testing.T) {
	doc := `{"v":1,"updated":"2025-03-01T19:59:00Z","pis":{
		"pi-1":{"start":"2025-03-01T10:00:00Z","last":"2025-03-01T19:59:00Z","beats":40,"loc":"ClubA","can":"Court1","lado":"North"},
		"pi-2":{"start":"2025-03-01T10:00:00Z","last":"2025-03-01T19:56:00Z","beats":12,"loc":"ClubA","can":"Court1","lado":"North"},
		"pi-3":{"start":"2025-03-01T10:00:00Z","last":"2025-03-01T19:00:00Z","beats":3,"loc":"ClubB","can":"Court2","lado":"South"},
		"pi-4":{"start":"2025-03-01T10:00:00Z","last":"2025-03-01T19:59:30.123456","beats":1,"loc":"Arena","can":"Court9","lado":"East"},
		"pi-5":{"last":"2025-03-01T19:59:59Z","beats":1,"loc":"NoSide","can":"Court1"},
		"pi-6":{"last":"garbage","beats":1,"loc":"ClubC","can":"Court1","lado":"West"}
	}}`
	reg, err := heartbeat.Decode([]byte(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(reg.Devices) != 6 || reg.Devices["pi-1"].Beats != 40 {
		t.Fatalf("unexpected devices %+v", reg.Devices)
	}
	live := reg.Live(now, 300*time.Second)
	want := []assetname.Cell{
		{Venue: "Arena", Court: "Court9", Side: "East"},
		{Venue: "ClubA", Court: "Court1", Side: "North"},
	}
	if !reflect.DeepEqual(live, want) {
		t.Fatalf("Live = %v, want %v", live, want)
	}
}

func TestLiveTTLBoundary(t *testing.T) {
	reg := heartbeat.Empty()
	cell := assetname.Cell{Venue: "ClubA", Court: "Court1", Side: "North"}
	reg.Beat("pi", cell, now.Add(-300*time.Second))
	if got := reg.Live(now, 300*time.Second); len(got) != 1 {
		t.Fatalf("device exactly at the TTL should be live, got %v", got)
	}
	reg.Beat("pi", cell, now.Add(-301*time.Second))
	if got := reg.Live(now, 300*time.Second); len(got) != 0 {
		t.Fatalf("device past the TTL should not be live, got %v", got)
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	for _, doc := range []string{`{"v":2,"pis":{}}`, `{"pis":{}}`, `{`} {
		_, err := heartbeat.Decode([]byte(doc))
		if !errors.Is(err, services.ErrRegistryCorruption) {
			t.Fatalf("Decode(%s) = %v, want registry corruption", doc, err)
		}
	}
	reg, err := heartbeat.Decode([]byte("  "))
	if err != nil || len(reg.Devices) != 0 {
		t.Fatalf("empty payload should decode to an empty registry, got %+v %v", reg, err)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	reg := heartbeat.Empty()
	reg.Beat("pi-1", assetname.Cell{Venue: "ClubA", Court: "Court1", Side: "North"}, now)
	reg.Beat("pi-1", assetname.Cell{Venue: "ClubA", Court: "Court1", Side: "North"}, now.Add(time.Minute))
	data, err := heartbeat.Encode(reg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for _, fragment := range []string{`"v": 1`, `"pis"`, `"loc": "ClubA"`, `"lado": "North"`, `"last": "2025-03-01T20:01:00Z"`} {
		if !strings.Contains(string(data), fragment) {
			t.Fatalf("encoded document missing %s:\n%s", fragment, data)
		}
	}
	decoded, err := heartbeat.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	d := decoded.Devices["pi-1"]
	if d.Beats != 2 || !d.Start.Equal(now) || !d.Last.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected device after round trip %+v", d)
	}
}

func TestStoreReadTreatsCorruptionAsEmpty(t *testing.T) {
	mem := testsupport.NewMemoryStore()
	mem.Put(key, []byte("{not json"), now)
	store := heartbeat.NewStore(mem, key, "", retry.Once(), logging.NewNop())
	cells, err := store.LiveCells(context.Background(), now, time.Hour)
	if err != nil {
		t.Fatalf("LiveCells: %v", err)
	}
	if len(cells) != 0 {
		t.Fatalf("expected no live cells, got %v", cells)
	}
}

func TestStoreReadMissingDocument(t *testing.T) {
	store := heartbeat.NewStore(testsupport.NewMemoryStore(), key, "", retry.Once(), nil)
	reg, err := store.Read(context.Background())
	if err != nil || len(reg.Devices) != 0 {
		t.Fatalf("Read = %+v, %v", reg, err)
	}
}

func TestStoreReadRetriesTransientFailures(t *testing.T) {
	mem := testsupport.NewMemoryStore()
	mem.FailOn("read", key, services.Wrap(services.ErrTransientIO, "storage", "read", key, nil))
	policy := retry.Policy{MaxAttempts: 3}.WithSleep(func(context.Context, time.Duration) error { return nil })
	store := heartbeat.NewStore(mem, key, "", policy, nil)
	if _, err := store.Read(context.Background()); !errors.Is(err, services.ErrTransientIO) {
		t.Fatalf("expected transient error, got %v", err)
	}
	reads := 0
	for _, call := range mem.Calls() {
		if strings.HasPrefix(call, "read ") {
			reads++
		}
	}
	if reads != 3 {
		t.Fatalf("expected 3 read attempts, got %d", reads)
	}
}

func TestStoreBeatMergesDevices(t *testing.T) {
	mem := testsupport.NewMemoryStore()
	lockPath := filepath.Join(t.TempDir(), "heartbeat.lock")
	store := heartbeat.NewStore(mem, key, lockPath, retry.Once(), nil)
	ctx := context.Background()
	north := assetname.Cell{Venue: "ClubA", Court: "Court1", Side: "North"}
	south := assetname.Cell{Venue: "ClubA", Court: "Court1", Side: "South"}

	if _, err := store.Beat(ctx, "pi-1", north, now); err != nil {
		t.Fatalf("Beat: %v", err)
	}
	if _, err := store.Beat(ctx, "pi-2", south, now); err != nil {
		t.Fatalf("Beat: %v", err)
	}
	reg, err := store.Beat(ctx, "pi-1", north, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Beat: %v", err)
	}
	if len(reg.Devices) != 2 || reg.Devices["pi-1"].Beats != 2 {
		t.Fatalf("unexpected merged registry %+v", reg.Devices)
	}
	cells, err := store.LiveCells(ctx, now.Add(time.Minute), 5*time.Minute)
	if err != nil {
		t.Fatalf("LiveCells: %v", err)
	}
	if !reflect.DeepEqual(cells, []assetname.Cell{north, south}) {
		t.Fatalf("LiveCells = %v", cells)
	}

	if _, err := store.Beat(ctx, "", north, now); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
