package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// writeAsset creates path holding size filler bytes. It stands in for logos
// and splice clips, which the fake engines never decode.
func writeAsset(t testing.TB, path string, size int) {
	t.Helper()
	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
