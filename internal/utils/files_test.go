package utils_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/KaramelBytes/airlens-cli/internal/utils"
)

func TestSafeWriteFileReplacesWhole(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "out.json")
	if err := utils.SafeWriteFile(p, []byte("first")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := utils.SafeWriteFile(p, []byte("second")); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil || string(b) != "second" {
		t.Fatalf("content=%q err=%v", b, err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}
}

func TestUniqueNameCollision(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	first := utils.UniqueName(dir, "time_series", ".png", now)
	if first != "time_series_20240506070809.png" {
		t.Fatalf("name = %q", first)
	}
	if err := os.WriteFile(filepath.Join(dir, first), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	second := utils.UniqueName(dir, "time_series", ".png", now)
	if second == first || !strings.HasPrefix(second, "time_series_20240506070809_") || !strings.HasSuffix(second, ".png") {
		t.Fatalf("collision name = %q", second)
	}
}

func TestEnsureDirIdempotent(t *testing.T) {
	d := filepath.Join(t.TempDir(), "a", "b")
	for i := 0; i < 2; i++ {
		if err := utils.EnsureDir(d); err != nil {
			t.Fatalf("EnsureDir #%d: %v", i, err)
		}
	}
}

func TestFileAge(t *testing.T) {
	p := filepath.Join(t.TempDir(), "f")
	if _, ok := utils.FileAge(p, time.Now()); ok {
		t.Fatalf("missing file reported present")
	}
	if err := os.WriteFile(p, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	age, ok := utils.FileAge(p, time.Now().Add(time.Hour))
	if !ok || age < 59*time.Minute {
		t.Fatalf("age=%v ok=%v", age, ok)
	}
}
