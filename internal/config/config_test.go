package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.ChunkSize != 50000 || c.WebPrefix != "/images" || c.ChartWidth != 1200 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if got := c.FetchWindow(); got != 7*24*time.Hour {
		t.Fatalf("fetch window = %v", got)
	}
	if got := c.MaxDataAge(); got != time.Hour {
		t.Fatalf("max data age = %v", got)
	}
	if got := c.RetryBaseDelay(); got != 5*time.Second {
		t.Fatalf("retry base delay = %v", got)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "output_dir: out/charts\nchunk_size: 1000\nfetch_span: P2D\nthingspeak_channel_id: \"12345\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AIRLENS_CHUNK_SIZE", "2500")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.OutputDir != "out/charts" || c.ChannelID != "12345" {
		t.Fatalf("file values not applied: %+v", c)
	}
	if c.ChunkSize != 2500 {
		t.Fatalf("env should win over file, chunk_size = %d", c.ChunkSize)
	}
	if c.FetchWindow() != 48*time.Hour {
		t.Fatalf("fetch window = %v", c.FetchWindow())
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("data_max_age: one hour\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "data_max_age") {
		t.Fatalf("expected data_max_age error, got %v", err)
	}
	if c == nil || c.DataMaxAge != "PT1H" || c.MaxDataAge() != time.Hour {
		t.Fatalf("invalid key should fall back to its default: %+v", c)
	}
}

func TestLoadKeepsValidKeysWhenEnvIsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("output_dir: charts\nchunk_size: 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AIRLENS_FETCH_SPAN", "bogus")
	t.Setenv("AIRLENS_LOG_FORMAT", "xml")
	c, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "fetch_span") {
		t.Fatalf("expected fetch_span error, got %v", err)
	}
	if c.OutputDir != "charts" || c.ChunkSize != 10 {
		t.Fatalf("valid keys lost: %+v", c)
	}
	if c.FetchWindow() != 7*24*time.Hour || c.LogFormat != "text" {
		t.Fatalf("invalid keys not reset: span=%q format=%q", c.FetchSpan, c.LogFormat)
	}
}

func TestDefaults(t *testing.T) {
	c := Defaults()
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if c.DataFile != "data/air_quality_data.csv" || c.FetchMaxResults != 8000 || c.HTTPTimeout() != 30*time.Second {
		t.Fatalf("unexpected defaults: %+v", c)
	}
}

func TestSetAndSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	t.Setenv("HOME", t.TempDir())
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load missing file: %v", err)
	}
	if err := c.Set("fetch_span", "P14D"); err != nil {
		t.Fatal(err)
	}
	if err := c.Set("thingspeak_read_api_key", "ABCDEFGHIJ"); err != nil {
		t.Fatal(err)
	}
	if err := c.Set("fetch_span", "two weeks"); err == nil {
		t.Fatal("expected invalid duration to be rejected")
	}
	if err := c.Set("chunk_size", "-1"); err == nil {
		t.Fatal("expected negative chunk_size to be rejected")
	}
	if err := c.Set("colour", "blue"); err == nil {
		t.Fatal("expected unknown key error")
	}
	if err := Save(c, path); err != nil {
		t.Fatalf("save: %v", err)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.FetchWindow() != 14*24*time.Hour {
		t.Fatalf("fetch span not persisted: %q", again.FetchSpan)
	}
	for _, kv := range again.Values() {
		if kv[0] == "thingspeak_read_api_key" && kv[1] != "ABC****HIJ" {
			t.Fatalf("api key not masked: %q", kv[1])
		}
	}
}

func TestKeysCoverValues(t *testing.T) {
	c := &Global{}
	if got, want := len(c.Values()), len(Keys()); got != want {
		t.Fatalf("values has %d entries, keys %d", got, want)
	}
	special := map[string]string{"log_format": "json", "fetch_span": "P1D", "data_max_age": "PT30M"}
	for _, k := range Keys() {
		val, ok := special[k]
		if !ok {
			val = "1"
		}
		if err := c.Set(k, val); err != nil {
			t.Fatalf("key %s not settable: %v", k, err)
		}
	}
}
