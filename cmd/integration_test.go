package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type testEnv struct {
	config string
	data   string
	images string
}

// newEnv isolates HOME and writes a config pointing data and images into a temp dir.
func newEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	env := testEnv{
		config: filepath.Join(dir, "config.yaml"),
		data:   filepath.Join(dir, "data", "air_quality_data.csv"),
		images: filepath.Join(dir, "images"),
	}
	body := fmt.Sprintf("data_file: %q\noutput_dir: %q\nchart_width: 640\nchart_height: 360\n", env.data, env.images)
	if err := os.WriteFile(env.config, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

// resetFlags restores every flag to its default so bound variables do not
// leak between invocations.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execute runs the root command with args and returns stdout.
func (e testEnv) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

// runCmd is a helper to execute the root command with args.
func (e testEnv) runCmd(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.execute(t, args...)
	if err != nil {
		t.Fatalf("command %v failed: %v\n%s", args, err, out)
	}
	return out
}

func (e testEnv) sample(t *testing.T) {
	t.Helper()
	e.runCmd(t, "sample", "--hours", "168", "--seed", "7", "--start", "2024-01-01T00:00:00Z")
}

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func TestCLI_SampleAnalyzeExtended(t *testing.T) {
	env := newEnv(t)
	env.sample(t)

	out := env.runCmd(t, "analyze", "--extended", "--format", "json")
	var res struct {
		RunID           string  `json:"run_id"`
		RecordCount     int     `json:"record_count"`
		AveragePM25     float64 `json:"average_pm25"`
		AnalysisVersion int     `json:"analysis_version"`
		Charts          []struct {
			Kind string `json:"kind"`
			Path string `json:"path"`
		} `json:"charts"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("analyze output is not JSON: %v\n%s", err, out)
	}
	if res.RecordCount != 168 || res.AnalysisVersion != 2 || res.RunID == "" || res.Error != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.AveragePM25 < 5 || res.AveragePM25 > 50 {
		t.Fatalf("average pm25 out of sample bounds: %v", res.AveragePM25)
	}
	if len(res.Charts) != 3 {
		t.Fatalf("expected 3 extended charts, got %+v", res.Charts)
	}
	for _, c := range res.Charts {
		if _, err := os.Stat(filepath.Join(env.images, path.Base(c.Path))); err != nil {
			t.Fatalf("chart %s not written: %v", c.Kind, err)
		}
	}
}

func TestCLI_AnalyzeMarkdownNoCharts(t *testing.T) {
	env := newEnv(t)
	env.sample(t)
	out := env.runCmd(t, "analyze", "-e", "--no-charts", "--format", "markdown", env.data, "2024-01-02", "2024-01-02")
	if !strings.HasPrefix(out, "[DATASET SUMMARY]") {
		t.Fatalf("expected markdown, got:\n%s", out)
	}
	if _, err := os.Stat(env.images); !os.IsNotExist(err) {
		t.Fatalf("--no-charts should not create %s", env.images)
	}
}

func TestCLI_AnalyzeMissingFileReportsJSON(t *testing.T) {
	env := newEnv(t)
	out, err := env.execute(t, "analyze", filepath.Join(t.TempDir(), "missing.csv"))
	if err == nil {
		t.Fatal("expected failure for missing file")
	}
	var res map[string]any
	if jerr := json.Unmarshal([]byte(out), &res); jerr != nil {
		t.Fatalf("failure output is not JSON: %v\n%s", jerr, out)
	}
	if msg, _ := res["error"].(string); !strings.HasPrefix(msg, "File not found:") {
		t.Fatalf("unexpected error field: %v", res["error"])
	}
	if res["average_pm25"] != float64(0) || res["record_count"] != float64(0) {
		t.Fatalf("numeric fields should be zeroed: %v", res)
	}
}

func TestCLI_VisualizeTwoLines(t *testing.T) {
	env := newEnv(t)
	env.sample(t)
	for _, kind := range []string{"time_series", "daily_pattern", "heatmap", "correlation"} {
		t.Run(kind, func(t *testing.T) {
			got := lines(env.runCmd(t, "visualize", "--viz-type", kind))
			if len(got) != 2 {
				t.Fatalf("expected two lines, got %q", got)
			}
			if !strings.HasPrefix(got[0], "/images/"+kind+"_") || !strings.HasSuffix(got[0], ".png") {
				t.Fatalf("unexpected web path %q", got[0])
			}
			if got[1] == "" {
				t.Fatal("empty description")
			}
			if _, err := os.Stat(filepath.Join(env.images, path.Base(got[0]))); err != nil {
				t.Fatalf("image missing: %v", err)
			}
		})
	}
}

func TestCLI_VisualizeJSON(t *testing.T) {
	env := newEnv(t)
	env.sample(t)
	got := lines(env.runCmd(t, "visualize", "--viz-type", "heatmap", "--json"))
	var vr struct {
		Success       bool `json:"success"`
		Visualization struct {
			Type string `json:"type"`
			Path string `json:"path"`
		} `json:"visualization"`
		Error *string `json:"error"`
	}
	if err := json.Unmarshal([]byte(strings.Join(got[2:], "\n")), &vr); err != nil {
		t.Fatalf("json tail: %v", err)
	}
	if !vr.Success || vr.Visualization.Type != "heatmap" || vr.Visualization.Path != got[0] || vr.Error != nil {
		t.Fatalf("unexpected json: %+v", vr)
	}
}

func TestCLI_VisualizeFailuresKeepContract(t *testing.T) {
	env := newEnv(t)
	env.sample(t)
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"empty range", []string{"visualize", "--start-date", "2030-01-01"}, "No data found for the specified date range"},
		{"missing file", []string{"visualize", filepath.Join(t.TempDir(), "nope.csv")}, "File not found:"},
		{"unknown type", []string{"visualize", "--viz-type", "pie"}, "Error analyzing data:"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := env.execute(t, tc.args...)
			if err == nil {
				t.Fatal("expected non-nil error for exit code 1")
			}
			got := lines(out)
			if len(got) != 2 {
				t.Fatalf("expected two lines, got %q", got)
			}
			if !strings.HasPrefix(got[0], "/images/error_") {
				t.Fatalf("expected error image path, got %q", got[0])
			}
			if !strings.HasPrefix(got[1], tc.want) {
				t.Fatalf("message %q does not start with %q", got[1], tc.want)
			}
		})
	}
}

func TestCLI_InvalidConfigKeepsTwoLines(t *testing.T) {
	env := newEnv(t)
	env.sample(t)
	t.Setenv("AIRLENS_FETCH_SPAN", "bogus")
	for _, args := range [][]string{
		{"visualize", "--viz-type", "daily_pattern"},
		{"correlate"},
		{"run", "--viz-type", "heatmap"},
	} {
		t.Run(args[0], func(t *testing.T) {
			got := lines(env.runCmd(t, args...))
			if len(got) != 2 || !strings.HasPrefix(got[0], "/images/") || got[1] == "" {
				t.Fatalf("expected two lines, got %q", got)
			}
			if _, err := os.Stat(filepath.Join(env.images, path.Base(got[0]))); err != nil {
				t.Fatalf("image missing: %v", err)
			}
		})
	}
}

func TestCLI_CorrelateStreams(t *testing.T) {
	env := newEnv(t)
	env.sample(t)
	got := lines(env.runCmd(t, "correlate", "--chunk-size", "50"))
	if len(got) != 2 || !strings.HasPrefix(got[0], "/images/correlation_") {
		t.Fatalf("unexpected output %q", got)
	}
	want := "Correlation analysis of PM2.5 with environmental factors based on 168 data points."
	if !strings.HasPrefix(got[1], want) {
		t.Fatalf("description %q", got[1])
	}

	out, err := env.execute(t, "correlate", "--start-date", "2030-01-01")
	if err == nil {
		t.Fatal("expected exit 1 when the range is empty")
	}
	if got := lines(out); got[1] != "No data available for the selected period." {
		t.Fatalf("placeholder description %q", got[1])
	}
}

func TestCLI_Validate(t *testing.T) {
	env := newEnv(t)
	env.sample(t)
	var v struct {
		Valid       bool `json:"valid"`
		RecordCount int  `json:"recordCount"`
	}
	out := env.runCmd(t, "validate", "--strict")
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("validate output: %v", err)
	}
	if !v.Valid || v.RecordCount != 168 {
		t.Fatalf("unexpected validation: %+v", v)
	}

	bad := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(bad, []byte("created_at,pm25,pm10\nnot-a-date,,\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := env.execute(t, "validate", "--strict", bad); err == nil {
		t.Fatal("expected --strict to fail on an invalid file")
	}
}

func TestCLI_ConfigSetShow(t *testing.T) {
	env := newEnv(t)
	env.runCmd(t, "config", "set", "chunk_size", "1234")
	env.runCmd(t, "config", "set", "thingspeak_read_api_key", "READKEY123")
	out := env.runCmd(t, "config", "show")
	if !strings.Contains(out, "chunk_size: 1234") {
		t.Fatalf("chunk_size not persisted:\n%s", out)
	}
	if strings.Contains(out, "READKEY123") || !strings.Contains(out, "thingspeak_read_api_key: REA****123") {
		t.Fatalf("api key not masked:\n%s", out)
	}
	if _, err := env.execute(t, "config", "set", "fetch_span", "a week"); err == nil {
		t.Fatal("expected invalid duration to be rejected")
	}
}

func feedServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	var b strings.Builder
	b.WriteString(`{"channel": {"id": 99, "name": "test"}, "feeds": [`)
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 48; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"created_at": %q, "entry_id": %d, "field1": "%d", "field2": "%d", "field3": "%d", "field4": "%d"}`,
			start.Add(time.Duration(i)*time.Hour).Format(time.RFC3339), i+1, 40+i%24, 15+i%10, 8+i%24, 20+i%24)
	}
	b.WriteString("]}")
	body := b.String()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.URL.Path != "/channels/99/feeds.json" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCLI_FetchThenRun(t *testing.T) {
	env := newEnv(t)
	var hits int32
	srv := feedServer(t, &hits)
	t.Setenv("AIRLENS_THINGSPEAK_BASE_URL", srv.URL)
	t.Setenv("AIRLENS_THINGSPEAK_CHANNEL_ID", "99")

	var fr struct {
		Success bool `json:"success"`
		Records int  `json:"records"`
	}
	out := env.runCmd(t, "fetch", "--days", "2")
	if err := json.Unmarshal([]byte(out), &fr); err != nil {
		t.Fatalf("fetch output: %v\n%s", err, out)
	}
	if !fr.Success || fr.Records != 48 {
		t.Fatalf("unexpected fetch result: %+v", fr)
	}

	// the file is fresh, so run does not fetch again
	got := lines(env.runCmd(t, "run", "--viz-type", "daily_pattern"))
	if !strings.HasPrefix(got[0], "/images/daily_pattern_") {
		t.Fatalf("unexpected run output %q", got)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("expected 1 request, got %d", n)
	}

	got = lines(env.runCmd(t, "run", "--force-fetch", "--json"))
	var pr struct {
		Fetch struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		} `json:"fetch"`
		OverallSuccess bool `json:"overall_success"`
	}
	if err := json.Unmarshal([]byte(strings.Join(got[2:], "\n")), &pr); err != nil {
		t.Fatalf("run json: %v", err)
	}
	if !pr.OverallSuccess || !pr.Fetch.Success || pr.Fetch.Message != "Fetched 48 records" {
		t.Fatalf("unexpected pipeline result: %+v", pr)
	}
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Fatalf("expected 2 requests, got %d", n)
	}
}

func TestCLI_RunSurvivesFetchFailure(t *testing.T) {
	env := newEnv(t)
	env.sample(t)
	var hits int32
	srv := feedServer(t, &hits)
	t.Setenv("AIRLENS_THINGSPEAK_BASE_URL", srv.URL)
	t.Setenv("AIRLENS_THINGSPEAK_CHANNEL_ID", "404")

	got := lines(env.runCmd(t, "run", "--force-fetch", "--viz-type", "heatmap"))
	if !strings.HasPrefix(got[0], "/images/heatmap_") {
		t.Fatalf("analysis should proceed on the existing file, got %q", got)
	}
}

func TestCLI_FetchWithoutChannel(t *testing.T) {
	env := newEnv(t)
	out, err := env.execute(t, "fetch", "--check-only")
	if err == nil {
		t.Fatal("expected failure without a channel id")
	}
	if !strings.Contains(out, "thingspeak_channel_id is not configured") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}
