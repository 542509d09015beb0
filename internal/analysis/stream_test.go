package analysis

import (
	"bufio"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/KaramelBytes/airlens-cli/internal/dataset"
)

func TestMomentsMergeMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	vals := make([]float64, 1000)
	for i := range vals {
		vals[i] = 50 + rng.NormFloat64()*12
	}
	var seq Moments
	for _, v := range vals {
		seq.Add(v)
	}
	var merged Moments
	for start := 0; start < len(vals); start += 137 {
		end := start + 137
		if end > len(vals) {
			end = len(vals)
		}
		var part Moments
		for _, v := range vals[start:end] {
			part.Add(v)
		}
		merged.Merge(part)
	}
	if merged.N != seq.N || merged.Min() != seq.Min() || merged.Max() != seq.Max() {
		t.Fatalf("merged %+v vs sequential %+v", merged, seq)
	}
	if !almost(merged.Mean(), seq.Mean(), 1e-9) || !almost(merged.Std(), seq.Std(), 1e-9) {
		t.Fatalf("mean/std drift: %v/%v vs %v/%v", merged.Mean(), merged.Std(), seq.Mean(), seq.Std())
	}
	want := Describe(vals)
	if !almost(seq.Std(), want.Std, 1e-9) {
		t.Fatalf("std %v vs describe %v", seq.Std(), want.Std)
	}
}

func TestMomentsStableAtLargeOffset(t *testing.T) {
	var m Moments
	for _, d := range []float64{4, 7, 13, 16} {
		m.Add(1e9 + d)
	}
	// sample variance of {4,7,13,16} is 30
	if !almost(m.Variance(), 30, 1e-6) {
		t.Fatalf("variance = %v", m.Variance())
	}
}

func TestPairMomentsMergeAndZeroVariance(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5, 6}
	ys := []float64{2.1, 3.9, 6.2, 8.1, 9.8, 12.2}
	var a, b, all PairMoments
	for i := range xs {
		all.Add(xs[i], ys[i])
		if i < 2 {
			a.Add(xs[i], ys[i])
		} else {
			b.Add(xs[i], ys[i])
		}
	}
	a.Merge(b)
	if !almost(a.Pearson(), all.Pearson(), 1e-12) {
		t.Fatalf("merged r %v vs %v", a.Pearson(), all.Pearson())
	}
	if !almost(a.Pearson(), pearson(xs, ys), 1e-12) {
		t.Fatalf("shifted r %v vs gonum %v", a.Pearson(), pearson(xs, ys))
	}
	var flat PairMoments
	for i := range xs {
		flat.Add(xs[i], 3)
	}
	if r := flat.Pearson(); r != 0 {
		t.Fatalf("zero variance r = %v", r)
	}
	var single PairMoments
	single.Add(1, 1)
	if single.Pearson() != 0 {
		t.Fatalf("single observation must give 0")
	}
}

func TestStreamMatchesInMemory(t *testing.T) {
	p := filepath.Join(t.TempDir(), "big.csv")
	writeSynthetic(t, p, 120000)

	ds, err := dataset.Load(p, dataset.LoadOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	mem := Correlations(ds)
	st := Summarize(ds, nil)

	sr, err := Stream(p, StreamOptions{ChunkSize: 50000})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if sr.Chunks != 3 || sr.Rows != 120000 || sr.NoData() {
		t.Fatalf("chunks=%d rows=%d valid=%d", sr.Chunks, sr.Rows, sr.Valid)
	}
	for _, m := range dataset.Metrics {
		want, _ := st.Summary(m)
		got := sr.Summary(m)
		if got.Count != want.Count {
			t.Fatalf("%s count %d vs %d", m, got.Count, want.Count)
		}
		if math.Abs(got.Mean-want.Mean) > 1e-6*math.Abs(want.Mean) {
			t.Fatalf("%s mean %v vs %v", m, got.Mean, want.Mean)
		}
		if got.Min != want.Min || got.Max != want.Max {
			t.Fatalf("%s extrema differ", m)
		}
		if !math.IsNaN(got.Median) {
			t.Fatalf("streaming median should be NaN")
		}
	}
	streamed := sr.Correlations()
	if len(streamed) != len(mem) {
		t.Fatalf("pair count %d vs %d", len(streamed), len(mem))
	}
	for i := range mem {
		if streamed[i].Key != mem[i].Key || streamed[i].N != mem[i].N {
			t.Fatalf("pair %d mismatch: %+v vs %+v", i, streamed[i], mem[i])
		}
		if streamed[i].R != mem[i].R {
			t.Fatalf("%s: stream r=%v vs memory r=%v", mem[i].Key, streamed[i].R, mem[i].R)
		}
		if math.Abs(streamed[i].Raw-mem[i].Raw) > 1e-6 {
			t.Fatalf("%s: stream %v vs memory %v", mem[i].Key, streamed[i].Raw, mem[i].Raw)
		}
	}
}

func TestStreamDateFilterSkipsChunks(t *testing.T) {
	lines := []string{"created_at,pm25,pm10,temperature,humidity"}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 48; i++ {
		ts := base.Add(time.Duration(i) * time.Hour).Format(time.RFC3339)
		lines = append(lines, fmt.Sprintf("%s,%d,%d,20,50", ts, i, 2*i))
	}
	r, _ := dataset.NewDateRange("2024-01-02", "2024-01-02")
	sr, err := StreamReader(strings.NewReader(strings.Join(lines, "\n")), "feed.csv", StreamOptions{ChunkSize: 12, Range: r})
	if err != nil {
		t.Fatalf("StreamReader: %v", err)
	}
	if sr.Chunks != 4 || sr.Skipped != 2 || sr.Valid != 24 {
		t.Fatalf("chunks=%d skipped=%d valid=%d", sr.Chunks, sr.Skipped, sr.Valid)
	}
	if got := sr.Summary(dataset.PM25).Mean; got != 35.5 {
		t.Fatalf("pm25 mean = %v", got)
	}
	c, _ := sr.Correlations().Get("pm25_temp")
	if c.R != 0 {
		t.Fatalf("constant temperature must give r=0, got %v", c.R)
	}
	pp, _ := sr.Correlations().Get("pm25_pm10")
	if pp.R != 1 {
		t.Fatalf("pm25_pm10 = %v", pp.R)
	}
}

func TestStreamNoData(t *testing.T) {
	in := "created_at,pm25,pm10\n2024-01-01T00:00,,\nbad,1,2\n"
	sr, err := StreamReader(strings.NewReader(in), "feed.csv", StreamOptions{})
	if err != nil {
		t.Fatalf("StreamReader: %v", err)
	}
	if !sr.NoData() || sr.Dropped != 1 || sr.Rows != 2 {
		t.Fatalf("no-data result wrong: %+v", sr)
	}
	if sr.Summary(dataset.PM25).Available() {
		t.Fatalf("summary should be unavailable")
	}
	if len(sr.Correlations()) != 1 || sr.Correlations()[0].R != 0 {
		t.Fatalf("correlations = %+v", sr.Correlations())
	}
}

func writeSynthetic(t *testing.T, path string, n int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	rng := rand.New(rand.NewSource(42))
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	fmt.Fprintln(w, "created_at,field1,field2,field3,field4")
	for i := 0; i < n; i++ {
		ts := base.Add(time.Duration(i) * time.Minute).Format("2006-01-02 15:04:05 UTC")
		temp := 15 + 10*math.Sin(float64(i)/500) + rng.NormFloat64()
		hum := 60 - 0.8*temp + rng.NormFloat64()*5
		pm25 := 20 + 0.5*temp + rng.NormFloat64()*4
		pm10 := 1.8*pm25 + rng.NormFloat64()*6
		cells := []string{
			fmt.Sprintf("%.2f", hum),
			fmt.Sprintf("%.2f", temp),
			fmt.Sprintf("%.2f", pm25),
			fmt.Sprintf("%.2f", pm10),
		}
		// sprinkle missing values so pairwise-complete counts differ per pair
		if i%97 == 0 {
			cells[0] = ""
		}
		if i%131 == 0 {
			cells[3] = ""
		}
		fmt.Fprintf(w, "%s,%s\n", ts, strings.Join(cells, ","))
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
}
