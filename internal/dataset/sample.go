package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"time"
)

// SampleOptions controls synthetic data generation.
type SampleOptions struct {
	// Start is the first timestamp; zero means Hours before now.
	Start time.Time
	Hours int
	Seed  int64
}

var sampleHeader = []string{
	"created_at", "entry_id", "field1", "field2", "field3", "field4",
	"latitude", "longitude", "elevation", "status",
	"pm25", "pm10", "humidity", "temperature",
}

// GenerateSample writes hourly synthetic readings carrying both the legacy
// fieldN columns and the semantic names. It returns the number of rows written.
func GenerateSample(w io.Writer, opt SampleOptions) (int, error) {
	if opt.Hours <= 0 {
		opt.Hours = 168
	}
	start := opt.Start
	if start.IsZero() {
		start = time.Now().UTC().Truncate(time.Hour).Add(-time.Duration(opt.Hours) * time.Hour)
	}
	rng := rand.New(rand.NewSource(opt.Seed))
	uniform := func(lo, hi float64) string {
		return strconv.FormatFloat(lo+rng.Float64()*(hi-lo), 'f', 2, 64)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(sampleHeader); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	for i := 0; i < opt.Hours; i++ {
		ts := start.Add(time.Duration(i) * time.Hour)
		hum := uniform(30, 90)
		temp := uniform(15, 35)
		pm25 := uniform(5, 50)
		pm10 := uniform(10, 100)
		row := []string{
			ts.Format(time.RFC3339), strconv.Itoa(i + 1), hum, temp, pm25, pm10,
			"", "", "", "",
			pm25, pm10, hum, temp,
		}
		if err := cw.Write(row); err != nil {
			return i, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return opt.Hours, fmt.Errorf("flush sample: %w", err)
	}
	return opt.Hours, nil
}
