package dataset

import (
	"errors"
	"fmt"
	"math"
	"os"
)

const maxInvalidExamples = 10

// Validation is the integrity report of a telemetry CSV.
type Validation struct {
	Valid           bool               `json:"valid"`
	RecordCount     int                `json:"recordCount"`
	ValidRecords    int                `json:"validRecords"`
	Completion      float64            `json:"completion"`
	Issues          []string           `json:"issues"`
	InvalidRecords  []InvalidRecord    `json:"invalidRecords"`
	FieldStatistics map[string]float64 `json:"fieldStatistics"`
	Mapping         map[string]string  `json:"fieldMapping,omitempty"`
	FileInfo        *FileInfo          `json:"fileInfo,omitempty"`
}

// InvalidRecord is an example row that lacks a timestamp or a pollutant value.
type InvalidRecord struct {
	Index  int      `json:"index"`
	Issues []string `json:"issues"`
}

type FileInfo struct {
	Path   string  `json:"path"`
	Size   int64   `json:"size"`
	SizeMB float64 `json:"size_mb"`
}

// Validate scans a CSV once and reports coverage and integrity issues.
// maxRecords limits the rows inspected; 0 means all. Failures are reported
// inside the Validation rather than returned.
func Validate(path string, maxRecords int) *Validation {
	v := &Validation{
		Issues:          []string{},
		InvalidRecords:  []InvalidRecord{},
		FieldStatistics: map[string]float64{},
	}
	for _, m := range Metrics {
		v.FieldStatistics[m.LegacyColumn()+"_coverage"] = 0
	}
	v.FieldStatistics["valid_dates_coverage"] = 0

	st, err := os.Stat(path)
	if err != nil {
		v.Issues = append(v.Issues, fmt.Sprintf("File not found: %s", path))
		return v
	}
	v.FileInfo = &FileInfo{Path: path, Size: st.Size(), SizeMB: round2(float64(st.Size()) / (1024 * 1024))}

	sc, err := Open(path, 0)
	if err != nil {
		if errors.Is(err, ErrMissingRequiredColumns) {
			v.Issues = append(v.Issues, fmt.Sprintf("Missing required columns: %v", err))
		} else {
			v.Issues = append(v.Issues, fmt.Sprintf("Error validating data: %v", err))
		}
		return v
	}
	defer sc.Close()
	v.Mapping = sc.Mapping.Describe()
	for _, m := range Metrics {
		if !sc.Mapping.Available(m) {
			v.Issues = append(v.Issues, fmt.Sprintf("Missing column: %s (%s)", m.LegacyColumn(), m.Label()))
		}
	}

	var present [NumMetrics]int
	validDates := 0
	for sc.Next() {
		if maxRecords > 0 && sc.Rows() > maxRecords {
			break
		}
		v.RecordCount++
		rd, ok := parseRow(sc.Record(), sc.Mapping)
		for _, m := range Metrics {
			if rd.Present[m] {
				present[m]++
			}
		}
		if ok {
			validDates++
		}
		if ok && rd.Present[PM25] && rd.Present[PM10] {
			v.ValidRecords++
			continue
		}
		if len(v.InvalidRecords) < maxInvalidExamples {
			ex := InvalidRecord{Index: v.RecordCount - 1}
			if !ok {
				ex.Issues = append(ex.Issues, "Invalid timestamp")
			}
			if !rd.Present[PM25] {
				ex.Issues = append(ex.Issues, "Missing PM2.5 value")
			}
			if !rd.Present[PM10] {
				ex.Issues = append(ex.Issues, "Missing PM10 value")
			}
			v.InvalidRecords = append(v.InvalidRecords, ex)
		}
	}
	if err := sc.Err(); err != nil {
		v.Issues = append(v.Issues, fmt.Sprintf("Error validating data: %v", err))
	}

	total := float64(v.RecordCount)
	if v.RecordCount > 0 {
		v.Completion = round2(float64(v.ValidRecords) / total * 100)
		for _, m := range Metrics {
			v.FieldStatistics[m.LegacyColumn()+"_coverage"] = round2(float64(present[m]) / total * 100)
		}
		v.FieldStatistics["valid_dates_coverage"] = round2(float64(validDates) / total * 100)
	} else {
		v.Issues = append(v.Issues, "No data rows found")
	}
	for _, m := range Metrics {
		if sc.Mapping.Available(m) && float64(present[m]) < total*0.9 {
			v.Issues = append(v.Issues, fmt.Sprintf("%s (%s) is missing in more than 10%% of records", m.LegacyColumn(), m.Label()))
		}
	}
	if float64(validDates) < total*0.95 {
		v.Issues = append(v.Issues, "Invalid timestamps found in more than 5% of records")
	}
	v.Valid = len(v.Issues) == 0
	return v
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }
