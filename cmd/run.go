package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/airlens-cli/internal/analysis"
	"github.com/KaramelBytes/airlens-cli/internal/telemetry"
	"github.com/KaramelBytes/airlens-cli/internal/utils"
)

var (
	runVizType    string
	runForceFetch bool
	runDays       int
	runStart      string
	runEnd        string
	runJSON       bool
)

// StepResult is the outcome of one pipeline stage.
type StepResult struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Details *telemetry.FetchResult `json:"details,omitempty"`
}

// PipelineResult is printed by run --json.
type PipelineResult struct {
	Fetch          StepResult                    `json:"fetch"`
	Analyze        StepResult                    `json:"analyze"`
	Visualization  *analysis.Visualization       `json:"visualization"`
	Result         *analysis.VisualizationResult `json:"result,omitempty"`
	OverallSuccess bool                          `json:"overall_success"`
	Timestamp      string                        `json:"timestamp"`
}

var pipelineCmd = &cobra.Command{
	Use:   "run",
	Short: "Refresh the data file when stale, then render a chart",
	Long: `Fetch fresh channel data when the configured data file is older than
data_max_age (or --force-fetch), then render one chart from it. A failed
fetch is logged and the existing file is used. Prints the chart web path and
description like visualize.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res := &PipelineResult{Timestamp: time.Now().Format(time.RFC3339)}
		path := cfg.DataFile

		res.Fetch = refreshData(cmd, path)

		logger.Info("running analysis", "type", runVizType, "file", path)
		vr := visualize(renderContext(""), path, runVizType, runStart, runEnd)
		res.Result = vr
		res.Visualization = &vr.Visualization
		res.OverallSuccess = vr.Success
		if vr.Success {
			res.Analyze = StepResult{Success: true, Message: "Analysis complete, visualization created: " + *vr.Visualization.Path}
		} else {
			res.Analyze = StepResult{Message: *vr.Error}
		}

		out := cmd.OutOrStdout()
		printLines(out, *vr.Visualization.Path, *vr.Visualization.Description)
		if runJSON {
			if err := printJSON(out, res); err != nil {
				return err
			}
		}
		if !res.OverallSuccess {
			return reported(errors.New(res.Analyze.Message))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pipelineCmd)
	pipelineCmd.Flags().StringVar(&runVizType, "viz-type", "time_series", "chart type: "+kindList())
	pipelineCmd.Flags().BoolVar(&runForceFetch, "force-fetch", false, "fetch new data even if the file is recent")
	pipelineCmd.Flags().IntVar(&runDays, "days", 0, "number of days to fetch (default fetch_span from config)")
	pipelineCmd.Flags().StringVar(&runStart, "start-date", "", "optional start date filter (YYYY-MM-DD)")
	pipelineCmd.Flags().StringVar(&runEnd, "end-date", "", "optional end date filter (YYYY-MM-DD, inclusive)")
	pipelineCmd.Flags().BoolVar(&runJSON, "json", false, "also print the full pipeline JSON")
}

// refreshData fetches into path unless it is younger than data_max_age.
func refreshData(cmd *cobra.Command, path string) StepResult {
	if !runForceFetch {
		if age, ok := utils.FileAge(path, time.Now()); ok && age < cfg.MaxDataAge() {
			logger.Debug("data file is fresh", "file", path, "age", age.Round(time.Second))
			return StepResult{Success: true, Message: fmt.Sprintf("Using existing data file (age: %.1f minutes)", age.Minutes())}
		}
	}
	span := cfg.FetchWindow()
	if runDays > 0 {
		span = time.Duration(runDays) * 24 * time.Hour
	}
	fr := fetchFeeds(cmd, telemetry.FetchOptions{Span: span, MaxResults: cfg.FetchMaxResults, Output: path})
	if !fr.Success {
		logger.Error("error fetching data, using existing file if available", "err", *fr.Error)
		return StepResult{Message: *fr.Error, Details: fr}
	}
	return StepResult{Success: true, Message: fmt.Sprintf("Fetched %d records", fr.Records), Details: fr}
}
