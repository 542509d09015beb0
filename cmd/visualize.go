package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/airlens-cli/internal/analysis"
	"github.com/KaramelBytes/airlens-cli/internal/dataset"
	"github.com/KaramelBytes/airlens-cli/internal/render"
)

var (
	vizType      string
	vizStart     string
	vizEnd       string
	vizOutputDir string
	vizJSON      bool
)

var visualizeCmd = &cobra.Command{
	Use:   "visualize [csv]",
	Short: "Render one chart and print its web path and description",
	Long: `Render one chart from a telemetry CSV. Prints two lines on stdout: the
web path of the PNG and a description. On failure an error image is rendered
instead, its path and the error message are printed, and the exit code is 1.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rc := renderContext(vizOutputDir)
		vr := visualize(rc, dataPath(args), vizType, vizStart, vizEnd)
		out := cmd.OutOrStdout()
		printLines(out, *vr.Visualization.Path, *vr.Visualization.Description)
		if vizJSON {
			if err := printJSON(out, vr); err != nil {
				return err
			}
		}
		if !vr.Success {
			return reported(errors.New(*vr.Error))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(visualizeCmd)
	visualizeCmd.Flags().StringVar(&vizType, "viz-type", string(render.KindTimeSeries), "chart type: "+kindList())
	visualizeCmd.Flags().StringVar(&vizStart, "start-date", "", "optional start date filter (YYYY-MM-DD)")
	visualizeCmd.Flags().StringVar(&vizEnd, "end-date", "", "optional end date filter (YYYY-MM-DD, inclusive)")
	visualizeCmd.Flags().StringVar(&vizOutputDir, "output-dir", "", "directory for PNG files (default from config)")
	visualizeCmd.Flags().BoolVar(&vizJSON, "json", false, "also print the full JSON result")
}

func kindList() string {
	names := make([]string, len(render.Kinds))
	for i, k := range render.Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, " | ")
}

// visualize loads path, renders one chart and always returns a result whose
// Visualization carries a path and description: the chart's, or the error
// image's when anything fails.
func visualize(rc *render.Context, path, kindName, start, end string) *analysis.VisualizationResult {
	runID := uuid.NewString()
	log := logger.With("run_id", runID)
	fail := func(err error, st *analysis.Statistics) *analysis.VisualizationResult {
		msg := analysis.ErrorMessage(err)
		log.Error("visualization failed", "type", kindName, "err", err)
		vr := analysis.NewVisualizationResult(kindName, st, errorArtifact(rc, msg), msg, err)
		vr.RunID = runID
		return vr
	}

	kind, err := render.ParseKind(kindName)
	if err != nil {
		return fail(err, nil)
	}
	r, err := dataset.NewDateRange(start, end)
	if err != nil {
		return fail(err, nil)
	}
	ds, err := dataset.Load(path, dataset.LoadOptions{Range: r, MaxRows: cfg.MaxRows, Logger: log})
	if err != nil {
		return fail(err, nil)
	}
	st := analysis.Summarize(ds, log)
	a, err := render.Visualize(rc, kind, ds)
	if err != nil {
		return fail(fmt.Errorf("%s chart: %w", kind, err), &st)
	}
	log.Info("chart written", "type", kind, "file", a.File, "rows", ds.Len())
	vr := analysis.NewVisualizationResult(string(kind), &st, a.WebPath, a.Description, nil)
	vr.RunID = runID
	return vr
}
