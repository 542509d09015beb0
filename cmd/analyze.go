package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/airlens-cli/internal/analysis"
	"github.com/KaramelBytes/airlens-cli/internal/dataset"
	"github.com/KaramelBytes/airlens-cli/internal/render"
	"github.com/KaramelBytes/airlens-cli/internal/utils"
)

var (
	anaExtended   bool
	anaFormat     string
	anaNoCharts   bool
	anaOutputDir  string
	anaOutputPath string
	anaMaxRows    int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [csv] [start] [end]",
	Short: "Compute statistics for a telemetry CSV and print them as JSON",
	Long: `Compute averages and extremes of PM2.5, PM10, temperature and humidity.
With --extended, also hourly and weekday patterns, the weekday x hour heatmap,
correlations, data quality, and the scatter, histogram and correlation matrix
charts. Dates are YYYY-MM-DD; the end date is inclusive.`,
	Args: cobra.MaximumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var start, end string
		if len(args) > 1 {
			start = args[1]
		}
		if len(args) > 2 {
			end = args[2]
		}
		format := strings.ToLower(strings.TrimSpace(anaFormat))
		if format != "json" && format != "markdown" && format != "md" {
			return fmt.Errorf("unsupported --format: %s (use json|markdown)", anaFormat)
		}
		maxRows := cfg.MaxRows
		if cmd.Flags().Changed("max-rows") {
			maxRows = anaMaxRows
		}

		runID := uuid.NewString()
		log := logger.With("run_id", runID)
		a, err := analyzeFile(dataPath(args), start, end, maxRows)
		var res *analysis.Result
		if err != nil {
			log.Error("analysis failed", "err", err)
			res = analysis.FailedResult(err, a)
		} else {
			res = a.Result()
			if a.Extended && !anaNoCharts {
				res.Charts = extendedCharts(renderContext(anaOutputDir), a.Dataset)
			}
		}
		res.RunID = runID

		var out []byte
		if format == "json" {
			b, jerr := utils.PrettyJSON(res)
			if jerr != nil {
				return fmt.Errorf("encode json: %w", jerr)
			}
			out = b
		} else if err == nil {
			out = []byte(a.Markdown())
		} else {
			out = []byte("[ANALYSIS ERROR]\n" + res.Error + "\n")
		}

		if anaOutputPath != "" {
			if werr := utils.SafeWriteFile(anaOutputPath, append(out, '\n')); werr != nil {
				return fmt.Errorf("write output: %w", werr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote analysis to %s\n", anaOutputPath)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
		}
		if err != nil {
			return reported(err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().BoolVarP(&anaExtended, "extended", "e", false, "include patterns, correlations, data quality and extra charts")
	analyzeCmd.Flags().StringVar(&anaFormat, "format", "json", "output format: json | markdown")
	analyzeCmd.Flags().BoolVar(&anaNoCharts, "no-charts", false, "skip chart rendering in extended mode")
	analyzeCmd.Flags().StringVar(&anaOutputDir, "output-dir", "", "directory for PNG files (default from config)")
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "output", "o", "", "optional path to write the analysis instead of stdout")
	analyzeCmd.Flags().IntVar(&anaMaxRows, "max-rows", 0, "maximum data rows to read (0 = unlimited, default from config)")
}

func analyzeFile(path, start, end string, maxRows int) (*analysis.Analysis, error) {
	r, err := dataset.NewDateRange(start, end)
	if err != nil {
		return nil, err
	}
	return analysis.Run(path, analysis.Options{
		Load:     dataset.LoadOptions{Range: r, MaxRows: maxRows},
		Extended: anaExtended,
		Logger:   logger,
	})
}

// extendedCharts renders the extra charts. A chart that cannot be drawn for
// this dataset is logged and left out.
func extendedCharts(rc *render.Context, ds *dataset.Dataset) []analysis.ChartRef {
	var refs []analysis.ChartRef
	for _, k := range render.ExtendedKinds {
		a, err := render.Visualize(rc, k, ds)
		if err != nil {
			logger.Warn("chart skipped", "type", k, "err", err)
			continue
		}
		refs = append(refs, analysis.ChartRef{Kind: string(k), Path: a.WebPath, Description: a.Description})
	}
	return refs
}
