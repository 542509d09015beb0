package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/sosodev/duration"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/airlens-cli/internal/telemetry"
)

var (
	fetchDays       int
	fetchSpan       string
	fetchOutput     string
	fetchCheckOnly  bool
	fetchMaxResults int
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download recent channel feeds from ThingSpeak into a CSV",
	Long: `Download the trailing window of a ThingSpeak channel (default from
fetch_span, e.g. P7D) and save it as CSV. The channel and read key come from
config or AIRLENS_THINGSPEAK_CHANNEL_ID / AIRLENS_THINGSPEAK_READ_API_KEY.
Prints a JSON report.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		span, err := fetchWindow(cmd)
		if err != nil {
			return err
		}
		out := fetchOutput
		if out == "" {
			out = cfg.DataFile
		}
		maxResults := cfg.FetchMaxResults
		if cmd.Flags().Changed("max-results") {
			maxResults = fetchMaxResults
		}
		res := fetchFeeds(cmd, telemetry.FetchOptions{Span: span, MaxResults: maxResults, Output: out, CheckOnly: fetchCheckOnly})
		if err := printJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		if !res.Success {
			return reported(errors.New(*res.Error))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().IntVar(&fetchDays, "days", 0, "number of days to fetch (overrides --span)")
	fetchCmd.Flags().StringVar(&fetchSpan, "span", "", "ISO-8601 window to fetch, e.g. P7D or PT12H (default from config)")
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "", "CSV path to write (default data_file from config)")
	fetchCmd.Flags().BoolVar(&fetchCheckOnly, "check-only", false, "query the API without writing a file")
	fetchCmd.Flags().IntVar(&fetchMaxResults, "max-results", 0, "maximum entries to request (default from config)")
}

func fetchWindow(cmd *cobra.Command) (time.Duration, error) {
	switch {
	case cmd.Flags().Changed("days"):
		if fetchDays <= 0 {
			return 0, fmt.Errorf("invalid --days: %d", fetchDays)
		}
		return time.Duration(fetchDays) * 24 * time.Hour, nil
	case fetchSpan != "":
		d, err := duration.Parse(fetchSpan)
		if err != nil {
			return 0, fmt.Errorf("invalid --span %q: %w", fetchSpan, err)
		}
		return d.ToTimeDuration(), nil
	}
	return cfg.FetchWindow(), nil
}

// fetchFeeds runs one download. A missing channel id is reported in the result.
func fetchFeeds(cmd *cobra.Command, opt telemetry.FetchOptions) *telemetry.FetchResult {
	if cfg.ChannelID == "" {
		msg := "thingspeak_channel_id is not configured"
		return &telemetry.FetchResult{OutputFile: opt.Output, CheckOnly: opt.CheckOnly, Error: &msg}
	}
	logger.Info("fetching feeds", "channel", cfg.ChannelID, "span", opt.Span)
	return telemetryClient().FetchAndSave(cmd.Context(), opt)
}
