package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/airlens-cli/internal/dataset"
)

var (
	valMaxRecords int
	valStrict     bool
)

var validateCmd = &cobra.Command{
	Use:   "validate [csv]",
	Short: "Check a telemetry CSV for missing columns, gaps and bad timestamps",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := dataPath(args)
		v := dataset.Validate(path, valMaxRecords)
		logger.Debug("validation finished", "file", path, "records", v.RecordCount, "issues", len(v.Issues))
		if err := printJSON(cmd.OutOrStdout(), v); err != nil {
			return err
		}
		if valStrict && !v.Valid {
			return reported(fmt.Errorf("%s failed validation with %d issue(s)", path, len(v.Issues)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().IntVar(&valMaxRecords, "max-records", 0, "maximum rows to inspect (0 = all)")
	validateCmd.Flags().BoolVar(&valStrict, "strict", false, "exit 1 when any issue is found")
}
