package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/airlens-cli/internal/config"
	"github.com/KaramelBytes/airlens-cli/internal/logging"
	"github.com/KaramelBytes/airlens-cli/internal/render"
	"github.com/KaramelBytes/airlens-cli/internal/telemetry"
)

var (
	cfgFile   string
	debug     bool
	logFormat string
	// Retry/HTTP flags (override config if set)
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int
	flagRetryBaseDelayMs int
	flagRetryMaxDelayMs  int

	// Loaded configuration
	cfg    *cfgpkg.Global
	logger = logging.Discard()
)

var rootCmd = &cobra.Command{
	Use:   "airlens",
	Short: "AirLens CLI: analyze and chart air-quality telemetry",
	Long: `AirLens reads PM2.5/PM10, temperature and humidity readings from a CSV
export (ThingSpeak fieldN columns or named columns), computes statistics and
patterns, and renders charts. Chart commands print the image web path and a
one-paragraph description on stdout.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute is the entry point called by main.main()
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		var rep *reportedError
		if !errors.As(err, &rep) {
			fmt.Fprintln(os.Stderr, "✗ Error:", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.airlens/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format on stderr: text | json (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max retry attempts on 429/5xx (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxDelayMs, "retry-max-ms", 0, "max retry backoff cap in ms (overrides config)")
}

// setup loads configuration and builds the stderr logger before any command runs.
func setup(cmd *cobra.Command, _ []string) error {
	// Invalid keys fall back to defaults; the error is logged once the logger exists.
	c, loadErr := cfgpkg.Load(cfgFile)
	if c == nil {
		c = cfgpkg.Defaults()
	}
	cfg = c

	// Apply CLI overrides if provided
	f := cmd.Root().PersistentFlags()
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		cfg.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs > 0 {
		cfg.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-max-ms") && flagRetryMaxDelayMs > 0 {
		cfg.RetryMaxDelayMs = flagRetryMaxDelayMs
	}
	if f.Changed("log-format") {
		if err := cfg.Set("log_format", logFormat); err != nil {
			loadErr = errors.Join(loadErr, err)
		}
	}

	level, levelErr := logging.ParseLevel(cfg.LogLevel)
	if levelErr != nil {
		level = slog.LevelInfo
	}
	if debug {
		level = slog.LevelDebug
	}
	stderr := cmd.ErrOrStderr()
	logger = logging.New(stderr, logging.Options{
		Level:  level,
		Format: cfg.LogFormat,
		Color:  stderr == os.Stderr && isTerminal(os.Stderr) && os.Getenv("NO_COLOR") == "",
	})
	if loadErr != nil {
		logger.Warn("config invalid, using defaults for the affected keys", "err", loadErr)
	}
	if levelErr != nil {
		logger.Warn("log_level invalid, using info", "err", levelErr)
	}
	return nil
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// renderContext returns a chart context for dir, or the configured output dir.
func renderContext(dir string) *render.Context {
	if dir == "" {
		dir = cfg.OutputDir
	}
	rc := render.NewContext(dir, logger)
	if cfg.WebPrefix != "" {
		rc.WebPrefix = cfg.WebPrefix
	}
	if cfg.ChartWidth > 0 {
		rc.Width = cfg.ChartWidth
	}
	if cfg.ChartHeight > 0 {
		rc.Height = cfg.ChartHeight
	}
	return rc
}

func telemetryClient() *telemetry.Client {
	return telemetry.NewClient(telemetry.Options{
		BaseURL:          cfg.BaseURL,
		ChannelID:        cfg.ChannelID,
		ReadAPIKey:       cfg.ReadAPIKey,
		Timeout:          cfg.HTTPTimeout(),
		RetryMaxAttempts: cfg.RetryMaxAttempts,
		RetryBaseDelay:   cfg.RetryBaseDelay(),
		RetryMaxDelay:    cfg.RetryMaxDelay(),
		Logger:           logger,
	})
}

// dataPath returns the first positional argument or the configured data file.
func dataPath(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return cfg.DataFile
}
