package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sosodev/duration"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	DataFile  string `mapstructure:"data_file" yaml:"data_file"`
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
	WebPrefix string `mapstructure:"web_prefix" yaml:"web_prefix"`
	ChunkSize int    `mapstructure:"chunk_size" yaml:"chunk_size"`
	MaxRows   int    `mapstructure:"max_rows" yaml:"max_rows"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	// ThingSpeak channel
	BaseURL         string `mapstructure:"thingspeak_base_url" yaml:"thingspeak_base_url"`
	ChannelID       string `mapstructure:"thingspeak_channel_id" yaml:"thingspeak_channel_id"`
	ReadAPIKey      string `mapstructure:"thingspeak_read_api_key" yaml:"thingspeak_read_api_key"`
	FetchSpan       string `mapstructure:"fetch_span" yaml:"fetch_span"`
	FetchMaxResults int    `mapstructure:"fetch_max_results" yaml:"fetch_max_results"`
	DataMaxAge      string `mapstructure:"data_max_age" yaml:"data_max_age"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	ChartWidth  int `mapstructure:"chart_width" yaml:"chart_width"`
	ChartHeight int `mapstructure:"chart_height" yaml:"chart_height"`
}

var defaults = map[string]any{
	"data_file":               "data/air_quality_data.csv",
	"output_dir":              "static/images",
	"web_prefix":              "/images",
	"chunk_size":              50000,
	"max_rows":                0,
	"log_level":               "info",
	"log_format":              "text",
	"thingspeak_base_url":     "https://api.thingspeak.com",
	"thingspeak_channel_id":   "",
	"thingspeak_read_api_key": "",
	"fetch_span":              "P7D",
	"fetch_max_results":       8000,
	"data_max_age":            "PT1H",
	"http_timeout_sec":        30,
	"retry_max_attempts":      3,
	"retry_base_delay_ms":     5000,
	"retry_max_delay_ms":      20000,
	"chart_width":             1200,
	"chart_height":            600,
}

// Keys returns every configuration key in sorted order.
func Keys() []string {
	out := make([]string, 0, len(defaults))
	for k := range defaults {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DefaultPath is ~/.airlens/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".airlens", "config.yaml"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.airlens/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	// the file may carry a read API key
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Defaults returns the built-in configuration.
func Defaults() *Global {
	c := &Global{}
	for k, v := range defaults {
		_ = c.Set(k, fmt.Sprint(v))
	}
	return c
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. Flags are applied by the caller.
// When validation fails, Load returns the error together with a usable
// configuration in which the offending keys hold their defaults.
func Load(cfgFile string) (*Global, error) {
	return load(cfgFile, true)
}

// LoadFile is Load without environment overrides, for editing the file.
func LoadFile(cfgFile string) (*Global, error) {
	return load(cfgFile, false)
}

func load(cfgFile string, env bool) (*Global, error) {
	v := viper.New()
	if env {
		v.SetEnvPrefix("AIRLENS")
		v.AutomaticEnv()
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, ".airlens"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// optional read
		_ = v.ReadInConfig()
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		c.resetInvalid()
		return &c, err
	}
	return &c, nil
}

// Validate checks the ISO-8601 durations and numeric bounds.
func (c *Global) Validate() error {
	if _, err := parseISODuration("fetch_span", c.FetchSpan); err != nil {
		return err
	}
	if _, err := parseISODuration("data_max_age", c.DataMaxAge); err != nil {
		return err
	}
	if c.ChunkSize < 0 || c.MaxRows < 0 || c.FetchMaxResults < 0 {
		return fmt.Errorf("chunk_size, max_rows and fetch_max_results must not be negative")
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log_format: %s (use text or json)", c.LogFormat)
	}
	return nil
}

// resetInvalid restores the default of every key that fails Validate.
func (c *Global) resetInvalid() {
	if _, err := parseISODuration("fetch_span", c.FetchSpan); err != nil {
		c.FetchSpan = defaults["fetch_span"].(string)
	}
	if _, err := parseISODuration("data_max_age", c.DataMaxAge); err != nil {
		c.DataMaxAge = defaults["data_max_age"].(string)
	}
	for key, dst := range map[string]*int{
		"chunk_size":        &c.ChunkSize,
		"max_rows":          &c.MaxRows,
		"fetch_max_results": &c.FetchMaxResults,
	} {
		if *dst < 0 {
			*dst = defaults[key].(int)
		}
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		c.LogFormat = defaults["log_format"].(string)
	}
}

// FetchWindow returns fetch_span as a duration.
func (c *Global) FetchWindow() time.Duration {
	d, _ := parseISODuration("fetch_span", c.FetchSpan)
	return d
}

// MaxDataAge returns data_max_age as a duration.
func (c *Global) MaxDataAge() time.Duration {
	d, _ := parseISODuration("data_max_age", c.DataMaxAge)
	return d
}

func (c *Global) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}

func (c *Global) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

func (c *Global) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMs) * time.Millisecond
}

func parseISODuration(key, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := duration.Parse(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: expected an ISO-8601 duration such as P7D or PT1H: %w", key, s, err)
	}
	return d.ToTimeDuration(), nil
}

// Set assigns a value by key, validating its type.
func (c *Global) Set(key, val string) error {
	atoi := func(dst *int) error {
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return fmt.Errorf("invalid int for %s: %v", key, val)
		}
		*dst = i
		return nil
	}
	iso := func(dst *string) error {
		if _, err := parseISODuration(key, val); err != nil {
			return err
		}
		*dst = val
		return nil
	}
	switch key {
	case "data_file":
		c.DataFile = val
	case "output_dir":
		c.OutputDir = val
	case "web_prefix":
		c.WebPrefix = val
	case "chunk_size":
		return atoi(&c.ChunkSize)
	case "max_rows":
		return atoi(&c.MaxRows)
	case "log_level":
		c.LogLevel = val
	case "log_format":
		switch strings.ToLower(val) {
		case "text", "json":
			c.LogFormat = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid log_format: %s (use text or json)", val)
		}
	case "thingspeak_base_url":
		c.BaseURL = val
	case "thingspeak_channel_id":
		c.ChannelID = val
	case "thingspeak_read_api_key":
		c.ReadAPIKey = val
	case "fetch_span":
		return iso(&c.FetchSpan)
	case "fetch_max_results":
		return atoi(&c.FetchMaxResults)
	case "data_max_age":
		return iso(&c.DataMaxAge)
	case "http_timeout_sec":
		return atoi(&c.HTTPTimeoutSec)
	case "retry_max_attempts":
		return atoi(&c.RetryMaxAttempts)
	case "retry_base_delay_ms":
		return atoi(&c.RetryBaseDelayMs)
	case "retry_max_delay_ms":
		return atoi(&c.RetryMaxDelayMs)
	case "chart_width":
		return atoi(&c.ChartWidth)
	case "chart_height":
		return atoi(&c.ChartHeight)
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

// Values renders the configuration as key/value pairs in Keys order, with
// the read API key masked.
func (c *Global) Values() [][2]string {
	m := map[string]string{
		"data_file":               c.DataFile,
		"output_dir":              c.OutputDir,
		"web_prefix":              c.WebPrefix,
		"chunk_size":              strconv.Itoa(c.ChunkSize),
		"max_rows":                strconv.Itoa(c.MaxRows),
		"log_level":               c.LogLevel,
		"log_format":              c.LogFormat,
		"thingspeak_base_url":     c.BaseURL,
		"thingspeak_channel_id":   c.ChannelID,
		"thingspeak_read_api_key": Mask(c.ReadAPIKey),
		"fetch_span":              c.FetchSpan,
		"fetch_max_results":       strconv.Itoa(c.FetchMaxResults),
		"data_max_age":            c.DataMaxAge,
		"http_timeout_sec":        strconv.Itoa(c.HTTPTimeoutSec),
		"retry_max_attempts":      strconv.Itoa(c.RetryMaxAttempts),
		"retry_base_delay_ms":     strconv.Itoa(c.RetryBaseDelayMs),
		"retry_max_delay_ms":      strconv.Itoa(c.RetryMaxDelayMs),
		"chart_width":             strconv.Itoa(c.ChartWidth),
		"chart_height":            strconv.Itoa(c.ChartHeight),
	}
	out := make([][2]string, 0, len(m))
	for _, k := range Keys() {
		out = append(out, [2]string{k, m[k]})
	}
	return out
}

// Mask hides all but the ends of a secret.
func Mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
