// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable holding the config path.
const EnvConfig = "APRONWATCH_CONFIG"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Missing-enrichment policies for telemetry.missing_enrichment.
const (
	MissingEnrichmentNaN  = "nan"
	MissingEnrichmentSkip = "skip"
)

// Detector output formats for telemetry.detector.format.
const (
	FormatJSONL = "jsonl"
	FormatCBOR  = "cbor"
)

// Config is the configuration shared by all Apronwatch binaries.
type Config struct {
	// DataRoot is the directory under which dated session directories
	// are created.
	DataRoot string `yaml:"data_root"`

	// UTCOffset is the fixed offset from UTC used for session dating,
	// ledger timestamps, and telemetry time fields. Daylight saving is
	// not applied.
	UTCOffset time.Duration `yaml:"utc_offset"`

	// FrameInterval is the still frame sampling period in seconds.
	FrameInterval int `yaml:"frame_interval"`

	// RecordDuration is the length of one capture run in seconds.
	RecordDuration int `yaml:"record_duration"`

	// Sources lists the camera streams to capture.
	Sources []SourceConfig `yaml:"sources"`

	FFmpeg    FFmpegConfig    `yaml:"ffmpeg"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Weather   WeatherConfig   `yaml:"weather"`
}

// SourceConfig describes one camera stream.
type SourceConfig struct {
	// Label names the source directory and its video artifacts. It
	// must be unique and a single path element.
	Label string `yaml:"label"`

	// URL is the ffmpeg input URL. An empty URL disables the source.
	URL string `yaml:"url"`

	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the source should be captured.
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// FFmpegConfig configures the capture child processes.
type FFmpegConfig struct {
	// Binary is the ffmpeg executable, resolved through PATH when not
	// absolute.
	Binary string `yaml:"binary"`

	// ExtraInputArgs are placed before -i, e.g. ["-rtsp_transport", "tcp"].
	ExtraInputArgs []string `yaml:"extra_input_args"`

	// Grace is how long past the record duration a child may run
	// before it is interrupted.
	Grace time.Duration `yaml:"grace"`
}

// TelemetryConfig configures the telemetry writer and reader.
type TelemetryConfig struct {
	// Store is the path of the telemetry database.
	Store string `yaml:"store"`

	// MissingEnrichment selects what happens to a cycle whose weather
	// lookup failed: "nan" writes NaN enrichment fields, "skip" drops
	// the cycle.
	MissingEnrichment string `yaml:"missing_enrichment"`

	Detector DetectorConfig `yaml:"detector"`

	// PollInterval is how often a reader re-queries the store length.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DetectorConfig names the external detection and tracking process.
type DetectorConfig struct {
	// Command is the argv of the detector. Its stdout carries one
	// record per processed frame.
	Command []string `yaml:"command"`

	// Format is "jsonl" or "cbor".
	Format string `yaml:"format"`
}

// WeatherConfig configures the enrichment source.
type WeatherConfig struct {
	// SnapshotFile is a JSON file kept current by an external fetcher.
	SnapshotFile string `yaml:"snapshot_file"`

	// MaxAge rejects snapshots observed longer ago than this. Zero
	// disables the check.
	MaxAge time.Duration `yaml:"max_age"`

	// CacheTTL is how long a good snapshot is served without
	// re-reading the file.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Default returns the default configuration. LoadFile decodes the file
// over these values, so omitted fields keep their defaults.
func Default() *Config {
	return &Config{
		DataRoot:       "Data",
		UTCOffset:      time.Hour,
		FrameInterval:  10,
		RecordDuration: 60,
		FFmpeg: FFmpegConfig{
			Binary: "ffmpeg",
			Grace:  30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Store:             "Raw_Time_Series_Data/tracking_data.db",
			MissingEnrichment: MissingEnrichmentNaN,
			Detector: DetectorConfig{
				Format: FormatJSONL,
			},
			PollInterval: time.Second,
		},
		Weather: WeatherConfig{
			MaxAge:   time.Hour,
			CacheTTL: time.Hour,
		},
	}
}

// Load loads the file named by path, or by APRONWATCH_CONFIG when path
// is empty. With neither set it returns Default.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// FrameIntervalDuration returns FrameInterval as a duration.
func (c *Config) FrameIntervalDuration() time.Duration {
	return time.Duration(c.FrameInterval) * time.Second
}

// RecordDurationDuration returns RecordDuration as a duration.
func (c *Config) RecordDurationDuration() time.Duration {
	return time.Duration(c.RecordDuration) * time.Second
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.DataRoot = expandVars(c.DataRoot, vars)
	vars["APRONWATCH_DATA"] = c.DataRoot

	c.FFmpeg.Binary = expandVars(c.FFmpeg.Binary, vars)
	c.Telemetry.Store = expandVars(c.Telemetry.Store, vars)
	c.Weather.SnapshotFile = expandVars(c.Weather.SnapshotFile, vars)
	for i, arg := range c.Telemetry.Detector.Command {
		c.Telemetry.Detector.Command[i] = expandVars(arg, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration. Every failure is reported; the
// returned error wraps ErrInvalid.
func (c *Config) Validate() error {
	var errs []error

	if c.DataRoot == "" {
		errs = append(errs, fmt.Errorf("data_root is required"))
	}
	if c.UTCOffset <= -14*time.Hour || c.UTCOffset >= 15*time.Hour {
		errs = append(errs, fmt.Errorf("utc_offset %s is out of range", c.UTCOffset))
	}
	if c.FrameInterval <= 0 {
		errs = append(errs, fmt.Errorf("frame_interval must be a positive number of seconds, got %d", c.FrameInterval))
	}
	if c.RecordDuration <= 0 {
		errs = append(errs, fmt.Errorf("record_duration must be a positive number of seconds, got %d", c.RecordDuration))
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, source := range c.Sources {
		switch {
		case source.Label == "":
			errs = append(errs, fmt.Errorf("sources[%d]: label is required", i))
		case source.Label == "." || source.Label == ".." || strings.ContainsAny(source.Label, `/\`):
			errs = append(errs, fmt.Errorf("sources[%d]: label %q must be a single path element", i, source.Label))
		case seen[source.Label]:
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate label %q", i, source.Label))
		}
		seen[source.Label] = true
	}

	if c.FFmpeg.Binary == "" {
		errs = append(errs, fmt.Errorf("ffmpeg.binary is required"))
	}
	if c.FFmpeg.Grace < 0 {
		errs = append(errs, fmt.Errorf("ffmpeg.grace must not be negative"))
	}

	if c.Telemetry.Store == "" {
		errs = append(errs, fmt.Errorf("telemetry.store is required"))
	}
	policies := []string{MissingEnrichmentNaN, MissingEnrichmentSkip}
	if !slices.Contains(policies, c.Telemetry.MissingEnrichment) {
		errs = append(errs, fmt.Errorf("telemetry.missing_enrichment must be one of: %v", policies))
	}
	formats := []string{FormatJSONL, FormatCBOR}
	if !slices.Contains(formats, c.Telemetry.Detector.Format) {
		errs = append(errs, fmt.Errorf("telemetry.detector.format must be one of: %v", formats))
	}
	if c.Telemetry.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("telemetry.poll_interval must be positive"))
	}

	if c.Weather.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("weather.max_age must not be negative"))
	}
	if c.Weather.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("weather.cache_ttl must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
