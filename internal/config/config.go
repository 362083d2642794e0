// Package config loads the YAML configuration for the frame builder service.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RingConfig describes the ring (shared-memory event-transport) output.
// Setting Path to the empty string disables ring output entirely.
type RingConfig struct {
	Path      string `yaml:"path"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	EventSize int    `yaml:"event_size"`
	// Depth is parsed from the configuration but not read by any ring
	// backend: the NATS backend always allows a fixed 16 events in flight
	// per attachment, independent of this value.
	Depth int `yaml:"depth"`
}

func (r RingConfig) Enabled() bool { return r.Path != "" }

// FileConfig describes the rolling-file output.
type FileConfig struct {
	Dir         string `yaml:"dir"`
	Prefix      string `yaml:"prefix"`
	MaxFileSize int64  `yaml:"max_file_size"`
}

func (f FileConfig) Enabled() bool { return f.Dir != "" }

// ShardConfig carries the aggregation-engine tuning knobs.
type ShardConfig struct {
	ShardCount      int `yaml:"shard_count"`
	TimestampSlop   int `yaml:"timestamp_slop"`
	FrameTimeoutMs  int `yaml:"frame_timeout_ms"`
	ExpectedStreams int `yaml:"expected_streams"`
}

// ClickHouseConfig names an audit-trail ClickHouse instance.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
}

func (c ClickHouseConfig) Enabled() bool { return c.Host != "" }

// SMTPConfig configures the outbound alert email transport.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// AlertRule is a single threshold rule evaluated against live counters.
type AlertRule struct {
	Name      string  `yaml:"name"`
	Metric    string  `yaml:"metric"` // "encode_error_rate", "timestamp_slop_rate", "file_io_errors"
	Threshold float64 `yaml:"threshold"`
}

// AlertConfig configures the periodic operator-alerting loop.
type AlertConfig struct {
	Enabled       bool        `yaml:"enabled"`
	CheckInterval string      `yaml:"check_interval"`
	Rules         []AlertRule `yaml:"rules"`
}

// HTTPConfig configures the gorilla/mux stats/health surface.
type HTTPConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

func (h HTTPConfig) Enabled() bool { return h.ListenAddr != "" }

// GRPCConfig configures the stats + health gRPC surface.
type GRPCConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

func (g GRPCConfig) Enabled() bool { return g.ListenAddr != "" }

// Config is the top-level configuration for the frame builder service.
type Config struct {
	Ring       RingConfig       `yaml:"ring"`
	File       FileConfig       `yaml:"file"`
	Shard      ShardConfig      `yaml:"shard"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	Alert      AlertConfig      `yaml:"alert"`
	HTTP       HTTPConfig       `yaml:"http"`
	GRPC       GRPCConfig       `yaml:"grpc"`
}

// LoadConfig reads and parses the YAML configuration file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		Ring: RingConfig{
			EventSize: 1024 * 1024,
			Depth:     16,
		},
		File: FileConfig{
			Prefix:      "frames",
			MaxFileSize: 1 << 31,
		},
		Shard: ShardConfig{
			ShardCount:      4,
			TimestampSlop:   100,
			FrameTimeoutMs:  1000,
			ExpectedStreams: 1,
		},
	}
}

// Validate enforces the construction precondition that at least one output
// sink must be enabled, and that the shard count is sane.
func (c *Config) Validate() error {
	if !c.Ring.Enabled() && !c.File.Enabled() {
		return fmt.Errorf("config_invalid: at least one of ring.path or file.dir must be set")
	}
	if c.Shard.ShardCount < 1 || c.Shard.ShardCount > 32 {
		return fmt.Errorf("config_invalid: shard_count must be in [1,32], got %d", c.Shard.ShardCount)
	}
	return nil
}
