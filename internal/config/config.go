// Package config provides configuration for the converter.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	converrors "github.com/arkilian/fifotable/internal/errors"
	"github.com/arkilian/fifotable/internal/logger"
	"github.com/arkilian/fifotable/internal/table"
	"github.com/arkilian/fifotable/pkg/types"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Archive types.
const (
	ArchiveNone  = "none"
	ArchiveLocal = "local"
	ArchiveS3    = "s3"
)

// DefaultNChan is the digitizer channel count recorded when -nchan is not given.
const DefaultNChan = 8

// Config holds the converter configuration.
type Config struct {
	// OutputDir is where run tables and summaries are written
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// TableName is the table name inside each run file
	TableName string `json:"table_name" yaml:"table_name"`

	// Channels binds output columns to bank tags
	Channels []types.Channel `json:"channels" yaml:"channels"`

	// NChan is the requested digitizer channel count; recorded, not applied
	NChan int `json:"nchan" yaml:"nchan"`

	// Compression is the array column encoding: snappy or none
	Compression string `json:"compression" yaml:"compression"`

	// FlushRows is the number of rows committed per transaction
	FlushRows int `json:"flush_rows" yaml:"flush_rows"`

	// Summary enables the per-run JSON sidecar
	Summary bool `json:"summary" yaml:"summary"`

	// Log configures logging
	Log logger.Config `json:"log" yaml:"log"`

	// Archive configures upload of finalized runs
	Archive ArchiveConfig `json:"archive" yaml:"archive"`
}

// ArchiveConfig holds run archive configuration.
type ArchiveConfig struct {
	// Type is the archive type: none, local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local archive root (for local type)
	Path string `json:"path" yaml:"path"`

	// Prefix is prepended to every object key
	Prefix string `json:"prefix" yaml:"prefix"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 archive configuration.
type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket"`
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		OutputDir:   ".",
		TableName:   table.DefaultTableName,
		Channels:    types.DefaultChannels(),
		NChan:       DefaultNChan,
		Compression: string(table.CompressionSnappy),
		FlushRows:   table.DefaultFlushRows,
		Summary:     true,
		Log:         logger.NewConfig(),
		Archive:     ArchiveConfig{Type: ArchiveNone},
	}
}

// Resolve fills derived defaults.
func (c *Config) Resolve() {
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.TableName == "" {
		c.TableName = table.DefaultTableName
	}
	if len(c.Channels) == 0 {
		c.Channels = types.DefaultChannels()
	}
	for i := range c.Channels {
		if c.Channels[i].MaxCapacity == 0 {
			c.Channels[i].MaxCapacity = types.DefaultMaxCapacity
		}
	}
	if c.Archive.Type == "" {
		c.Archive.Type = ArchiveNone
	}
	if c.Archive.Type == ArchiveLocal && c.Archive.Path == "" {
		c.Archive.Path = filepath.Join(c.OutputDir, "archive")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.NChan < 0 {
		return converrors.NewConfigError(fmt.Sprintf("nchan must be >= 0, got %d", c.NChan))
	}
	if _, err := table.ParseCompression(c.Compression); err != nil {
		return converrors.NewConfigError(err.Error())
	}
	if c.FlushRows <= 0 {
		return converrors.NewConfigError(fmt.Sprintf("flush_rows must be positive, got %d", c.FlushRows))
	}
	if _, err := table.NewSchema(c.TableName, c.Channels); err != nil {
		return converrors.NewConfigError(err.Error())
	}
	switch c.Archive.Type {
	case ArchiveNone, ArchiveLocal:
	case ArchiveS3:
		if c.Archive.S3.Bucket == "" {
			return converrors.NewConfigError("archive.s3.bucket is required when archive type is s3")
		}
	default:
		return converrors.NewConfigError(fmt.Sprintf("invalid archive type: %s (must be none, local, or s3)", c.Archive.Type))
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv applies FIFOTABLE_-prefixed environment variables.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("FIFOTABLE_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("FIFOTABLE_TABLE_NAME"); v != "" {
		cfg.TableName = v
	}
	if v := os.Getenv("FIFOTABLE_COMPRESSION"); v != "" {
		cfg.Compression = v
	}
	if v := os.Getenv("FIFOTABLE_FLUSH_ROWS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.FlushRows)
	}
	if v := os.Getenv("FIFOTABLE_SUMMARY"); v != "" {
		cfg.Summary = v == "true" || v == "1"
	}

	// Logging
	if v := os.Getenv("FIFOTABLE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("FIFOTABLE_LOG_LEVEL"); v != "" {
		if lvl, err := zapcore.ParseLevel(v); err == nil {
			cfg.Log.Level = lvl
		}
	}

	// Archive
	if v := os.Getenv("FIFOTABLE_ARCHIVE_TYPE"); v != "" {
		cfg.Archive.Type = v
	}
	if v := os.Getenv("FIFOTABLE_ARCHIVE_PATH"); v != "" {
		cfg.Archive.Path = v
	}
	if v := os.Getenv("FIFOTABLE_ARCHIVE_PREFIX"); v != "" {
		cfg.Archive.Prefix = v
	}
	if v := os.Getenv("FIFOTABLE_S3_BUCKET"); v != "" {
		cfg.Archive.S3.Bucket = v
	}
	if v := os.Getenv("FIFOTABLE_S3_REGION"); v != "" {
		cfg.Archive.S3.Region = v
	}
	if v := os.Getenv("FIFOTABLE_S3_ENDPOINT"); v != "" {
		cfg.Archive.S3.Endpoint = v
	}
}
