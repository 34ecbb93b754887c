// Package config loads txkit settings from defaults, an optional YAML file,
// TXKIT_* environment variables and command-line overrides.
package config

import (
	"time"

	"txkit/internal/blob"
	"txkit/pkg/domain"
)

// Config is the effective txkit configuration.
type Config struct {
	Storage Storage `mapstructure:"storage"`
	Archive Archive `mapstructure:"archive"`
	Browser Browser `mapstructure:"browser"`
	Log     Log     `mapstructure:"log"`
}

// Storage selects the fact store backend.
type Storage struct {
	Driver      string             `mapstructure:"driver"`
	SQLitePath  string             `mapstructure:"sqlite_path"`
	PostgresDSN string             `mapstructure:"postgres_dsn"`
	BadgerDir   string             `mapstructure:"badger_dir"`
	Schema      []domain.Attribute `mapstructure:"schema"`
}

// Archive selects where exported log segments are written.
type Archive struct {
	Driver      string `mapstructure:"driver"`
	FSRoot      string `mapstructure:"fs_root"`
	Prefix      string `mapstructure:"prefix"`
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Region    string `mapstructure:"s3_region"`
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3PathStyle bool   `mapstructure:"s3_path_style"`
}

// Blob converts the archive section into a blob backend configuration.
func (a Archive) Blob() blob.Config {
	return blob.Config{
		Driver: blob.Driver(a.Driver),
		FSRoot: a.FSRoot,
		S3: blob.S3Config{
			Bucket:    a.S3Bucket,
			Region:    a.S3Region,
			Endpoint:  a.S3Endpoint,
			PathStyle: a.S3PathStyle,
		},
	}
}

// Browser configures the session fixture.
type Browser struct {
	Kinds    []string      `mapstructure:"kinds"`
	Headless bool          `mapstructure:"headless"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Log configures the process logger.
type Log struct {
	Level string `mapstructure:"level"`
}
