package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfigFile is read from the working directory when no path is given.
const DefaultConfigFile = "txkit.yaml"

// LoadOptions controls configuration loading.
type LoadOptions struct {
	// ConfigPath overrides DefaultConfigFile. A missing default file is not an
	// error; a missing explicit path is.
	ConfigPath string
	// FlagOverrides are highest-priority overrides from CLI flags (dot-notated keys).
	FlagOverrides map[string]any
}

// Load returns the effective configuration after applying precedence:
// defaults < config file < env (TXKIT_*) < flags.
func Load(opts LoadOptions) (Config, error) {
	v := viper.New()
	setDefaults(v)

	path, required := opts.ConfigPath, true
	if path == "" {
		path, required = DefaultConfigFile, false
	}
	if err := mergeConfigFile(v, path, required); err != nil {
		return Config{}, err
	}
	if err := applyEnvOverrides(v); err != nil {
		return Config{}, err
	}
	for k, val := range opts.FlagOverrides {
		v.Set(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()

	v.SetDefault("storage.driver", def.Storage.Driver)
	v.SetDefault("storage.sqlite_path", def.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", def.Storage.PostgresDSN)
	v.SetDefault("storage.badger_dir", def.Storage.BadgerDir)

	v.SetDefault("archive.driver", def.Archive.Driver)
	v.SetDefault("archive.fs_root", def.Archive.FSRoot)
	v.SetDefault("archive.prefix", def.Archive.Prefix)
	v.SetDefault("archive.s3_bucket", def.Archive.S3Bucket)
	v.SetDefault("archive.s3_region", def.Archive.S3Region)
	v.SetDefault("archive.s3_endpoint", def.Archive.S3Endpoint)
	v.SetDefault("archive.s3_path_style", def.Archive.S3PathStyle)

	v.SetDefault("browser.kinds", def.Browser.Kinds)
	v.SetDefault("browser.headless", def.Browser.Headless)
	v.SetDefault("browser.timeout", def.Browser.Timeout)

	v.SetDefault("log.level", def.Log.Level)
}

func mergeConfigFile(v *viper.Viper, path string, required bool) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("stat config %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("merge config %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(v *viper.Viper) error {
	for _, binding := range envBindings {
		val := os.Getenv(binding.Env)
		if val == "" {
			continue
		}
		parsed, err := parseValueByKind(val, binding.Kind)
		if err != nil {
			return fmt.Errorf("env %s: %w", binding.Env, err)
		}
		v.Set(binding.Key, parsed)
	}
	return nil
}

type valueKind int

const (
	kindString valueKind = iota
	kindBool
	kindDuration
	kindStringSlice
)

var envBindings = []struct {
	Env  string
	Key  string
	Kind valueKind
}{
	{"TXKIT_STORAGE_DRIVER", "storage.driver", kindString},
	{"TXKIT_SQLITE_PATH", "storage.sqlite_path", kindString},
	{"TXKIT_POSTGRES_DSN", "storage.postgres_dsn", kindString},
	{"TXKIT_BADGER_DIR", "storage.badger_dir", kindString},

	{"TXKIT_ARCHIVE_DRIVER", "archive.driver", kindString},
	{"TXKIT_ARCHIVE_FS_ROOT", "archive.fs_root", kindString},
	{"TXKIT_ARCHIVE_PREFIX", "archive.prefix", kindString},
	{"TXKIT_S3_BUCKET", "archive.s3_bucket", kindString},
	{"TXKIT_S3_REGION", "archive.s3_region", kindString},
	{"TXKIT_S3_ENDPOINT", "archive.s3_endpoint", kindString},
	{"TXKIT_S3_PATH_STYLE", "archive.s3_path_style", kindBool},

	{"TXKIT_BROWSER_KINDS", "browser.kinds", kindStringSlice},
	{"TXKIT_BROWSER_HEADLESS", "browser.headless", kindBool},
	{"TXKIT_BROWSER_TIMEOUT", "browser.timeout", kindDuration},

	{"TXKIT_LOG_LEVEL", "log.level", kindString},
}

func parseValueByKind(raw string, kind valueKind) (any, error) {
	switch kind {
	case kindString:
		return raw, nil
	case kindBool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("expected boolean: %w", err)
		}
		return v, nil
	case kindDuration:
		v, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("expected duration: %w", err)
		}
		return v, nil
	case kindStringSlice:
		parts := strings.Split(raw, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported value kind")
	}
}
