package config

import (
	"fmt"
	"strings"

	"txkit/internal/blob"
	"txkit/internal/browser"
	"txkit/internal/logging"
)

var (
	storageDrivers = []string{DriverMemory, DriverSQLite, DriverPostgres, DriverBadger}
	archiveDrivers = []string{string(blob.DriverFilesystem), string(blob.DriverMemory), string(blob.DriverS3)}
	browserKinds   = []string{string(browser.KindChrome), string(browser.KindChromeHeadless), string(browser.KindMemory)}
)

// Validate checks the configuration for semantic errors.
func Validate(cfg Config) error {
	var errs []string

	if !oneOf(cfg.Storage.Driver, storageDrivers...) {
		errs = append(errs, "storage.driver must be one of "+strings.Join(storageDrivers, "|"))
	}
	for i, attr := range cfg.Storage.Schema {
		if strings.TrimSpace(attr.Ident) == "" {
			errs = append(errs, fmt.Sprintf("storage.schema[%d].ident is required", i))
		}
		if attr.Cardinality != "" && !oneOf(string(attr.Cardinality), "one", "many") {
			errs = append(errs, fmt.Sprintf("storage.schema[%d].cardinality must be one|many", i))
		}
	}

	if !oneOf(cfg.Archive.Driver, archiveDrivers...) {
		errs = append(errs, "archive.driver must be one of "+strings.Join(archiveDrivers, "|"))
	}
	if strings.TrimSpace(cfg.Archive.Prefix) == "" {
		errs = append(errs, "archive.prefix is required")
	}
	if cfg.Archive.Driver == string(blob.DriverS3) && cfg.Archive.S3Bucket == "" {
		errs = append(errs, "archive.s3_bucket is required when archive.driver is s3")
	}

	if len(cfg.Browser.Kinds) == 0 {
		errs = append(errs, "browser.kinds must list at least one kind")
	}
	for _, k := range cfg.Browser.Kinds {
		if !oneOf(k, browserKinds...) {
			errs = append(errs, fmt.Sprintf("browser.kinds: unsupported kind %q", k))
		}
	}
	if cfg.Browser.Timeout < 0 {
		errs = append(errs, "browser.timeout cannot be negative")
	}

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, "log.level must be one of debug|info|warn|error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func oneOf(val string, options ...string) bool {
	for _, opt := range options {
		if val == opt {
			return true
		}
	}
	return false
}
