package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"txkit/internal/archive"
	"txkit/internal/blob"
	"txkit/pkg/domain"
)

var (
	flagArchiveDriver string
	flagArchiveRoot   string
	flagArchivePrefix string
	flagArchiveBucket string
)

func init() {
	pf := archiveCmd.PersistentFlags()
	pf.StringVar(&flagArchiveDriver, "archive-driver", "", "blob backend: fs, memory or s3")
	pf.StringVar(&flagArchiveRoot, "archive-root", "", "root directory for the fs backend")
	pf.StringVar(&flagArchivePrefix, "archive-prefix", "", "key prefix for log segments")
	pf.StringVar(&flagArchiveBucket, "s3-bucket", "", "bucket for the s3 backend")

	archiveCmd.AddCommand(archiveExportCmd, archiveVerifyCmd, archiveRestoreCmd)
	rootCmd.AddCommand(archiveCmd)
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Export the transaction log to a blob store, verify it or restore it",
}

var archiveExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write one segment per transaction not yet archived",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		arch, err := openArchiver(ctx)
		if err != nil {
			return err
		}
		sub, err := openSubmitter(ctx)
		if err != nil {
			return err
		}
		defer closeConnection(sub.Connection())

		report, err := arch.Export(ctx, sub.Db())
		if err != nil {
			return err
		}
		return writeYAML(cmd.OutOrStdout(), map[string]any{
			"written": report.Written,
			"skipped": report.Skipped,
			"last_tx": int64(report.Last),
		})
	},
}

var archiveVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that every transaction in the store has an archived segment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		arch, err := openArchiver(ctx)
		if err != nil {
			return err
		}
		sub, err := openSubmitter(ctx)
		if err != nil {
			return err
		}
		defer closeConnection(sub.Connection())

		report, err := arch.Verify(ctx, sub.Db())
		if err != nil {
			return err
		}
		if err := writeYAML(cmd.OutOrStdout(), map[string]any{
			"checked":    report.Checked,
			"missing":    txList(report.Missing),
			"mismatched": txList(report.Mismatched),
		}); err != nil {
			return err
		}
		if !report.OK() {
			return fmt.Errorf("archive incomplete: %d missing, %d mismatched", len(report.Missing), len(report.Mismatched))
		}
		return nil
	},
}

func txList(ids []domain.EntityID) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		out = append(out, int64(id))
	}
	return out
}

var archiveRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replay archived segments into an empty store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		arch, err := openArchiver(ctx)
		if err != nil {
			return err
		}
		sub, err := openSubmitter(ctx)
		if err != nil {
			return err
		}
		defer closeConnection(sub.Connection())

		mapping, err := arch.Restore(ctx, sub.Connection())
		if err != nil {
			return err
		}
		ids := make(map[int64]int64, len(mapping))
		for archived, id := range mapping {
			ids[int64(archived)] = int64(id)
		}
		return writeYAML(cmd.OutOrStdout(), map[string]any{
			"basis": int64(sub.Db().Basis()),
			"ids":   ids,
		})
	},
}

func openArchiver(ctx context.Context) (*archive.Archiver, error) {
	ac := cfg.Archive
	if flagArchiveDriver != "" {
		ac.Driver = flagArchiveDriver
	}
	if flagArchiveRoot != "" {
		ac.FSRoot = flagArchiveRoot
	}
	if flagArchivePrefix != "" {
		ac.Prefix = flagArchivePrefix
	}
	if flagArchiveBucket != "" {
		ac.S3Bucket = flagArchiveBucket
	}
	store, err := blob.Open(ctx, ac.Blob())
	if err != nil {
		return nil, err
	}
	logger.Debug("archive store opened", "driver", string(store.Driver()), "prefix", ac.Prefix)
	return archive.New(store, archive.WithPrefix(ac.Prefix), archive.WithLogger(logger)), nil
}
