package cmd

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tcsync/tcetl/internal/config"
	"github.com/tcsync/tcetl/internal/jsonl"
	"github.com/tcsync/tcetl/internal/timecamp"
	"github.com/tcsync/tcetl/internal/warehouse"
)

var loadInput string

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load fetched time entries into a warehouse",
}

var loadBigQueryCmd = &cobra.Command{
	Use:   "bigquery",
	Short: "Merge time entries into a BigQuery table",
	Args:  cobra.NoArgs,
	RunE:  runLoadBigQuery,
}

var loadPostgresCmd = &cobra.Command{
	Use:   "postgres",
	Short: "Merge time entries into a Postgres table",
	Args:  cobra.NoArgs,
	RunE:  runLoadPostgres,
}

func init() {
	loadCmd.PersistentFlags().StringVar(&loadInput, "input", "timecamp_data.jsonl", "Input record file (jsonl or json)")

	loadCmd.AddCommand(loadBigQueryCmd)
	loadCmd.AddCommand(loadPostgresCmd)
}

// readEntries loads the staged record file. When the default .jsonl
// file is absent the sibling .json file is tried, matching the two
// formats the fetch stage writes.
func readEntries(path string, log *zap.Logger) ([]timecamp.TimeEntry, error) {
	entries, err := jsonl.Read[timecamp.TimeEntry](path)
	if err != nil && errors.Is(err, os.ErrNotExist) && strings.HasSuffix(path, ".jsonl") {
		alt := strings.TrimSuffix(path, ".jsonl") + ".json"
		log.Info("input not found, trying sibling file",
			zap.String("input", path), zap.String("fallback", alt))
		entries, err = jsonl.Read[timecamp.TimeEntry](alt)
	}
	if err != nil {
		return nil, err
	}
	log.Info("read staged entries", zap.Int("entries", len(entries)), zap.String("input", path))
	return entries, nil
}

func runLoadBigQuery(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.BigQuery.Validate(); err != nil {
		return err
	}

	entries, err := readEntries(loadInput, log)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		log.Warn("no entries to load")
		return nil
	}

	ctx := context.Background()
	loader, err := warehouse.NewBigQueryLoader(ctx, cfg.BigQuery, log)
	if err != nil {
		return err
	}
	defer loader.Close()

	return loader.Load(ctx, entries)
}

func runLoadPostgres(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Postgres.Validate(); err != nil {
		return err
	}

	entries, err := readEntries(loadInput, log)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		log.Warn("no entries to load")
		return nil
	}

	ctx := context.Background()
	loader, err := warehouse.NewPostgresLoader(ctx, cfg.Postgres, log)
	if err != nil {
		return err
	}
	defer loader.Close()

	return loader.Load(ctx, entries)
}
