package cmd

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "tcetl",
	Short: "TimeCamp ETL – fetch, enrich and load time tracking data",
	Long: `tcetl pulls time entries and computer activities from the TimeCamp
API, enriches them with user, group and application metadata, and loads
the result into BigQuery, Postgres or S3.

Configuration comes from environment variables, optionally read from a
.env file in the working directory.`,
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(runCmd)
}

// newLogger builds the run logger. Every run carries a run_id field so
// the stage logs of one invocation can be correlated.
func newLogger() (*zap.Logger, error) {
	var log *zap.Logger
	var err error
	if debug {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log.With(zap.String("run_id", uuid.NewString())), nil
}
