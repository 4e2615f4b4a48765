package cmd

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tcsync/tcetl/internal/jsonl"
	"github.com/tcsync/tcetl/internal/warehouse"
)

var convertOutput string

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert fetched record files between formats",
}

var convertCSVCmd = &cobra.Command{
	Use:   "csv <input>",
	Short: "Flatten a JSONL record file into CSV",
	Args:  cobra.ExactArgs(1),
	RunE:  runConvertCSV,
}

func init() {
	convertCSVCmd.Flags().StringVar(&convertOutput, "output", "", "Output path (default: input with a .csv extension)")

	convertCmd.AddCommand(convertCSVCmd)
}

func runConvertCSV(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	input := args[0]
	output := convertOutput
	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + ".csv"
	}
	// Pipeline columns keep their table order in the header; anything
	// else sorts alphabetically after them.
	return jsonl.ConvertCSV(input, output, warehouse.ColumnNames(warehouse.EntryColumns), log)
}
