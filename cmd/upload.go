package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tcsync/tcetl/internal/config"
	"github.com/tcsync/tcetl/internal/jsonl"
	"github.com/tcsync/tcetl/internal/objstore"
)

var (
	uploadInput      string
	uploadFrom       string
	uploadTo         string
	uploadDateColumn string
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload fetched records to object storage",
}

var uploadS3Cmd = &cobra.Command{
	Use:   "s3",
	Short: "Upload weekly gzip JSONL objects to an S3 bucket",
	Args:  cobra.NoArgs,
	RunE:  runUploadS3,
}

func init() {
	uploadS3Cmd.Flags().StringVar(&uploadInput, "input", "timecamp_data.jsonl", "Input record file")
	uploadS3Cmd.Flags().StringVar(&uploadFrom, "from", "", "Start date (YYYY-MM-DD or 'yesterday')")
	uploadS3Cmd.Flags().StringVar(&uploadTo, "to", "", "End date (YYYY-MM-DD or 'yesterday')")
	uploadS3Cmd.Flags().StringVar(&uploadDateColumn, "date-column", "date", "Record field holding the date")
	_ = uploadS3Cmd.MarkFlagRequired("from")
	_ = uploadS3Cmd.MarkFlagRequired("to")

	uploadCmd.AddCommand(uploadS3Cmd)
}

func runUploadS3(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.S3.Validate(); err != nil {
		return err
	}

	now := time.Now()
	from, to, err := parseRange(uploadFrom, uploadTo, now)
	if err != nil {
		return err
	}

	records, err := jsonl.Read[map[string]any](uploadInput)
	if err != nil {
		return err
	}
	log.Info("read records", zap.Int("records", len(records)), zap.String("input", uploadInput))

	ctx := context.Background()
	uploader, err := objstore.NewUploader(ctx, cfg.S3, log)
	if err != nil {
		return err
	}

	uploaded, err := uploader.UploadWeekly(ctx, records, uploadDateColumn, from, to)
	if err != nil {
		return err
	}
	log.Info("upload s3 complete", zap.Int("records", uploaded))
	return nil
}
