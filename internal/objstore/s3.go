package objstore

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/tcsync/tcetl/internal/config"
	"github.com/tcsync/tcetl/internal/jsonl"
)

// Uploader writes weekly gzip JSONL objects to an S3 bucket. AES256
// server-side encryption is requested only when talking to AWS itself;
// custom endpoints like MinIO get plain puts.
type Uploader struct {
	client *s3.Client
	bucket string
	prefix string
	sse    bool
	log    *zap.Logger
}

// NewUploader builds an S3 client from the configuration. Static
// credentials take precedence when both key halves are set; otherwise
// the default AWS credential chain applies.
func NewUploader(ctx context.Context, cfg config.S3Config, log *zap.Logger) (*Uploader, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &Uploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		sse:    cfg.EndpointURL == "",
		log:    log.Named("s3"),
	}, nil
}

// ObjectKey names the weekly object for a week bucket under prefix.
func ObjectKey(prefix, week string) string {
	name := fmt.Sprintf("timecamp_data_%s.jsonl.gz", week)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// UploadWeekly filters records to [from, to], buckets them by ISO week
// and uploads one gzip JSONL object per week. It returns the number of
// records uploaded; the first failed put aborts the remaining weeks.
func (u *Uploader) UploadWeekly(ctx context.Context, records []map[string]any, dateColumn string, from, to time.Time) (int, error) {
	kept := FilterByDateRange(records, dateColumn, from, to, u.log)
	groups, weeks := GroupByWeek(kept, dateColumn)

	uploaded := 0
	for _, week := range weeks {
		recs := groups[week]
		body, err := gzipJSONL(recs)
		if err != nil {
			return uploaded, fmt.Errorf("encode week %s: %w", week, err)
		}
		key := ObjectKey(u.prefix, week)
		input := &s3.PutObjectInput{
			Bucket:      aws.String(u.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String("application/gzip"),
		}
		if u.sse {
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		}
		if _, err := u.client.PutObject(ctx, input); err != nil {
			return uploaded, fmt.Errorf("upload %s: %w", key, err)
		}
		u.log.Info("uploaded weekly object",
			zap.String("key", key),
			zap.Int("records", len(recs)),
			zap.Int("bytes", len(body)))
		uploaded += len(recs)
	}

	u.log.Info("upload complete",
		zap.Int("weeks", len(weeks)), zap.Int("records", uploaded))
	return uploaded, nil
}

// gzipJSONL renders records as gzip-compressed JSONL bytes.
func gzipJSONL(records []map[string]any) ([]byte, error) {
	data, err := jsonl.EncodeLines(records)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		return nil, fmt.Errorf("compress records: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("compress records: %w", err)
	}
	return buf.Bytes(), nil
}
