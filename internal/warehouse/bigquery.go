package warehouse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/tcsync/tcetl/internal/config"
	"github.com/tcsync/tcetl/internal/jsonl"
	"github.com/tcsync/tcetl/internal/timecamp"
)

// BigQueryLoader merges time entries into a BigQuery table through a
// staged temp table.
type BigQueryLoader struct {
	client  *bigquery.Client
	project string
	dataset string
	table   string
	log     *zap.Logger
}

// NewBigQueryLoader connects to BigQuery with the configured project
// and, when set, the credentials file.
func NewBigQueryLoader(ctx context.Context, cfg config.BigQueryConfig, log *zap.Logger) (*BigQueryLoader, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect bigquery: %w", err)
	}
	return &BigQueryLoader{
		client:  client,
		project: cfg.ProjectID,
		dataset: cfg.Dataset,
		table:   cfg.Table,
		log:     log.Named("bigquery"),
	}, nil
}

// Close releases the underlying client.
func (l *BigQueryLoader) Close() error { return l.client.Close() }

// Load ensures the destination schema, stages the batch into a fresh
// temp table and merges it in. The temp table is always dropped, even
// when staging or the merge fails.
func (l *BigQueryLoader) Load(ctx context.Context, entries []timecamp.TimeEntry) error {
	if err := l.ensureTable(ctx); err != nil {
		return err
	}
	temp := TempTableName(l.table, time.Now())
	defer l.dropTemp(ctx, temp)

	if err := l.stage(ctx, temp, entries); err != nil {
		return err
	}
	if err := l.merge(ctx, temp); err != nil {
		return err
	}
	l.log.Info("merged entries into bigquery",
		zap.Int("entries", len(entries)),
		zap.String("table", l.table))
	return nil
}

// ensureTable creates the destination table when missing and recreates
// it when the live schema no longer matches EntryColumns. Recreating
// discards existing rows; drifted history is not carried over.
func (l *BigQueryLoader) ensureTable(ctx context.Context) error {
	tbl := l.client.Dataset(l.dataset).Table(l.table)
	md, err := tbl.Metadata(ctx)
	if isNotFound(err) {
		l.log.Info("creating destination table", zap.String("table", l.table))
		if err := tbl.Create(ctx, &bigquery.TableMetadata{Schema: bigquerySchema(EntryColumns)}); err != nil {
			return fmt.Errorf("create table %s: %w", l.table, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("inspect table %s: %w", l.table, err)
	}
	if schemaMatches(md.Schema, EntryColumns) {
		return nil
	}
	l.log.Warn("schema drift detected, recreating table", zap.String("table", l.table))
	if err := tbl.Delete(ctx); err != nil {
		return fmt.Errorf("drop table %s: %w", l.table, err)
	}
	if err := tbl.Create(ctx, &bigquery.TableMetadata{Schema: bigquerySchema(EntryColumns)}); err != nil {
		return fmt.Errorf("recreate table %s: %w", l.table, err)
	}
	return nil
}

func (l *BigQueryLoader) stage(ctx context.Context, temp string, entries []timecamp.TimeEntry) error {
	data, err := jsonl.EncodeLines(entries)
	if err != nil {
		return fmt.Errorf("encode entries: %w", err)
	}
	src := bigquery.NewReaderSource(bytes.NewReader(data))
	src.SourceFormat = bigquery.JSON
	src.Schema = bigquerySchema(EntryColumns)

	loader := l.client.Dataset(l.dataset).Table(temp).LoaderFrom(src)
	loader.WriteDisposition = bigquery.WriteTruncate
	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("stage into %s: %w", temp, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("stage into %s: %w", temp, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("stage into %s: %w", temp, err)
	}
	l.log.Debug("staged entries",
		zap.String("temp_table", temp), zap.Int("entries", len(entries)))
	return nil
}

func (l *BigQueryLoader) merge(ctx context.Context, temp string) error {
	q := l.client.Query(bigqueryMergeSQL(l.project, l.dataset, l.table, temp, EntryColumns))
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("merge from %s: %w", temp, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("merge from %s: %w", temp, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("merge from %s: %w", temp, err)
	}
	return nil
}

// dropTemp removes the staging table. Cleanup failure is logged, never
// escalated, so a failed merge still surfaces its own error.
func (l *BigQueryLoader) dropTemp(ctx context.Context, temp string) {
	err := l.client.Dataset(l.dataset).Table(temp).Delete(ctx)
	if err != nil && !isNotFound(err) {
		l.log.Warn("failed to drop temp table",
			zap.String("temp_table", temp), zap.Error(err))
	}
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// bigquerySchema maps the destination columns to a BigQuery schema.
func bigquerySchema(cols []Column) bigquery.Schema {
	schema := make(bigquery.Schema, len(cols))
	for i, c := range cols {
		schema[i] = &bigquery.FieldSchema{Name: c.Name, Type: bigqueryType(c.Type)}
	}
	return schema
}

func bigqueryType(t FieldType) bigquery.FieldType {
	switch t {
	case TypeInteger:
		return bigquery.IntegerFieldType
	case TypeFloat:
		return bigquery.FloatFieldType
	case TypeBoolean:
		return bigquery.BooleanFieldType
	case TypeDate:
		return bigquery.DateFieldType
	case TypeJSON:
		return bigquery.JSONFieldType
	default:
		return bigquery.StringFieldType
	}
}

// schemaMatches reports whether the live schema carries exactly the
// expected column names and types, in order.
func schemaMatches(got bigquery.Schema, want []Column) bool {
	if len(got) != len(want) {
		return false
	}
	for i, f := range got {
		if f.Name != want[i].Name || f.Type != bigqueryType(want[i].Type) {
			return false
		}
	}
	return true
}

// bigqueryMergeSQL builds the MERGE reconciling staged rows into the
// destination. A matched id gets every column overwritten with the
// staged value, blanks included; unmatched rows are inserted.
func bigqueryMergeSQL(project, dataset, table, temp string, cols []Column) string {
	dest := fmt.Sprintf("`%s.%s.%s`", project, dataset, table)
	src := fmt.Sprintf("`%s.%s.%s`", project, dataset, temp)

	sets := make([]string, 0, len(cols)-1)
	names := make([]string, 0, len(cols))
	values := make([]string, 0, len(cols))
	for _, c := range cols {
		name := fmt.Sprintf("`%s`", c.Name)
		names = append(names, name)
		values = append(values, "S."+name)
		if c.Name == "id" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = S.%s", name, name))
	}
	return fmt.Sprintf(`MERGE %s T
USING %s S
ON T.id = S.id
WHEN MATCHED THEN UPDATE SET %s
WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)`,
		dest, src,
		strings.Join(sets, ", "),
		strings.Join(names, ", "),
		strings.Join(values, ", "))
}
