package warehouse

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tcsync/tcetl/internal/config"
	"github.com/tcsync/tcetl/internal/dates"
	"github.com/tcsync/tcetl/internal/timecamp"
)

// PostgresLoader merges time entries into a Postgres table through a
// staged temp table, following the same steps as the BigQuery load.
// Requires Postgres 15 or newer for MERGE.
type PostgresLoader struct {
	pool  *pgxpool.Pool
	table string
	log   *zap.Logger
}

// NewPostgresLoader connects to the configured database and verifies
// the connection with a ping.
func NewPostgresLoader(ctx context.Context, cfg config.PostgresConfig, log *zap.Logger) (*PostgresLoader, error) {
	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresLoader{pool: pool, table: cfg.Table, log: log.Named("postgres")}, nil
}

// Close releases the connection pool.
func (l *PostgresLoader) Close() { l.pool.Close() }

// Load ensures the destination schema, stages the batch into a fresh
// temp table with COPY and merges it in. The temp table is always
// dropped.
func (l *PostgresLoader) Load(ctx context.Context, entries []timecamp.TimeEntry) error {
	if err := l.ensureTable(ctx); err != nil {
		return err
	}
	temp := TempTableName(l.table, time.Now())
	defer l.dropTemp(ctx, temp)

	if err := l.stage(ctx, temp, entries); err != nil {
		return err
	}
	if _, err := l.pool.Exec(ctx, postgresMergeSQL(l.table, temp, EntryColumns)); err != nil {
		return fmt.Errorf("merge from %s: %w", temp, err)
	}
	l.log.Info("merged entries into postgres",
		zap.Int("entries", len(entries)),
		zap.String("table", l.table))
	return nil
}

// ensureTable creates the destination table when missing and recreates
// it when the live columns no longer match EntryColumns. Recreating
// discards existing rows; drifted history is not carried over.
func (l *PostgresLoader) ensureTable(ctx context.Context) error {
	rows, err := l.pool.Query(ctx,
		`SELECT column_name, data_type
		 FROM information_schema.columns
		 WHERE table_schema = 'public' AND table_name = $1
		 ORDER BY ordinal_position`, l.table)
	if err != nil {
		return fmt.Errorf("inspect table %s: %w", l.table, err)
	}
	var live []Column
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			rows.Close()
			return fmt.Errorf("inspect table %s: %w", l.table, err)
		}
		live = append(live, Column{Name: name, Type: FieldType(dataType)})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect table %s: %w", l.table, err)
	}

	if len(live) == 0 {
		l.log.Info("creating destination table", zap.String("table", l.table))
		if _, err := l.pool.Exec(ctx, postgresCreateSQL(l.table, EntryColumns)); err != nil {
			return fmt.Errorf("create table %s: %w", l.table, err)
		}
		return nil
	}
	if postgresSchemaMatches(live, EntryColumns) {
		return nil
	}
	l.log.Warn("schema drift detected, recreating table", zap.String("table", l.table))
	if _, err := l.pool.Exec(ctx, "DROP TABLE "+pgx.Identifier{l.table}.Sanitize()); err != nil {
		return fmt.Errorf("drop table %s: %w", l.table, err)
	}
	if _, err := l.pool.Exec(ctx, postgresCreateSQL(l.table, EntryColumns)); err != nil {
		return fmt.Errorf("recreate table %s: %w", l.table, err)
	}
	return nil
}

func (l *PostgresLoader) stage(ctx context.Context, temp string, entries []timecamp.TimeEntry) error {
	if _, err := l.pool.Exec(ctx, postgresCreateSQL(temp, EntryColumns)); err != nil {
		return fmt.Errorf("create temp table %s: %w", temp, err)
	}
	rows := make([][]any, len(entries))
	for i, e := range entries {
		rows[i] = postgresRow(e)
	}
	n, err := l.pool.CopyFrom(ctx, pgx.Identifier{temp}, ColumnNames(EntryColumns), pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy into %s: %w", temp, err)
	}
	l.log.Debug("staged entries", zap.String("temp_table", temp), zap.Int64("rows", n))
	return nil
}

// dropTemp removes the staging table. Cleanup failure is logged, never
// escalated.
func (l *PostgresLoader) dropTemp(ctx context.Context, temp string) {
	if _, err := l.pool.Exec(ctx, "DROP TABLE IF EXISTS "+pgx.Identifier{temp}.Sanitize()); err != nil {
		l.log.Warn("failed to drop temp table",
			zap.String("temp_table", temp), zap.Error(err))
	}
}

// postgresType maps a destination column type to its Postgres type.
func postgresType(t FieldType) string {
	switch t {
	case TypeInteger:
		return "bigint"
	case TypeFloat:
		return "double precision"
	case TypeBoolean:
		return "boolean"
	case TypeDate:
		return "date"
	case TypeJSON:
		return "jsonb"
	default:
		return "text"
	}
}

// postgresSchemaMatches compares information_schema output against the
// expected columns, in order.
func postgresSchemaMatches(live, want []Column) bool {
	if len(live) != len(want) {
		return false
	}
	for i, c := range live {
		if c.Name != want[i].Name || string(c.Type) != postgresType(want[i].Type) {
			return false
		}
	}
	return true
}

func postgresCreateSQL(table string, cols []Column) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = pgx.Identifier{c.Name}.Sanitize() + " " + postgresType(c.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)",
		pgx.Identifier{table}.Sanitize(), strings.Join(defs, ", "))
}

// postgresMergeSQL builds the MERGE reconciling staged rows into the
// destination, full-column overwrite on id match.
func postgresMergeSQL(table, temp string, cols []Column) string {
	sets := make([]string, 0, len(cols)-1)
	names := make([]string, 0, len(cols))
	values := make([]string, 0, len(cols))
	for _, c := range cols {
		name := pgx.Identifier{c.Name}.Sanitize()
		names = append(names, name)
		values = append(values, "S."+name)
		if c.Name == "id" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = S.%s", name, name))
	}
	return fmt.Sprintf(`MERGE INTO %s T
USING %s S
ON T."id" = S."id"
WHEN MATCHED THEN UPDATE SET %s
WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)`,
		pgx.Identifier{table}.Sanitize(),
		pgx.Identifier{temp}.Sanitize(),
		strings.Join(sets, ", "),
		strings.Join(names, ", "),
		strings.Join(values, ", "))
}

// postgresRow lays out one entry in EntryColumns order for COPY.
func postgresRow(e timecamp.TimeEntry) []any {
	return []any{
		e.ID.Int64(),
		e.Duration.String(),
		e.UserID.String(),
		e.UserName,
		e.TaskID.String(),
		e.TaskNote,
		e.LastModify,
		postgresDate(e.Date),
		e.StartTime,
		e.EndTime,
		e.Locked.String(),
		e.Name,
		e.AddonsExternalID.String(),
		e.Billable.Int64(),
		e.InvoiceID.String(),
		e.Color,
		e.Description,
		e.HasLocation.Bool(),
		e.ProjectID.Int64(),
		e.ProjectName,
		e.TotalCost.Float64(),
		e.TotalIncome.Float64(),
		e.RateIncome.Float64(),
		postgresJSON(e.Tags),
		e.Breadcrumps,
		e.Email,
		e.GroupName,
		e.BreadcrumbLevel1,
		e.BreadcrumbLevel2,
		e.BreadcrumbLevel3,
		e.BreadcrumbLevel4,
	}
}

// postgresDate parses the wire date, passing NULL through for blank or
// malformed values.
func postgresDate(s string) any {
	t, err := time.Parse(dates.Layout, s)
	if err != nil {
		return nil
	}
	return t
}

// postgresJSON passes tags through as jsonb, NULL when absent.
func postgresJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
