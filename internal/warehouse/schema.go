package warehouse

import (
	"fmt"
	"time"
)

// FieldType is a destination-neutral column type, mapped to the
// warehouse-native type by each loader.
type FieldType string

const (
	TypeInteger FieldType = "INTEGER"
	TypeFloat   FieldType = "FLOAT"
	TypeString  FieldType = "STRING"
	TypeBoolean FieldType = "BOOLEAN"
	TypeDate    FieldType = "DATE"
	TypeJSON    FieldType = "JSON"
)

// Column is one column of the destination table.
type Column struct {
	Name string
	Type FieldType
}

// EntryColumns is the fixed destination schema for time entries: the
// wire fields of the entries endpoint plus the enrichment fields.
// Column names follow the API spelling, including the camel-cased ones.
var EntryColumns = []Column{
	{"id", TypeInteger},
	{"duration", TypeString},
	{"user_id", TypeString},
	{"user_name", TypeString},
	{"task_id", TypeString},
	{"task_note", TypeString},
	{"last_modify", TypeString},
	{"date", TypeDate},
	{"start_time", TypeString},
	{"end_time", TypeString},
	{"locked", TypeString},
	{"name", TypeString},
	{"addons_external_id", TypeString},
	{"billable", TypeInteger},
	{"invoiceId", TypeString},
	{"color", TypeString},
	{"description", TypeString},
	{"hasEntryLocationHistory", TypeBoolean},
	{"project_id", TypeInteger},
	{"project_name", TypeString},
	{"total_cost", TypeFloat},
	{"total_income", TypeFloat},
	{"rate_income", TypeFloat},
	{"tags", TypeJSON},
	{"breadcrumps", TypeString},
	{"email", TypeString},
	{"group_name", TypeString},
	{"group_breadcrumb_level_1", TypeString},
	{"group_breadcrumb_level_2", TypeString},
	{"group_breadcrumb_level_3", TypeString},
	{"group_breadcrumb_level_4", TypeString},
}

// ColumnNames returns the names of cols in order.
func ColumnNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// TempTableName derives a staging table name from the destination name
// and a timestamp, so a rerun cannot collide with a stale staging
// table.
func TempTableName(table string, now time.Time) string {
	return fmt.Sprintf("temp_%s_%d", table, now.Unix())
}
