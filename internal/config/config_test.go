package config_test

import (
	"testing"

	"github.com/tcsync/tcetl/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TIMECAMP_API_KEY", "secret")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TimeCamp.APIKey != "secret" {
		t.Errorf("APIKey = %q, want %q", cfg.TimeCamp.APIKey, "secret")
	}
	if cfg.TimeCamp.Domain != "app.timecamp.com" {
		t.Errorf("Domain = %q, want default app.timecamp.com", cfg.TimeCamp.Domain)
	}
	if cfg.S3.Region != "us-east-1" {
		t.Errorf("Region = %q, want default us-east-1", cfg.S3.Region)
	}
	if cfg.S3.Prefix != "timecamp/weekly" {
		t.Errorf("Prefix = %q, want default timecamp/weekly", cfg.S3.Prefix)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TIMECAMP_DOMAIN", "corp.timecamp.com")
	t.Setenv("S3_USE_PATH_STYLE", "true")
	t.Setenv("POSTGRES_TABLE", "entries")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TimeCamp.Domain != "corp.timecamp.com" {
		t.Errorf("Domain = %q, want corp.timecamp.com", cfg.TimeCamp.Domain)
	}
	if !cfg.S3.UsePathStyle {
		t.Error("UsePathStyle = false, want true")
	}
	if cfg.Postgres.Table != "entries" {
		t.Errorf("Postgres.Table = %q, want entries", cfg.Postgres.Table)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"timecamp missing key", config.TimeCampConfig{}.Validate(), true},
		{"timecamp ok", config.TimeCampConfig{APIKey: "k"}.Validate(), false},
		{"bigquery missing project", config.BigQueryConfig{Dataset: "d", Table: "t"}.Validate(), true},
		{"bigquery missing dataset", config.BigQueryConfig{ProjectID: "p", Table: "t"}.Validate(), true},
		{"bigquery missing table", config.BigQueryConfig{ProjectID: "p", Dataset: "d"}.Validate(), true},
		{"bigquery ok", config.BigQueryConfig{ProjectID: "p", Dataset: "d", Table: "t"}.Validate(), false},
		{"postgres missing url", config.PostgresConfig{Table: "t"}.Validate(), true},
		{"postgres ok", config.PostgresConfig{URL: "postgres://", Table: "t"}.Validate(), false},
		{"s3 missing bucket", config.S3Config{}.Validate(), true},
		{"s3 ok", config.S3Config{Bucket: "b"}.Validate(), false},
	}
	for _, tt := range tests {
		if gotErr := tt.err != nil; gotErr != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.name, tt.err, tt.wantErr)
		}
	}
}
