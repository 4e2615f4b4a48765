package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config carries every setting the pipeline reads from the environment.
// A .env file in the working directory is honored when present; real
// environment variables always win.
type Config struct {
	TimeCamp TimeCampConfig
	BigQuery BigQueryConfig
	Postgres PostgresConfig
	S3       S3Config
}

// TimeCampConfig holds the API connection settings.
type TimeCampConfig struct {
	APIKey      string `env:"TIMECAMP_API_KEY"`
	Domain      string `env:"TIMECAMP_DOMAIN" env-default:"app.timecamp.com"`
	RootGroupID int    `env:"TIMECAMP_ROOT_GROUP_ID" env-default:"0"`
}

// BigQueryConfig holds the warehouse destination settings for BigQuery.
// CredentialsFile is optional; application default credentials are used
// when it is empty.
type BigQueryConfig struct {
	CredentialsFile string `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	ProjectID       string `env:"GOOGLE_CLOUD_PROJECT"`
	Dataset         string `env:"BIGQUERY_DATASET"`
	Table           string `env:"BIGQUERY_TABLE"`
}

// PostgresConfig holds the warehouse destination settings for PostgreSQL.
type PostgresConfig struct {
	URL   string `env:"POSTGRES_URL"`
	Table string `env:"POSTGRES_TABLE" env-default:"timecamp_entries"`
}

// S3Config holds the object storage destination settings. EndpointURL and
// UsePathStyle support S3-compatible services such as MinIO.
type S3Config struct {
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	Region          string `env:"AWS_REGION" env-default:"us-east-1"`
	Bucket          string `env:"S3_BUCKET_NAME"`
	Prefix          string `env:"S3_PREFIX" env-default:"timecamp/weekly"`
	EndpointURL     string `env:"S3_ENDPOINT_URL"`
	UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" env-default:"false"`
}

// Load reads configuration from .env in the working directory (when
// present) and from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(".env"); err == nil {
		if err := cleanenv.ReadConfig(".env", cfg); err != nil {
			return nil, fmt.Errorf("reading .env: %w", err)
		}
		return cfg, nil
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings the API client depends on.
func (c TimeCampConfig) Validate() error {
	if c.APIKey == "" {
		return errors.New("TIMECAMP_API_KEY is required")
	}
	return nil
}

// Validate checks the settings the BigQuery loader depends on.
func (c BigQueryConfig) Validate() error {
	if c.ProjectID == "" {
		return errors.New("GOOGLE_CLOUD_PROJECT is required")
	}
	if c.Dataset == "" {
		return errors.New("BIGQUERY_DATASET is required")
	}
	if c.Table == "" {
		return errors.New("BIGQUERY_TABLE is required")
	}
	return nil
}

// Validate checks the settings the PostgreSQL loader depends on.
func (c PostgresConfig) Validate() error {
	if c.URL == "" {
		return errors.New("POSTGRES_URL is required")
	}
	if c.Table == "" {
		return errors.New("POSTGRES_TABLE is required")
	}
	return nil
}

// Validate checks the settings the S3 uploader depends on.
func (c S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3_BUCKET_NAME is required")
	}
	return nil
}
