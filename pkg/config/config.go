package config

import (
	"log/slog"

	"github.com/caarlos0/env/v11"
)

const (
	// ImagesDir is the repo-relative folder scanned for images on every run.
	ImagesDir = "images"
	// S3Prefix keys every uploaded object inside the bucket.
	S3Prefix = "rekognition-input"
)

// Config holds the pipeline settings read from the CI environment.
type Config struct {
	AWSRegion     string `env:"AWS_REGION,required,notEmpty"`
	S3Bucket      string `env:"S3_BUCKET,required,notEmpty"`
	DynamoDBTable string `env:"DYNAMODB_TABLE,required,notEmpty"`

	// BRANCH_NAME is set by the CI workflow; local runs fall back to "unknown".
	BranchName string `env:"BRANCH_NAME" envDefault:"unknown"`
}

// Load parses the environment into a Config. The returned error names every
// required variable that is unset or empty.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}

	slog.Debug("Pipeline configuration loaded",
		"region", cfg.AWSRegion,
		"bucket", cfg.S3Bucket,
		"table", cfg.DynamoDBTable,
		"branch", cfg.BranchName)

	return &cfg, nil
}
