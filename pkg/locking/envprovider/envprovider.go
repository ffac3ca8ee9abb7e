package envprovider

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// EnvProviderName provides a name of Env provider
const EnvProviderName = "AnalyzerEnvProvider"

var (
	// ErrAccessKeyIDNotFound is returned when the AWS Access Key ID can't be
	// found in the process's environment.
	ErrAccessKeyIDNotFound = errors.New("EnvAccessKeyNotFound: ANALYZER_AWS_ACCESS_KEY_ID or AWS_ACCESS_KEY_ID or AWS_ACCESS_KEY not found in environment")

	// ErrSecretAccessKeyNotFound is returned when the AWS Secret Access Key
	// can't be found in the process's environment.
	ErrSecretAccessKeyNotFound = errors.New("EnvSecretNotFound: ANALYZER_AWS_SECRET_ACCESS_KEY or AWS_SECRET_ACCESS_KEY or AWS_SECRET_KEY not found in environment")
)

// A EnvProvider retrieves credentials from the environment variables of the
// running process. Environment credentials never expire.
//
// Environment variables used:
//
// * Access Key ID:     ANALYZER_AWS_ACCESS_KEY_ID, AWS_ACCESS_KEY_ID or AWS_ACCESS_KEY
//
// * Secret Access Key: ANALYZER_AWS_SECRET_ACCESS_KEY, AWS_SECRET_ACCESS_KEY or AWS_SECRET_KEY
type EnvProvider struct {
	retrieved bool
}

// Retrieve retrieves the keys from the environment.
func (e *EnvProvider) Retrieve(ctx context.Context) (aws.Credentials, error) {
	slog.Debug("Retrieving AWS credentials from environment")

	e.retrieved = false
	idEnvVars := []string{"ANALYZER_AWS_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID", "AWS_ACCESS_KEY"}
	id, err := assignEnv(idEnvVars)
	if err != nil {
		slog.Error("AWS access key ID not found in environment",
			"searchedVars", idEnvVars)
		return aws.Credentials{}, ErrAccessKeyIDNotFound
	}

	secretEnvVars := []string{"ANALYZER_AWS_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY", "AWS_SECRET_KEY"}
	secret, err := assignEnv(secretEnvVars)
	if err != nil {
		slog.Error("AWS secret access key not found in environment",
			"searchedVars", secretEnvVars)
		return aws.Credentials{}, ErrSecretAccessKeyNotFound
	}

	sessionToken := os.Getenv("AWS_SESSION_TOKEN")
	e.retrieved = true

	slog.Debug("AWS credentials successfully retrieved from environment")

	return aws.Credentials{
		AccessKeyID:     id,
		SecretAccessKey: secret,
		SessionToken:    sessionToken,
	}, nil
}

// Assign first non-nil env var
func assignEnv(envVars []string) (string, error) {
	var v string
	for _, envVar := range envVars {
		if value, ok := os.LookupEnv(envVar); ok {
			v = value
			return v, nil
		}
	}
	return "", errors.New("not found")
}

// IsExpired returns if the credentials have been retrieved.
func (e *EnvProvider) IsExpired() bool {
	return !e.retrieved
}
