package envprovider

import (
	"context"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
)

// t.Setenv registers the restore, the explicit unset makes the variable
// genuinely absent for the test body.
func clearCredentialEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"ANALYZER_AWS_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID", "AWS_ACCESS_KEY",
		"ANALYZER_AWS_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY", "AWS_SECRET_KEY",
		"AWS_SESSION_TOKEN",
	}
	for _, v := range vars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}

func TestRetrieve(t *testing.T) {
	tests := map[string]struct {
		key    string
		secret string
	}{
		"analyzer prefix": {key: "ANALYZER_AWS_ACCESS_KEY_ID", secret: "ANALYZER_AWS_SECRET_ACCESS_KEY"},
		"no prefix":       {key: "AWS_ACCESS_KEY_ID", secret: "AWS_SECRET_ACCESS_KEY"},
		"other":           {key: "AWS_ACCESS_KEY", secret: "AWS_SECRET_KEY"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			clearCredentialEnv(t)
			t.Setenv(tc.key, "key")
			t.Setenv(tc.secret, "secret")
			e := EnvProvider{}
			act, err := e.Retrieve(context.TODO())
			assert.NoError(t, err)
			exp := aws.Credentials{AccessKeyID: "key", SecretAccessKey: "secret", SessionToken: ""}
			assert.Equal(t, exp, act)
		})
	}
}

func TestRetrievePrefersAnalyzerPrefix(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("ANALYZER_AWS_ACCESS_KEY_ID", "analyzer-key")
	t.Setenv("AWS_ACCESS_KEY_ID", "plain-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")

	e := EnvProvider{}
	act, err := e.Retrieve(context.TODO())
	assert.NoError(t, err)
	assert.Equal(t, "analyzer-key", act.AccessKeyID)
}

func TestRetrieveSessionToken(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("AWS_ACCESS_KEY_ID", "key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	t.Setenv("AWS_SESSION_TOKEN", "token")

	e := EnvProvider{}
	act, err := e.Retrieve(context.TODO())
	assert.NoError(t, err)
	assert.Equal(t, "token", act.SessionToken)
}

func TestRetrieveMissingAccessKey(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")

	e := EnvProvider{}
	_, err := e.Retrieve(context.TODO())
	assert.ErrorIs(t, err, ErrAccessKeyIDNotFound)
	assert.True(t, e.IsExpired())
}

func TestRetrieveMissingSecret(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("AWS_ACCESS_KEY_ID", "key")

	e := EnvProvider{}
	_, err := e.Retrieve(context.TODO())
	assert.ErrorIs(t, err, ErrSecretAccessKeyNotFound)
}
