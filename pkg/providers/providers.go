package providers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/samber/lo"

	"github.com/mandyreed223/rekognition-image-labeling-pipeline/pkg/locking/envprovider"
)

// GetAWSConfig loads the SDK configuration for the given region. When any of
// the access key environment variables is present, the environment provider is
// installed so explicitly provided keys win over ambient credentials.
func GetAWSConfig(ctx context.Context, region string) (awssdk.Config, error) {
	// https://aws.github.io/aws-sdk-go-v2/docs/configuring-sdk/
	envNamesToCheck := []string{"ANALYZER_AWS_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID", "AWS_ACCESS_KEY"}
	awsCredsProvided := lo.Reduce(envNamesToCheck, func(agg bool, envName string, index int) bool {
		_, exists := os.LookupEnv(envName)
		return agg || exists
	}, false)

	awsProfile := strings.ToLower(os.Getenv("AWS_PROFILE"))

	if awsCredsProvided {
		slog.Debug("Using AWS credentials from environment variables")
		return config.LoadDefaultConfig(ctx,
			config.WithSharedConfigProfile(awsProfile),
			config.WithRegion(region),
			config.WithCredentialsProvider(&envprovider.EnvProvider{}))
	}

	slog.Debug("Using keyless AWS configuration")
	return config.LoadDefaultConfig(ctx, config.WithRegion(region))
}

type STSClient interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// VerifyCallerIdentity confirms the resolved credentials can reach AWS before
// any image is uploaded.
func VerifyCallerIdentity(ctx context.Context, stsClient STSClient) error {
	result, err := stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		slog.Error("Failed to connect to AWS account", "error", err)
		return fmt.Errorf("failed to connect to AWS account. %v", err)
	}
	slog.Info("Successfully connected to AWS account",
		"accountId", *result.Account,
		"userId", *result.UserId)
	return nil
}
