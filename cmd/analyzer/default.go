package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mandyreed223/rekognition-image-labeling-pipeline/pkg/config"
	"github.com/mandyreed223/rekognition-image-labeling-pipeline/pkg/detection"
	"github.com/mandyreed223/rekognition-image-labeling-pipeline/pkg/imagefiles"
	"github.com/mandyreed223/rekognition-image-labeling-pipeline/pkg/locking"
	"github.com/mandyreed223/rekognition-image-labeling-pipeline/pkg/pipeline"
	"github.com/mandyreed223/rekognition-image-labeling-pipeline/pkg/providers"
	"github.com/mandyreed223/rekognition-image-labeling-pipeline/pkg/results"
	"github.com/mandyreed223/rekognition-image-labeling-pipeline/pkg/storage"
)

type RunOptions struct {
	RunLock     bool `mapstructure:"run-lock"`
	CreateTable bool `mapstructure:"create-table"`
}

var vipDefault *viper.Viper

var defaultCmd = &cobra.Command{
	Use: "default",
	Run: func(cmd *cobra.Command, args []string) {
		var opts RunOptions
		vipDefault.Unmarshal(&opts)

		cfg, err := config.Load()
		if err != nil {
			reportErrorAndExit("", fmt.Sprintf("%v", err), 1)
		}

		fmt.Println("✅ Starting Rekognition image analysis job")
		fmt.Printf("   Region: %v\n", cfg.AWSRegion)
		fmt.Printf("   Bucket: %v\n", cfg.S3Bucket)
		fmt.Printf("   DynamoDB table: %v\n", cfg.DynamoDBTable)
		fmt.Printf("   Branch: %v\n", cfg.BranchName)

		ctx := context.Background()
		awsCfg, err := providers.GetAWSConfig(ctx, cfg.AWSRegion)
		if err != nil {
			reportErrorAndExit(cfg.BranchName, fmt.Sprintf("Failed to load AWS configuration. %v", err), 2)
		}

		if err := providers.VerifyCallerIdentity(ctx, sts.NewFromConfig(awsCfg)); err != nil {
			reportErrorAndExit(cfg.BranchName, fmt.Sprintf("%v", err), 2)
		}

		s3Client := s3.NewFromConfig(awsCfg)
		rekognitionClient := rekognition.NewFromConfig(awsCfg)
		dynamoDbClient := dynamodb.NewFromConfig(awsCfg)

		var branchLock *locking.DynamoDbLock
		if opts.RunLock {
			runId := uuid.NewString()
			branchLock = &locking.DynamoDbLock{DynamoDb: dynamoDbClient}
			acquired, err := branchLock.Lock(ctx, runId, cfg.BranchName)
			if err != nil {
				reportErrorAndExit(cfg.BranchName, fmt.Sprintf("Failed to acquire branch lock. %v", err), 3)
			}
			if !acquired {
				reportErrorAndExit(cfg.BranchName, "Another analysis run holds the branch lock", 3)
			}
		}

		resultStore := &results.DynamoDbResults{
			DynamoDb:  dynamoDbClient,
			TableName: cfg.DynamoDBTable,
		}
		if opts.CreateTable {
			if err := resultStore.EnsureTable(ctx); err != nil {
				reportErrorAndExit(cfg.BranchName, fmt.Sprintf("Failed to prepare results table. %v", err), 4)
			}
		}

		imageStorage, err := storage.NewImageStorageAWS(s3Client, cfg.S3Bucket)
		if err != nil {
			reportErrorAndExit(cfg.BranchName, fmt.Sprintf("%v", err), 1)
		}
		labelDetector, err := detection.NewLabelDetectorAWS(rekognitionClient, cfg.S3Bucket)
		if err != nil {
			reportErrorAndExit(cfg.BranchName, fmt.Sprintf("%v", err), 1)
		}

		images, err := imagefiles.ListImageFiles(config.ImagesDir)
		if err != nil {
			reportErrorAndExit(cfg.BranchName, fmt.Sprintf("Failed to list images. %v", err), 5)
		}

		p := &pipeline.Pipeline{
			Uploader: imageStorage,
			Detector: labelDetector,
			Recorder: resultStore,
			Bucket:   cfg.S3Bucket,
			Branch:   cfg.BranchName,
			Out:      os.Stdout,
		}
		report := p.Run(ctx, images)

		if branchLock != nil {
			branchLock.Unlock(ctx, cfg.BranchName)
		}

		reportErrorAndExit(cfg.BranchName,
			fmt.Sprintf("Analysis run finished. %v succeeded, %v failed", report.Succeeded, report.Failed), 0)
	},
}

func init() {
	flags := []pflag.Flag{
		{Name: "run-lock", Usage: "Hold the per-branch DynamoDB lock for the duration of the run"},
		{Name: "create-table", Usage: "Create the DynamoDB results table when it does not exist"},
	}

	vipDefault = viper.New()
	vipDefault.SetEnvPrefix("ANALYZER")
	vipDefault.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	vipDefault.AutomaticEnv()

	for _, flag := range flags {
		defaultCmd.Flags().Bool(flag.Name, false, flag.Usage)
		vipDefault.BindPFlag(flag.Name, defaultCmd.Flags().Lookup(flag.Name))
	}

	rootCmd.AddCommand(defaultCmd)
}
