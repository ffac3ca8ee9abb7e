package results

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/mandyreed223/rekognition-image-labeling-pipeline/pkg/detection"
)

const (
	TableCreationInterval   = 1 * time.Second
	TableCreationRetryCount = 10
)

type DynamoDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

type DynamoDbResults struct {
	DynamoDb  DynamoDBClient
	TableName string
}

// ResultRecord is one row in the results table, keyed by the uploaded object's
// key. Confidence values stay float64 here; marshaling turns them into
// DynamoDB's exact-decimal number attributes on write.
type ResultRecord struct {
	Filename  string            `json:"filename" dynamodbav:"filename"`
	Labels    []detection.Label `json:"labels" dynamodbav:"labels"`
	Timestamp string            `json:"timestamp" dynamodbav:"timestamp"`
	Branch    string            `json:"branch" dynamodbav:"branch"`
}

func isResourceNotFoundException(err error) bool {
	var apiError smithy.APIError
	if errors.As(err, &apiError) {
		switch apiError.(type) {
		case *types.ResourceNotFoundException:
			return true
		}
	}
	return false
}

// PutResult upserts the record under its filename. A record written for the
// same filename fully replaces the previous one.
func (ddr *DynamoDbResults) PutResult(ctx context.Context, record ResultRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("unable to marshal result for %v: %v", record.Filename, err)
	}

	_, err = ddr.DynamoDb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(ddr.TableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("unable to write result for %v: %v", record.Filename, err)
	}

	slog.Debug("Result stored",
		"tableName", ddr.TableName,
		"filename", record.Filename,
		"labels", len(record.Labels))
	return nil
}

func (ddr *DynamoDbResults) waitUntilTableActive(ctx context.Context) error {
	input := &dynamodb.DescribeTableInput{
		TableName: aws.String(ddr.TableName),
	}

	cnt := 0
	for {
		status, err := ddr.DynamoDb.DescribeTable(ctx, input)
		if err != nil {
			if !isResourceNotFoundException(err) {
				return err
			}
		} else if status.Table.TableStatus == "ACTIVE" {
			return nil
		}

		cnt++
		if cnt > TableCreationRetryCount {
			msg := "DynamoDB table creation timed out"
			slog.Error(msg, "tableName", ddr.TableName, "retryCount", cnt)
			return errors.New(msg)
		}
		slog.Debug("Waiting for DynamoDB table to become active",
			"tableName", ddr.TableName,
			"retryCount", cnt)
		time.Sleep(TableCreationInterval)
	}
}

// EnsureTable creates the results table when it does not exist yet and waits
// until it is active. An existing table is left untouched.
func (ddr *DynamoDbResults) EnsureTable(ctx context.Context) error {
	_, err := ddr.DynamoDb.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(ddr.TableName),
	})
	if err == nil { // Table exists
		slog.Debug("DynamoDB table already exists", "tableName", ddr.TableName)
		return nil
	}
	if !isResourceNotFoundException(err) {
		return fmt.Errorf("unable to describe results table %v: %v", ddr.TableName, err)
	}

	slog.Info("Creating DynamoDB table", "tableName", ddr.TableName)

	createtbl_input := &dynamodb.CreateTableInput{
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("filename"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("filename"),
				KeyType:       types.KeyTypeHash,
			},
		},
		BillingMode: types.BillingModePayPerRequest,
		TableName:   aws.String(ddr.TableName),
	}
	_, err = ddr.DynamoDb.CreateTable(ctx, createtbl_input)
	if err != nil {
		return fmt.Errorf("unable to create results table %v: %v", ddr.TableName, err)
	}

	err = ddr.waitUntilTableActive(ctx)
	if err != nil {
		slog.Error("Error waiting for DynamoDB table creation", "tableName", ddr.TableName, "error", err)
		return err
	}
	slog.Info("DynamoDB table created successfully", "tableName", ddr.TableName)
	return nil
}
