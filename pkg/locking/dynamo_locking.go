package locking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/aws/smithy-go"
)

const (
	TABLE_NAME              = "ImageAnalyzerLockTable"
	TableCreationInterval   = 1 * time.Second
	TableCreationRetryCount = 10
	TableLockTimeout        = 1 * time.Hour
)

// DynamoDbLock serializes analysis runs per branch so two CI jobs for the
// same branch cannot interleave their table writes.
type DynamoDbLock struct {
	DynamoDb DynamoDBClient
}

type DynamoDBClient interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
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

func (dynamoDbLock *DynamoDbLock) waitUntilTableCreated(ctx context.Context) error {
	input := &dynamodb.DescribeTableInput{
		TableName: aws.String(TABLE_NAME),
	}

	cnt := 0
	for {
		status, err := dynamoDbLock.DynamoDb.DescribeTable(ctx, input)
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
			slog.Error(msg, "tableName", TABLE_NAME, "retryCount", cnt)
			return errors.New(msg)
		}
		slog.Debug("Waiting for DynamoDB lock table to become active",
			"tableName", TABLE_NAME,
			"retryCount", cnt)
		time.Sleep(TableCreationInterval)
	}
}

func (dynamoDbLock *DynamoDbLock) createTableIfNotExists(ctx context.Context) error {
	_, err := dynamoDbLock.DynamoDb.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(TABLE_NAME),
	})
	if err == nil { // Table exists
		return nil
	}
	if !isResourceNotFoundException(err) {
		slog.Info("Error describing DynamoDB lock table, proceeding to create", "tableName", TABLE_NAME, "error", err)
	}

	slog.Info("Creating DynamoDB lock table", "tableName", TABLE_NAME)

	createtbl_input := &dynamodb.CreateTableInput{
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("PK"),
				AttributeType: types.ScalarAttributeTypeS,
			},
			{
				AttributeName: aws.String("SK"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("PK"),
				KeyType:       types.KeyTypeHash,
			},
			{
				AttributeName: aws.String("SK"),
				KeyType:       types.KeyTypeRange,
			},
		},
		BillingMode: types.BillingModePayPerRequest,
		TableName:   aws.String(TABLE_NAME),
	}
	_, err = dynamoDbLock.DynamoDb.CreateTable(ctx, createtbl_input)
	if err != nil {
		return err
	}

	err = dynamoDbLock.waitUntilTableCreated(ctx)
	if err != nil {
		slog.Error("Error waiting for DynamoDB lock table creation", "tableName", TABLE_NAME, "error", err)
		return err
	}
	slog.Info("DynamoDB lock table created successfully", "tableName", TABLE_NAME)
	return nil
}

// Lock acquires the branch lock for the given run. It succeeds when no lock
// row exists for the branch or the previous holder's timeout has passed.
// Returns false without error when another run still holds the lock.
func (dynamoDbLock *DynamoDbLock) Lock(ctx context.Context, runId string, branch string) (bool, error) {
	slog.Debug("Attempting to acquire lock",
		"branch", branch,
		"runId", runId)

	err := dynamoDbLock.createTableIfNotExists(ctx)
	if err != nil {
		slog.Error("Error creating DynamoDB lock table", "error", err)
		return false, err
	}

	now := time.Now().Format(time.RFC3339)
	newTimeout := time.Now().Add(TableLockTimeout).Format(time.RFC3339)

	expr, err := expression.NewBuilder().
		WithCondition(
			expression.Or(
				expression.AttributeNotExists(expression.Name("SK")),
				expression.LessThan(expression.Name("timeout"), expression.Value(now)),
			),
		).
		WithUpdate(
			expression.Set(
				expression.Name("run_id"), expression.Value(runId),
			).Set(expression.Name("timeout"), expression.Value(newTimeout)),
		).
		Build()
	if err != nil {
		slog.Error("Failed to build DynamoDB expression", "error", err)
		return false, err
	}

	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(TABLE_NAME),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: "LOCK"},
			"SK": &types.AttributeValueMemberS{Value: "BRANCH#" + branch},
		},
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		UpdateExpression:          expr.Update(),
	}

	_, err = dynamoDbLock.DynamoDb.UpdateItem(ctx, input)
	if err != nil {
		var apiError smithy.APIError
		if errors.As(err, &apiError) {
			switch apiError.(type) {
			case *types.ConditionalCheckFailedException:
				slog.Debug("Lock already held and not expired", "branch", branch)
				return false, nil
			}
		}
		slog.Error("Error updating DynamoDB item for lock",
			"branch", branch,
			"error", err)
		return false, err
	}

	slog.Info("Lock acquired successfully",
		"branch", branch,
		"runId", runId,
		"timeout", newTimeout)
	return true, nil
}

func (dynamoDbLock *DynamoDbLock) Unlock(ctx context.Context, branch string) (bool, error) {
	slog.Debug("Attempting to release lock", "branch", branch)

	err := dynamoDbLock.createTableIfNotExists(ctx)
	if err != nil {
		slog.Error("Error creating DynamoDB lock table", "error", err)
		return false, err
	}

	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(TABLE_NAME),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: "LOCK"},
			"SK": &types.AttributeValueMemberS{Value: "BRANCH#" + branch},
		},
	}

	_, err = dynamoDbLock.DynamoDb.DeleteItem(ctx, input)
	if err != nil {
		slog.Error("Failed to delete DynamoDB item for lock", "branch", branch, "error", err)
		return false, err
	}

	slog.Info("Lock released successfully", "branch", branch)
	return true, nil
}

// GetLock returns the run id currently holding the branch lock, or nil when
// no run holds it.
func (dynamoDbLock *DynamoDbLock) GetLock(ctx context.Context, branch string) (*string, error) {
	err := dynamoDbLock.createTableIfNotExists(ctx)
	if err != nil {
		slog.Error("Error creating DynamoDB lock table", "error", err)
		return nil, err
	}

	input := &dynamodb.GetItemInput{
		TableName: aws.String(TABLE_NAME),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: "LOCK"},
			"SK": &types.AttributeValueMemberS{Value: "BRANCH#" + branch},
		},
		ConsistentRead: aws.Bool(true),
	}

	result, err := dynamoDbLock.DynamoDb.GetItem(ctx, input)
	if err != nil {
		slog.Error("Failed to get DynamoDB item for lock", "branch", branch, "error", err)
		return nil, err
	}

	type runLock struct {
		RunId   string `dynamodbav:"run_id"`
		Timeout string `dynamodbav:"timeout"`
	}

	var l runLock
	err = attributevalue.UnmarshalMap(result.Item, &l)
	if err != nil {
		slog.Error("Failed to unmarshal DynamoDB item", "error", err)
		return nil, err
	}
	if l.RunId != "" {
		slog.Debug("Lock found",
			"branch", branch,
			"runId", l.RunId,
			"timeout", l.Timeout)
		return &l.RunId, nil
	}

	slog.Debug("No lock exists", "branch", branch)
	return nil, nil
}
