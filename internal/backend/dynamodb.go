package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/gostash/tierstore/internal/core"
)

// DynamoDBBackend implements core.GeneralBackend using a DynamoDB
// table with a string partition key named "key". Useful when the
// general tier lives server-side rather than on the device.
type DynamoDBBackend struct {
	client    *dynamodb.Client
	tableName string
}

// NewDynamoDBBackend creates a DynamoDB-backed general backend and
// verifies the table exists.
func NewDynamoDBBackend(region, tableName, endpoint, accessKeyID, secretAccessKey string) (*DynamoDBBackend, error) {
	if region == "" {
		return nil, fmt.Errorf("region is required")
	}
	if tableName == "" {
		return nil, fmt.Errorf("table name is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if accessKeyID != "" && secretAccessKey != "" {
		cfg.Credentials = credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")
	}

	clientOptions := []func(*dynamodb.Options){}
	if endpoint != "" {
		// Custom endpoint, e.g. LocalStack.
		clientOptions = append(clientOptions, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	client := dynamodb.NewFromConfig(cfg, clientOptions...)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	}); err != nil {
		return nil, fmt.Errorf("failed to connect to DynamoDB table %s: %w", tableName, err)
	}

	return &DynamoDBBackend{client: client, tableName: tableName}, nil
}

// Get retrieves a value by key.
func (d *DynamoDBBackend) Get(ctx context.Context, key string) (string, error) {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if result.Item == nil {
		return "", core.ErrKeyNotFound
	}

	attr, ok := result.Item["value"].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("unexpected value attribute for key %s", key)
	}
	return attr.Value, nil
}

// Set stores a key-value pair.
func (d *DynamoDBBackend) Set(ctx context.Context, key, value string) error {
	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item: map[string]types.AttributeValue{
			"key":   &types.AttributeValueMemberS{Value: key},
			"value": &types.AttributeValueMemberS{Value: value},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Absent keys are not an error.
func (d *DynamoDBBackend) Delete(ctx context.Context, key string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// ListKeys scans the table and returns every partition key.
func (d *DynamoDBBackend) ListKeys(ctx context.Context) ([]string, error) {
	var keys []string
	var startKey map[string]types.AttributeValue

	for {
		result, err := d.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                aws.String(d.tableName),
			ProjectionExpression:     aws.String("#k"),
			ExpressionAttributeNames: map[string]string{"#k": "key"},
			ExclusiveStartKey:        startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}
		for _, item := range result.Items {
			if attr, ok := item["key"].(*types.AttributeValueMemberS); ok {
				keys = append(keys, attr.Value)
			}
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		startKey = result.LastEvaluatedKey
	}
	return keys, nil
}

// dynamoGeneralFactory creates DynamoDB general backends.
type dynamoGeneralFactory struct{}

func (dynamoGeneralFactory) Type() string { return "dynamodb" }

func (dynamoGeneralFactory) Validate(config Config) error {
	if config.Region == "" {
		return fmt.Errorf("region is required for DynamoDB")
	}
	if config.TableName == "" {
		return fmt.Errorf("table_name is required for DynamoDB")
	}
	return nil
}

func (dynamoGeneralFactory) Create(config Config) (core.GeneralBackend, error) {
	return NewDynamoDBBackend(config.Region, config.TableName, config.Endpoint, config.AccessKeyID, config.SecretAccessKey)
}

func init() {
	RegisterGeneralFactory(dynamoGeneralFactory{})
}
