package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/rowanad/commentable/internal/errors"
)

// dynamoItem is the single-table item layout. The engine key is split at its
// last ':' into partition and sort key, so every comment of a thread shares
// one partition and a prefix scan over thread:{id}:comment: becomes a native
// ordered Query.
type dynamoItem struct {
	PK      string `dynamodbav:"pk"`
	SK      string `dynamodbav:"sk"`
	Value   []byte `dynamodbav:"val"`
	Version int64  `dynamodbav:"version"`
}

// DynamoStore implements KV on DynamoDB. Conditional writes map directly to
// conditional PutItem expressions, which is the backend's native CAS.
type DynamoStore struct {
	client *dynamodb.Client
	table  string
	logger *zap.Logger
}

// NewDynamoStore creates a DynamoDB adapter using the default AWS credential
// chain. The table must have a composite primary key (pk HASH, sk RANGE).
func NewDynamoStore(ctx context.Context, table, region string, logger *zap.Logger) (*DynamoStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &DynamoStore{
		client: dynamodb.NewFromConfig(cfg),
		table:  table,
		logger: logger,
	}, nil
}

// NewDynamoStoreWithClient creates an adapter from an existing client
func NewDynamoStoreWithClient(client *dynamodb.Client, table string, logger *zap.Logger) *DynamoStore {
	return &DynamoStore{client: client, table: table, logger: logger}
}

// splitKey splits an engine key at its last ':' into (pk, sk). Every key in
// the durable schema ends in a sortable final segment, so the split keeps
// related records in one partition with native sort-key ordering.
func splitKey(key string) (string, string) {
	idx := strings.LastIndex(key, ":")
	if idx < 0 {
		return key, "-"
	}
	return key[:idx+1], key[idx+1:]
}

func itemKey(key string) map[string]types.AttributeValue {
	pk, sk := splitKey(key)
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
		"sk": &types.AttributeValueMemberS{Value: sk},
	}
}

// Get retrieves a record by key using a strongly consistent read
func (s *DynamoStore) Get(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.Unavailable("dynamodb get", err)
	}
	if len(out.Item) == 0 {
		return nil, errors.ErrNotFound
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item for %s: %w", key, err)
	}
	return &Record{Value: item.Value, Version: item.Version}, nil
}

// Put writes unconditionally. The version still advances so a later
// CompareAndPut against a blind-written record behaves correctly.
func (s *DynamoStore) Put(ctx context.Context, key string, value []byte) error {
	cur, err := s.Get(ctx, key)
	version := int64(0)
	if err == nil {
		version = cur.Version
	} else if !stderrors.Is(err, errors.ErrNotFound) {
		return err
	}

	pk, sk := splitKey(key)
	item, err := attributevalue.MarshalMap(dynamoItem{PK: pk, SK: sk, Value: value, Version: version + 1})
	if err != nil {
		return fmt.Errorf("failed to marshal item for %s: %w", key, err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return errors.Unavailable("dynamodb put", err)
	}
	return nil
}

// CompareAndPut writes only if the stored version matches expectedVersion
func (s *DynamoStore) CompareAndPut(ctx context.Context, key string, expectedVersion int64, value []byte) error {
	pk, sk := splitKey(key)
	item, err := attributevalue.MarshalMap(dynamoItem{PK: pk, SK: sk, Value: value, Version: expectedVersion + 1})
	if err != nil {
		return fmt.Errorf("failed to marshal item for %s: %w", key, err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}
	if expectedVersion == 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(pk)")
	} else {
		input.ConditionExpression = aws.String("version = :ev")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":ev": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)},
		}
	}

	_, err = s.client.PutItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if stderrors.As(err, &ccf) {
			return errors.VersionConflict(key, err)
		}
		return errors.Unavailable("dynamodb compare-and-put", err)
	}
	return nil
}

// ScanPrefix returns matching entries in key order. A prefix equal to a full
// partition key of the stored layout is served by a native ordered Query;
// prefixes spanning partitions (only the cleanup paths use them) fall back to
// a filtered table Scan.
func (s *DynamoStore) ScanPrefix(ctx context.Context, prefix, afterKey string, limit int) ([]Entry, error) {
	if isPartitionPrefix(prefix) {
		return s.queryPartition(ctx, prefix, afterKey, limit)
	}
	return s.scanTable(ctx, prefix, afterKey, limit)
}

// isPartitionPrefix reports whether prefix is exactly one partition key of the
// layout. Rate-limit keys carry a ':' inside their partition segment
// (ratelimit:{hash}:{windowId} splits into pk ratelimit:{hash}:), so the bare
// "ratelimit:" prefix spans many partitions and a Query against it would match
// nothing.
func isPartitionPrefix(prefix string) bool {
	if !strings.HasSuffix(prefix, ":") {
		return false
	}
	if strings.HasPrefix(prefix, "ratelimit:") {
		return strings.Count(prefix, ":") >= 2
	}
	return true
}

func (s *DynamoStore) queryPartition(ctx context.Context, prefix, afterKey string, limit int) ([]Entry, error) {
	keyCond := "pk = :pk"
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: prefix},
	}
	if afterKey != "" && strings.HasPrefix(afterKey, prefix) {
		keyCond += " AND sk > :after"
		values[":after"] = &types.AttributeValueMemberS{Value: afterKey[len(prefix):]}
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeValues: values,
		ConsistentRead:            aws.Bool(true),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	var entries []Entry
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, errors.Unavailable("dynamodb query", err)
		}
		var items []dynamoItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal query page: %w", err)
		}
		for _, item := range items {
			entries = append(entries, Entry{
				Key:    item.PK + item.SK,
				Record: Record{Value: item.Value, Version: item.Version},
			})
			if limit > 0 && len(entries) >= limit {
				return entries, nil
			}
		}
		if out.LastEvaluatedKey == nil {
			return entries, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (s *DynamoStore) scanTable(ctx context.Context, prefix, afterKey string, limit int) ([]Entry, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(s.table),
		FilterExpression: aws.String("begins_with(pk, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: prefix},
		},
	}

	var entries []Entry
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, errors.Unavailable("dynamodb scan", err)
		}
		var items []dynamoItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scan page: %w", err)
		}
		for _, item := range items {
			key := item.PK + item.SK
			if !strings.HasPrefix(key, prefix) || key <= afterKey {
				continue
			}
			entries = append(entries, Entry{
				Key:    key,
				Record: Record{Value: item.Value, Version: item.Version},
			})
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Delete removes a key
func (s *DynamoStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       itemKey(key),
	})
	if err != nil {
		return errors.Unavailable("dynamodb delete", err)
	}
	return nil
}

// Capabilities reports conditional-write support
func (s *DynamoStore) Capabilities() Capabilities {
	return Capabilities{ConditionalWrite: true}
}

// Ping checks table reachability
func (s *DynamoStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	})
	return err
}

// Close is a no-op; the SDK client holds no persistent connections
func (s *DynamoStore) Close() error {
	return nil
}
