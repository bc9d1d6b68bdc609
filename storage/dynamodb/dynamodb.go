// Package dynamodb implements core.Storage on an Amazon DynamoDB table.
//
// The table needs a single string partition key (default attribute "PK").
// Each document is stored as its JSON encoding next to an ETag attribute;
// batches are written with TransactWriteItems so an ETag conflict on any key
// leaves every key untouched.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/dialogmesh/core"
)

const (
	attrDocument = "document"
	attrETag     = "etag"

	// maxTransactItems is the DynamoDB limit per TransactWriteItems call.
	maxTransactItems = 100
)

// dynamodbAPI is the minimal DynamoDB interface required by Storage.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Options configure the backend.
type Options struct {
	// KeyAttribute is the partition key attribute name.
	KeyAttribute string
	// ConsistentRead enables strongly consistent reads. Default true.
	ConsistentRead bool
}

// Storage is a DynamoDB backed core.Storage.
type Storage struct {
	api       dynamodbAPI
	tableName string
	opts      Options
}

// New creates a Storage for tableName.
func New(api dynamodbAPI, tableName string, optFns ...func(o *Options)) (*Storage, error) {
	if api == nil {
		return nil, errors.New("dynamodb storage: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("dynamodb storage: table name must not be empty")
	}
	opts := Options{KeyAttribute: "PK", ConsistentRead: true}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Storage{api: api, tableName: tableName, opts: opts}, nil
}

// NewFromConfig creates a Storage with a client built from an AWS config.
func NewFromConfig(cfg aws.Config, tableName string, optFns ...func(o *Options)) (*Storage, error) {
	return New(dynamodb.NewFromConfig(cfg), tableName, optFns...)
}

// Read fetches each key with GetItem. Missing keys are omitted.
func (s *Storage) Read(ctx context.Context, keys []string) (map[string]core.StoreItem, error) {
	out := make(map[string]core.StoreItem, len(keys))
	for _, k := range keys {
		res, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(s.tableName),
			Key:            s.key(k),
			ConsistentRead: aws.Bool(s.opts.ConsistentRead),
		})
		if err != nil {
			return nil, fmt.Errorf("dynamodb storage: Read get item %q: %w", k, err)
		}
		if res == nil || len(res.Item) == 0 {
			continue
		}
		item, err := decodeItem(res.Item)
		if err != nil {
			return nil, fmt.Errorf("dynamodb storage: Read decode %q: %w", k, err)
		}
		out[k] = item
	}
	return out, nil
}

// Write puts all changes in one transaction guarded by ETag conditions.
func (s *Storage) Write(ctx context.Context, changes map[string]core.StoreItem) error {
	if len(changes) == 0 {
		return nil
	}
	if len(changes) > maxTransactItems {
		return fmt.Errorf("dynamodb storage: Write: %d items exceeds transaction limit of %d", len(changes), maxTransactItems)
	}

	tx := make([]types.TransactWriteItem, 0, len(changes))
	for k, change := range changes {
		put, err := s.put(k, change)
		if err != nil {
			return err
		}
		tx = append(tx, types.TransactWriteItem{Put: put})
	}

	_, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: tx})
	if err != nil {
		if isConditionFailure(err) {
			return fmt.Errorf("dynamodb storage: Write: %w", core.ErrETagMismatch)
		}
		return fmt.Errorf("dynamodb storage: Write: %w", err)
	}
	return nil
}

// Delete removes keys one by one; missing keys are not an error.
func (s *Storage) Delete(ctx context.Context, keys []string) error {
	for _, k := range keys {
		_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key:       s.key(k),
		})
		if err != nil {
			return fmt.Errorf("dynamodb storage: Delete %q: %w", k, err)
		}
	}
	return nil
}

func (s *Storage) key(k string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		s.opts.KeyAttribute: &types.AttributeValueMemberS{Value: k},
	}
}

func (s *Storage) put(k string, change core.StoreItem) (*types.Put, error) {
	body, err := change.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("dynamodb storage: encode %q: %w", k, err)
	}

	item := s.key(k)
	item[attrDocument] = &types.AttributeValueMemberS{Value: string(body)}
	item[attrETag] = &types.AttributeValueMemberS{Value: core.NewID()}

	put := &types.Put{TableName: aws.String(s.tableName), Item: item}
	switch change.ETag {
	case "":
	case "*":
		put.ConditionExpression = aws.String("attribute_not_exists(#k)")
		put.ExpressionAttributeNames = map[string]string{"#k": s.opts.KeyAttribute}
	default:
		put.ConditionExpression = aws.String("#e = :etag")
		put.ExpressionAttributeNames = map[string]string{"#e": attrETag}
		put.ExpressionAttributeValues = map[string]types.AttributeValue{
			":etag": &types.AttributeValueMemberS{Value: change.ETag},
		}
	}
	return put, nil
}

func decodeItem(item map[string]types.AttributeValue) (core.StoreItem, error) {
	body, err := strAttr(item, attrDocument)
	if err != nil {
		return core.StoreItem{}, err
	}
	etag, _ := strAttr(item, attrETag) // allow empty

	doc := core.NewMap()
	if err := doc.UnmarshalJSON([]byte(body)); err != nil {
		return core.StoreItem{}, err
	}
	return core.StoreItem{Value: doc, ETag: etag}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return s.Value, nil
}

func isConditionFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, r := range tce.CancellationReasons {
			if aws.ToString(r.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}

var _ core.Storage = (*Storage)(nil)
