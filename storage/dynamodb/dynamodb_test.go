package dynamodb

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/core"
)

// fakeDynamo keeps items in memory and evaluates the two condition
// expressions the backend emits.
type fakeDynamo struct {
	items       map[string]map[string]types.AttributeValue
	getErr      error
	lastTxInput *dynamodb.TransactWriteItemsInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func pk(key map[string]types.AttributeValue) string {
	return key["PK"].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &dynamodb.GetItemOutput{Item: f.items[pk(in.Key)]}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	delete(f.items, pk(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.lastTxInput = in
	for _, ti := range in.TransactItems {
		key := pk(ti.Put.Item)
		current, exists := f.items[key]
		switch aws.ToString(ti.Put.ConditionExpression) {
		case "attribute_not_exists(#k)":
			if exists {
				return nil, conditionFailed()
			}
		case "#e = :etag":
			want := ti.Put.ExpressionAttributeValues[":etag"].(*types.AttributeValueMemberS).Value
			if !exists || current[attrETag].(*types.AttributeValueMemberS).Value != want {
				return nil, conditionFailed()
			}
		}
	}
	for _, ti := range in.TransactItems {
		f.items[pk(ti.Put.Item)] = ti.Put.Item
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func conditionFailed() error {
	return &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: aws.String("ConditionalCheckFailed")}},
	}
}

func mustNew(t *testing.T, db *fakeDynamo) *Storage {
	t.Helper()
	s, err := New(db, "dialog-state")
	require.NoError(t, err)
	return s
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "t")
	require.Error(t, err)
	_, err = New(newFakeDynamo(), "  ")
	require.Error(t, err)
}

func TestStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newFakeDynamo()
	s := mustNew(t, db)

	doc := core.NewMap()
	doc.Set("z", core.NumberValue(1))
	doc.Set("a", core.StringValue("x"))
	require.NoError(t, s.Write(ctx, map[string]core.StoreItem{"k1": {Value: doc, ETag: "*"}}))

	items, err := s.Read(ctx, []string{"k1", "missing"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, []string{"z", "a"}, items["k1"].Value.Keys())
	assert.NotEmpty(t, items["k1"].ETag)

	require.NoError(t, s.Delete(ctx, []string{"k1"}))
	items, err = s.Read(ctx, []string{"k1"})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestStorage_ETagConditions(t *testing.T) {
	ctx := context.Background()
	db := newFakeDynamo()
	s := mustNew(t, db)

	require.NoError(t, s.Write(ctx, map[string]core.StoreItem{"k": {Value: core.NewMap(), ETag: "*"}}))
	err := s.Write(ctx, map[string]core.StoreItem{"k": {Value: core.NewMap(), ETag: "*"}})
	assert.ErrorIs(t, err, core.ErrETagMismatch)

	items, _ := s.Read(ctx, []string{"k"})
	require.NoError(t, s.Write(ctx, map[string]core.StoreItem{"k": {Value: core.NewMap(), ETag: items["k"].ETag}}))

	err = s.Write(ctx, map[string]core.StoreItem{"k": {Value: core.NewMap(), ETag: items["k"].ETag}})
	assert.ErrorIs(t, err, core.ErrETagMismatch)

	put := db.lastTxInput.TransactItems[0].Put
	assert.Equal(t, "dialog-state", aws.ToString(put.TableName))
	assert.Equal(t, "#e = :etag", aws.ToString(put.ConditionExpression))
}

func TestStorage_ReadError(t *testing.T) {
	db := newFakeDynamo()
	db.getErr = errors.New("throttled")
	s := mustNew(t, db)
	_, err := s.Read(context.Background(), []string{"k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Read get item")
}

func TestStorage_CorruptDocument(t *testing.T) {
	db := newFakeDynamo()
	db.items["k"] = map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: "k"},
		attrDocument: &types.AttributeValueMemberN{Value: "1"},
	}
	s := mustNew(t, db)
	_, err := s.Read(context.Background(), []string{"k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a string")
}
