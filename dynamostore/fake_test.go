package dynamostore

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/tombstone/store"
)

// fakeClient serves canned items and records every write request. It does
// not evaluate expressions, except for the relation filter of Query.
type fakeClient struct {
	mu sync.Mutex

	// tables holds the items returned by Scan and GetItem, keyed by table.
	tables map[string][]map[string]types.AttributeValue

	// relationships holds relationship records keyed by partition key.
	relationships map[string][]map[string]types.AttributeValue

	transactErr error
	updateErr   error

	scans     []*dynamodb.ScanInput
	queries   []*dynamodb.QueryInput
	gets      []*dynamodb.GetItemInput
	updates   []*dynamodb.UpdateItemInput
	transacts []*dynamodb.TransactWriteItemsInput
}

var _ Client = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{
		tables:        make(map[string][]map[string]types.AttributeValue),
		relationships: make(map[string][]map[string]types.AttributeValue),
	}
}

func (f *fakeClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, params)

	for _, item := range f.tables[*params.TableName] {
		if keyMatches(item, params.Key) {
			return &dynamodb.GetItemOutput{Item: item}, nil
		}
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (f *fakeClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, params)

	pk := scalarString(params.ExpressionAttributeValues[":pk"])
	relation := scalarString(params.ExpressionAttributeValues[":relation"])

	var items []map[string]types.AttributeValue
	for _, item := range f.relationships[pk] {
		if scalarString(item["relation"]) == relation {
			items = append(items, item)
		}
	}
	return &dynamodb.QueryOutput{Items: items, Count: int32(len(items))}, nil
}

func (f *fakeClient) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans = append(f.scans, params)

	items := f.tables[*params.TableName]
	if params.Select == types.SelectCount {
		return &dynamodb.ScanOutput{Count: int32(len(items))}, nil
	}
	return &dynamodb.ScanOutput{Items: items, Count: int32(len(items))}, nil
}

func (f *fakeClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, params)
	return &dynamodb.UpdateItemOutput{}, f.updateErr
}

func (f *fakeClient) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transacts = append(f.transacts, params)
	return &dynamodb.TransactWriteItemsOutput{}, f.transactErr
}

// put stores an entity item together with its relationship records, the way
// a committed Insert would.
func (f *fakeClient) put(s *Store, e store.Entity) {
	schema, err := s.schema(e.EntityType())
	if err != nil {
		panic(err)
	}
	item, links, err := s.encode(e)
	if err != nil {
		panic(err)
	}
	item[attrVersion] = &types.AttributeValueMemberN{Value: "1"}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[schema.Table] = append(f.tables[schema.Table], item)

	key := map[string]types.AttributeValue{schema.KeyColumn(): item[schema.KeyColumn()]}
	for _, link := range links {
		rec := s.relationshipItem(link, store.Ref(e), schema.Table, key)
		pk := scalarString(rec["pk"])
		f.relationships[pk] = append(f.relationships[pk], rec)
	}
}

func keyMatches(item, key map[string]types.AttributeValue) bool {
	for k, v := range key {
		if scalarString(item[k]) != scalarString(v) {
			return false
		}
	}
	return true
}
