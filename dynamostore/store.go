// Package dynamostore implements store.Backend over DynamoDB.
//
// Entities are encoded with attributevalue using "dynamodbav" tags; navigation
// fields must be tagged `dynamodbav:"-"`. Each table is keyed by the schema's
// KeyColumn. Parent/child edges are kept in a relationship table so that
// unloaded navigations can be loaded without secondary indexes:
//
//	pk          parent_ref#shard (see internal/shard)
//	child_ref   sort key, the child's store.Ref
//	parent_ref  the parent's store.Ref
//	relation    the relation name on the parent
//	child_table the child's table
//	child_key   the child's primary key
//
// A commit is a single TransactWriteItems call, so a mutation set is limited
// to MaxTransactionItems items including relationship records.
package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/tombstone/internal/shard"
	"github.com/jacentio/tombstone/store"
)

// ErrAlreadyExists is returned when inserting an item whose key is taken.
var ErrAlreadyExists = errors.New("dynamostore: entity already exists")

// Client is the subset of *dynamodb.Client used by the Store.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

var _ Client = (*dynamodb.Client)(nil)

// Store is a store.Backend over DynamoDB.
type Store struct {
	client   Client
	registry *store.Registry
	config   Config
}

var _ store.Backend = (*Store)(nil)

// New creates a new Store instance.
func New(client Client, registry *store.Registry, config Config) *Store {
	config.validate()
	return &Store{
		client:   client,
		registry: registry,
		config:   config,
	}
}

// Begin starts a session. DynamoDB has no read snapshot, so loads use
// consistent reads and commits are guarded by conditions instead.
func (s *Store) Begin(ctx context.Context) (store.Session, error) {
	return &session{store: s, versions: make(map[string]int64)}, nil
}

// Find scans the entity's table. Filtering runs server-side; ordering and
// paging are applied to the full result.
func (s *Store) Find(ctx context.Context, q store.Query) ([]store.Entity, error) {
	schema, err := s.schema(q.Type)
	if err != nil {
		return nil, err
	}
	input, err := s.scanInput(schema, q)
	if err != nil {
		return nil, err
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", schema.Table, err)
		}
		items = append(items, page.Items...)
	}

	col, desc := q.SortColumn()
	if col == "" {
		col = schema.KeyColumn()
	}
	sort.SliceStable(items, func(i, j int) bool {
		c := compareAttr(items[i][col], items[j][col])
		if desc {
			return c > 0
		}
		return c < 0
	})
	if q.Offset > 0 {
		if q.Offset >= len(items) {
			items = nil
		} else {
			items = items[q.Offset:]
		}
	}
	if q.Limit > 0 && len(items) > q.Limit {
		items = items[:q.Limit]
	}

	out := make([]store.Entity, 0, len(items))
	for _, item := range items {
		e, err := decode(schema, item)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Count returns the number of items matching q.
func (s *Store) Count(ctx context.Context, q store.Query) (int64, error) {
	schema, err := s.schema(q.Type)
	if err != nil {
		return 0, err
	}
	input, err := s.scanInput(schema, q)
	if err != nil {
		return 0, err
	}
	input.Select = types.SelectCount

	var n int64
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("count %s: %w", schema.Table, err)
		}
		n += int64(page.Count)
	}
	return n, nil
}

// SchedulePurge sets the TTL of an item unless one is already set.
// DynamoDB removes the item once the TTL has passed.
func (s *Store) SchedulePurge(ctx context.Context, table string, key map[string]types.AttributeValue, ttl int64) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(table),
		Key:                 key,
		UpdateExpression:    aws.String("SET #ttl = :ttl"),
		ConditionExpression: aws.String("attribute_exists(#entity_ref) AND attribute_not_exists(#ttl)"),
		ExpressionAttributeNames: map[string]string{
			"#ttl":        attrTTL,
			"#entity_ref": attrEntityRef,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
		},
	})

	// Ignore condition failure - already scheduled or gone
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil
	}
	return err
}

// SetRelationshipTTL sets TTL on a relationship record.
func (s *Store) SetRelationshipTTL(ctx context.Context, childRef, parentRef string, ttl int64) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.config.RelationshipTable),
		Key: map[string]types.AttributeValue{
			"pk":        &types.AttributeValueMemberS{Value: s.relationshipPK(parentRef, childRef)},
			"child_ref": &types.AttributeValueMemberS{Value: childRef},
		},
		UpdateExpression:    aws.String("SET #ttl = :ttl"),
		ConditionExpression: aws.String("attribute_exists(pk) AND attribute_not_exists(#ttl)"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": attrTTL,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
		},
	})

	// Ignore condition failure - already has TTL
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil
	}
	return err
}

// relationshipPK computes the sharded partition key for a relationship record.
func (s *Store) relationshipPK(parentRef, childRef string) string {
	return shard.Key(parentRef, childRef, s.config.NumShards)
}

func (s *Store) schema(entityType string) (store.Schema, error) {
	schema, ok := s.registry.SchemaOf(entityType)
	if !ok || schema.New == nil {
		return store.Schema{}, fmt.Errorf("%w: %s", store.ErrUnknownType, entityType)
	}
	if schema.Table == "" {
		schema.Table = entityType
	}
	return schema, nil
}

func (s *Store) scanInput(schema store.Schema, q store.Query) (*dynamodb.ScanInput, error) {
	var filters []string
	names := map[string]string{}
	values := map[string]types.AttributeValue{}

	cols := make([]string, 0, len(q.Where))
	for col := range q.Where {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for i, col := range cols {
		v, err := attributevalue.Marshal(q.Where[col])
		if err != nil {
			return nil, fmt.Errorf("marshal filter %s: %w", col, err)
		}
		name, value := fmt.Sprintf("#f%d", i), fmt.Sprintf(":f%d", i)
		names[name] = col
		values[value] = v
		filters = append(filters, name+" = "+value)
	}
	if !q.WithDeleted {
		filters = append(filters, NotDeletedFilterExpr())
		names = mergeExprNames(names, NotDeletedFilterNames())
		values = mergeExprValues(values, NotDeletedFilterValues())
	}

	input := &dynamodb.ScanInput{
		TableName:      aws.String(schema.Table),
		ConsistentRead: aws.Bool(true),
	}
	if len(filters) > 0 {
		input.FilterExpression = aws.String(strings.Join(filters, " AND "))
		input.ExpressionAttributeNames = names
		input.ExpressionAttributeValues = values
	}
	return input, nil
}

// parentLink is an edge from a parent to the entity being written.
type parentLink struct {
	relation  string
	parentRef string
}

// parentLinks derives the parents of an item from the foreign keys of the
// relations targeting its type.
func (s *Store) parentLinks(entityType string, item map[string]types.AttributeValue) []parentLink {
	var links []parentLink
	for _, rel := range s.registry.RelationsTo(entityType) {
		if rel.OnDependent || rel.ForeignKey == "" {
			continue
		}
		key := scalarString(item[rel.ForeignKey])
		if key == "" {
			continue
		}
		links = append(links, parentLink{relation: rel.Name, parentRef: rel.SourceType + "#" + key})
	}
	return links
}

// children returns the relationship records of parentRef for one relation,
// sorted by child ref.
func (s *Store) children(ctx context.Context, parentRef, relation string) ([]childRef, error) {
	keys := shard.All(parentRef, s.config.NumShards)

	// Fast path for single shard (default)
	if len(keys) == 1 {
		refs, err := s.queryShard(ctx, keys[0], relation)
		if err != nil {
			return nil, err
		}
		sortChildren(refs)
		return refs, nil
	}

	// Multi-shard fan-out
	var mu sync.Mutex
	var all []childRef
	var wg sync.WaitGroup
	errs := make(chan error, len(keys))

	for _, key := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()

			refs, err := s.queryShard(ctx, key, relation)
			if err != nil {
				errs <- fmt.Errorf("shard %s: %w", key, err)
				return
			}
			mu.Lock()
			all = append(all, refs...)
			mu.Unlock()
		}(key)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return nil, err
		}
	}

	sortChildren(all)
	return all, nil
}

func (s *Store) queryShard(ctx context.Context, shardPK, relation string) ([]childRef, error) {
	var refs []childRef

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.RelationshipTable),
		KeyConditionExpression: aws.String("pk = :pk"),
		FilterExpression:       aws.String("#relation = :relation"),
		ExpressionAttributeNames: map[string]string{
			"#relation": "relation",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":       &types.AttributeValueMemberS{Value: shardPK},
			":relation": &types.AttributeValueMemberS{Value: relation},
		},
		ConsistentRead: aws.Bool(true),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			refs = append(refs, unmarshalChildRef(item))
		}
	}
	return refs, nil
}

// relationshipItem builds the relationship record of a child under parentRef.
func (s *Store) relationshipItem(link parentLink, childRef, childTable string, childKey map[string]types.AttributeValue) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk":          &types.AttributeValueMemberS{Value: s.relationshipPK(link.parentRef, childRef)},
		"child_ref":   &types.AttributeValueMemberS{Value: childRef},
		"parent_ref":  &types.AttributeValueMemberS{Value: link.parentRef},
		"relation":    &types.AttributeValueMemberS{Value: link.relation},
		"child_table": &types.AttributeValueMemberS{Value: childTable},
		"child_key":   &types.AttributeValueMemberM{Value: childKey},
	}
}

// childRef is one relationship record.
type childRef struct {
	Ref       string
	TableName string
	Key       map[string]types.AttributeValue
}

// unmarshalChildRef converts a relationship item to a childRef.
func unmarshalChildRef(item map[string]types.AttributeValue) childRef {
	var ref childRef

	if v, ok := item["child_ref"].(*types.AttributeValueMemberS); ok {
		ref.Ref = v.Value
	}
	if v, ok := item["child_table"].(*types.AttributeValueMemberS); ok {
		ref.TableName = v.Value
	}
	if v, ok := item["child_key"].(*types.AttributeValueMemberM); ok {
		ref.Key = v.Value
	}

	return ref
}

func sortChildren(refs []childRef) {
	sort.Slice(refs, func(i, j int) bool { return refs[i].Ref < refs[j].Ref })
}

// encode marshals an entity and adds the store-managed attributes.
func (s *Store) encode(e store.Entity) (map[string]types.AttributeValue, []parentLink, error) {
	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal %s: %w", store.Ref(e), err)
	}
	item[attrEntityRef] = &types.AttributeValueMemberS{Value: store.Ref(e)}

	links := s.parentLinks(e.EntityType(), item)
	if len(links) > 0 {
		refs := make([]string, len(links))
		for i, l := range links {
			refs[i] = l.parentRef
		}
		list, err := attributevalue.MarshalList(refs)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal parent refs: %w", err)
		}
		item[attrParentRefs] = &types.AttributeValueMemberL{Value: list}
	}
	return item, links, nil
}

// decode unmarshals an item into a new instance of the schema's type.
func decode(schema store.Schema, item map[string]types.AttributeValue) (store.Entity, error) {
	e := schema.New()
	if err := attributevalue.UnmarshalMap(item, e); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", schema.Type, err)
	}
	return e, nil
}

// itemVersion returns the version attribute of an item, or 0.
func itemVersion(item map[string]types.AttributeValue) int64 {
	if v, ok := item[attrVersion].(*types.AttributeValueMemberN); ok {
		n, _ := strconv.ParseInt(v.Value, 10, 64)
		return n
	}
	return 0
}

// scalarString renders S and N attributes the way store.Ref renders keys.
func scalarString(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	}
	return ""
}

// compareAttr orders scalar attributes. Missing values sort first.
func compareAttr(a, b types.AttributeValue) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	switch av := a.(type) {
	case *types.AttributeValueMemberN:
		if bv, ok := b.(*types.AttributeValueMemberN); ok {
			af, _ := strconv.ParseFloat(av.Value, 64)
			bf, _ := strconv.ParseFloat(bv.Value, 64)
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	case *types.AttributeValueMemberBOOL:
		if bv, ok := b.(*types.AttributeValueMemberBOOL); ok {
			switch {
			case av.Value == bv.Value:
				return 0
			case !av.Value:
				return -1
			}
			return 1
		}
	}

	as, bs := scalarString(a), scalarString(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}
