package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/jacentio/tombstone/store"
)

// session tracks the versions of loaded items so that commits fail when a
// loaded item changed in the meantime.
type session struct {
	store    *Store
	versions map[string]int64
	closed   bool
}

// Load reads the relationship records of the source for rel and fetches each
// child with a consistent read, skipping deleted and missing children.
func (s *session) Load(ctx context.Context, source store.Entity, rel store.Relation) ([]store.Entity, error) {
	if s.closed {
		return nil, store.ErrSessionClosed
	}
	schema, err := s.store.schema(rel.TargetType)
	if err != nil {
		return nil, err
	}

	refs, err := s.store.children(ctx, store.Ref(source), rel.Name)
	if err != nil {
		return nil, fmt.Errorf("query children: %w", err)
	}

	var out []store.Entity
	for _, ref := range refs {
		res, err := s.store.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(ref.TableName),
			Key:            ref.Key,
			ConsistentRead: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", ref.Ref, err)
		}
		if res.Item == nil || IsDeleted(res.Item) {
			continue
		}

		e, err := decode(schema, res.Item)
		if err != nil {
			return nil, err
		}
		s.versions[ref.Ref] = itemVersion(res.Item)
		out = append(out, e)

		if rel.Cardinality == store.One {
			break
		}
	}

	s.store.config.Logger.Debug("loaded relation",
		zap.String("source", store.Ref(source)),
		zap.String("relation", rel.Name),
		zap.Int("records", len(refs)),
		zap.Int("loaded", len(out)),
	)
	return out, nil
}

// Commit writes the whole set in one TransactWriteItems call.
func (s *session) Commit(ctx context.Context, set *store.MutationSet) error {
	if s.closed {
		return store.ErrSessionClosed
	}
	s.closed = true

	items, owners, err := s.transaction(set)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	if len(items) > MaxTransactionItems {
		return fmt.Errorf("%w: %d items, limit %d", store.ErrTransactionTooLarge, len(items), MaxTransactionItems)
	}

	_, err = s.store.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		return mapTransactionError(err, set.Mutations(), owners)
	}

	s.store.config.Logger.Debug("committed",
		zap.Int("mutations", set.Len()),
		zap.Int("items", len(items)),
	)
	return nil
}

func (s *session) Close(ctx context.Context) error {
	s.closed = true
	return nil
}

// transaction builds the transaction items of a set. owners maps each item
// to the index of the mutation it was built from.
func (s *session) transaction(set *store.MutationSet) (items []types.TransactWriteItem, owners []int, err error) {
	for i, m := range set.Mutations() {
		built, err := s.build(m)
		if err != nil {
			return nil, nil, err
		}
		for range built {
			owners = append(owners, i)
		}
		items = append(items, built...)
	}
	return items, owners, nil
}

func (s *session) build(m store.Mutation) ([]types.TransactWriteItem, error) {
	schema, err := s.store.schema(m.Entity.EntityType())
	if err != nil {
		return nil, err
	}
	item, links, err := s.store.encode(m.Entity)
	if err != nil {
		return nil, err
	}

	keyCol := schema.KeyColumn()
	keyAttr, ok := item[keyCol]
	if !ok {
		return nil, fmt.Errorf("%s has no %q attribute", store.Ref(m.Entity), keyCol)
	}
	key := map[string]types.AttributeValue{keyCol: keyAttr}
	ref := store.Ref(m.Entity)

	var out []types.TransactWriteItem
	switch m.Kind {
	case store.Insert:
		item[attrVersion] = &types.AttributeValueMemberN{Value: "1"}
		out = append(out, types.TransactWriteItem{
			Put: &types.Put{
				TableName:                aws.String(schema.Table),
				Item:                     item,
				ConditionExpression:      aws.String("attribute_not_exists(#key)"),
				ExpressionAttributeNames: map[string]string{"#key": keyCol},
			},
		})
		for _, link := range links {
			out = append(out, types.TransactWriteItem{
				Put: &types.Put{
					TableName: aws.String(s.store.config.RelationshipTable),
					Item:      s.store.relationshipItem(link, ref, schema.Table, key),
				},
			})
		}

	case store.Update:
		out = append(out, types.TransactWriteItem{Update: s.update(schema.Table, keyCol, key, item, ref)})

	case store.Remove:
		out = append(out, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName:                aws.String(schema.Table),
				Key:                      key,
				ConditionExpression:      aws.String("attribute_exists(#key)"),
				ExpressionAttributeNames: map[string]string{"#key": keyCol},
			},
		})
		for _, link := range links {
			out = append(out, types.TransactWriteItem{
				Delete: &types.Delete{
					TableName: aws.String(s.store.config.RelationshipTable),
					Key: map[string]types.AttributeValue{
						"pk":        &types.AttributeValueMemberS{Value: s.store.relationshipPK(link.parentRef, ref)},
						"child_ref": &types.AttributeValueMemberS{Value: ref},
					},
				},
			})
		}
	}
	return out, nil
}

// update builds an in-place update of every attribute but the key. The item
// must still exist, must match the version seen by Load, and must not have
// been deleted with a different timestamp.
func (s *session) update(table, keyCol string, key, item map[string]types.AttributeValue, ref string) *types.Update {
	exprNames := map[string]string{
		"#key":        keyCol,
		"#version":    attrVersion,
		"#deleted_at": attrDeletedAt,
	}
	exprValues := map[string]types.AttributeValue{
		":zero": &types.AttributeValueMemberN{Value: "0"},
		":one":  &types.AttributeValueMemberN{Value: "1"},
	}

	attrs := make([]string, 0, len(item))
	for k := range item {
		if k == keyCol || k == attrVersion {
			continue
		}
		attrs = append(attrs, k)
	}
	sort.Strings(attrs)

	setClauses := make([]string, 0, len(attrs)+1)
	for i, k := range attrs {
		nameKey := fmt.Sprintf("#attr%d", i)
		valueKey := fmt.Sprintf(":val%d", i)
		exprNames[nameKey] = k
		exprValues[valueKey] = item[k]
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", nameKey, valueKey))
	}
	setClauses = append(setClauses, "#version = if_not_exists(#version, :zero) + :one")

	conds := []string{"attribute_exists(#key)"}
	if v := s.versions[ref]; v > 0 {
		conds = append(conds, "#version = :expected_version")
		exprValues[":expected_version"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
	}
	exprValues = mergeExprValues(exprValues, NotDeletedFilterValues())
	if deletedAt, ok := item[attrDeletedAt]; ok && IsDeleted(item) {
		conds = append(conds, "("+NotDeletedFilterExpr()+" OR #deleted_at = :deleted_at)")
		exprValues[":deleted_at"] = deletedAt
	} else {
		conds = append(conds, NotDeletedFilterExpr())
	}

	return &types.Update{
		TableName:                 aws.String(table),
		Key:                       key,
		UpdateExpression:          aws.String("SET " + strings.Join(setClauses, ", ")),
		ConditionExpression:       aws.String(strings.Join(conds, " AND ")),
		ExpressionAttributeNames:  exprNames,
		ExpressionAttributeValues: exprValues,
	}
}

// mapTransactionError maps a cancelled transaction to the error of the first
// mutation whose condition failed.
func mapTransactionError(err error, mutations []store.Mutation, owners []int) error {
	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if reason.Code == nil || *reason.Code != "ConditionalCheckFailed" || i >= len(owners) {
				continue
			}
			m := mutations[owners[i]]
			if m.Kind == store.Insert {
				return fmt.Errorf("%w: %s", ErrAlreadyExists, store.Ref(m.Entity))
			}
			return fmt.Errorf("%w: %s", store.ErrConcurrentModification, store.Ref(m.Entity))
		}
	}
	return fmt.Errorf("transact write: %w", err)
}
