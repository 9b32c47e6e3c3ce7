package dynamostore

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	attrEntityRef  = "entity_ref"
	attrVersion    = "version"
	attrParentRefs = "_parent_refs"
	attrDeletedAt  = "deleted_at"
	attrTTL        = "ttl"
)

// IsDeleted reports whether an item carries a deletion timestamp.
func IsDeleted(item map[string]types.AttributeValue) bool {
	v, exists := item[attrDeletedAt]
	if !exists {
		return false
	}
	_, isNull := v.(*types.AttributeValueMemberNULL)
	return !isNull
}

// NotDeletedFilterExpr returns the filter expression excluding soft-deleted
// items. Use it with NotDeletedFilterNames when building custom queries.
func NotDeletedFilterExpr() string {
	return "(attribute_not_exists(#deleted_at) OR attribute_type(#deleted_at, :null_type))"
}

// NotDeletedFilterNames returns expression attribute names for NotDeletedFilterExpr.
func NotDeletedFilterNames() map[string]string {
	return map[string]string{"#deleted_at": attrDeletedAt}
}

// NotDeletedFilterValues returns expression attribute values for NotDeletedFilterExpr.
func NotDeletedFilterValues() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		":null_type": &types.AttributeValueMemberS{Value: "NULL"},
	}
}

// mergeExprNames merges multiple expression attribute name maps.
func mergeExprNames(maps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}

// mergeExprValues merges multiple expression attribute value maps.
func mergeExprValues(maps ...map[string]types.AttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}
