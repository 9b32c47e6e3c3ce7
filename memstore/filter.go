package memstore

import (
	"bytes"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

type condition struct {
	key   string
	value bson.RawValue
}

func encodeConditions(where map[string]any) ([]condition, error) {
	conds := make([]condition, 0, len(where))
	for k, v := range where {
		t, data, err := bson.MarshalValue(v)
		if err != nil {
			return nil, fmt.Errorf("encode condition %s: %w", k, err)
		}
		conds = append(conds, condition{key: fieldName(k), value: bson.RawValue{Type: t, Value: data}})
	}
	return conds, nil
}

// fieldName maps the "id" column to the document key.
func fieldName(column string) string {
	if column == "id" {
		return "_id"
	}
	return column
}

func matches(doc bson.Raw, conds []condition) bool {
	for _, c := range conds {
		v, err := doc.LookupErr(c.key)
		if err != nil {
			if c.value.Type == bsontype.Null {
				continue
			}
			return false
		}
		if compareRaw(v, c.value) != 0 {
			return false
		}
	}
	return true
}

func isDeleted(doc bson.Raw) bool {
	v, err := doc.LookupErr("deleted_at")
	return err == nil && v.Type != bsontype.Null
}

// compareRaw orders values of the same kind. Missing values sort first and
// numbers compare across BSON integer and double types.
func compareRaw(a, b bson.RawValue) int {
	if a.Type == 0 || a.Type == bsontype.Null {
		if b.Type == 0 || b.Type == bsontype.Null {
			return 0
		}
		return -1
	}
	if b.Type == 0 || b.Type == bsontype.Null {
		return 1
	}

	if af, ok := number(a); ok {
		if bf, ok := number(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}

	if a.Type != b.Type {
		return strings.Compare(a.Type.String(), b.Type.String())
	}
	switch a.Type {
	case bsontype.String:
		return strings.Compare(a.StringValue(), b.StringValue())
	case bsontype.DateTime:
		return cmpInt(a.DateTime(), b.DateTime())
	case bsontype.Boolean:
		ab, bb := a.Boolean(), b.Boolean()
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		}
		return 1
	}
	return bytes.Compare(a.Value, b.Value)
}

func number(v bson.RawValue) (float64, bool) {
	switch v.Type {
	case bsontype.Int32:
		return float64(v.Int32()), true
	case bsontype.Int64:
		return float64(v.Int64()), true
	case bsontype.Double:
		return v.Double(), true
	}
	return 0, false
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
