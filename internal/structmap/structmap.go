// Package structmap maps structs to SQL columns using "db" tags.
package structmap

import (
	"reflect"
	"sync"
)

// field is a tagged field reached through a chain of embedded structs.
type field struct {
	index  []int
	column string
}

var cache sync.Map // map[reflect.Type][]field

// fieldsOf returns the tagged fields of t in declaration order, embedded
// structs flattened in place. Results are cached per type.
func fieldsOf(t reflect.Type) []field {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := cache.Load(t); ok {
		return cached.([]field)
	}

	var fields []field
	if t.Kind() == reflect.Struct {
		fields = collect(t, nil)
	}
	cache.Store(t, fields)
	return fields
}

func collect(t reflect.Type, prefix []int) []field {
	var fields []field
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("db")
		if tag == "-" {
			continue
		}

		index := append(append([]int(nil), prefix...), i)
		if f.Anonymous && tag == "" {
			ft := f.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				fields = append(fields, collect(ft, index)...)
				continue
			}
		}
		if tag == "" || !f.IsExported() {
			continue
		}
		fields = append(fields, field{index: index, column: tag})
	}
	return fields
}

// Columns returns the column names of v's type.
//
//	structmap.Columns(&Order{}) // ["id", "created_at", "updated_at", "deleted_at", "customer_id", ...]
func Columns(v any) []string {
	fields := fieldsOf(reflect.TypeOf(v))
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.column
	}
	return cols
}

// ToMap returns v's tagged field values keyed by column. Fields behind a nil
// embedded pointer are left out.
func ToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	fields := fieldsOf(rv.Type())
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		fv, err := rv.FieldByIndexErr(f.index)
		if err != nil {
			continue
		}
		out[f.column] = fv.Interface()
	}
	return out
}
