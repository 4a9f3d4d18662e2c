// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// NestedDataKey is the container legacy rows use to hold their fields.
const NestedDataKey = "data"

// Record is a row as returned by the entity store.
//
// Legacy rows keep their fields under Fields["data"]; Normalize lifts them to
// the top level so readers never need to know which shape a row was stored in.
type Record struct {
	ID     string
	Fields map[string]any
}

// Normalize returns a copy of r where every field found only in the nested
// data container is promoted to the top level. Direct fields win over nested
// ones. The container itself is kept so writes can be traced back.
func Normalize(r Record) Record {
	out := Record{ID: r.ID, Fields: make(map[string]any, len(r.Fields))}
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	if nested, ok := r.Fields[NestedDataKey].(map[string]any); ok {
		for k, v := range nested {
			if isEmpty(out.Fields[k]) && !isEmpty(v) {
				out.Fields[k] = v
			}
		}
	}
	if out.ID == "" {
		out.ID = out.String(FieldID)
	}
	return out
}

// Has reports whether field carries a non-empty value.
func (r Record) Has(field string) bool {
	return !isEmpty(r.Fields[field])
}

// String returns field as a string, or "" when absent.
func (r Record) String(field string) string {
	return stringify(r.Fields[field])
}

// Strings returns a list-valued field. Non-list values yield nil.
func (r Record) Strings(field string) []string {
	switch v := r.Fields[field].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, stringify(item))
		}
		return out
	default:
		return nil
	}
}

// Float returns a numeric field; ok is false when the field is absent or not numeric.
func (r Record) Float(field string) (float64, bool) {
	switch v := r.Fields[field].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	default:
		return false
	}
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprint(x)
	}
}
