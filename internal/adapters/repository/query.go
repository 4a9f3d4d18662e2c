package repository

import (
	"fmt"
	"regexp"
)

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateQuery checks the parts of a query SQL adapters splice into paths.
func ValidateQuery(q ListQuery) error {
	if q.Limit <= 0 || q.Offset < 0 {
		return fmt.Errorf("%w: limit %d offset %d", ErrInvalid, q.Limit, q.Offset)
	}
	if q.SortKey != "" && !fieldName.MatchString(q.SortKey) {
		return fmt.Errorf("%w: sort key %q", ErrInvalid, q.SortKey)
	}
	return ValidateWhere(q.Where)
}

// ValidateWhere rejects filter keys that are not plain field names.
func ValidateWhere(where map[string]any) error {
	for k := range where {
		if !fieldName.MatchString(k) {
			return fmt.Errorf("%w: filter field %q", ErrInvalid, k)
		}
	}
	return nil
}
