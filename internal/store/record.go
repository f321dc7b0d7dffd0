package store

import "encoding/json"

// Record is a schemaless attribute map, the unit of storage for every table.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the named attribute as a string, or "" when absent or of a
// different type.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Bool returns the named attribute as a bool.
func (r Record) Bool(key string) bool {
	b, _ := r[key].(bool)
	return b
}

// Int64 returns the named attribute as an int64. Records that passed through
// JSON carry numbers as float64 or json.Number; both are coerced.
func (r Record) Int64(key string) int64 {
	switch v := r[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	default:
		return 0
	}
}
