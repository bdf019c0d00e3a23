package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONStringSlice adapts []string to a jsonb column.
type JSONStringSlice []string

func (s JSONStringSlice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal([]string(s))
}

func (s *JSONStringSlice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := asBytes(value)
	if !ok {
		return fmt.Errorf("unsupported Scan source for JSONStringSlice: %T", value)
	}
	return json.Unmarshal(bytes, s)
}

// JSONRaw stores an arbitrary pre-marshaled JSON document (used for the
// arbiter's conflict/fact-table records, whose Go-side shape lives in
// market.Conflict/market.FactEntry).
type JSONRaw []byte

func (r JSONRaw) Value() (driver.Value, error) {
	if len(r) == 0 {
		return "null", nil
	}
	return []byte(r), nil
}

func (r *JSONRaw) Scan(value any) error {
	if value == nil {
		*r = nil
		return nil
	}
	bytes, ok := asBytes(value)
	if !ok {
		return fmt.Errorf("unsupported Scan source for JSONRaw: %T", value)
	}
	*r = bytes
	return nil
}

func asBytes(value any) ([]byte, bool) {
	switch v := value.(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	default:
		return nil, false
	}
}
