package dbtypes

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON stores a raw JSON document in a jsonb (Postgres) or text (SQLite) column.
// Values are written as strings so the simple query protocol never sends bytea.
type JSON json.RawMessage

func (j *JSON) Scan(src any) error {
	if src == nil {
		*j = nil
		return nil
	}

	switch v := src.(type) {
	case string:
		*j = JSON(v)
	case []byte:
		*j = JSON(bytes.Clone(v))
	default:
		return fmt.Errorf("JSON: unsupported Scan type %T", src)
	}
	return nil
}

func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	if !json.Valid(j) {
		return nil, fmt.Errorf("JSON: invalid document")
	}
	return string(j), nil
}

// MarshalJSON keeps the document verbatim when the model is serialized.
func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// GormDataType lets AutoMigrate pick a column type on either dialect.
func (JSON) GormDataType() string {
	return "json"
}
