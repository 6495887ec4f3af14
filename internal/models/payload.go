package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// Payload is an opaque JSON document stored as jsonb.
type Payload json.RawMessage

var errPayloadNotObject = errors.New("payload must be a JSON object")

// NewPayload validates raw as a JSON object and returns a compacted copy.
func NewPayload(raw []byte) (Payload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, errPayloadNotObject
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	return Payload(buf.Bytes()), nil
}

func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	if p == nil {
		return errors.New("models.Payload: UnmarshalJSON on nil pointer")
	}
	*p = append((*p)[0:0], data...)
	return nil
}

// Value implements driver.Valuer. jsonb accepts the text form.
func (p Payload) Value() (driver.Value, error) {
	if len(p) == 0 {
		return nil, nil
	}
	return string(p), nil
}

// Scan implements sql.Scanner.
func (p *Payload) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*p = nil
	case []byte:
		*p = append((*p)[0:0], v...)
	case string:
		*p = Payload(v)
	default:
		return fmt.Errorf("models.Payload: cannot scan %T", value)
	}
	return nil
}

func (Payload) GormDataType() string { return "jsonb" }
