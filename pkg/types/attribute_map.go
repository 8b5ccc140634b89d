package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
)

// AttributeValue holds one product attribute or dimension value. Exactly one of
// the fields is set.
type AttributeValue struct {
	String *string
	Number *float64
	Bool   *bool
}

// StringAttr builds a string attribute value.
func StringAttr(v string) AttributeValue { return AttributeValue{String: &v} }

// NumberAttr builds a numeric attribute value.
func NumberAttr(v float64) AttributeValue { return AttributeValue{Number: &v} }

// BoolAttr builds a boolean attribute value.
func BoolAttr(v bool) AttributeValue { return AttributeValue{Bool: &v} }

// MarshalJSON encodes the populated field as a bare JSON scalar.
func (v AttributeValue) MarshalJSON() ([]byte, error) {
	switch {
	case v.String != nil:
		return json.Marshal(*v.String)
	case v.Number != nil:
		return json.Marshal(*v.Number)
	case v.Bool != nil:
		return json.Marshal(*v.Bool)
	}
	return nil, fmt.Errorf("attribute value is empty")
}

// UnmarshalJSON accepts strings, numbers and booleans; anything else is rejected.
func (v *AttributeValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch typed := raw.(type) {
	case string:
		*v = StringAttr(typed)
	case float64:
		*v = NumberAttr(typed)
	case bool:
		*v = BoolAttr(typed)
	default:
		return fmt.Errorf("attribute value must be a string, number or boolean, got %T", raw)
	}
	return nil
}

// AttributeMap is a typed attribute/dimension map attached to products and order lines.
type AttributeMap map[string]AttributeValue

// Keys returns the attribute names in sorted order.
func (m AttributeMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Value stores the map as JSON.
func (m AttributeMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	payload, err := json.Marshal(map[string]AttributeValue(m))
	if err != nil {
		return nil, fmt.Errorf("attribute map: marshal %w", err)
	}
	return string(payload), nil
}

// Scan decodes the JSON written by Value.
func (m *AttributeMap) Scan(value any) error {
	if value == nil {
		*m = AttributeMap{}
		return nil
	}
	raw, ok := toBytes(value)
	if !ok {
		return fmt.Errorf("attribute map: unsupported scan type %T", value)
	}
	decoded := map[string]AttributeValue{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("attribute map: decode %w", err)
	}
	*m = decoded
	return nil
}
