package core

import (
	"encoding/json"
	"fmt"
)

// MetaKind discriminates the variants of a MetaValue.
type MetaKind int

// MetaValue kinds.
const (
	MetaKindNull MetaKind = iota
	MetaKindString
	MetaKindInt
	MetaKindFloat
	MetaKindBool
	MetaKindList
	MetaKindMap
)

// MetaValue is a tagged union over the primitive shapes that event and
// pattern metadata can take. It preserves the "any shape" flexibility
// of a JSON blob while keeping the variants explicit.
type MetaValue struct {
	kind MetaKind
	str  string
	num  float64
	b    bool
	list []MetaValue
	m    Meta
}

// Meta is an open-ended key/value bag of structured metadata.
type Meta map[string]MetaValue

// MetaString wraps a string value.
func MetaString(s string) MetaValue { return MetaValue{kind: MetaKindString, str: s} }

// MetaInt wraps an integer value.
func MetaInt(i int64) MetaValue { return MetaValue{kind: MetaKindInt, num: float64(i)} }

// MetaFloat wraps a floating-point value.
func MetaFloat(f float64) MetaValue { return MetaValue{kind: MetaKindFloat, num: f} }

// MetaBool wraps a boolean value.
func MetaBool(b bool) MetaValue { return MetaValue{kind: MetaKindBool, b: b} }

// MetaList wraps a list of values.
func MetaList(vs ...MetaValue) MetaValue { return MetaValue{kind: MetaKindList, list: vs} }

// MetaMap wraps a nested metadata map.
func MetaMap(m Meta) MetaValue { return MetaValue{kind: MetaKindMap, m: m} }

// Kind returns the variant stored in this value.
func (v MetaValue) Kind() MetaKind { return v.kind }

// String returns the string value and whether the variant is a string.
func (v MetaValue) String() (string, bool) { return v.str, v.kind == MetaKindString }

// Int returns the value as an int64 and whether the variant is numeric.
func (v MetaValue) Int() (int64, bool) {
	if v.kind != MetaKindInt && v.kind != MetaKindFloat {
		return 0, false
	}
	return int64(v.num), true
}

// Float returns the value as a float64 and whether the variant is numeric.
func (v MetaValue) Float() (float64, bool) {
	if v.kind != MetaKindInt && v.kind != MetaKindFloat {
		return 0, false
	}
	return v.num, true
}

// Bool returns the boolean value and whether the variant is a bool.
func (v MetaValue) Bool() (bool, bool) { return v.b, v.kind == MetaKindBool }

// List returns the list value and whether the variant is a list.
func (v MetaValue) List() ([]MetaValue, bool) { return v.list, v.kind == MetaKindList }

// Map returns the nested map and whether the variant is a map.
func (v MetaValue) Map() (Meta, bool) { return v.m, v.kind == MetaKindMap }

// MarshalJSON serializes the value as its plain JSON equivalent.
func (v MetaValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case MetaKindNull:
		return []byte("null"), nil
	case MetaKindString:
		return json.Marshal(v.str)
	case MetaKindInt:
		return json.Marshal(int64(v.num))
	case MetaKindFloat:
		return json.Marshal(v.num)
	case MetaKindBool:
		return json.Marshal(v.b)
	case MetaKindList:
		return json.Marshal(v.list)
	case MetaKindMap:
		return json.Marshal(v.m)
	default:
		return nil, fmt.Errorf("unknown meta kind %d", v.kind)
	}
}

// UnmarshalJSON decodes plain JSON into the matching variant. JSON
// numbers without a fractional part decode as the int variant.
func (v *MetaValue) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = fromInterface(raw)
	return nil
}

func fromInterface(raw interface{}) MetaValue {
	switch val := raw.(type) {
	case nil:
		return MetaValue{}
	case string:
		return MetaString(val)
	case float64:
		if val == float64(int64(val)) {
			return MetaInt(int64(val))
		}
		return MetaFloat(val)
	case bool:
		return MetaBool(val)
	case []interface{}:
		list := make([]MetaValue, len(val))
		for i, item := range val {
			list[i] = fromInterface(item)
		}
		return MetaValue{kind: MetaKindList, list: list}
	case map[string]interface{}:
		m := make(Meta, len(val))
		for k, item := range val {
			m[k] = fromInterface(item)
		}
		return MetaMap(m)
	default:
		return MetaString(fmt.Sprintf("%v", val))
	}
}
