package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// ValueType tags the encoded form of a fact value.
type ValueType string

// Supported value types.
const (
	ValueString ValueType = "string"
	ValueBool   ValueType = "bool"
	ValueInt    ValueType = "int"
	ValueFloat  ValueType = "float"
	ValueTime   ValueType = "time"
	ValueRef    ValueType = "ref"
)

// NormalizeValue converts v into one of the canonical value representations:
// string, bool, int64, float64, time.Time (UTC) or EntityID (a reference to
// another entity, possibly a placeholder).
func NormalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, fmt.Errorf("nil value")
	case string, bool, int64, EntityID:
		return x, nil
	case float64:
		return finite(x)
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return nil, fmt.Errorf("value %d overflows int64", x)
		}
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("value %d overflows int64", x)
		}
		return int64(x), nil
	case float32:
		return finite(float64(x))
	case time.Time:
		return x.UTC(), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func finite(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite float %v", f)
	}
	return f, nil
}

func typeOf(v any) ValueType {
	switch v.(type) {
	case string:
		return ValueString
	case bool:
		return ValueBool
	case int64:
		return ValueInt
	case float64:
		return ValueFloat
	case time.Time:
		return ValueTime
	case EntityID:
		return ValueRef
	default:
		return ""
	}
}

// valueKey returns a comparable key for a normalized value. References and
// integers share a key space so that a variable bound to an entity can join
// against a ref-typed value.
func valueKey(v any) string {
	switch x := v.(type) {
	case EntityID:
		return fmt.Sprintf("i:%d", int64(x))
	case int64:
		return fmt.Sprintf("i:%d", x)
	case time.Time:
		return "t:" + x.UTC().Format(time.RFC3339Nano)
	case string:
		return "s:" + x
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}

// ValuesEqual compares two values after normalization.
func ValuesEqual(a, b any) bool {
	na, err := NormalizeValue(a)
	if err != nil {
		return false
	}
	nb, err := NormalizeValue(b)
	if err != nil {
		return false
	}
	return valueKey(na) == valueKey(nb)
}

type encodedValue struct {
	Type  ValueType       `json:"t"`
	Value json.RawMessage `json:"v"`
}

// EncodeValue serializes a normalized value with its type tag so backends can
// round-trip values without losing integer or reference typing.
func EncodeValue(v any) ([]byte, error) {
	nv, err := NormalizeValue(v)
	if err != nil {
		return nil, err
	}
	var raw any = nv
	if ref, ok := nv.(EntityID); ok {
		raw = int64(ref)
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return json.Marshal(encodedValue{Type: typeOf(nv), Value: payload})
}

// DecodeValue reverses EncodeValue.
func DecodeValue(data []byte) (any, error) {
	var enc encodedValue
	if err := json.Unmarshal(data, &enc); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	switch enc.Type {
	case ValueString:
		var s string
		err := json.Unmarshal(enc.Value, &s)
		return s, err
	case ValueBool:
		var b bool
		err := json.Unmarshal(enc.Value, &b)
		return b, err
	case ValueInt:
		var i int64
		err := json.Unmarshal(enc.Value, &i)
		return i, err
	case ValueFloat:
		var f float64
		err := json.Unmarshal(enc.Value, &f)
		return f, err
	case ValueTime:
		var t time.Time
		err := json.Unmarshal(enc.Value, &t)
		return t.UTC(), err
	case ValueRef:
		var i int64
		err := json.Unmarshal(enc.Value, &i)
		return EntityID(i), err
	default:
		return nil, fmt.Errorf("decode value: unknown type %q", enc.Type)
	}
}
