package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/tidwall/gjson"
)

// Kind enumerates the dynamic types a Value can hold.
type Kind int

const (
	// KindNull is the absent / JSON null value.
	KindNull Kind = iota
	// KindBool is a boolean.
	KindBool
	// KindNumber is a float64 number.
	KindNumber
	// KindString is a UTF-8 string.
	KindString
	// KindMap is an insertion-ordered string keyed map.
	KindMap
	// KindList is an ordered sequence.
	KindList
)

// String returns the lower case kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Value is the tagged variant used for every piece of dialog memory.
// The zero Value is Null. Map and List payloads are pointers, so copying a
// Value shares the underlying container; use Clone for an independent copy.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	m    *Map
	l    *List
}

// Null returns the null value.
func Null() Value { return Value{} }

// BoolValue wraps a bool.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// NumberValue wraps a float64.
func NumberValue(n float64) Value { return Value{kind: KindNumber, n: n} }

// StringValue wraps a string.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// MapValue wraps a map. A nil map yields an empty map.
func MapValue(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{kind: KindMap, m: m}
}

// ListValue wraps a list. A nil list yields an empty list.
func ListValue(l *List) Value {
	if l == nil {
		l = NewList()
	}
	return Value{kind: KindList, l: l}
}

// Kind returns the dynamic type of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the bool payload.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the numeric payload.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsString returns the string payload.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsMap returns the map payload.
func (v Value) AsMap() (*Map, bool) { return v.m, v.kind == KindMap }

// AsList returns the list payload.
func (v Value) AsList() (*List, bool) { return v.l, v.kind == KindList }

// Truthy implements the truthiness used by trigger conditions: null, false,
// zero and the empty string are falsy, everything else is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindNumber:
		return v.n != 0
	case KindString:
		return v.s != ""
	default:
		return true
	}
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindMap:
		return Value{kind: KindMap, m: v.m.Clone()}
	case KindList:
		return Value{kind: KindList, l: v.l.Clone()}
	default:
		return v
	}
}

// Equal reports deep equality. Map key order is not significant.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindMap:
		return v.m.Equal(o.m)
	case KindList:
		return v.l.Equal(o.l)
	}
	return false
}

// String renders strings verbatim and everything else as JSON.
func (v Value) String() string {
	if v.kind == KindString {
		return v.s
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<%s>", v.kind)
	}
	return string(b)
}

// Any converts v into plain Go values: nil, bool, float64, string,
// map[string]any and []any.
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindMap:
		return v.m.Any()
	case KindList:
		return v.l.Any()
	default:
		return nil
	}
}

// FromAny converts a Go value into a Value. Plain Go maps are converted with
// sorted keys so the result is deterministic. Structs and other unsupported
// types round trip through encoding/json.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case *Map:
		return MapValue(t)
	case *List:
		return ListValue(t)
	case bool:
		return BoolValue(t)
	case string:
		return StringValue(t)
	case float64:
		return NumberValue(t)
	case float32:
		return NumberValue(float64(t))
	case int:
		return NumberValue(float64(t))
	case int8:
		return NumberValue(float64(t))
	case int16:
		return NumberValue(float64(t))
	case int32:
		return NumberValue(float64(t))
	case int64:
		return NumberValue(float64(t))
	case uint:
		return NumberValue(float64(t))
	case uint8:
		return NumberValue(float64(t))
	case uint16:
		return NumberValue(float64(t))
	case uint32:
		return NumberValue(float64(t))
	case uint64:
		return NumberValue(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return StringValue(t.String())
		}
		return NumberValue(f)
	case []string:
		l := NewList()
		for _, s := range t {
			l.Append(StringValue(s))
		}
		return ListValue(l)
	case []any:
		l := NewList()
		for _, e := range t {
			l.Append(FromAny(e))
		}
		return ListValue(l)
	case []Value:
		return ListValue(NewList(t...))
	case map[string]any:
		m := NewMap()
		for _, k := range sortedKeys(t) {
			m.Set(k, FromAny(t[k]))
		}
		return MapValue(m)
	case ConversationAddress:
		return FromAny(map[string]any(t))
	case map[string]string:
		m := NewMap()
		for _, k := range sortedKeys(t) {
			m.Set(k, StringValue(t[k]))
		}
		return MapValue(m)
	}

	rv := reflect.ValueOf(x)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return Null()
	}

	b, err := json.Marshal(x)
	if err != nil {
		return StringValue(fmt.Sprint(x))
	}
	v, err := ParseJSON(b)
	if err != nil {
		return StringValue(fmt.Sprint(x))
	}
	return v
}

// ParseJSON decodes a JSON document into a Value keeping object key order.
func ParseJSON(data []byte) (Value, error) {
	if !gjson.ValidBytes(data) {
		return Null(), errors.New("invalid json")
	}
	return fromResult(gjson.ParseBytes(data)), nil
}

func fromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.False:
		return BoolValue(false)
	case gjson.True:
		return BoolValue(true)
	case gjson.Number:
		return NumberValue(r.Num)
	case gjson.String:
		return StringValue(r.Str)
	case gjson.JSON:
		if r.IsArray() {
			l := NewList()
			r.ForEach(func(_, e gjson.Result) bool {
				l.Append(fromResult(e))
				return true
			})
			return ListValue(l)
		}
		m := NewMap()
		r.ForEach(func(k, e gjson.Result) bool {
			m.Set(k.Str, fromResult(e))
			return true
		})
		return MapValue(m)
	default:
		return Null()
	}
}

// MarshalJSON encodes v preserving map key order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes v preserving object key order.
func (v *Value) UnmarshalJSON(data []byte) error {
	nv, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*v = nv
	return nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return fmt.Errorf("unsupported number %v", v.n)
		}
		buf.WriteString(strconv.FormatFloat(v.n, 'f', -1, 64))
	case KindString:
		b, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindMap:
		return v.m.encode(buf)
	case KindList:
		return v.l.encode(buf)
	}
	return nil
}
