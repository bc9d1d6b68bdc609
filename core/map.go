package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Map is an insertion-ordered string keyed map of Values. It is not safe for
// concurrent use; a turn owns its memory exclusively.
type Map struct {
	keys   []string
	values map[string]Value
}

// NewMap creates an empty map.
func NewMap() *Map {
	return &Map{values: map[string]Value{}}
}

// MapFrom converts a plain Go map into a Map with sorted keys.
func MapFrom(src map[string]any) *Map {
	m, _ := FromAny(src).AsMap()
	if m == nil {
		return NewMap()
	}
	return m
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns a copy of the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return Null(), false
	}
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Set stores v under key. New keys are appended, existing keys keep their position.
func (m *Map) Set(key string, v Value) {
	if m.values == nil {
		m.values = map[string]Value{}
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Delete removes key and reports whether it was present.
func (m *Map) Delete(key string) bool {
	if m == nil {
		return false
	}
	if _, ok := m.values[key]; !ok {
		return false
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return true
}

// Range calls fn for each entry in order until fn returns false.
func (m *Map) Range(fn func(key string, v Value) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

// Clone returns a deep copy.
func (m *Map) Clone() *Map {
	if m == nil {
		return NewMap()
	}
	out := &Map{keys: make([]string, len(m.keys)), values: make(map[string]Value, len(m.values))}
	copy(out.keys, m.keys)
	for k, v := range m.values {
		out.values[k] = v.Clone()
	}
	return out
}

// Equal reports deep equality ignoring key order.
func (m *Map) Equal(o *Map) bool {
	if m.Len() != o.Len() {
		return false
	}
	for _, k := range m.Keys() {
		a, _ := m.Get(k)
		b, ok := o.Get(k)
		if !ok || !a.Equal(b) {
			return false
		}
	}
	return true
}

// Any converts the map into map[string]any.
func (m *Map) Any() map[string]any {
	out := make(map[string]any, m.Len())
	m.Range(func(k string, v Value) bool {
		out[k] = v.Any()
		return true
	})
	return out
}

// MarshalJSON encodes the map preserving key order.
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := m.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving key order.
func (m *Map) UnmarshalJSON(data []byte) error {
	v, err := ParseJSON(data)
	if err != nil {
		return err
	}
	switch v.Kind() {
	case KindNull:
		*m = Map{values: map[string]Value{}}
		return nil
	case KindMap:
		*m = *v.m
		return nil
	default:
		return fmt.Errorf("cannot decode %s into map", v.Kind())
	}
}

func (m *Map) encode(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	var err error
	i := 0
	m.Range(func(k string, v Value) bool {
		if i > 0 {
			buf.WriteByte(',')
		}
		i++
		kb, kerr := json.Marshal(k)
		if kerr != nil {
			err = kerr
			return false
		}
		buf.Write(kb)
		buf.WriteByte(':')
		if err = v.encode(buf); err != nil {
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	buf.WriteByte('}')
	return nil
}

// List is an ordered sequence of Values.
type List struct {
	items []Value
}

// NewList creates a list holding items.
func NewList(items ...Value) *List {
	l := &List{items: make([]Value, 0, len(items))}
	l.items = append(l.items, items...)
	return l
}

// Len returns the number of items.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.items)
}

// At returns the item at index i.
func (l *List) At(i int) (Value, bool) {
	if l == nil || i < 0 || i >= len(l.items) {
		return Null(), false
	}
	return l.items[i], true
}

// Set replaces the item at i. Setting i == Len appends.
func (l *List) Set(i int, v Value) bool {
	switch {
	case i >= 0 && i < len(l.items):
		l.items[i] = v
		return true
	case i == len(l.items):
		l.items = append(l.items, v)
		return true
	default:
		return false
	}
}

// Append adds v to the end of the list.
func (l *List) Append(v ...Value) {
	l.items = append(l.items, v...)
}

// RemoveAt deletes the item at i.
func (l *List) RemoveAt(i int) bool {
	if l == nil || i < 0 || i >= len(l.items) {
		return false
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	return true
}

// Items returns a shallow copy of the items.
func (l *List) Items() []Value {
	if l == nil {
		return nil
	}
	out := make([]Value, len(l.items))
	copy(out, l.items)
	return out
}

// Clone returns a deep copy.
func (l *List) Clone() *List {
	if l == nil {
		return NewList()
	}
	out := &List{items: make([]Value, len(l.items))}
	for i, v := range l.items {
		out.items[i] = v.Clone()
	}
	return out
}

// Equal reports deep equality.
func (l *List) Equal(o *List) bool {
	if l.Len() != o.Len() {
		return false
	}
	for i := range l.Len() {
		if !l.items[i].Equal(o.items[i]) {
			return false
		}
	}
	return true
}

// Any converts the list into []any.
func (l *List) Any() []any {
	out := make([]any, 0, l.Len())
	for _, v := range l.Items() {
		out = append(out, v.Any())
	}
	return out
}

// MarshalJSON encodes the list.
func (l *List) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := l.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (l *List) encode(buf *bytes.Buffer) error {
	buf.WriteByte('[')
	for i, v := range l.Items() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := v.encode(buf); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
