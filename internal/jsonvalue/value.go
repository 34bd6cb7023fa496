// Package jsonvalue models an arbitrary JSON document as a typed tree that
// keeps object members in document order.
package jsonvalue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Kind identifies the JSON type held by a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Member is a single key/value pair of an object.
type Member struct {
	Key   string
	Value Value
}

// Value is one node of a decoded JSON document. The zero Value is null.
type Value struct {
	kind    Kind
	boolean bool
	number  json.Number
	str     string
	items   []Value
	members []Member
}

// NewString returns a string value.
func NewString(s string) Value { return Value{kind: String, str: s} }

// NewNumber returns a number value.
func NewNumber(n json.Number) Value { return Value{kind: Number, number: n} }

// NewBool returns a boolean value.
func NewBool(b bool) Value { return Value{kind: Bool, boolean: b} }

// NewArray returns an array value.
func NewArray(items ...Value) Value { return Value{kind: Array, items: items} }

// NewObject returns an object value with members in the given order.
func NewObject(members ...Member) Value { return Value{kind: Object, members: members} }

func (v Value) Kind() Kind { return v.kind }

// Str returns the string payload and whether v is a string.
func (v Value) Str() (string, bool) {
	return v.str, v.kind == String
}

// Items returns array elements; nil for non-arrays.
func (v Value) Items() []Value {
	if v.kind != Array {
		return nil
	}
	return v.items
}

// Members returns object members in document order; nil for non-objects.
func (v Value) Members() []Member {
	if v.kind != Object {
		return nil
	}
	return v.members
}

// Get returns the first member named key. Keys are matched exactly.
func (v Value) Get(key string) (Value, bool) {
	for _, m := range v.Members() {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// Truthy mirrors the usual "empty means false" convention: null, false, 0,
// "", [] and {} are falsy.
func (v Value) Truthy() bool {
	switch v.kind {
	case Bool:
		return v.boolean
	case Number:
		f, err := v.number.Float64()
		return err != nil || f != 0
	case String:
		return v.str != ""
	case Array:
		return len(v.items) > 0
	case Object:
		return len(v.members) > 0
	default:
		return false
	}
}

// Walk visits v and every nested value depth first, objects in member order.
// visit receives the member key for values that sit directly inside an object
// and an empty key otherwise.
func (v Value) Walk(visit func(key string, value Value)) {
	v.walk("", visit)
}

func (v Value) walk(key string, visit func(string, Value)) {
	visit(key, v)
	switch v.kind {
	case Array:
		for _, item := range v.items {
			item.walk("", visit)
		}
	case Object:
		for _, m := range v.members {
			m.Value.walk(m.Key, visit)
		}
	}
}

// MarshalJSON encodes v preserving member order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		if v.boolean {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Number:
		buf.WriteString(v.number.String())
	case String:
		raw, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(raw)
	case Array:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, m := range v.members {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(m.Key)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := m.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("encode json value: unknown kind %d", int(v.kind))
	}
	return nil
}

// Decode reads exactly one JSON document from r.
func Decode(r io.Reader) (Value, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	value, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			return Value{}, errors.New("decode json value: trailing data after document")
		}
		return Value{}, fmt.Errorf("decode json value: %w", err)
	}

	return value, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, fmt.Errorf("decode json value: %w", err)
	}

	switch t := tok.(type) {
	case nil:
		return Value{}, nil
	case bool:
		return NewBool(t), nil
	case json.Number:
		return NewNumber(t), nil
	case string:
		return NewString(t), nil
	case json.Delim:
		switch t {
		case '[':
			items := make([]Value, 0)
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, fmt.Errorf("decode json value: %w", err)
			}
			return NewArray(items...), nil
		case '{':
			members := make([]Member, 0)
			seen := make(map[string]int)
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, fmt.Errorf("decode json value: %w", err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("decode json value: unexpected object key %v", keyTok)
				}
				value, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				// A repeated key keeps its first position and takes the last value.
				if idx, dup := seen[key]; dup {
					members[idx].Value = value
					continue
				}
				seen[key] = len(members)
				members = append(members, Member{Key: key, Value: value})
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, fmt.Errorf("decode json value: %w", err)
			}
			return NewObject(members...), nil
		}
	}

	return Value{}, fmt.Errorf("decode json value: unexpected token %v", tok)
}
