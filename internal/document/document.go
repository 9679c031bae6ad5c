// Package document provides an order-preserving model of parsed JSON documents.
// Cloud assembly files (tree.json, *.template.json) are decoded into this model so that
// searches over them visit keys in the order they appear on disk.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tidwall/jsonc"
)

// Value is one of *Mapping, Sequence or Scalar.
type Value interface {
	isValue()
}

// Entry is a single key/value pair of a Mapping.
type Entry struct {
	Key   string
	Value Value
}

// Mapping is a JSON object with its keys kept in document order.
type Mapping struct {
	entries []Entry
	index   map[string]int
}

// Sequence is a JSON array.
type Sequence []Value

// Scalar is a JSON string, number, boolean or null.
type Scalar struct {
	v any
}

func (*Mapping) isValue() {}
func (Sequence) isValue() {}
func (Scalar) isValue()   {}

// NewMapping creates an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{index: make(map[string]int)}
}

// Set adds key to the mapping. A repeated key keeps its first position and takes the new value.
func (m *Mapping) Set(key string, v Value) {
	if i, ok := m.index[key]; ok {
		m.entries[i].Value = v
		return
	}
	m.index[key] = len(m.entries)
	m.entries = append(m.entries, Entry{Key: key, Value: v})
}

// Entries returns the mapping's entries in document order.
func (m *Mapping) Entries() []Entry {
	return m.entries
}

// Len returns the number of keys.
func (m *Mapping) Len() int {
	return len(m.entries)
}

// Keys returns the keys in document order.
func (m *Mapping) Keys() []string {
	keys := make([]string, len(m.entries))
	for i, e := range m.entries {
		keys[i] = e.Key
	}
	return keys
}

// Get returns the value stored under key.
func (m *Mapping) Get(key string) (Value, bool) {
	i, ok := m.index[key]
	if !ok {
		return nil, false
	}
	return m.entries[i].Value, true
}

// String returns the value under key when it is present and a JSON string.
func (m *Mapping) String(key string) (string, bool) {
	v, ok := m.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(Scalar)
	if !ok {
		return "", false
	}
	return s.AsString()
}

// Mapping returns the value under key when it is present and a JSON object.
func (m *Mapping) Mapping(key string) (*Mapping, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}
	child, ok := v.(*Mapping)
	return child, ok
}

// NewScalar wraps a string, json.Number, bool or nil.
func NewScalar(v any) Scalar {
	return Scalar{v: v}
}

// AsString reports the scalar's value if it is a string.
func (s Scalar) AsString() (string, bool) {
	str, ok := s.v.(string)
	return str, ok
}

// IsNull reports whether the scalar is JSON null.
func (s Scalar) IsNull() bool {
	return s.v == nil
}

// Raw returns the underlying Go value.
func (s Scalar) Raw() any {
	return s.v
}

// Parse decodes a JSON document. Comments and trailing commas are tolerated.
func Parse(data []byte) (Value, error) {
	return Decode(bytes.NewReader(jsonc.ToJSON(data)))
}

// Decode reads exactly one JSON value from r.
func Decode(r io.Reader) (Value, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after top-level value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeMapping(dec)
		case '[':
			return decodeSequence(dec)
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	default:
		return Scalar{v: t}, nil
	}
}

func decodeMapping(dec *json.Decoder) (*Mapping, error) {
	m := NewMapping()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to read object key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("object key is %T, not string", tok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		m.Set(key, v)
	}
	// closing '}'
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to close object: %w", err)
	}
	return m, nil
}

func decodeSequence(dec *json.Decoder) (Sequence, error) {
	seq := Sequence{}
	for dec.More() {
		v, err := decodeValue(dec)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", len(seq), err)
		}
		seq = append(seq, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to close array: %w", err)
	}
	return seq, nil
}
