package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// PropertySet is an insertion-ordered set of property values supplied with a
// mutation request.
type PropertySet struct {
	keys   []string
	values map[string]any
}

// NewPropertySet returns an empty set.
func NewPropertySet() *PropertySet {
	return &PropertySet{values: make(map[string]any)}
}

// PropertySetOf builds a set from alternating key/value arguments.
func PropertySetOf(kv ...any) *PropertySet {
	p := NewPropertySet()
	for i := 0; i+1 < len(kv); i += 2 {
		p.Set(fmt.Sprint(kv[i]), kv[i+1])
	}
	return p
}

// Set assigns value to key, keeping the position of an existing key.
func (p *PropertySet) Set(key string, value any) {
	if p.values == nil {
		p.values = make(map[string]any)
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

func (p *PropertySet) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p.values[key]
	return v, ok
}

// Delete removes key from the set.
func (p *PropertySet) Delete(key string) {
	if p == nil {
		return
	}
	if _, ok := p.values[key]; !ok {
		return
	}
	delete(p.values, key)
	p.keys = slices.DeleteFunc(p.keys, func(k string) bool { return k == key })
}

// Keys returns the keys in insertion order.
func (p *PropertySet) Keys() []string {
	if p == nil {
		return nil
	}
	return slices.Clone(p.keys)
}

func (p *PropertySet) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Map returns a copy of the set as a plain map.
func (p *PropertySet) Map() map[string]any {
	m := make(map[string]any, p.Len())
	if p == nil {
		return m
	}
	for _, k := range p.keys {
		m[k] = p.values[k]
	}
	return m
}

// ContentHash hashes the values of keys in this set. The result does not depend
// on insertion order or on the order of keys.
func (p *PropertySet) ContentHash(keys []string) uint64 {
	var values map[string]any
	if p != nil {
		values = p.values
	}
	return HashProperties(values, keys)
}

// HashProperties hashes props restricted to keys. Keys missing from props hash
// as JSON null.
func HashProperties(props map[string]any, keys []string) uint64 {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	h := xxhash.New()
	for _, k := range sorted {
		_, _ = h.WriteString(k)
		_, _ = h.Write([]byte{0})
		encoded, err := json.Marshal(props[k])
		if err != nil {
			encoded = []byte(fmt.Sprintf("%v", props[k]))
		}
		_, _ = h.Write(encoded)
		_, _ = h.Write([]byte{0xff})
	}
	return h.Sum64()
}

// UnmarshalJSON decodes a JSON object keeping the order of its keys.
func (p *PropertySet) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("property set must be a JSON object")
	}

	p.keys = nil
	p.values = make(map[string]any)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decoding %q: %w", key, err)
		}
		p.Set(key, value)
	}
	_, err = dec.Token()
	return err
}

// MarshalJSON encodes the set as a JSON object in insertion order.
func (p *PropertySet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, fmt.Errorf("encoding %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
