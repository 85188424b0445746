package shared

import (
	"bytes"
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Properties is an ordered string mapping used for free-form fields on drafts
// and assets. Keys keep their first insertion position; JSON encoding writes
// them back in that order. The zero value is empty and ready to use.
type Properties struct {
	m *orderedmap.OrderedMap[string, string]
}

// NewProperties builds Properties from alternating key/value pairs.
func NewProperties(pairs ...string) Properties {
	var p Properties
	for i := 0; i+1 < len(pairs); i += 2 {
		p.Set(pairs[i], pairs[i+1])
	}
	return p
}

// Set stores value under key, keeping the original position for existing keys.
func (p *Properties) Set(key, value string) {
	if p.m == nil {
		p.m = orderedmap.New[string, string]()
	}
	p.m.Set(key, value)
}

// Get returns the value for key.
func (p Properties) Get(key string) (string, bool) {
	if p.m == nil {
		return "", false
	}
	return p.m.Get(key)
}

// Keys returns keys in insertion order.
func (p Properties) Keys() []string {
	keys := make([]string, 0, p.Len())
	p.Each(func(key, _ string) { keys = append(keys, key) })
	return keys
}

// Len reports the number of entries.
func (p Properties) Len() int {
	if p.m == nil {
		return 0
	}
	return p.m.Len()
}

// Each calls fn for every entry in order.
func (p Properties) Each(fn func(key, value string)) {
	if p.m == nil {
		return
	}
	for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

// MarshalJSON encodes the mapping as a JSON object preserving order.
func (p Properties) MarshalJSON() ([]byte, error) {
	if p.m == nil {
		return []byte("{}"), nil
	}
	return p.m.MarshalJSON()
}

// UnmarshalJSON decodes a JSON object keeping the document order of keys.
// Non-string values are stored using their JSON text.
func (p *Properties) UnmarshalJSON(data []byte) error {
	*p = Properties{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	raw := orderedmap.New[string, json.RawMessage]()
	if err := raw.UnmarshalJSON(data); err != nil {
		return err
	}
	for pair := raw.Oldest(); pair != nil; pair = pair.Next() {
		var s string
		if err := json.Unmarshal(pair.Value, &s); err != nil {
			s = string(pair.Value)
		}
		p.Set(pair.Key, s)
	}
	return nil
}
