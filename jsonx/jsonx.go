// Package jsonx centralizes resource (de)serialization so every other
// package imports jsonx instead of reaching for encoding/json or
// goccy/go-json directly.
package jsonx

import (
	"github.com/goccy/go-json"
)

// Marshal encodes v without HTML-escaping, matching the teacher's
// convention for resource bodies that may legitimately contain "<", "&", ">".
func Marshal(v interface{}) ([]byte, error) {
	return json.MarshalWithOption(v, json.DisableHTMLEscape())
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// Clone deep-copies a resource by round-tripping it through JSON.
func Clone(m map[string]interface{}) (map[string]interface{}, error) {
	data, err := Marshal(m)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
