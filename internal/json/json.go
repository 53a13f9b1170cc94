// Package json exposes the subset of the encoding/json surface used by the
// rest of the application, backed by the sonic implementation.
package json

import (
	"github.com/bytedance/sonic"
)

// Marshal encodes v as JSON.
func Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

// MarshalIndent encodes v as indented JSON for human-edited files.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return sonic.ConfigDefault.MarshalIndent(v, prefix, indent)
}

// Unmarshal decodes JSON data into v.
func Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}
