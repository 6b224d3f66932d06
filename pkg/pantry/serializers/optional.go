package serializers

import (
	"bytes"
	"encoding/json"
)

// Optional records whether a JSON key was present in a payload.
// An absent key leaves Set false; an explicit null sets both Set and Null.
type Optional[T any] struct {
	Value T
	Set   bool
	Null  bool
}

// Some returns a present Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// UnmarshalJSON is only called by encoding/json when the key is present.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Null = true
		var zero T
		o.Value = zero
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

// Or returns the value if present and non-null, otherwise fallback.
func (o Optional[T]) Or(fallback T) T {
	if o.Set && !o.Null {
		return o.Value
	}
	return fallback
}
