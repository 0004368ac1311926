package criteria

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Option is a value that may be absent. The zero Option is absent.
type Option[T any] struct {
	value T
	set   bool
}

// Some returns a present Option holding v.
func Some[T any](v T) Option[T] {
	return Option[T]{value: v, set: true}
}

// Get returns the value and whether it is present.
func (o Option[T]) Get() (T, bool) {
	return o.value, o.set
}

// IsSet reports whether the Option holds a value.
func (o Option[T]) IsSet() bool {
	return o.set
}

// IsZero reports whether the Option is absent, for omitzero.
func (o Option[T]) IsZero() bool {
	return !o.set
}

// UnmarshalJSON treats null as absent.
func (o *Option[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Option[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// MarshalJSON writes null for an absent Option.
func (o Option[T]) MarshalJSON() ([]byte, error) {
	if !o.set {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalYAML treats null as absent.
func (o *Option[T]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*o = Option[T]{}
		return nil
	}
	var v T
	if err := node.Decode(&v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}
