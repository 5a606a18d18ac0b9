package shared

import "encoding/json"

// Optional distinguishes a JSON field that was absent from one that was
// explicitly null. Set is true once the field appeared in the payload;
// Value stays nil for an explicit null.
type Optional[T any] struct {
	Value *T
	Set   bool
}

// UnmarshalJSON marks the field as set and decodes the value. A JSON null
// leaves Value nil.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// MarshalJSON encodes the wrapped value, emitting null when unset or nil.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}
