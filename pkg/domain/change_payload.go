package domain

import (
	"bytes"
	"encoding/json"
)

// ChangePayload is the JSON image of a record on one side of a Change. The
// zero value is undefined: a create has no before image and a delete no after
// image.
type ChangePayload struct {
	defined bool
	raw     json.RawMessage
}

// NewChangePayload wraps a copy of raw. A nil raw is defined but empty.
func NewChangePayload(raw json.RawMessage) ChangePayload {
	return ChangePayload{defined: true, raw: bytes.Clone(raw)}
}

// NewChangePayloadFromValue marshals value into a payload.
func NewChangePayloadFromValue[T any](value T) (ChangePayload, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return ChangePayload{}, err
	}
	return ChangePayload{defined: true, raw: raw}, nil
}

// UndefinedChangePayload marks the absent side of a create or delete.
func UndefinedChangePayload() ChangePayload { return ChangePayload{} }

// Defined reports whether the side exists at all.
func (p ChangePayload) Defined() bool { return p.defined }

// IsEmpty reports whether there are no bytes to decode.
func (p ChangePayload) IsEmpty() bool { return len(p.raw) == 0 }

// Raw returns a copy of the JSON bytes, or nil when empty.
func (p ChangePayload) Raw() json.RawMessage {
	if p.IsEmpty() {
		return nil
	}
	return bytes.Clone(p.raw)
}

// Equal compares definedness and bytes.
func (p ChangePayload) Equal(other ChangePayload) bool {
	return p.defined == other.defined && bytes.Equal(p.raw, other.raw)
}

// DecodePayload unmarshals p into T. ok is false when p holds no bytes.
func DecodePayload[T any](p ChangePayload) (out T, ok bool, err error) {
	if p.IsEmpty() {
		return out, false, nil
	}
	if err := json.Unmarshal(p.raw, &out); err != nil {
		return out, false, err
	}
	return out, true, nil
}
