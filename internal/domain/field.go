package domain

import (
	"bytes"
	"encoding/json"
)

type fieldOp uint8

const (
	fieldUnchanged fieldOp = iota
	fieldSet
	fieldClear
)

// Field is an explicit per-field update: leave the stored value alone,
// replace it, or clear it. The zero value means unchanged, so a field
// missing from a JSON body decodes as unchanged and an explicit null
// decodes as clear.
type Field[T any] struct {
	op    fieldOp
	value T
}

func Unchanged[T any]() Field[T] { return Field[T]{} }

func SetTo[T any](v T) Field[T] { return Field[T]{op: fieldSet, value: v} }

func Clear[T any]() Field[T] { return Field[T]{op: fieldClear} }

func (f Field[T]) IsUnchanged() bool { return f.op == fieldUnchanged }

func (f Field[T]) IsSet() bool { return f.op == fieldSet }

func (f Field[T]) IsClear() bool { return f.op == fieldClear }

// Value returns the new value when the field is set.
func (f Field[T]) Value() (T, bool) {
	return f.value, f.op == fieldSet
}

// Apply resolves the update against the current value. Clear yields the
// zero value of T.
func (f Field[T]) Apply(current T) T {
	switch f.op {
	case fieldSet:
		return f.value
	case fieldClear:
		var zero T
		return zero
	}
	return current
}

// ApplyPtr resolves an update against an optional stored value.
func ApplyPtr[T any](f Field[T], current *T) *T {
	switch f.op {
	case fieldSet:
		v := f.value
		return &v
	case fieldClear:
		return nil
	}
	return current
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = Clear[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = SetTo(v)
	return nil
}
