package types

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedInput          = errors.New("malformed input")
	ErrUnmappedKey             = errors.New("unmapped key")
	ErrUntranslatableCharacter = errors.New("untranslatable character")

	errMissingField = errors.New("field is missing")
)

// MalformedInputError reports a record that lacks a required field or carries a
// value in the wrong format. Index is the record position in its source, -1 if unknown.
type MalformedInputError struct {
	Index int
	Field string
	Value string
	Err   error
}

func (e *MalformedInputError) Error() string {
	msg := "malformed input"
	if e.Index >= 0 {
		msg = fmt.Sprintf("%s: record %d", msg, e.Index)
	}
	if e.Field != "" {
		msg = fmt.Sprintf("%s: field %q", msg, e.Field)
	}
	if e.Value != "" {
		msg = fmt.Sprintf("%s: value %q", msg, e.Value)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

func (e *MalformedInputError) Is(target error) bool { return target == ErrMalformedInput }

// UnmappedKeyError is returned when a lookup table has no entry for a key.
type UnmappedKeyError struct {
	Key string
}

func (e *UnmappedKeyError) Error() string {
	return fmt.Sprintf("unmapped key %q", e.Key)
}

func (e *UnmappedKeyError) Is(target error) bool { return target == ErrUnmappedKey }

// UntranslatableCharacterError is returned when a Latin letter found in a name
// has no entry in the substitution table.
type UntranslatableCharacterError struct {
	Name string
	Char rune
}

func (e *UntranslatableCharacterError) Error() string {
	return fmt.Sprintf("no substitution for %q in name %q", e.Char, e.Name)
}

func (e *UntranslatableCharacterError) Is(target error) bool {
	return target == ErrUntranslatableCharacter
}

// WithIndex returns err with its record index set when err is a *MalformedInputError.
func WithIndex(err error, idx int) error {
	var mie *MalformedInputError
	if errors.As(err, &mie) {
		mie.Index = idx
	}
	return err
}
