// Package collecterr defines the error kinds shared across the collection,
// enrichment, and delivery paths. Kinds are attached by wrapping so call
// sites keep their contextual messages.
package collecterr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindParse
	KindValidation
	KindStore
	KindConfig
	KindAuth
	KindRateLimit
	KindCapacity
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindParse:
		return "parse"
	case KindValidation:
		return "validation"
	case KindStore:
		return "store"
	case KindConfig:
		return "config"
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindCapacity:
		return "capacity"
	default:
		return "unknown"
	}
}

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// Wrap tags err with a kind. A nil err stays nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// Wrapf builds a new tagged error from a formatted message; a %w verb in
// format wraps its operand.
func Wrapf(kind Kind, format string, args ...any) error {
	return &kindError{kind: kind, err: fmt.Errorf(format, args...)}
}

// KindOf returns the outermost kind attached to err, or KindUnknown.
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindUnknown
}

func IsNetwork(err error) bool    { return KindOf(err) == KindNetwork }
func IsParse(err error) bool      { return KindOf(err) == KindParse }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsStore(err error) bool      { return KindOf(err) == KindStore }
func IsCapacity(err error) bool   { return KindOf(err) == KindCapacity }
