// Package frosterr defines the tagged-failure type used by the
// block-framing layer (pkg/blockio, spec §7): every blockio operation that
// can fail returns one of these kinds, with no implicit recovery. The
// chunker, multichunk, filter, and catalog packages do not use it; they
// return plain fmt-wrapped errors that carry no Kind.
package frosterr

import (
	"errors"
	"fmt"
)

// Kind enumerates the closed set of failure categories the core reports.
type Kind int

const (
	// BadParameter: a caller-provided value violates a documented precondition.
	BadParameter Kind = iota
	// NotEnoughMemory: allocation of a scratch buffer failed.
	NotEnoughMemory
	// NotCompressible: the compressor would expand the input. Always handled
	// locally by falling back to storeBlock; never surfaced to callers.
	NotCompressible
	// UnexpectedEOB: input ended inside a header.
	UnexpectedEOB
	// UnexpectedEOD: input ended inside a body.
	UnexpectedEOD
	// DataCorrupt: a checksum, a magic, or a bound check failed.
	DataCorrupt
)

func (k Kind) String() string {
	switch k {
	case BadParameter:
		return "BadParameter"
	case NotEnoughMemory:
		return "NotEnoughMemory"
	case NotCompressible:
		return "NotCompressible"
	case UnexpectedEOB:
		return "UnexpectedEOB"
	case UnexpectedEOD:
		return "UnexpectedEOD"
	case DataCorrupt:
		return "DataCorrupt"
	default:
		return "Unknown"
	}
}

// Error is the tagged failure carried across every public operation.
type Error struct {
	Kind Kind   // the failure category
	Op   string // the operation that failed, e.g. "blockio.InspectBlock"
	Err  error  // wrapped underlying error, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a tagged error with no wrapped cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf("%s", msg)}
}

// Wrap tags an existing error with a kind and operation.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Kind == kind
}
