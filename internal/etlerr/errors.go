//-------------------------------------------------------------------------
//
// HotDog 2030 Warehouse Sync
//
// Copyright (c) 2026, HotDog 2030 contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package etlerr defines the error kinds the pipeline reports and how they
// map onto process exit codes.
package etlerr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	// Unknown is the zero Kind for errors that were never classified.
	Unknown Kind = iota
	// Config means required settings are missing or malformed.
	Config
	// Connection means a host was unreachable or authentication failed.
	Connection
	// Transient covers timeouts, deadlocks and other retryable failures.
	Transient
	// DataIntegrity covers foreign key violations and duplicate identities.
	DataIntegrity
	// Semantic covers unmappable ids and out-of-band values.
	Semantic
	// FatalSchema means a required table or column is missing.
	FatalSchema
	// Partial means some stages failed after earlier ones succeeded.
	Partial
)

// String returns the kind name used in logs and on stderr.
func (k Kind) String() string {
	switch k {
	case Config:
		return "config"
	case Connection:
		return "connection"
	case Transient:
		return "transient"
	case DataIntegrity:
		return "data_integrity"
	case Semantic:
		return "semantic"
	case FatalSchema:
		return "fatal_schema"
	case Partial:
		return "partial"
	default:
		return "unknown"
	}
}

// Error is a classified pipeline error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind and the operation that failed.
// A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a classified error from a format string.
func Newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the outermost classification in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// Exit codes returned by the CLI.
const (
	ExitOK          = 0
	ExitConfig      = 1
	ExitPartial     = 2
	ExitDataFailure = 3
)

// ExitCode maps an error onto the CLI exit code contract.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, context.Canceled) {
		return ExitPartial
	}
	switch KindOf(err) {
	case FatalSchema, DataIntegrity:
		return ExitDataFailure
	case Partial, Transient, Semantic:
		return ExitPartial
	default:
		return ExitConfig
	}
}
