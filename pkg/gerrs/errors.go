// Package gerrs implements the error taxonomy of spec.md §7 on top of
// zeebo/errs class-tagged wrapping. Each Kind gets its own errs.Class, so
// callers can test the kind with errors.Is/As the same way the teacher's
// codebase tests sentinel errors with errors.Is, while still carrying
// structured fields (entity, key, op index) that a plain sentinel can't.
package gerrs

import (
	"errors"
	"fmt"

	"github.com/zeebo/errs"
)

// Kind is one row of the §7 error taxonomy table.
type Kind string

const (
	Invariant   Kind = "invariant"   // catalog/referential integrity violated
	Conflict    Kind = "conflict"    // MVCC conflict at commit
	NotFound    Kind = "not_found"   // lookup missed where presence was required
	Capacity    Kind = "capacity"    // memtable/spill budget exceeded, deadline reached
	Corruption  Kind = "corruption"  // checksum mismatch, malformed record, bad hash chain
	Storage     Kind = "storage"     // underlying disk error
	Validation  Kind = "validation"  // unknown extern or malformed rule/strategy IR
	Termination Kind = "termination" // measure failed to decrease / missing in OLTP mode
)

var classes = map[Kind]*errs.Class{
	Invariant:   errs.Class("invariant"),
	Conflict:    errs.Class("conflict"),
	NotFound:    errs.Class("not_found"),
	Capacity:    errs.Class("capacity"),
	Corruption:  errs.Class("corruption"),
	Storage:     errs.Class("storage"),
	Validation:  errs.Class("validation"),
	Termination: errs.Class("termination"),
}

// Error is a taxonomy-tagged error carrying the fields useful for
// diagnosing the specific op that failed (§4.2's "typed error naming the
// first offending op", §4.5's per-application failure reporting).
type Error struct {
	Kind   Kind
	Entity string // optional: vertex/edge id, file name, etc.
	Op     string // optional: which operation within a batch/patch failed
	cause  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Entity != "" {
		msg += " (" + e.Entity + ")"
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a Kind-tagged error wrapped in the Kind's errs.Class, so
// gerrs.Is(err, gerrs.Conflict) — via Is below — and classes[kind].Has(err)
// both work.
func New(kind Kind, format string, args ...any) error {
	base := fmt.Errorf(format, args...)
	return classes[kind].Wrap(&Error{Kind: kind, cause: base})
}

// Wrap tags an existing error with kind, preserving it as the cause.
func Wrap(kind Kind, cause error, op string) error {
	if cause == nil {
		return nil
	}
	return classes[kind].Wrap(&Error{Kind: kind, Op: op, cause: cause})
}

// WithEntity attaches an entity identifier to an error built by New/Wrap,
// e.g. gerrs.WithEntity(gerrs.New(gerrs.NotFound, "vertex"), id.String()).
func WithEntity(err error, entity string) error {
	var e *Error
	if errors.As(err, &e) {
		e.Entity = entity
	}
	return err
}

// Is reports whether err (or any error it wraps) is tagged with kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the Kind tag on err, or "" if err is not a gerrs error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
