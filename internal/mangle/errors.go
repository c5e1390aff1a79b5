// Package mangle rewrites a decoded ARM/Thumb instruction stream so it can
// execute safely out of a code cache: PC-relative operands are relocated,
// the stolen register's TLS-base value is hidden from and restored to the
// application, predication is split out of IT blocks and reinstated, control
// transfers are rewritten through the indirect-branch-lookup protocol, and
// syscalls are wrapped. Grounded on DynamoRIO's core/arch/arm/mangle.c.
package mangle

import "fmt"

// BugError reports a violated invariant: an input shape the mangler assumes
// can never occur in a well-formed instruction stream (a caller that skipped
// a precondition, an IR node built by hand incorrectly). Callers are meant to
// let this propagate as a panic, not recover from it mid-stream, mirroring
// the teacher's and the original's liberal use of ASSERT.
type BugError struct {
	Where string
	Msg   string
}

func (e *BugError) Error() string {
	return fmt.Sprintf("mangle: internal invariant violated in %s: %s", e.Where, e.Msg)
}

func bug(where, format string, args ...interface{}) {
	panic(&BugError{Where: where, Msg: fmt.Sprintf(format, args...)})
}

// NotImplementedError reports an input shape that is valid but whose
// mangling this package does not yet implement (mirrors the original's
// ASSERT_NOT_IMPLEMENTED, which in a release build is a bounded failure
// rather than a crash). Unlike BugError this is returned, not panicked,
// since a caller may reasonably want to skip or report the offending block
// instead of aborting the whole run.
type NotImplementedError struct {
	Feature string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("mangle: not implemented: %s", e.Feature)
}

func notImplemented(feature string) error {
	return &NotImplementedError{Feature: feature}
}
