// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package ferrors implements an error type that defines standard
// interpretable error codes for the Fury wire codec. Errors also contain
// interpretable severities, so that error-producing operations can be
// retried in consistent ways. Errors returned by this package can also be
// chained: thus attributing one error to another. It is adapted from
// grailbio/base/errors, generalized from its RPC-oriented kind set to the
// kinds a serialization codec raises.
//
// Errors are safely serialized with Gob, and can thus retain semantics
// across process boundaries.
package ferrors

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"syscall"

	pkgerrors "github.com/pkg/errors"

	"github.com/graildata/fury/flog"
)

func init() {
	gob.Register(new(Error))
}

// Separator defines the separation string inserted between
// chained errors in error messages.
var Separator = ":\n\t"

// Kind defines the type of error. Kinds are semantically meaningful, and
// may be interpreted by the receiver of an error (e.g., to determine
// whether an operation should be retried).
type Kind int

const (
	// Other indicates an unknown error.
	Other Kind = iota
	// Canceled indicates a context cancellation.
	Canceled
	// Timeout indicates an operation timed out.
	Timeout
	// NotExist indicates a nonexistent resource.
	NotExist
	// Invalid indicates that the caller supplied invalid parameters.
	Invalid
	// Precondition indicates that a precondition was not met.
	Precondition

	// ProtocolMismatch indicates a reader observed a negative chunk size,
	// an unexpected flag byte, or other malformed wire data. Not
	// recoverable: the caller must discard the stream.
	ProtocolMismatch
	// Truncation indicates the buffer ran out of bytes mid-read.
	Truncation
	// OversizedString indicates a MetaString encode was attempted on an
	// input longer than 32767 characters.
	OversizedString
	// MissingConstructor indicates a map read targeted a concrete map type
	// with no accessible no-argument constructor.
	MissingConstructor
	// AlphabetViolation indicates an internal invariant was broken: a
	// caller asked MetaString to encode a character outside the alphabet
	// that encoding selection chose. This is always a bug, never a
	// function of untrusted input.
	AlphabetViolation

	maxKind
)

var kinds = map[Kind]string{
	Other:              "unknown error",
	Canceled:           "operation was canceled",
	Timeout:            "operation timed out",
	NotExist:           "resource does not exist",
	Invalid:            "invalid argument",
	Precondition:       "precondition failed",
	ProtocolMismatch:   "protocol mismatch",
	Truncation:         "truncated buffer",
	OversizedString:    "oversized string",
	MissingConstructor: "missing no-argument constructor",
	AlphabetViolation:  "alphabet violation (internal bug)",
}

// kindStdErrs maps some Kinds to the standard library's equivalent.
var kindStdErrs = map[Kind]error{
	Canceled:   context.Canceled,
	Timeout:    context.DeadlineExceeded,
	NotExist:   os.ErrNotExist,
	Invalid:    os.ErrInvalid,
	Truncation: io.ErrUnexpectedEOF,
}

// String returns a human-readable explanation of the error kind k.
func (k Kind) String() string {
	return kinds[k]
}

var kindErrnos = map[Kind]syscall.Errno{
	Canceled: syscall.EINTR,
	Timeout:  syscall.ETIMEDOUT,
	NotExist: syscall.ENOENT,
	Invalid:  syscall.EINVAL,
}

// Errno maps k to an equivalent Errno or returns false if there's no good match.
func (k Kind) Errno() (syscall.Errno, bool) {
	errno, ok := kindErrnos[k]
	return errno, ok
}

// Severity defines an Error's severity. An Error's severity determines
// whether an error-producing operation may be retried or not.
type Severity int

const (
	// Retriable indicates that the failing operation can be safely retried.
	Retriable Severity = -2
	// Temporary indicates the underlying error condition is likely temporary.
	Temporary Severity = -1
	// Unknown indicates the error's severity is unknown (the default).
	Unknown Severity = 0
	// Fatal indicates the underlying error condition is unrecoverable.
	Fatal Severity = 1
)

var severities = map[Severity]string{
	Retriable: "retriable",
	Temporary: "temporary",
	Unknown:   "unknown",
	Fatal:     "fatal",
}

// String returns a human-readable explanation of the error severity s.
func (s Severity) String() string {
	return severities[s]
}

// Error is the standard error type, carrying a kind (error code), message
// (error message), and potentially an underlying error. Errors should be
// constructed by ferrors.E, which interprets arguments according to a set
// of rules.
type Error struct {
	// Kind is the error's type.
	Kind Kind
	// Severity is an optional severity.
	Severity Severity
	// Message is an optional error message associated with this error.
	Message string
	// Err is the error that caused this error, if any. Errors can form
	// chains through Err: the full chain is printed by Error().
	Err error
}

// E constructs a new error from the provided arguments. It is meant as a
// convenient way to construct, annotate, and wrap errors.
//
// Arguments are interpreted according to their types:
//
//   - Kind: sets the Error's kind
//   - Severity: sets the Error's severity
//   - string: sets the Error's message; multiple strings are separated by
//     a single space
//   - *Error: copies the error and sets the error's cause
//   - error: sets the Error's cause
//
// If a kind is not provided but an underlying error is, E attempts to
// interpret the underlying error according to a set of conventions, in
// order:
//
//   - If errors.Is matches the error against context.Canceled,
//     context.DeadlineExceeded, os.ErrNotExist, os.ErrInvalid or
//     io.ErrUnexpectedEOF, checked in that order, its kind is set to
//     Canceled, Timeout, NotExist, Invalid or Truncation respectively.
//   - Otherwise, if the error implements interface{ Timeout() bool } and
//     Timeout() returns true, its kind is set to Timeout.
//
// Independently of the kind, if the error implements
// interface{ Temporary() bool }, Temporary() returns true and no severity
// was provided, its severity is set to Temporary.
//
// If the underlying error is another *Error and a kind is not provided,
// the returned error inherits that error's kind.
func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("no args")
	}
	e := new(Error)
	var msg strings.Builder
	for _, arg := range args {
		switch arg := arg.(type) {
		case Kind:
			e.Kind = arg
		case Severity:
			e.Severity = arg
		case string:
			if msg.Len() > 0 {
				msg.WriteString(" ")
			}
			msg.WriteString(arg)
		case *Error:
			cp := *arg
			if len(args) == 1 {
				return &cp
			}
			e.Err = &cp
		case error:
			e.Err = arg
		default:
			_, file, line, _ := runtime.Caller(1)
			flog.Error.Printf("ferrors.E: bad call (type %T) from %s:%d: %v", arg, file, line, arg)
			return &Error{
				Kind:    Invalid,
				Message: fmt.Sprintf("unknown type %T, value %v in error call", arg, arg),
			}
		}
	}
	e.Message = msg.String()
	if e.Err == nil {
		return e
	}
	switch prev := e.Err.(type) {
	case *Error:
		if prev.Kind == e.Kind || e.Kind == Other {
			e.Kind = prev.Kind
			prev.Kind = Other
		}
		if prev.Severity == e.Severity || e.Severity == Unknown {
			e.Severity = prev.Severity
			prev.Severity = Unknown
		}
	default:
		if err, ok := e.Err.(interface{ Temporary() bool }); ok && err.Temporary() && e.Severity == Unknown {
			e.Severity = Temporary
		}
		if e.Kind != Other {
			break
		}
		// Loop over kind instead of kindStdErrs for determinism.
		for kind := Kind(0); kind < maxKind; kind++ {
			stdErr := kindStdErrs[kind]
			if stdErr != nil && errors.Is(e.Err, stdErr) {
				e.Kind = kind
				break
			}
		}
		if e.Kind != Other {
			break
		}
		if isTimeoutErr(e.Err) {
			e.Kind = Timeout
		}
	}
	return e
}

func isTimeoutErr(err error) bool {
	t, ok := err.(interface{ Timeout() bool })
	return ok && t.Timeout()
}

// Recover recovers any error into an *Error. If the passed-in error is
// already an *Error, it is simply returned; otherwise it is wrapped.
func Recover(err error) *Error {
	if err == nil {
		return nil
	}
	if err, ok := err.(*Error); ok {
		return err
	}
	return E(err).(*Error)
}

// Error returns a human readable string describing this error. It uses the
// separator defined by ferrors.Separator.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b bytes.Buffer
	e.writeError(&b)
	return b.String()
}

func (e *Error) writeError(b *bytes.Buffer) {
	if e.Message != "" {
		pad(b, ": ")
		b.WriteString(e.Message)
	}
	if e.Kind != Other {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}
	if e.Severity != Unknown {
		pad(b, " ")
		b.WriteByte('(')
		b.WriteString(e.Severity.String())
		b.WriteByte(')')
	}
	if e.Err == nil {
		return
	}
	if err, ok := e.Err.(*Error); ok {
		pad(b, Separator)
		b.WriteString(err.Error())
	} else {
		pad(b, ": ")
		b.WriteString(e.Err.Error())
	}
}

// Timeout tells whether this error is a timeout error.
func (e *Error) Timeout() bool { return e.Kind == Timeout }

// Temporary tells whether this error is temporary.
func (e *Error) Temporary() bool { return e.Severity <= Temporary }

// Unwrap returns e's cause, if any, or nil.
func (e *Error) Unwrap() error { return e.Err }

// Is tells whether e.Kind is equivalent to err, for interoperability with
// the standard library's errors.Is.
func (e *Error) Is(err error) bool {
	if err == nil {
		return false
	}
	if err == kindStdErrs[e.Kind] {
		return true
	}
	if e.Kind == Timeout && isTimeoutErr(err) {
		return true
	}
	return false
}

type gobError struct {
	Kind     Kind
	Severity Severity
	Message  string
	Next     *gobError
	Err      string
}

func (ge *gobError) toError() *Error {
	e := &Error{Kind: ge.Kind, Severity: ge.Severity, Message: ge.Message}
	if ge.Next != nil {
		e.Err = ge.Next.toError()
	} else if ge.Err != "" {
		e.Err = errors.New(ge.Err)
	}
	return e
}

func (e *Error) toGobError() *gobError {
	ge := &gobError{Kind: e.Kind, Severity: e.Severity, Message: e.Message}
	if e.Err == nil {
		return ge
	}
	switch arg := e.Err.(type) {
	case *Error:
		ge.Next = arg.toGobError()
	default:
		ge.Err = arg.Error()
	}
	return ge
}

// GobEncode encodes the error for gob. Since underlying errors may be
// interfaces unknown to gob, Error's gob encoding replaces these with
// error strings.
func (e *Error) GobEncode() ([]byte, error) {
	var b bytes.Buffer
	err := gob.NewEncoder(&b).Encode(e.toGobError())
	return b.Bytes(), err
}

// GobDecode decodes an error encoded by GobEncode.
func (e *Error) GobDecode(p []byte) error {
	var ge gobError
	if err := gob.NewDecoder(bytes.NewBuffer(p)).Decode(&ge); err != nil {
		return err
	}
	*e = *ge.toError()
	return nil
}

// Is tells whether an error has a specified kind, except for the
// indeterminate kind Other. In that case the chain is traversed until a
// non-Other error is encountered.
func Is(kind Kind, err error) bool {
	if err == nil {
		return false
	}
	return is(kind, Recover(err))
}

func is(kind Kind, e *Error) bool {
	if e.Kind != Other {
		return e.Kind == kind
	}
	if e.Err != nil {
		if e2, ok := e.Err.(*Error); ok {
			return is(kind, e2)
		}
	}
	return false
}

// IsTemporary tells whether the provided error is likely temporary.
func IsTemporary(err error) bool {
	return Recover(err).Temporary()
}

// Match tells whether every nonempty field in err1 matches the
// corresponding fields in err2. The comparison recurses on chained errors.
// Match is designed to aid in testing errors.
func Match(err1, err2 error) bool {
	e1, e2 := Recover(err1), Recover(err2)
	if e1.Kind != Other && e1.Kind != e2.Kind {
		return false
	}
	if e1.Severity != Unknown && e1.Severity != e2.Severity {
		return false
	}
	if e1.Message != "" && e1.Message != e2.Message {
		return false
	}
	if e1.Err != nil {
		if e2.Err == nil {
			return false
		}
		switch e1.Err.(type) {
		case *Error:
			return Match(e1.Err, e2.Err)
		default:
			return e1.Err.Error() == e2.Err.Error()
		}
	}
	return true
}

// Visit calls the given function for every error object in the chain,
// including itself. Recursion stops after the function finds an error
// object of type other than *Error.
func Visit(err error, callback func(err error)) {
	callback(err)
	for {
		next, ok := err.(*Error)
		if !ok {
			break
		}
		err = next.Err
		callback(err)
	}
}

// New is synonymous with errors.New, and is provided here so that callers
// need only import one errors package.
func New(msg string) error {
	return errors.New(msg)
}

func pad(b *bytes.Buffer, s string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(s)
}

// WithStack annotates err with a stack trace captured at the call site,
// via github.com/pkg/errors, so that it can be classified by E afterwards.
// It returns nil for a nil err.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return pkgerrors.WithStack(err)
}

// Fatalf reports an AlphabetViolation: an internal invariant broken by a
// caller, never by untrusted wire data. Mirrors the teacher's must.Nilf
// convention of panicking on programmer error rather than returning it.
func Fatalf(format string, args ...interface{}) {
	flog.Error.Printf(format, args...)
	panic(E(AlphabetViolation, fmt.Sprintf(format, args...)))
}
