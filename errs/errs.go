// Package errs defines the error taxonomy shared by every dsv4l2
// subsystem. Every public entry point ultimately returns an error that
// can be classified back down to one of these codes, the way a
// negative-errno C boundary would.
package errs

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Code classifies a failure into a stable taxonomy. The numeric values
// are negative, mirroring the errno-style contract at the public
// boundary; callers that need the raw integer use CodeOf(err).Int().
type Code int

const (
	// OK is the zero value; no Error with this code is ever constructed.
	OK Code = 0

	InvalidArgument Code = -1 // null handle, malformed input, inconsistent state
	OutOfMemory     Code = -2 // allocation failed
	NotFound        Code = -3 // name / role / control does not exist
	AccessDenied    Code = -4 // policy gate denied
	WouldBlock      Code = -5 // non-blocking ioctl with nothing available
	Interrupted     Code = -6 // ioctl aborted by signal or close
	IOError         Code = -7 // other kernel error
	ParseError      Code = -8 // KLV or profile malformed
	Unsupported     Code = -9 // driver lacks a capability
)

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case InvalidArgument:
		return "invalid_argument"
	case OutOfMemory:
		return "out_of_memory"
	case NotFound:
		return "not_found"
	case AccessDenied:
		return "access_denied"
	case WouldBlock:
		return "would_block"
	case Interrupted:
		return "interrupted"
	case IOError:
		return "io_error"
	case ParseError:
		return "parse_error"
	case Unsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Int returns the negative-errno-style representation used at the
// public façade boundary: zero on success, a negative code on failure.
func (c Code) Int() int { return int(c) }

// Error is the concrete error type carried through the stack. It wraps
// the underlying cause (a kernel errno, a YAML error, ...) so
// errors.Is/errors.As keep working across the code/cause split.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error for a code that isn't a direct errno mapping
// (NotFound, AccessDenied, ParseError, ...).
func New(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// FromErrno classifies a syscall error returned by an ioctl/mmap/open
// call into the taxonomy, preserving the original errno via Unwrap so
// callers can still do errors.Is(err, unix.EAGAIN).
func FromErrno(op string, err error) *Error {
	if err == nil {
		return nil
	}
	code := IOError
	var errno unix.Errno
	if errors.As(err, &errno) {
		switch errno {
		case unix.EAGAIN, unix.EWOULDBLOCK:
			code = WouldBlock
		case unix.EINTR, unix.EBADF:
			code = Interrupted
		case unix.ENOSYS, unix.ENOTTY:
			code = Unsupported
		}
	}
	return &Error{Code: code, Op: op, Err: err}
}

// CodeOf extracts the Code from err, returning OK for a nil error and
// IOError for an error that did not originate from this package.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return IOError
}
