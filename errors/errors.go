// Package errors provides a standard error definition for use across
// galoisrun. Each error is assigned a class of error (Kind) and an
// operation with optional arguments, and may wrap another error so
// that a chain of causes can be rendered together.
//
// Per the executor's error-handling policy, a Conflict-kind error
// raised on a conflict-detecting loop never escapes ForEach: it is
// caught by the executor's iteration wrapper, translated into
// conflict.Context.CancelIteration plus an abort.Handler.Push, and
// never seen by the caller. Every other kind (OOM, Usage, Other)
// propagates to the caller of ForEach unchanged, as does a Conflict
// error on the abort-free path (NoConflicts set, or a single worker).
//
// The API was inspired by package upspin.io/errors.
package errors

import (
	"bytes"
	"context"
	goerrors "errors"
	"fmt"
	"runtime"

	"github.com/grailbio/galoisrun/log"
)

// Separator is inserted between chained errors while rendering.
var Separator = ":\n\t"

// Kind denotes the type of the error. The error's kind is used to
// render the error message and also for interpretation.
type Kind int

const (
	// Other denotes an unknown error.
	Other Kind = iota
	// Conflict denotes a speculative conflict detected by a
	// conflict.Context during an iteration. Conflict errors are
	// expected and non-fatal: the executor catches them internally
	// and routes the work item to the abort handler.
	Conflict
	// Canceled denotes a cancellation error (e.g. a break flag or an
	// outer context was canceled).
	Canceled
	// OOM denotes an out-of-memory condition raised by the page
	// allocator. OOM is always fatal.
	OOM
	// Usage denotes programmer error, such as pushing to a worklist
	// after the executor has shut down, or committing an iteration
	// that was never started.
	Usage
	// Temporary denotes a transient error that may be usefully
	// retried.
	Temporary

	maxKind
)

// String renders a human-readable description of kind k.
func (k Kind) String() string {
	switch k {
	default:
		return "unknown error"
	case Conflict:
		return "conflict"
	case Canceled:
		return "canceled"
	case OOM:
		return "out of memory"
	case Usage:
		return "usage error"
	case Temporary:
		return "temporary"
	}
}

var kind2string = [maxKind]string{
	Other:     "Other",
	Conflict:  "Conflict",
	Canceled:  "Canceled",
	OOM:       "OOM",
	Usage:     "Usage",
	Temporary: "Temporary",
}

// Error defines a galoisrun error. It is used to indicate an error
// associated with an operation (and arguments), and may wrap another
// error.
//
// Errors should be constructed by errors.E.
type Error struct {
	// Kind is the error's type.
	Kind Kind
	// Op is a one-word description of the operation that errored.
	Op string
	// Arg is an (optional) list of arguments to the operation.
	Arg []string
	// Err is this error's underlying error: this error is caused
	// by Err.
	Err error
}

// E is used to construct errors. E constructs errors from a set of
// arguments; each of which must be one of the following types:
//
//	string
//		The first string argument is taken as the error's Op; subsequent
//		arguments are taken as the error's Arg.
//	Kind
//		Taken as the error's Kind.
//	error
//		Taken as the error's underlying error.
//
// If an underlying error is provided, E attempts to interpret it: (1)
// if the underlying error is another *Error, then with no Kind
// argument the Kind is inherited from it (the underlying error keeps
// its own Kind), and with a Kind argument equal to the underlying
// error's Kind the underlying error's duplicate Kind is cleared; an
// underlying *Error with no Op whose Kind adds nothing is collapsed
// into this one; (2) if no Kind was given and the underlying error is
// context.Canceled, the Kind is set to Canceled.
func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("no args")
	}
	e := new(Error)
	for _, arg := range args {
		switch arg := arg.(type) {
		case string:
			if e.Op == "" {
				e.Op = arg
			} else {
				e.Arg = append(e.Arg, arg)
			}
		case Kind:
			e.Kind = arg
		case *Error:
			cp := *arg
			e.Err = &cp
		case error:
			e.Err = arg
		default:
			_, file, line, _ := runtime.Caller(1)
			log.Printf("errors.E: bad call (type %T) from %s:%d: %v", arg, file, line, args)
			return Errorf("unknown type %T, value %v in error call", arg, arg)
		}
	}
	if e.Err == nil {
		return e
	}
	switch prev := e.Err.(type) {
	case *Error:
		if e.Kind == Other {
			e.Kind = prev.Kind
		} else if prev.Kind == e.Kind {
			prev.Kind = Other
		}
		if prev.Op == "" && (prev.Kind == Other || prev.Kind == e.Kind) {
			e.Err = prev.Err
		}
	default:
		if e.Kind != Other {
			break
		}
		if e.Err == context.Canceled {
			e.Kind = Canceled
		}
	}
	return e
}

func pad(b *bytes.Buffer, s string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(s)
}

// Error renders this error and its chain of underlying errors,
// separated by Separator.
func (e *Error) Error() string {
	return e.ErrorSeparator(Separator)
}

// ErrorSeparator renders this error and its chain of underlying
// errors, separated by sep.
func (e *Error) ErrorSeparator(sep string) string {
	if e == nil {
		return "<nil>"
	}
	b := new(bytes.Buffer)
	if e.Op != "" {
		b.WriteString(e.Op)
		for i := range e.Arg {
			b.WriteString(" " + e.Arg[i])
		}
	}
	if e.Kind != Other {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		if err, ok := e.Err.(*Error); ok {
			pad(b, sep)
			b.WriteString(err.ErrorSeparator(sep))
		} else {
			pad(b, ": ")
			b.WriteString(e.Err.Error())
		}
	}
	return b.String()
}

// Temporary tells whether this error is temporary and may be usefully
// retried.
func (e *Error) Temporary() bool {
	return e.Kind == Temporary
}

// Errorf is an alternate spelling of fmt.Errorf.
var Errorf = fmt.Errorf

// New is an alternate spelling of errors.New.
var New = goerrors.New

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

// Is tells whether err's Kind (or any error in its chain) matches
// kind. Other denotes an unknown kind and never matches.
func Is(kind Kind, err error) bool {
	e := Recover(err)
	for e != nil {
		if e.Kind != Other && e.Kind == kind {
			return true
		}
		next, ok := e.Err.(*Error)
		if !ok {
			return false
		}
		e = next
	}
	return false
}

// Match compares err1 with err2. If err1 has type Kind, Match reports
// whether err2's Kind is the same, otherwise, Match checks that every
// nonempty field in err1 has the same value in err2. If err1 is an
// *Error with a non-nil Err field, Match recurs to check that the two
// errors' chain of underlying errors also match.
func Match(err1 interface{}, err2 error) bool {
	e2 := Recover(err2)
	switch e1 := err1.(type) {
	default:
		return false
	case Kind:
		return e1 == e2.Kind
	case *Error:
		if e1.Op != "" && e2.Op != e1.Op {
			return false
		}
		if len(e1.Arg) != len(e2.Arg) {
			return false
		}
		for i := range e1.Arg {
			if e1.Arg[i] != e2.Arg[i] {
				return false
			}
		}
		if e1.Kind != Other && e2.Kind != e1.Kind {
			return false
		}
		if e1.Err != nil {
			if _, ok := e1.Err.(*Error); ok {
				return Match(e1.Err, e2.Err)
			}
			if e2.Err == nil || e2.Err.Error() != e1.Err.Error() {
				return false
			}
		}
		return true
	}
}

// Name returns the symbolic (Go identifier) name of the kind, as
// opposed to String's human-readable rendering, for use in stats
// labels and test failure messages.
func (k Kind) Name() string {
	if int(k) < 0 || k >= maxKind {
		return "Other"
	}
	return kind2string[k]
}
