// Package fault defines the closed set of error kinds produced while resolving
// extensions, scanning classes and aggregating hooks.
//
// Every failure in the framework is a *Error carrying exactly one Kind. Callers
// test for a kind with errors.Is against the package sentinels:
//
//	if errors.Is(err, fault.ErrCycle) {
//	    // report the chain
//	}
//
// or extract it with KindOf. The original cause of a cached failure is kept as
// the wrapped error so repeated attempts surface the same root problem.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a framework failure.
type Kind uint8

const (
	// KindUnknown is returned by KindOf for errors that did not originate here.
	KindUnknown Kind = iota
	// KindCycle reports a dependency cycle between extensions.
	KindCycle
	// KindDeclaration reports an extension or aggregator that breaks a
	// structural rule of the framework itself.
	KindDeclaration
	// KindStructural reports a capture that does not satisfy a contract
	// asserted by an operator or by extension code.
	KindStructural
	// KindAccessDenied reports a matched member that cannot be read or invoked.
	KindAccessDenied
	// KindIllegalState reports a mutation after freezing, or an accessor used
	// outside of its valid window.
	KindIllegalState
	// KindUnsupported reports an operation that is not available for the
	// given target, such as a static application on an instance member.
	KindUnsupported
)

var kindNames = [...]string{
	KindUnknown:      "unknown",
	KindCycle:        "cyclic dependency",
	KindDeclaration:  "declaration error",
	KindStructural:   "structural contract violation",
	KindAccessDenied: "access denied",
	KindIllegalState: "illegal state",
	KindUnsupported:  "unsupported operation",
}

// String returns the human readable name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Sentinels for errors.Is. They carry no detail.
var (
	ErrCycle        = &Error{Kind: KindCycle}
	ErrDeclaration  = &Error{Kind: KindDeclaration}
	ErrStructural   = &Error{Kind: KindStructural}
	ErrAccessDenied = &Error{Kind: KindAccessDenied}
	ErrIllegalState = &Error{Kind: KindIllegalState}
	ErrUnsupported  = &Error{Kind: KindUnsupported}
)

// Error is the single error type of the framework.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "registry.Resolve".
	Op string
	// Msg is the detail message.
	Msg string
	// Member describes the offending member for structural and access errors.
	Member string
	// Chain lists the extensions on a dependency cycle, first element repeated
	// at the end.
	Chain []string
	// Err is the wrapped cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Member != "" {
		b.WriteString(" [")
		b.WriteString(e.Member)
		b.WriteString("]")
	}
	if len(e.Chain) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Chain, " -> "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind, so that
// errors.Is(err, fault.ErrCycle) matches any cycle error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Member == "" && t.Err == nil && len(t.Chain) == 0 && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error found in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Cycle builds a cycle error. chain must list the extensions on the cycle in
// dependency order; the first element is appended again to close the loop.
func Cycle(op string, chain []string) *Error {
	closed := make([]string, 0, len(chain)+1)
	closed = append(closed, chain...)
	if len(chain) > 0 {
		closed = append(closed, chain[0])
	}
	return &Error{Kind: KindCycle, Op: op, Msg: "extension depends on itself", Chain: closed}
}

// Declaration builds a declaration error.
func Declaration(op, format string, args ...any) *Error {
	return &Error{Kind: KindDeclaration, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Structural builds a structural contract violation for member.
func Structural(op, member, format string, args ...any) *Error {
	return &Error{Kind: KindStructural, Op: op, Member: member, Msg: fmt.Sprintf(format, args...)}
}

// AccessDenied builds an access-denied error for member.
func AccessDenied(op, member, format string, args ...any) *Error {
	return &Error{Kind: KindAccessDenied, Op: op, Member: member, Msg: fmt.Sprintf(format, args...)}
}

// IllegalState builds an illegal-state error.
func IllegalState(op, format string, args ...any) *Error {
	return &Error{Kind: KindIllegalState, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Unsupported builds an unsupported-operation error.
func Unsupported(op, member, format string, args ...any) *Error {
	return &Error{Kind: KindUnsupported, Op: op, Member: member, Msg: fmt.Sprintf(format, args...)}
}

// Wrap returns a copy of err's kind wrapping err under a new operation. It is
// used when a cached failure is surfaced again from a later call: the kind is
// preserved and the original error stays reachable through Unwrap.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindOf(err), Op: op, Msg: "previously failed", Err: err}
}

// Join folds several problems into one declaration error, listing each on its
// own line.
func Join(op, title string, problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return &Error{Kind: KindDeclaration, Op: op, Msg: fmt.Sprintf("%s:\n- %s", title, strings.Join(problems, "\n- "))}
}
