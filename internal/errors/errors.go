// Package errors defines the coarse error kinds of the compiler driver
// (spec §7) and the CompilerError type used to report pass-level
// internal-compiler-error failures.
package errors

import "fmt"

// Kind is one of the five coarse error kinds the driver distinguishes
// when printing "error: <kind>: <message>" to stderr.
type Kind string

const (
	Usage    Kind = "usage"
	Syntax   Kind = "syntax"
	Semantic Kind = "semantic"
	Systems  Kind = "systems"
	Fatal    Kind = "fatal"
)

// CompilerError is the error type every pass and every driver stage
// returns. Fatal-kind errors additionally name the pass and function in
// which the invariant violation was detected.
type CompilerError struct {
	Kind    Kind
	Pass    string
	Func    string
	Message string
}

// Error implements the error interface.
func (e *CompilerError) Error() string {
	if e.Kind == Fatal && e.Pass != "" {
		return fmt.Sprintf("%s: internal compiler error in pass %q (function %q): %s", e.Kind, e.Pass, e.Func, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New constructs a plain, non-fatal CompilerError.
func New(kind Kind, format string, args ...interface{}) *CompilerError {
	return &CompilerError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Internal constructs a Fatal CompilerError naming the offending pass
// and function, for invariant violations detected mid-optimization.
func Internal(pass, fn, format string, args ...interface{}) *CompilerError {
	return &CompilerError{Kind: Fatal, Pass: pass, Func: fn, Message: fmt.Sprintf(format, args...)}
}

// DivideByZero reports a constant-folding division/remainder by zero,
// which is a fatal semantic error at compile time (runtime division by
// zero is left to hardware; see spec §9 Ambiguous behavior (a)).
func DivideByZero(fn string) *CompilerError {
	return &CompilerError{Kind: Semantic, Func: fn, Message: "division or remainder by zero in constant expression"}
}
