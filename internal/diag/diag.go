// Package diag formats compiler diagnostics for the driver's stderr
// stream (spec §7: "one line `error: <kind>: <message>` on stderr").
// Position tracking is carried here rather than folded into
// internal/errors so that the out-of-scope lexer/parser this repo
// stubs out (internal/frontend builds a literal Program directly, with
// no source text) has somewhere to attach it later without internal/
// errors growing a front-end-shaped field it can't populate today.
package diag

import (
	"fmt"
	"io"
	"strconv"

	"sysyc/internal/errors"
)

// Position is a 1-based source location, the shape spec §7 calls for
// on Syntax/Semantic errors once a real front end exists.
type Position struct {
	File string
	Line int
	Col  int
}

// String renders "file:line:col", or just the bare line/col if File is
// empty (the literal-program stub front end never sets one).
func (p Position) String() string {
	if p.File == "" {
		return strconv.Itoa(p.Line) + ":" + strconv.Itoa(p.Col)
	}
	return p.File + ":" + strconv.Itoa(p.Line) + ":" + strconv.Itoa(p.Col)
}

// Print writes err's single diagnostic line to w, per spec §7's
// user-visible contract, optionally prefixed with a source position.
func Print(w io.Writer, pos *Position, err *errors.CompilerError) {
	if pos != nil {
		fmt.Fprintf(w, "%s: error: %s\n", pos.String(), err.Error())
		return
	}
	fmt.Fprintf(w, "error: %s\n", err.Error())
}
