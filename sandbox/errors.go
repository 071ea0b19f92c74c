package sandbox

import (
	"errors"
	"fmt"
	"strings"
)

// Static errors for the sandbox package
var (
	ErrSyntax          = errors.New("script syntax error")
	ErrRuntime         = errors.New("script raised an exception")
	ErrInvalidParam    = errors.New("invalid wrapper parameter name")
	ErrNotAFunction    = errors.New("wrapped script did not evaluate to a function")
	ErrAccessorMissing = errors.New("scope accessor missing")
	ErrInvalidName     = errors.New("accessor name is not an identifier")
)

// ScriptError describes a script that failed validation or threw while running.
// Line and Column are 1-based and refer to the script source as fetched; they
// are zero when the engine did not report a position.
type ScriptError struct {
	Name    string
	Source  string
	Line    int
	Column  int
	Message string

	kind  error
	cause error
}

func newScriptError(kind error, name, source, message string, line, column int, cause error) *ScriptError {
	return &ScriptError{
		Name:    name,
		Source:  source,
		Line:    line,
		Column:  column,
		Message: message,
		kind:    kind,
		cause:   cause,
	}
}

func (e *ScriptError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.Name, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// Is reports whether target is the error kind (ErrSyntax or ErrRuntime).
func (e *ScriptError) Is(target error) bool {
	return target != nil && target == e.kind
}

func (e *ScriptError) Unwrap() error {
	return e.cause
}

// Excerpt renders the offending line with the line before it and a caret
// under the reported column. It returns "" when no position is known.
func (e *ScriptError) Excerpt() string {
	if e.Line < 1 || e.Source == "" {
		return ""
	}
	lines := strings.Split(strings.ReplaceAll(e.Source, "\r\n", "\n"), "\n")
	if e.Line > len(lines) {
		return ""
	}

	var b strings.Builder
	width := len(fmt.Sprint(e.Line))
	if e.Line > 1 {
		fmt.Fprintf(&b, "%*d | %s\n", width, e.Line-1, lines[e.Line-2])
	}
	fmt.Fprintf(&b, "%*d | %s\n", width, e.Line, lines[e.Line-1])
	col := e.Column
	if col < 1 {
		col = 1
	}
	fmt.Fprintf(&b, "%s | %s^", strings.Repeat(" ", width), strings.Repeat(" ", col-1))
	return b.String()
}
