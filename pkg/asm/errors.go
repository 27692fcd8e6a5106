package asm

import (
	"fmt"
	"strings"
)

// MaxErrors is the error count above which a pass stops early.
const MaxErrors = 10

// InlineError is a diagnostic attached to one source line.
type InlineError struct {
	Scope   string
	Message string // rendered with the line and hints
	Line    string
	LineNo  int
	CoreMsg string
	Hints   string
}

func (e *InlineError) Error() string {
	return fmt.Sprintf("line %d: %s", e.LineNo, e.CoreMsg)
}

// Errors is the error returned by File.Emit. It holds every diagnostic in
// source order.
type Errors []*InlineError

func (e Errors) Error() string {
	var sb strings.Builder
	for _, err := range e {
		sb.WriteString(err.Message)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (f *File) pushError(msg, hints string) {
	ln := f.current
	if ln == nil {
		ln = &Line{}
	}
	err := &InlineError{
		Scope:   f.scopeLabel(ln.Scope),
		Message: fmt.Sprintf("  -> Line %d ('%s'), error: %s\n%s", ln.LineNo, ln.Text, msg, hints),
		Line:    ln.Text,
		LineNo:  ln.LineNo,
		CoreMsg: msg,
		Hints:   hints,
	}
	f.errors = append(f.errors, err)
	if f.ThrowOnError || f.strict {
		f.halted = true
	}
}

func (f *File) directiveError(format string, args ...any) {
	f.pushError(fmt.Sprintf(format, args...), "")
}

// stopped reports whether the current pass should stop consuming lines.
func (f *File) stopped() bool {
	return f.halted || len(f.errors) > MaxErrors
}
