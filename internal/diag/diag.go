// Package diag renders assembler and linker diagnostics in the
// "filename:line: ERROR: message [token]" style, colorizing the
// severity label on a terminal.
package diag

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	errorLabel = color.New(color.FgRed, color.Bold).SprintFunc()
	warnLabel  = color.New(color.FgYellow, color.Bold).SprintFunc()
)

// Diagnostic is one reported error or warning, optionally anchored to
// a source file, line and offending token.
type Diagnostic struct {
	File    string
	Line    int
	Token   string
	Message string
}

func (d Diagnostic) location() string {
	if d.File == "" {
		return ""
	}
	if d.Line > 0 {
		return fmt.Sprintf("%s:%d: ", d.File, d.Line)
	}
	return fmt.Sprintf("%s: ", d.File)
}

// Error formats d as a fatal diagnostic line.
func (d Diagnostic) Error() string {
	return d.render(errorLabel("ERROR"))
}

// Warning formats d as a non-fatal diagnostic line.
func (d Diagnostic) Warning() string {
	return d.render(warnLabel("WARNING"))
}

func (d Diagnostic) render(label string) string {
	s := fmt.Sprintf("%s%s: %s", d.location(), label, d.Message)
	if d.Token != "" {
		s += fmt.Sprintf(" [%s]", d.Token)
	}
	return s
}

// Fatal formats and writes a fatal diagnostic to w.
func Fatal(w io.Writer, d Diagnostic) {
	fmt.Fprintln(w, d.Error())
}

// Warn formats and writes a warning diagnostic to w.
func Warn(w io.Writer, d Diagnostic) {
	fmt.Fprintln(w, d.Warning())
}

// Reporter accumulates collectable (non-immediately-fatal) errors,
// matching the linker's "continue relocation, then bail" policy.
type Reporter struct {
	w        io.Writer
	errCount int
}

// NewReporter returns a Reporter writing to w.
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// Error records a collectable error and prints it immediately.
func (r *Reporter) Error(d Diagnostic) {
	r.errCount++
	Fatal(r.w, d)
}

// Warn prints a non-fatal warning.
func (r *Reporter) Warn(d Diagnostic) {
	Warn(r.w, d)
}

// Failed reports whether any collectable error has been recorded.
func (r *Reporter) Failed() bool {
	return r.errCount > 0
}

// Count returns the number of collectable errors recorded so far.
func (r *Reporter) Count() int {
	return r.errCount
}
