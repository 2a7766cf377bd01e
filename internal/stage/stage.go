// Package stage defines the error type shared by every step of the build
// pipeline. A stage error names the step that failed, the file, URL or
// command it was working on, and keeps the tool output verbatim.
package stage

import (
	"errors"
	"strings"
)

// Stage identifies a pipeline step.
type Stage string

const (
	Probe   Stage = "probe"
	Source  Stage = "source"
	Units   Stage = "units"
	Header  Stage = "header"
	Compile Stage = "compile"
	Link    Stage = "link"
	Config  Stage = "config"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnavailable Kind = iota + 1
	KindAcquisition
	KindMalformedSource
	KindCompilation
	KindConfig
)

// Sentinels matched by errors.Is against a *Error of the same kind.
var (
	ErrUnavailable     = errors.New("dependency unavailable")
	ErrAcquisition     = errors.New("source acquisition failed")
	ErrMalformedSource = errors.New("malformed source tree")
	ErrCompilation     = errors.New("compilation failed")
	ErrConfig          = errors.New("invalid configuration")
)

func (k Kind) sentinel() error {
	switch k {
	case KindUnavailable:
		return ErrUnavailable
	case KindAcquisition:
		return ErrAcquisition
	case KindMalformedSource:
		return ErrMalformedSource
	case KindCompilation:
		return ErrCompilation
	case KindConfig:
		return ErrConfig
	}
	return nil
}

// String returns the human readable name of the kind.
func (k Kind) String() string {
	if err := k.sentinel(); err != nil {
		return err.Error()
	}
	return "unknown failure"
}

// Error is a failed pipeline step.
type Error struct {
	Stage   Stage
	Kind    Kind
	Subject string // file, URL or command line
	Err     error
	Output  string // verbatim tool output, may be empty
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Stage))
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Subject != "" {
		b.WriteString(": ")
		b.WriteString(e.Subject)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if out := strings.TrimRight(e.Output, "\n"); out != "" {
		b.WriteString("\n")
		b.WriteString(out)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// New returns a stage error. If err carries tool output (see Outputter),
// the output is copied into the result.
func New(st Stage, kind Kind, subject string, err error) *Error {
	e := &Error{Stage: st, Kind: kind, Subject: subject, Err: err}
	var o Outputter
	if errors.As(err, &o) {
		e.Output = string(o.CombinedOutput())
	}
	return e
}

// Outputter is implemented by errors that captured a process' output.
type Outputter interface {
	CombinedOutput() []byte
}
