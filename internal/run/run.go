// Package run executes the external tools the pipeline depends on
// (pkg-config, git, tar, configure, the C compiler and the archiver).
package run

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/apex/log"
	"golang.org/x/sys/execabs"
)

// Cmd describes a process to run.
type Cmd struct {
	Name string
	Args []string
	Dir  string   // working directory, empty means the current one
	Env  []string // KEY=VALUE entries added to the current environment
}

// Command returns a Cmd for name and args.
func Command(name string, args ...string) *Cmd {
	return &Cmd{Name: name, Args: args}
}

// String returns the shell-quoted command line.
func (c *Cmd) String() string {
	parts := make([]string, 0, 1+len(c.Args))
	for _, s := range append([]string{c.Name}, c.Args...) {
		if s == "" || strings.ContainsAny(s, " \t\n\"'\\$") {
			s = strconv.Quote(s)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

// Runner runs commands. Run returns the standard output of a successful
// command; on failure the error is an *ExitError unless the command could
// not be started at all.
type Runner interface {
	Run(ctx context.Context, c *Cmd) ([]byte, error)
}

// Func adapts a function to the Runner interface.
type Func func(ctx context.Context, c *Cmd) ([]byte, error)

// Run implements Runner.
func (f Func) Run(ctx context.Context, c *Cmd) ([]byte, error) {
	return f(ctx, c)
}

// ExitError is returned when a command exits unsuccessfully.
type ExitError struct {
	Cmd    string
	Output []byte // stdout followed by stderr
	Err    error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: %v", e.Cmd, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// CombinedOutput returns everything the command printed.
func (e *ExitError) CombinedOutput() []byte { return e.Output }

type execRunner struct {
	logger log.Interface
}

// New returns a Runner backed by os/exec. Every command line is logged at
// debug level before it starts.
func New(logger log.Interface) Runner {
	if logger == nil {
		logger = log.Log
	}
	return &execRunner{logger: logger}
}

func (r *execRunner) Run(ctx context.Context, c *Cmd) ([]byte, error) {
	path, err := execabs.LookPath(c.Name)
	if err != nil {
		return nil, err
	}
	cmd := execabs.CommandContext(ctx, path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	for _, kv := range c.Env {
		r.logger.Debugf("+ export %s", kv)
	}
	if c.Dir != "" {
		r.logger.Debugf("+ cd %s", c.Dir)
	}
	r.logger.Debugf("+ %s", c)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		out := append(stdout.Bytes(), stderr.Bytes()...)
		return nil, &ExitError{Cmd: c.String(), Output: out, Err: err}
	}
	return stdout.Bytes(), nil
}
