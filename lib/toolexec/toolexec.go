// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Invocation describes one external command.
type Invocation struct {
	// Name is the binary name or an absolute path.
	Name string
	Args []string

	// Dir is the working directory. Empty inherits the caller's.
	Dir string

	// Env entries are appended to the inherited environment.
	Env []string

	// Stdin feeds the command's standard input when non-nil.
	Stdin io.Reader

	// Timeout bounds the command. Zero means no deadline beyond ctx.
	Timeout time.Duration
}

// String renders the command line for logs and errors.
func (i Invocation) String() string {
	if len(i.Args) == 0 {
		return i.Name
	}
	return i.Name + " " + strings.Join(i.Args, " ")
}

// Runner executes invocations and returns their stdout.
type Runner interface {
	Run(ctx context.Context, invocation Invocation) (string, error)
}

// Error is a failed invocation. Stdout and Stderr hold the tail of
// each stream as captured when the command exited.
type Error struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	var message strings.Builder
	fmt.Fprintf(&message, "%s: ", e.Command)
	switch {
	case e.Stderr != "":
		message.WriteString(e.Stderr)
	case e.Stdout != "":
		message.WriteString(e.Stdout)
	default:
		message.WriteString(e.Err.Error())
	}
	if e.ExitCode > 0 {
		fmt.Fprintf(&message, " (exit status %d)", e.ExitCode)
	}
	return message.String()
}

func (e *Error) Unwrap() error { return e.Err }

// outputTail caps how much of each stream an Error retains.
const outputTail = 4096

// Exec is the production Runner.
type Exec struct {
	// Binaries maps a tool name to an explicitly configured path.
	Binaries map[string]string

	// FallbackDirs are searched, in order, after PATH.
	FallbackDirs []string

	// Logger receives one debug record per invocation. Nil discards.
	Logger *slog.Logger
}

// FindBinary resolves name to an absolute path: configured override,
// then PATH, then fallbackDirs. Names containing a path separator are
// returned unchanged once they exist.
func FindBinary(name string, override string, fallbackDirs ...string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", fmt.Errorf("%s configured at %s: %w", name, override, err)
		}
		return override, nil
	}
	if strings.ContainsRune(name, filepath.Separator) {
		if _, err := os.Stat(name); err != nil {
			return "", fmt.Errorf("%s: %w", name, err)
		}
		return name, nil
	}
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}
	for _, directory := range fallbackDirs {
		candidate := filepath.Join(directory, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	if len(fallbackDirs) > 0 {
		return "", fmt.Errorf("%s not found on PATH or in %s", name, strings.Join(fallbackDirs, ", "))
	}
	return "", fmt.Errorf("%s not found on PATH", name)
}

// Run resolves and executes the invocation, returning stdout.
func (e *Exec) Run(ctx context.Context, invocation Invocation) (string, error) {
	binaryPath, err := FindBinary(invocation.Name, e.Binaries[invocation.Name], e.FallbackDirs...)
	if err != nil {
		return "", err
	}

	if invocation.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, invocation.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, binaryPath, invocation.Args...)
	command.Dir = invocation.Dir
	command.Stdin = invocation.Stdin
	command.Stdout = &stdout
	command.Stderr = &stderr
	if len(invocation.Env) > 0 {
		command.Env = append(os.Environ(), invocation.Env...)
	}

	if e.Logger != nil {
		e.Logger.Debug("running tool", "command", invocation.String(), "dir", invocation.Dir)
	}
	if err := command.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return stdout.String(), &Error{
			Command:  invocation.String(),
			ExitCode: exitCode,
			Stdout:   tail(stdout.String()),
			Stderr:   tail(stderr.String()),
			Err:      err,
		}
	}
	return stdout.String(), nil
}

func tail(output string) string {
	output = strings.TrimSpace(output)
	if len(output) <= outputTail {
		return output
	}
	return "..." + output[len(output)-outputTail:]
}
