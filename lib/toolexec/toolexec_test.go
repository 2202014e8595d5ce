// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package toolexec

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeScript(t *testing.T, directory, name, body string) string {
	t.Helper()
	path := filepath.Join(directory, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestFindBinary(t *testing.T) {
	t.Parallel()

	fallback := t.TempDir()
	script := writeScript(t, fallback, "wrangler-test-tool", "exit 0\n")

	got, err := FindBinary("wrangler-test-tool", "", fallback)
	if err != nil {
		t.Fatalf("FindBinary: %v", err)
	}
	if got != script {
		t.Errorf("FindBinary = %q, want %q", got, script)
	}

	if got, err := FindBinary("anything", script); err != nil || got != script {
		t.Errorf("FindBinary with override = %q, %v", got, err)
	}

	_, err = FindBinary("wrangler-no-such-tool", "", fallback)
	if err == nil || !strings.Contains(err.Error(), fallback) {
		t.Errorf("FindBinary(missing) error = %v, want mention of fallback dir", err)
	}
}

func TestExec_Run(t *testing.T) {
	t.Parallel()

	directory := t.TempDir()
	writeScript(t, directory, "echoer", `printf '%s|%s|%s' "$1" "$WRANGLER_TEST" "$(cat)"`)

	runner := &Exec{FallbackDirs: []string{directory}}
	output, err := runner.Run(context.Background(), Invocation{
		Name:  "echoer",
		Args:  []string{"hello"},
		Env:   []string{"WRANGLER_TEST=set"},
		Stdin: strings.NewReader("input"),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if output != "hello|set|input" {
		t.Errorf("output = %q", output)
	}
}

func TestExec_RunFailurePreservesOutput(t *testing.T) {
	t.Parallel()

	directory := t.TempDir()
	writeScript(t, directory, "failer", "echo partial progress\necho 'solver conflict' >&2\nexit 3\n")

	runner := &Exec{FallbackDirs: []string{directory}}
	output, err := runner.Run(context.Background(), Invocation{Name: "failer", Args: []string{"install"}})

	var toolErr *Error
	if !errors.As(err, &toolErr) {
		t.Fatalf("Run error = %v, want *Error", err)
	}
	if toolErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", toolErr.ExitCode)
	}
	if toolErr.Stderr != "solver conflict" || toolErr.Stdout != "partial progress" {
		t.Errorf("captured stdout=%q stderr=%q", toolErr.Stdout, toolErr.Stderr)
	}
	if !strings.Contains(err.Error(), "failer install: solver conflict (exit status 3)") {
		t.Errorf("Error() = %q", err.Error())
	}
	if !strings.Contains(output, "partial progress") {
		t.Errorf("partial stdout not returned: %q", output)
	}
}

func TestFake(t *testing.T) {
	t.Parallel()

	fake := &Fake{Strict: true}
	fake.On("git", "generic", nil)
	fake.On("git ls-remote", "specific", nil)

	output, err := fake.Run(context.Background(), Invocation{Name: "git", Args: []string{"ls-remote", "url"}})
	if err != nil || output != "specific" {
		t.Errorf("Run = %q, %v; want longest prefix match", output, err)
	}
	if _, err := fake.Run(context.Background(), Invocation{Name: "pip"}); err == nil {
		t.Error("strict fake accepted an unscripted command")
	}
	if got := fake.CallsWithPrefix("git"); got != 1 {
		t.Errorf("CallsWithPrefix(git) = %d, want 1", got)
	}
}
