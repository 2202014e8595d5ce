// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package toolexec

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Fake is a scripted Runner for tests. Responses are matched by
// command-line prefix; the longest matching prefix wins. Unmatched
// invocations succeed with empty output unless Strict is set.
type Fake struct {
	// Strict fails invocations that match no response.
	Strict bool

	mu        sync.Mutex
	responses []fakeResponse
	calls     []Invocation
	stdin     []string
}

type fakeResponse struct {
	prefix string
	handle func(Invocation) (string, error)
}

// On registers a fixed response for invocations whose command line
// starts with prefix.
func (f *Fake) On(prefix string, stdout string, err error) {
	f.OnFunc(prefix, func(Invocation) (string, error) { return stdout, err })
}

// OnFunc registers a handler for invocations whose command line
// starts with prefix. The handler runs with the fake unlocked and may
// touch the filesystem to simulate side effects.
func (f *Fake) OnFunc(prefix string, handle func(Invocation) (string, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeResponse{prefix: prefix, handle: handle})
}

// Run records the invocation and returns the scripted response.
func (f *Fake) Run(ctx context.Context, invocation Invocation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	stdin := ""
	if invocation.Stdin != nil {
		data, _ := io.ReadAll(invocation.Stdin)
		stdin = string(data)
	}

	line := invocation.String()
	f.mu.Lock()
	f.calls = append(f.calls, invocation)
	f.stdin = append(f.stdin, stdin)
	var best *fakeResponse
	for index := range f.responses {
		response := &f.responses[index]
		if strings.HasPrefix(line, response.prefix) && (best == nil || len(response.prefix) > len(best.prefix)) {
			best = response
		}
	}
	strict := f.Strict
	f.mu.Unlock()

	if best == nil {
		if strict {
			return "", &Error{Command: line, ExitCode: 127, Err: fmt.Errorf("unexpected command")}
		}
		return "", nil
	}
	return best.handle(invocation)
}

// Calls returns the recorded command lines in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := make([]string, len(f.calls))
	for index, call := range f.calls {
		lines[index] = call.String()
	}
	return lines
}

// Invocations returns the recorded invocations in order.
func (f *Fake) Invocations() []Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	invocations := make([]Invocation, len(f.calls))
	copy(invocations, f.calls)
	return invocations
}

// Stdin returns what the nth recorded invocation received on stdin.
func (f *Fake) Stdin(n int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stdin[n]
}

// CallsWithPrefix counts recorded invocations starting with prefix.
func (f *Fake) CallsWithPrefix(prefix string) int {
	count := 0
	for _, line := range f.Calls() {
		if strings.HasPrefix(line, prefix) {
			count++
		}
	}
	return count
}
