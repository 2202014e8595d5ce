// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
	"github.com/bureau-foundation/wrangler/lib/toolexec"
)

// ErrNotFound reports that the upstream has no match for a constraint.
var ErrNotFound = errors.New("not found upstream")

// Registry resolves registry packages with uv's resolver. Only the
// requested package is resolved; its dependencies are pinned through
// their own entries.
type Registry struct {
	Runner toolexec.Runner

	// Python is the interpreter version resolution targets.
	Python string

	// IndexURL overrides the default package index when set.
	IndexURL string
}

var nonAlphanumeric = regexp.MustCompile(`[-_.]+`)

// NormalizeName applies PEP 503 normalization.
func NormalizeName(name string) string {
	return strings.ToLower(nonAlphanumeric.ReplaceAllString(name, "-"))
}

// Requirement renders a requirement line for an entry.
func Requirement(name, constraint string) string {
	constraint = strings.TrimSpace(constraint)
	if constraint == "" {
		return name
	}
	if strings.ContainsAny(constraint[:1], "=<>!~") {
		return name + constraint
	}
	// A bare version means exactly that version.
	return name + "==" + constraint
}

// Resolve implements curation.Resolver.
func (r *Registry) Resolve(ctx context.Context, item wrangler.Item) (string, error) {
	args := []string{"pip", "compile", "-", "--no-deps", "--no-header", "--no-annotate", "--quiet"}
	if r.Python != "" {
		args = append(args, "--python-version", r.Python)
	}
	if r.IndexURL != "" {
		args = append(args, "--index-url", r.IndexURL)
	}
	requirement := Requirement(item.Name, item.Constraint)
	output, err := r.Runner.Run(ctx, toolexec.Invocation{
		Name:  "uv",
		Args:  args,
		Stdin: strings.NewReader(requirement + "\n"),
	})
	if err != nil {
		var toolErr *toolexec.Error
		if errors.As(err, &toolErr) && strings.Contains(toolErr.Stderr, "No solution found") {
			return "", fmt.Errorf("%s: %w", requirement, ErrNotFound)
		}
		return "", fmt.Errorf("resolving %s: %w", requirement, err)
	}

	want := NormalizeName(item.Name)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, version, ok := strings.Cut(line, "==")
		if !ok {
			continue
		}
		// Drop environment markers and extras.
		version, _, _ = strings.Cut(version, ";")
		name, _, _ = strings.Cut(name, "[")
		if NormalizeName(strings.TrimSpace(name)) == want {
			return "==" + strings.TrimSpace(version), nil
		}
	}
	return "", fmt.Errorf("%s: resolver output has no pin for %s: %w", requirement, item.Name, ErrNotFound)
}
