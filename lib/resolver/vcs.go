// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
	"github.com/bureau-foundation/wrangler/lib/toolexec"
)

var fullSHA = regexp.MustCompile(`^[0-9a-f]{40}$`)

// VCS resolves branch and tag names to commit shas with git ls-remote.
type VCS struct {
	Runner toolexec.Runner
}

// Resolve implements curation.Resolver. An empty ref resolves HEAD.
func (v *VCS) Resolve(ctx context.Context, item wrangler.Item) (string, error) {
	ref := strings.TrimSpace(item.Constraint)
	if fullSHA.MatchString(ref) {
		return ref, nil
	}
	if ref == "" {
		ref = "HEAD"
	}

	output, err := v.Runner.Run(ctx, toolexec.Invocation{
		Name: "git",
		Args: []string{"ls-remote", item.URL, ref, "refs/tags/" + ref + "^{}"},
		Env:  []string{"GIT_TERMINAL_PROMPT=0"},
	})
	if err != nil {
		return "", fmt.Errorf("listing %s: %w", item.URL, err)
	}

	refs := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		sha, name, ok := strings.Cut(strings.TrimSpace(line), "\t")
		if ok && fullSHA.MatchString(sha) {
			refs[name] = sha
		}
	}
	// Peeled tags name the commit; the plain tag ref may name an
	// annotated tag object.
	for _, candidate := range []string{
		ref,
		"refs/heads/" + ref,
		"refs/tags/" + ref + "^{}",
		"refs/tags/" + ref,
	} {
		if sha, ok := refs[candidate]; ok {
			return sha, nil
		}
	}
	return "", fmt.Errorf("%s has no ref %q: %w", item.URL, ref, ErrNotFound)
}
