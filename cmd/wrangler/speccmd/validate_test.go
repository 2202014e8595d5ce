// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package speccmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bureau-foundation/wrangler/cmd/wrangler/cli"
	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
	"github.com/bureau-foundation/wrangler/lib/testutil"
)

const specWithWarning = `version: 1
environments:
  roman:
    packages:
      - name: numpy
        constraint: ">=1.20"
  bare:
    python: "3.11"
`

func TestValidateReportsIssues(t *testing.T) {
	t.Parallel()

	path := testutil.WriteSpec(t, specWithWarning)
	result := validate(path, nil)

	if result.Malformed != "" {
		t.Fatalf("Malformed = %q, want a well-formed document", result.Malformed)
	}
	if len(result.Issues) != 1 {
		t.Fatalf("Issues = %+v, want exactly the empty-environment warning", result.Issues)
	}
	issue := result.Issues[0]
	if issue.Environment != "bare" || issue.Severity != wrangler.SeverityWarning {
		t.Errorf("issue = %+v, want a warning for bare", issue)
	}
	if result.failed(false) {
		t.Error("a warning failed validation without --strict")
	}
	if !result.failed(true) {
		t.Error("a warning passed validation with --strict")
	}
}

func TestValidateFiltersByEnvironment(t *testing.T) {
	t.Parallel()

	path := testutil.WriteSpec(t, specWithWarning)
	result := validate(path, []string{"roman"})
	if result.Malformed != "" || len(result.Issues) != 0 {
		t.Errorf("validate(roman) = %+v, want no issues", result)
	}
}

func TestValidateMalformed(t *testing.T) {
	t.Parallel()

	path := testutil.WriteSpec(t, "environments:\n  roman:\n    packages:\n      - name: numpy\n")
	result := validate(path, nil)
	if !strings.Contains(result.Malformed, "version: required") {
		t.Errorf("Malformed = %q, want the missing version reported", result.Malformed)
	}
	if !result.failed(false) {
		t.Error("a malformed document passed validation")
	}
}

func TestValidateUnknownEnvironment(t *testing.T) {
	t.Parallel()

	path := testutil.WriteSpec(t, specWithWarning)
	result := validate(path, []string{"jwst"})
	if !strings.Contains(result.Malformed, `no environment "jwst"`) {
		t.Errorf("Malformed = %q, want the unknown environment reported", result.Malformed)
	}
}

func TestPrintValidation(t *testing.T) {
	t.Parallel()

	options := cli.ColorOptions{Color: cli.ColorNever}
	var buffer bytes.Buffer
	styles, err := options.NewStyles(&buffer)
	if err != nil {
		t.Fatalf("NewStyles: %v", err)
	}
	printValidation(&buffer, styles, validation{
		Spec: "roman.yaml",
		Issues: []wrangler.ValidationIssue{
			{Severity: wrangler.SeverityError, Environment: "roman", Entry: "numpy", Message: "curated registry entry is not exactly pinned"},
		},
	})
	want := "roman.yaml  FAIL\n  error roman/numpy: curated registry entry is not exactly pinned\n"
	if got := buffer.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}
