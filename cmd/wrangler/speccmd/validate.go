// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package speccmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bureau-foundation/wrangler/cmd/wrangler/cli"
	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
	"github.com/bureau-foundation/wrangler/lib/specstore"
	"github.com/bureau-foundation/wrangler/lib/workflow"
)

type validateParams struct {
	cli.LogOptions
	cli.JSONOutput
	cli.ColorOptions
	cli.SpecOptions

	Strict bool `flag:"strict" desc:"treat warnings as failures"`
}

// validation is the result for one spec file.
type validation struct {
	Spec      string                     `json:"spec"`
	Malformed string                     `json:"malformed,omitempty"` // load or scoping failure
	Issues    []wrangler.ValidationIssue `json:"issues"`
}

func (v validation) failed(strict bool) bool {
	if v.Malformed != "" || wrangler.HasErrors(v.Issues) {
		return true
	}
	return strict && len(v.Issues) > 0
}

func validateCommand() *cli.Command {
	var params validateParams

	return &cli.Command{
		Name:    "spec-validate",
		Summary: "Check spec documents for schema errors and curation problems",
		Description: `Parse each spec document and report validation issues.

A document that violates the schema (missing version, duplicate
entry names, vcs packages without a url, ...) is malformed and no
other command will operate on it. A well-formed document may still
have issues: a curated entry that is not exactly pinned, content
modified since curation, or an unknown archive format are errors;
a curated entry without its original constraint or an environment
with no packages are warnings.

Exits non-zero when any document is malformed or has an error
(or, with --strict, any issue at all).`,
		Usage:  "wrangler spec-validate [flags] [spec.yaml...]",
		Params: func() any { return &params },
		Run: func(_ context.Context, args []string, logger *slog.Logger) error {
			paths, err := params.SpecPaths(args)
			if err != nil {
				return err
			}
			styles, err := params.NewStyles(os.Stdout)
			if err != nil {
				return err
			}

			results := make([]validation, 0, len(paths))
			failed := false
			for _, path := range paths {
				result := validate(path, params.Environments)
				if result.failed(params.Strict) {
					failed = true
				}
				logger.Debug("validated", "spec", path, "issues", len(result.Issues))
				results = append(results, result)
			}

			if done, err := params.EmitJSON(results); done {
				if err != nil {
					return err
				}
			} else {
				for _, result := range results {
					printValidation(os.Stdout, styles, result)
				}
			}
			if failed {
				return &cli.ExitError{Code: cli.CategoryValidation.ExitCode()}
			}
			return nil
		},
	}
}

// validate loads and validates one spec, keeping only issues of the
// named environments when any are given.
func validate(path string, environments []string) validation {
	result := validation{Spec: path}
	document, err := specstore.Load(path)
	if err != nil {
		result.Malformed = err.Error()
		return result
	}
	scoped, err := workflow.Scope(document, workflow.Options{Environments: environments})
	if err != nil {
		result.Malformed = err.Error()
		return result
	}
	issues := specstore.Validate(document)
	if len(environments) == 0 {
		result.Issues = issues
		return result
	}
	for _, environment := range scoped {
		result.Issues = append(result.Issues, wrangler.ForEnvironment(issues, environment.ID)...)
	}
	return result
}

func printValidation(w io.Writer, styles *cli.Styles, result validation) {
	switch {
	case result.Malformed != "":
		fmt.Fprintf(w, "%s  %s\n  %s\n", styles.Headingf("%s", result.Spec), styles.Verdict(false), result.Malformed)
		return
	case len(result.Issues) == 0:
		fmt.Fprintf(w, "%s  %s\n", styles.Headingf("%s", result.Spec), styles.Verdict(true))
		return
	}
	fmt.Fprintf(w, "%s  %s\n", styles.Headingf("%s", result.Spec), styles.Verdict(!wrangler.HasErrors(result.Issues)))
	for _, issue := range result.Issues {
		location := issue.Environment
		if issue.Entry != "" {
			location += "/" + issue.Entry
		}
		fmt.Fprintf(w, "  %s %s: %s\n", styles.Severity(string(issue.Severity)), location, issue.Message)
	}
}
