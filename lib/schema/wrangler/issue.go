// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wrangler

import "fmt"

// Severity grades a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationIssue is a non-fatal finding about a structurally valid
// document. Callers decide whether error-severity issues block an
// operation; lifecycle transitions refuse to run on them.
type ValidationIssue struct {
	Severity    Severity `json:"severity"`
	Environment string   `json:"environment"`

	// Entry is the offending entry name. Empty for environment-level
	// issues.
	Entry string `json:"entry,omitempty"`

	Message string `json:"message"`
}

func (v ValidationIssue) String() string {
	if v.Entry != "" {
		return fmt.Sprintf("%s: %s/%s: %s", v.Severity, v.Environment, v.Entry, v.Message)
	}
	return fmt.Sprintf("%s: %s: %s", v.Severity, v.Environment, v.Message)
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []ValidationIssue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ForEnvironment filters issues down to one environment.
func ForEnvironment(issues []ValidationIssue, environment string) []ValidationIssue {
	var filtered []ValidationIssue
	for _, issue := range issues {
		if issue.Environment == environment {
			filtered = append(filtered, issue)
		}
	}
	return filtered
}
