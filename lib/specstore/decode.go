// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package specstore

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
)

// decodeView builds the typed view from the root mapping and collects
// every structural problem. A non-empty problem list means the view
// must not be used.
func decodeView(root *yaml.Node) (wrangler.Document, []string) {
	var document wrangler.Document
	var problems []string
	problem := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if root == nil || root.Kind == 0 {
		return document, []string{"document is empty"}
	}
	if root.Kind != yaml.MappingNode {
		return document, []string{"top level must be a mapping"}
	}

	versionNode := mappingValue(root, "version")
	if versionNode == nil {
		problem("version: required")
	} else if err := versionNode.Decode(&document.Version); err != nil {
		problem("version: %v", err)
	} else if document.Version != wrangler.SpecVersion {
		problem("version: unsupported version %d (want %d)", document.Version, wrangler.SpecVersion)
	}

	environments := mappingValue(root, "environments")
	if environments == nil || environments.Kind != yaml.MappingNode || len(environments.Content) == 0 {
		problem("environments: at least one environment is required")
		return document, problems
	}

	for index := 0; index+1 < len(environments.Content); index += 2 {
		id := environments.Content[index].Value
		value := environments.Content[index+1]
		location := "environments." + id

		if !wrangler.ValidEnvironmentID(id) {
			problem("%s: invalid environment identifier (want [A-Za-z0-9._-]+)", location)
			continue
		}
		if value.Kind != yaml.MappingNode {
			problem("%s: must be a mapping", location)
			continue
		}

		var environment wrangler.EnvironmentSpec
		if err := value.Decode(&environment); err != nil {
			problem("%s: %v", location, err)
			continue
		}
		environment.ID = id
		problems = append(problems, checkEnvironment(location, &environment)...)
		document.Environments = append(document.Environments, environment)
	}
	return document, problems
}

// checkEnvironment reports the structural problems of one decoded
// environment.
func checkEnvironment(location string, environment *wrangler.EnvironmentSpec) []string {
	var problems []string
	problem := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	seen := make(map[string]bool)
	for index, entry := range environment.Packages {
		at := fmt.Sprintf("%s.packages[%d]", location, index)
		switch {
		case entry.Name == "":
			problem("%s: name is required", at)
		case seen[entry.Name]:
			problem("%s: duplicate package %q", at, entry.Name)
		}
		seen[entry.Name] = true
		switch entry.Source {
		case "", wrangler.SourceRegistry:
		case wrangler.SourceVCS:
			if entry.URL == "" {
				problem("%s: vcs package %q requires url", at, entry.Name)
			}
		default:
			problem("%s: unknown source %q (want registry or vcs)", at, entry.Source)
		}
	}

	seen = make(map[string]bool)
	for index, repository := range environment.Repositories {
		at := fmt.Sprintf("%s.repositories[%d]", location, index)
		switch {
		case repository.Name == "":
			problem("%s: name is required", at)
		case seen[repository.Name]:
			problem("%s: duplicate repository %q", at, repository.Name)
		}
		seen[repository.Name] = true
		if repository.URL == "" {
			problem("%s: repository %q requires url", at, repository.Name)
		}
	}

	seen = make(map[string]bool)
	for index, entry := range environment.Data {
		at := fmt.Sprintf("%s.data[%d]", location, index)
		switch {
		case entry.Name == "":
			problem("%s: name is required", at)
		case seen[entry.Name]:
			problem("%s: duplicate data entry %q", at, entry.Name)
		}
		seen[entry.Name] = true
		if entry.Source != "" && entry.Source != wrangler.SourceData {
			problem("%s: unknown source %q (want data)", at, entry.Source)
		}
		if entry.URL == "" {
			problem("%s: data entry %q requires url", at, entry.Name)
		}
	}

	for index, notebook := range environment.TestNotebooks {
		at := fmt.Sprintf("%s.test_notebooks[%d]", location, index)
		if notebook.Path == "" {
			problem("%s: path is required", at)
		}
		if _, ok := environment.Repository(notebook.Repository); !ok {
			problem("%s: repository %q is not declared", at, notebook.Repository)
		}
	}
	return problems
}
