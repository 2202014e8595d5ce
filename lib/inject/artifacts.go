// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package inject

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/wrangler/lib/archive"
	"github.com/bureau-foundation/wrangler/lib/mamba"
	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
	"github.com/bureau-foundation/wrangler/lib/specstore"
)

// Artifact file names inside an environment's artifact directory.
const (
	RequirementsFile = "requirements.txt"
	EnvironmentFile  = "environment.yml"
	SpecFile         = "spec.yaml"
	ArchiveFile      = "archive.json"
)

// Artifact is one file to commit, relative to the environment's
// artifact directory.
type Artifact struct {
	Name    string
	Content []byte
}

// Input is everything artifacts are rendered from.
type Input struct {
	Spec wrangler.EnvironmentSpec

	// SpecDocument is the encoded spec file the environment came from.
	SpecDocument []byte

	// Manifest describes the packed environment. Nil omits archive.json.
	Manifest *archive.Manifest
}

// Render produces the artifact set for an environment, sorted by name.
// The environment must be marked curated with every spec entry pinned,
// and its content must still match the curation fingerprint.
func Render(input Input) ([]Artifact, error) {
	spec := input.Spec
	if !spec.Curation.Curated || !spec.FullyCurated(wrangler.FlavorSpec) {
		return nil, fmt.Errorf("environment %s is not curated", spec.ID)
	}
	if spec.Curation.Fingerprint != "" {
		if current := specstore.Fingerprint(spec); current != spec.Curation.Fingerprint {
			return nil, fmt.Errorf("environment %s was modified since curation (fingerprint %s, content %s)",
				spec.ID, spec.Curation.Fingerprint, current)
		}
	}
	requirements := mamba.Requirements(spec, nil)

	environment, err := renderEnvironment(spec, requirements)
	if err != nil {
		return nil, err
	}
	artifacts := []Artifact{
		{Name: RequirementsFile, Content: renderRequirements(spec, requirements)},
		{Name: EnvironmentFile, Content: environment},
	}
	if len(input.SpecDocument) > 0 {
		artifacts = append(artifacts, Artifact{Name: SpecFile, Content: input.SpecDocument})
	}
	if input.Manifest != nil {
		content, err := renderArchive(input.Manifest)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, Artifact{Name: ArchiveFile, Content: content})
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Name < artifacts[j].Name })
	return artifacts, nil
}

func renderRequirements(spec wrangler.EnvironmentSpec, requirements []string) []byte {
	var builder strings.Builder
	fmt.Fprintf(&builder, "# Pinned requirements for environment %s.\n", spec.ID)
	if spec.Curation.Fingerprint != "" {
		fmt.Fprintf(&builder, "# fingerprint: %s\n", spec.Curation.Fingerprint)
	}
	for _, requirement := range requirements {
		builder.WriteString(requirement)
		builder.WriteByte('\n')
	}
	return []byte(builder.String())
}

// condaEnvironment is the environment.yml layout conda and micromamba
// accept.
type condaEnvironment struct {
	Name         string            `yaml:"name"`
	Channels     []string          `yaml:"channels,omitempty"`
	Dependencies []any             `yaml:"dependencies"`
	Variables    map[string]string `yaml:"variables,omitempty"`
}

func renderEnvironment(spec wrangler.EnvironmentSpec, requirements []string) ([]byte, error) {
	channels := spec.Channels
	if len(channels) == 0 {
		channels = []string{"conda-forge"}
	}
	python := "python"
	if spec.Python != "" {
		python = "python=" + spec.Python
	}
	dependencies := []any{python, "pip"}
	if len(requirements) > 0 {
		dependencies = append(dependencies, map[string][]string{"pip": requirements})
	}
	data, err := yaml.Marshal(condaEnvironment{
		Name:         spec.ID,
		Channels:     channels,
		Dependencies: dependencies,
		Variables:    spec.EnvVars,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding %s for %s: %w", EnvironmentFile, spec.ID, err)
	}
	return data, nil
}

// archiveSummary is archive.json: the manifest without its file list.
type archiveSummary struct {
	Environment string    `json:"environment"`
	Format      string    `json:"format"`
	Created     time.Time `json:"created"`
	Digest      string    `json:"digest"`
	Size        int64     `json:"size"`
	Files       int       `json:"files"`
	Unpacked    int64     `json:"unpacked_size"`
}

func renderArchive(manifest *archive.Manifest) ([]byte, error) {
	data, err := json.MarshalIndent(archiveSummary{
		Environment: manifest.Environment,
		Format:      manifest.Format,
		Created:     manifest.Created.UTC(),
		Digest:      manifest.Digest,
		Size:        manifest.Size,
		Files:       len(manifest.Files),
		Unpacked:    manifest.TotalSize(),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", ArchiveFile, err)
	}
	return append(data, '\n'), nil
}
