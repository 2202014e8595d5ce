// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wrangler

import (
	"regexp"
	"time"
)

// SpecVersion is the only document version this build understands.
const SpecVersion = 1

// Document is the typed view of a spec document. Environments appear
// in document order.
type Document struct {
	// Version is the document schema version. Must equal SpecVersion.
	Version int `yaml:"version"`

	// Environments lists every environment in the order it appears
	// under the "environments" mapping.
	Environments []EnvironmentSpec `yaml:"-"`
}

// Environment returns the environment with the given identifier.
func (d *Document) Environment(id string) (*EnvironmentSpec, bool) {
	for index := range d.Environments {
		if d.Environments[index].ID == id {
			return &d.Environments[index], true
		}
	}
	return nil, false
}

// EnvironmentIDs returns the environment identifiers in document order.
func (d *Document) EnvironmentIDs() []string {
	ids := make([]string, 0, len(d.Environments))
	for _, environment := range d.Environments {
		ids = append(ids, environment.ID)
	}
	return ids
}

// EnvironmentSpec describes one named environment. The identifier is
// the key under "environments" and doubles as the micromamba
// environment name and the Jupyter kernel name.
type EnvironmentSpec struct {
	// ID is the mapping key. Not stored inside the mapping value.
	ID string `yaml:"-"`

	// DisplayName is the kernel display name. Defaults to ID.
	DisplayName string `yaml:"display_name,omitempty"`

	// Python is the interpreter version requested from the package
	// manager (e.g., "3.11").
	Python string `yaml:"python,omitempty"`

	// Channels are conda channels used when creating the environment.
	Channels []string `yaml:"channels,omitempty"`

	// ArchiveFormat overrides the configured pack format for this
	// environment. One of the ArchiveFormat constants.
	ArchiveFormat string `yaml:"archive_format,omitempty"`

	// Packages are the spec-flavor dependencies installed into the
	// environment, in install order.
	Packages []Entry `yaml:"packages,omitempty"`

	// Repositories are the notebook and source repositories cloned
	// before compilation and testing.
	Repositories []Repository `yaml:"repositories,omitempty"`

	// Data are the data-flavor archive references.
	Data []Entry `yaml:"data,omitempty"`

	// TestNotebooks are the verification targets for test-imports and
	// test-notebooks.
	TestNotebooks []TestNotebook `yaml:"test_notebooks,omitempty"`

	// EnvVars are exported into the registered kernel.
	EnvVars map[string]string `yaml:"env_vars,omitempty"`

	// Deployment locates the downstream repository that receives
	// injected artifacts.
	Deployment Deployment `yaml:"deployment,omitempty"`

	// Curation holds the environment-level curation annotations.
	Curation CurationState `yaml:"curation,omitempty"`
}

// KernelDisplayName returns DisplayName, or ID when unset.
func (e *EnvironmentSpec) KernelDisplayName() string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	return e.ID
}

// Repository returns the repository entry with the given name.
func (e *EnvironmentSpec) Repository(name string) (*Repository, bool) {
	for index := range e.Repositories {
		if e.Repositories[index].Name == name {
			return &e.Repositories[index], true
		}
	}
	return nil, false
}

// Entry is a package or data dependency.
type Entry struct {
	// Name is the distribution or data set name. Unique within its list.
	Name string `yaml:"name"`

	// Constraint is the version constraint. Before curation it may be
	// a range (">=1.20"), a branch, or empty. After curation it is an
	// exact pin in the form required by Source (see IsExactPin).
	Constraint string `yaml:"constraint,omitempty"`

	// Source is the entry kind. Empty means SourceRegistry for
	// packages and SourceData for data entries.
	Source SourceKind `yaml:"source,omitempty"`

	// URL is the clone URL for vcs entries and the download URL for
	// data entries.
	URL string `yaml:"url,omitempty"`

	// InstallPath is where a data archive is unpacked.
	InstallPath string `yaml:"install_path,omitempty"`

	// Curated is set by the curation engine once Constraint is pinned.
	Curated bool `yaml:"curated,omitempty"`

	// Original preserves the pre-curation constraint so that reset can
	// restore it. A nil Original on a curated entry means the original
	// constraint was lost and reset degrades to clearing Curated.
	Original *string `yaml:"original,omitempty"`
}

// Repository is a source or notebook repository referenced by an
// environment.
type Repository struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`

	// Ref is a branch, tag, or commit before curation and a full
	// commit sha after.
	Ref string `yaml:"ref,omitempty"`

	Curated  bool    `yaml:"curated,omitempty"`
	Original *string `yaml:"original,omitempty"`
}

// TestNotebook names a notebook inside one of the environment's
// repositories, plus the modules whose import is verified.
type TestNotebook struct {
	Repository string   `yaml:"repository"`
	Path       string   `yaml:"path"`
	Imports    []string `yaml:"imports,omitempty"`
}

// Deployment locates the downstream deployment repository.
type Deployment struct {
	// Repository is the clone URL of the deployment repository.
	Repository string `yaml:"repository,omitempty"`

	// Path is the artifact root inside the repository. Artifacts for
	// environment E are written to <Path>/<E>.
	Path string `yaml:"path,omitempty"`

	// BaseBranch is the branch feature branches are cut from.
	BaseBranch string `yaml:"base_branch,omitempty"`
}

// CurationState is the environment-level curation annotation.
type CurationState struct {
	// Curated is true once every spec-flavor entry is pinned.
	Curated bool `yaml:"curated,omitempty"`

	// Fingerprint is the hex BLAKE3 digest of the curated content at
	// the time of the last curation or spec-update.
	Fingerprint string `yaml:"fingerprint,omitempty"`

	// CuratedAt is when the environment was last curated.
	CuratedAt time.Time `yaml:"curated_at,omitempty"`
}

// Archive formats accepted by archive_format and --env-archive-format.
const (
	ArchiveTarZstd = "tar.zst"
	ArchiveTarLZ4  = "tar.lz4"
	ArchiveTar     = "tar"
)

// ArchiveFormats lists the supported formats in preference order.
var ArchiveFormats = []string{ArchiveTarZstd, ArchiveTarLZ4, ArchiveTar}

// ValidArchiveFormat reports whether format is supported.
func ValidArchiveFormat(format string) bool {
	for _, known := range ArchiveFormats {
		if format == known {
			return true
		}
	}
	return false
}

var environmentIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidEnvironmentID reports whether id can name both a micromamba
// environment and a Jupyter kernel.
func ValidEnvironmentID(id string) bool {
	return id != "." && id != ".." && environmentIDPattern.MatchString(id)
}
