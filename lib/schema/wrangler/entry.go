// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wrangler

import (
	"fmt"
	"regexp"
)

// SourceKind identifies how an entry is resolved and installed.
type SourceKind string

const (
	// SourceRegistry is a package resolved from a package index.
	SourceRegistry SourceKind = "registry"

	// SourceVCS is a package built from a version-control reference.
	SourceVCS SourceKind = "vcs"

	// SourceData is a data archive pinned by content digest.
	SourceData SourceKind = "data"
)

// IsValid reports whether k is a known source kind.
func (k SourceKind) IsValid() bool {
	switch k {
	case SourceRegistry, SourceVCS, SourceData:
		return true
	}
	return false
}

// Flavor partitions curatable entries into disjoint sets that are
// curated and reset independently.
type Flavor string

const (
	// FlavorSpec covers everything needed to construct the
	// environment: packages and repositories.
	FlavorSpec Flavor = "spec"

	// FlavorData covers data archive references.
	FlavorData Flavor = "data"
)

// Section names a list of curatable entries inside an environment.
type Section struct {
	// Key is the YAML key of the list ("packages").
	Key string

	// ConstraintKey is the YAML key holding the constraint or ref.
	ConstraintKey string

	// Flavor is the curation flavor owning this section.
	Flavor Flavor
}

// Sections in the order curation visits them.
var (
	PackagesSection     = Section{Key: "packages", ConstraintKey: "constraint", Flavor: FlavorSpec}
	RepositoriesSection = Section{Key: "repositories", ConstraintKey: "ref", Flavor: FlavorSpec}
	DataSection         = Section{Key: "data", ConstraintKey: "constraint", Flavor: FlavorData}
)

// Sections lists every curatable section.
var Sections = []Section{PackagesSection, RepositoriesSection, DataSection}

// SectionsFor returns the sections belonging to flavor.
func SectionsFor(flavor Flavor) []Section {
	var sections []Section
	for _, section := range Sections {
		if section.Flavor == flavor {
			sections = append(sections, section)
		}
	}
	return sections
}

// Item is a uniform view of one curatable entry regardless of which
// section it lives in. Curation, validation, and fingerprinting all
// operate on Items.
type Item struct {
	Environment string
	Section     Section

	// Index is the position within the section's list.
	Index int

	Name       string
	Kind       SourceKind
	URL        string
	Constraint string
	Curated    bool
	Original   *string
}

// String identifies the item in logs and errors.
func (i Item) String() string {
	return fmt.Sprintf("%s/%s/%s", i.Environment, i.Section.Key, i.Name)
}

// Items returns the curatable entries of the given flavor in
// section order.
func (e *EnvironmentSpec) Items(flavor Flavor) []Item {
	var items []Item
	for _, section := range SectionsFor(flavor) {
		items = append(items, e.SectionItems(section)...)
	}
	return items
}

// SectionItems returns the entries in one section.
func (e *EnvironmentSpec) SectionItems(section Section) []Item {
	var items []Item
	switch section.Key {
	case PackagesSection.Key:
		for index, entry := range e.Packages {
			kind := entry.Source
			if kind == "" {
				kind = SourceRegistry
			}
			items = append(items, Item{
				Environment: e.ID, Section: section, Index: index,
				Name: entry.Name, Kind: kind, URL: entry.URL,
				Constraint: entry.Constraint, Curated: entry.Curated, Original: entry.Original,
			})
		}
	case RepositoriesSection.Key:
		for index, repository := range e.Repositories {
			items = append(items, Item{
				Environment: e.ID, Section: section, Index: index,
				Name: repository.Name, Kind: SourceVCS, URL: repository.URL,
				Constraint: repository.Ref, Curated: repository.Curated, Original: repository.Original,
			})
		}
	case DataSection.Key:
		for index, entry := range e.Data {
			items = append(items, Item{
				Environment: e.ID, Section: section, Index: index,
				Name: entry.Name, Kind: SourceData, URL: entry.URL,
				Constraint: entry.Constraint, Curated: entry.Curated, Original: entry.Original,
			})
		}
	}
	return items
}

// FullyCurated reports whether every item of flavor is curated.
// An environment with no items of that flavor is trivially curated.
func (e *EnvironmentSpec) FullyCurated(flavor Flavor) bool {
	for _, item := range e.Items(flavor) {
		if !item.Curated {
			return false
		}
	}
	return true
}

var (
	registryPinPattern = regexp.MustCompile(`^==[A-Za-z0-9][A-Za-z0-9.+!_-]*$`)
	commitPinPattern   = regexp.MustCompile(`^[0-9a-f]{40}$`)
	dataPinPattern     = regexp.MustCompile(`^blake3:[0-9a-f]{64}$`)
)

// DataPinPrefix prefixes the hex digest in a data pin.
const DataPinPrefix = "blake3:"

// IsExactPin reports whether constraint is an exact, reproducible
// resolution for an entry of the given kind: "==<version>" for
// registry packages, a full 40-hex commit for vcs references, and
// "blake3:<64 hex>" for data archives.
func IsExactPin(kind SourceKind, constraint string) bool {
	switch kind {
	case SourceRegistry:
		return registryPinPattern.MatchString(constraint)
	case SourceVCS:
		return commitPinPattern.MatchString(constraint)
	case SourceData:
		return dataPinPattern.MatchString(constraint)
	}
	return false
}
