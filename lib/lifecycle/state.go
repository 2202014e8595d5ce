// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/wrangler/lib/archive"
	"github.com/bureau-foundation/wrangler/lib/mamba"
	"github.com/bureau-foundation/wrangler/lib/repos"
	"github.com/bureau-foundation/wrangler/lib/resolver"
	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
)

// State is one probe-derived fact about an environment.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReposCloned   State = "repos-cloned"
	StateCompiled      State = "compiled"
	StateInstalled     State = "installed"
	StateDataFetched   State = "data-fetched"
	StatePacked        State = "packed"
	StateCompacted     State = "compacted"
	StateRegistered    State = "registered"
)

// RepositoryState is the clone status of one referenced repository.
type RepositoryState struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Revision string `json:"revision,omitempty"`
	repos.Status
}

// Cloned reports whether the clone is usable: present, and at the
// revision when the revision is a commit.
func (r RepositoryState) Cloned() bool {
	return r.Present && (!isCommit(r.Revision) || r.AtRevision)
}

// DataState is the fetch status of one data entry.
type DataState struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Destination string `json:"destination,omitempty"`

	// Present is true when Destination holds content matching the pin.
	Present bool `json:"present"`

	// Pinned is false for uncurated entries, which are never fetched.
	Pinned bool `json:"pinned"`
}

// StateSet is everything Probe learned about an environment.
type StateSet struct {
	Environment string `json:"environment"`

	Repositories []RepositoryState `json:"repositories,omitempty"`

	// Wheels maps compiled vcs package names to wheel files.
	Wheels map[string]string `json:"wheels,omitempty"`

	Install mamba.ProbeResult `json:"install"`
	Data    []DataState       `json:"data,omitempty"`

	// Archive is the archive path when a complete pack exists.
	Archive string `json:"archive,omitempty"`

	// CompactionCandidates counts removable files in the prefix.
	CompactionCandidates int `json:"compaction_candidates"`

	// KernelPresent is true when any kernel has the environment's name.
	KernelPresent bool `json:"kernel_present"`

	// KernelCurrent is true when that kernel launches this prefix.
	KernelCurrent bool `json:"kernel_current"`

	compiled bool
}

// Has reports whether one state holds.
func (s StateSet) Has(state State) bool {
	switch state {
	case StateReposCloned:
		for _, repository := range s.Repositories {
			if !repository.Cloned() {
				return false
			}
		}
		return true
	case StateCompiled:
		return s.compiled
	case StateInstalled:
		return s.Install.Installed()
	case StateDataFetched:
		for _, data := range s.Data {
			if data.Pinned && !data.Present {
				return false
			}
		}
		return true
	case StatePacked:
		return s.Archive != ""
	case StateCompacted:
		return s.Install.Exists && s.CompactionCandidates == 0
	case StateRegistered:
		return s.KernelCurrent
	case StateUninitialized:
		return len(s.States()) == 1 && s.States()[0] == StateUninitialized
	}
	return false
}

// States lists the states that hold with a material footprint, in
// lifecycle order. States that hold vacuously (nothing to clone,
// nothing to compile, no data) are omitted. An environment with no
// footprint is uninitialized.
func (s StateSet) States() []State {
	var states []State
	if len(s.Repositories) > 0 && s.Has(StateReposCloned) {
		states = append(states, StateReposCloned)
	}
	if len(s.Wheels) > 0 && s.compiled {
		states = append(states, StateCompiled)
	}
	if s.Has(StateInstalled) {
		states = append(states, StateInstalled)
	}
	if len(s.Data) > 0 && s.Has(StateDataFetched) {
		states = append(states, StateDataFetched)
	}
	if s.Has(StatePacked) {
		states = append(states, StatePacked)
	}
	if s.Has(StateCompacted) {
		states = append(states, StateCompacted)
	}
	if s.Has(StateRegistered) {
		states = append(states, StateRegistered)
	}
	if len(states) == 0 && !s.Install.Exists && !s.KernelPresent {
		return []State{StateUninitialized}
	}
	return states
}

// Probe inspects the target system for spec. It has no side effects.
func (d *Driver) Probe(ctx context.Context, spec wrangler.EnvironmentSpec) (StateSet, error) {
	state := StateSet{Environment: spec.ID}

	commits := map[string]string{}
	for _, reference := range References(spec) {
		status, err := d.repositories.Status(ctx, reference)
		if err != nil {
			return state, err
		}
		state.Repositories = append(state.Repositories, RepositoryState{
			Name: reference.Name, URL: reference.URL, Revision: reference.Revision, Status: status,
		})
		commits[reference.Name] = status.Commit
	}

	state.compiled = true
	for _, entry := range vcsPackages(spec) {
		wheel, ok, err := mamba.FindWheel(d.wheelDir(spec.ID), entry.Name)
		if err != nil {
			return state, err
		}
		built, _ := os.ReadFile(d.sourceMarker(spec.ID, entry.Name))
		if !ok || commits[entry.Name] == "" || strings.TrimSpace(string(built)) != commits[entry.Name] {
			state.compiled = false
			continue
		}
		if state.Wheels == nil {
			state.Wheels = map[string]string{}
		}
		state.Wheels[entry.Name] = wheel
	}

	install, err := d.packages.Probe(spec)
	if err != nil {
		return state, err
	}
	state.Install = install

	if state.Data, err = d.inspectData(spec); err != nil {
		return state, err
	}

	state.Archive = d.findArchive(spec)

	if install.Exists {
		if state.CompactionCandidates, err = d.packages.CompactionCandidates(spec.ID); err != nil {
			return state, err
		}
	}

	_, state.KernelPresent, err = d.kernels.Lookup(spec.ID)
	if err != nil {
		return state, err
	}
	if state.KernelCurrent, err = d.kernels.Registered(spec.ID, d.packages.Prefix(spec.ID)); err != nil {
		return state, err
	}
	return state, nil
}

// References returns the repositories an environment needs cloned:
// its declared repositories, then its vcs packages.
func References(spec wrangler.EnvironmentSpec) []repos.Reference {
	var references []repos.Reference
	for _, repository := range spec.Repositories {
		references = append(references, repos.Reference{Name: repository.Name, URL: repository.URL, Revision: repository.Ref})
	}
	for _, entry := range vcsPackages(spec) {
		references = append(references, repos.Reference{Name: entry.Name, URL: entry.URL, Revision: entry.Constraint})
	}
	return references
}

func vcsPackages(spec wrangler.EnvironmentSpec) []wrangler.Entry {
	var entries []wrangler.Entry
	for _, entry := range spec.Packages {
		if entry.Source == wrangler.SourceVCS {
			entries = append(entries, entry)
		}
	}
	return entries
}

// findArchive returns the first complete archive for spec, trying the
// effective format first.
func (d *Driver) findArchive(spec wrangler.EnvironmentSpec) string {
	formats := append([]string{d.ArchiveFormat(spec)}, wrangler.ArchiveFormats...)
	for _, format := range formats {
		archivePath := archive.Path(d.archiveDir, spec.ID, format)
		manifest, err := archive.ReadManifest(archivePath)
		if err != nil || manifest.Environment != spec.ID {
			continue
		}
		info, err := os.Stat(archivePath)
		if err != nil || info.Size() != manifest.Size {
			continue
		}
		return archivePath
	}
	return ""
}

// ArchiveFormat returns the pack format for spec: its own
// archive_format, else the driver default.
func (d *Driver) ArchiveFormat(spec wrangler.EnvironmentSpec) string {
	if spec.ArchiveFormat != "" {
		return spec.ArchiveFormat
	}
	return d.archiveFormat
}

func (d *Driver) wheelDir(environmentID string) string {
	return filepath.Join(d.wheelhouse, environmentID)
}

func (d *Driver) sourceMarker(environmentID, name string) string {
	return filepath.Join(d.wheelDir(environmentID), resolver.NormalizeName(name)+".commit")
}

// inspectData reports every data entry's destination and whether the
// destination matches the entry's pin. Unpinned entries are never
// present.
func (d *Driver) inspectData(spec wrangler.EnvironmentSpec) ([]DataState, error) {
	var states []DataState
	for _, entry := range spec.Data {
		data := DataState{
			Name:        entry.Name,
			URL:         entry.URL,
			Destination: d.dataDestination(spec.ID, entry),
			Pinned:      wrangler.IsExactPin(wrangler.SourceData, entry.Constraint),
		}
		if data.Pinned {
			present, err := resolver.Present(data.Destination, entry.Constraint)
			if err != nil {
				return nil, err
			}
			data.Present = present
		}
		states = append(states, data)
	}
	return states, nil
}

// dataDestination is where a data entry's file lands: inside its
// install_path when set, else under the driver's data directory.
func (d *Driver) dataDestination(environmentID string, entry wrangler.Entry) string {
	dir := filepath.Join(d.dataDir, environmentID, entry.Name)
	if entry.InstallPath != "" {
		dir = os.ExpandEnv(entry.InstallPath)
	}
	base := entry.Name
	if parsed, err := url.Parse(entry.URL); err == nil && path.Base(parsed.Path) != "." && path.Base(parsed.Path) != "/" {
		base = path.Base(parsed.Path)
	}
	return filepath.Join(dir, base)
}

func isCommit(revision string) bool {
	if len(revision) != 40 {
		return false
	}
	return strings.Trim(revision, "0123456789abcdef") == ""
}
