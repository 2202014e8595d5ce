// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package specstore

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
)

// Document is a parsed spec document. The zero value is not usable;
// obtain one from Parse or Load.
type Document struct {
	source string
	root   *yaml.Node
	view   wrangler.Document
}

// Parse decodes a spec document. source labels the document in
// errors (usually the file path).
func Parse(data []byte, source string) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &MalformedSpecError{Source: source, Problems: []string{err.Error()}}
	}
	document := &Document{source: source, root: &root}
	if err := document.refresh(); err != nil {
		return nil, err
	}
	return document, nil
}

// Source returns the label the document was parsed with.
func (d *Document) Source() string {
	return d.source
}

// Version returns the document schema version.
func (d *Document) Version() int {
	return d.view.Version
}

// Environments returns the environments in document order. The
// returned slice is a copy of the view.
func (d *Document) Environments() []wrangler.EnvironmentSpec {
	environments := make([]wrangler.EnvironmentSpec, len(d.view.Environments))
	copy(environments, d.view.Environments)
	return environments
}

// Environment returns a copy of one environment.
func (d *Document) Environment(id string) (wrangler.EnvironmentSpec, bool) {
	environment, ok := d.view.Environment(id)
	if !ok {
		return wrangler.EnvironmentSpec{}, false
	}
	return *environment, true
}

// EnvironmentIDs returns the environment identifiers in document order.
func (d *Document) EnvironmentIDs() []string {
	return d.view.EnvironmentIDs()
}

// Clone returns an independent copy of the document.
func (d *Document) Clone() *Document {
	clone := &Document{source: d.source, root: cloneNode(d.root)}
	// The source parsed, so the clone does too.
	if err := clone.refresh(); err != nil {
		panic("specstore: clone of a valid document failed to decode: " + err.Error())
	}
	return clone
}

// Encode renders the document as YAML with two-space indentation.
func (d *Document) Encode() ([]byte, error) {
	var buffer bytes.Buffer
	encoder := yaml.NewEncoder(&buffer)
	encoder.SetIndent(2)
	if err := encoder.Encode(d.root); err != nil {
		return nil, fmt.Errorf("encoding spec %s: %w", d.source, err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("encoding spec %s: %w", d.source, err)
	}
	return buffer.Bytes(), nil
}

// PinItem records a curated pin for an item: the pre-curation
// constraint moves to "original", the constraint becomes pin, and the
// entry is flagged curated. Pinning an already-curated item replaces
// the pin but keeps the recorded original.
func (d *Document) PinItem(item wrangler.Item, pin string) error {
	entry, err := d.entryNode(item)
	if err != nil {
		return err
	}
	if curated := mappingValue(entry, "curated"); curated == nil || curated.Value != "true" {
		original := ""
		if value := mappingValue(entry, item.Section.ConstraintKey); value != nil {
			original = value.Value
		}
		setScalar(entry, "original", original, "!!str")
	}
	setScalar(entry, item.Section.ConstraintKey, pin, "!!str")
	setScalar(entry, "curated", "true", "!!bool")
	return d.refresh()
}

// ResetItem undoes curation of an item. When the original constraint
// was recorded it is restored exactly (an empty original removes the
// constraint key, since the entry had none) and restored is true. When
// it was not, only the curated flag is cleared and restored is false.
func (d *Document) ResetItem(item wrangler.Item) (restored bool, err error) {
	entry, err := d.entryNode(item)
	if err != nil {
		return false, err
	}
	removeKey(entry, "curated")
	original := mappingValue(entry, "original")
	if original == nil {
		return false, d.refresh()
	}
	if original.Value == "" {
		removeKey(entry, item.Section.ConstraintKey)
	} else {
		setScalar(entry, item.Section.ConstraintKey, original.Value, "!!str")
	}
	removeKey(entry, "original")
	return true, d.refresh()
}

// SetCuration writes the environment-level curation block.
func (d *Document) SetCuration(environmentID string, state wrangler.CurationState) error {
	environment, err := d.environmentNode(environmentID)
	if err != nil {
		return err
	}
	curation := ensureMapping(environment, "curation")
	if state.Curated {
		setScalar(curation, "curated", "true", "!!bool")
	} else {
		removeKey(curation, "curated")
	}
	if state.Fingerprint != "" {
		setScalar(curation, "fingerprint", state.Fingerprint, "!!str")
	} else {
		removeKey(curation, "fingerprint")
	}
	if !state.CuratedAt.IsZero() {
		setScalar(curation, "curated_at", state.CuratedAt.UTC().Format(time.RFC3339), "!!timestamp")
	} else {
		removeKey(curation, "curated_at")
	}
	if len(curation.Content) == 0 {
		removeKey(environment, "curation")
	}
	return d.refresh()
}

// ClearCuration removes the environment-level curation block.
func (d *Document) ClearCuration(environmentID string) error {
	environment, err := d.environmentNode(environmentID)
	if err != nil {
		return err
	}
	removeKey(environment, "curation")
	return d.refresh()
}

func (d *Document) environmentNode(id string) (*yaml.Node, error) {
	environments := mappingValue(d.mappingRoot(), "environments")
	environment := mappingValue(environments, id)
	if environment == nil || environment.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("spec %s has no environment %q", d.source, id)
	}
	return environment, nil
}

func (d *Document) entryNode(item wrangler.Item) (*yaml.Node, error) {
	environment, err := d.environmentNode(item.Environment)
	if err != nil {
		return nil, err
	}
	list := mappingValue(environment, item.Section.Key)
	if list == nil || list.Kind != yaml.SequenceNode || item.Index < 0 || item.Index >= len(list.Content) {
		return nil, fmt.Errorf("spec %s has no %s", d.source, item)
	}
	entry := list.Content[item.Index]
	if name := mappingValue(entry, "name"); name == nil || name.Value != item.Name {
		return nil, fmt.Errorf("spec %s: %s moved since it was read", d.source, item)
	}
	return entry, nil
}

func (d *Document) mappingRoot() *yaml.Node {
	if d.root.Kind == yaml.DocumentNode && len(d.root.Content) > 0 {
		return d.root.Content[0]
	}
	return d.root
}

// refresh re-derives the typed view from the node tree.
func (d *Document) refresh() error {
	view, problems := decodeView(d.mappingRoot())
	if len(problems) > 0 {
		return &MalformedSpecError{Source: d.source, Problems: problems}
	}
	d.view = view
	return nil
}
