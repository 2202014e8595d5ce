// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package curation

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/bureau-foundation/wrangler/lib/clock"
	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
	"github.com/bureau-foundation/wrangler/lib/selector"
	"github.com/bureau-foundation/wrangler/lib/specstore"
)

// Resolver resolves one entry's constraint to an exact pin in the
// form wrangler.IsExactPin accepts for the entry's kind.
type Resolver interface {
	Resolve(ctx context.Context, item wrangler.Item) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, item wrangler.Item) (string, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, item wrangler.Item) (string, error) {
	return f(ctx, item)
}

// Config configures an Engine.
type Config struct {
	// Resolvers maps each source kind to its resolver. Curating an
	// entry whose kind has no resolver fails.
	Resolvers map[wrangler.SourceKind]Resolver

	// Clock stamps curated_at. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives per-entry progress. Nil discards.
	Logger *slog.Logger
}

// Engine curates and resets spec documents.
type Engine struct {
	resolvers map[wrangler.SourceKind]Resolver
	clock     clock.Clock
	logger    *slog.Logger
}

// New returns an Engine.
func New(config Config) *Engine {
	engine := &Engine{
		resolvers: config.Resolvers,
		clock:     config.Clock,
		logger:    config.Logger,
	}
	if engine.clock == nil {
		engine.clock = clock.Real()
	}
	if engine.logger == nil {
		engine.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return engine
}

// Options scopes a curation or reset run.
type Options struct {
	// Flavor selects the entry sections. Defaults to FlavorSpec.
	Flavor wrangler.Flavor

	// Selector restricts the run to matching entry names. Nil
	// selects every entry.
	Selector *selector.Selector

	// Environments restricts the run to the named environments. Empty
	// means every environment in the document.
	Environments []string
}

// Change records one entry modified by a run.
type Change struct {
	Item wrangler.Item

	// From and To are the constraint before and after.
	From string
	To   string
}

// Result is the outcome of Curate or Reset.
type Result struct {
	// Document is the updated document. When Changed is false it is
	// equal in content to the input.
	Document *specstore.Document

	// Changes lists every entry the run modified, in document order.
	Changes []Change

	// Skipped counts selected entries left untouched (already curated
	// for Curate, not curated for Reset).
	Skipped int

	// Warnings lists entries reset without their original constraint.
	Warnings []*UnresettableEntry

	// Changed reports whether Document differs from the input.
	Changed bool
}

type pending struct {
	item wrangler.Item
	pin  string
}

// Curate pins every selected, uncurated entry of the requested flavor.
// The input document is never modified.
func (e *Engine) Curate(ctx context.Context, document *specstore.Document, options Options) (*Result, error) {
	environments, err := scope(document, options)
	if err != nil {
		return nil, err
	}
	flavor := flavorOf(options)

	var work []pending
	skipped := 0
	for _, environment := range environments {
		for _, item := range environment.Items(flavor) {
			if !options.Selector.Match(item.Name) {
				continue
			}
			if item.Curated {
				skipped++
				continue
			}
			pin, err := e.resolve(ctx, item)
			if err != nil {
				return nil, &CurationFailure{
					Environment: item.Environment,
					Entry:       item.Name,
					Kind:        item.Kind,
					Constraint:  item.Constraint,
					Err:         err,
				}
			}
			e.logger.Debug("resolved entry",
				"environment", item.Environment,
				"entry", item.Name,
				"constraint", item.Constraint,
				"pin", pin,
			)
			work = append(work, pending{item: item, pin: pin})
		}
	}
	e.warnUnmatched(environments, flavor, options.Selector)

	result := &Result{Document: document.Clone(), Skipped: skipped}
	pinned := make(map[string]bool)
	for _, entry := range work {
		if err := result.Document.PinItem(entry.item, entry.pin); err != nil {
			return nil, err
		}
		pinned[entry.item.Environment] = true
		result.Changes = append(result.Changes, Change{Item: entry.item, From: entry.item.Constraint, To: entry.pin})
	}

	for _, environment := range environments {
		changed, err := e.settle(result.Document, environment.ID, flavor, pinned[environment.ID])
		if err != nil {
			return nil, err
		}
		result.Changed = result.Changed || changed || pinned[environment.ID]
	}

	e.logger.Info("curation complete",
		"flavor", flavor,
		"selector", options.Selector.String(),
		"pinned", len(result.Changes),
		"skipped", result.Skipped,
	)
	return result, nil
}

// Reset un-curates every selected, curated entry of the requested
// flavor. Entries without a recorded original degrade to a flag clear
// and are reported in Result.Warnings. The input document is never
// modified.
func (e *Engine) Reset(document *specstore.Document, options Options) (*Result, error) {
	environments, err := scope(document, options)
	if err != nil {
		return nil, err
	}
	flavor := flavorOf(options)

	result := &Result{Document: document.Clone()}
	touched := make(map[string]bool)
	for _, environment := range environments {
		for _, item := range environment.Items(flavor) {
			if !options.Selector.Match(item.Name) {
				continue
			}
			if !item.Curated {
				result.Skipped++
				continue
			}
			restored, err := result.Document.ResetItem(item)
			if err != nil {
				return nil, err
			}
			touched[environment.ID] = true
			to := item.Constraint
			if restored {
				to = *item.Original
			} else {
				warning := &UnresettableEntry{Environment: item.Environment, Entry: item.Name, Pin: item.Constraint}
				result.Warnings = append(result.Warnings, warning)
				e.logger.Warn("reset without original constraint",
					"environment", item.Environment,
					"entry", item.Name,
					"pin", item.Constraint,
				)
			}
			result.Changes = append(result.Changes, Change{Item: item, From: item.Constraint, To: to})
		}
	}
	e.warnUnmatched(environments, flavor, options.Selector)

	for _, environment := range environments {
		if !touched[environment.ID] {
			continue
		}
		if _, err := e.settle(result.Document, environment.ID, flavor, true); err != nil {
			return nil, err
		}
		result.Changed = true
	}

	e.logger.Info("curation reset",
		"flavor", flavor,
		"selector", options.Selector.String(),
		"reset", len(result.Changes),
		"degraded", len(result.Warnings),
	)
	return result, nil
}

// ResetEnvironment clears every spec-flavor pin and the environment
// curation block of one environment, leaving data entries alone.
func (e *Engine) ResetEnvironment(document *specstore.Document, environmentID string) (*Result, error) {
	result, err := e.Reset(document, Options{Flavor: wrangler.FlavorSpec, Environments: []string{environmentID}})
	if err != nil {
		return nil, err
	}
	environment, _ := result.Document.Environment(environmentID)
	if environment.Curation != (wrangler.CurationState{}) {
		if err := result.Document.ClearCuration(environmentID); err != nil {
			return nil, err
		}
		result.Changed = true
	}
	return result, nil
}

// Refresh recomputes the fingerprint of every environment that carries
// one, accepting the current content as curated. Returns whether any
// fingerprint changed.
func Refresh(document *specstore.Document) (*specstore.Document, bool, error) {
	updated := document.Clone()
	changed := false
	for _, environment := range updated.Environments() {
		if environment.Curation.Fingerprint == "" && !environment.Curation.Curated {
			continue
		}
		fingerprint := specstore.Fingerprint(environment)
		if fingerprint == environment.Curation.Fingerprint {
			continue
		}
		state := environment.Curation
		state.Fingerprint = fingerprint
		if err := updated.SetCuration(environment.ID, state); err != nil {
			return nil, false, err
		}
		changed = true
	}
	return updated, changed, nil
}

// settle brings an environment's curation block in line with its
// entries after a run. A spec-flavor run that leaves every spec entry
// pinned marks the environment curated with a fresh fingerprint. A run
// that leaves spec entries unpinned clears the block. Otherwise an
// existing fingerprint is refreshed when entries changed.
func (e *Engine) settle(document *specstore.Document, environmentID string, flavor wrangler.Flavor, modified bool) (bool, error) {
	environment, ok := document.Environment(environmentID)
	if !ok {
		return false, fmt.Errorf("environment %q vanished during curation", environmentID)
	}
	state := environment.Curation
	fullyCurated := environment.FullyCurated(wrangler.FlavorSpec)

	switch {
	case flavor == wrangler.FlavorSpec && fullyCurated && (modified || !state.Curated):
		state = wrangler.CurationState{
			Curated:     true,
			Fingerprint: specstore.Fingerprint(environment),
			CuratedAt:   e.clock.Now(),
		}
	case flavor == wrangler.FlavorSpec && !fullyCurated && state != (wrangler.CurationState{}):
		if err := document.ClearCuration(environmentID); err != nil {
			return false, err
		}
		return true, nil
	case modified && state.Fingerprint != "":
		state.Fingerprint = specstore.Fingerprint(environment)
	default:
		return false, nil
	}

	if state == environment.Curation {
		return false, nil
	}
	if err := document.SetCuration(environmentID, state); err != nil {
		return false, err
	}
	e.logger.Info("environment curation updated",
		"environment", environmentID,
		"curated", state.Curated,
		"fingerprint", state.Fingerprint,
	)
	return true, nil
}

func (e *Engine) resolve(ctx context.Context, item wrangler.Item) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	// An entry that already carries an exact pin resolves to itself.
	if wrangler.IsExactPin(item.Kind, item.Constraint) {
		return item.Constraint, nil
	}
	resolver, ok := e.resolvers[item.Kind]
	if !ok || resolver == nil {
		return "", fmt.Errorf("no resolver configured for %s entries", item.Kind)
	}
	pin, err := resolver.Resolve(ctx, item)
	if err != nil {
		return "", err
	}
	if !wrangler.IsExactPin(item.Kind, pin) {
		return "", fmt.Errorf("resolver returned %q, which is not an exact %s pin", pin, item.Kind)
	}
	return pin, nil
}

// warnUnmatched logs selector names that matched no entry in scope.
func (e *Engine) warnUnmatched(environments []wrangler.EnvironmentSpec, flavor wrangler.Flavor, selection *selector.Selector) {
	names := selection.Names()
	if len(names) == 0 {
		return
	}
	present := make(map[string]bool)
	for _, environment := range environments {
		for _, item := range environment.Items(flavor) {
			present[item.Name] = true
		}
	}
	for _, name := range names {
		if !present[name] {
			e.logger.Warn("selector name matched no entry", "entry", name, "flavor", flavor)
		}
	}
}

func scope(document *specstore.Document, options Options) ([]wrangler.EnvironmentSpec, error) {
	if len(options.Environments) == 0 {
		return document.Environments(), nil
	}
	environments := make([]wrangler.EnvironmentSpec, 0, len(options.Environments))
	for _, id := range options.Environments {
		environment, ok := document.Environment(id)
		if !ok {
			return nil, fmt.Errorf("spec %s has no environment %q", document.Source(), id)
		}
		environments = append(environments, environment)
	}
	return environments, nil
}

func flavorOf(options Options) wrangler.Flavor {
	if options.Flavor == "" {
		return wrangler.FlavorSpec
	}
	return options.Flavor
}
