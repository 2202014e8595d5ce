// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bureau-foundation/wrangler/lib/clock"
	"github.com/bureau-foundation/wrangler/lib/curation"
	"github.com/bureau-foundation/wrangler/lib/lifecycle"
	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
	"github.com/bureau-foundation/wrangler/lib/selector"
	"github.com/bureau-foundation/wrangler/lib/specstore"
	"github.com/bureau-foundation/wrangler/lib/testutil"
)

const twoEnvironments = `version: 1
environments:
  roman:
    python: "3.11"
    packages:
      - name: numpy
        constraint: ">=1.20"
      - name: romancal
        source: vcs
        url: https://github.com/spacetelescope/romancal
        constraint: main
    data:
      - name: crds
        url: https://example.org/crds.tar.gz
  jwst:
    packages:
      - name: jwst
`

var (
	romancalSHA = strings.Repeat("ab", 20)
	crdsPin     = wrangler.DataPinPrefix + strings.Repeat("ef", 32)
)

// recorder is a fake Lifecycle that logs "transition env" and can
// fail one of them.
type recorder struct {
	mu     sync.Mutex
	calls  []string
	failAt string
}

func (r *recorder) record(transition lifecycle.Transition, spec wrangler.EnvironmentSpec) (*lifecycle.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call := string(transition) + " " + spec.ID
	r.calls = append(r.calls, call)
	if call == r.failAt {
		return nil, &lifecycle.LifecycleError{Transition: transition, Environment: spec.ID, Err: errors.New("tool failed")}
	}
	return &lifecycle.Outcome{Transition: transition, Environment: spec.ID}, nil
}

func (r *recorder) CloneRepos(_ context.Context, spec wrangler.EnvironmentSpec) (*lifecycle.Outcome, error) {
	return r.record(lifecycle.CloneRepos, spec)
}

func (r *recorder) PackagesCompile(_ context.Context, spec wrangler.EnvironmentSpec) (*lifecycle.Outcome, error) {
	return r.record(lifecycle.PackagesCompile, spec)
}

func (r *recorder) PackagesInstall(_ context.Context, spec wrangler.EnvironmentSpec) (*lifecycle.Outcome, error) {
	if !spec.Curation.Curated {
		return nil, &lifecycle.LifecycleError{Transition: lifecycle.PackagesInstall, Environment: spec.ID, Err: lifecycle.ErrNotCurated}
	}
	return r.record(lifecycle.PackagesInstall, spec)
}

func (r *recorder) EnvRegister(_ context.Context, spec wrangler.EnvironmentSpec) (*lifecycle.Outcome, error) {
	return r.record(lifecycle.EnvRegister, spec)
}

func (r *recorder) EnvDelete(_ context.Context, spec wrangler.EnvironmentSpec) (*lifecycle.Outcome, error) {
	return r.record(lifecycle.EnvDelete, spec)
}

func newRunner(fake *recorder) *Runner {
	resolve := func(_ context.Context, item wrangler.Item) (string, error) {
		switch item.Kind {
		case wrangler.SourceVCS:
			return romancalSHA, nil
		case wrangler.SourceData:
			return crdsPin, nil
		}
		return "==1.0.0", nil
	}
	engine := curation.New(curation.Config{
		Resolvers: map[wrangler.SourceKind]curation.Resolver{
			wrangler.SourceRegistry: curation.ResolverFunc(resolve),
			wrangler.SourceVCS:      curation.ResolverFunc(resolve),
			wrangler.SourceData:     curation.ResolverFunc(resolve),
		},
		Clock: clock.Fake(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)),
	})
	return New(Config{Engine: engine, Lifecycle: fake})
}

func load(t *testing.T, path string) *specstore.Document {
	t.Helper()
	document, err := specstore.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return document
}

func TestCurate(t *testing.T) {
	t.Parallel()

	fake := &recorder{}
	path := testutil.WriteSpec(t, twoEnvironments)

	report, err := newRunner(fake).Curate(context.Background(), path, Options{Environments: []string{"roman"}})
	if err != nil {
		t.Fatalf("Curate: %v", err)
	}
	want := []string{"clone-repos roman", "packages-compile roman", "packages-install roman", "env-register roman"}
	if diff := cmp.Diff(want, fake.calls); diff != "" {
		t.Errorf("transitions (-want +got):\n%s", diff)
	}
	if !report.Saved || report.Changes != 2 || len(report.Outcomes) != 4 {
		t.Errorf("report = %+v", report)
	}

	roman, _ := load(t, path).Environment("roman")
	if !roman.Curation.Curated || roman.Packages[1].Constraint != romancalSHA {
		t.Errorf("saved roman = %+v", roman)
	}
	if roman.Data[0].Curated {
		t.Error("spec curation pinned a data entry")
	}
	jwst, _ := load(t, path).Environment("jwst")
	if jwst.Packages[0].Curated {
		t.Error("curation touched an environment outside the scope")
	}
}

func TestCurate_StopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	fake := &recorder{failAt: "packages-compile roman"}
	path := testutil.WriteSpec(t, twoEnvironments)

	report, err := newRunner(fake).Curate(context.Background(), path, Options{})
	var lifecycleErr *lifecycle.LifecycleError
	if !errors.As(err, &lifecycleErr) || lifecycleErr.Transition != lifecycle.PackagesCompile {
		t.Fatalf("Curate error = %v, want packages-compile failure", err)
	}
	if fake.calls[len(fake.calls)-1] != "packages-compile roman" {
		t.Errorf("ran past the failure: %q", fake.calls)
	}
	// Curation completed before the failure and stays saved.
	if !report.Saved {
		t.Error("curated spec was not saved before the failing step")
	}
	if roman, _ := load(t, path).Environment("roman"); !roman.Curation.Curated {
		t.Error("saved spec lost its curation")
	}
}

func TestCurate_RejectsInvalidBeforeAnyTransition(t *testing.T) {
	t.Parallel()

	fake := &recorder{}
	path := testutil.WriteSpec(t, twoEnvironments+"    archive_format: rar\n")
	before := testutil.ReadFile(t, path)

	report, err := newRunner(fake).Curate(context.Background(), path, Options{})
	if !errors.Is(err, ErrInvalidEnvironment) {
		t.Fatalf("Curate error = %v, want ErrInvalidEnvironment", err)
	}
	if !strings.Contains(err.Error(), "jwst") || !strings.Contains(err.Error(), "rar") {
		t.Errorf("error %q does not name the environment and the issue", err)
	}
	// roman is valid and first in the spec, but nothing ran for it either.
	if len(fake.calls) != 0 {
		t.Errorf("invalid spec ran transitions: %q", fake.calls)
	}
	if report.Saved || testutil.ReadFile(t, path) != before {
		t.Error("invalid spec was rewritten")
	}
}

func TestReinstall_RequiresCuration(t *testing.T) {
	t.Parallel()

	fake := &recorder{}
	path := testutil.WriteSpec(t, twoEnvironments)

	_, err := newRunner(fake).Reinstall(context.Background(), path, Options{})
	if !errors.Is(err, lifecycle.ErrNotCurated) {
		t.Fatalf("Reinstall error = %v, want ErrNotCurated", err)
	}
	if len(fake.calls) != 0 {
		t.Errorf("uncurated reinstall ran transitions: %q", fake.calls)
	}
}

func TestReinstall(t *testing.T) {
	t.Parallel()

	fake := &recorder{}
	path := testutil.WriteSpec(t, twoEnvironments)
	runner := newRunner(fake)
	if _, err := runner.Curate(context.Background(), path, Options{}); err != nil {
		t.Fatalf("Curate: %v", err)
	}
	fake.calls = nil

	report, err := runner.Reinstall(context.Background(), path, Options{Environments: []string{"jwst"}})
	if err != nil {
		t.Fatalf("Reinstall: %v", err)
	}
	want := []string{"clone-repos jwst", "packages-compile jwst", "packages-install jwst", "env-register jwst"}
	if diff := cmp.Diff(want, fake.calls); diff != "" {
		t.Errorf("transitions (-want +got):\n%s", diff)
	}
	if report.Saved {
		t.Error("reinstall rewrote the spec")
	}
}

func TestResetCuration(t *testing.T) {
	t.Parallel()

	fake := &recorder{}
	path := testutil.WriteSpec(t, twoEnvironments)
	runner := newRunner(fake)
	if _, err := runner.Curate(context.Background(), path, Options{}); err != nil {
		t.Fatalf("Curate: %v", err)
	}
	fake.calls = nil

	numpy, _ := selector.Compile("numpy")
	report, err := runner.ResetCuration(context.Background(), path, Options{Selector: numpy, Environments: []string{"roman"}})
	if err != nil {
		t.Fatalf("ResetCuration: %v", err)
	}
	if diff := cmp.Diff([]string{"env-delete roman"}, fake.calls); diff != "" {
		t.Errorf("transitions (-want +got):\n%s", diff)
	}
	if report.Changes != 1 {
		t.Errorf("changes = %d, want 1", report.Changes)
	}
	roman, _ := load(t, path).Environment("roman")
	if roman.Packages[0].Constraint != ">=1.20" || roman.Packages[0].Curated {
		t.Errorf("numpy after reset = %+v", roman.Packages[0])
	}
	if !roman.Packages[1].Curated {
		t.Error("reset touched an unselected entry")
	}
}

func TestDataCurateAndReset(t *testing.T) {
	t.Parallel()

	path := testutil.WriteSpec(t, twoEnvironments)
	runner := newRunner(&recorder{})

	report, err := runner.DataCurate(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("DataCurate: %v", err)
	}
	roman, _ := load(t, path).Environment("roman")
	if !report.Saved || roman.Data[0].Constraint != crdsPin {
		t.Fatalf("data after curate = %+v (report %+v)", roman.Data[0], report)
	}
	if roman.Packages[0].Curated {
		t.Error("data curation pinned a package")
	}

	if _, err := runner.DataReset(context.Background(), path, Options{}); err != nil {
		t.Fatalf("DataReset: %v", err)
	}
	roman, _ = load(t, path).Environment("roman")
	if roman.Data[0].Curated || roman.Data[0].Constraint != "" {
		t.Errorf("data after reset = %+v", roman.Data[0])
	}
}

func TestSpecReset_PreservesData(t *testing.T) {
	t.Parallel()

	path := testutil.WriteSpec(t, twoEnvironments)
	runner := newRunner(&recorder{})
	if _, err := runner.Curate(context.Background(), path, Options{}); err != nil {
		t.Fatalf("Curate: %v", err)
	}
	if _, err := runner.DataCurate(context.Background(), path, Options{}); err != nil {
		t.Fatalf("DataCurate: %v", err)
	}

	if _, err := runner.SpecReset(context.Background(), path, Options{}); err != nil {
		t.Fatalf("SpecReset: %v", err)
	}
	for _, environment := range load(t, path).Environments() {
		if environment.Curation != (wrangler.CurationState{}) {
			t.Errorf("%s kept its curation block: %+v", environment.ID, environment.Curation)
		}
		for _, entry := range environment.Packages {
			if entry.Curated {
				t.Errorf("%s/%s still curated", environment.ID, entry.Name)
			}
		}
	}
	if roman, _ := load(t, path).Environment("roman"); roman.Data[0].Constraint != crdsPin {
		t.Errorf("spec reset touched data: %+v", roman.Data[0])
	}
}

func TestSpecUpdate_Idempotent(t *testing.T) {
	t.Parallel()

	path := testutil.WriteSpec(t, twoEnvironments)
	runner := newRunner(&recorder{})
	if _, err := runner.Curate(context.Background(), path, Options{}); err != nil {
		t.Fatalf("Curate: %v", err)
	}
	report, err := runner.SpecUpdate(context.Background(), path)
	if err != nil {
		t.Fatalf("SpecUpdate: %v", err)
	}
	if report.Saved {
		t.Error("SpecUpdate rewrote a spec whose fingerprints were current")
	}
}

func TestUnknownEnvironment(t *testing.T) {
	t.Parallel()

	path := testutil.WriteSpec(t, twoEnvironments)
	_, err := newRunner(&recorder{}).Reinstall(context.Background(), path, Options{Environments: []string{"missing"}})
	if !errors.Is(err, ErrUnknownEnvironment) || !strings.Contains(err.Error(), `no environment "missing"`) {
		t.Errorf("Reinstall error = %v", err)
	}
}

func TestForEach(t *testing.T) {
	t.Parallel()

	paths := []string{"a.yaml", "b.yaml", "c.yaml", "d.yaml"}
	var running, peak atomic.Int32
	var visited sync.Map
	err := ForEach(context.Background(), paths, 2, func(_ context.Context, path string) error {
		current := running.Add(1)
		defer running.Add(-1)
		for {
			previous := peak.Load()
			if current <= previous || peak.CompareAndSwap(previous, current) {
				break
			}
		}
		visited.Store(path, true)
		time.Sleep(5 * time.Millisecond)
		if path == "b.yaml" || path == "d.yaml" {
			return fmt.Errorf("broken %s", path)
		}
		return nil
	})

	for _, path := range paths {
		if _, ok := visited.Load(path); !ok {
			t.Errorf("%s did not run", path)
		}
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
	var unit *UnitError
	if !errors.As(err, &unit) || unit.Spec != "b.yaml" {
		t.Fatalf("ForEach error = %v, want b.yaml first", err)
	}
	if !strings.Contains(err.Error(), "d.yaml: broken d.yaml") {
		t.Errorf("ForEach error %q does not carry every failure", err)
	}
}
