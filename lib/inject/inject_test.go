// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package inject

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/wrangler/lib/archive"
	"github.com/bureau-foundation/wrangler/lib/clock"
	"github.com/bureau-foundation/wrangler/lib/envlock"
	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
	"github.com/bureau-foundation/wrangler/lib/specstore"
	"github.com/bureau-foundation/wrangler/lib/testutil"
	"github.com/bureau-foundation/wrangler/lib/toolexec"
)

func curatedSpec() wrangler.EnvironmentSpec {
	spec := wrangler.EnvironmentSpec{
		ID:       "roman-cal",
		Python:   "3.11",
		Channels: []string{"conda-forge"},
		Packages: []wrangler.Entry{
			{Name: "numpy", Constraint: "==1.26.4", Curated: true},
			{Name: "romancal", Source: wrangler.SourceVCS, URL: "https://github.com/spacetelescope/romancal",
				Constraint: "0123456789abcdef0123456789abcdef01234567", Curated: true},
		},
		EnvVars: map[string]string{"CRDS_PATH": "/refdata/crds"},
	}
	spec.Curation = wrangler.CurationState{Curated: true, Fingerprint: specstore.Fingerprint(spec)}
	return spec
}

func newInjector(t *testing.T, tools toolexec.Runner) *Injector {
	t.Helper()
	return New(Config{
		Locker:      envlock.New(t.TempDir(), clock.Real()),
		Tools:       tools,
		AuthorName:  testutil.GitIdentityName,
		AuthorEmail: testutil.GitIdentityEmail,
	})
}

func baseRequest(t *testing.T, target string) Request {
	t.Helper()
	artifacts, err := Render(Input{Spec: curatedSpec(), SpecDocument: []byte("version: 1\n")})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	return Request{
		Environment:   "roman-cal",
		Artifacts:     artifacts,
		Target:        target,
		ArtifactRoot:  "deployments/environments",
		BaseBranch:    "main",
		Branch:        "test-x",
		CommitMessage: "msg",
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	manifest := &archive.Manifest{
		Environment: "roman-cal", Format: "tar.zst", Digest: "feed", Size: 42,
		Created: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Files:   []archive.File{{Path: "bin/python", Size: 10}, {Path: "lib", Mode: 0o755}},
	}
	artifacts, err := Render(Input{Spec: curatedSpec(), SpecDocument: []byte("version: 1\n"), Manifest: manifest})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	var names []string
	contents := map[string]string{}
	for _, artifact := range artifacts {
		names = append(names, artifact.Name)
		contents[artifact.Name] = string(artifact.Content)
	}
	if diff := cmp.Diff([]string{ArchiveFile, EnvironmentFile, RequirementsFile, SpecFile}, names); diff != "" {
		t.Errorf("artifact names (-want +got):\n%s", diff)
	}

	wantRequirements := "# Pinned requirements for environment roman-cal.\n# fingerprint: " + curatedSpec().Curation.Fingerprint + "\n" +
		"numpy==1.26.4\nromancal @ git+https://github.com/spacetelescope/romancal@0123456789abcdef0123456789abcdef01234567\n"
	if got := contents[RequirementsFile]; got != wantRequirements {
		t.Errorf("requirements.txt =\n%s\nwant\n%s", got, wantRequirements)
	}

	var environment struct {
		Name         string            `yaml:"name"`
		Channels     []string          `yaml:"channels"`
		Dependencies []any             `yaml:"dependencies"`
		Variables    map[string]string `yaml:"variables"`
	}
	if err := yaml.Unmarshal([]byte(contents[EnvironmentFile]), &environment); err != nil {
		t.Fatalf("parsing environment.yml: %v", err)
	}
	if environment.Name != "roman-cal" || environment.Dependencies[0] != "python=3.11" || environment.Variables["CRDS_PATH"] != "/refdata/crds" {
		t.Errorf("environment.yml = %+v", environment)
	}
	if !strings.Contains(contents[ArchiveFile], `"files": 2`) || !strings.Contains(contents[ArchiveFile], `"unpacked_size": 10`) {
		t.Errorf("archive.json = %s", contents[ArchiveFile])
	}
}

func TestRender_Uncurated(t *testing.T) {
	t.Parallel()

	spec := curatedSpec()
	spec.Packages[0] = wrangler.Entry{Name: "numpy", Constraint: ">=1.20"}
	if _, err := Render(Input{Spec: spec}); err == nil {
		t.Error("Render of an uncurated spec succeeded")
	}
}

func TestRender_RequiresCuratedFlag(t *testing.T) {
	t.Parallel()

	spec := curatedSpec()
	spec.Curation = wrangler.CurationState{}
	_, err := Render(Input{Spec: spec})
	if err == nil || !strings.Contains(err.Error(), "not curated") {
		t.Errorf("Render without the curated flag: err = %v, want not curated", err)
	}
}

func TestRender_FingerprintMismatch(t *testing.T) {
	t.Parallel()

	// Edited after curation: still pinned, but a different pin.
	spec := curatedSpec()
	spec.Packages[0].Constraint = "==2.0.0"
	_, err := Render(Input{Spec: spec})
	if err == nil || !strings.Contains(err.Error(), "modified since curation") {
		t.Errorf("Render of an edited spec: err = %v, want modified since curation", err)
	}
}

func TestInject(t *testing.T) {
	t.Parallel()

	target := testutil.InitRepo(t)
	baseHead := testutil.Git(t, target, "rev-parse", "main")

	result, err := newInjector(t, nil).Inject(context.Background(), baseRequest(t, target))
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if result.Branch != "test-x" || result.Directory != "deployments/environments/roman-cal" {
		t.Errorf("result = %+v", result)
	}
	if got := testutil.Git(t, target, "rev-parse", "main"); got != baseHead {
		t.Errorf("base branch moved from %s to %s", baseHead, got)
	}
	if got := testutil.Git(t, target, "rev-list", "--count", "main..test-x"); got != "1" {
		t.Errorf("commits on branch = %s, want 1", got)
	}
	if got := testutil.Git(t, target, "log", "-1", "--format=%B", "test-x"); got != "msg" {
		t.Errorf("commit message = %q, want msg", got)
	}
	changed := strings.Split(testutil.Git(t, target, "diff", "--name-only", "main", "test-x"), "\n")
	want := []string{
		"deployments/environments/roman-cal/environment.yml",
		"deployments/environments/roman-cal/requirements.txt",
		"deployments/environments/roman-cal/spec.yaml",
	}
	if diff := cmp.Diff(want, changed); diff != "" {
		t.Errorf("branch diff (-want +got):\n%s", diff)
	}
}

func TestInject_DirtyTarget(t *testing.T) {
	t.Parallel()

	target := testutil.InitRepo(t)
	testutil.WriteFile(t, target, "README", "local edit\n")

	_, err := newInjector(t, nil).Inject(context.Background(), baseRequest(t, target))
	if !errors.Is(err, ErrDirtyTarget) {
		t.Fatalf("Inject error = %v, want ErrDirtyTarget", err)
	}
	if got := testutil.ReadFile(t, filepath.Join(target, "README")); got != "local edit\n" {
		t.Errorf("local change was discarded: %q", got)
	}
	if got := testutil.Git(t, target, "branch", "--list", "test-x"); got != "" {
		t.Errorf("branch created despite dirty target: %q", got)
	}
}

func TestInject_NothingToCommit(t *testing.T) {
	t.Parallel()

	target := testutil.InitRepo(t)
	injector := newInjector(t, nil)
	request := baseRequest(t, target)
	request.Branch = "first"
	if _, err := injector.Inject(context.Background(), request); err != nil {
		t.Fatalf("first Inject: %v", err)
	}
	testutil.Git(t, target, "checkout", "--quiet", "main")
	testutil.Git(t, target, "merge", "--quiet", "--ff-only", "first")

	request.Branch = "second"
	_, err := injector.Inject(context.Background(), request)
	if !errors.Is(err, ErrNothingToCommit) {
		t.Fatalf("second Inject error = %v, want ErrNothingToCommit", err)
	}
	if got := testutil.Git(t, target, "rev-list", "--count", "main..second"); got != "0" {
		t.Errorf("second branch has %s new commits, want 0", got)
	}
}

func TestInject_RecreatesStaleBranch(t *testing.T) {
	t.Parallel()

	target := testutil.InitRepo(t)
	testutil.Git(t, target, "checkout", "--quiet", "-b", "test-x")
	testutil.CommitFiles(t, target, map[string]string{"leftover.txt": "from a failed run\n"}, "stale")
	testutil.Git(t, target, "checkout", "--quiet", "main")

	if _, err := newInjector(t, nil).Inject(context.Background(), baseRequest(t, target)); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if got := testutil.Git(t, target, "rev-list", "--count", "main..test-x"); got != "1" {
		t.Errorf("commits on recreated branch = %s, want 1", got)
	}
	if files := testutil.Git(t, target, "diff", "--name-only", "main", "test-x"); strings.Contains(files, "leftover.txt") {
		t.Errorf("recreated branch kept stale content: %s", files)
	}
}

func TestInject_Prune(t *testing.T) {
	t.Parallel()

	target := testutil.InitRepo(t)
	testutil.CommitFiles(t, target, map[string]string{
		"deployments/environments/roman-cal/old-lock.txt":     "obsolete\n",
		"deployments/environments/roman-cal/extra/notes.md":   "obsolete\n",
		"deployments/environments/other-env/requirements.txt": "untouched\n",
		"deployments/environments/roman-cal/requirements.txt": "stale\n",
	}, "previous injection")

	request := baseRequest(t, target)
	request.Prune = true
	result, err := newInjector(t, nil).Inject(context.Background(), request)
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if diff := cmp.Diff([]string{"extra/notes.md", "old-lock.txt"}, result.Pruned); diff != "" {
		t.Errorf("pruned (-want +got):\n%s", diff)
	}
	tree := testutil.Git(t, target, "ls-tree", "-r", "--name-only", "test-x", "deployments/environments")
	want := strings.Join([]string{
		"deployments/environments/other-env/requirements.txt",
		"deployments/environments/roman-cal/environment.yml",
		"deployments/environments/roman-cal/requirements.txt",
		"deployments/environments/roman-cal/spec.yaml",
	}, "\n")
	if tree != want {
		t.Errorf("tree after prune =\n%s\nwant\n%s", tree, want)
	}
}

func TestInject_BuildFailureKeepsCommit(t *testing.T) {
	t.Parallel()

	target := testutil.InitRepo(t)
	tools := &toolexec.Fake{}
	tools.On("make images", "", &toolexec.Error{Command: "make images", ExitCode: 2, Stderr: "image build failed"})

	request := baseRequest(t, target)
	request.BuildCommand = []string{"make", "images"}
	result, err := newInjector(t, tools).Inject(context.Background(), request)

	var buildErr *BuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("Inject error = %v, want BuildError", err)
	}
	if buildErr.Output != "image build failed" {
		t.Errorf("build output = %q", buildErr.Output)
	}
	if result == nil || result.Commit == "" || result.Built {
		t.Fatalf("result = %+v, want the commit without a build", result)
	}
	if got := testutil.Git(t, target, "rev-parse", "test-x"); got != result.Commit {
		t.Errorf("branch head = %s, want the injection commit %s", got, result.Commit)
	}
	invocation := tools.Invocations()[0]
	if invocation.Dir != target || !contains(invocation.Env, "WRANGLER_COMMIT="+result.Commit) {
		t.Errorf("build invocation = %+v", invocation)
	}
}

func TestInject_Push(t *testing.T) {
	t.Parallel()

	target := testutil.InitRepo(t)
	remote := testutil.InitRemote(t, target)

	request := baseRequest(t, target)
	request.Push = true
	request.Remote = "origin"
	result, err := newInjector(t, nil).Inject(context.Background(), request)
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if !result.Pushed {
		t.Error("result does not report the push")
	}
	if got := testutil.Git(t, remote, "rev-parse", "refs/heads/test-x"); got != result.Commit {
		t.Errorf("remote test-x = %s, want %s", got, result.Commit)
	}
}

// cloneOfRemote returns an upstream working tree, and a clone of the
// bare remote it pushes to, as a cached deployment clone would be.
func cloneOfRemote(t *testing.T) (upstream, target string) {
	t.Helper()
	upstream = testutil.InitRepo(t)
	remote := testutil.InitRemote(t, upstream)
	target = filepath.Join(t.TempDir(), "clone")
	testutil.Git(t, filepath.Dir(target), "clone", "--quiet", remote, target)
	return upstream, target
}

func TestInject_CutsFromAdvancedRemote(t *testing.T) {
	t.Parallel()

	upstream, target := cloneOfRemote(t)
	request := baseRequest(t, target)
	request.Push = true
	request.Remote = "origin"
	injector := newInjector(t, nil)

	if _, err := injector.Inject(context.Background(), request); err != nil {
		t.Fatalf("first Inject: %v", err)
	}
	localMain := testutil.Git(t, target, "rev-parse", "main")

	advanced := testutil.CommitFiles(t, upstream, map[string]string{"NEWS": "moved on\n"}, "advance main")
	testutil.Git(t, upstream, "push", "--quiet", "origin", "main")

	result, err := injector.Inject(context.Background(), request)
	if err != nil {
		t.Fatalf("second Inject: %v", err)
	}
	if result.Base != advanced {
		t.Errorf("result base = %s, want remote main %s", result.Base, advanced)
	}
	if got := testutil.Git(t, target, "rev-parse", "test-x^"); got != advanced {
		t.Errorf("test-x parent = %s, want remote main %s", got, advanced)
	}
	if got := testutil.Git(t, target, "rev-parse", "main"); got != localMain {
		t.Errorf("local main moved from %s to %s", localMain, got)
	}
	files := strings.Fields(testutil.Git(t, target, "diff", "--name-only", advanced, "test-x"))
	for _, file := range files {
		if !strings.HasPrefix(file, "deployments/environments/roman-cal/") {
			t.Errorf("branch diff against remote main touches %s", file)
		}
	}
}

func TestInject_MergedUpstreamIsNothingToCommit(t *testing.T) {
	t.Parallel()

	upstream, target := cloneOfRemote(t)
	request := baseRequest(t, target)
	request.Push = true
	request.Remote = "origin"
	injector := newInjector(t, nil)

	if _, err := injector.Inject(context.Background(), request); err != nil {
		t.Fatalf("first Inject: %v", err)
	}
	testutil.Git(t, upstream, "fetch", "--quiet", "origin")
	testutil.Git(t, upstream, "merge", "--quiet", "--ff-only", "origin/test-x")
	testutil.Git(t, upstream, "push", "--quiet", "origin", "main")

	// The clone's local main still predates the merge.
	_, err := injector.Inject(context.Background(), request)
	if !errors.Is(err, ErrNothingToCommit) {
		t.Errorf("Inject after upstream merge: err = %v, want ErrNothingToCommit", err)
	}
}

func TestRequestValidation(t *testing.T) {
	t.Parallel()

	target := t.TempDir()
	tests := map[string]func(*Request){
		"branch is base":      func(r *Request) { r.Branch = "main" },
		"absolute root":       func(r *Request) { r.ArtifactRoot = "/etc" },
		"escaping root":       func(r *Request) { r.ArtifactRoot = "../outside" },
		"empty message":       func(r *Request) { r.CommitMessage = " " },
		"push without remote": func(r *Request) { r.Push = true },
		"no artifacts":        func(r *Request) { r.Artifacts = nil },
	}
	for name, mutate := range tests {
		request := baseRequest(t, target)
		mutate(&request)
		if _, err := newInjector(t, nil).Inject(context.Background(), request); err == nil {
			t.Errorf("%s: Inject succeeded", name)
		}
	}
}

func contains(values []string, want string) bool {
	for _, value := range values {
		if value == want {
			return true
		}
	}
	return false
}
