// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package kernel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
	"github.com/bureau-foundation/wrangler/lib/testutil"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(Config{Dir: filepath.Join(t.TempDir(), "kernels")})
}

func TestRegister(t *testing.T) {
	t.Setenv("REFDATA", "/data")
	registry := newRegistry(t)
	prefix := filepath.Join(t.TempDir(), "envs", "roman-cal")
	spec := wrangler.EnvironmentSpec{
		ID:          "roman-cal",
		DisplayName: "Roman Calibration",
		EnvVars:     map[string]string{"CRDS_PATH": "${REFDATA}/crds"},
	}

	if ok, err := registry.Registered("roman-cal", prefix); err != nil || ok {
		t.Fatalf("Registered before Register = %v, %v", ok, err)
	}
	if err := registry.Register(spec, prefix); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, ok, err := registry.Lookup("roman-cal")
	if err != nil || !ok {
		t.Fatalf("Lookup = %v, %v", ok, err)
	}
	want := &Spec{
		Argv:        []string{filepath.Join(prefix, "bin", "python"), "-m", "ipykernel_launcher", "-f", "{connection_file}"},
		DisplayName: "Roman Calibration",
		Language:    "python",
		Env:         map[string]string{"CRDS_PATH": "/data/crds"},
		Metadata:    Metadata{Wrangler: &Ownership{Environment: "roman-cal", Prefix: prefix}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("kernel.json (-want +got):\n%s", diff)
	}
	if ok, err := registry.Registered("roman-cal", prefix); err != nil || !ok {
		t.Errorf("Registered after Register = %v, %v", ok, err)
	}
	if ok, _ := registry.Registered("roman-cal", "/elsewhere"); ok {
		t.Error("kernel pointing at another prefix reported registered")
	}

	// Registering again is harmless.
	if err := registry.Register(spec, prefix); err != nil {
		t.Fatalf("second Register: %v", err)
	}
}

func TestUnregister(t *testing.T) {
	t.Parallel()

	registry := newRegistry(t)
	spec := wrangler.EnvironmentSpec{ID: "e"}
	if err := registry.Register(spec, "/prefix/e"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	for range 2 {
		if err := registry.Unregister("e"); err != nil {
			t.Fatalf("Unregister: %v", err)
		}
	}
	if _, ok, _ := registry.Lookup("e"); ok {
		t.Error("kernel still present after Unregister")
	}
}

func TestLookup_AcceptsCommentsAndTrailingCommas(t *testing.T) {
	t.Parallel()

	registry := newRegistry(t)
	testutil.WriteFile(t, registry.Dir(), "hand/kernel.json", `{
  // edited by hand
  "argv": ["/usr/bin/python3", "-m", "ipykernel_launcher", "-f", "{connection_file}",],
  "display_name": "Hand made",
  "language": "python",
}`)
	spec, ok, err := registry.Lookup("hand")
	if err != nil || !ok {
		t.Fatalf("Lookup = %v, %v", ok, err)
	}
	if spec.DisplayName != "Hand made" || spec.Interpreter() != "/usr/bin/python3" {
		t.Errorf("spec = %+v", spec)
	}
}

func TestOrphansAndCleanup(t *testing.T) {
	t.Parallel()

	registry := newRegistry(t)
	alive := filepath.Join(t.TempDir(), "alive")
	testutil.WriteFile(t, alive, "bin/python", "")
	gone := filepath.Join(t.TempDir(), "gone")

	for id, prefix := range map[string]string{"alive": alive, "gone-b": gone, "gone-a": gone} {
		if err := registry.Register(wrangler.EnvironmentSpec{ID: id}, prefix); err != nil {
			t.Fatalf("Register %s: %v", id, err)
		}
	}
	// Not managed by wrangler, so never an orphan even though its
	// interpreter is missing.
	testutil.WriteFile(t, registry.Dir(), "foreign/kernel.json",
		`{"argv": ["/nonexistent/python"], "display_name": "Foreign", "language": "python"}`)

	orphans, err := registry.Orphans()
	if err != nil {
		t.Fatalf("Orphans: %v", err)
	}
	if diff := cmp.Diff([]string{"gone-a", "gone-b"}, orphans); diff != "" {
		t.Errorf("Orphans (-want +got):\n%s", diff)
	}

	removed, err := registry.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if len(removed) != 2 {
		t.Errorf("Cleanup removed %q", removed)
	}
	for _, name := range []string{"alive", "foreign"} {
		if _, err := os.Stat(filepath.Join(registry.Dir(), name, "kernel.json")); err != nil {
			t.Errorf("Cleanup removed %s", name)
		}
	}
	if orphans, _ := registry.Orphans(); len(orphans) != 0 {
		t.Errorf("Orphans after Cleanup = %q", orphans)
	}
}

func TestOrphans_MissingDirectory(t *testing.T) {
	t.Parallel()

	orphans, err := newRegistry(t).Orphans()
	if err != nil || orphans != nil {
		t.Errorf("Orphans on a missing directory = %q, %v", orphans, err)
	}
}
