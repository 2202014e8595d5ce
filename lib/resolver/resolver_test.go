// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package resolver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/wrangler/lib/hash"
	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
	"github.com/bureau-foundation/wrangler/lib/toolexec"
)

func TestRegistry_Resolve(t *testing.T) {
	t.Parallel()

	fake := &toolexec.Fake{Strict: true}
	fake.On("uv pip compile", "# via nothing\nNumPy==1.26.4 ; python_version >= '3.9'\n", nil)

	registry := &Registry{Runner: fake, Python: "3.11"}
	pin, err := registry.Resolve(context.Background(), wrangler.Item{Name: "numpy", Constraint: ">=1.20"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if pin != "==1.26.4" {
		t.Errorf("pin = %q, want ==1.26.4", pin)
	}
	if got := fake.Stdin(0); got != "numpy>=1.20\n" {
		t.Errorf("requirement on stdin = %q", got)
	}
	if call := fake.Calls()[0]; !strings.Contains(call, "--python-version 3.11") {
		t.Errorf("command %q does not target the python version", call)
	}
}

func TestRegistry_NoSolution(t *testing.T) {
	t.Parallel()

	fake := &toolexec.Fake{}
	fake.On("uv pip compile", "", &toolexec.Error{
		Command: "uv pip compile", ExitCode: 1,
		Stderr: "No solution found when resolving dependencies",
		Err:    errors.New("exit status 1"),
	})

	registry := &Registry{Runner: fake}
	_, err := registry.Resolve(context.Background(), wrangler.Item{Name: "nonexistent-pkg"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve error = %v, want ErrNotFound", err)
	}
}

func TestRequirement(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, constraint, want string
	}{
		{"numpy", "", "numpy"},
		{"numpy", ">=1.20", "numpy>=1.20"},
		{"numpy", "1.26.4", "numpy==1.26.4"},
		{"numpy", "~=1.26", "numpy~=1.26"},
		{"numpy", " <2 ", "numpy<2"},
		{"numpy", "!=1.25.0", "numpy!=1.25.0"},
	}
	for _, test := range tests {
		if got := Requirement(test.name, test.constraint); got != test.want {
			t.Errorf("Requirement(%q, %q) = %q, want %q", test.name, test.constraint, got, test.want)
		}
	}
}

func TestVCS_Resolve(t *testing.T) {
	t.Parallel()

	branch := strings.Repeat("1", 40)
	tagObject := strings.Repeat("2", 40)
	tagCommit := strings.Repeat("3", 40)

	fake := &toolexec.Fake{}
	fake.On("git ls-remote https://example.org/repo main", branch+"\trefs/heads/main\n", nil)
	fake.On("git ls-remote https://example.org/repo v1.0", tagObject+"\trefs/tags/v1.0\n"+tagCommit+"\trefs/tags/v1.0^{}\n", nil)
	fake.On("git ls-remote https://example.org/repo gone", "", nil)

	vcs := &VCS{Runner: fake}
	tests := []struct {
		ref  string
		want string
	}{
		{"main", branch},
		{"v1.0", tagCommit},
		{strings.Repeat("a", 40), strings.Repeat("a", 40)},
	}
	for _, test := range tests {
		got, err := vcs.Resolve(context.Background(), wrangler.Item{URL: "https://example.org/repo", Constraint: test.ref})
		if err != nil {
			t.Fatalf("Resolve(%s): %v", test.ref, err)
		}
		if got != test.want {
			t.Errorf("Resolve(%s) = %s, want %s", test.ref, got, test.want)
		}
	}

	_, err := vcs.Resolve(context.Background(), wrangler.Item{URL: "https://example.org/repo", Constraint: "gone"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(gone) error = %v, want ErrNotFound", err)
	}
	// A full sha needs no upstream call.
	if got := fake.CallsWithPrefix("git ls-remote"); got != 3 {
		t.Errorf("ls-remote calls = %d, want 3", got)
	}
}

func TestData_Resolve(t *testing.T) {
	t.Parallel()

	payload := []byte("reference data archive")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/crds.tar.gz" {
			http.NotFound(w, r)
			return
		}
		w.Write(payload)
	}))
	defer server.Close()

	want := wrangler.DataPinPrefix + hash.Bytes(hash.DataDomain, payload).String()
	data := &Data{Client: server.Client()}

	got, err := data.Resolve(context.Background(), wrangler.Item{URL: server.URL + "/crds.tar.gz"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != want {
		t.Errorf("Resolve = %s, want %s", got, want)
	}
	if !wrangler.IsExactPin(wrangler.SourceData, got) {
		t.Errorf("Resolve returned an inexact data pin %q", got)
	}

	_, err = data.Resolve(context.Background(), wrangler.Item{URL: server.URL + "/missing"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(missing) error = %v, want ErrNotFound", err)
	}

	path := filepath.Join(t.TempDir(), "local.tar")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	local, err := data.Resolve(context.Background(), wrangler.Item{URL: "file://" + path})
	if err != nil {
		t.Fatalf("Resolve(file): %v", err)
	}
	if local != want {
		t.Errorf("file digest = %s, want %s", local, want)
	}
}

func TestData_FetchAndPresent(t *testing.T) {
	t.Parallel()

	payload := []byte("calibration references")
	source := filepath.Join(t.TempDir(), "refs.tar")
	if err := os.WriteFile(source, payload, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	pin := wrangler.DataPinPrefix + hash.Bytes(hash.DataDomain, payload).String()
	destination := filepath.Join(t.TempDir(), "refdata", "refs.tar")
	data := &Data{}

	if ok, err := Present(destination, pin); err != nil || ok {
		t.Fatalf("Present before Fetch = %v, %v", ok, err)
	}
	if err := data.Fetch(context.Background(), source, pin, destination); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if ok, err := Present(destination, pin); err != nil || !ok {
		t.Errorf("Present after Fetch = %v, %v", ok, err)
	}

	wrongPin := wrangler.DataPinPrefix + strings.Repeat("0", 64)
	other := filepath.Join(filepath.Dir(destination), "other.tar")
	err := data.Fetch(context.Background(), source, wrongPin, other)
	if !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("Fetch with wrong pin error = %v, want ErrDigestMismatch", err)
	}
	if _, err := os.Stat(other); !os.IsNotExist(err) {
		t.Errorf("mismatched download left %s behind", other)
	}
}
