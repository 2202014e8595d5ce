// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package selector

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCompile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		match   []string
		reject  []string
	}{
		{"", []string{"numpy", "anything"}, nil},
		{"numpy", []string{"numpy"}, []string{"numpy2", "num"}},
		{"a|b|c", []string{"a", "b", "c"}, []string{"ab", "d", ""}},
		{" a | b ", []string{"a", "b"}, []string{" a "}},
		{"astro.*", []string{"astropy", "astroquery"}, []string{"pyastro"}},
		{"jwst|roman.*", []string{"jwst", "romancal"}, []string{"jwst2"}},
		{"zope.interface", []string{"zope.interface"}, []string{"zopeXinterface", "zope-interface"}},
		{"ruamel.yaml|numpy", []string{"ruamel.yaml", "numpy"}, []string{"ruamelXyaml"}},
		{"py.*sdf", []string{"pysdf", "py.asdf"}, []string{"asdf"}},
	}
	for _, test := range tests {
		selector, err := Compile(test.pattern)
		if err != nil {
			t.Fatalf("Compile(%q): %v", test.pattern, err)
		}
		for _, name := range test.match {
			if !selector.Match(name) {
				t.Errorf("Compile(%q).Match(%q) = false, want true", test.pattern, name)
			}
		}
		for _, name := range test.reject {
			if selector.Match(name) {
				t.Errorf("Compile(%q).Match(%q) = true, want false", test.pattern, name)
			}
		}
	}
}

func TestCompile_InvalidRegex(t *testing.T) {
	t.Parallel()

	if _, err := Compile("numpy|(scipy"); err == nil {
		t.Error("Compile accepted an unbalanced group")
	}
}

func TestNames(t *testing.T) {
	t.Parallel()

	selector, err := Compile("c|a|b")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, selector.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}

	dotted, _ := Compile("zope.interface|numpy")
	if diff := cmp.Diff([]string{"numpy", "zope.interface"}, dotted.Names()); diff != "" {
		t.Errorf("dotted Names mismatch (-want +got):\n%s", diff)
	}

	regex, _ := Compile("a.*")
	if regex.Names() != nil {
		t.Errorf("regex selector Names = %v, want nil", regex.Names())
	}
	if !All().IsAll() || regex.IsAll() {
		t.Error("IsAll misreports")
	}
}
