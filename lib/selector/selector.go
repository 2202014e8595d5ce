// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package selector compiles entry-selection patterns such as
// --data-select "numpy|scipy" into a predicate built once per
// invocation.
//
// A pattern made only of plain names joined by "|" becomes a set
// membership test. Plain names may contain dots, as in
// "zope.interface", and match literally. Anything containing other
// regular-expression syntax is
// compiled as an anchored regular expression, so "astro.*" selects
// "astropy" and "astroquery" but not "pyastro". The empty pattern
// selects everything.
package selector

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Selector decides whether an entry name is in scope.
type Selector struct {
	pattern string
	names   map[string]bool
	regex   *regexp.Regexp
}

// plainName matches package names that need no regular-expression
// handling. A dot inside such a name is a literal separator.
var plainName = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// All returns a selector matching every name.
func All() *Selector {
	return &Selector{}
}

// Compile parses pattern into a Selector.
func Compile(pattern string) (*Selector, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return All(), nil
	}

	alternatives := strings.Split(pattern, "|")
	names := make(map[string]bool, len(alternatives))
	plain := true
	for _, alternative := range alternatives {
		alternative = strings.TrimSpace(alternative)
		if !plainName.MatchString(alternative) {
			plain = false
			break
		}
		names[alternative] = true
	}
	if plain {
		return &Selector{pattern: pattern, names: names}, nil
	}

	regex, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, fmt.Errorf("compiling selector %q: %w", pattern, err)
	}
	return &Selector{pattern: pattern, regex: regex}, nil
}

// Match reports whether name is selected.
func (s *Selector) Match(name string) bool {
	switch {
	case s == nil:
		return true
	case s.names != nil:
		return s.names[name]
	case s.regex != nil:
		return s.regex.MatchString(name)
	}
	return true
}

// IsAll reports whether the selector matches every name.
func (s *Selector) IsAll() bool {
	return s == nil || (s.names == nil && s.regex == nil)
}

// Names returns the selected names in sorted order when the selector
// is a plain name set, or nil otherwise. Callers use it to report
// names that matched nothing.
func (s *Selector) Names() []string {
	if s == nil || s.names == nil {
		return nil
	}
	names := make([]string, 0, len(s.names))
	for name := range s.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Selector) String() string {
	if s.IsAll() {
		return "*"
	}
	return s.pattern
}
