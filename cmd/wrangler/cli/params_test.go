// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
)

type Shared struct {
	Timeout time.Duration `flag:"timeout" desc:"bound" default:"90s"`
}

type outer struct {
	Shared
	Name    string   `flag:"name,n" desc:"a name" default:"roman"`
	Jobs    int      `flag:"jobs" desc:"workers" default:"4"`
	Enabled bool     `flag:"enabled" desc:"toggle" default:"true"`
	Tags    []string `flag:"tag" desc:"tags" default:"a,b"`

	ignored string
}

func TestBindFlags_Defaults(t *testing.T) {
	t.Parallel()

	var params outer
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&params, flagSet); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}
	if err := flagSet.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if params.Timeout != 90*time.Second {
		t.Errorf("Timeout = %v, want 90s", params.Timeout)
	}
	if params.Name != "roman" || params.Jobs != 4 || !params.Enabled {
		t.Errorf("defaults not applied: %+v", params)
	}
	if diff := cmp.Diff([]string{"a", "b"}, params.Tags); diff != "" {
		t.Errorf("Tags mismatch (-want +got):\n%s", diff)
	}
}

func TestBindFlags_Parse(t *testing.T) {
	t.Parallel()

	var params outer
	flagSet := FlagsFromParams("test", &params)
	err := flagSet.Parse([]string{"-n", "tike", "--timeout", "5m", "--enabled=false", "--tag", "x", "--tag", "y"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if params.Name != "tike" {
		t.Errorf("Name = %q, want tike", params.Name)
	}
	if params.Timeout != 5*time.Minute {
		t.Errorf("Timeout = %v, want 5m", params.Timeout)
	}
	if params.Enabled {
		t.Error("Enabled = true, want false")
	}
	if diff := cmp.Diff([]string{"x", "y"}, params.Tags); diff != "" {
		t.Errorf("Tags mismatch (-want +got):\n%s", diff)
	}
	if flagSet.Lookup("ignored") != nil {
		t.Error("untagged field bound as a flag")
	}
}

func TestBindFlags_RejectsNonStruct(t *testing.T) {
	t.Parallel()

	var value string
	if err := BindFlags(&value, pflag.NewFlagSet("test", pflag.ContinueOnError)); err == nil {
		t.Error("BindFlags(*string) = nil, want error")
	}
}

func TestBindFlags_RejectsUnsupportedType(t *testing.T) {
	t.Parallel()

	var params struct {
		Ratio float64 `flag:"ratio"`
	}
	if err := BindFlags(&params, pflag.NewFlagSet("test", pflag.ContinueOnError)); err == nil {
		t.Error("BindFlags with a float64 field = nil, want error")
	}
}

func TestBindFlags_RejectsBadDefault(t *testing.T) {
	t.Parallel()

	var params struct {
		Jobs int `flag:"jobs" default:"many"`
	}
	if err := BindFlags(&params, pflag.NewFlagSet("test", pflag.ContinueOnError)); err == nil {
		t.Error("BindFlags with a non-integer default = nil, want error")
	}
}
