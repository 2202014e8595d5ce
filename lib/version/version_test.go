// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestApplySettingsFillsUninjectedFields(t *testing.T) {
	t.Parallel()

	build := Build{Version: "1.2.3", Commit: "unknown", BuildTime: "unknown"}
	applySettings(&build, []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.modified", Value: "true"},
		{Key: "vcs.time", Value: "2026-03-01T10:00:00Z"},
	})

	if build.Commit != "0123456789ab" {
		t.Errorf("Commit = %q, want 0123456789ab", build.Commit)
	}
	if !build.Dirty {
		t.Error("Dirty = false, want true")
	}
	if build.BuildTime != "2026-03-01T10:00:00Z" {
		t.Errorf("BuildTime = %q", build.BuildTime)
	}
	if got, want := build.Info(), "1.2.3 (0123456789ab-dirty, 2026-03-01T10:00:00Z)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}
}

func TestApplySettingsKeepsInjectedFields(t *testing.T) {
	t.Parallel()

	build := Build{Commit: "abc1234", BuildTime: "2026-01-01"}
	applySettings(&build, []debug.BuildSetting{
		{Key: "vcs.revision", Value: "ffffffffffff"},
		{Key: "vcs.time", Value: "2026-03-01T10:00:00Z"},
	})
	if build.Commit != "abc1234" || build.BuildTime != "2026-01-01" {
		t.Errorf("injected fields overwritten: %+v", build)
	}
}

func TestFullIncludesPlatform(t *testing.T) {
	t.Parallel()

	full := Current().Full()
	if !strings.Contains(full, "Platform: ") || !strings.Contains(full, "Go: ") {
		t.Errorf("Full() = %q", full)
	}
}
