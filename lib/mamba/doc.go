// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mamba is the package-manager collaborator. It realizes an
// environment spec into a micromamba prefix and installs the spec's
// packages into it with pip.
//
// Each environment lives at <root>/envs/<id>. Creating the prefix,
// installing packages, and removing the prefix are invocations of
// micromamba and of the prefix's own python through a
// [toolexec.Runner], so tests substitute a scripted fake.
//
// Installed state is never remembered. [Manager.Probe] inspects the
// prefix on every call: the prefix must exist with a python
// interpreter, and every package pinned in the spec must have a
// matching .dist-info directory in site-packages. A prefix someone
// edited by hand shows up as drift in the probe result rather than
// being trusted.
package mamba
