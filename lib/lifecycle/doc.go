// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package lifecycle drives an environment through its lifecycle:
// clone the source repositories, compile wheels from them, install the
// packages, then pack, unpack, compact, register, unregister, or
// delete the result.
//
// # Probe-derived state
//
// Nothing about an environment's lifecycle is persisted. Every
// operation starts by calling [Driver.Probe], which inspects the
// target system (the clone directories, the wheelhouse, the install
// prefix, the archive directory, the kernel registry) and returns a
// [StateSet]. External tools can change any of these behind wrangler's
// back, so a cached state would lie.
//
// # Transitions
//
// Each transition has a postcondition over the StateSet. A transition
// whose postcondition already holds does nothing and reports
// Skipped, which makes every transition idempotent. Otherwise its
// precondition is checked, its side effect runs, and the target is
// probed again: a transition never reports success unless the
// re-probe shows the postcondition holds.
//
// A failed transition returns a [*LifecycleError] naming the
// transition and the environment. The driver never rolls back; state
// reached by earlier transitions stays in place so a retry resumes.
//
// Each transition holds the environment's lock for its duration, so
// two wrangler processes never install into the same prefix at once.
package lifecycle
