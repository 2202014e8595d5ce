// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wrangler defines the typed data model of a wrangler spec
// document: environments, their package, repository, and data
// entries, test notebook references, deployment metadata, and the
// curation annotations written back by the curation engine.
//
// These types are the read-only view of a document. The YAML node
// tree that owns formatting and ordering lives in lib/specstore, which
// re-derives this view after every mutation. Nothing in this package
// performs I/O.
package wrangler
