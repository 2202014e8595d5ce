// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package specstore loads, validates, mutates, and persists wrangler
// spec documents.
//
// A [Document] owns the parsed yaml.Node tree of the file so that
// saving writes back comments, key order, and scalar styles of every
// key nobody touched. The typed view from lib/schema/wrangler is
// re-derived from the tree after each mutation, so the two never
// disagree.
//
// Documents are values: the curation engine calls [Document.Clone],
// mutates the clone, and hands it back. Nothing reaches disk until
// [Save], which writes a temporary file next to the target, syncs it,
// renames it over the target, and syncs the parent directory. A crash
// at any point leaves either the old document or the new one, never a
// truncated file.
//
// [Parse] and [Load] reject structurally invalid documents with a
// [*MalformedSpecError] listing every problem. [Validate] is a pure
// function producing non-fatal [wrangler.ValidationIssue] findings for
// documents that parsed.
package specstore
