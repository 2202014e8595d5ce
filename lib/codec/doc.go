// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides wrangler's CBOR encoding configuration.
//
// wrangler keeps its human-edited state in YAML (spec documents, tool
// configuration) and its machine-written sidecars in CBOR: archive
// manifests that record the content digest of every file in a packed
// environment. JSON appears only at the CLI boundary (--json output)
// and in files other tools own (kernel.json).
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. The
// same manifest always produces the same bytes, so a manifest's own
// digest identifies the archive contents.
//
//	data, err := codec.Marshal(manifest)
//	err = codec.Unmarshal(data, &manifest)
//
// Types that are only ever CBOR use `cbor` struct tags. Types that also
// appear in --json output use `json` tags, which fxamacker/cbor reads
// when `cbor` tags are absent. Never put both on one field.
package codec
