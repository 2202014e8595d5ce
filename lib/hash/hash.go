// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hash

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 digest.
type Digest [32]byte

// Domain selects the keyed-hash domain.
type Domain [32]byte

// Domain keys. The byte values are the ASCII domain name zero-padded
// to 32 bytes. Changing a key invalidates every digest recorded in
// that domain (spec fingerprints, archive manifests, data pins).
var (
	// SpecDomain fingerprints the curated content of one environment.
	SpecDomain = Domain{
		'w', 'r', 'a', 'n', 'g', 'l', 'e', 'r', '.', 's', 'p', 'e', 'c', 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	// FileDomain hashes individual files recorded in archive manifests.
	FileDomain = Domain{
		'w', 'r', 'a', 'n', 'g', 'l', 'e', 'r', '.', 'f', 'i', 'l', 'e', 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	// ArchiveDomain hashes complete packed environment archives.
	ArchiveDomain = Domain{
		'w', 'r', 'a', 'n', 'g', 'l', 'e', 'r', '.', 'a', 'r', 'c', 'h', 'i', 'v', 'e',
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	// DataDomain pins data archives referenced by data entries.
	DataDomain = Domain{
		'w', 'r', 'a', 'n', 'g', 'l', 'e', 'r', '.', 'd', 'a', 't', 'a', 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// Bytes returns the keyed digest of data in the given domain.
func Bytes(domain Domain, data []byte) Digest {
	hasher := NewHasher(domain)
	hasher.Write(data)
	return hasher.Sum()
}

// Reader streams r through the keyed hash and returns the digest and
// the number of bytes consumed.
func Reader(domain Domain, r io.Reader) (Digest, int64, error) {
	hasher := NewHasher(domain)
	written, err := io.Copy(hasher, r)
	if err != nil {
		return Digest{}, written, err
	}
	return hasher.Sum(), written, nil
}

// File hashes the file at path in the given domain. The file is
// streamed so memory stays constant regardless of size.
func File(domain Domain, path string) (Digest, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, 0, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	digest, size, err := Reader(domain, file)
	if err != nil {
		return Digest{}, 0, fmt.Errorf("hashing %s: %w", path, err)
	}
	return digest, size, nil
}

// Hasher is an incremental keyed hasher.
type Hasher struct {
	inner *blake3.Hasher
}

// NewHasher returns a Hasher keyed for domain.
func NewHasher(domain Domain) *Hasher {
	inner, err := blake3.NewKeyed(domain[:])
	if err != nil {
		// NewKeyed only fails for keys that are not 32 bytes.
		panic("hash: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return &Hasher{inner: inner}
}

// Write adds p to the running hash. It never returns an error.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.inner.Write(p)
}

// WriteField writes a length-prefixed field so that adjacent fields
// cannot run together ("ab"+"c" and "a"+"bc" hash differently).
func (h *Hasher) WriteField(value string) {
	fmt.Fprintf(h.inner, "%d:", len(value))
	h.inner.WriteString(value)
}

// Sum returns the digest of everything written so far.
func (h *Hasher) Sum() Digest {
	var digest Digest
	copy(digest[:], h.inner.Sum(nil))
	return digest
}

// String returns the lowercase hex encoding of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether d is the zero digest.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Parse decodes a 64-character hex digest.
func Parse(hexString string) (Digest, error) {
	var digest Digest
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return digest, fmt.Errorf("parsing digest: %w", err)
	}
	if len(decoded) != len(digest) {
		return digest, fmt.Errorf("digest is %d bytes, want %d", len(decoded), len(digest))
	}
	copy(digest[:], decoded)
	return digest, nil
}
