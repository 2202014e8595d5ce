// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/wrangler/lib/codec"
)

// ManifestVersion is the manifest schema this package writes.
const ManifestVersion = 1

// ErrCorrupt means an archive or an extracted file does not match its
// manifest.
var ErrCorrupt = errors.New("archive does not match its manifest")

// Manifest describes a packed environment.
type Manifest struct {
	Version     int       `json:"version"`
	Environment string    `json:"environment"`
	Format      string    `json:"format"`
	Created     time.Time `json:"created"`

	// Digest is the ArchiveDomain BLAKE3 digest of the archive bytes.
	Digest string `json:"digest"`
	Size   int64  `json:"size"`

	Files []File `json:"files"`
}

// File is one entry of a packed tree.
type File struct {
	// Path is slash-separated and relative to the packed root.
	Path string `json:"path"`

	Mode os.FileMode `json:"mode"`
	Size int64       `json:"size,omitempty"`

	// Digest is the FileDomain digest of a regular file's contents.
	Digest string `json:"digest,omitempty"`

	// Link is a symlink's target.
	Link string `json:"link,omitempty"`
}

// TotalSize returns the summed size of the regular files.
func (m *Manifest) TotalSize() int64 {
	var total int64
	for _, file := range m.Files {
		total += file.Size
	}
	return total
}

// ManifestPath returns where the manifest for archivePath lives.
func ManifestPath(archivePath string) string {
	return archivePath + ".manifest"
}

// Path returns the archive path for an environment in dir.
func Path(dir, environmentID, format string) string {
	return filepath.Join(dir, environmentID+"."+format)
}

// ReadManifest loads the manifest of archivePath.
func ReadManifest(archivePath string) (*Manifest, error) {
	path := ManifestPath(archivePath)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading archive manifest: %w", err)
	}
	var manifest Manifest
	if err := codec.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decoding archive manifest %s: %w", path, err)
	}
	if manifest.Version != ManifestVersion {
		return nil, fmt.Errorf("archive manifest %s has version %d, want %d", path, manifest.Version, ManifestVersion)
	}
	return &manifest, nil
}

func writeManifest(archivePath string, manifest *Manifest) error {
	data, err := codec.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encoding archive manifest: %w", err)
	}
	return writeFileAtomic(ManifestPath(archivePath), data)
}

// writeFileAtomic writes data to a temporary sibling of path and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	temp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temporary file for %s: %w", path, err)
	}
	tempPath := temp.Name()
	defer os.Remove(tempPath)

	if _, err := temp.Write(data); err != nil {
		temp.Close()
		return fmt.Errorf("writing %s: %w", tempPath, err)
	}
	if err := temp.Sync(); err != nil {
		temp.Close()
		return fmt.Errorf("syncing %s: %w", tempPath, err)
	}
	if err := temp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", tempPath, path, err)
	}
	return nil
}
