// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mamba

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bureau-foundation/wrangler/lib/archive"
	"github.com/bureau-foundation/wrangler/lib/toolexec"
)

// Pack archives an installed environment to archivePath.
func (m *Manager) Pack(ctx context.Context, environmentID, archivePath, format string, created time.Time) (*archive.Manifest, error) {
	prefix := m.Prefix(environmentID)
	m.logger.Info("packing environment", "environment", environmentID, "archive", archivePath, "format", format)
	return archive.Pack(ctx, archive.PackRequest{
		Source:      prefix,
		Destination: archivePath,
		Format:      format,
		Environment: environmentID,
		Created:     created,
	})
}

// Unpack materializes an environment from archivePath. The prefix must
// not exist.
func (m *Manager) Unpack(ctx context.Context, environmentID, archivePath string) (*archive.Manifest, error) {
	manifest, err := archive.ReadManifest(archivePath)
	if err != nil {
		return nil, err
	}
	if manifest.Environment != environmentID {
		return nil, fmt.Errorf("archive %s holds environment %q, not %q", archivePath, manifest.Environment, environmentID)
	}
	m.logger.Info("unpacking environment", "environment", environmentID, "archive", archivePath)
	return archive.Unpack(ctx, archivePath, m.Prefix(environmentID))
}

// CompactResult reports what Compact removed.
type CompactResult struct {
	RemovedFiles int   `json:"removed_files"`
	RemovedBytes int64 `json:"removed_bytes"`
}

// Compact removes files an installed environment never needs at run
// time: bytecode caches, static libraries, and the package cache
// under the root prefix. Importable modules and executables are left
// alone.
func (m *Manager) Compact(ctx context.Context, environmentID string) (CompactResult, error) {
	var result CompactResult
	prefix := m.Prefix(environmentID)
	err := filepath.WalkDir(prefix, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		switch {
		case entry.IsDir() && entry.Name() == "__pycache__":
			removed, size, err := removeTree(path)
			if err != nil {
				return err
			}
			result.RemovedFiles += removed
			result.RemovedBytes += size
			return filepath.SkipDir
		case entry.Type().IsRegular() && isCompactable(entry.Name()):
			info, err := entry.Info()
			if err != nil {
				return err
			}
			if err := os.Remove(path); err != nil {
				return err
			}
			result.RemovedFiles++
			result.RemovedBytes += info.Size()
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("compacting %s: %w", environmentID, err)
	}
	if _, err := m.runner.Run(ctx, toolexec.Invocation{
		Name: m.micromamba,
		Args: []string{"clean", "--all", "--yes", "--root-prefix", m.root},
	}); err != nil {
		return result, fmt.Errorf("cleaning package cache: %w", err)
	}
	m.logger.Info("compacted environment", "environment", environmentID,
		"removed_files", result.RemovedFiles, "removed_bytes", result.RemovedBytes)
	return result, nil
}

// CompactionCandidates counts what Compact would remove. Zero means
// the environment is already compact.
func (m *Manager) CompactionCandidates(environmentID string) (int, error) {
	count := 0
	err := filepath.WalkDir(m.Prefix(environmentID), func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() && entry.Name() == "__pycache__" {
			count++
			return filepath.SkipDir
		}
		if entry.Type().IsRegular() && isCompactable(entry.Name()) {
			count++
		}
		return nil
	})
	return count, err
}

func isCompactable(name string) bool {
	return strings.HasSuffix(name, ".pyc") || strings.HasSuffix(name, ".a")
}

func removeTree(dir string) (int, int64, error) {
	var files int
	var size int64
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.Type().IsRegular() {
			info, err := entry.Info()
			if err != nil {
				return err
			}
			files++
			size += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return files, size, os.RemoveAll(dir)
}
