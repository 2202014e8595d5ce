// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package specstore

import (
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and parses the spec document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading spec: %w", err)
	}
	return Parse(data, path)
}

// Save atomically replaces the file at path with the encoded document.
// Readers observe either the previous content or the new content.
func Save(document *Document, path string) error {
	return save(document, path, nil)
}

// save is Save with a hook that runs after the temporary file is
// durable and before it is renamed into place. Tests use it to
// simulate a crash between the two.
func save(document *Document, path string, beforeRename func(temporaryPath string) error) error {
	data, err := document.Encode()
	if err != nil {
		return err
	}

	directory := filepath.Dir(path)
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	file, err := os.CreateTemp(directory, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temporary spec file: %w", err)
	}
	temporaryPath := file.Name()

	// Write, sync, close. If any step fails, remove the temporary file
	// and report the first error.
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary spec file: %w", err)
	}
	if err := file.Chmod(mode); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("setting spec file mode: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary spec file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary spec file: %w", err)
	}

	if beforeRename != nil {
		if err := beforeRename(temporaryPath); err != nil {
			return err
		}
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming spec file into place: %w", err)
	}

	// Sync the parent directory so the rename survives power loss.
	parentDirectory, err := os.Open(directory)
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}
	return nil
}
