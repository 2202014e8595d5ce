// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/wrangler/lib/hash"
)

// ErrDestinationExists means Unpack was asked to overwrite a directory.
var ErrDestinationExists = errors.New("unpack destination already exists")

// Verify checks the archive bytes against the manifest digest.
func Verify(archivePath string) (*Manifest, error) {
	manifest, err := ReadManifest(archivePath)
	if err != nil {
		return nil, err
	}
	digest, size, err := hash.File(hash.ArchiveDomain, archivePath)
	if err != nil {
		return nil, err
	}
	if digest.String() != manifest.Digest || size != manifest.Size {
		return nil, fmt.Errorf("%w: %s has digest %s (%d bytes), manifest records %s (%d bytes)",
			ErrCorrupt, archivePath, digest, size, manifest.Digest, manifest.Size)
	}
	return manifest, nil
}

// Unpack extracts archivePath into destination, which must not exist.
func Unpack(ctx context.Context, archivePath, destination string) (*Manifest, error) {
	manifest, err := Verify(archivePath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Lstat(destination); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDestinationExists, destination)
	}
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(destination), err)
	}
	staging, err := os.MkdirTemp(filepath.Dir(destination), "."+filepath.Base(destination)+".unpack-*")
	if err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := extract(ctx, archivePath, staging, manifest); err != nil {
		return nil, fmt.Errorf("unpacking %s: %w", archivePath, err)
	}
	if err := os.Chmod(staging, 0o755); err != nil {
		return nil, err
	}
	if err := os.Rename(staging, destination); err != nil {
		return nil, fmt.Errorf("moving unpacked environment into place: %w", err)
	}
	return manifest, nil
}

func extract(ctx context.Context, archivePath, root string, manifest *Manifest) error {
	expected := make(map[string]File, len(manifest.Files))
	for _, file := range manifest.Files {
		expected[file.Path] = file
	}

	source, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer source.Close()
	decompressor, err := newDecompressor(source, manifest.Format)
	if err != nil {
		return err
	}
	defer decompressor.Close()

	symlinks := make(map[string]bool)
	seen := 0
	tarReader := tar.NewReader(decompressor)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(header.Name, "/")
		if !filepath.IsLocal(filepath.FromSlash(name)) {
			return fmt.Errorf("%w: entry %q escapes the archive root", ErrCorrupt, header.Name)
		}
		for parent := path.Dir(name); parent != "."; parent = path.Dir(parent) {
			if symlinks[parent] {
				return fmt.Errorf("%w: entry %q is beneath symlink %q", ErrCorrupt, name, parent)
			}
		}
		want, ok := expected[name]
		if !ok {
			return fmt.Errorf("%w: entry %q is not in the manifest", ErrCorrupt, name)
		}
		seen++
		target := filepath.Join(root, filepath.FromSlash(name))

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, want.Mode.Perm()|0o700); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.Symlink(header.Linkname, target); err != nil {
				return err
			}
			symlinks[name] = true
		case tar.TypeReg:
			if err := extractRegular(tarReader, target, want); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: entry %q has unsupported type %q", ErrCorrupt, name, header.Typeflag)
		}
	}
	if seen != len(expected) {
		return fmt.Errorf("%w: archive holds %d entries, manifest lists %d", ErrCorrupt, seen, len(expected))
	}
	return nil
}

func extractRegular(r io.Reader, target string, want File) error {
	file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, want.Mode.Perm())
	if err != nil {
		return err
	}
	hasher := hash.NewHasher(hash.FileDomain)
	size, copyErr := io.Copy(io.MultiWriter(file, hasher), r)
	if closeErr := file.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		return copyErr
	}
	if digest := hasher.Sum().String(); digest != want.Digest || size != want.Size {
		return fmt.Errorf("%w: %s has digest %s, manifest records %s", ErrCorrupt, want.Path, digest, want.Digest)
	}
	return nil
}
