// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/wrangler/lib/hash"
)

// PackRequest describes one pack.
type PackRequest struct {
	// Source is the environment directory to pack.
	Source string

	// Destination is the archive path to create. An existing archive
	// is replaced.
	Destination string

	// Format is one of the wrangler.Archive* formats.
	Format string

	Environment string

	// Created is recorded in the manifest.
	Created time.Time
}

// Pack archives request.Source and writes the archive and its manifest.
func Pack(ctx context.Context, request PackRequest) (*Manifest, error) {
	info, err := os.Stat(request.Source)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", request.Environment, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("packing %s: %s is not a directory", request.Environment, request.Source)
	}
	if err := os.MkdirAll(filepath.Dir(request.Destination), 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	temp, err := os.CreateTemp(filepath.Dir(request.Destination), "."+filepath.Base(request.Destination)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("creating temporary archive: %w", err)
	}
	tempPath := temp.Name()
	defer os.Remove(tempPath)
	defer temp.Close()

	archiveHasher := hash.NewHasher(hash.ArchiveDomain)
	counter := &countingWriter{}
	compressor, err := newCompressor(io.MultiWriter(temp, archiveHasher, counter), request.Format)
	if err != nil {
		return nil, err
	}
	tarWriter := tar.NewWriter(compressor)

	files, err := writeTree(ctx, tarWriter, request.Source)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", request.Environment, err)
	}
	if err := tarWriter.Close(); err != nil {
		return nil, fmt.Errorf("finishing tar stream: %w", err)
	}
	if err := compressor.Close(); err != nil {
		return nil, fmt.Errorf("finishing %s stream: %w", request.Format, err)
	}
	if err := temp.Sync(); err != nil {
		return nil, fmt.Errorf("syncing archive: %w", err)
	}
	if err := temp.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}
	if err := os.Rename(tempPath, request.Destination); err != nil {
		return nil, fmt.Errorf("moving archive into place: %w", err)
	}

	manifest := &Manifest{
		Version:     ManifestVersion,
		Environment: request.Environment,
		Format:      request.Format,
		Created:     request.Created.UTC(),
		Digest:      archiveHasher.Sum().String(),
		Size:        counter.n,
		Files:       files,
	}
	if err := writeManifest(request.Destination, manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

// writeTree writes every entry under root to tarWriter in lexical
// order and returns the manifest entries.
func writeTree(ctx context.Context, tarWriter *tar.Writer, root string) ([]File, error) {
	var files []File
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		relative, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if relative == "." {
			return nil
		}
		name := filepath.ToSlash(relative)

		info, err := entry.Info()
		if err != nil {
			return err
		}
		link := ""
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		} else if !info.Mode().IsRegular() && !info.IsDir() {
			return fmt.Errorf("%s: unsupported file type %s", name, info.Mode().Type())
		}

		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		header.Name = name
		if info.IsDir() {
			header.Name += "/"
		}
		header.Uname, header.Gname = "", ""
		header.Format = tar.FormatPAX
		if err := tarWriter.WriteHeader(header); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		file := File{Path: name, Mode: info.Mode(), Link: link}
		if info.Mode().IsRegular() {
			digest, size, err := copyRegular(tarWriter, path)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			file.Digest, file.Size = digest.String(), size
		}
		files = append(files, file)
		return nil
	})
	return files, err
}

func copyRegular(w io.Writer, path string) (hash.Digest, int64, error) {
	source, err := os.Open(path)
	if err != nil {
		return hash.Digest{}, 0, err
	}
	defer source.Close()
	hasher := hash.NewHasher(hash.FileDomain)
	size, err := io.Copy(io.MultiWriter(w, hasher), source)
	if err != nil {
		return hash.Digest{}, size, err
	}
	return hasher.Sum(), size, nil
}
