// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/wrangler/lib/hash"
	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
)

// Data pins data archives by content digest. http(s) URLs are
// downloaded; file URLs and bare paths are read from disk.
type Data struct {
	// Client performs downloads. Defaults to http.DefaultClient.
	Client *http.Client
}

// Resolve implements curation.Resolver.
func (d *Data) Resolve(ctx context.Context, item wrangler.Item) (string, error) {
	body, err := d.open(ctx, item.URL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	digest, _, err := hash.Reader(hash.DataDomain, body)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", item.URL, err)
	}
	return wrangler.DataPinPrefix + digest.String(), nil
}

// ErrDigestMismatch means fetched data does not match its pin.
var ErrDigestMismatch = errors.New("data does not match its pin")

// Fetch downloads location to destination and verifies it against pin.
// The file appears at destination only once verified.
func (d *Data) Fetch(ctx context.Context, location, pin, destination string) error {
	body, err := d.open(ctx, location)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(destination), err)
	}
	temp, err := os.CreateTemp(filepath.Dir(destination), "."+filepath.Base(destination)+".fetch-*")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	defer os.Remove(temp.Name())

	hasher := hash.NewHasher(hash.DataDomain)
	_, copyErr := io.Copy(io.MultiWriter(temp, hasher), body)
	if closeErr := temp.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		return fmt.Errorf("downloading %s: %w", location, copyErr)
	}
	if got := wrangler.DataPinPrefix + hasher.Sum().String(); got != pin {
		return fmt.Errorf("%w: %s has %s, pinned %s", ErrDigestMismatch, location, got, pin)
	}
	if err := os.Rename(temp.Name(), destination); err != nil {
		return fmt.Errorf("moving %s into place: %w", destination, err)
	}
	return nil
}

// Present reports whether destination exists and matches pin.
func Present(destination, pin string) (bool, error) {
	digest, _, err := hash.File(hash.DataDomain, destination)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return wrangler.DataPinPrefix+digest.String() == pin, nil
}

func (d *Data) open(ctx context.Context, location string) (io.ReadCloser, error) {
	parsed, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parsing data url %q: %w", location, err)
	}

	switch parsed.Scheme {
	case "http", "https":
		request, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, fmt.Errorf("building request for %s: %w", location, err)
		}
		client := d.Client
		if client == nil {
			client = http.DefaultClient
		}
		response, err := client.Do(request)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", location, err)
		}
		switch {
		case response.StatusCode == http.StatusNotFound:
			response.Body.Close()
			return nil, fmt.Errorf("fetching %s: %w", location, ErrNotFound)
		case response.StatusCode != http.StatusOK:
			response.Body.Close()
			return nil, fmt.Errorf("fetching %s: unexpected status %s", location, response.Status)
		}
		return response.Body, nil

	case "file", "":
		path := parsed.Path
		if parsed.Scheme == "" {
			path = location
		}
		file, err := os.Open(path)
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("opening %s: %w", path, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		return file, nil
	}
	return nil, fmt.Errorf("data url %q: unsupported scheme %q", location, parsed.Scheme)
}
