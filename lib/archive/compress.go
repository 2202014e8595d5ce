// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
)

// newCompressor wraps w in the compressor for format. Closing the
// result flushes the compressor but does not close w.
func newCompressor(w io.Writer, format string) (io.WriteCloser, error) {
	switch format {
	case wrangler.ArchiveTarZstd:
		encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		return encoder, nil
	case wrangler.ArchiveTarLZ4:
		return lz4.NewWriter(w), nil
	case wrangler.ArchiveTar:
		return nopWriteCloser{w}, nil
	default:
		return nil, fmt.Errorf("unsupported archive format %q", format)
	}
}

// newDecompressor wraps r in the decompressor for format.
func newDecompressor(r io.Reader, format string) (io.ReadCloser, error) {
	switch format {
	case wrangler.ArchiveTarZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		return decoder.IOReadCloser(), nil
	case wrangler.ArchiveTarLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case wrangler.ArchiveTar:
		return io.NopCloser(r), nil
	default:
		return nil, fmt.Errorf("unsupported archive format %q", format)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// countingWriter counts bytes written through it.
type countingWriter struct{ n int64 }

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
