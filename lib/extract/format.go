// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Format is an archive container plus compression.
type Format string

const (
	Zip     Format = "zip"
	Tar     Format = "tar"
	TarZstd Format = "tar.zst"
	TarGzip Format = "tar.gz"
	TarLZ4  Format = "tar.lz4"
)

var suffixes = []struct {
	suffix string
	format Format
}{
	{".tar.zst", TarZstd},
	{".tar.zstd", TarZstd},
	{".tar.gz", TarGzip},
	{".tgz", TarGzip},
	{".tar.lz4", TarLZ4},
	{".tar", Tar},
	{".zip", Zip},
}

// DetectFormat maps an archive file name to its format.
func DetectFormat(name string) (Format, error) {
	lower := strings.ToLower(name)
	for _, candidate := range suffixes {
		if strings.HasSuffix(lower, candidate.suffix) {
			return candidate.format, nil
		}
	}
	return "", fmt.Errorf("unrecognized archive format for %q", name)
}

// decompressor wraps r for a tar format. The returned closer releases
// decoder resources; it does not close r.
func decompressor(format Format, r io.Reader) (io.Reader, func(), error) {
	switch format {
	case Tar:
		return r, func() {}, nil
	case TarZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return decoder, decoder.Close, nil
	case TarGzip:
		reader, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return reader, func() { reader.Close() }, nil
	case TarLZ4:
		return lz4.NewReader(r), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("format %s is not a tar stream", format)
	}
}
