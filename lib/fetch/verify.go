// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/periogt/periogt/lib/catalog"
	"github.com/periogt/periogt/lib/digest"
	"github.com/periogt/periogt/lib/failure"
)

// ProgressFunc is called as bytes arrive. total is -1 when the source
// did not report a size. Calls happen on the downloading goroutine; a
// slow callback slows the download.
type ProgressFunc func(artifact string, written, total int64)

// Options configures a Verifier.
type Options struct {
	// HTTP serves http and https URLs. Defaults to an [HTTPSource]
	// with the package's default client.
	HTTP Source

	// ObjectStore serves s3 URLs. Nil means s3 URLs are rejected.
	ObjectStore Source

	// File serves file URLs. Defaults to [FileSource].
	File Source

	Logger   *slog.Logger
	Progress ProgressFunc
}

// Verifier downloads archives and checks their digests.
type Verifier struct {
	sources  map[string]Source
	logger   *slog.Logger
	progress ProgressFunc
}

// NewVerifier returns a Verifier for options.
func NewVerifier(options Options) *Verifier {
	httpSource := options.HTTP
	if httpSource == nil {
		httpSource = &HTTPSource{}
	}
	fileSource := options.File
	if fileSource == nil {
		fileSource = FileSource{}
	}
	sources := map[string]Source{
		"http":  httpSource,
		"https": httpSource,
		"file":  fileSource,
	}
	if options.ObjectStore != nil {
		sources["s3"] = options.ObjectStore
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Verifier{sources: sources, logger: logger, progress: options.Progress}
}

// WithProgress returns a copy of v that reports progress to fn.
func (v *Verifier) WithProgress(fn ProgressFunc) *Verifier {
	clone := *v
	clone.progress = fn
	return &clone
}

// FetchVerified returns the local path of descriptor's archive under
// destinationDir, downloading it unless a copy with the expected digest
// is already there. A download whose digest does not match is deleted
// and reported as [failure.CodeChecksumMismatch].
func (v *Verifier) FetchVerified(ctx context.Context, descriptor catalog.Descriptor, destinationDir string) (string, error) {
	if descriptor.Name == "" || descriptor.Name != filepath.Base(descriptor.Name) {
		return "", failure.Validation("artifact name %q must be a plain file name", descriptor.Name)
	}
	if descriptor.Digest.IsZero() {
		return "", failure.Validation("artifact %s has no expected digest", descriptor.Name)
	}
	destination := filepath.Join(destinationDir, descriptor.Name)

	cached, err := v.verifyExisting(destination, descriptor)
	if err != nil {
		return "", err
	}
	if cached {
		v.logger.Info("using cached archive", "artifact", descriptor.Name, "path", destination)
		return destination, nil
	}

	location, source, err := v.resolve(descriptor)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(destinationDir, 0755); err != nil {
		return "", fmt.Errorf("creating download directory %s: %w", destinationDir, err)
	}

	v.logger.Info("downloading archive", "artifact", descriptor.Name, "source", location.Redacted())
	actual, written, err := v.download(ctx, source, location, descriptor.Name, destination, descriptor.Digest.Algorithm)
	if err != nil {
		return "", err
	}
	if !actual.Equal(descriptor.Digest) {
		if removeErr := os.Remove(destination); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
			v.logger.Warn("removing archive with bad digest failed", "artifact", descriptor.Name, "error", removeErr)
		}
		return "", failure.ChecksumMismatch(descriptor.Name, descriptor.Digest.String(), actual.String()).
			With("bytes", written)
	}
	v.logger.Info("archive verified", "artifact", descriptor.Name, "bytes", written, "digest", actual.String())
	return destination, nil
}

// verifyExisting reports whether destination already holds the expected
// bytes. A mismatched leftover is not an error: it gets replaced.
func (v *Verifier) verifyExisting(destination string, descriptor catalog.Descriptor) (bool, error) {
	info, err := os.Stat(destination)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("checking cached archive %s: %w", destination, err)
	}
	if !info.Mode().IsRegular() {
		return false, failure.Validation("cached archive path %s is not a regular file", destination)
	}
	actual, err := digest.HashFile(descriptor.Digest.Algorithm, destination)
	if err != nil {
		return false, err
	}
	if actual.Equal(descriptor.Digest) {
		return true, nil
	}
	v.logger.Warn("cached archive digest mismatch, downloading again",
		"artifact", descriptor.Name, "expected", descriptor.Digest.String(), "actual", actual.String())
	return false, nil
}

func (v *Verifier) resolve(descriptor catalog.Descriptor) (*url.URL, Source, error) {
	location, err := url.Parse(descriptor.URL)
	if err != nil {
		return nil, nil, failure.Validation("artifact %s has an invalid URL: %v", descriptor.Name, err)
	}
	source, ok := v.sources[location.Scheme]
	if !ok {
		if location.Scheme == "s3" {
			return nil, nil, failure.Validation("artifact %s is served from an object store but none is configured", descriptor.Name)
		}
		return nil, nil, failure.Validation("artifact %s has unsupported URL scheme %q", descriptor.Name, location.Scheme)
	}
	return location, source, nil
}

// download streams the source into a temporary file beside destination,
// hashing as it goes, and renames it into place. The caller compares
// the returned digest; the file is at destination either way.
func (v *Verifier) download(ctx context.Context, source Source, location *url.URL, name, destination string, algorithm digest.Algorithm) (digest.Digest, int64, error) {
	body, total, err := source.Open(ctx, location)
	if err != nil {
		return digest.Digest{}, 0, err
	}
	defer body.Close()

	hasher, err := algorithm.New()
	if err != nil {
		return digest.Digest{}, 0, failure.Validation("artifact %s: %v", name, err)
	}

	temporary, err := os.CreateTemp(filepath.Dir(destination), "."+filepath.Base(destination)+".part-*")
	if err != nil {
		return digest.Digest{}, 0, fmt.Errorf("creating download file for %s: %w", name, err)
	}
	temporaryPath := temporary.Name()
	success := false
	defer func() {
		if !success {
			temporary.Close()
			os.Remove(temporaryPath)
		}
	}()

	var reader io.Reader = &contextReader{ctx: ctx, reader: body}
	if v.progress != nil {
		reader = &progressReader{reader: reader, artifact: name, total: total, report: v.progress}
	}
	written, err := io.Copy(io.MultiWriter(temporary, hasher), reader)
	if err != nil {
		return digest.Digest{}, written, fmt.Errorf("downloading %s: %w", name, err)
	}
	if total >= 0 && written != total {
		return digest.Digest{}, written, fmt.Errorf("downloading %s: got %d bytes, expected %d", name, written, total)
	}
	if err := temporary.Sync(); err != nil {
		return digest.Digest{}, written, fmt.Errorf("syncing download of %s: %w", name, err)
	}
	if err := temporary.Close(); err != nil {
		return digest.Digest{}, written, fmt.Errorf("closing download of %s: %w", name, err)
	}
	if err := os.Rename(temporaryPath, destination); err != nil {
		return digest.Digest{}, written, fmt.Errorf("moving download of %s into place: %w", name, err)
	}
	success = true
	return digest.FromSum(algorithm, hasher.Sum(nil)), written, nil
}

// contextReader stops a copy promptly when ctx is cancelled, even if
// the underlying body does not watch the context.
type contextReader struct {
	ctx    context.Context
	reader io.Reader
}

func (r *contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.reader.Read(p)
}

type progressReader struct {
	reader   io.Reader
	artifact string
	written  int64
	total    int64
	report   ProgressFunc
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.written += int64(n)
		r.report(r.artifact, r.written, r.total)
	}
	return n, err
}
