// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/periogt/periogt/lib/failure"
)

// Result summarises one extraction.
type Result struct {
	Files int
	Bytes int64
}

// Stager extracts archives.
type Stager struct {
	logger *slog.Logger
}

// NewStager returns a Stager. A nil logger discards output.
func NewStager(logger *slog.Logger) *Stager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Stager{logger: logger}
}

// ExtractAndDiscard extracts every entry of archivePath into
// destinationDir and then deletes the archive. Errors carry
// [failure.CodeModelLoadFailed] and leave the archive where it was.
func (s *Stager) ExtractAndDiscard(ctx context.Context, archivePath, destinationDir string) (Result, error) {
	name := filepath.Base(archivePath)
	format, err := DetectFormat(name)
	if err != nil {
		return Result{}, failure.ModelLoadFailed("extracting %s", name).Wrap(err).With("archive", archivePath)
	}
	if err := os.MkdirAll(destinationDir, 0755); err != nil {
		return Result{}, failure.ModelLoadFailed("extracting %s", name).Wrap(err).With("archive", archivePath)
	}

	var result Result
	if format == Zip {
		result, err = extractZip(ctx, archivePath, destinationDir)
	} else {
		result, err = extractTar(ctx, format, archivePath, destinationDir)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return result, err
		}
		return result, failure.ModelLoadFailed("extracting %s", name).Wrap(err).
			With("archive", archivePath).
			With("files_written", result.Files)
	}

	// The archive only exists to be unpacked; a leftover costs disk
	// but does not affect correctness, so removal problems are logged.
	if err := os.Remove(archivePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("removing extracted archive failed", "archive", archivePath, "error", err)
	}
	s.logger.Info("archive extracted",
		"archive", name, "destination", destinationDir, "files", result.Files, "bytes", result.Bytes)
	return result, nil
}

func extractZip(ctx context.Context, archivePath, destinationDir string) (Result, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return Result{}, err
	}
	defer reader.Close()

	var result Result
	for _, entry := range reader.File {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		target, err := entryPath(destinationDir, entry.Name)
		if err != nil {
			return result, err
		}
		if err := noSymlinkOnPath(destinationDir, target); err != nil {
			return result, err
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return result, err
			}
			continue
		}
		if entry.Mode()&fs.ModeSymlink != 0 {
			linkTarget, err := readZipLink(entry)
			if err != nil {
				return result, fmt.Errorf("entry %s: %w", entry.Name, err)
			}
			if err := writeSymlink(destinationDir, target, linkTarget); err != nil {
				return result, fmt.Errorf("entry %s: %w", entry.Name, err)
			}
			result.Files++
			continue
		}
		if !entry.Mode().IsRegular() {
			return result, fmt.Errorf("entry %s: unsupported file type %s", entry.Name, entry.Mode().Type())
		}
		body, err := entry.Open()
		if err != nil {
			return result, fmt.Errorf("entry %s: %w", entry.Name, err)
		}
		written, err := writeFile(target, body)
		body.Close()
		if err != nil {
			return result, fmt.Errorf("entry %s: %w", entry.Name, err)
		}
		result.Files++
		result.Bytes += written
	}
	return result, nil
}

func extractTar(ctx context.Context, format Format, archivePath, destinationDir string) (Result, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return Result{}, err
	}
	defer file.Close()

	stream, release, err := decompressor(format, file)
	if err != nil {
		return Result{}, err
	}
	defer release()

	var result Result
	reader := tar.NewReader(stream)
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		header, err := reader.Next()
		if err == io.EOF {
			return result, nil
		}
		if err != nil {
			return result, err
		}
		target, err := entryPath(destinationDir, header.Name)
		if err != nil {
			return result, err
		}
		if err := noSymlinkOnPath(destinationDir, target); err != nil {
			return result, err
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return result, err
			}
		case tar.TypeReg:
			written, err := writeFile(target, reader)
			if err != nil {
				return result, fmt.Errorf("entry %s: %w", header.Name, err)
			}
			result.Files++
			result.Bytes += written
		case tar.TypeSymlink:
			if err := writeSymlink(destinationDir, target, header.Linkname); err != nil {
				return result, fmt.Errorf("entry %s: %w", header.Name, err)
			}
			result.Files++
		case tar.TypeLink:
			source, err := entryPath(destinationDir, header.Linkname)
			if err != nil {
				return result, fmt.Errorf("entry %s: link %w", header.Name, err)
			}
			if err := noSymlinkOnPath(destinationDir, source); err != nil {
				return result, fmt.Errorf("entry %s: link %w", header.Name, err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return result, err
			}
			if err := removeLeftover(target); err != nil {
				return result, fmt.Errorf("entry %s: %w", header.Name, err)
			}
			if err := os.Link(source, target); err != nil {
				return result, fmt.Errorf("entry %s: %w", header.Name, err)
			}
			result.Files++
		case tar.TypeXGlobalHeader:
		default:
			return result, fmt.Errorf("entry %s: unsupported tar entry type %q", header.Name, header.Typeflag)
		}
	}
}

// entryPath joins name under root, refusing names that would land
// outside it.
func entryPath(root, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("entry %q escapes the destination directory", name)
	}
	return filepath.Join(root, cleaned), nil
}

// noSymlinkOnPath refuses target when any directory between root and
// it is a symlink already on disk. Writing through an extracted link
// could otherwise land outside root.
func noSymlinkOnPath(root, target string) error {
	relative, err := filepath.Rel(root, target)
	if err != nil {
		return err
	}
	parts := strings.Split(relative, string(filepath.Separator))
	current := root
	for _, part := range parts[:len(parts)-1] {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("entry %q passes through symlink %s", relative, current)
		}
	}
	return nil
}

// writeSymlink creates link pointing at linkTarget, which must be
// relative and resolve inside root.
func writeSymlink(root, link, linkTarget string) error {
	if linkTarget == "" || filepath.IsAbs(linkTarget) {
		return fmt.Errorf("symlink target %q escapes the destination directory", linkTarget)
	}
	resolved := filepath.Join(filepath.Dir(link), filepath.FromSlash(linkTarget))
	relative, err := filepath.Rel(root, resolved)
	if err != nil || relative == ".." || strings.HasPrefix(relative, ".."+string(filepath.Separator)) {
		return fmt.Errorf("symlink target %q escapes the destination directory", linkTarget)
	}
	if err := os.MkdirAll(filepath.Dir(link), 0755); err != nil {
		return err
	}
	if err := removeLeftover(link); err != nil {
		return err
	}
	return os.Symlink(linkTarget, link)
}

// removeLeftover clears a non-directory left at path by an earlier
// partial extraction, so links can be recreated and files are never
// written through an old symlink.
func removeLeftover(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return os.Remove(path)
}

// maxLinkTarget bounds a zip symlink body, which holds the target path.
const maxLinkTarget = 4096

func readZipLink(entry *zip.File) (string, error) {
	body, err := entry.Open()
	if err != nil {
		return "", err
	}
	defer body.Close()
	data, err := io.ReadAll(io.LimitReader(body, maxLinkTarget+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxLinkTarget {
		return "", fmt.Errorf("symlink target longer than %d bytes", maxLinkTarget)
	}
	return string(data), nil
}

func writeFile(target string, content io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, err
	}
	if info, err := os.Lstat(target); err == nil && info.Mode()&fs.ModeSymlink != 0 {
		if err := os.Remove(target); err != nil {
			return 0, err
		}
	}
	file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(file, content)
	if err != nil {
		file.Close()
		return written, err
	}
	return written, file.Close()
}
