// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stagefs

import (
	"os"

	"golang.org/x/sys/unix"
)

// syncFilesystem flushes every dirty page of the filesystem containing
// path with syncfs(2). Extraction writes thousands of files; one
// syncfs is far cheaper than an fsync per file.
func syncFilesystem(path string) error {
	directory, err := os.Open(path)
	if err != nil {
		return err
	}
	defer directory.Close()
	return unix.Syncfs(int(directory.Fd()))
}
