// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package stagefs

import "os"

// syncFilesystem fsyncs the directory at path. Platforms without
// syncfs(2) only get directory-entry durability here; file contents
// were already fsynced by WriteFileAtomic.
func syncFilesystem(path string) error {
	directory, err := os.Open(path)
	if err != nil {
		return err
	}
	defer directory.Close()
	return directory.Sync()
}
