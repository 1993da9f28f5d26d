// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"archive/tar"
	"bytes"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
)

var archiveTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// ZipArchive returns a zip archive holding files. Keys ending in "/"
// become directory entries. Entries are written in sorted order so the
// bytes (and therefore digests) are stable across runs.
func ZipArchive(t testing.TB, files map[string]string) []byte {
	t.Helper()
	var buffer bytes.Buffer
	writer := zip.NewWriter(&buffer)
	for _, name := range sortedKeys(files) {
		header := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: archiveTime}
		if strings.HasSuffix(name, "/") {
			header.Method = zip.Store
		}
		entry, err := writer.CreateHeader(header)
		if err != nil {
			t.Fatalf("adding %s to zip: %v", name, err)
		}
		if _, err := entry.Write([]byte(files[name])); err != nil {
			t.Fatalf("writing %s to zip: %v", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return buffer.Bytes()
}

// TarArchive returns an uncompressed tar stream holding files, in
// sorted order. Keys ending in "/" become directory entries.
func TarArchive(t testing.TB, files map[string]string) []byte {
	t.Helper()
	var buffer bytes.Buffer
	writer := tar.NewWriter(&buffer)
	for _, name := range sortedKeys(files) {
		header := &tar.Header{Name: name, Mode: 0644, Size: int64(len(files[name])), ModTime: archiveTime, Typeflag: tar.TypeReg}
		if strings.HasSuffix(name, "/") {
			header.Typeflag = tar.TypeDir
			header.Mode = 0755
			header.Size = 0
		}
		if err := writer.WriteHeader(header); err != nil {
			t.Fatalf("adding %s to tar: %v", name, err)
		}
		if _, err := writer.Write([]byte(files[name])); err != nil {
			t.Fatalf("writing %s to tar: %v", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing tar: %v", err)
	}
	return buffer.Bytes()
}

func sortedKeys(files map[string]string) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
