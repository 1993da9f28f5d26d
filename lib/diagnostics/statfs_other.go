// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package diagnostics

import "errors"

func freeBytes(string) (uint64, error) {
	return 0, errors.New("free space reporting is only implemented on Linux")
}
