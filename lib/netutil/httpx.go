// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP I/O helpers for artifact downloads.
//
// Error responses from mirrors and object-store gateways often carry a
// short explanation (an S3 XML error, a proxy's HTML page). ErrorBody
// reads a bounded excerpt of it for the error message. Successful
// download bodies are never read through this package; they are
// streamed to disk.
package netutil

import (
	"io"
	"strings"
)

// MaxErrorBody is the most ErrorBody reads from a response.
const MaxErrorBody int64 = 4 << 10

// maxExcerpt is the longest excerpt ErrorBody returns.
const maxExcerpt = 200

// ErrorBody reads an HTTP error response body and returns a single-line
// excerpt for diagnostic error messages. Read errors are ignored: a
// partial or empty body is still useful in an error message.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxErrorBody))
	excerpt := strings.Join(strings.Fields(string(data)), " ")
	if len(excerpt) > maxExcerpt {
		excerpt = excerpt[:maxExcerpt] + "..."
	}
	return excerpt
}
