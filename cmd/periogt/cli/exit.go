// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/periogt/periogt/lib/failure"
)

// ExitError signals a non-zero exit code without printing an extra
// error message. The command is expected to have already written its
// own output, as doctor does when its verdict is WARN or FAIL.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// errorDocument is the envelope written to stderr for a failed command.
type errorDocument struct {
	Error failure.Payload `json:"error"`
}

// ReportError writes err to w and returns the process exit status. An
// [ExitError] is silent. Anything else is classified into the failure
// taxonomy and written as {"error": {"code", "message", "details"}}.
func ReportError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	var exitError *ExitError
	if errors.As(err, &exitError) {
		return exitError.Code
	}

	classified := failure.Classify(err)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if encodeErr := encoder.Encode(errorDocument{Error: classified.Payload()}); encodeErr != nil {
		// Details that do not marshal still leave the operator a message.
		fmt.Fprintf(w, "error: %s (%s)\n", classified.Error(), classified.Code)
	}
	return classified.ExitCode()
}
