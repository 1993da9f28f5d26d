// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/periogt/periogt/lib/netutil"
	"github.com/periogt/periogt/lib/version"
)

// Source opens a remote object for reading. Size is -1 when unknown.
type Source interface {
	Open(ctx context.Context, location *url.URL) (body io.ReadCloser, size int64, err error)
}

// ErrNotFound is wrapped by sources when the object does not exist.
var ErrNotFound = errors.New("object not found")

// HTTPSource downloads over HTTP(S).
type HTTPSource struct {
	// Client defaults to a client with no overall timeout; archives
	// are large and cancellation comes from the context.
	Client *http.Client
}

// Open issues a GET and returns the response body.
func (s *HTTPSource) Open(ctx context.Context, location *url.URL) (io.ReadCloser, int64, error) {
	client := s.Client
	if client == nil {
		client = defaultHTTPClient
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, location.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("building request for %s: %w", location.Redacted(), err)
	}
	request.Header.Set("User-Agent", "periogt/"+version.Short())

	response, err := client.Do(request)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching %s: %w", location.Redacted(), err)
	}
	if response.StatusCode == http.StatusNotFound {
		response.Body.Close()
		return nil, 0, fmt.Errorf("fetching %s: status %d: %w", location.Redacted(), response.StatusCode, ErrNotFound)
	}
	if response.StatusCode != http.StatusOK {
		defer response.Body.Close()
		if excerpt := netutil.ErrorBody(response.Body); excerpt != "" {
			return nil, 0, fmt.Errorf("fetching %s: status %d: %s", location.Redacted(), response.StatusCode, excerpt)
		}
		return nil, 0, fmt.Errorf("fetching %s: status %d", location.Redacted(), response.StatusCode)
	}
	return response.Body, response.ContentLength, nil
}

var defaultHTTPClient = &http.Client{
	Transport: &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	},
}

// FileSource reads file:// URLs from the local filesystem.
type FileSource struct{}

// Open opens the file named by the URL path.
func (FileSource) Open(ctx context.Context, location *url.URL) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	file, err := os.Open(location.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("opening %s: %w", location.Path, ErrNotFound)
		}
		return nil, 0, fmt.Errorf("opening %s: %w", location.Path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("opening %s: %w", location.Path, err)
	}
	return file, info.Size(), nil
}
