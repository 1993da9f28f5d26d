// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStoreConfig locates an S3-compatible endpoint.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// Validate reports missing required settings.
func (c ObjectStoreConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Endpoint) == "" {
		errs = append(errs, errors.New("object store endpoint is required"))
	}
	if strings.Contains(c.Endpoint, "://") {
		errs = append(errs, fmt.Errorf("object store endpoint %q must be host[:port] without a scheme", c.Endpoint))
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		errs = append(errs, errors.New("object store access key and secret key must be set together"))
	}
	return errors.Join(errs...)
}

// ObjectStoreSource reads s3://bucket/key URLs through a MinIO client.
type ObjectStoreSource struct {
	client *minio.Client
}

// NewObjectStoreSource builds a MinIO client for config. Empty
// credentials mean anonymous access.
func NewObjectStoreSource(config ObjectStoreConfig) (*ObjectStoreSource, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure:    config.UseSSL,
		Region:    config.Region,
		Transport: newObjectStoreTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating object store client for %s: %w", config.Endpoint, err)
	}
	return &ObjectStoreSource{client: client}, nil
}

// Open stats the object for its size and returns a reader over it.
func (s *ObjectStoreSource) Open(ctx context.Context, location *url.URL) (io.ReadCloser, int64, error) {
	bucket, key, err := splitObjectURL(location)
	if err != nil {
		return nil, 0, err
	}
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, 0, fmt.Errorf("stat s3://%s/%s: %w", bucket, key, ErrNotFound)
		}
		return nil, 0, fmt.Errorf("stat s3://%s/%s: %w", bucket, key, err)
	}
	object, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	return object, info.Size, nil
}

func splitObjectURL(location *url.URL) (bucket, key string, err error) {
	bucket = location.Host
	key = strings.TrimPrefix(location.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("object URL %q must have the form s3://bucket/key", location.String())
	}
	return bucket, key, nil
}

func newObjectStoreTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
