// Package core defines the blob storage port used for off-host snapshot
// archives and participant backups.
package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Driver identifies a blob storage backend.
type Driver string

const (
	// DriverFilesystem stores blobs under a directory of an afero filesystem.
	DriverFilesystem Driver = "fs"
	// DriverS3 stores blobs in an S3 or MinIO bucket.
	DriverS3 Driver = "s3"
	// DriverMemory keeps blobs in process memory.
	DriverMemory Driver = "memory"
)

// PutOptions carries optional attributes of a new blob.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// SignedURLOptions configures PresignURL. Only GET is supported.
type SignedURLOptions struct {
	Method string
	Expiry time.Duration
}

// Info describes a stored blob.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is a create-only key/blob store with prefix listing.
type Store interface {
	// Put stores r under key and fails with ErrExists if key is taken.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	// Get returns ErrNotFound for unknown keys. The caller closes the reader.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	// Delete reports whether key existed.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns blobs under prefix sorted by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)
	Driver() Driver
}

var (
	// ErrUnsupported is returned for capabilities a driver lacks.
	ErrUnsupported = errors.New("blobstore: unsupported operation")
	// ErrNotFound is returned for unknown keys.
	ErrNotFound = errors.New("blobstore: not found")
	// ErrExists is returned when Put targets a taken key.
	ErrExists = errors.New("blobstore: key exists")
)

// NotFound wraps ErrNotFound with the key.
func NotFound(key string) error { return fmt.Errorf("blob %s: %w", key, ErrNotFound) }

// Exists wraps ErrExists with the key.
func Exists(key string) error { return fmt.Errorf("blob %s: %w", key, ErrExists) }

// PutBytes stores data under key.
func PutBytes(ctx context.Context, s Store, key string, data []byte, opts PutOptions) (Info, error) {
	return s.Put(ctx, key, bytes.NewReader(data), opts)
}

// ReadAll fetches the full content of key.
func ReadAll(ctx context.Context, s Store, key string) ([]byte, Info, error) {
	info, rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, Info{}, err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, Info{}, fmt.Errorf("read blob %s: %w", key, err)
	}
	return data, info, nil
}

// CloneMetadata copies a metadata map. Nil stays nil.
func CloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
