// Package storage defines the keyed blob store the backup server writes
// file-version bytes into, plus the S3-backed production implementation and
// an in-memory one for tests. The store encrypts at rest: every operation
// that moves bytes takes a provider of the account's storage passphrase.
package storage

import (
	"context"
	"io"
)

// Stats describes a completed write.
type Stats struct {
	// Size is the number of plaintext bytes consumed from the stream.
	Size int64
}

// SecretProvider supplies the storage passphrase at the moment the store
// needs it.
type SecretProvider interface {
	ProvideSecret() (string, error)
}

// StaticSecret is a SecretProvider holding an already-known passphrase.
type StaticSecret string

func (s StaticSecret) ProvideSecret() (string, error) {
	return string(s), nil
}

// BlobStore is an opaque keyed object store with encryption at rest.
// Names are globally unique storage keys produced by the ingest pipeline.
type BlobStore interface {
	// Write streams data into the store under name, encrypted with a key
	// derived from the provided secret.
	Write(ctx context.Context, name string, data io.Reader, secret SecretProvider) (*Stats, error)

	// Read streams the decrypted object into sink.
	Read(ctx context.Context, name string, sink io.Writer, secret SecretProvider) error

	// Remove deletes the object.
	Remove(ctx context.Context, name string) error
}
