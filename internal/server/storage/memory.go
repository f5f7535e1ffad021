package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrWrongKey       = errors.New("decryption failed")
)

// MemoryStore is an in-memory BlobStore for tests. It records the passphrase
// each object was written with and refuses reads with a different one,
// mimicking the at-rest encryption of the real store.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data       []byte
	passphrase string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (s *MemoryStore) Write(ctx context.Context, name string, data io.Reader, secret SecretProvider) (*Stats, error) {
	passphrase, err := secret.ProvideSecret()
	if err != nil {
		return nil, err
	}

	b, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = memoryObject{data: b, passphrase: passphrase}

	return &Stats{Size: int64(len(b))}, nil
}

func (s *MemoryStore) Read(ctx context.Context, name string, sink io.Writer, secret SecretProvider) error {
	passphrase, err := secret.ProvideSecret()
	if err != nil {
		return err
	}

	s.mu.Lock()
	obj, ok := s.objects[name]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, name)
	}
	if obj.passphrase != passphrase {
		return ErrWrongKey
	}

	_, err = sink.Write(obj.data)
	return err
}

func (s *MemoryStore) Remove(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[name]; !ok {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, name)
	}
	delete(s.objects, name)

	return nil
}

// Len reports the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
