// Package storage provides the named-blob stores that back the action queue, the results
// directory and the status snapshot. Writers only ever publish complete blobs.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when no blob exists under the name.
	ErrNotFound = errors.New("storage: not found")
	// ErrExists is returned by PutIfAbsent when the name is already taken.
	ErrExists = errors.New("storage: already exists")
	// ErrInvalidName is returned for names that could escape the store (path separators, dot files).
	ErrInvalidName = errors.New("storage: invalid name")
)

// Store is a flat namespace of immutable-once-published blobs.
type Store interface {
	// Put atomically publishes data under name, replacing any previous blob.
	// Readers observe either the old blob or the complete new one, never a partial write.
	Put(ctx context.Context, name string, data []byte) error
	// PutIfAbsent publishes data under name unless it already exists (ErrExists).
	PutIfAbsent(ctx context.Context, name string, data []byte) error
	// Get returns the blob stored under name, or ErrNotFound.
	Get(ctx context.Context, name string) ([]byte, error)
	// Exists reports whether a blob is stored under name.
	Exists(ctx context.Context, name string) (bool, error)
	// List returns the names of all published blobs in lexical order.
	List(ctx context.Context) ([]string, error)
}

func validName(name string) bool {
	if name == "" || name[0] == '.' {
		return false
	}
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '/', '\\', 0:
			return false
		}
	}
	return true
}
