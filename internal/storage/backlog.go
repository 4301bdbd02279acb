// Package storage implements the durable local fallback for delivery
// records: a single flat directory of pending blob files, written when
// upload fails and deleted by the drainer after a successful retry.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Backlog is a flat directory of pending blobs. Writers (the delivery
// pipeline) and the reader/deleter (the drainer) may run concurrently;
// a file disappearing between List and Read is a benign outcome.
type Backlog struct {
	dir string
}

// NewBacklog opens (creating if needed) the backlog directory
func NewBacklog(dir string) (*Backlog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backlog dir: %w", err)
	}
	return &Backlog{dir: dir}, nil
}

// Dir returns the backlog directory path
func (b *Backlog) Dir() string {
	return b.dir
}

// Put persists a blob under its delivery name. A concurrent MkdirAll
// race (directory removed and recreated out of band) is retried once.
func (b *Backlog) Put(name string, data []byte) error {
	path := filepath.Join(b.dir, name)
	err := os.WriteFile(path, data, 0o644)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(b.dir, 0o755); mkErr != nil {
			return fmt.Errorf("recreate backlog dir: %w", mkErr)
		}
		err = os.WriteFile(path, data, 0o644)
	}
	if err != nil {
		return fmt.Errorf("persist blob %s: %w", name, err)
	}
	return nil
}

// List returns the names of all pending blobs in stable order
func (b *Backlog) List() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("scan backlog dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Read returns a pending blob's bytes. os.IsNotExist errors indicate the
// blob was drained or removed concurrently.
func (b *Backlog) Read(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(b.dir, name))
}

// Remove deletes a drained blob. Removing an already-missing blob is
// not an error.
func (b *Backlog) Remove(name string) error {
	err := os.Remove(filepath.Join(b.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob %s: %w", name, err)
	}
	return nil
}

// Count returns the number of pending blobs
func (b *Backlog) Count() (int, error) {
	names, err := b.List()
	if err != nil {
		return 0, err
	}
	return len(names), nil
}
