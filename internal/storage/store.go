// Package storage persists named collections, each one a JSON array document.
//
// A Store only moves whole documents. Collection layers typed decoding, the
// missing/corrupt document policy and per-collection write serialization on
// top of any Store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotExist is returned by Store.Load when the named document has never
	// been saved.
	ErrNotExist = errors.New("document does not exist")

	// ErrCorrupt is returned when a stored document cannot be parsed. Writes
	// to a corrupt collection are refused so the bad document stays on disk
	// for inspection.
	ErrCorrupt = errors.New("document is corrupt")
)

const (
	BackendFile     = "file"
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Store interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, doc []byte) error
	Names(ctx context.Context) ([]string, error)
	Close() error
}

type Options struct {
	Backend     string
	DataDir     string
	BoltPath    string
	DatabaseURL string
}

// Open builds the Store selected by opts.Backend.
func Open(opts Options) (Store, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendFile:
		return NewFileStore(opts.DataDir)
	case BackendBolt:
		return NewBoltStore(opts.BoltPath)
	case BackendPostgres:
		if opts.DatabaseURL == "" {
			return nil, errors.New("postgres backend requires DATABASE_URL")
		}
		return NewPostgresStore(opts.DatabaseURL)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\.`) {
		return fmt.Errorf("invalid document name %q", name)
	}
	return nil
}
