// Package storage is the write side of a run: the Repository a loader
// writes through, the registry of backends by storage kind, table
// bootstrap from the output shape and the batched row loader.
package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"scriptetl/internal/ddl"
)

// Repository is the write surface of one open backend.
type Repository interface {
	// CopyFrom writes rows aligned to columns as one batch and reports how
	// many were written. A failed batch writes nothing.
	CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error)
	// Exec runs one statement, typically the CREATE TABLE.
	Exec(ctx context.Context, sql string) error
	Close()
}

// Config describes the target of a run independently of the backend.
type Config struct {
	Kind       string
	DSN        string
	Table      string
	Columns    []string
	KeyColumns []string
}

// Backend is what a storage kind registers: how to open it and how to
// render its tables.
type Backend struct {
	Open    func(ctx context.Context, cfg Config) (Repository, error)
	DDL     ddl.Dialect
	MapType ddl.TypeMapper
}

var (
	regMu    sync.RWMutex
	backends = map[string]Backend{}
)

// Register installs b for kind, replacing any earlier registration.
// Backends call it from init.
func Register(kind string, b Backend) {
	regMu.Lock()
	defer regMu.Unlock()
	backends[kind] = b
}

func lookup(kind string) (Backend, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	b, ok := backends[kind]
	return b, ok
}

// New opens a Repository for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	b, ok := lookup(cfg.Kind)
	if !ok || b.Open == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return b.Open(ctx, cfg)
}

// Kinds lists the registered storage kinds in order.
func Kinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(backends))
	for k := range backends {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
