// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store implements the Index Store of spec.md §4.8 over an embedded
// BadgerDB instance: code-unit records, dense embeddings, symbol-graph
// edges, and project metadata, single-writer with concurrent readers.
package store

import (
	"context"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
)

// DB wraps a BadgerDB handle with context-aware transaction helpers. The
// caller owns the DB's lifecycle (open at startup, Close on shutdown).
type DB struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenDB opens (creating if absent) a BadgerDB instance at path.
func OpenDB(path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db at %s: %w", path, err)
	}
	return &DB{db: db, logger: logger}, nil
}

// Close releases the underlying BadgerDB handle.
func (d *DB) Close() error {
	return d.db.Close()
}

// WithTxn runs fn in a read-write transaction, honoring ctx cancellation
// before the transaction begins.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.Update(fn)
}

// WithReadTxn runs fn in a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.View(fn)
}

// DropPrefix deletes every key under prefix in a single operation.
func (d *DB) DropPrefix(prefix []byte) error {
	return d.db.DropPrefix(prefix)
}
