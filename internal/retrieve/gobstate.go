// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieve

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/claudemem/claudemem/internal/store"
)

// loadGob reads and gob-decodes the value at key into dst, mirroring the
// teacher's router_cache.go persistence convention. Returns found=false on
// a missing key rather than an error.
func loadGob(ctx context.Context, db *store.DB, key string, dst interface{}) (found bool, err error) {
	err = db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, getErr := txn.Get([]byte(key))
		if errors.Is(getErr, badger.ErrKeyNotFound) {
			return nil
		}
		if getErr != nil {
			return getErr
		}
		found = true
		return item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(dst)
		})
	})
	return found, err
}

// saveGob gob-encodes src and writes it at key.
func saveGob(ctx context.Context, db *store.DB, key string, src interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(src); err != nil {
		return err
	}
	return db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(key), buf.Bytes())
	})
}
