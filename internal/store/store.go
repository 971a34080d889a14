// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sort"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/claudemem/claudemem/internal/apperr"
	"github.com/claudemem/claudemem/internal/unit"
)

// SchemaVersion is bumped whenever the on-disk key layout or encoding
// changes incompatibly. A mismatch on open triggers a project rebuild
// (spec.md §4.8, "A persisted schema version is checked on open;
// mismatches trigger a rebuild").
const SchemaVersion = 1

// Filters narrow a KNN or lexical query. A zero value means "no filter" for
// that field.
type Filters struct {
	Language unit.Language
	UnitType unit.UnitType
	PathGlob string
}

func (f Filters) matches(u unit.Unit) bool {
	if f.Language != "" && u.Language != f.Language {
		return false
	}
	if f.UnitType != "" && u.UnitType != f.UnitType {
		return false
	}
	if f.PathGlob != "" {
		ok, err := filepath.Match(f.PathGlob, u.FilePath)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// ScoredUnit pairs a unit with its score from a KNN or lexical query.
type ScoredUnit struct {
	Unit  unit.Unit
	Score float64
}

// Store implements the Index Store of spec.md §4.8 over a BadgerDB handle,
// scoped per project. Badger always holds the authoritative unit/edge
// metadata; when vectorIndex is non-nil, dense-vector operations proxy to
// it instead of the brute-force Badger scan (SPEC_FULL.md §4.8's optional
// scale-out backend).
type Store struct {
	db          *DB
	logger      *slog.Logger
	vectorIndex VectorIndex
}

// New builds a Store over an opened DB, using the default brute-force
// Badger-backed KNN scan.
func New(db *DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// NewWithVectorIndex builds a Store that proxies KNN/upsert/delete of
// dense vectors to vi, per a project's `vector_backend: weaviate` config.
func NewWithVectorIndex(db *DB, logger *slog.Logger, vi VectorIndex) *Store {
	s := New(db, logger)
	s.vectorIndex = vi
	return s
}

// DB returns the underlying BadgerDB wrapper, for packages that need to
// persist auxiliary state (e.g. the retriever's adaptive weights) alongside
// the unit store without duplicating the BadgerDB lifecycle.
func (s *Store) DB() *DB { return s.db }

func projectPrefix(projectID string) string { return "p/" + projectID + "/" }
func unitKey(projectID, unitID string) []byte {
	return []byte(projectPrefix(projectID) + "u/" + unitID)
}
func fileIndexKey(projectID, filePath, unitID string) []byte {
	return []byte(projectPrefix(projectID) + "f/" + filePath + "\x00" + unitID)
}
func edgeKey(projectID string, e unit.Edge) []byte {
	return []byte(projectPrefix(projectID) + "e/" + e.Source + "\x00" + string(e.Type) + "\x00" + e.Target)
}
func edgePrefix(projectID string) []byte { return []byte(projectPrefix(projectID) + "e/") }
func unitPrefix(projectID string) []byte { return []byte(projectPrefix(projectID) + "u/") }
func metaKey(projectID, name string) []byte {
	return []byte(projectPrefix(projectID) + "meta/" + name)
}

// EnsureSchema checks the persisted schema version for projectID, wiping
// and reinitializing the project's keyspace on mismatch.
func (s *Store) EnsureSchema(ctx context.Context, projectID string) error {
	var stored uint32
	found := false
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(projectID, "schema_version"))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			stored = binary.BigEndian.Uint32(val)
			return nil
		})
	})
	if err != nil {
		return apperr.Storage("read schema version", err)
	}

	if found && stored == SchemaVersion {
		return nil
	}
	if found {
		s.logger.Warn("index schema version changed, rebuilding project", "project", projectID, "old", stored, "new", SchemaVersion)
		if err := s.Clear(ctx, projectID); err != nil {
			return err
		}
	}
	return s.writeSchemaVersion(ctx, projectID)
}

func (s *Store) writeSchemaVersion(ctx context.Context, projectID string) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, SchemaVersion)
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(metaKey(projectID, "schema_version"), buf)
	})
	if err != nil {
		return apperr.Storage("write schema version", err)
	}
	return nil
}

// CheckEmbeddingModel records the embedding model/dimension for projectID
// on first use and invalidates all stored embeddings if a later call names
// a different model (spec.md §4.8, "Changing the embedding model
// invalidates all embeddings"). Call once per indexing run before writing
// any embedded unit.
func (s *Store) CheckEmbeddingModel(ctx context.Context, projectID, model string, dimension int) (invalidated bool, err error) {
	var storedModel string
	var hasModel bool
	err = s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(projectID, "embedding_model"))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		hasModel = true
		return item.Value(func(val []byte) error {
			storedModel = string(val)
			return nil
		})
	})
	if err != nil {
		return false, apperr.Storage("read embedding model metadata", err)
	}

	if hasModel && storedModel != model {
		if err := s.invalidateEmbeddings(ctx, projectID); err != nil {
			return false, err
		}
		invalidated = true
	}

	dimBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(dimBuf, uint32(dimension))
	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set(metaKey(projectID, "embedding_model"), []byte(model)); err != nil {
			return err
		}
		return txn.Set(metaKey(projectID, "dimension"), dimBuf)
	})
	if err != nil {
		return invalidated, apperr.Storage("write embedding model metadata", err)
	}
	return invalidated, nil
}

func (s *Store) invalidateEmbeddings(ctx context.Context, projectID string) error {
	var toUpdate []unit.Unit
	err := s.IterAll(ctx, projectID, func(u unit.Unit) error {
		if u.Embedding != nil {
			u.Embedding = nil
			u.EmbeddingModel = ""
			toUpdate = append(toUpdate, u)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, u := range toUpdate {
		if err := s.Upsert(ctx, projectID, u); err != nil {
			return err
		}
	}
	return nil
}

// Upsert writes u, replacing any prior record with the same id, and
// maintains the file-path secondary index used by IterByFile.
func (s *Store) Upsert(ctx context.Context, projectID string, u unit.Unit) error {
	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(u); err != nil {
		return fmt.Errorf("encode unit %s: %w", u.ID, err)
	}

	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if existing, getErr := txn.Get(unitKey(projectID, u.ID)); getErr == nil {
			var prev unit.Unit
			if decodeErr := existing.Value(func(val []byte) error {
				return gob.NewDecoder(bytes.NewReader(val)).Decode(&prev)
			}); decodeErr == nil && prev.FilePath != u.FilePath {
				_ = txn.Delete(fileIndexKey(projectID, prev.FilePath, prev.ID))
			}
		}
		if err := txn.Set(unitKey(projectID, u.ID), raw.Bytes()); err != nil {
			return err
		}
		return txn.Set(fileIndexKey(projectID, u.FilePath, u.ID), []byte{})
	})
	if err != nil {
		return apperr.Storage(fmt.Sprintf("upsert unit %s", u.ID), err)
	}
	if s.vectorIndex != nil {
		if err := s.vectorIndex.Upsert(ctx, projectID, u); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes u and every edge incident to it (spec.md §4.8).
func (s *Store) Delete(ctx context.Context, projectID, unitID string) error {
	existing, err := s.FindByID(ctx, projectID, unitID)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}

	var incidentKeys [][]byte
	err = s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := edgePrefix(projectID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var e unit.Edge
			decodeErr := item.Value(func(val []byte) error {
				return gob.NewDecoder(bytes.NewReader(val)).Decode(&e)
			})
			if decodeErr != nil {
				continue
			}
			if e.Source == unitID || e.Target == unitID {
				key := append([]byte(nil), item.Key()...)
				incidentKeys = append(incidentKeys, key)
			}
		}
		return nil
	})
	if err != nil {
		return apperr.Storage("scan incident edges", err)
	}

	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if delErr := txn.Delete(unitKey(projectID, unitID)); delErr != nil {
			return delErr
		}
		if delErr := txn.Delete(fileIndexKey(projectID, existing.FilePath, unitID)); delErr != nil {
			return delErr
		}
		for _, k := range incidentKeys {
			if delErr := txn.Delete(k); delErr != nil {
				return delErr
			}
		}
		return nil
	})
	if err != nil {
		return apperr.Storage(fmt.Sprintf("delete unit %s", unitID), err)
	}
	if s.vectorIndex != nil {
		if err := s.vectorIndex.Delete(ctx, projectID, unitID); err != nil {
			return err
		}
	}
	return nil
}

// UpsertEdges writes e, merging into any existing (source, target, type)
// entry by summing occurrence counts.
func (s *Store) UpsertEdges(ctx context.Context, projectID string, edges []unit.Edge) error {
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		for _, e := range edges {
			key := edgeKey(projectID, e)
			if item, getErr := txn.Get(key); getErr == nil {
				var prev unit.Edge
				if decodeErr := item.Value(func(val []byte) error {
					return gob.NewDecoder(bytes.NewReader(val)).Decode(&prev)
				}); decodeErr == nil {
					e.Occurrence += prev.Occurrence
				}
			}
			var raw bytes.Buffer
			if err := gob.NewEncoder(&raw).Encode(e); err != nil {
				return err
			}
			if err := txn.Set(key, raw.Bytes()); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindByID returns the unit with id, or nil if absent.
func (s *Store) FindByID(ctx context.Context, projectID, unitID string) (*unit.Unit, error) {
	var u unit.Unit
	found := false
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(unitKey(projectID, unitID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&u)
		})
	})
	if err != nil {
		return nil, apperr.Storage(fmt.Sprintf("find unit %s", unitID), err)
	}
	if !found {
		return nil, nil
	}
	return &u, nil
}

// IterAll calls fn once per unit in projectID's collection. Iteration stops
// at the first error returned by fn.
func (s *Store) IterAll(ctx context.Context, projectID string, fn func(unit.Unit) error) error {
	return s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := unitPrefix(projectID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var u unit.Unit
			err := it.Item().Value(func(val []byte) error {
				return gob.NewDecoder(bytes.NewReader(val)).Decode(&u)
			})
			if err != nil {
				return err
			}
			if err := fn(u); err != nil {
				return err
			}
		}
		return nil
	})
}

// IterByFile calls fn once per unit belonging to filePath.
func (s *Store) IterByFile(ctx context.Context, projectID, filePath string, fn func(unit.Unit) error) error {
	prefix := []byte(projectPrefix(projectID) + "f/" + filePath + "\x00")
	var ids []string
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			idx := bytes.LastIndexByte([]byte(key), 0)
			if idx < 0 || idx+1 >= len(key) {
				continue
			}
			ids = append(ids, key[idx+1:])
		}
		return nil
	})
	if err != nil {
		return apperr.Storage("iterate by file", err)
	}
	for _, id := range ids {
		u, err := s.FindByID(ctx, projectID, id)
		if err != nil {
			return err
		}
		if u == nil {
			continue
		}
		if err := fn(*u); err != nil {
			return err
		}
	}
	return nil
}

// KNN returns the k units whose embeddings are closest to queryVector by
// cosine similarity, in descending order (spec.md §4.8).
func (s *Store) KNN(ctx context.Context, projectID string, queryVector []float32, k int, filters Filters) ([]ScoredUnit, error) {
	if s.vectorIndex != nil {
		return s.remoteKNN(ctx, projectID, queryVector, k, filters)
	}

	var scored []ScoredUnit
	err := s.IterAll(ctx, projectID, func(u unit.Unit) error {
		if u.IsFile() || len(u.Embedding) == 0 || !filters.matches(u) {
			return nil
		}
		scored = append(scored, ScoredUnit{Unit: u, Score: cosineSimilarity(queryVector, u.Embedding)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Unit.ID < scored[j].Unit.ID
	})
	if k > 0 && k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

// remoteKNN delegates the dense search to the configured VectorIndex, then
// re-hydrates the returned unit IDs from Badger; distance/rank ordering is
// preserved, and units that fail a filter are dropped after the fact since
// the remote index only ever stores the project/unit identifying pair.
func (s *Store) remoteKNN(ctx context.Context, projectID string, queryVector []float32, k int, filters Filters) ([]ScoredUnit, error) {
	ids, err := s.vectorIndex.KNN(ctx, projectID, queryVector, k)
	if err != nil {
		return nil, err
	}
	scored := make([]ScoredUnit, 0, len(ids))
	for _, id := range ids {
		u, err := s.FindByID(ctx, projectID, id)
		if err != nil || u == nil || !filters.matches(*u) {
			continue
		}
		scored = append(scored, ScoredUnit{Unit: *u, Score: cosineSimilarity(queryVector, u.Embedding)})
	}
	return scored, nil
}

// Lexical returns the k units whose code+summary text best matches
// queryText by a BM25-family score (spec.md §4.8).
func (s *Store) Lexical(ctx context.Context, projectID, queryText string, k int, filters Filters) ([]ScoredUnit, error) {
	docs := make(map[string]string)
	units := make(map[string]unit.Unit)
	err := s.IterAll(ctx, projectID, func(u unit.Unit) error {
		if u.IsFile() || !filters.matches(u) {
			return nil
		}
		text := u.Content
		if u.Summary != "" {
			text += " " + u.Summary
		}
		docs[u.ID] = text
		units[u.ID] = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	idx := buildBM25Index(docs)
	rawScores := idx.score(tokenize(queryText))

	scored := make([]ScoredUnit, 0, len(rawScores))
	for id, score := range rawScores {
		scored = append(scored, ScoredUnit{Unit: units[id], Score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Unit.ID < scored[j].Unit.ID
	})
	if k > 0 && k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

// EdgesForUnit returns the edges with unitID as source (outgoing) and as
// target (incoming), for context expansion and one-hop analysis queries.
func (s *Store) EdgesForUnit(ctx context.Context, projectID, unitID string) (outgoing, incoming []unit.Edge, err error) {
	err = s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := edgePrefix(projectID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e unit.Edge
			decodeErr := it.Item().Value(func(val []byte) error {
				return gob.NewDecoder(bytes.NewReader(val)).Decode(&e)
			})
			if decodeErr != nil {
				continue
			}
			switch unitID {
			case e.Source:
				outgoing = append(outgoing, e)
			case e.Target:
				incoming = append(incoming, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, apperr.Storage(fmt.Sprintf("scan edges for unit %s", unitID), err)
	}
	return outgoing, incoming, nil
}

// Clear removes every key belonging to projectID.
func (s *Store) Clear(ctx context.Context, projectID string) error {
	if err := s.db.DropPrefix([]byte(projectPrefix(projectID))); err != nil {
		return apperr.Storage(fmt.Sprintf("clear project %s", projectID), err)
	}
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
