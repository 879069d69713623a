package weaviate

import (
	"context"
	"fmt"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"docquery/internal/chunkstore"
	"docquery/internal/document"
	"docquery/internal/vector"
)

// metadataPageSize bounds each page of the full metadata scan.
const metadataPageSize = 500

// Index adapts the Weaviate client to the chunk store's vector index
// capability. Weaviate object ids must be UUIDs, so the derived chunk id
// is kept as a property and the object id is a deterministic UUID over
// it, which makes re-writes of the same chunk idempotent.
type Index struct {
	client *weaviate.Client
}

func NewIndex(client *weaviate.Client) *Index {
	return &Index{client: client}
}

// EnsureSchema creates the chunk class if it does not exist yet.
func (x *Index) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, vector.NewWeaviateClientAdapter(x.client))
}

func objectID(chunkID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String())
}

// Upsert writes all entries in a single batch call.
func (x *Index) Upsert(ctx context.Context, entries []chunkstore.Entry) error {
	objects := make([]*models.Object, len(entries))
	for i, e := range entries {
		objects[i] = &models.Object{
			Class: vector.ClassName,
			ID:    objectID(e.ID),
			Properties: map[string]interface{}{
				"content":     e.Content,
				"chunkId":     e.ID,
				"source":      e.Metadata.Source,
				"chunkIndex":  e.Metadata.ChunkIndex,
				"totalChunks": e.Metadata.TotalChunks,
				"chunkSize":   e.Metadata.ChunkSize,
				"fileHash":    e.Metadata.FileHash,
			},
			Vector: e.Vector,
		}
	}

	resp, err := x.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return err
	}
	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("batch insert error: %s", r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

// Nearest returns the k stored chunks closest to the vector.
func (x *Index) Nearest(ctx context.Context, vec []float32, k int) ([]chunkstore.Result, error) {
	if k <= 0 {
		return nil, nil
	}

	nearVector := x.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	res, err := x.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithNearVector(nearVector).
		WithLimit(k).
		WithFields(metadataFields()...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	return parseResults(res.Data), nil
}

// ExistsByFileHash reports whether any entry carries the fingerprint.
func (x *Index) ExistsByFileHash(ctx context.Context, hash string) (bool, error) {
	where := filters.Where().
		WithPath([]string{"fileHash"}).
		WithOperator(filters.Equal).
		WithValueString(hash)

	res, err := x.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithWhere(where).
		WithLimit(1).
		WithFields(graphql.Field{Name: "chunkId"}).
		Do(ctx)
	if err != nil {
		return false, err
	}
	if len(res.Errors) > 0 {
		return false, fmt.Errorf("graphql error: %v", res.Errors)
	}

	return len(rawChunks(res.Data)) > 0, nil
}

// CountAll returns the total number of stored chunks.
func (x *Index) CountAll(ctx context.Context) (int, error) {
	res, err := x.client.GraphQL().Aggregate().
		WithClassName(vector.ClassName).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors)
	}

	if agg, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if classes, ok := agg[vector.ClassName].([]interface{}); ok && len(classes) > 0 {
			if first, ok := classes[0].(map[string]interface{}); ok {
				if meta, ok := first["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}

// AllMetadata pages through every stored entry's metadata. Pages are
// sorted by chunkId so limit/offset paging stays deterministic.
func (x *Index) AllMetadata(ctx context.Context) ([]document.Metadata, error) {
	byChunkID := graphql.Sort{Path: []string{"chunkId"}, Order: graphql.Asc}

	var metas []document.Metadata
	offset := 0
	for {
		res, err := x.client.GraphQL().Get().
			WithClassName(vector.ClassName).
			WithSort(byChunkID).
			WithLimit(metadataPageSize).
			WithOffset(offset).
			WithFields(metadataFields()...).
			Do(ctx)
		if err != nil {
			return nil, err
		}
		if len(res.Errors) > 0 {
			return nil, fmt.Errorf("graphql error: %v", res.Errors)
		}

		page := parseResults(res.Data)
		for _, r := range page {
			metas = append(metas, r.Metadata)
		}
		if len(page) < metadataPageSize {
			return metas, nil
		}
		offset += metadataPageSize
	}
}

// Drop deletes the chunk class and recreates it empty.
func (x *Index) Drop(ctx context.Context) error {
	return vector.RecreateSchema(ctx, vector.NewWeaviateClientAdapter(x.client))
}

func metadataFields() []graphql.Field {
	return []graphql.Field{
		{Name: "content"},
		{Name: "chunkId"},
		{Name: "source"},
		{Name: "chunkIndex"},
		{Name: "totalChunks"},
		{Name: "chunkSize"},
		{Name: "fileHash"},
	}
}

func rawChunks(data map[string]models.JSONObject) []interface{} {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	chunks, _ := get[vector.ClassName].([]interface{})
	return chunks
}

func parseResults(data map[string]models.JSONObject) []chunkstore.Result {
	var results []chunkstore.Result
	for _, c := range rawChunks(data) {
		props, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		var r chunkstore.Result
		if content, ok := props["content"].(string); ok {
			r.Content = content
		}
		if source, ok := props["source"].(string); ok {
			r.Metadata.Source = source
		}
		if idx, ok := props["chunkIndex"].(float64); ok {
			r.Metadata.ChunkIndex = int(idx)
		}
		if total, ok := props["totalChunks"].(float64); ok {
			r.Metadata.TotalChunks = int(total)
		}
		if size, ok := props["chunkSize"].(float64); ok {
			r.Metadata.ChunkSize = int(size)
		}
		if hash, ok := props["fileHash"].(string); ok {
			r.Metadata.FileHash = hash
		}
		results = append(results, r)
	}
	return results
}
