package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// scrollPageSize is the number of points fetched per page when reading the
// full collection contents for a sparse-index rebuild.
const scrollPageSize = 256

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use. Each tenant gets its
	// own collection so indices, caches, and deletes never cross tenants.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a single Qdrant collection.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a new QdrantStore, ensuring the target collection
// exists (creating it if necessary), and returns a ready-to-use VectorStore.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection name must not be empty")
	}

	clientCfg := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	}

	client, err := qdrant.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	return nil
}

// Upsert stores a batch of units with their pre-computed embeddings.
// vectors must be parallel to units.
func (s *QdrantStore) Upsert(ctx context.Context, units []Unit, vectors [][]float32) error {
	if len(units) != len(vectors) {
		return fmt.Errorf("qdrant: units/vectors length mismatch: %d vs %d", len(units), len(vectors))
	}

	points := make([]*qdrant.PointStruct, 0, len(units))
	for i, u := range units {
		payload := map[string]interface{}{
			"content":     u.Content,
			"source_id":   u.SourceID,
			"business_id": u.BusinessID,
			"chunk_index": int64(u.ChunkIndex),
		}
		if u.ParentID != "" {
			payload["parent_id"] = u.ParentID
			payload["parent_snippet"] = u.ParentSnippet
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(u.ID),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return nil
}

// Search performs a cosine similarity search and returns the top-k results
// with Score populated from the Qdrant similarity score.
func (s *QdrantStore) Search(ctx context.Context, queryVector []float32, topK int) ([]Unit, error) {
	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	units := make([]Unit, 0, len(results))
	for _, r := range results {
		u := unitFromPayload(r.Id.GetUuid(), r.Payload)
		u.Score = float64(r.Score)
		units = append(units, u)
	}

	return units, nil
}

// Contents returns every unit in the collection, paging through the
// collection with the scroll API. Vectors are not fetched — only payloads
// are needed for the sparse-index rebuild.
func (s *QdrantStore) Contents(ctx context.Context) ([]Unit, error) {
	var units []Unit
	limit := uint32(scrollPageSize)

	var offset *qdrant.PointId
	for {
		resp, err := s.client.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.cfg.Collection,
			Limit:          &limit,
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: scroll failed: %w", err)
		}

		for _, p := range resp.GetResult() {
			units = append(units, unitFromPayload(p.Id.GetUuid(), p.Payload))
		}

		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}

	return units, nil
}

// Count returns the number of units stored in the collection.
func (s *QdrantStore) Count(ctx context.Context) (uint64, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %w", err)
	}
	return count, nil
}

// DeleteCollection removes the tenant's entire collection.
func (s *QdrantStore) DeleteCollection(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.cfg.Collection); err != nil {
		return fmt.Errorf("qdrant: delete collection %q failed: %w", s.cfg.Collection, err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// unitFromPayload reconstructs a Unit from a stored Qdrant payload.
func unitFromPayload(id string, payload map[string]*qdrant.Value) Unit {
	u := Unit{ID: id}
	if payload == nil {
		return u
	}
	if v, ok := payload["content"]; ok {
		u.Content = v.GetStringValue()
	}
	if v, ok := payload["source_id"]; ok {
		u.SourceID = v.GetStringValue()
	}
	if v, ok := payload["business_id"]; ok {
		u.BusinessID = v.GetStringValue()
	}
	if v, ok := payload["chunk_index"]; ok {
		u.ChunkIndex = int(v.GetIntegerValue())
	}
	if v, ok := payload["parent_id"]; ok {
		u.ParentID = v.GetStringValue()
	}
	if v, ok := payload["parent_snippet"]; ok {
		u.ParentSnippet = v.GetStringValue()
	}
	return u
}
