package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docmind-ai/docmind-go/internal/chunker"
	"github.com/docmind-ai/docmind-go/internal/rag"
)

// ingestBatchSize bounds how many units are embedded and upserted per
// round trip.
const ingestBatchSize = 100

// unitNamespace seeds deterministic unit ids. Re-ingesting the same
// document yields the same ids, so upserts overwrite stale copies instead
// of accumulating duplicates.
var unitNamespace = uuid.MustParse("7a6c2f1e-9d44-4b8a-b1c3-0e5f8a92d617")

// vectorWriteMu serializes all index writes process-wide, across every
// tenant engine. Reads are not blocked; a query racing an ingest sees the
// pre- or post-write state of each index independently.
var vectorWriteMu sync.Mutex

// Ingest chunks, embeds, and indexes one document for this tenant, then
// rebuilds the sparse index from the store's full contents. Returns the
// number of units written. A document that yields no usable units returns
// ErrEmptyDocument and leaves both indices unchanged.
func (e *Engine) Ingest(ctx context.Context, text, sourceID string) (int, error) {
	start := time.Now()

	units := e.splitter.Split(text, sourceID)
	units = chunker.Sanitize(units)
	if len(units) == 0 {
		e.metrics.observeIngest(e.businessID, "empty", 0, time.Since(start).Seconds())
		return 0, ErrEmptyDocument
	}

	for i := range units {
		units[i].BusinessID = e.businessID
		units[i].ID = e.unitID(&units[i])
	}

	vectorWriteMu.Lock()
	defer vectorWriteMu.Unlock()

	for offset := 0; offset < len(units); offset += ingestBatchSize {
		end := offset + ingestBatchSize
		if end > len(units) {
			end = len(units)
		}
		batch := units[offset:end]

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				e.metrics.observeIngest(e.businessID, "error", 0, time.Since(start).Seconds())
				return 0, fmt.Errorf("%w: %w", ErrIndexWrite, err)
			}
		}

		texts := make([]string, len(batch))
		for i, u := range batch {
			texts[i] = u.Content
		}
		vectors, err := e.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			e.metrics.observeIngest(e.businessID, "error", 0, time.Since(start).Seconds())
			return 0, fmt.Errorf("%w: embedding batch at %d: %w", ErrIndexWrite, offset, err)
		}
		if len(vectors) != len(batch) {
			e.metrics.observeIngest(e.businessID, "error", 0, time.Since(start).Seconds())
			return 0, fmt.Errorf("%w: embedder returned %d vectors for %d units",
				ErrIndexWrite, len(vectors), len(batch))
		}

		if err := e.store.Upsert(ctx, batch, vectors); err != nil {
			e.metrics.observeIngest(e.businessID, "error", 0, time.Since(start).Seconds())
			return 0, fmt.Errorf("%w: upserting batch at %d: %w", ErrIndexWrite, offset, err)
		}
	}

	// The sparse index is rebuilt from the store's authoritative contents
	// so repeated ingests of the same document never double-count.
	if e.useHybrid {
		all, err := e.store.Contents(ctx)
		if err != nil {
			e.metrics.observeIngest(e.businessID, "error", 0, time.Since(start).Seconds())
			return 0, fmt.Errorf("%w: reading back contents for sparse rebuild: %w",
				ErrIndexWrite, err)
		}
		e.sparse.Rebuild(all)
	}

	elapsed := time.Since(start)
	e.log.Info("ingest: document indexed",
		slog.String("source_id", sourceID),
		slog.Int("units", len(units)),
		slog.Duration("elapsed", elapsed),
	)
	e.metrics.observeIngest(e.businessID, "ok", len(units), elapsed.Seconds())

	return len(units), nil
}

// unitID mints the deterministic id for a unit. Qdrant requires point ids
// to be valid UUIDs, so ids are derived with UUIDv5 over the tenant,
// source, position, and content.
func (e *Engine) unitID(u *rag.Unit) string {
	name := fmt.Sprintf("%s\x00%s\x00%d\x00%s", u.BusinessID, u.SourceID, u.ChunkIndex, u.Content)
	return uuid.NewSHA1(unitNamespace, []byte(name)).String()
}
