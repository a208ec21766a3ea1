package services

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/yungbote/recall-backend/internal/repos"
	"github.com/yungbote/recall-backend/internal/types"
)

// retrievalStrategy ranks an owner's memories against a query vector. The
// two implementations must agree on the top-K ID set for the same data
// within floating-point tolerance.
type retrievalStrategy interface {
	retrieve(ctx context.Context, owner uuid.UUID, query []float32, topK int) ([]*types.RankedMemory, error)
}

// nativeRetrieval delegates ranking to the store's vector index.
type nativeRetrieval struct {
	repo repos.MemoryRepo
}

func (r *nativeRetrieval) retrieve(ctx context.Context, owner uuid.UUID, query []float32, topK int) ([]*types.RankedMemory, error) {
	return r.repo.SearchByVector(ctx, nil, owner, pgvector.NewVector(query), topK)
}

// scanRetrieval ranks in-process over a window of recent rows, reading the
// vector from the embedding column or its metadata copy.
type scanRetrieval struct {
	repo   repos.MemoryRepo
	window int
}

func (r *scanRetrieval) retrieve(ctx context.Context, owner uuid.UUID, query []float32, topK int) ([]*types.RankedMemory, error) {
	recent, err := r.repo.RecentByOwner(ctx, nil, owner, r.window)
	if err != nil {
		return nil, err
	}

	scored := make([]*types.RankedMemory, 0, len(recent))
	for _, m := range recent {
		vec := candidateVector(m)
		if vec == nil {
			continue
		}
		scored = append(scored, &types.RankedMemory{
			Memory:     *m,
			Similarity: Cosine(query, vec),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].ID.String() < scored[j].ID.String()
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// candidateVector reads a row's embedding from the vector column, falling
// back to the metadata copy written at insert time. Metadata round-trips
// through JSON, so the copy comes back as []any of float64.
func candidateVector(m *types.Memory) []float32 {
	if m.Embedding != nil {
		if s := m.Embedding.Slice(); len(s) > 0 {
			return s
		}
	}
	raw, ok := m.Metadata[types.MetadataKeyEmbeddingCopy]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []float32:
		return v
	case []any:
		out := make([]float32, 0, len(v))
		for _, item := range v {
			f, ok := item.(float64)
			if !ok {
				return nil
			}
			out = append(out, float32(f))
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}
