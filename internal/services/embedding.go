package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/recall-backend/internal/clients/llm"
	"github.com/yungbote/recall-backend/internal/platform/envutil"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

// EmbeddingService embeds text with one model pinned for the process
// lifetime, so stored vectors stay comparable. Callers treat a failure as
// "no vector" and degrade, never as a zero vector.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
}

const embedBatchSize = 64

type embeddingService struct {
	log    *logger.Logger
	client llm.Client
	model  string
	dim    int
}

func NewEmbeddingService(log *logger.Logger, client llm.Client) EmbeddingService {
	return &embeddingService{
		log:    log.With("service", "EmbeddingService"),
		client: client,
		model:  envutil.String("EMBEDDING_MODEL", "sentence-transformers/all-MiniLM-L6-v2"),
		dim:    envutil.Int("MEMORY_EMBEDDING_DIM", 384),
	}
}

func (s *embeddingService) Dim() int { return s.dim }

func (s *embeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (s *embeddingService) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(texts); start += embedBatchSize {
		start := start
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			vecs, err := s.client.Embeddings(gctx, s.model, texts[start:end])
			if err != nil {
				return err
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embedding count mismatch: want %d got %d", end-start, len(vecs))
			}
			for i, v := range vecs {
				if s.dim > 0 && len(v) != s.dim {
					return fmt.Errorf("embedding dim mismatch: want %d got %d", s.dim, len(v))
				}
				out[start+i] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
