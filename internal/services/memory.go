package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/recall-backend/internal/platform/apierr"
	"github.com/yungbote/recall-backend/internal/platform/envutil"
	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/repos"
	"github.com/yungbote/recall-backend/internal/types"
)

const (
	titleMaxRunes = 100
	textMaxRunes  = 600

	// Dedup compares the incoming embedding against this many of the
	// owner's most-recently-updated memories; the first candidate above
	// the threshold wins, in store order.
	dedupWindow    = 50
	dedupThreshold = 0.9

	// Brute-force retrieval scans this many recent rows when the native
	// vector query is unavailable.
	scanWindow = 200
)

type MemoryService interface {
	Create(ctx context.Context, owner uuid.UUID, title, text string, metadata map[string]any) (*types.Memory, error)
	Get(ctx context.Context, owner, id uuid.UUID) (*types.Memory, error)
	List(ctx context.Context, owner uuid.UUID, limit, offset int) ([]*types.Memory, error)
	Delete(ctx context.Context, owner, id uuid.UUID) error
	Retrieve(ctx context.Context, owner uuid.UUID, query string, topK int) ([]*types.RankedMemory, error)
}

type memoryService struct {
	log        *logger.Logger
	memoryRepo repos.MemoryRepo
	logRepo    repos.MemoryLogRepo
	embedder   EmbeddingService

	primary  retrievalStrategy
	fallback retrievalStrategy
	topK     int
}

func NewMemoryService(log *logger.Logger, memoryRepo repos.MemoryRepo, logRepo repos.MemoryLogRepo, embedder EmbeddingService) MemoryService {
	return &memoryService{
		log:        log.With("service", "MemoryService"),
		memoryRepo: memoryRepo,
		logRepo:    logRepo,
		embedder:   embedder,
		primary:    &nativeRetrieval{repo: memoryRepo},
		fallback:   &scanRetrieval{repo: memoryRepo, window: scanWindow},
		topK:       envutil.Int("MEMORY_TOP_K", 6),
	}
}

func (s *memoryService) Create(ctx context.Context, owner uuid.UUID, title, text string, metadata map[string]any) (*types.Memory, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apierr.New(http.StatusBadRequest, "memory_text_required", fmt.Errorf("memory_text is required"))
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.log.Warn("embedding failed, proceeding with null embedding", "error", err)
		vec = nil
	}

	if vec != nil {
		merged, err := s.mergeNearDuplicate(ctx, owner, vec, metadata)
		if err != nil {
			return nil, err
		}
		if merged != nil {
			return merged, nil
		}
	}

	row := &types.Memory{
		Owner:      owner,
		Title:      truncateRunes(title, titleMaxRunes),
		MemoryText: truncateRunes(text, textMaxRunes),
		Metadata:   datatypes.JSONMap(metadata),
	}
	if vec != nil {
		v := pgvector.NewVector(vec)
		row.Embedding = &v
		// Redundant copy so the scan strategy can rank rows read from a
		// store without the vector column.
		row.Metadata[types.MetadataKeyEmbeddingCopy] = vec
	}

	created, err := s.memoryRepo.Create(ctx, nil, row)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, &owner, &created.ID, types.MemoryActionCreated, nil)
	return created, nil
}

// mergeNearDuplicate returns the merged row when a candidate in the dedup
// window exceeds the threshold, nil when nothing merged.
func (s *memoryService) mergeNearDuplicate(ctx context.Context, owner uuid.UUID, vec []float32, metadata map[string]any) (*types.Memory, error) {
	recent, err := s.memoryRepo.RecentByOwner(ctx, nil, owner, dedupWindow)
	if err != nil {
		return nil, err
	}
	for _, m := range recent {
		if m.Embedding == nil {
			continue
		}
		if Cosine(vec, m.Embedding.Slice()) <= dedupThreshold {
			continue
		}

		current := map[string]any(m.Metadata)
		if current == nil {
			current = map[string]any{}
		}
		refs, _ := current[types.MetadataKeyReferences].([]any)
		current[types.MetadataKeyReferences] = append(refs, metadata)

		now := time.Now().UTC()
		if err := s.memoryRepo.MergeDuplicate(ctx, nil, owner, m.ID, datatypes.JSONMap(current), now); err != nil {
			return nil, err
		}
		s.logEvent(ctx, &owner, &m.ID, types.MemoryActionUpdated, map[string]any{"reason": "dedup"})
		return s.memoryRepo.GetByID(ctx, nil, owner, m.ID)
	}
	return nil, nil
}

func (s *memoryService) Get(ctx context.Context, owner, id uuid.UUID) (*types.Memory, error) {
	m, err := s.memoryRepo.GetByID(ctx, nil, owner, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.New(http.StatusNotFound, "memory_not_found", fmt.Errorf("memory not found"))
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *memoryService) List(ctx context.Context, owner uuid.UUID, limit, offset int) ([]*types.Memory, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.memoryRepo.ListByOwner(ctx, nil, owner, limit, offset)
}

// Delete is idempotent: removing an absent or already-deleted memory is
// not an error for the caller.
func (s *memoryService) Delete(ctx context.Context, owner, id uuid.UUID) error {
	if _, err := s.memoryRepo.DeleteByOwner(ctx, nil, owner, id); err != nil {
		return err
	}
	s.logEvent(ctx, &owner, &id, types.MemoryActionDeleted, nil)
	return nil
}

func (s *memoryService) Retrieve(ctx context.Context, owner uuid.UUID, query string, topK int) ([]*types.RankedMemory, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apierr.New(http.StatusBadRequest, "query_required", fmt.Errorf("query is required"))
	}
	if topK <= 0 {
		topK = s.topK
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.primary.retrieve(ctx, owner, vec, topK)
	if err == nil {
		return results, nil
	}
	s.log.Warn("native vector retrieval failed, falling back to scan", "error", err)
	return s.fallback.retrieve(ctx, owner, vec, topK)
}

func (s *memoryService) logEvent(ctx context.Context, userID, memoryID *uuid.UUID, action string, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	err := s.logRepo.Insert(ctx, nil, &types.MemoryLog{
		UserID:   userID,
		MemoryID: memoryID,
		Action:   action,
		Details:  datatypes.JSONMap(details),
	})
	if err != nil {
		s.log.Warn("memory log insert failed (non-blocking)", "action", action, "error", err)
	}
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
