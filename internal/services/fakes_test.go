package services

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

// fakeMemoryRepo keeps rows in memory and mirrors the store's ordering
// contracts closely enough for service-level tests.
type fakeMemoryRepo struct {
	rows      []*types.Memory
	searchErr error
}

func (f *fakeMemoryRepo) Create(ctx context.Context, tx *gorm.DB, m *types.Memory) (*types.Memory, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	f.rows = append(f.rows, m)
	return m, nil
}

func (f *fakeMemoryRepo) GetByID(ctx context.Context, tx *gorm.DB, owner, id uuid.UUID) (*types.Memory, error) {
	for _, m := range f.rows {
		if m.Owner == owner && m.ID == id {
			return m, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeMemoryRepo) ListByOwner(ctx context.Context, tx *gorm.DB, owner uuid.UUID, limit, offset int) ([]*types.Memory, error) {
	out := f.ownerRows(owner)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMemoryRepo) RecentByOwner(ctx context.Context, tx *gorm.DB, owner uuid.UUID, limit int) ([]*types.Memory, error) {
	out := f.ownerRows(owner)
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMemoryRepo) MergeDuplicate(ctx context.Context, tx *gorm.DB, owner, id uuid.UUID, metadata datatypes.JSONMap, now time.Time) error {
	for _, m := range f.rows {
		if m.Owner == owner && m.ID == id {
			m.Metadata = metadata
			m.UpdatedAt = now
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeMemoryRepo) DeleteByOwner(ctx context.Context, tx *gorm.DB, owner, id uuid.UUID) (int64, error) {
	kept := f.rows[:0]
	var n int64
	for _, m := range f.rows {
		if m.Owner == owner && m.ID == id {
			n++
			continue
		}
		kept = append(kept, m)
	}
	f.rows = kept
	return n, nil
}

func (f *fakeMemoryRepo) SearchByVector(ctx context.Context, tx *gorm.DB, owner uuid.UUID, query pgvector.Vector, limit int) ([]*types.RankedMemory, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	q := query.Slice()
	var out []*types.RankedMemory
	for _, m := range f.ownerRows(owner) {
		if m.Embedding == nil {
			continue
		}
		out = append(out, &types.RankedMemory{
			Memory:     *m,
			Similarity: Cosine(q, m.Embedding.Slice()),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMemoryRepo) ownerRows(owner uuid.UUID) []*types.Memory {
	var out []*types.Memory
	for _, m := range f.rows {
		if m.Owner == owner {
			out = append(out, m)
		}
	}
	return out
}

type fakeMemoryLogRepo struct {
	entries []*types.MemoryLog
	err     error
}

func (f *fakeMemoryLogRepo) Insert(ctx context.Context, tx *gorm.DB, row *types.MemoryLog) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, row)
	return nil
}

func (f *fakeMemoryLogRepo) actions() []string {
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

// fakeEmbedder returns a canned vector per exact input text.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dim() int { return 3 }

func newTestMemoryService(t *testing.T, repo *fakeMemoryRepo, logRepo *fakeMemoryLogRepo, emb *fakeEmbedder) *memoryService {
	t.Helper()
	return &memoryService{
		log:        testLogger(t),
		memoryRepo: repo,
		logRepo:    logRepo,
		embedder:   emb,
		primary:    &nativeRetrieval{repo: repo},
		fallback:   &scanRetrieval{repo: repo, window: scanWindow},
		topK:       6,
	}
}
