package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/types"
)

type MemoryRepo interface {
	Create(ctx context.Context, tx *gorm.DB, m *types.Memory) (*types.Memory, error)
	GetByID(ctx context.Context, tx *gorm.DB, owner, id uuid.UUID) (*types.Memory, error)
	ListByOwner(ctx context.Context, tx *gorm.DB, owner uuid.UUID, limit, offset int) ([]*types.Memory, error)
	RecentByOwner(ctx context.Context, tx *gorm.DB, owner uuid.UUID, limit int) ([]*types.Memory, error)
	MergeDuplicate(ctx context.Context, tx *gorm.DB, owner, id uuid.UUID, metadata datatypes.JSONMap, now time.Time) error
	DeleteByOwner(ctx context.Context, tx *gorm.DB, owner, id uuid.UUID) (int64, error)
	SearchByVector(ctx context.Context, tx *gorm.DB, owner uuid.UUID, query pgvector.Vector, limit int) ([]*types.RankedMemory, error)
}

type memoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMemoryRepo(db *gorm.DB, baseLog *logger.Logger) MemoryRepo {
	return &memoryRepo{db: db, log: baseLog.With("repo", "MemoryRepo")}
}

func (r *memoryRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *memoryRepo) Create(ctx context.Context, tx *gorm.DB, m *types.Memory) (*types.Memory, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if err := r.conn(tx).WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

func (r *memoryRepo) GetByID(ctx context.Context, tx *gorm.DB, owner, id uuid.UUID) (*types.Memory, error) {
	var m types.Memory
	if err := r.conn(tx).WithContext(ctx).
		Where("id = ? AND owner = ?", id, owner).
		First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *memoryRepo) ListByOwner(ctx context.Context, tx *gorm.DB, owner uuid.UUID, limit, offset int) ([]*types.Memory, error) {
	var results []*types.Memory
	if err := r.conn(tx).WithContext(ctx).
		Where("owner = ?", owner).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *memoryRepo) RecentByOwner(ctx context.Context, tx *gorm.DB, owner uuid.UUID, limit int) ([]*types.Memory, error) {
	var results []*types.Memory
	if err := r.conn(tx).WithContext(ctx).
		Where("owner = ?", owner).
		Order("updated_at DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *memoryRepo) MergeDuplicate(ctx context.Context, tx *gorm.DB, owner, id uuid.UUID, metadata datatypes.JSONMap, now time.Time) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.Memory{}).
		Where("id = ? AND owner = ?", id, owner).
		Updates(map[string]interface{}{
			"metadata":   metadata,
			"updated_at": now,
		}).Error
}

func (r *memoryRepo) DeleteByOwner(ctx context.Context, tx *gorm.DB, owner, id uuid.UUID) (int64, error) {
	res := r.conn(tx).WithContext(ctx).
		Where("id = ? AND owner = ?", id, owner).
		Delete(&types.Memory{})
	return res.RowsAffected, res.Error
}

// SearchByVector runs the native pgvector distance query. Similarity is
// 1 - cosine distance, computed by Postgres; ties break on id so both
// retrieval strategies order equal scores the same way.
func (r *memoryRepo) SearchByVector(ctx context.Context, tx *gorm.DB, owner uuid.UUID, query pgvector.Vector, limit int) ([]*types.RankedMemory, error) {
	var results []*types.RankedMemory
	if err := r.conn(tx).WithContext(ctx).
		Raw(`SELECT id, owner, title, memory_text, metadata, created_at, updated_at,
			1 - (embedding <=> ?) AS similarity
			FROM memories
			WHERE owner = ? AND embedding IS NOT NULL
			ORDER BY similarity DESC, id
			LIMIT ?`, query, owner, limit).
		Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
