package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/types"
)

type MemoryLogRepo interface {
	Insert(ctx context.Context, tx *gorm.DB, row *types.MemoryLog) error
}

type memoryLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMemoryLogRepo(db *gorm.DB, baseLog *logger.Logger) MemoryLogRepo {
	return &memoryLogRepo{db: db, log: baseLog.With("repo", "MemoryLogRepo")}
}

func (r *memoryLogRepo) Insert(ctx context.Context, tx *gorm.DB, row *types.MemoryLog) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return transaction.WithContext(ctx).Create(row).Error
}
