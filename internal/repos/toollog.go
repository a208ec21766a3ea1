package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/types"
)

type ToolLogRepo interface {
	Insert(ctx context.Context, tx *gorm.DB, row *types.ToolLog) error
}

type toolLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewToolLogRepo(db *gorm.DB, baseLog *logger.Logger) ToolLogRepo {
	return &toolLogRepo{db: db, log: baseLog.With("repo", "ToolLogRepo")}
}

func (r *toolLogRepo) Insert(ctx context.Context, tx *gorm.DB, row *types.ToolLog) error {
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
