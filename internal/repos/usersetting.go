package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/types"
)

type UserSettingRepo interface {
	// GetByOwner returns (nil, nil) when no row exists.
	GetByOwner(ctx context.Context, tx *gorm.DB, owner uuid.UUID) (*types.UserSetting, error)
	Upsert(ctx context.Context, tx *gorm.DB, owner uuid.UUID, autosave bool) (*types.UserSetting, error)
}

type userSettingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserSettingRepo(db *gorm.DB, baseLog *logger.Logger) UserSettingRepo {
	return &userSettingRepo{db: db, log: baseLog.With("repo", "UserSettingRepo")}
}

func (r *userSettingRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *userSettingRepo) GetByOwner(ctx context.Context, tx *gorm.DB, owner uuid.UUID) (*types.UserSetting, error) {
	var s types.UserSetting
	err := r.conn(tx).WithContext(ctx).Where("owner = ?", owner).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *userSettingRepo) Upsert(ctx context.Context, tx *gorm.DB, owner uuid.UUID, autosave bool) (*types.UserSetting, error) {
	row := &types.UserSetting{
		Owner:            owner,
		AutosaveMemories: &autosave,
		UpdatedAt:        time.Now().UTC(),
	}
	if err := r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner"}},
			DoUpdates: clause.AssignmentColumns([]string{"autosave_memories", "updated_at"}),
		}).
		Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}
