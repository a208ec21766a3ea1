package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/recall-backend/internal/platform/envutil"
	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/repos"
)

type SettingsService interface {
	GetAutosave(ctx context.Context, owner uuid.UUID) (bool, error)
	SetAutosave(ctx context.Context, owner uuid.UUID, enabled bool) (bool, error)
}

type settingsService struct {
	log             *logger.Logger
	settingRepo     repos.UserSettingRepo
	autosaveDefault bool
}

func NewSettingsService(log *logger.Logger, settingRepo repos.UserSettingRepo) SettingsService {
	return &settingsService{
		log:             log.With("service", "SettingsService"),
		settingRepo:     settingRepo,
		autosaveDefault: envutil.Bool("MEMORY_AUTOSAVE_DEFAULT", true),
	}
}

// GetAutosave falls back to the process-wide default when the row or the
// flag is absent, and on read errors: a broken settings table should not
// take memory autosave down with it.
func (s *settingsService) GetAutosave(ctx context.Context, owner uuid.UUID) (bool, error) {
	row, err := s.settingRepo.GetByOwner(ctx, nil, owner)
	if err != nil {
		s.log.Warn("autosave preference read failed, using default", "owner", owner.String(), "error", err)
		return s.autosaveDefault, nil
	}
	if row == nil || row.AutosaveMemories == nil {
		return s.autosaveDefault, nil
	}
	return *row.AutosaveMemories, nil
}

func (s *settingsService) SetAutosave(ctx context.Context, owner uuid.UUID, enabled bool) (bool, error) {
	row, err := s.settingRepo.Upsert(ctx, nil, owner, enabled)
	if err != nil {
		return false, err
	}
	if row.AutosaveMemories == nil {
		return enabled, nil
	}
	return *row.AutosaveMemories, nil
}
