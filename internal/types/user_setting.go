package types

import (
	"time"

	"github.com/google/uuid"
)

// UserSetting holds one row per user, upserted by owner. AutosaveMemories
// is nullable; readers fall back to the process-wide default when the row
// or the flag is absent.
type UserSetting struct {
	Owner            uuid.UUID `gorm:"type:uuid;primaryKey" json:"owner"`
	AutosaveMemories *bool     `gorm:"column:autosave_memories" json:"autosave_memories"`
	UpdatedAt        time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (UserSetting) TableName() string {
	return "user_settings"
}
