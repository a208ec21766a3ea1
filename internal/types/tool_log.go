package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ToolLog struct {
	ID      uuid.UUID         `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID  *uuid.UUID        `gorm:"type:uuid;index" json:"user_id,omitempty"`
	ToolKey string            `gorm:"not null" json:"tool_key"`
	Params  datatypes.JSONMap `gorm:"type:jsonb" json:"params"`
	Result  datatypes.JSONMap `gorm:"type:jsonb" json:"result"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (ToolLog) TableName() string {
	return "tool_logs"
}
