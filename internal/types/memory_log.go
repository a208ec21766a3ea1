package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Memory log actions.
const (
	MemoryActionCreated   = "created"
	MemoryActionUpdated   = "updated"
	MemoryActionDeleted   = "deleted"
	MemoryActionCondensed = "condensed"
)

// MemoryLog is an append-only audit row. The core never reads it back and
// failures writing it never abort the operation being logged.
type MemoryLog struct {
	ID       uuid.UUID         `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID   *uuid.UUID        `gorm:"type:uuid;index" json:"user_id,omitempty"`
	MemoryID *uuid.UUID        `gorm:"type:uuid" json:"memory_id,omitempty"`
	Action   string            `gorm:"not null" json:"action"`
	Details  datatypes.JSONMap `gorm:"type:jsonb" json:"details"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (MemoryLog) TableName() string {
	return "memory_logs"
}
