package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// Metadata keys the dedup pipeline reserves on an otherwise open map:
// "references" accumulates the metadata of merged near-duplicates,
// "embedding_copy" carries a redundant embedding for stores read without
// the vector column.
const (
	MetadataKeyReferences    = "references"
	MetadataKeyEmbeddingCopy = "embedding_copy"
)

type Memory struct {
	ID         uuid.UUID         `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Owner      uuid.UUID         `gorm:"type:uuid;not null;index:idx_memories_owner" json:"owner"`
	Title      string            `gorm:"column:title;not null" json:"title"`
	MemoryText string            `gorm:"column:memory_text;not null" json:"memory_text"`
	Embedding  *pgvector.Vector  `gorm:"type:vector(384)" json:"-"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	CreatedAt  time.Time         `gorm:"not null;default:now();index:idx_memories_created" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"not null;default:now();index:idx_memories_updated" json:"updated_at"`
}

func (Memory) TableName() string {
	return "memories"
}

// RankedMemory is a Memory plus the similarity of its embedding to a query
// vector. Both retrieval strategies return this shape.
type RankedMemory struct {
	Memory
	Similarity float64 `json:"similarity"`
}
