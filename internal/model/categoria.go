package model

import (
	"time"

	"github.com/google/uuid"
)

// Categoria classifies inventory products.
// EsDivisible=true means the product is a consumable costed per unit used;
// false means a durable tool costed by per-use depreciation.
type Categoria struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Nombre      string    `gorm:"uniqueIndex;not null"`
	Descripcion *string
	EsDivisible bool `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName overrides GORM's default singular → plural logic for Spanish names.
func (Categoria) TableName() string { return "categorias" }
