package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Producto is a purchasable inventory item.
// CapacidadPresentacion is the number of base units per purchased package
// (e.g. liters per bottle); a zero value is treated as 1 when lots are created.
type Producto struct {
	ID                    uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Nombre                string          `gorm:"index;not null"`
	SKU                   *string         `gorm:"uniqueIndex"`
	Precio                decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	CapacidadPresentacion decimal.Decimal `gorm:"type:decimal(12,2);not null;default:1"`
	CategoriaID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	UnidadMedida          string          `gorm:"not null;default:'unidad'"`
	// VidaUtilPromedioPorUsos applies to non-divisible (tool) products only.
	VidaUtilPromedioPorUsos *int
	CreatedAt               time.Time
	UpdatedAt               time.Time

	Categoria *Categoria `gorm:"foreignKey:CategoriaID"`
}

// EsDivisible reports whether the product is costed per unit consumed.
// Products without a loaded category are treated as divisible.
func (p *Producto) EsDivisible() bool {
	if p == nil || p.Categoria == nil {
		return true
	}
	return p.Categoria.EsDivisible
}
