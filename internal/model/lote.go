package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bodega is the warehouse a lote is stored in.
type Bodega struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Nombre    string    `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
}

func (Bodega) TableName() string { return "bodegas" }

// Lote is one physical receipt of a Producto in a Bodega.
//
// Stock counts received packages. CantidadDisponible holds fresh base units
// (Stock × CapacidadPresentacion at receipt) and CantidadParcial holds units
// returned from reservations. Both are kept non-negative by CHECK constraints.
type Lote struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProductoID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	BodegaID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	Stock              decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	CantidadDisponible decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	CantidadParcial    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	FechaVencimiento   *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time

	Producto *Producto `gorm:"foreignKey:ProductoID"`
	Bodega   *Bodega   `gorm:"foreignKey:BodegaID"`
	Reservas []Reserva `gorm:"foreignKey:LoteID"`
}

func (Lote) TableName() string { return "lotes_inventario" }
