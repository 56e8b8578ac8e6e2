package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Movement type names as stored in tipos_movimiento.
const (
	TipoMovimientoReserva    = "Reserva"
	TipoMovimientoDevolucion = "Devolución"
	TipoMovimientoAjuste     = "Ajuste"
)

// TipoMovimiento is the lookup table of movement kinds.
type TipoMovimiento struct {
	ID     int    `gorm:"primaryKey"`
	Nombre string `gorm:"uniqueIndex;not null"`
}

func (TipoMovimiento) TableName() string { return "tipos_movimiento" }

// Movimiento registra cada evento que afecta el stock de un lote.
// Append-only: rows are never updated, and only removed together with their lote.
type Movimiento struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	LoteID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	ReservaID        *uuid.UUID      `gorm:"type:uuid;index"`
	TipoMovimientoID int             `gorm:"not null"`
	Cantidad         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Observacion      string
	// Responsable is denormalized at write time: "{nombres} {apellidos} - {dni}"
	Responsable *string
	CreatedAt   time.Time

	TipoMovimiento *TipoMovimiento `gorm:"foreignKey:TipoMovimientoID"`
}

// TableName overrides GORM's default pluralization (movimientos is already plural).
func (Movimiento) TableName() string { return "movimientos" }
