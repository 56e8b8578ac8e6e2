package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Reservation state names as stored in estados_reserva.
const (
	EstadoReservaReservado  = "Reservado"
	EstadoReservaConfirmada = "Confirmada"
	EstadoReservaCancelada  = "Cancelada"
)

// EstadoReserva is the lookup table of reservation states.
type EstadoReserva struct {
	ID     int    `gorm:"primaryKey"`
	Nombre string `gorm:"uniqueIndex;not null"`
}

func (EstadoReserva) TableName() string { return "estados_reserva" }

// Reserva commits a quantity of a Lote to an Actividad.
//
// CapacidadPresentacionProducto and PrecioProducto are a point-in-time copy of
// the product taken at reservation; later price edits do not alter its cost.
type Reserva struct {
	ID                            uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ActividadID                   uuid.UUID       `gorm:"type:uuid;not null;index"`
	LoteID                        uuid.UUID       `gorm:"type:uuid;not null;index"`
	CantidadReservada             decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CantidadUsada                 decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	CantidadDevuelta              decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	EstadoID                      int             `gorm:"not null"`
	CapacidadPresentacionProducto decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	PrecioProducto                decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	CreatedAt                     time.Time
	UpdatedAt                     time.Time

	Estado *EstadoReserva `gorm:"foreignKey:EstadoID"`
	Lote   *Lote          `gorm:"foreignKey:LoteID"`
}

func (Reserva) TableName() string { return "reservas" }
