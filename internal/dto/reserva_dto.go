package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type ReservarLoteRequest struct {
	ActividadID string          `json:"actividad_id" validate:"required,uuid"`
	LoteID      string          `json:"lote_id"      validate:"required,uuid"`
	Cantidad    decimal.Decimal `json:"cantidad"     validate:"gt=0"`
	// EstadoID defaults to the Reservado state; any other value is rejected.
	EstadoID *int `json:"estado_id"`
}

type ReservarProductoRequest struct {
	ActividadID string          `json:"actividad_id" validate:"required,uuid"`
	ProductoID  string          `json:"producto_id"  validate:"required,uuid"`
	Cantidad    decimal.Decimal `json:"cantidad"     validate:"gt=0"`
	EstadoID    *int            `json:"estado_id"`
}

type ConfirmarUsoRequest struct {
	CantidadUsada decimal.Decimal `json:"cantidad_usada" validate:"min=0"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type ReservaResponse struct {
	ID                            string          `json:"id"`
	ActividadID                   string          `json:"actividad_id"`
	LoteID                        string          `json:"lote_id"`
	ProductoID                    string          `json:"producto_id"`
	ProductoNombre                string          `json:"producto_nombre"`
	CantidadReservada             decimal.Decimal `json:"cantidad_reservada"`
	CantidadUsada                 decimal.Decimal `json:"cantidad_usada"`
	CantidadDevuelta              decimal.Decimal `json:"cantidad_devuelta"`
	Estado                        string          `json:"estado"`
	CapacidadPresentacionProducto decimal.Decimal `json:"capacidad_presentacion_producto"`
	PrecioProducto                decimal.Decimal `json:"precio_producto"`
	// DisponibleLote is the lot's availability after this operation.
	DisponibleLote decimal.Decimal `json:"disponible_lote"`
	CreatedAt      string          `json:"created_at"`
}
