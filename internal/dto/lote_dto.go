package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

type CrearLoteRequest struct {
	ProductoID       string          `json:"producto_id"       validate:"required,uuid"`
	BodegaID         string          `json:"bodega_id"         validate:"required,uuid"`
	Stock            decimal.Decimal `json:"stock"             validate:"min=0"`
	FechaVencimiento *time.Time      `json:"fecha_vencimiento"`
}

// ActualizarLoteRequest is a partial update. Quantity fields are validated in
// the service because the decimal validator does not reach through pointers.
type ActualizarLoteRequest struct {
	BodegaID           *string                        `json:"bodega_id"           validate:"omitempty,uuid"`
	Stock              *decimal.Decimal               `json:"stock"`
	CantidadDisponible *decimal.Decimal               `json:"cantidad_disponible"`
	CantidadParcial    *decimal.Decimal               `json:"cantidad_parcial"`
	FechaVencimiento   *time.Time                     `json:"fecha_vencimiento"`
	Producto           *ActualizarProductoLoteRequest `json:"producto"`
}

// ActualizarProductoLoteRequest edits the lot's product in the same transaction.
type ActualizarProductoLoteRequest struct {
	Nombre                *string          `json:"nombre" validate:"omitempty,min=2,max=120"`
	Precio                *decimal.Decimal `json:"precio"`
	CapacidadPresentacion *decimal.Decimal `json:"capacidad_presentacion"`
}

// ─── Filter / Pagination ─────────────────────────────────────────────────────

type LoteFilter struct {
	ProductoID string `form:"producto_id" validate:"omitempty,uuid"`
	Page       int    `form:"page,default=1"   validate:"min=1"`
	Limit      int    `form:"limit,default=20" validate:"min=1,max=100"`
}

type BusquedaLotesFilter struct {
	Q     string `form:"q"`
	Page  int    `form:"page,default=1"   validate:"min=1"`
	Limit int    `form:"limit,default=20" validate:"min=1,max=100"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type LoteResponse struct {
	ID                    string          `json:"id"`
	ProductoID            string          `json:"producto_id"`
	ProductoNombre        string          `json:"producto_nombre"`
	BodegaID              string          `json:"bodega_id"`
	Stock                 decimal.Decimal `json:"stock"`
	CantidadDisponible    decimal.Decimal `json:"cantidad_disponible"`
	CantidadParcial       decimal.Decimal `json:"cantidad_parcial"`
	DisponibleParaReserva decimal.Decimal `json:"disponible_para_reserva"`
	FechaVencimiento      *string         `json:"fecha_vencimiento"`
	CreatedAt             string          `json:"created_at"`
}

type LoteListResponse struct {
	Data       []LoteResponse `json:"data"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"total_pages"`
}

// ProductoDisponibleResponse groups a product's lots with their summed availability.
type ProductoDisponibleResponse struct {
	ProductoID      string          `json:"producto_id"`
	Nombre          string          `json:"nombre"`
	SKU             *string         `json:"sku"`
	UnidadMedida    string          `json:"unidad_medida"`
	EsDivisible     bool            `json:"es_divisible"`
	TotalDisponible decimal.Decimal `json:"total_disponible"`
	TotalParcial    decimal.Decimal `json:"total_parcial"`
	Lotes           []LoteResponse  `json:"lotes"`
}

type ProductosDisponiblesResponse struct {
	Data       []ProductoDisponibleResponse `json:"data"`
	Total      int64                        `json:"total"`
	Page       int                          `json:"page"`
	Limit      int                          `json:"limit"`
	TotalPages int                          `json:"total_pages"`
}
