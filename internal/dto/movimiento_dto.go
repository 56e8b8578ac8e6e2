package dto

import "github.com/shopspring/decimal"

type MovimientoFilter struct {
	LoteID string `form:"lote_id" validate:"omitempty,uuid"`
	Tipo   string `form:"tipo"    validate:"omitempty,oneof=Reserva Devolución Ajuste"`
	Page   int    `form:"page,default=1"    validate:"min=1"`
	Limit  int    `form:"limit,default=100" validate:"min=1,max=500"`
}

type MovimientoResponse struct {
	ID          string          `json:"id"`
	LoteID      string          `json:"lote_id"`
	ReservaID   *string         `json:"reserva_id"`
	Tipo        string          `json:"tipo"`
	Cantidad    decimal.Decimal `json:"cantidad"`
	Observacion string          `json:"observacion"`
	Responsable *string         `json:"responsable"`
	CreatedAt   string          `json:"created_at"`
}

type MovimientoListResponse struct {
	Data       []MovimientoResponse `json:"data"`
	Total      int64                `json:"total"`
	Page       int                  `json:"page"`
	Limit      int                  `json:"limit"`
	TotalPages int                  `json:"total_pages"`
}

// MovimientoEvento is the payload fanned out on the notification channel
// after a movement row is written.
type MovimientoEvento struct {
	MovimientoID string          `json:"movimiento_id"`
	LoteID       string          `json:"lote_id"`
	ReservaID    *string         `json:"reserva_id,omitempty"`
	Tipo         string          `json:"tipo"`
	Cantidad     decimal.Decimal `json:"cantidad"`
	Observacion  string          `json:"observacion"`
	Responsable  *string         `json:"responsable,omitempty"`
	CreatedAt    string          `json:"created_at"`
}
