package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

type CrearActividadRequest struct {
	Descripcion          string    `json:"descripcion"            validate:"required,min=3,max=500"`
	CultivoZonaID        string    `json:"cultivo_zona_id"        validate:"required,uuid"`
	CategoriaActividadID string    `json:"categoria_actividad_id" validate:"required,uuid"`
	FechaAsignacion      time.Time `json:"fecha_asignacion"       validate:"required"`
	UsuarioIDs           []string  `json:"usuario_ids"            validate:"dive,uuid"`
}

// ActualizarActividadRequest is a shallow merge: nil fields are left untouched.
type ActualizarActividadRequest struct {
	Descripcion          *string    `json:"descripcion"            validate:"omitempty,min=3,max=500"`
	CultivoZonaID        *string    `json:"cultivo_zona_id"        validate:"omitempty,uuid"`
	CategoriaActividadID *string    `json:"categoria_actividad_id" validate:"omitempty,uuid"`
	FechaAsignacion      *time.Time `json:"fecha_asignacion"`
}

// ActualizarActividadCompletaRequest also reconciles the assigned users and
// materials. A nil list leaves that side untouched; an empty list clears it.
type ActualizarActividadCompletaRequest struct {
	ActualizarActividadRequest
	UsuarioIDs []string          `json:"usuario_ids" validate:"omitempty,dive,uuid"`
	Materiales []MaterialRequest `json:"materiales"  validate:"omitempty,dive"`
}

type MaterialRequest struct {
	ProductoID string          `json:"producto_id" validate:"required,uuid"`
	Cantidad   decimal.Decimal `json:"cantidad"    validate:"gt=0"`
}

type FinalizarActividadRequest struct {
	Observacion    *string          `json:"observacion" validate:"omitempty,max=1000"`
	ImgURL         *string          `json:"img_url"     validate:"omitempty,url"`
	HorasDedicadas *decimal.Decimal `json:"horas_dedicadas"`
	PrecioHora     *decimal.Decimal `json:"precio_hora"`
}

// ─── Filter / Pagination ─────────────────────────────────────────────────────

type ActividadFilter struct {
	Estado         *bool  `form:"estado"`
	DNIResponsable string `form:"dni_responsable"`
	Page           int    `form:"page,default=1"   validate:"min=1"`
	Limit          int    `form:"limit,default=20" validate:"min=1,max=100"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type ActividadResponse struct {
	ID                   string           `json:"id"`
	Descripcion          string           `json:"descripcion"`
	CultivoZonaID        string           `json:"cultivo_zona_id"`
	CategoriaActividadID string           `json:"categoria_actividad_id"`
	FechaAsignacion      string           `json:"fecha_asignacion"`
	DNIResponsable       string           `json:"dni_responsable"`
	NombreResponsable    string           `json:"nombre_responsable"`
	Estado               bool             `json:"estado"`
	FechaFinalizacion    *string          `json:"fecha_finalizacion"`
	Observacion          *string          `json:"observacion"`
	ImgURL               *string          `json:"img_url"`
	HorasDedicadas       *decimal.Decimal `json:"horas_dedicadas"`
	PrecioHora           *decimal.Decimal `json:"precio_hora"`
	UsuarioIDs           []string         `json:"usuario_ids"`
}

type ActividadListResponse struct {
	Data       []ActividadResponse `json:"data"`
	Total      int64               `json:"total"`
	Page       int                 `json:"page"`
	Limit      int                 `json:"limit"`
	TotalPages int                 `json:"total_pages"`
}

// FalloPaso reports a best-effort step that failed without aborting the operation.
type FalloPaso struct {
	Paso         string `json:"paso"`
	ReferenciaID string `json:"referencia_id"`
	Error        string `json:"error"`
}

type EliminarActividadResponse struct {
	ActividadID       string      `json:"actividad_id"`
	ReservasDevueltas int         `json:"reservas_devueltas"`
	Fallos            []FalloPaso `json:"fallos"`
}

type CostoLineaResponse struct {
	ReservaID      string          `json:"reserva_id"`
	ProductoID     string          `json:"producto_id"`
	ProductoNombre string          `json:"producto_nombre"`
	EsDivisible    bool            `json:"es_divisible"`
	CantidadUsada  decimal.Decimal `json:"cantidad_usada"`
	PrecioUnitario decimal.Decimal `json:"precio_unitario"`
	Subtotal       decimal.Decimal `json:"subtotal"`
}

type CostoActividadResponse struct {
	ActividadID   string               `json:"actividad_id"`
	Lineas        []CostoLineaResponse `json:"lineas"`
	TotalInsumos  decimal.Decimal      `json:"total_insumos"`
	CostoManoObra decimal.Decimal      `json:"costo_mano_obra"`
	Total         decimal.Decimal      `json:"total"`
}
