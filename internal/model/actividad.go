package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Actividad is a field task tied to a crop zone. Estado=true means in progress,
// false means finalized; the transition is one-way.
type Actividad struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Descripcion          string    `gorm:"not null"`
	CultivoZonaID        uuid.UUID `gorm:"type:uuid;not null;index"`
	CategoriaActividadID uuid.UUID `gorm:"type:uuid;not null"`
	FechaAsignacion      time.Time `gorm:"not null"`
	DNIResponsable       string    `gorm:"column:dni_responsable;not null;index"`
	Estado               bool      `gorm:"not null;default:true"`

	// Stamped at finalization
	FechaFinalizacion *time.Time
	Observacion       *string
	ImgURL            *string
	HorasDedicadas    *decimal.Decimal `gorm:"type:decimal(8,2)"`
	PrecioHora        *decimal.Decimal `gorm:"type:decimal(12,2)"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Usuarios []UsuarioActividad `gorm:"foreignKey:ActividadID"`
	Reservas []Reserva          `gorm:"foreignKey:ActividadID"`
}

func (Actividad) TableName() string { return "actividades" }

// UsuarioActividad assigns a user to an activity.
type UsuarioActividad struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ActividadID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_actividad_usuario"`
	UsuarioID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_actividad_usuario"`
	CreatedAt   time.Time

	Usuario *Usuario `gorm:"foreignKey:UsuarioID"`
}

func (UsuarioActividad) TableName() string { return "usuarios_x_actividades" }
