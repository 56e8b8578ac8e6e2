package model

import (
	"time"

	"github.com/google/uuid"
)

// Usuario is the read side of the user directory; accounts are managed elsewhere.
type Usuario struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DNI       string    `gorm:"uniqueIndex;not null"`
	Nombres   string    `gorm:"not null"`
	Apellidos string    `gorm:"not null"`
	Email     *string
	Activo    bool `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NombreCompleto returns "{nombres} {apellidos}".
func (u *Usuario) NombreCompleto() string {
	return u.Nombres + " " + u.Apellidos
}
