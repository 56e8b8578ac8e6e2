package repository

import (
	"context"

	"agrotic/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ActividadFilter defines filters for listing activities.
type ActividadFilter struct {
	Estado         *bool
	DNIResponsable string
	Page           int
	Limit          int
}

type ActividadRepository interface {
	Create(ctx context.Context, a *model.Actividad) error
	// FindByID preloads the assigned users.
	FindByID(ctx context.Context, id uuid.UUID) (*model.Actividad, error)
	List(ctx context.Context, filter ActividadFilter) ([]model.Actividad, int64, error)
	Update(ctx context.Context, a *model.Actividad) error

	ListUsuarios(ctx context.Context, actividadID uuid.UUID) ([]model.UsuarioActividad, error)

	// Used inside transactions; callers must pass the tx instance
	UpdateTx(tx *gorm.DB, a *model.Actividad) error
	CreateUsuarioTx(tx *gorm.DB, ua *model.UsuarioActividad) error
	DeleteUsuarioTx(tx *gorm.DB, id uuid.UUID) error
	DeleteUsuariosByActividadTx(tx *gorm.DB, actividadID uuid.UUID) error
	DeleteTx(tx *gorm.DB, id uuid.UUID) error

	DB() *gorm.DB
}

type actividadRepo struct{ db *gorm.DB }

func NewActividadRepository(db *gorm.DB) ActividadRepository { return &actividadRepo{db: db} }

func (r *actividadRepo) DB() *gorm.DB { return r.db }

func (r *actividadRepo) Create(ctx context.Context, a *model.Actividad) error {
	// Usuarios rows are inserted with the activity; reservations never are.
	return r.db.WithContext(ctx).Omit("Reservas").Create(a).Error
}

func (r *actividadRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Actividad, error) {
	var a model.Actividad
	if err := r.db.WithContext(ctx).Preload("Usuarios").First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *actividadRepo) List(ctx context.Context, filter ActividadFilter) ([]model.Actividad, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Actividad{})
	if filter.Estado != nil {
		q = q.Where("estado = ?", *filter.Estado)
	}
	if filter.DNIResponsable != "" {
		q = q.Where("dni_responsable = ?", filter.DNIResponsable)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	var actividades []model.Actividad
	err := q.Preload("Usuarios").
		Order("fecha_asignacion DESC").
		Limit(filter.Limit).Offset(offset).
		Find(&actividades).Error
	return actividades, total, err
}

func (r *actividadRepo) Update(ctx context.Context, a *model.Actividad) error {
	return r.UpdateTx(r.db.WithContext(ctx), a)
}

func (r *actividadRepo) UpdateTx(tx *gorm.DB, a *model.Actividad) error {
	return tx.Omit(clause.Associations).Save(a).Error
}

func (r *actividadRepo) ListUsuarios(ctx context.Context, actividadID uuid.UUID) ([]model.UsuarioActividad, error) {
	var list []model.UsuarioActividad
	err := r.db.WithContext(ctx).Where("actividad_id = ?", actividadID).Find(&list).Error
	return list, err
}

func (r *actividadRepo) CreateUsuarioTx(tx *gorm.DB, ua *model.UsuarioActividad) error {
	return tx.Omit(clause.Associations).Create(ua).Error
}

func (r *actividadRepo) DeleteUsuarioTx(tx *gorm.DB, id uuid.UUID) error {
	return tx.Delete(&model.UsuarioActividad{}, "id = ?", id).Error
}

func (r *actividadRepo) DeleteUsuariosByActividadTx(tx *gorm.DB, actividadID uuid.UUID) error {
	return tx.Where("actividad_id = ?", actividadID).Delete(&model.UsuarioActividad{}).Error
}

func (r *actividadRepo) DeleteTx(tx *gorm.DB, id uuid.UUID) error {
	return tx.Delete(&model.Actividad{}, "id = ?", id).Error
}
