package repository

import (
	"context"

	"agrotic/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReservaRepository is the reservation ledger plus its state lookup table.
type ReservaRepository interface {
	ListEstados(ctx context.Context) ([]model.EstadoReserva, error)

	// FindByID preloads Estado and Lote.Producto.Categoria.
	FindByID(ctx context.Context, id uuid.UUID) (*model.Reserva, error)
	ListByActividad(ctx context.Context, actividadID uuid.UUID) ([]model.Reserva, error)

	// Used inside transactions. FindByIDForUpdateTx locks the reservation row.
	FindByIDForUpdateTx(tx *gorm.DB, id uuid.UUID) (*model.Reserva, error)
	CreateTx(tx *gorm.DB, r *model.Reserva) error
	UpdateTx(tx *gorm.DB, r *model.Reserva) error
	DeleteTx(tx *gorm.DB, id uuid.UUID) error
	DeleteByLoteTx(tx *gorm.DB, loteID uuid.UUID) error

	DB() *gorm.DB
}

type reservaRepo struct{ db *gorm.DB }

func NewReservaRepository(db *gorm.DB) ReservaRepository { return &reservaRepo{db: db} }

func (r *reservaRepo) DB() *gorm.DB { return r.db }

func (r *reservaRepo) ListEstados(ctx context.Context) ([]model.EstadoReserva, error) {
	var estados []model.EstadoReserva
	err := r.db.WithContext(ctx).Order("id ASC").Find(&estados).Error
	return estados, err
}

func (r *reservaRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Reserva, error) {
	var res model.Reserva
	err := r.db.WithContext(ctx).
		Preload("Estado").
		Preload("Lote.Producto.Categoria").
		First(&res, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *reservaRepo) ListByActividad(ctx context.Context, actividadID uuid.UUID) ([]model.Reserva, error) {
	var reservas []model.Reserva
	err := r.db.WithContext(ctx).
		Preload("Estado").
		Preload("Lote.Producto.Categoria").
		Where("actividad_id = ?", actividadID).
		Order("created_at ASC").
		Find(&reservas).Error
	return reservas, err
}

func (r *reservaRepo) FindByIDForUpdateTx(tx *gorm.DB, id uuid.UUID) (*model.Reserva, error) {
	var res model.Reserva
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&res, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *reservaRepo) CreateTx(tx *gorm.DB, res *model.Reserva) error {
	return tx.Omit(clause.Associations).Create(res).Error
}

func (r *reservaRepo) UpdateTx(tx *gorm.DB, res *model.Reserva) error {
	return tx.Model(&model.Reserva{}).Where("id = ?", res.ID).Updates(map[string]interface{}{
		"cantidad_reservada": res.CantidadReservada,
		"cantidad_usada":     res.CantidadUsada,
		"cantidad_devuelta":  res.CantidadDevuelta,
		"estado_id":          res.EstadoID,
	}).Error
}

func (r *reservaRepo) DeleteTx(tx *gorm.DB, id uuid.UUID) error {
	return tx.Delete(&model.Reserva{}, "id = ?", id).Error
}

func (r *reservaRepo) DeleteByLoteTx(tx *gorm.DB, loteID uuid.UUID) error {
	return tx.Where("lote_id = ?", loteID).Delete(&model.Reserva{}).Error
}
