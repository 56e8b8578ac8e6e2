package repository

import (
	"context"

	"agrotic/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MovimientoFilter defines filters for listing stock movements.
type MovimientoFilter struct {
	LoteID *uuid.UUID
	Tipo   string
	Page   int
	Limit  int
}

type MovimientoRepository interface {
	FindTipoByNombre(ctx context.Context, nombre string) (*model.TipoMovimiento, error)
	Create(ctx context.Context, m *model.Movimiento) error
	CreateTx(tx *gorm.DB, m *model.Movimiento) error
	DeleteByLoteTx(tx *gorm.DB, loteID uuid.UUID) error
	List(ctx context.Context, filter MovimientoFilter) ([]model.Movimiento, int64, error)
}

type movimientoRepo struct{ db *gorm.DB }

func NewMovimientoRepository(db *gorm.DB) MovimientoRepository {
	return &movimientoRepo{db: db}
}

func (r *movimientoRepo) FindTipoByNombre(ctx context.Context, nombre string) (*model.TipoMovimiento, error) {
	var t model.TipoMovimiento
	if err := r.db.WithContext(ctx).Where("nombre = ?", nombre).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *movimientoRepo) Create(ctx context.Context, m *model.Movimiento) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(m).Error
}

func (r *movimientoRepo) CreateTx(tx *gorm.DB, m *model.Movimiento) error {
	return tx.Omit(clause.Associations).Create(m).Error
}

func (r *movimientoRepo) DeleteByLoteTx(tx *gorm.DB, loteID uuid.UUID) error {
	return tx.Where("lote_id = ?", loteID).Delete(&model.Movimiento{}).Error
}

func (r *movimientoRepo) List(ctx context.Context, filter MovimientoFilter) ([]model.Movimiento, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Movimiento{})
	if filter.LoteID != nil {
		q = q.Where("movimientos.lote_id = ?", *filter.LoteID)
	}
	if filter.Tipo != "" {
		q = q.Joins("JOIN tipos_movimiento tm ON tm.id = movimientos.tipo_movimiento_id").
			Where("tm.nombre = ?", filter.Tipo)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	limit := filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	offset := (page - 1) * limit

	var movimientos []model.Movimiento
	err := q.Preload("TipoMovimiento").
		Order("movimientos.created_at DESC").
		Offset(offset).Limit(limit).
		Find(&movimientos).Error
	return movimientos, total, err
}
