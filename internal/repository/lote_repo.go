package repository

import (
	"context"

	"agrotic/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LoteFilter defines filters for listing lots.
type LoteFilter struct {
	ProductoID *uuid.UUID
	Page       int
	Limit      int
}

// LoteRepository owns lotes_inventario. Every read returns the lot with its
// Producto (and Categoria) and its Reservas (and Estado) loaded, which is what
// the availability formula needs.
type LoteRepository interface {
	Create(ctx context.Context, l *model.Lote) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Lote, error)
	List(ctx context.Context, filter LoteFilter) ([]model.Lote, int64, error)
	ListAll(ctx context.Context) ([]model.Lote, error)

	// Used inside transactions; rows are locked FOR UPDATE until commit.
	FindByIDForUpdateTx(tx *gorm.DB, id uuid.UUID) (*model.Lote, error)
	FindByProductoForUpdateTx(tx *gorm.DB, productoID uuid.UUID) ([]model.Lote, error)

	UpdateTx(tx *gorm.DB, l *model.Lote) error
	DeleteTx(tx *gorm.DB, id uuid.UUID) error

	// DB exposes the underlying *gorm.DB so services can open transactions.
	DB() *gorm.DB
}

type loteRepo struct{ db *gorm.DB }

func NewLoteRepository(db *gorm.DB) LoteRepository { return &loteRepo{db: db} }

func (r *loteRepo) DB() *gorm.DB { return r.db }

func withRelaciones(q *gorm.DB) *gorm.DB {
	return q.Preload("Producto.Categoria").Preload("Reservas.Estado")
}

func (r *loteRepo) Create(ctx context.Context, l *model.Lote) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(l).Error
}

func (r *loteRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Lote, error) {
	var l model.Lote
	if err := withRelaciones(r.db.WithContext(ctx)).First(&l, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *loteRepo) List(ctx context.Context, filter LoteFilter) ([]model.Lote, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Lote{})
	if filter.ProductoID != nil {
		q = q.Where("producto_id = ?", *filter.ProductoID)
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
		limit = 20
	}
	offset := (page - 1) * limit

	var lotes []model.Lote
	err := withRelaciones(q).Order("created_at DESC").Offset(offset).Limit(limit).Find(&lotes).Error
	return lotes, total, err
}

func (r *loteRepo) ListAll(ctx context.Context) ([]model.Lote, error) {
	var lotes []model.Lote
	err := withRelaciones(r.db.WithContext(ctx)).Order("created_at ASC").Find(&lotes).Error
	return lotes, err
}

// FindByIDForUpdateTx locks the lot row first and loads relations in separate
// statements; Postgres rejects FOR UPDATE on the nullable side of a join.
func (r *loteRepo) FindByIDForUpdateTx(tx *gorm.DB, id uuid.UUID) (*model.Lote, error) {
	var l model.Lote
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&l, "id = ?", id).Error; err != nil {
		return nil, err
	}
	if err := r.loadRelacionesTx(tx, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// FindByProductoForUpdateTx returns the product's lots oldest first, all locked.
func (r *loteRepo) FindByProductoForUpdateTx(tx *gorm.DB, productoID uuid.UUID) ([]model.Lote, error) {
	var lotes []model.Lote
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("producto_id = ?", productoID).
		Order("created_at ASC").
		Find(&lotes).Error
	if err != nil {
		return nil, err
	}
	for i := range lotes {
		if err := r.loadRelacionesTx(tx, &lotes[i]); err != nil {
			return nil, err
		}
	}
	return lotes, nil
}

func (r *loteRepo) loadRelacionesTx(tx *gorm.DB, l *model.Lote) error {
	var p model.Producto
	if err := tx.Preload("Categoria").First(&p, "id = ?", l.ProductoID).Error; err != nil {
		return err
	}
	l.Producto = &p
	return tx.Preload("Estado").Where("lote_id = ?", l.ID).Find(&l.Reservas).Error
}

func (r *loteRepo) UpdateTx(tx *gorm.DB, l *model.Lote) error {
	return tx.Model(&model.Lote{}).Where("id = ?", l.ID).Updates(map[string]interface{}{
		"bodega_id":           l.BodegaID,
		"stock":               l.Stock,
		"cantidad_disponible": l.CantidadDisponible,
		"cantidad_parcial":    l.CantidadParcial,
		"fecha_vencimiento":   l.FechaVencimiento,
	}).Error
}

func (r *loteRepo) DeleteTx(tx *gorm.DB, id uuid.UUID) error {
	return tx.Delete(&model.Lote{}, "id = ?", id).Error
}
