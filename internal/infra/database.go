package infra

import (
	"fmt"

	"agrotic/internal/model"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// DatabaseOptions toggles the optional parts of NewDatabase.
type DatabaseOptions struct {
	AutoMigrate bool
	Tracing     bool
}

// NewDatabase establishes a GORM connection backed by pgx, optionally runs
// AutoMigrate, then applies the idempotent SQL patches that GORM cannot express
// (CHECK constraints on lot quantities) and seeds the lookup tables.
func NewDatabase(dsn string, opts DatabaseOptions) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if opts.Tracing {
		if err := db.Use(otelgorm.NewPlugin()); err != nil {
			return nil, fmt.Errorf("otelgorm: %w", err)
		}
	}

	if opts.AutoMigrate {
		if err := RunMigrations(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// RunMigrations creates / updates all tables, applies schema patches and seeds
// lookup rows. Safe to run repeatedly; integration tests call it directly.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Categoria{},
		&model.Producto{},
		&model.Bodega{},
		&model.Usuario{},
		&model.EstadoReserva{},
		&model.TipoMovimiento{},
		&model.Lote{},
		&model.Actividad{},
		&model.UsuarioActividad{},
		&model.Reserva{},
		&model.Movimiento{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	if err := applySchemaPatches(db); err != nil {
		return fmt.Errorf("schema patches: %w", err)
	}
	return SeedLookups(db)
}

// applySchemaPatches runs idempotent DDL statements that GORM AutoMigrate cannot
// handle on its own. Each block is guarded by an existence check.
func applySchemaPatches(db *gorm.DB) error {
	patches := []string{
		`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_lotes_cantidad_disponible') THEN
		    ALTER TABLE lotes_inventario
		      ADD CONSTRAINT chk_lotes_cantidad_disponible CHECK (cantidad_disponible >= 0);
		  END IF;
		END $$`,
		`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_lotes_cantidad_parcial') THEN
		    ALTER TABLE lotes_inventario
		      ADD CONSTRAINT chk_lotes_cantidad_parcial CHECK (cantidad_parcial >= 0);
		  END IF;
		END $$`,
		`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_reservas_cantidades') THEN
		    ALTER TABLE reservas
		      ADD CONSTRAINT chk_reservas_cantidades
		      CHECK (cantidad_reservada >= 0 AND cantidad_usada >= 0 AND cantidad_devuelta >= 0);
		  END IF;
		END $$`,
		// lookups for the availability scan
		`CREATE INDEX IF NOT EXISTS idx_reservas_lote_estado ON reservas (lote_id, estado_id)`,
	}

	for _, sql := range patches {
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", sql[:min(len(sql), 60)], err)
		}
	}
	return nil
}

// SeedLookups inserts the reservation states and movement types by name.
// Ids are left to the database; services resolve them by name at startup.
func SeedLookups(db *gorm.DB) error {
	estados := []model.EstadoReserva{
		{Nombre: model.EstadoReservaReservado},
		{Nombre: model.EstadoReservaConfirmada},
		{Nombre: model.EstadoReservaCancelada},
	}
	if err := db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "nombre"}}, DoNothing: true}).
		Create(&estados).Error; err != nil {
		return fmt.Errorf("seed estados_reserva: %w", err)
	}
	tipos := []model.TipoMovimiento{
		{Nombre: model.TipoMovimientoReserva},
		{Nombre: model.TipoMovimientoDevolucion},
		{Nombre: model.TipoMovimientoAjuste},
	}
	if err := db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "nombre"}}, DoNothing: true}).
		Create(&tipos).Error; err != nil {
		return fmt.Errorf("seed tipos_movimiento: %w", err)
	}
	return nil
}
