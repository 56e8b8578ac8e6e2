// cmd/seed/main.go: crea datos de demo y emite un token de desarrollo.
// Uso: go run ./cmd/seed
package main

import (
	"fmt"
	"os"
	"time"

	"agrotic/internal/config"
	"agrotic/internal/infra"
	"agrotic/internal/middleware"
	"agrotic/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	demoDNI = "30111222"
	demoRol = "administrador"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.IsProduction() {
		log.Fatal().Msg("seed refuses to run with APP_ENV=production")
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL, infra.DatabaseOptions{AutoMigrate: true})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	usuario, err := sembrar(db)
	if err != nil {
		log.Fatal().Err(err).Msg("seed failed")
	}

	if cfg.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET empty: no development token emitted")
		return
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.JWTClaims{
		UsuarioID: usuario.ID.String(),
		DNI:       usuario.DNI,
		Rol:       demoRol,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   usuario.ID.String(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to sign token")
	}
	fmt.Printf("✅ Datos de demo listos. Token (24h) para DNI %s:\n%s\n", usuario.DNI, token)
}

// sembrar is idempotent: rows are matched by their unique name / DNI / SKU.
func sembrar(db *gorm.DB) (*model.Usuario, error) {
	var usuario *model.Usuario
	err := db.Transaction(func(tx *gorm.DB) error {
		usuario = &model.Usuario{DNI: demoDNI, Nombres: "Ana", Apellidos: "Gómez", Activo: true}
		if err := upsert(tx, usuario, "dni"); err != nil {
			return fmt.Errorf("usuario: %w", err)
		}

		agroquimicos := &model.Categoria{Nombre: "Agroquímicos", EsDivisible: true}
		herramientas := &model.Categoria{Nombre: "Herramientas", EsDivisible: false}
		for _, c := range []*model.Categoria{agroquimicos, herramientas} {
			if err := upsert(tx, c, "nombre"); err != nil {
				return fmt.Errorf("categoria %s: %w", c.Nombre, err)
			}
		}

		bodega := &model.Bodega{Nombre: "Bodega central"}
		if err := upsert(tx, bodega, "nombre"); err != nil {
			return fmt.Errorf("bodega: %w", err)
		}

		vidaUtil := 200
		productos := []struct {
			p     *model.Producto
			stock int64
		}{
			{&model.Producto{
				Nombre: "Glifosato 1L", SKU: strPtr("AGQ-GLI-1L"), UnidadMedida: "ml",
				Precio: decimal.NewFromInt(48000), CapacidadPresentacion: decimal.NewFromInt(1000),
				CategoriaID: agroquimicos.ID,
			}, 4},
			{&model.Producto{
				Nombre: "Pala", SKU: strPtr("HER-PALA"), UnidadMedida: "unidad",
				Precio: decimal.NewFromInt(35000), CapacidadPresentacion: decimal.NewFromInt(1),
				CategoriaID: herramientas.ID, VidaUtilPromedioPorUsos: &vidaUtil,
			}, 6},
		}
		for _, item := range productos {
			if err := upsert(tx, item.p, "sku"); err != nil {
				return fmt.Errorf("producto %s: %w", item.p.Nombre, err)
			}
			var n int64
			if err := tx.Model(&model.Lote{}).Where("producto_id = ?", item.p.ID).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				continue
			}
			stock := decimal.NewFromInt(item.stock)
			lote := &model.Lote{
				ID:                 uuid.New(),
				ProductoID:         item.p.ID,
				BodegaID:           bodega.ID,
				Stock:              stock,
				CantidadDisponible: stock.Mul(item.p.CapacidadPresentacion),
				CantidadParcial:    decimal.Zero,
			}
			if err := tx.Omit(clause.Associations).Create(lote).Error; err != nil {
				return fmt.Errorf("lote %s: %w", item.p.Nombre, err)
			}
		}
		return nil
	})
	return usuario, err
}

// upsert inserts row or, when the unique column already exists, loads the
// stored row into it so its ID can be referenced.
func upsert(tx *gorm.DB, row interface{}, columna string) error {
	if err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: columna}}, DoNothing: true}).
		Create(row).Error; err != nil {
		return err
	}
	var valor interface{}
	switch r := row.(type) {
	case *model.Usuario:
		valor = r.DNI
	case *model.Categoria:
		valor = r.Nombre
	case *model.Bodega:
		valor = r.Nombre
	case *model.Producto:
		valor = *r.SKU
	}
	return tx.Where(columna+" = ?", valor).First(row).Error
}

func strPtr(s string) *string { return &s }
