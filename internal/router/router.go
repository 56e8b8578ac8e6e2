package router

import (
	"context"
	"fmt"
	"time"

	"agrotic/internal/config"
	"agrotic/internal/handler"
	"agrotic/internal/infra"
	"agrotic/internal/middleware"
	"agrotic/internal/repository"
	"agrotic/internal/service"
	"agrotic/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
//
// rdb may be nil: locks then fall back to an in-process mutex and movement
// notifications are not published.
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*gin.Engine, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(1000, time.Minute)) // 1000 req/min per IP

	// ── Repositories ─────────────────────────────────────────────────────────
	usuarioRepo := repository.NewUsuarioRepository(db)
	productoRepo := repository.NewProductoRepository(db)
	loteRepo := repository.NewLoteRepository(db)
	reservaRepo := repository.NewReservaRepository(db)
	movimientoRepo := repository.NewMovimientoRepository(db)
	actividadRepo := repository.NewActividadRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	estados, err := service.CargarEstadosReserva(ctx, reservaRepo)
	if err != nil {
		return nil, fmt.Errorf("estados de reserva: %w", err)
	}

	// ── Infrastructure ───────────────────────────────────────────────────────
	var locker service.Locker = service.NewLocalLocker()
	var notificador service.Notificador
	if rdb != nil {
		locker = infra.NewRedisLocker(rdb, time.Duration(cfg.LockTTLSeconds)*time.Second)
		notificador = worker.NewDispatcher(rdb)
	}

	// ── Services ─────────────────────────────────────────────────────────────
	movimientoSvc := service.NewMovimientoService(movimientoRepo, usuarioRepo, notificador)
	loteSvc := service.NewLoteService(loteRepo, productoRepo, reservaRepo, movimientoRepo, movimientoSvc, locker, estados)
	reservaSvc := service.NewReservaService(reservaRepo, loteRepo, productoRepo, actividadRepo, movimientoSvc, locker, estados)
	actividadSvc := service.NewActividadService(actividadRepo, reservaRepo, usuarioRepo, reservaSvc, estados)

	// ── Handlers ─────────────────────────────────────────────────────────────
	actividadesH := handler.NewActividadesHandler(actividadSvc, reservaSvc)
	reservasH := handler.NewReservasHandler(reservaSvc)
	lotesH := handler.NewLotesHandler(loteSvc)
	movimientosH := handler.NewMovimientosHandler(movimientoSvc)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(db, rdb))

	// Protected routes
	jwtMW := middleware.JWTAuth(cfg.JWTSecret)
	v1 := r.Group("/v1", jwtMW)
	{
		act := v1.Group("/actividades")
		{
			act.POST("", actividadesH.Crear)
			act.GET("", actividadesH.Listar)
			act.GET("/:id", actividadesH.ObtenerPorID)
			act.PATCH("/:id", actividadesH.Actualizar)
			act.PUT("/:id", actividadesH.ActualizarCompleto)
			act.POST("/:id/finalizar", actividadesH.Finalizar)
			act.DELETE("/:id", actividadesH.Eliminar)
			act.GET("/:id/costo", actividadesH.Costo)
			act.GET("/:id/reservas", actividadesH.Reservas)
		}

		res := v1.Group("/reservas")
		{
			res.POST("", reservasH.Reservar)
			res.POST("/por-producto", reservasH.ReservarPorProducto)
			res.POST("/:id/confirmar", reservasH.ConfirmarUso)
			res.POST("/:id/cancelar", reservasH.Cancelar)
		}

		// Reads are open to every authenticated user; lot writes are
		// administrador / instructor only.
		lotes := v1.Group("/lotes")
		{
			lotes.GET("", lotesH.Listar)
			lotes.GET("/disponibles", lotesH.Disponibles)
			lotes.GET("/buscar", lotesH.Buscar)
			lotes.GET("/:id", lotesH.ObtenerPorID)
		}
		lotesW := v1.Group("/lotes", middleware.RequireRole(RolesInventario...))
		{
			lotesW.POST("", lotesH.Crear)
			lotesW.PATCH("/:id", lotesH.Actualizar)
			lotesW.DELETE("/:id", lotesH.Eliminar)
		}

		v1.GET("/movimientos", movimientosH.Listar)
	}

	return r, nil
}

// RolesInventario may create, edit and remove lots.
var RolesInventario = []string{"administrador", "instructor"}
