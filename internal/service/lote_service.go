package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"agrotic/internal/apierror"
	"agrotic/internal/dto"
	"agrotic/internal/model"
	"agrotic/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LoteService owns lot quantities outside of reservation settlement.
type LoteService interface {
	Crear(ctx context.Context, req dto.CrearLoteRequest, dniActor string) (*dto.LoteResponse, error)
	ObtenerPorID(ctx context.Context, id uuid.UUID) (*dto.LoteResponse, error)
	Listar(ctx context.Context, filter dto.LoteFilter) (*dto.LoteListResponse, error)
	// ListarDisponibles groups lots with availability by product; products holding
	// returned stock come first so it is consumed before fresh packages.
	ListarDisponibles(ctx context.Context) ([]dto.ProductoDisponibleResponse, error)
	Buscar(ctx context.Context, filter dto.BusquedaLotesFilter) (*dto.ProductosDisponiblesResponse, error)
	Actualizar(ctx context.Context, id uuid.UUID, req dto.ActualizarLoteRequest, dniActor string) (*dto.LoteResponse, error)
	Eliminar(ctx context.Context, id uuid.UUID) error
}

type loteService struct {
	repo         repository.LoteRepository
	productoRepo repository.ProductoRepository
	reservaRepo  repository.ReservaRepository
	movimientos  MovimientoService
	movRepo      repository.MovimientoRepository
	locker       Locker
	estados      EstadosReserva
}

func NewLoteService(
	repo repository.LoteRepository,
	productoRepo repository.ProductoRepository,
	reservaRepo repository.ReservaRepository,
	movRepo repository.MovimientoRepository,
	movimientos MovimientoService,
	locker Locker,
	estados EstadosReserva,
) LoteService {
	return &loteService{
		repo:         repo,
		productoRepo: productoRepo,
		reservaRepo:  reservaRepo,
		movimientos:  movimientos,
		movRepo:      movRepo,
		locker:       locker,
		estados:      estados,
	}
}

// ── Crear ─────────────────────────────────────────────────────────────────────

func (s *loteService) Crear(ctx context.Context, req dto.CrearLoteRequest, dniActor string) (*dto.LoteResponse, error) {
	productoID, err := parseID(req.ProductoID, "producto_id")
	if err != nil {
		return nil, err
	}
	bodegaID, err := parseID(req.BodegaID, "bodega_id")
	if err != nil {
		return nil, err
	}
	if req.Stock.IsNegative() {
		return nil, apierror.Invalid("el stock no puede ser negativo")
	}

	p, err := s.productoRepo.FindByID(ctx, productoID)
	if err != nil {
		return nil, noEncontrado(err, "producto")
	}

	stock := r2(req.Stock)
	l := &model.Lote{
		ProductoID:         productoID,
		BodegaID:           bodegaID,
		Stock:              stock,
		CantidadDisponible: r2(stock.Mul(capacidad(p))),
		CantidadParcial:    decimal.Zero,
		FechaVencimiento:   req.FechaVencimiento,
	}
	if err := s.repo.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("crear lote: %w", err)
	}
	l.Producto = p

	auditar("movimiento", l.ID, s.movimientos.Registrar(ctx, nil, RegistroMovimiento{
		LoteID:      l.ID,
		Tipo:        model.TipoMovimientoAjuste,
		Cantidad:    l.CantidadDisponible,
		Observacion: fmt.Sprintf("Ingreso de lote: %s paquetes de %s", stock, p.Nombre),
		Responsable: dniActor,
	}))

	return s.toResponse(l), nil
}

// capacidad is the product's presentation size; unset or non-positive counts as 1.
func capacidad(p *model.Producto) decimal.Decimal {
	if p == nil || !p.CapacidadPresentacion.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return p.CapacidadPresentacion
}

// ── Lectura ───────────────────────────────────────────────────────────────────

func (s *loteService) ObtenerPorID(ctx context.Context, id uuid.UUID) (*dto.LoteResponse, error) {
	l, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, noEncontrado(err, "lote")
	}
	return s.toResponse(l), nil
}

func (s *loteService) Listar(ctx context.Context, filter dto.LoteFilter) (*dto.LoteListResponse, error) {
	page, limit := paginacion(filter.Page, filter.Limit)
	repoFilter := repository.LoteFilter{Page: page, Limit: limit}
	if filter.ProductoID != "" {
		id, err := parseID(filter.ProductoID, "producto_id")
		if err != nil {
			return nil, err
		}
		repoFilter.ProductoID = &id
	}

	lotes, total, err := s.repo.List(ctx, repoFilter)
	if err != nil {
		return nil, err
	}
	data := make([]dto.LoteResponse, 0, len(lotes))
	for i := range lotes {
		data = append(data, *s.toResponse(&lotes[i]))
	}
	return &dto.LoteListResponse{
		Data:       data,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPaginas(total, limit),
	}, nil
}

func (s *loteService) ListarDisponibles(ctx context.Context) ([]dto.ProductoDisponibleResponse, error) {
	lotes, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return s.agruparPorProducto(lotes), nil
}

func (s *loteService) Buscar(ctx context.Context, filter dto.BusquedaLotesFilter) (*dto.ProductosDisponiblesResponse, error) {
	lotes, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(filter.Q))
	if q != "" {
		filtrados := lotes[:0]
		for _, l := range lotes {
			if coincide(l.Producto, q) {
				filtrados = append(filtrados, l)
			}
		}
		lotes = filtrados
	}

	grupos := s.agruparPorProducto(lotes)
	page, limit := paginacion(filter.Page, filter.Limit)
	total := int64(len(grupos))
	desde := (page - 1) * limit
	if desde > len(grupos) {
		desde = len(grupos)
	}
	hasta := desde + limit
	if hasta > len(grupos) {
		hasta = len(grupos)
	}
	return &dto.ProductosDisponiblesResponse{
		Data:       grupos[desde:hasta],
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPaginas(total, limit),
	}, nil
}

func coincide(p *model.Producto, q string) bool {
	if p == nil {
		return false
	}
	if strings.Contains(strings.ToLower(p.Nombre), q) {
		return true
	}
	return p.SKU != nil && strings.Contains(strings.ToLower(*p.SKU), q)
}

func (s *loteService) agruparPorProducto(lotes []model.Lote) []dto.ProductoDisponibleResponse {
	indice := make(map[uuid.UUID]int)
	var grupos []dto.ProductoDisponibleResponse

	for i := range lotes {
		l := &lotes[i]
		pos, ok := indice[l.ProductoID]
		if !ok {
			g := dto.ProductoDisponibleResponse{
				ProductoID:      l.ProductoID.String(),
				TotalDisponible: decimal.Zero,
				TotalParcial:    decimal.Zero,
				EsDivisible:     true,
			}
			if l.Producto != nil {
				g.Nombre = l.Producto.Nombre
				g.SKU = l.Producto.SKU
				g.UnidadMedida = l.Producto.UnidadMedida
				g.EsDivisible = l.Producto.EsDivisible()
			}
			grupos = append(grupos, g)
			pos = len(grupos) - 1
			indice[l.ProductoID] = pos
		}

		resp := s.toResponse(l)
		g := &grupos[pos]
		g.TotalDisponible = r2(g.TotalDisponible.Add(resp.DisponibleParaReserva))
		g.TotalParcial = r2(g.TotalParcial.Add(l.CantidadParcial))
		g.Lotes = append(g.Lotes, *resp)
	}

	out := make([]dto.ProductoDisponibleResponse, 0, len(grupos))
	for _, g := range grupos {
		if g.TotalDisponible.IsPositive() {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].TotalParcial.IsPositive(), out[j].TotalParcial.IsPositive()
		if pi != pj {
			return pi
		}
		return out[i].TotalDisponible.GreaterThan(out[j].TotalDisponible)
	})
	return out
}

// ── Actualizar ────────────────────────────────────────────────────────────────

func (s *loteService) Actualizar(ctx context.Context, id uuid.UUID, req dto.ActualizarLoteRequest, dniActor string) (*dto.LoteResponse, error) {
	if err := validarNoNegativos(map[string]*decimal.Decimal{
		"stock":               req.Stock,
		"cantidad_disponible": req.CantidadDisponible,
		"cantidad_parcial":    req.CantidadParcial,
	}); err != nil {
		return nil, err
	}
	if req.Producto != nil {
		if err := validarNoNegativos(map[string]*decimal.Decimal{
			"precio":                 req.Producto.Precio,
			"capacidad_presentacion": req.Producto.CapacidadPresentacion,
		}); err != nil {
			return nil, err
		}
	}
	var bodegaID *uuid.UUID
	if req.BodegaID != nil {
		b, err := parseID(*req.BodegaID, "bodega_id")
		if err != nil {
			return nil, err
		}
		bodegaID = &b
	}

	actual, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, noEncontrado(err, "lote")
	}
	unlock, err := s.locker.Lock(ctx, claveProducto(actual.ProductoID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var actualizado *model.Lote
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		l, err := s.repo.FindByIDForUpdateTx(tx, id)
		if err != nil {
			return noEncontrado(err, "lote")
		}
		antes := *l

		cambiaStock := req.Stock != nil && !r2(*req.Stock).Equal(l.Stock)
		cambiaVencimiento := req.FechaVencimiento != nil && !mismaFecha(req.FechaVencimiento, l.FechaVencimiento)
		if (cambiaStock || cambiaVencimiento) && s.estados.tieneReservaActiva(l) {
			return apierror.Conflict("no se puede modificar stock ni fecha de vencimiento con reservas activas")
		}

		var camposProducto []string
		if req.Producto != nil && l.Producto != nil {
			camposProducto = aplicarCambiosProducto(l.Producto, req.Producto)
			if len(camposProducto) > 0 {
				if err := s.productoRepo.UpdateTx(tx, l.Producto); err != nil {
					return fmt.Errorf("actualizar producto: %w", err)
				}
			}
		}

		if cambiaStock {
			l.Stock = r2(*req.Stock)
			l.CantidadDisponible = r2(l.Stock.Mul(capacidad(l.Producto)))
		}
		if req.CantidadDisponible != nil {
			l.CantidadDisponible = r2(*req.CantidadDisponible)
		}
		if req.CantidadParcial != nil {
			l.CantidadParcial = r2(*req.CantidadParcial)
		}
		if cambiaVencimiento {
			l.FechaVencimiento = req.FechaVencimiento
		}
		if bodegaID != nil {
			l.BodegaID = *bodegaID
		}

		if DisponibleParaReserva(l, s.estados).IsNegative() {
			return apierror.Conflict("el ajuste deja reservas activas sin cobertura")
		}
		if err := s.repo.UpdateTx(tx, l); err != nil {
			return fmt.Errorf("actualizar lote: %w", err)
		}

		ajuste := registroAjuste(&antes, l, camposProducto, cambiaVencimiento, bodegaID != nil)
		if ajuste != nil {
			ajuste.Responsable = dniActor
			auditar("movimiento", l.ID, s.movimientos.Registrar(ctx, tx, *ajuste))
		}
		actualizado = l
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return s.toResponse(actualizado), nil
}

func validarNoNegativos(campos map[string]*decimal.Decimal) error {
	for nombre, v := range campos {
		if v != nil && v.IsNegative() {
			return apierror.Invalid(nombre + " no puede ser negativo")
		}
	}
	return nil
}

func mismaFecha(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// aplicarCambiosProducto merges the patch into p and returns the changed fields.
func aplicarCambiosProducto(p *model.Producto, req *dto.ActualizarProductoLoteRequest) []string {
	var campos []string
	if req.Nombre != nil && *req.Nombre != p.Nombre {
		p.Nombre = *req.Nombre
		campos = append(campos, "nombre")
	}
	if req.Precio != nil && !r2(*req.Precio).Equal(p.Precio) {
		p.Precio = r2(*req.Precio)
		campos = append(campos, "precio")
	}
	if req.CapacidadPresentacion != nil && !r2(*req.CapacidadPresentacion).Equal(p.CapacidadPresentacion) {
		p.CapacidadPresentacion = r2(*req.CapacidadPresentacion)
		campos = append(campos, "capacidad_presentacion")
	}
	return campos
}

// registroAjuste describes the Ajuste entry for an update, or nil when nothing
// changed. The quantity is |Δdisponible|, else |Δparcial|, else zero.
func registroAjuste(antes, despues *model.Lote, camposProducto []string, cambiaVencimiento, cambiaBodega bool) *RegistroMovimiento {
	deltaDisp := despues.CantidadDisponible.Sub(antes.CantidadDisponible).Abs()
	deltaParcial := despues.CantidadParcial.Sub(antes.CantidadParcial).Abs()

	reg := &RegistroMovimiento{LoteID: despues.ID, Tipo: model.TipoMovimientoAjuste}
	switch {
	case !deltaDisp.IsZero():
		reg.Cantidad = deltaDisp
		reg.Observacion = fmt.Sprintf("Ajuste de cantidad disponible: %s → %s",
			antes.CantidadDisponible.StringFixed(2), despues.CantidadDisponible.StringFixed(2))
	case !deltaParcial.IsZero():
		reg.Cantidad = deltaParcial
		reg.Observacion = fmt.Sprintf("Ajuste de cantidad parcial: %s → %s",
			antes.CantidadParcial.StringFixed(2), despues.CantidadParcial.StringFixed(2))
	default:
		var campos []string
		campos = append(campos, camposProducto...)
		if cambiaVencimiento {
			campos = append(campos, "fecha_vencimiento")
		}
		if cambiaBodega {
			campos = append(campos, "bodega")
		}
		if len(campos) == 0 {
			return nil
		}
		reg.Cantidad = decimal.Zero
		reg.Observacion = "Actualización sin cambio de cantidades: " + strings.Join(campos, ", ")
	}
	return reg
}

// ── Eliminar ──────────────────────────────────────────────────────────────────

func (s *loteService) Eliminar(ctx context.Context, id uuid.UUID) error {
	actual, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return noEncontrado(err, "lote")
	}
	unlock, err := s.locker.Lock(ctx, claveProducto(actual.ProductoID))
	if err != nil {
		return err
	}
	defer unlock()

	return runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		l, err := s.repo.FindByIDForUpdateTx(tx, id)
		if err != nil {
			return noEncontrado(err, "lote")
		}
		if s.estados.tieneReservaActiva(l) {
			return apierror.Conflict("el lote tiene reservas activas")
		}
		if l.Stock.IsPositive() && l.CantidadDisponible.Add(l.CantidadParcial).IsPositive() {
			return apierror.Conflict("el lote aún tiene stock sin consumir")
		}

		if err := s.movRepo.DeleteByLoteTx(tx, id); err != nil {
			return fmt.Errorf("eliminar movimientos del lote: %w", err)
		}
		if err := s.reservaRepo.DeleteByLoteTx(tx, id); err != nil {
			return fmt.Errorf("eliminar reservas del lote: %w", err)
		}
		return s.repo.DeleteTx(tx, id)
	})
}

// ── Mapping ───────────────────────────────────────────────────────────────────

func (s *loteService) toResponse(l *model.Lote) *dto.LoteResponse {
	return loteToResponse(l, s.estados)
}

func loteToResponse(l *model.Lote, estados EstadosReserva) *dto.LoteResponse {
	resp := &dto.LoteResponse{
		ID:                    l.ID.String(),
		ProductoID:            l.ProductoID.String(),
		BodegaID:              l.BodegaID.String(),
		Stock:                 l.Stock,
		CantidadDisponible:    l.CantidadDisponible,
		CantidadParcial:       l.CantidadParcial,
		DisponibleParaReserva: DisponibleParaReserva(l, estados),
		CreatedAt:             l.CreatedAt.Format(time.RFC3339),
	}
	if l.Producto != nil {
		resp.ProductoNombre = l.Producto.Nombre
	}
	if l.FechaVencimiento != nil {
		v := l.FechaVencimiento.Format("2006-01-02")
		resp.FechaVencimiento = &v
	}
	return resp
}

func paginacion(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	return page, limit
}

func totalPaginas(total int64, limit int) int {
	return int(math.Ceil(float64(total) / float64(limit)))
}
