package service

import (
	"context"
	"fmt"
	"time"

	"agrotic/internal/apierror"
	"agrotic/internal/dto"
	"agrotic/internal/model"
	"agrotic/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReservaService is the reservation ledger. Creating a reservation only claims
// availability; lot quantities move when the reservation is confirmed or
// cancelled.
type ReservaService interface {
	Reservar(ctx context.Context, req dto.ReservarLoteRequest, dniActor string) (*dto.ReservaResponse, error)
	// ReservarPorProducto picks the first lot, oldest first, that covers the
	// whole quantity. Reservations are never split across lots.
	ReservarPorProducto(ctx context.Context, req dto.ReservarProductoRequest, dniActor string) (*dto.ReservaResponse, error)
	ConfirmarUso(ctx context.Context, id uuid.UUID, req dto.ConfirmarUsoRequest, dniActor string) (*dto.ReservaResponse, error)
	Cancelar(ctx context.Context, id uuid.UUID, dniActor string) (*dto.ReservaResponse, error)
	ListarPorActividad(ctx context.Context, actividadID uuid.UUID) ([]dto.ReservaResponse, error)

	// CambiarCantidad changes the reserved quantity of an unsettled reservation.
	CambiarCantidad(ctx context.Context, id uuid.UUID, cantidad decimal.Decimal, dniActor string) error
	// Liberar settles an unsettled reservation with its recorded usage, returns
	// the remainder to the lot's partial pool and marks it Cancelada.
	Liberar(ctx context.Context, r *model.Reserva, dniActor string) (decimal.Decimal, error)
}

type reservaService struct {
	repo          repository.ReservaRepository
	loteRepo      repository.LoteRepository
	productoRepo  repository.ProductoRepository
	actividadRepo repository.ActividadRepository
	movimientos   MovimientoService
	locker        Locker
	estados       EstadosReserva
}

func NewReservaService(
	repo repository.ReservaRepository,
	loteRepo repository.LoteRepository,
	productoRepo repository.ProductoRepository,
	actividadRepo repository.ActividadRepository,
	movimientos MovimientoService,
	locker Locker,
	estados EstadosReserva,
) ReservaService {
	return &reservaService{
		repo:          repo,
		loteRepo:      loteRepo,
		productoRepo:  productoRepo,
		actividadRepo: actividadRepo,
		movimientos:   movimientos,
		locker:        locker,
		estados:       estados,
	}
}

// ── Reservar ──────────────────────────────────────────────────────────────────

func (s *reservaService) Reservar(ctx context.Context, req dto.ReservarLoteRequest, dniActor string) (*dto.ReservaResponse, error) {
	actividadID, err := parseID(req.ActividadID, "actividad_id")
	if err != nil {
		return nil, err
	}
	loteID, err := parseID(req.LoteID, "lote_id")
	if err != nil {
		return nil, err
	}
	cantidad, err := s.validarNuevaReserva(ctx, actividadID, req.Cantidad, req.EstadoID)
	if err != nil {
		return nil, err
	}

	actual, err := s.loteRepo.FindByID(ctx, loteID)
	if err != nil {
		return nil, noEncontrado(err, "lote")
	}
	unlock, err := s.locker.Lock(ctx, claveProducto(actual.ProductoID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var reserva *model.Reserva
	var lote *model.Lote
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		l, err := s.loteRepo.FindByIDForUpdateTx(tx, loteID)
		if err != nil {
			return noEncontrado(err, "lote")
		}
		if l.Producto == nil {
			return apierror.NotFound("producto")
		}
		if DisponibleParaReserva(l, s.estados).LessThan(cantidad) {
			return apierror.InsufficientStock()
		}
		reserva, err = s.crearTx(ctx, tx, actividadID, l, cantidad, dniActor)
		lote = l
		return err
	})
	if txErr != nil {
		return nil, txErr
	}
	return s.toResponse(reserva, lote), nil
}

func (s *reservaService) ReservarPorProducto(ctx context.Context, req dto.ReservarProductoRequest, dniActor string) (*dto.ReservaResponse, error) {
	actividadID, err := parseID(req.ActividadID, "actividad_id")
	if err != nil {
		return nil, err
	}
	productoID, err := parseID(req.ProductoID, "producto_id")
	if err != nil {
		return nil, err
	}
	cantidad, err := s.validarNuevaReserva(ctx, actividadID, req.Cantidad, req.EstadoID)
	if err != nil {
		return nil, err
	}
	return s.reservarPorProducto(ctx, actividadID, productoID, cantidad, dniActor)
}

func (s *reservaService) reservarPorProducto(ctx context.Context, actividadID, productoID uuid.UUID, cantidad decimal.Decimal, dniActor string) (*dto.ReservaResponse, error) {
	if _, err := s.productoRepo.FindByID(ctx, productoID); err != nil {
		return nil, noEncontrado(err, "producto")
	}
	unlock, err := s.locker.Lock(ctx, claveProducto(productoID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var reserva *model.Reserva
	var lote *model.Lote
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		lotes, err := s.loteRepo.FindByProductoForUpdateTx(tx, productoID)
		if err != nil {
			return err
		}
		for i := range lotes {
			if !DisponibleParaReserva(&lotes[i], s.estados).LessThan(cantidad) {
				lote = &lotes[i]
				break
			}
		}
		if lote == nil {
			return apierror.InsufficientStock()
		}
		reserva, err = s.crearTx(ctx, tx, actividadID, lote, cantidad, dniActor)
		return err
	})
	if txErr != nil {
		return nil, txErr
	}
	return s.toResponse(reserva, lote), nil
}

// validarNuevaReserva checks the quantity, the requested initial state and
// that the activity exists and is still open. It returns the rounded quantity.
func (s *reservaService) validarNuevaReserva(ctx context.Context, actividadID uuid.UUID, cantidad decimal.Decimal, estadoID *int) (decimal.Decimal, error) {
	cantidad = r2(cantidad)
	if !cantidad.IsPositive() {
		return decimal.Zero, apierror.Invalid("la cantidad debe ser mayor a cero")
	}
	if estadoID != nil && *estadoID != s.estados.Reservado {
		return decimal.Zero, apierror.Invalid("una reserva solo puede crearse en estado Reservado")
	}
	a, err := s.actividadRepo.FindByID(ctx, actividadID)
	if err != nil {
		return decimal.Zero, noEncontrado(err, "actividad")
	}
	if !a.Estado {
		return decimal.Zero, apierror.Conflict("la actividad ya fue finalizada")
	}
	return cantidad, nil
}

// crearTx inserts the reservation with the product snapshot and appends it to
// the lot's in-memory reservations so the caller reports fresh availability.
func (s *reservaService) crearTx(ctx context.Context, tx *gorm.DB, actividadID uuid.UUID, l *model.Lote, cantidad decimal.Decimal, dniActor string) (*model.Reserva, error) {
	r := &model.Reserva{
		ID:                            uuid.New(),
		ActividadID:                   actividadID,
		LoteID:                        l.ID,
		CantidadReservada:             cantidad,
		CantidadUsada:                 decimal.Zero,
		CantidadDevuelta:              decimal.Zero,
		EstadoID:                      s.estados.Reservado,
		CapacidadPresentacionProducto: l.Producto.CapacidadPresentacion,
		PrecioProducto:                l.Producto.Precio,
	}
	if err := s.repo.CreateTx(tx, r); err != nil {
		return nil, fmt.Errorf("crear reserva: %w", err)
	}
	l.Reservas = append(l.Reservas, *r)

	auditar("movimiento", r.ID, s.movimientos.Registrar(ctx, tx, RegistroMovimiento{
		LoteID:    l.ID,
		ReservaID: &r.ID,
		Tipo:      model.TipoMovimientoReserva,
		Cantidad:  cantidad,
		Observacion: fmt.Sprintf("Reserva de %s %s de %s para la actividad %s",
			cantidad.StringFixed(2), l.Producto.UnidadMedida, l.Producto.Nombre, actividadID),
		Responsable: dniActor,
	}))
	return r, nil
}

// ── Confirmar / Cancelar ──────────────────────────────────────────────────────

func (s *reservaService) ConfirmarUso(ctx context.Context, id uuid.UUID, req dto.ConfirmarUsoRequest, dniActor string) (*dto.ReservaResponse, error) {
	usada := r2(req.CantidadUsada)
	if usada.IsNegative() {
		return nil, apierror.Invalid("la cantidad usada no puede ser negativa")
	}

	var reserva *model.Reserva
	var lote *model.Lote
	err := s.conReserva(ctx, id, func(tx *gorm.DB, r *model.Reserva, l *model.Lote) error {
		devolver, err := liquidar(l, r.CantidadReservada, usada)
		if err != nil {
			return err
		}
		r.CantidadUsada = usada
		r.CantidadDevuelta = devolver
		r.EstadoID = s.estados.Confirmada
		if err := s.guardarTx(tx, r, l); err != nil {
			return err
		}
		s.registrarDevolucion(ctx, tx, r, l, devolver, dniActor,
			"Devolución de %s no usadas al confirmar la reserva")
		reserva, lote = r, l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.toResponse(reserva, lote), nil
}

func (s *reservaService) Cancelar(ctx context.Context, id uuid.UUID, dniActor string) (*dto.ReservaResponse, error) {
	var reserva *model.Reserva
	var lote *model.Lote
	err := s.conReserva(ctx, id, func(tx *gorm.DB, r *model.Reserva, l *model.Lote) error {
		if _, err := s.devolverTx(ctx, tx, r, l, dniActor); err != nil {
			return err
		}
		reserva, lote = r, l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.toResponse(reserva, lote), nil
}

func (s *reservaService) Liberar(ctx context.Context, reserva *model.Reserva, dniActor string) (decimal.Decimal, error) {
	devuelto := decimal.Zero
	err := s.conReserva(ctx, reserva.ID, func(tx *gorm.DB, r *model.Reserva, l *model.Lote) error {
		d, err := s.devolverTx(ctx, tx, r, l, dniActor)
		devuelto = d
		return err
	})
	return devuelto, err
}

// devolverTx returns reservada - usada to the partial pool and marks r Cancelada.
func (s *reservaService) devolverTx(ctx context.Context, tx *gorm.DB, r *model.Reserva, l *model.Lote, dniActor string) (decimal.Decimal, error) {
	devolver, err := liquidar(l, r.CantidadReservada, r.CantidadUsada)
	if err != nil {
		return decimal.Zero, err
	}
	r.CantidadDevuelta = r2(r.CantidadDevuelta.Add(devolver))
	r.EstadoID = s.estados.Cancelada
	if err := s.guardarTx(tx, r, l); err != nil {
		return decimal.Zero, err
	}
	s.registrarDevolucion(ctx, tx, r, l, devolver, dniActor, "Devolución de %s por cancelación de la reserva")
	return devolver, nil
}

func (s *reservaService) registrarDevolucion(ctx context.Context, tx *gorm.DB, r *model.Reserva, l *model.Lote, cantidad decimal.Decimal, dniActor, formato string) {
	if !cantidad.IsPositive() {
		return
	}
	auditar("movimiento", r.ID, s.movimientos.Registrar(ctx, tx, RegistroMovimiento{
		LoteID:      l.ID,
		ReservaID:   &r.ID,
		Tipo:        model.TipoMovimientoDevolucion,
		Cantidad:    cantidad,
		Observacion: fmt.Sprintf(formato, cantidad.StringFixed(2)),
		Responsable: dniActor,
	}))
}

// ── CambiarCantidad ───────────────────────────────────────────────────────────

func (s *reservaService) CambiarCantidad(ctx context.Context, id uuid.UUID, cantidad decimal.Decimal, dniActor string) error {
	cantidad = r2(cantidad)
	if !cantidad.IsPositive() {
		return apierror.Invalid("la cantidad debe ser mayor a cero")
	}
	return s.conReserva(ctx, id, func(tx *gorm.DB, r *model.Reserva, l *model.Lote) error {
		delta := r2(cantidad.Sub(r.CantidadReservada))
		if delta.IsZero() {
			return nil
		}
		if delta.IsPositive() && DisponibleParaReserva(l, s.estados).LessThan(delta) {
			return apierror.InsufficientStock()
		}
		anterior := r.CantidadReservada
		r.CantidadReservada = cantidad
		if err := s.repo.UpdateTx(tx, r); err != nil {
			return fmt.Errorf("actualizar reserva: %w", err)
		}

		reg := RegistroMovimiento{
			LoteID:      l.ID,
			ReservaID:   &r.ID,
			Tipo:        model.TipoMovimientoReserva,
			Cantidad:    delta.Abs(),
			Responsable: dniActor,
			Observacion: fmt.Sprintf("Reserva ampliada: %s → %s", anterior.StringFixed(2), cantidad.StringFixed(2)),
		}
		if delta.IsNegative() {
			reg.Tipo = model.TipoMovimientoAjuste
			reg.Observacion = fmt.Sprintf("Reserva reducida: %s → %s", anterior.StringFixed(2), cantidad.StringFixed(2))
		}
		auditar("movimiento", r.ID, s.movimientos.Registrar(ctx, tx, reg))
		return nil
	})
}

// ── Shared plumbing ───────────────────────────────────────────────────────────

// conReserva locks the reservation's product, then its rows, and runs fn only
// if the reservation is still unsettled.
func (s *reservaService) conReserva(ctx context.Context, id uuid.UUID, fn func(tx *gorm.DB, r *model.Reserva, l *model.Lote) error) error {
	actual, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return noEncontrado(err, "reserva")
	}
	productoID, err := s.productoDeReserva(ctx, actual)
	if err != nil {
		return err
	}
	unlock, err := s.locker.Lock(ctx, claveProducto(productoID))
	if err != nil {
		return err
	}
	defer unlock()

	return runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		r, err := s.repo.FindByIDForUpdateTx(tx, id)
		if err != nil {
			return noEncontrado(err, "reserva")
		}
		if s.estados.EsTerminal(r.EstadoID) {
			return apierror.Conflict("la reserva ya fue confirmada o cancelada")
		}
		l, err := s.loteRepo.FindByIDForUpdateTx(tx, r.LoteID)
		if err != nil {
			return noEncontrado(err, "lote")
		}
		return fn(tx, r, l)
	})
}

func (s *reservaService) productoDeReserva(ctx context.Context, r *model.Reserva) (uuid.UUID, error) {
	if r.Lote != nil {
		return r.Lote.ProductoID, nil
	}
	l, err := s.loteRepo.FindByID(ctx, r.LoteID)
	if err != nil {
		return uuid.Nil, noEncontrado(err, "lote")
	}
	return l.ProductoID, nil
}

// guardarTx persists both rows and mirrors r into the lot's reservation list.
func (s *reservaService) guardarTx(tx *gorm.DB, r *model.Reserva, l *model.Lote) error {
	if err := s.loteRepo.UpdateTx(tx, l); err != nil {
		return fmt.Errorf("actualizar lote: %w", err)
	}
	if err := s.repo.UpdateTx(tx, r); err != nil {
		return fmt.Errorf("actualizar reserva: %w", err)
	}
	for i := range l.Reservas {
		if l.Reservas[i].ID == r.ID {
			l.Reservas[i].CantidadReservada = r.CantidadReservada
			l.Reservas[i].CantidadUsada = r.CantidadUsada
			l.Reservas[i].CantidadDevuelta = r.CantidadDevuelta
			l.Reservas[i].EstadoID = r.EstadoID
		}
	}
	return nil
}

// ── Lectura ───────────────────────────────────────────────────────────────────

func (s *reservaService) ListarPorActividad(ctx context.Context, actividadID uuid.UUID) ([]dto.ReservaResponse, error) {
	if _, err := s.actividadRepo.FindByID(ctx, actividadID); err != nil {
		return nil, noEncontrado(err, "actividad")
	}
	reservas, err := s.repo.ListByActividad(ctx, actividadID)
	if err != nil {
		return nil, err
	}

	lotes := make(map[uuid.UUID]*model.Lote)
	out := make([]dto.ReservaResponse, 0, len(reservas))
	for i := range reservas {
		r := &reservas[i]
		l, ok := lotes[r.LoteID]
		if !ok {
			if l, err = s.loteRepo.FindByID(ctx, r.LoteID); err != nil {
				return nil, noEncontrado(err, "lote")
			}
			lotes[r.LoteID] = l
		}
		out = append(out, *s.toResponse(r, l))
	}
	return out, nil
}

func (s *reservaService) toResponse(r *model.Reserva, l *model.Lote) *dto.ReservaResponse {
	resp := &dto.ReservaResponse{
		ID:                            r.ID.String(),
		ActividadID:                   r.ActividadID.String(),
		LoteID:                        r.LoteID.String(),
		CantidadReservada:             r.CantidadReservada,
		CantidadUsada:                 r.CantidadUsada,
		CantidadDevuelta:              r.CantidadDevuelta,
		Estado:                        s.estados.Nombre(r.EstadoID),
		CapacidadPresentacionProducto: r.CapacidadPresentacionProducto,
		PrecioProducto:                r.PrecioProducto,
		CreatedAt:                     r.CreatedAt.Format(time.RFC3339),
	}
	if l != nil {
		resp.ProductoID = l.ProductoID.String()
		resp.DisponibleLote = DisponibleParaReserva(l, s.estados)
		if l.Producto != nil {
			resp.ProductoNombre = l.Producto.Nombre
		}
	}
	return resp
}
