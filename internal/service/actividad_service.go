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
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ActividadService orchestrates activities and the reservations they hold.
type ActividadService interface {
	Crear(ctx context.Context, req dto.CrearActividadRequest, dniResponsable string) (*dto.ActividadResponse, error)
	ObtenerPorID(ctx context.Context, id uuid.UUID) (*dto.ActividadResponse, error)
	Listar(ctx context.Context, filter dto.ActividadFilter) (*dto.ActividadListResponse, error)
	Actualizar(ctx context.Context, id uuid.UUID, req dto.ActualizarActividadRequest) (*dto.ActividadResponse, error)
	ActualizarCompleto(ctx context.Context, id uuid.UUID, req dto.ActualizarActividadCompletaRequest, dniActor string) (*dto.ActividadResponse, error)
	Finalizar(ctx context.Context, id uuid.UUID, req dto.FinalizarActividadRequest, dniActor string) (*dto.ActividadResponse, error)
	Eliminar(ctx context.Context, id uuid.UUID, dniActor string) (*dto.EliminarActividadResponse, error)
	CalcularCosto(ctx context.Context, id uuid.UUID) (*dto.CostoActividadResponse, error)
}

type actividadService struct {
	repo        repository.ActividadRepository
	reservaRepo repository.ReservaRepository
	usuarioRepo repository.UsuarioRepository
	reservas    ReservaService
	estados     EstadosReserva
	now         func() time.Time
}

func NewActividadService(
	repo repository.ActividadRepository,
	reservaRepo repository.ReservaRepository,
	usuarioRepo repository.UsuarioRepository,
	reservas ReservaService,
	estados EstadosReserva,
) ActividadService {
	return &actividadService{
		repo:        repo,
		reservaRepo: reservaRepo,
		usuarioRepo: usuarioRepo,
		reservas:    reservas,
		estados:     estados,
		now:         time.Now,
	}
}

// ── Crear / Leer ─────────────────────────────────────────────────────────────

func (s *actividadService) Crear(ctx context.Context, req dto.CrearActividadRequest, dniResponsable string) (*dto.ActividadResponse, error) {
	if dniResponsable == "" {
		return nil, apierror.Invalid("dni del responsable requerido")
	}
	zonaID, err := parseID(req.CultivoZonaID, "cultivo_zona_id")
	if err != nil {
		return nil, err
	}
	categoriaID, err := parseID(req.CategoriaActividadID, "categoria_actividad_id")
	if err != nil {
		return nil, err
	}
	usuarios, err := parseIDs(req.UsuarioIDs, "usuario_ids")
	if err != nil {
		return nil, err
	}

	a := &model.Actividad{
		ID:                   uuid.New(),
		Descripcion:          req.Descripcion,
		CultivoZonaID:        zonaID,
		CategoriaActividadID: categoriaID,
		FechaAsignacion:      req.FechaAsignacion,
		DNIResponsable:       dniResponsable,
		Estado:               true,
	}
	for _, uid := range usuarios {
		a.Usuarios = append(a.Usuarios, model.UsuarioActividad{ID: uuid.New(), ActividadID: a.ID, UsuarioID: uid})
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("crear actividad: %w", err)
	}
	return s.toResponse(ctx, a), nil
}

func (s *actividadService) ObtenerPorID(ctx context.Context, id uuid.UUID) (*dto.ActividadResponse, error) {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, noEncontrado(err, "actividad")
	}
	return s.toResponse(ctx, a), nil
}

func (s *actividadService) Listar(ctx context.Context, filter dto.ActividadFilter) (*dto.ActividadListResponse, error) {
	page, limit := paginacion(filter.Page, filter.Limit)
	list, total, err := s.repo.List(ctx, repository.ActividadFilter{
		Estado:         filter.Estado,
		DNIResponsable: filter.DNIResponsable,
		Page:           page,
		Limit:          limit,
	})
	if err != nil {
		return nil, err
	}

	nombres := make(map[string]string)
	data := make([]dto.ActividadResponse, 0, len(list))
	for i := range list {
		resp := actividadToResponse(&list[i])
		nombre, ok := nombres[resp.DNIResponsable]
		if !ok {
			nombre = s.nombreResponsable(ctx, resp.DNIResponsable)
			nombres[resp.DNIResponsable] = nombre
		}
		resp.NombreResponsable = nombre
		data = append(data, *resp)
	}
	return &dto.ActividadListResponse{
		Data:       data,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPaginas(total, limit),
	}, nil
}

// ── Actualizar ────────────────────────────────────────────────────────────────

func (s *actividadService) Actualizar(ctx context.Context, id uuid.UUID, req dto.ActualizarActividadRequest) (*dto.ActividadResponse, error) {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, noEncontrado(err, "actividad")
	}
	if err := aplicarCambiosActividad(a, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("actualizar actividad: %w", err)
	}
	return s.toResponse(ctx, a), nil
}

func aplicarCambiosActividad(a *model.Actividad, req dto.ActualizarActividadRequest) error {
	if req.Descripcion != nil {
		a.Descripcion = *req.Descripcion
	}
	if req.CultivoZonaID != nil {
		id, err := parseID(*req.CultivoZonaID, "cultivo_zona_id")
		if err != nil {
			return err
		}
		a.CultivoZonaID = id
	}
	if req.CategoriaActividadID != nil {
		id, err := parseID(*req.CategoriaActividadID, "categoria_actividad_id")
		if err != nil {
			return err
		}
		a.CategoriaActividadID = id
	}
	if req.FechaAsignacion != nil {
		a.FechaAsignacion = *req.FechaAsignacion
	}
	return nil
}

// ActualizarCompleto merges the core fields, then reconciles assigned users and
// materials against the request. Each stage commits on its own; a failing
// material stops the reconciliation and earlier stages stay applied.
func (s *actividadService) ActualizarCompleto(ctx context.Context, id uuid.UUID, req dto.ActualizarActividadCompletaRequest, dniActor string) (*dto.ActividadResponse, error) {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, noEncontrado(err, "actividad")
	}
	if !a.Estado {
		return nil, apierror.Conflict("la actividad ya fue finalizada")
	}
	if err := aplicarCambiosActividad(a, req.ActualizarActividadRequest); err != nil {
		return nil, err
	}
	var usuarios []uuid.UUID
	if req.UsuarioIDs != nil {
		if usuarios, err = parseIDs(req.UsuarioIDs, "usuario_ids"); err != nil {
			return nil, err
		}
	}
	materiales, err := parseMateriales(req.Materiales)
	if err != nil {
		return nil, err
	}

	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if err := s.repo.UpdateTx(tx, a); err != nil {
			return fmt.Errorf("actualizar actividad: %w", err)
		}
		if req.UsuarioIDs == nil {
			return nil
		}
		return s.sincronizarUsuariosTx(tx, a, usuarios)
	})
	if txErr != nil {
		return nil, txErr
	}

	if req.Materiales != nil {
		if err := s.sincronizarMateriales(ctx, a.ID, materiales, dniActor); err != nil {
			return nil, err
		}
	}
	return s.ObtenerPorID(ctx, id)
}

func (s *actividadService) sincronizarUsuariosTx(tx *gorm.DB, a *model.Actividad, deseados []uuid.UUID) error {
	quedan := make(map[uuid.UUID]bool, len(deseados))
	for _, uid := range deseados {
		quedan[uid] = true
	}
	actuales := make(map[uuid.UUID]bool, len(a.Usuarios))
	for _, ua := range a.Usuarios {
		actuales[ua.UsuarioID] = true
		if !quedan[ua.UsuarioID] {
			if err := s.repo.DeleteUsuarioTx(tx, ua.ID); err != nil {
				return fmt.Errorf("quitar usuario: %w", err)
			}
		}
	}
	for _, uid := range deseados {
		if actuales[uid] {
			continue
		}
		ua := &model.UsuarioActividad{ID: uuid.New(), ActividadID: a.ID, UsuarioID: uid}
		if err := s.repo.CreateUsuarioTx(tx, ua); err != nil {
			return fmt.Errorf("asignar usuario: %w", err)
		}
	}
	return nil
}

type material struct {
	productoID uuid.UUID
	cantidad   decimal.Decimal
}

func parseMateriales(req []dto.MaterialRequest) ([]material, error) {
	vistos := make(map[uuid.UUID]bool, len(req))
	out := make([]material, 0, len(req))
	for _, m := range req {
		pid, err := parseID(m.ProductoID, "producto_id")
		if err != nil {
			return nil, err
		}
		if vistos[pid] {
			return nil, apierror.Invalid("producto repetido en materiales: " + m.ProductoID)
		}
		if !r2(m.Cantidad).IsPositive() {
			return nil, apierror.Invalid("la cantidad debe ser mayor a cero")
		}
		vistos[pid] = true
		out = append(out, material{productoID: pid, cantidad: r2(m.Cantidad)})
	}
	return out, nil
}

// sincronizarMateriales makes the activity's reserved quantity per product
// match deseados. Removed products are released first so their stock can be
// reused by the additions that follow.
func (s *actividadService) sincronizarMateriales(ctx context.Context, actividadID uuid.UUID, deseados []material, dniActor string) error {
	reservas, err := s.reservaRepo.ListByActividad(ctx, actividadID)
	if err != nil {
		return err
	}
	porProducto := make(map[uuid.UUID][]model.Reserva)
	for _, r := range reservas {
		if r.Lote == nil {
			continue
		}
		porProducto[r.Lote.ProductoID] = append(porProducto[r.Lote.ProductoID], r)
	}
	quedan := make(map[uuid.UUID]decimal.Decimal, len(deseados))
	for _, m := range deseados {
		quedan[m.productoID] = m.cantidad
	}

	// Reject before touching anything.
	for pid, rs := range porProducto {
		cantidad, sigue := quedan[pid]
		switch {
		case !sigue && s.algunaConfirmada(rs):
			return apierror.Conflict("no se puede quitar un material con uso confirmado")
		case sigue && s.algunaConfirmada(rs) && s.primeraAbierta(rs) == nil && !totalReservado(rs).Equal(cantidad):
			return apierror.Conflict("el material ya fue confirmado y no admite cambios de cantidad")
		}
	}

	for _, r := range reservas {
		if r.Lote == nil {
			continue
		}
		if _, sigue := quedan[r.Lote.ProductoID]; sigue {
			continue
		}
		if !s.estados.EsTerminal(r.EstadoID) {
			if _, err := s.reservas.Liberar(ctx, &r, dniActor); err != nil {
				return err
			}
		}
		if err := s.reservaRepo.DeleteTx(conCtx(ctx, s.reservaRepo.DB()), r.ID); err != nil {
			return fmt.Errorf("eliminar reserva: %w", err)
		}
	}

	for _, m := range deseados {
		rs, existe := porProducto[m.productoID]
		if !existe {
			_, err := s.reservas.ReservarPorProducto(ctx, dto.ReservarProductoRequest{
				ActividadID: actividadID.String(),
				ProductoID:  m.productoID.String(),
				Cantidad:    m.cantidad,
			}, dniActor)
			if err != nil {
				return err
			}
			continue
		}
		abierta := s.primeraAbierta(rs)
		if abierta == nil && s.algunaConfirmada(rs) {
			continue
		}
		if abierta == nil {
			// Only cancelled reservations: reserve what they no longer cover.
			nueva := r2(m.cantidad.Sub(totalReservado(rs)))
			if nueva.IsNegative() {
				return apierror.Conflict("la cantidad es menor a la ya usada para el material")
			}
			if nueva.IsZero() {
				continue
			}
			_, err := s.reservas.ReservarPorProducto(ctx, dto.ReservarProductoRequest{
				ActividadID: actividadID.String(),
				ProductoID:  m.productoID.String(),
				Cantidad:    nueva,
			}, dniActor)
			if err != nil {
				return err
			}
			continue
		}
		resto := r2(totalReservado(rs).Sub(abierta.CantidadReservada))
		nueva := r2(m.cantidad.Sub(resto))
		if !nueva.IsPositive() {
			return apierror.Conflict("la cantidad es menor a la ya confirmada para el material")
		}
		if err := s.reservas.CambiarCantidad(ctx, abierta.ID, nueva, dniActor); err != nil {
			return err
		}
	}
	return nil
}

func (s *actividadService) algunaConfirmada(rs []model.Reserva) bool {
	for _, r := range rs {
		if r.EstadoID == s.estados.Confirmada {
			return true
		}
	}
	return false
}

func (s *actividadService) primeraAbierta(rs []model.Reserva) *model.Reserva {
	for i := range rs {
		if !s.estados.EsTerminal(rs[i].EstadoID) {
			return &rs[i]
		}
	}
	return nil
}

// totalReservado sums what the reservations still hold: cancelled ones count
// only what was consumed.
func totalReservado(rs []model.Reserva) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rs {
		total = total.Add(r.CantidadReservada.Sub(r.CantidadDevuelta))
	}
	return r2(total)
}

// ── Finalizar ─────────────────────────────────────────────────────────────────

func (s *actividadService) Finalizar(ctx context.Context, id uuid.UUID, req dto.FinalizarActividadRequest, dniActor string) (*dto.ActividadResponse, error) {
	if err := validarNoNegativos(map[string]*decimal.Decimal{
		"horas_dedicadas": req.HorasDedicadas,
		"precio_hora":     req.PrecioHora,
	}); err != nil {
		return nil, err
	}

	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, noEncontrado(err, "actividad")
	}
	// An anonymous caller is only checked by the transport layer.
	if dniActor != "" && dniActor != a.DNIResponsable {
		return nil, apierror.Forbidden()
	}
	if !a.Estado {
		return nil, apierror.Conflict("la actividad ya fue finalizada")
	}

	ahora := s.now()
	a.Estado = false
	a.FechaFinalizacion = &ahora
	if req.Observacion != nil {
		a.Observacion = req.Observacion
	}
	if req.ImgURL != nil {
		a.ImgURL = req.ImgURL
	}
	if req.HorasDedicadas != nil {
		h := r2(*req.HorasDedicadas)
		a.HorasDedicadas = &h
	}
	if req.PrecioHora != nil {
		p := r2(*req.PrecioHora)
		a.PrecioHora = &p
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("finalizar actividad: %w", err)
	}
	return s.toResponse(ctx, a), nil
}

// ── Eliminar ──────────────────────────────────────────────────────────────────

// Eliminar removes an activity after returning the stock its unsettled
// reservations hold. Returning stock, deleting reservation rows and deleting
// user assignments are best-effort per item and reported in Fallos; only the
// final delete of the activity row can fail the call.
func (s *actividadService) Eliminar(ctx context.Context, id uuid.UUID, dniActor string) (*dto.EliminarActividadResponse, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, noEncontrado(err, "actividad")
	}
	reservas, err := s.reservaRepo.ListByActividad(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listar reservas: %w", err)
	}

	var fallos Fallos
	devueltas := 0
	for i := range reservas {
		r := &reservas[i]
		if s.estados.EsTerminal(r.EstadoID) {
			continue
		}
		_, err := s.reservas.Liberar(ctx, r, dniActor)
		fallos.Registrar("devolucion_inventario", r.ID, err)
		if err == nil {
			devueltas++
		}
	}

	for _, r := range reservas {
		fallos.Registrar("eliminar_reserva", r.ID,
			s.reservaRepo.DeleteTx(conCtx(ctx, s.reservaRepo.DB()), r.ID))
	}
	fallos.Registrar("eliminar_usuarios", id,
		s.repo.DeleteUsuariosByActividadTx(conCtx(ctx, s.repo.DB()), id))

	if err := s.repo.DeleteTx(conCtx(ctx, s.repo.DB()), id); err != nil {
		return nil, fmt.Errorf("eliminar actividad: %w", err)
	}

	if !fallos.Vacio() {
		log.Warn().Str("actividad_id", id.String()).Int("fallos", len(fallos.Items())).
			Msg("actividad eliminada con pasos omitidos")
	}
	return &dto.EliminarActividadResponse{
		ActividadID:       id.String(),
		ReservasDevueltas: devueltas,
		Fallos:            fallos.Items(),
	}, nil
}

// ── Costo ─────────────────────────────────────────────────────────────────────

func (s *actividadService) CalcularCosto(ctx context.Context, id uuid.UUID) (*dto.CostoActividadResponse, error) {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, noEncontrado(err, "actividad")
	}
	reservas, err := s.reservaRepo.ListByActividad(ctx, id)
	if err != nil {
		return nil, err
	}
	return CalcularCosto(a.ID, reservas, s.estados, a.HorasDedicadas, a.PrecioHora), nil
}

// ── Mapping ───────────────────────────────────────────────────────────────────

func (s *actividadService) toResponse(ctx context.Context, a *model.Actividad) *dto.ActividadResponse {
	resp := actividadToResponse(a)
	resp.NombreResponsable = s.nombreResponsable(ctx, a.DNIResponsable)
	return resp
}

// nombreResponsable is display-only; a failed lookup leaves it empty.
func (s *actividadService) nombreResponsable(ctx context.Context, dni string) string {
	u, err := s.usuarioRepo.FindByDNI(ctx, dni)
	if err != nil {
		log.Debug().Err(err).Str("dni", dni).Msg("responsable no encontrado")
		return ""
	}
	return u.NombreCompleto()
}

func actividadToResponse(a *model.Actividad) *dto.ActividadResponse {
	resp := &dto.ActividadResponse{
		ID:                   a.ID.String(),
		Descripcion:          a.Descripcion,
		CultivoZonaID:        a.CultivoZonaID.String(),
		CategoriaActividadID: a.CategoriaActividadID.String(),
		FechaAsignacion:      a.FechaAsignacion.Format(time.RFC3339),
		DNIResponsable:       a.DNIResponsable,
		Estado:               a.Estado,
		Observacion:          a.Observacion,
		ImgURL:               a.ImgURL,
		HorasDedicadas:       a.HorasDedicadas,
		PrecioHora:           a.PrecioHora,
		UsuarioIDs:           make([]string, 0, len(a.Usuarios)),
	}
	if a.FechaFinalizacion != nil {
		f := a.FechaFinalizacion.Format(time.RFC3339)
		resp.FechaFinalizacion = &f
	}
	for _, ua := range a.Usuarios {
		resp.UsuarioIDs = append(resp.UsuarioIDs, ua.UsuarioID.String())
	}
	return resp
}

func parseIDs(raw []string, campo string) ([]uuid.UUID, error) {
	vistos := make(map[uuid.UUID]bool, len(raw))
	out := make([]uuid.UUID, 0, len(raw))
	for _, v := range raw {
		id, err := parseID(v, campo)
		if err != nil {
			return nil, err
		}
		if vistos[id] {
			continue
		}
		vistos[id] = true
		out = append(out, id)
	}
	return out, nil
}
