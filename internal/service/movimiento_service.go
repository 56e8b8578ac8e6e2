package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"agrotic/internal/dto"
	"agrotic/internal/model"
	"agrotic/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Notificador fans movement events out to subscribers. worker.Dispatcher is
// the production implementation.
type Notificador interface {
	NotificarMovimiento(ctx context.Context, evento dto.MovimientoEvento) error
}

// RegistroMovimiento describes one audit entry to append.
type RegistroMovimiento struct {
	LoteID      uuid.UUID
	ReservaID   *uuid.UUID
	Tipo        string
	Cantidad    decimal.Decimal
	Observacion string
	// Responsable is a DNI looked up in the user directory; when no user
	// matches it is stored as given.
	Responsable string
}

// MovimientoService is the append-only stock audit log.
type MovimientoService interface {
	// Registrar writes the entry inside tx when tx is non-nil, under a
	// savepoint so a failed insert never aborts the caller's transaction.
	// An unknown movement type is logged and skipped. The returned error is
	// for the caller's audit report only.
	Registrar(ctx context.Context, tx *gorm.DB, reg RegistroMovimiento) error
	Listar(ctx context.Context, filter dto.MovimientoFilter) (*dto.MovimientoListResponse, error)
}

type movimientoService struct {
	repo        repository.MovimientoRepository
	usuarioRepo repository.UsuarioRepository
	notificador Notificador
	now         func() time.Time
}

func NewMovimientoService(
	repo repository.MovimientoRepository,
	usuarioRepo repository.UsuarioRepository,
	notificador Notificador,
) MovimientoService {
	return &movimientoService{
		repo:        repo,
		usuarioRepo: usuarioRepo,
		notificador: notificador,
		now:         time.Now,
	}
}

func (s *movimientoService) Registrar(ctx context.Context, tx *gorm.DB, reg RegistroMovimiento) error {
	tipo, err := s.repo.FindTipoByNombre(ctx, reg.Tipo)
	if err != nil {
		log.Warn().Err(err).Str("tipo", reg.Tipo).Str("lote_id", reg.LoteID.String()).
			Msg("tipo de movimiento no encontrado, movimiento omitido")
		return nil
	}

	m := &model.Movimiento{
		LoteID:           reg.LoteID,
		ReservaID:        reg.ReservaID,
		TipoMovimientoID: tipo.ID,
		Cantidad:         r2(reg.Cantidad),
		Observacion:      reg.Observacion,
		Responsable:      s.responsable(ctx, reg.Responsable),
		CreatedAt:        s.now(),
	}

	if tx != nil {
		err = tx.Transaction(func(sp *gorm.DB) error { return s.repo.CreateTx(sp, m) })
	} else {
		err = s.repo.Create(ctx, m)
	}
	if err != nil {
		return fmt.Errorf("registrar movimiento %s: %w", reg.Tipo, err)
	}

	s.notificar(ctx, m, tipo.Nombre)
	return nil
}

// responsable resolves a DNI into "{nombres} {apellidos} - {dni}".
func (s *movimientoService) responsable(ctx context.Context, dniONombre string) *string {
	if dniONombre == "" {
		return nil
	}
	if s.usuarioRepo != nil {
		if u, err := s.usuarioRepo.FindByDNI(ctx, dniONombre); err == nil {
			v := fmt.Sprintf("%s - %s", u.NombreCompleto(), u.DNI)
			return &v
		}
	}
	return &dniONombre
}

func (s *movimientoService) notificar(ctx context.Context, m *model.Movimiento, tipo string) {
	if s.notificador == nil {
		return
	}
	if err := s.notificador.NotificarMovimiento(ctx, movimientoToEvento(m, tipo)); err != nil {
		log.Warn().Err(err).Str("movimiento_id", m.ID.String()).Msg("no se pudo encolar la notificación")
	}
}

func (s *movimientoService) Listar(ctx context.Context, filter dto.MovimientoFilter) (*dto.MovimientoListResponse, error) {
	repoFilter := repository.MovimientoFilter{
		Tipo:  filter.Tipo,
		Page:  filter.Page,
		Limit: filter.Limit,
	}
	if filter.LoteID != "" {
		id, err := parseID(filter.LoteID, "lote_id")
		if err != nil {
			return nil, err
		}
		repoFilter.LoteID = &id
	}
	if repoFilter.Page < 1 {
		repoFilter.Page = 1
	}
	if repoFilter.Limit < 1 {
		repoFilter.Limit = 100
	}

	list, total, err := s.repo.List(ctx, repoFilter)
	if err != nil {
		return nil, err
	}

	data := make([]dto.MovimientoResponse, 0, len(list))
	for i := range list {
		data = append(data, movimientoToResponse(&list[i]))
	}
	return &dto.MovimientoListResponse{
		Data:       data,
		Total:      total,
		Page:       repoFilter.Page,
		Limit:      repoFilter.Limit,
		TotalPages: int(math.Ceil(float64(total) / float64(repoFilter.Limit))),
	}, nil
}

func movimientoToResponse(m *model.Movimiento) dto.MovimientoResponse {
	tipo := ""
	if m.TipoMovimiento != nil {
		tipo = m.TipoMovimiento.Nombre
	}
	return dto.MovimientoResponse{
		ID:          m.ID.String(),
		LoteID:      m.LoteID.String(),
		ReservaID:   uuidPtrString(m.ReservaID),
		Tipo:        tipo,
		Cantidad:    m.Cantidad,
		Observacion: m.Observacion,
		Responsable: m.Responsable,
		CreatedAt:   m.CreatedAt.Format(time.RFC3339),
	}
}

func movimientoToEvento(m *model.Movimiento, tipo string) dto.MovimientoEvento {
	return dto.MovimientoEvento{
		MovimientoID: m.ID.String(),
		LoteID:       m.LoteID.String(),
		ReservaID:    uuidPtrString(m.ReservaID),
		Tipo:         tipo,
		Cantidad:     m.Cantidad,
		Observacion:  m.Observacion,
		Responsable:  m.Responsable,
		CreatedAt:    m.CreatedAt.Format(time.RFC3339),
	}
}

func uuidPtrString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
