package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"agrotic/internal/apierror"
	"agrotic/internal/model"
	"agrotic/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// runTx executes fn inside a GORM transaction when db is available,
// or calls fn(nil) directly when db is nil (unit test mode).
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

// conCtx returns a session bound to ctx for single statements run outside a
// transaction. Nil stays nil so stub repositories keep working.
func conCtx(ctx context.Context, db *gorm.DB) *gorm.DB {
	if db == nil {
		return nil
	}
	return db.WithContext(ctx)
}

// noEncontrado turns gorm.ErrRecordNotFound into a typed NotFound error.
func noEncontrado(err error, entidad string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apierror.NotFound(entidad)
	}
	return err
}

func parseID(raw, campo string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apierror.Invalid(campo + " inválido")
	}
	return id, nil
}

// ── Locking ───────────────────────────────────────────────────────────────────

// Locker serializes read-check-write sequences on a key. Every operation that
// reads availability and then writes a lot takes the product's key first.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

func claveProducto(productoID uuid.UUID) string {
	return "producto:" + productoID.String()
}

// localLocker holds one single-slot channel per key so a waiter can give up
// when its context is done.
type localLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewLocalLocker returns an in-process keyed mutex, used when Redis is not
// configured and in tests.
func NewLocalLocker() Locker {
	return &localLocker{locks: make(map[string]chan struct{})}
}

func (l *localLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.locks[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.locks[key] = slot
	}
	l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ── Reservation states ────────────────────────────────────────────────────────

// EstadosReserva holds the estados_reserva ids, resolved by name once at startup.
type EstadosReserva struct {
	Reservado  int
	Confirmada int
	Cancelada  int
}

// CargarEstadosReserva resolves the three reservation states. A missing row is
// a startup error: nothing in the ledger works without them.
func CargarEstadosReserva(ctx context.Context, repo repository.ReservaRepository) (EstadosReserva, error) {
	rows, err := repo.ListEstados(ctx)
	if err != nil {
		return EstadosReserva{}, fmt.Errorf("cargar estados de reserva: %w", err)
	}
	porNombre := make(map[string]int, len(rows))
	for _, r := range rows {
		porNombre[r.Nombre] = r.ID
	}

	var e EstadosReserva
	for nombre, dst := range map[string]*int{
		model.EstadoReservaReservado:  &e.Reservado,
		model.EstadoReservaConfirmada: &e.Confirmada,
		model.EstadoReservaCancelada:  &e.Cancelada,
	} {
		id, ok := porNombre[nombre]
		if !ok {
			return EstadosReserva{}, fmt.Errorf("estado de reserva %q no existe", nombre)
		}
		*dst = id
	}
	return e, nil
}

// EsTerminal reports whether a reservation in this state has been settled.
func (e EstadosReserva) EsTerminal(estadoID int) bool {
	return estadoID == e.Confirmada || estadoID == e.Cancelada
}

func (e EstadosReserva) Nombre(estadoID int) string {
	switch estadoID {
	case e.Reservado:
		return model.EstadoReservaReservado
	case e.Confirmada:
		return model.EstadoReservaConfirmada
	case e.Cancelada:
		return model.EstadoReservaCancelada
	}
	return ""
}

// tieneReservaActiva reports whether any reservation on the lot is unsettled.
func (e EstadosReserva) tieneReservaActiva(l *model.Lote) bool {
	for _, r := range l.Reservas {
		if !e.EsTerminal(r.EstadoID) {
			return true
		}
	}
	return false
}
