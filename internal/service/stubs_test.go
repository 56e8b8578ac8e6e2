package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"agrotic/internal/model"
	"agrotic/internal/repository"
	"agrotic/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var estadosTest = service.EstadosReserva{Reservado: 1, Confirmada: 2, Cancelada: 3}

// ── memStore ──────────────────────────────────────────────────────────────────

// memStore backs every stub repository so relations stay consistent: a lot read
// always carries its current reservations. Reads hand out copies.
type memStore struct {
	mu sync.Mutex

	productos   map[uuid.UUID]*model.Producto
	lotes       map[uuid.UUID]*model.Lote
	loteOrden   []uuid.UUID
	reservas    map[uuid.UUID]*model.Reserva
	resOrden    []uuid.UUID
	movimientos []model.Movimiento
	tipos       map[string]model.TipoMovimiento
	actividades map[uuid.UUID]*model.Actividad
	asignados   map[uuid.UUID]*model.UsuarioActividad
	usuarios    map[string]*model.Usuario

	clock time.Time

	// failure injection
	falloUpdateLote     map[uuid.UUID]bool
	falloDeleteReserva  map[uuid.UUID]bool
	falloDeleteUsuarios bool
}

func newMemStore() *memStore {
	return &memStore{
		productos:   make(map[uuid.UUID]*model.Producto),
		lotes:       make(map[uuid.UUID]*model.Lote),
		reservas:    make(map[uuid.UUID]*model.Reserva),
		actividades: make(map[uuid.UUID]*model.Actividad),
		asignados:   make(map[uuid.UUID]*model.UsuarioActividad),
		usuarios:    make(map[string]*model.Usuario),
		tipos: map[string]model.TipoMovimiento{
			model.TipoMovimientoReserva:    {ID: 1, Nombre: model.TipoMovimientoReserva},
			model.TipoMovimientoDevolucion: {ID: 2, Nombre: model.TipoMovimientoDevolucion},
			model.TipoMovimientoAjuste:     {ID: 3, Nombre: model.TipoMovimientoAjuste},
		},
		clock:              time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		falloUpdateLote:    make(map[uuid.UUID]bool),
		falloDeleteReserva: make(map[uuid.UUID]bool),
	}
}

// tick returns strictly increasing timestamps so created_at ordering is stable.
func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) productoCopy(id uuid.UUID) *model.Producto {
	p, ok := s.productos[id]
	if !ok {
		return nil
	}
	c := *p
	return &c
}

func (s *memStore) loteCopy(id uuid.UUID) (*model.Lote, bool) {
	l, ok := s.lotes[id]
	if !ok {
		return nil, false
	}
	c := *l
	c.Producto = s.productoCopy(l.ProductoID)
	c.Reservas = nil
	for _, rid := range s.resOrden {
		if r, ok := s.reservas[rid]; ok && r.LoteID == id {
			c.Reservas = append(c.Reservas, *r)
		}
	}
	return &c, true
}

func (s *memStore) reservaCopy(id uuid.UUID) (*model.Reserva, bool) {
	r, ok := s.reservas[id]
	if !ok {
		return nil, false
	}
	c := *r
	if l, ok := s.lotes[r.LoteID]; ok {
		lc := *l
		lc.Producto = s.productoCopy(l.ProductoID)
		c.Lote = &lc
	}
	return &c, true
}

func (s *memStore) movimientosDeTipo(tipo string) []model.Movimiento {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Movimiento
	for _, m := range s.movimientos {
		if m.TipoMovimiento != nil && m.TipoMovimiento.Nombre == tipo {
			out = append(out, m)
		}
	}
	return out
}

func (s *memStore) lote(id uuid.UUID) *model.Lote {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, _ := s.loteCopy(id)
	return l
}

func (s *memStore) reserva(id uuid.UUID) *model.Reserva {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, _ := s.reservaCopy(id)
	return r
}

func (s *memStore) reservasDeActividad(id uuid.UUID) []model.Reserva {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Reserva
	for _, rid := range s.resOrden {
		if r, ok := s.reservas[rid]; ok && r.ActividadID == id {
			out = append(out, *r)
		}
	}
	return out
}

// ── Lote ──────────────────────────────────────────────────────────────────────

type stubLoteRepo struct{ s *memStore }

func (r *stubLoteRepo) Create(_ context.Context, l *model.Lote) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.CreatedAt = r.s.tick()
	c := *l
	c.Producto, c.Bodega, c.Reservas = nil, nil, nil
	r.s.lotes[l.ID] = &c
	r.s.loteOrden = append(r.s.loteOrden, l.ID)
	return nil
}

func (r *stubLoteRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Lote, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.loteCopy(id)
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return l, nil
}

func (r *stubLoteRepo) List(_ context.Context, f repository.LoteFilter) ([]model.Lote, int64, error) {
	all, _ := r.ListAll(context.Background())
	var out []model.Lote
	for _, l := range all {
		if f.ProductoID == nil || l.ProductoID == *f.ProductoID {
			out = append(out, l)
		}
	}
	total := int64(len(out))
	desde := (f.Page - 1) * f.Limit
	if desde > len(out) {
		desde = len(out)
	}
	hasta := desde + f.Limit
	if hasta > len(out) {
		hasta = len(out)
	}
	return out[desde:hasta], total, nil
}

func (r *stubLoteRepo) ListAll(_ context.Context) ([]model.Lote, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Lote
	for _, id := range r.s.loteOrden {
		if l, ok := r.s.loteCopy(id); ok {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (r *stubLoteRepo) FindByIDForUpdateTx(_ *gorm.DB, id uuid.UUID) (*model.Lote, error) {
	return r.FindByID(context.Background(), id)
}

func (r *stubLoteRepo) FindByProductoForUpdateTx(_ *gorm.DB, productoID uuid.UUID) ([]model.Lote, error) {
	all, _ := r.ListAll(context.Background())
	var out []model.Lote
	for _, l := range all {
		if l.ProductoID == productoID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *stubLoteRepo) UpdateTx(_ *gorm.DB, l *model.Lote) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.falloUpdateLote[l.ID] {
		return errors.New("update lote: conexión perdida")
	}
	stored, ok := r.s.lotes[l.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.BodegaID = l.BodegaID
	stored.Stock = l.Stock
	stored.CantidadDisponible = l.CantidadDisponible
	stored.CantidadParcial = l.CantidadParcial
	stored.FechaVencimiento = l.FechaVencimiento
	return nil
}

func (r *stubLoteRepo) DeleteTx(_ *gorm.DB, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.lotes, id)
	return nil
}

func (r *stubLoteRepo) DB() *gorm.DB { return nil }

var _ repository.LoteRepository = (*stubLoteRepo)(nil)

// ── Reserva ───────────────────────────────────────────────────────────────────

type stubReservaRepo struct{ s *memStore }

func (r *stubReservaRepo) ListEstados(_ context.Context) ([]model.EstadoReserva, error) {
	return []model.EstadoReserva{
		{ID: estadosTest.Reservado, Nombre: model.EstadoReservaReservado},
		{ID: estadosTest.Confirmada, Nombre: model.EstadoReservaConfirmada},
		{ID: estadosTest.Cancelada, Nombre: model.EstadoReservaCancelada},
	}, nil
}

func (r *stubReservaRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Reserva, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.reservaCopy(id)
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return res, nil
}

func (r *stubReservaRepo) ListByActividad(_ context.Context, actividadID uuid.UUID) ([]model.Reserva, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Reserva
	for _, rid := range r.s.resOrden {
		res, ok := r.s.reservaCopy(rid)
		if ok && res.ActividadID == actividadID {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (r *stubReservaRepo) FindByIDForUpdateTx(_ *gorm.DB, id uuid.UUID) (*model.Reserva, error) {
	return r.FindByID(context.Background(), id)
}

func (r *stubReservaRepo) CreateTx(_ *gorm.DB, res *model.Reserva) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	res.CreatedAt = r.s.tick()
	c := *res
	c.Lote, c.Estado = nil, nil
	r.s.reservas[res.ID] = &c
	r.s.resOrden = append(r.s.resOrden, res.ID)
	return nil
}

func (r *stubReservaRepo) UpdateTx(_ *gorm.DB, res *model.Reserva) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.reservas[res.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.CantidadReservada = res.CantidadReservada
	stored.CantidadUsada = res.CantidadUsada
	stored.CantidadDevuelta = res.CantidadDevuelta
	stored.EstadoID = res.EstadoID
	return nil
}

func (r *stubReservaRepo) DeleteTx(_ *gorm.DB, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.falloDeleteReserva[id] {
		return errors.New("delete reserva: timeout")
	}
	delete(r.s.reservas, id)
	return nil
}

func (r *stubReservaRepo) DeleteByLoteTx(_ *gorm.DB, loteID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, res := range r.s.reservas {
		if res.LoteID == loteID {
			delete(r.s.reservas, id)
		}
	}
	return nil
}

func (r *stubReservaRepo) DB() *gorm.DB { return nil }

var _ repository.ReservaRepository = (*stubReservaRepo)(nil)

// ── Movimiento ────────────────────────────────────────────────────────────────

type stubMovimientoRepo struct{ s *memStore }

func (r *stubMovimientoRepo) FindTipoByNombre(_ context.Context, nombre string) (*model.TipoMovimiento, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tipos[nombre]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &t, nil
}

func (r *stubMovimientoRepo) Create(_ context.Context, m *model.Movimiento) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	for _, t := range r.s.tipos {
		if t.ID == m.TipoMovimientoID {
			tc := t
			m.TipoMovimiento = &tc
		}
	}
	r.s.movimientos = append(r.s.movimientos, *m)
	return nil
}

func (r *stubMovimientoRepo) CreateTx(_ *gorm.DB, m *model.Movimiento) error {
	return r.Create(context.Background(), m)
}

func (r *stubMovimientoRepo) DeleteByLoteTx(_ *gorm.DB, loteID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	quedan := r.s.movimientos[:0]
	for _, m := range r.s.movimientos {
		if m.LoteID != loteID {
			quedan = append(quedan, m)
		}
	}
	r.s.movimientos = quedan
	return nil
}

func (r *stubMovimientoRepo) List(_ context.Context, f repository.MovimientoFilter) ([]model.Movimiento, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Movimiento
	for _, m := range r.s.movimientos {
		if f.LoteID != nil && m.LoteID != *f.LoteID {
			continue
		}
		if f.Tipo != "" && (m.TipoMovimiento == nil || m.TipoMovimiento.Nombre != f.Tipo) {
			continue
		}
		out = append(out, m)
	}
	return out, int64(len(out)), nil
}

var _ repository.MovimientoRepository = (*stubMovimientoRepo)(nil)

// ── Producto / Usuario ────────────────────────────────────────────────────────

type stubProductoRepo struct{ s *memStore }

func (r *stubProductoRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Producto, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p := r.s.productoCopy(id)
	if p == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (r *stubProductoRepo) FindByIDTx(_ *gorm.DB, id uuid.UUID) (*model.Producto, error) {
	return r.FindByID(context.Background(), id)
}

func (r *stubProductoRepo) UpdateTx(_ *gorm.DB, p *model.Producto) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.productos[p.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.Nombre = p.Nombre
	stored.Precio = p.Precio
	stored.CapacidadPresentacion = p.CapacidadPresentacion
	return nil
}

var _ repository.ProductoRepository = (*stubProductoRepo)(nil)

type stubUsuarioRepo struct{ s *memStore }

func (r *stubUsuarioRepo) FindByDNI(_ context.Context, dni string) (*model.Usuario, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.usuarios[dni]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	c := *u
	return &c, nil
}

func (r *stubUsuarioRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Usuario, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.usuarios {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

var _ repository.UsuarioRepository = (*stubUsuarioRepo)(nil)

// ── Actividad ─────────────────────────────────────────────────────────────────

type stubActividadRepo struct{ s *memStore }

func (r *stubActividadRepo) Create(_ context.Context, a *model.Actividad) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = r.s.tick()
	for _, ua := range a.Usuarios {
		c := ua
		r.s.asignados[ua.ID] = &c
	}
	c := *a
	c.Usuarios, c.Reservas = nil, nil
	r.s.actividades[a.ID] = &c
	return nil
}

func (r *stubActividadRepo) actividadCopy(id uuid.UUID) (*model.Actividad, bool) {
	a, ok := r.s.actividades[id]
	if !ok {
		return nil, false
	}
	c := *a
	c.Usuarios = nil
	for _, ua := range r.s.asignados {
		if ua.ActividadID == id {
			c.Usuarios = append(c.Usuarios, *ua)
		}
	}
	return &c, true
}

func (r *stubActividadRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Actividad, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.actividadCopy(id)
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return a, nil
}

func (r *stubActividadRepo) List(_ context.Context, f repository.ActividadFilter) ([]model.Actividad, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Actividad
	for id, a := range r.s.actividades {
		if f.Estado != nil && a.Estado != *f.Estado {
			continue
		}
		if f.DNIResponsable != "" && a.DNIResponsable != f.DNIResponsable {
			continue
		}
		c, _ := r.actividadCopy(id)
		out = append(out, *c)
	}
	return out, int64(len(out)), nil
}

func (r *stubActividadRepo) Update(_ context.Context, a *model.Actividad) error {
	return r.UpdateTx(nil, a)
}

func (r *stubActividadRepo) ListUsuarios(_ context.Context, actividadID uuid.UUID) ([]model.UsuarioActividad, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.UsuarioActividad
	for _, ua := range r.s.asignados {
		if ua.ActividadID == actividadID {
			out = append(out, *ua)
		}
	}
	return out, nil
}

func (r *stubActividadRepo) UpdateTx(_ *gorm.DB, a *model.Actividad) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.actividades[a.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	c := *a
	c.Usuarios, c.Reservas = nil, nil
	r.s.actividades[a.ID] = &c
	return nil
}

func (r *stubActividadRepo) CreateUsuarioTx(_ *gorm.DB, ua *model.UsuarioActividad) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *ua
	r.s.asignados[ua.ID] = &c
	return nil
}

func (r *stubActividadRepo) DeleteUsuarioTx(_ *gorm.DB, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.asignados, id)
	return nil
}

func (r *stubActividadRepo) DeleteUsuariosByActividadTx(_ *gorm.DB, actividadID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.falloDeleteUsuarios {
		return errors.New("delete usuarios: conexión perdida")
	}
	for id, ua := range r.s.asignados {
		if ua.ActividadID == actividadID {
			delete(r.s.asignados, id)
		}
	}
	return nil
}

func (r *stubActividadRepo) DeleteTx(_ *gorm.DB, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.actividades, id)
	return nil
}

func (r *stubActividadRepo) DB() *gorm.DB { return nil }

var _ repository.ActividadRepository = (*stubActividadRepo)(nil)

// ── Fixture ───────────────────────────────────────────────────────────────────

type fixture struct {
	store       *memStore
	movimientos service.MovimientoService
	lotes       service.LoteService
	reservas    service.ReservaService
	actividades service.ActividadService
}

func newFixture() *fixture {
	s := newMemStore()
	loteRepo := &stubLoteRepo{s: s}
	reservaRepo := &stubReservaRepo{s: s}
	movRepo := &stubMovimientoRepo{s: s}
	productoRepo := &stubProductoRepo{s: s}
	usuarioRepo := &stubUsuarioRepo{s: s}
	actividadRepo := &stubActividadRepo{s: s}
	locker := service.NewLocalLocker()

	movimientos := service.NewMovimientoService(movRepo, usuarioRepo, nil)
	reservas := service.NewReservaService(reservaRepo, loteRepo, productoRepo, actividadRepo, movimientos, locker, estadosTest)
	return &fixture{
		store:       s,
		movimientos: movimientos,
		lotes:       service.NewLoteService(loteRepo, productoRepo, reservaRepo, movRepo, movimientos, locker, estadosTest),
		reservas:    reservas,
		actividades: service.NewActividadService(actividadRepo, reservaRepo, usuarioRepo, reservas, estadosTest),
	}
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

type productoOpts struct {
	nombre    string
	precio    string
	capacidad string
	divisible bool
	vidaUtil  *int
	sku       *string
	unidad    string
}

func (f *fixture) seedProducto(o productoOpts) *model.Producto {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	cat := &model.Categoria{ID: uuid.New(), Nombre: "cat-" + o.nombre, EsDivisible: o.divisible}
	p := &model.Producto{
		ID:                      uuid.New(),
		Nombre:                  o.nombre,
		SKU:                     o.sku,
		Precio:                  dec(o.precio),
		CapacidadPresentacion:   dec(o.capacidad),
		CategoriaID:             cat.ID,
		UnidadMedida:            o.unidad,
		VidaUtilPromedioPorUsos: o.vidaUtil,
		Categoria:               cat,
	}
	f.store.productos[p.ID] = p
	c := *p
	return &c
}

func (f *fixture) seedLote(productoID uuid.UUID, disponible, parcial string) *model.Lote {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	l := &model.Lote{
		ID:                 uuid.New(),
		ProductoID:         productoID,
		BodegaID:           uuid.New(),
		Stock:              dec("1"),
		CantidadDisponible: dec(disponible),
		CantidadParcial:    dec(parcial),
		CreatedAt:          f.store.tick(),
	}
	f.store.lotes[l.ID] = l
	f.store.loteOrden = append(f.store.loteOrden, l.ID)
	c := *l
	return &c
}

func (f *fixture) seedActividad(dniResponsable string) *model.Actividad {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	a := &model.Actividad{
		ID:                   uuid.New(),
		Descripcion:          "Fumigación lote norte",
		CultivoZonaID:        uuid.New(),
		CategoriaActividadID: uuid.New(),
		FechaAsignacion:      f.store.tick(),
		DNIResponsable:       dniResponsable,
		Estado:               true,
	}
	f.store.actividades[a.ID] = a
	c := *a
	return &c
}

func (f *fixture) seedUsuario(dni, nombres, apellidos string) *model.Usuario {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	u := &model.Usuario{ID: uuid.New(), DNI: dni, Nombres: nombres, Apellidos: apellidos, Activo: true}
	f.store.usuarios[dni] = u
	c := *u
	return &c
}
