package service_test

import (
	"context"
	"strings"
	"testing"

	"agrotic/internal/apierror"
	"agrotic/internal/dto"
	"agrotic/internal/model"
	"agrotic/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dniResponsable = "30111222"

func reservar(t *testing.T, f *fixture, actividadID, loteID uuid.UUID, cantidad string) *dto.ReservaResponse {
	t.Helper()
	resp, err := f.reservas.Reservar(context.Background(), dto.ReservarLoteRequest{
		ActividadID: actividadID.String(),
		LoteID:      loteID.String(),
		Cantidad:    dec(cantidad),
	}, dniResponsable)
	require.NoError(t, err)
	return resp
}

func disponible(f *fixture, loteID uuid.UUID) string {
	return service.DisponibleParaReserva(f.store.lote(loteID), estadosTest).StringFixed(2)
}

func TestReservar_NoModificaCantidadesDelLote(t *testing.T) {
	f := newFixture()
	p := f.seedProducto(productoOpts{nombre: "Glifosato", precio: "100", capacidad: "10", divisible: true, unidad: "litro"})
	l := f.seedLote(p.ID, "50", "0")
	a := f.seedActividad(dniResponsable)

	resp := reservar(t, f, a.ID, l.ID, "12")

	assert.Equal(t, model.EstadoReservaReservado, resp.Estado)
	assert.Equal(t, "38.00", resp.DisponibleLote.StringFixed(2))
	assert.Equal(t, "100.00", resp.PrecioProducto.StringFixed(2))
	assert.Equal(t, "10.00", resp.CapacidadPresentacionProducto.StringFixed(2))

	stored := f.store.lote(l.ID)
	assert.Equal(t, "50.00", stored.CantidadDisponible.StringFixed(2))
	assert.Equal(t, "38.00", disponible(f, l.ID))
}

func TestReservar_ExactamenteLoDisponible(t *testing.T) {
	f := newFixture()
	p := f.seedProducto(productoOpts{nombre: "Urea", precio: "20", capacidad: "50", divisible: true})
	l := f.seedLote(p.ID, "8", "2")
	a := f.seedActividad(dniResponsable)

	reservar(t, f, a.ID, l.ID, "10")
	assert.Equal(t, "0.00", disponible(f, l.ID))

	_, err := f.reservas.Reservar(context.Background(), dto.ReservarLoteRequest{
		ActividadID: a.ID.String(),
		LoteID:      l.ID.String(),
		Cantidad:    dec("0.01"),
	}, dniResponsable)
	assert.ErrorIs(t, err, apierror.ErrInsufficientStock)
}

func TestReservar_StockInsuficiente(t *testing.T) {
	f := newFixture()
	p := f.seedProducto(productoOpts{nombre: "Urea", precio: "20", capacidad: "50", divisible: true})
	l := f.seedLote(p.ID, "5", "0")
	a := f.seedActividad(dniResponsable)

	_, err := f.reservas.Reservar(context.Background(), dto.ReservarLoteRequest{
		ActividadID: a.ID.String(),
		LoteID:      l.ID.String(),
		Cantidad:    dec("6"),
	}, dniResponsable)
	assert.ErrorIs(t, err, apierror.ErrInsufficientStock)
	assert.Empty(t, f.store.reservasDeActividad(a.ID))
}

func TestReservar_LoteInexistente(t *testing.T) {
	f := newFixture()
	a := f.seedActividad(dniResponsable)
	_, err := f.reservas.Reservar(context.Background(), dto.ReservarLoteRequest{
		ActividadID: a.ID.String(),
		LoteID:      uuid.NewString(),
		Cantidad:    dec("1"),
	}, dniResponsable)
	assert.ErrorIs(t, err, apierror.ErrNotFound)
}

func TestReservar_ActividadFinalizada(t *testing.T) {
	f := newFixture()
	p := f.seedProducto(productoOpts{nombre: "Urea", precio: "20", capacidad: "50", divisible: true})
	l := f.seedLote(p.ID, "5", "0")
	a := f.seedActividad(dniResponsable)
	_, err := f.actividades.Finalizar(context.Background(), a.ID, dto.FinalizarActividadRequest{}, dniResponsable)
	require.NoError(t, err)

	_, err = f.reservas.Reservar(context.Background(), dto.ReservarLoteRequest{
		ActividadID: a.ID.String(),
		LoteID:      l.ID.String(),
		Cantidad:    dec("1"),
	}, dniResponsable)
	assert.ErrorIs(t, err, apierror.ErrConflict)
}

func TestReservar_EstadoInicialDistintoDeReservado(t *testing.T) {
	f := newFixture()
	p := f.seedProducto(productoOpts{nombre: "Urea", precio: "20", capacidad: "50", divisible: true})
	l := f.seedLote(p.ID, "5", "0")
	a := f.seedActividad(dniResponsable)
	confirmada := estadosTest.Confirmada

	_, err := f.reservas.Reservar(context.Background(), dto.ReservarLoteRequest{
		ActividadID: a.ID.String(),
		LoteID:      l.ID.String(),
		Cantidad:    dec("1"),
		EstadoID:    &confirmada,
	}, dniResponsable)
	assert.ErrorIs(t, err, apierror.ErrValidation)
}

func TestReservar_RegistraMovimientoReserva(t *testing.T) {
	f := newFixture()
	f.seedUsuario(dniResponsable, "Ana", "Pérez")
	p := f.seedProducto(productoOpts{nombre: "Glifosato", precio: "100", capacidad: "10", divisible: true, unidad: "litro"})
	l := f.seedLote(p.ID, "50", "0")
	a := f.seedActividad(dniResponsable)

	resp := reservar(t, f, a.ID, l.ID, "3")

	movs := f.store.movimientosDeTipo(model.TipoMovimientoReserva)
	require.Len(t, movs, 1)
	assert.Equal(t, l.ID, movs[0].LoteID)
	assert.Equal(t, resp.ID, movs[0].ReservaID.String())
	assert.Equal(t, "3.00", movs[0].Cantidad.StringFixed(2))
	assert.True(t, strings.HasPrefix(movs[0].Observacion, "Reserva de 3.00 litro de Glifosato"))
	require.NotNil(t, movs[0].Responsable)
	assert.Equal(t, "Ana Pérez - "+dniResponsable, *movs[0].Responsable)
}

func TestReservarPorProducto_PrimerLoteQueAlcanza(t *testing.T) {
	f := newFixture()
	p := f.seedProducto(productoOpts{nombre: "Semilla", precio: "5", capacidad: "1", divisible: true})
	chico := f.seedLote(p.ID, "5", "0")
	mediano := f.seedLote(p.ID, "20", "0")
	f.seedLote(p.ID, "30", "0")
	a := f.seedActividad(dniResponsable)

	resp, err := f.reservas.ReservarPorProducto(context.Background(), dto.ReservarProductoRequest{
		ActividadID: a.ID.String(),
		ProductoID:  p.ID.String(),
		Cantidad:    dec("10"),
	}, dniResponsable)
	require.NoError(t, err)
	assert.Equal(t, mediano.ID.String(), resp.LoteID)
	assert.Equal(t, "5.00", disponible(f, chico.ID))
}

func TestReservarPorProducto_NoDivideEntreLotes(t *testing.T) {
	f := newFixture()
	p := f.seedProducto(productoOpts{nombre: "Semilla", precio: "5", capacidad: "1", divisible: true})
	f.seedLote(p.ID, "5", "0")
	f.seedLote(p.ID, "5", "0")
	a := f.seedActividad(dniResponsable)

	_, err := f.reservas.ReservarPorProducto(context.Background(), dto.ReservarProductoRequest{
		ActividadID: a.ID.String(),
		ProductoID:  p.ID.String(),
		Cantidad:    dec("8"),
	}, dniResponsable)
	assert.ErrorIs(t, err, apierror.ErrInsufficientStock)
}

func TestReservarPorProducto_ProductoInexistente(t *testing.T) {
	f := newFixture()
	a := f.seedActividad(dniResponsable)
	_, err := f.reservas.ReservarPorProducto(context.Background(), dto.ReservarProductoRequest{
		ActividadID: a.ID.String(),
		ProductoID:  uuid.NewString(),
		Cantidad:    dec("1"),
	}, dniResponsable)
	assert.ErrorIs(t, err, apierror.ErrNotFound)
}

func TestConfirmarUso_DevuelveSobranteAlParcial(t *testing.T) {
	f := newFixture()
	p := f.seedProducto(productoOpts{nombre: "Glifosato", precio: "100", capacidad: "10", divisible: true})
	l := f.seedLote(p.ID, "50", "0")
	a := f.seedActividad(dniResponsable)
	res := reservar(t, f, a.ID, l.ID, "10")

	resp, err := f.reservas.ConfirmarUso(context.Background(), uuid.MustParse(res.ID),
		dto.ConfirmarUsoRequest{CantidadUsada: dec("7")}, dniResponsable)
	require.NoError(t, err)
	assert.Equal(t, model.EstadoReservaConfirmada, resp.Estado)
	assert.Equal(t, "7.00", resp.CantidadUsada.StringFixed(2))
	assert.Equal(t, "3.00", resp.CantidadDevuelta.StringFixed(2))

	stored := f.store.lote(l.ID)
	assert.Equal(t, "40.00", stored.CantidadDisponible.StringFixed(2))
	assert.Equal(t, "3.00", stored.CantidadParcial.StringFixed(2))
	assert.Equal(t, "43.00", disponible(f, l.ID))

	devs := f.store.movimientosDeTipo(model.TipoMovimientoDevolucion)
	require.Len(t, devs, 1)
	assert.Equal(t, "3.00", devs[0].Cantidad.StringFixed(2))
}

func TestConfirmarUso_UsoTotalNoRegistraDevolucion(t *testing.T) {
	f := newFixture()
	p := f.seedProducto(productoOpts{nombre: "Glifosato", precio: "100", capacidad: "10", divisible: true})
	l := f.seedLote(p.ID, "50", "0")
	a := f.seedActividad(dniResponsable)
	res := reservar(t, f, a.ID, l.ID, "3")

	_, err := f.reservas.ConfirmarUso(context.Background(), uuid.MustParse(res.ID),
		dto.ConfirmarUsoRequest{CantidadUsada: dec("3")}, dniResponsable)
	require.NoError(t, err)

	costo, err := f.actividades.CalcularCosto(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, costo.Lineas, 1)
	assert.Equal(t, "30.00", costo.Lineas[0].Subtotal.StringFixed(2))
	assert.Empty(t, f.store.movimientosDeTipo(model.TipoMovimientoDevolucion))
	assert.Equal(t, "47.00", disponible(f, l.ID))
}

func TestConfirmarUso_ConsumeParcialCuandoNoAlcanzaLoFresco(t *testing.T) {
	f := newFixture()
	p := f.seedProducto(productoOpts{nombre: "Fungicida", precio: "60", capacidad: "1", divisible: true})
	l := f.seedLote(p.ID, "2", "10")
	a := f.seedActividad(dniResponsable)
	res := reservar(t, f, a.ID, l.ID, "5")

	_, err := f.reservas.ConfirmarUso(context.Background(), uuid.MustParse(res.ID),
		dto.ConfirmarUsoRequest{CantidadUsada: dec("5")}, dniResponsable)
	require.NoError(t, err)

	stored := f.store.lote(l.ID)
	assert.Equal(t, "0.00", stored.CantidadDisponible.StringFixed(2))
	assert.Equal(t, "7.00", stored.CantidadParcial.StringFixed(2))
}

func TestConfirmarUso_RechazaUsoMayorAlReservado(t *testing.T) {
	f := newFixture()
	p := f.seedProducto(productoOpts{nombre: "Glifosato", precio: "100", capacidad: "10", divisible: true})
	l := f.seedLote(p.ID, "50", "0")
	a := f.seedActividad(dniResponsable)
	res := reservar(t, f, a.ID, l.ID, "10")

	_, err := f.reservas.ConfirmarUso(context.Background(), uuid.MustParse(res.ID),
		dto.ConfirmarUsoRequest{CantidadUsada: dec("10.01")}, dniResponsable)
	assert.ErrorIs(t, err, apierror.ErrConflict)

	stored := f.store.reserva(uuid.MustParse(res.ID))
	assert.Equal(t, estadosTest.Reservado, stored.EstadoID)
	assert.Equal(t, "50.00", f.store.lote(l.ID).CantidadDisponible.StringFixed(2))
}

func TestConfirmarUso_ReservaYaConfirmada(t *testing.T) {
	f := newFixture()
	p := f.seedProducto(productoOpts{nombre: "Glifosato", precio: "100", capacidad: "10", divisible: true})
	l := f.seedLote(p.ID, "50", "0")
	a := f.seedActividad(dniResponsable)
	res := reservar(t, f, a.ID, l.ID, "10")
	id := uuid.MustParse(res.ID)

	_, err := f.reservas.ConfirmarUso(context.Background(), id, dto.ConfirmarUsoRequest{CantidadUsada: dec("4")}, dniResponsable)
	require.NoError(t, err)
	_, err = f.reservas.ConfirmarUso(context.Background(), id, dto.ConfirmarUsoRequest{CantidadUsada: dec("4")}, dniResponsable)
	assert.ErrorIs(t, err, apierror.ErrConflict)
	assert.Equal(t, "46.00", disponible(f, l.ID))
}

func TestCancelar_DevuelveTodoAlParcial(t *testing.T) {
	f := newFixture()
	p := f.seedProducto(productoOpts{nombre: "Glifosato", precio: "100", capacidad: "10", divisible: true})
	l := f.seedLote(p.ID, "50", "0")
	a := f.seedActividad(dniResponsable)
	antes := disponible(f, l.ID)
	res := reservar(t, f, a.ID, l.ID, "10")

	resp, err := f.reservas.Cancelar(context.Background(), uuid.MustParse(res.ID), dniResponsable)
	require.NoError(t, err)
	assert.Equal(t, model.EstadoReservaCancelada, resp.Estado)
	assert.Equal(t, "10.00", resp.CantidadDevuelta.StringFixed(2))

	stored := f.store.lote(l.ID)
	assert.Equal(t, "40.00", stored.CantidadDisponible.StringFixed(2))
	assert.Equal(t, "10.00", stored.CantidadParcial.StringFixed(2))
	assert.Equal(t, antes, disponible(f, l.ID))

	_, err = f.reservas.Cancelar(context.Background(), uuid.MustParse(res.ID), dniResponsable)
	assert.ErrorIs(t, err, apierror.ErrConflict)
}

func TestCambiarCantidad(t *testing.T) {
	f := newFixture()
	p := f.seedProducto(productoOpts{nombre: "Glifosato", precio: "100", capacidad: "10", divisible: true})
	l := f.seedLote(p.ID, "20", "0")
	a := f.seedActividad(dniResponsable)
	res := reservar(t, f, a.ID, l.ID, "10")
	id := uuid.MustParse(res.ID)

	require.NoError(t, f.reservas.CambiarCantidad(context.Background(), id, dec("20"), dniResponsable))
	assert.Equal(t, "0.00", disponible(f, l.ID))

	err := f.reservas.CambiarCantidad(context.Background(), id, dec("20.5"), dniResponsable)
	assert.ErrorIs(t, err, apierror.ErrInsufficientStock)

	require.NoError(t, f.reservas.CambiarCantidad(context.Background(), id, dec("4"), dniResponsable))
	assert.Equal(t, "16.00", disponible(f, l.ID))
	assert.Len(t, f.store.movimientosDeTipo(model.TipoMovimientoAjuste), 1)
}

func TestListarPorActividad(t *testing.T) {
	f := newFixture()
	p := f.seedProducto(productoOpts{nombre: "Glifosato", precio: "100", capacidad: "10", divisible: true})
	l := f.seedLote(p.ID, "20", "0")
	a := f.seedActividad(dniResponsable)
	reservar(t, f, a.ID, l.ID, "5")
	reservar(t, f, a.ID, l.ID, "6")

	list, err := f.reservas.ListarPorActividad(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Glifosato", list[0].ProductoNombre)
	assert.Equal(t, "9.00", list[1].DisponibleLote.StringFixed(2))

	_, err = f.reservas.ListarPorActividad(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apierror.ErrNotFound)
}
