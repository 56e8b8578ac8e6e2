package service_test

import (
	"context"
	"testing"

	"agrotic/internal/model"
	"agrotic/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reservaEn(estado int, reservada, devuelta string) model.Reserva {
	return model.Reserva{
		ID:                uuid.New(),
		EstadoID:          estado,
		CantidadReservada: dec(reservada),
		CantidadDevuelta:  dec(devuelta),
	}
}

func TestDisponibleParaReserva_SoloCuentanReservasAbiertas(t *testing.T) {
	l := &model.Lote{
		CantidadDisponible: dec("50"),
		CantidadParcial:    dec("5.5"),
		Reservas: []model.Reserva{
			reservaEn(estadosTest.Reservado, "10", "0"),
			reservaEn(estadosTest.Reservado, "3", "0"),
			reservaEn(estadosTest.Confirmada, "20", "4"),
			reservaEn(estadosTest.Cancelada, "7", "7"),
		},
	}
	assert.True(t, dec("42.5").Equal(service.DisponibleParaReserva(l, estadosTest)))
}

func TestDisponibleParaReserva_SinReservas(t *testing.T) {
	l := &model.Lote{CantidadDisponible: dec("12.345"), CantidadParcial: decimal.Zero}
	assert.Equal(t, "12.35", service.DisponibleParaReserva(l, estadosTest).StringFixed(2))
}

func TestDisponibleParaReserva_PuedeSerNegativa(t *testing.T) {
	l := &model.Lote{
		CantidadDisponible: dec("5"),
		CantidadParcial:    dec("0"),
		Reservas:           []model.Reserva{reservaEn(estadosTest.Reservado, "8", "0")},
	}
	assert.True(t, service.DisponibleParaReserva(l, estadosTest).IsNegative())
}

func TestCargarEstadosReserva(t *testing.T) {
	repo := &stubReservaRepo{s: newMemStore()}
	estados, err := service.CargarEstadosReserva(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, estadosTest, estados)
	assert.True(t, estados.EsTerminal(estados.Confirmada))
	assert.True(t, estados.EsTerminal(estados.Cancelada))
	assert.False(t, estados.EsTerminal(estados.Reservado))
	assert.Equal(t, model.EstadoReservaConfirmada, estados.Nombre(estados.Confirmada))
}

// estadosIncompletos drops the Cancelada row.
type estadosIncompletos struct{ stubReservaRepo }

func (r *estadosIncompletos) ListEstados(_ context.Context) ([]model.EstadoReserva, error) {
	return []model.EstadoReserva{
		{ID: 1, Nombre: model.EstadoReservaReservado},
		{ID: 2, Nombre: model.EstadoReservaConfirmada},
	}, nil
}

func TestCargarEstadosReserva_FaltaEstado(t *testing.T) {
	repo := &estadosIncompletos{stubReservaRepo{s: newMemStore()}}
	_, err := service.CargarEstadosReserva(context.Background(), repo)
	assert.ErrorContains(t, err, model.EstadoReservaCancelada)
}
