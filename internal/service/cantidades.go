package service

import (
	"agrotic/internal/apierror"
	"agrotic/internal/model"

	"github.com/shopspring/decimal"
)

// r2 rounds to the two decimals every stored quantity and amount carries.
func r2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// DisponibleParaReserva is the quantity of a lot that can still be reserved:
//
//	disponible + parcial - Σ (reservada - devuelta) over non-confirmed reservations
//
// Confirmed and cancelled reservations are already settled against the lot's
// quantities and contribute nothing. Each step is rounded to 2 decimals.
func DisponibleParaReserva(l *model.Lote, estados EstadosReserva) decimal.Decimal {
	total := r2(l.CantidadDisponible.Add(l.CantidadParcial))
	for _, r := range l.Reservas {
		if r.EstadoID == estados.Confirmada || r.EstadoID == estados.Cancelada {
			continue
		}
		total = r2(total.Sub(r2(r.CantidadReservada.Sub(r.CantidadDevuelta))))
	}
	return total
}

// liquidar settles a reservation against its lot: the whole reserved quantity
// leaves the lot (fresh units first, then returned ones) and the unused
// remainder comes back into the partial pool. It returns the remainder.
// The lot is only modified when liquidar succeeds.
func liquidar(l *model.Lote, reservada, usada decimal.Decimal) (decimal.Decimal, error) {
	reservada = r2(reservada)
	usada = r2(usada)
	if usada.IsNegative() {
		return decimal.Zero, apierror.Invalid("la cantidad usada no puede ser negativa")
	}
	devolver := r2(reservada.Sub(usada))
	if devolver.IsNegative() {
		return decimal.Zero, apierror.Conflict("la cantidad usada supera la cantidad reservada")
	}

	desdeDisponible := decimal.Min(decimal.Max(l.CantidadDisponible, decimal.Zero), reservada)
	resto := r2(reservada.Sub(desdeDisponible))
	if resto.GreaterThan(l.CantidadParcial) {
		return decimal.Zero, apierror.Conflict("el lote no cubre la cantidad reservada")
	}

	l.CantidadDisponible = r2(l.CantidadDisponible.Sub(desdeDisponible))
	l.CantidadParcial = r2(l.CantidadParcial.Sub(resto).Add(devolver))
	return devolver, nil
}
