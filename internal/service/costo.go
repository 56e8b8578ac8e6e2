package service

import (
	"agrotic/internal/dto"
	"agrotic/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// valorResidual is the share of a tool's price left when its useful life ends.
var valorResidual = decimal.NewFromFloat(0.10)

// CalcularCosto prices an activity from its confirmed reservations plus labor.
// Price and presentation size come from the reservation snapshot; divisibility
// and useful life come from the product as it is now.
func CalcularCosto(actividadID uuid.UUID, reservas []model.Reserva, estados EstadosReserva, horas, precioHora *decimal.Decimal) *dto.CostoActividadResponse {
	resp := &dto.CostoActividadResponse{
		ActividadID:   actividadID.String(),
		Lineas:        []dto.CostoLineaResponse{},
		TotalInsumos:  decimal.Zero,
		CostoManoObra: decimal.Zero,
	}

	for _, r := range reservas {
		if r.EstadoID != estados.Confirmada {
			continue
		}
		linea := costoLinea(r)
		resp.Lineas = append(resp.Lineas, linea)
		resp.TotalInsumos = r2(resp.TotalInsumos.Add(linea.Subtotal))
	}

	if horas != nil && precioHora != nil {
		resp.CostoManoObra = r2(horas.Mul(*precioHora))
	}
	resp.Total = r2(resp.TotalInsumos.Add(resp.CostoManoObra))
	return resp
}

func costoLinea(r model.Reserva) dto.CostoLineaResponse {
	var p *model.Producto
	if r.Lote != nil {
		p = r.Lote.Producto
	}
	linea := dto.CostoLineaResponse{
		ReservaID:     r.ID.String(),
		EsDivisible:   p.EsDivisible(),
		CantidadUsada: r.CantidadUsada,
	}
	if p != nil {
		linea.ProductoID = p.ID.String()
		linea.ProductoNombre = p.Nombre
	}

	if !linea.EsDivisible && p.VidaUtilPromedioPorUsos != nil && *p.VidaUtilPromedioPorUsos > 0 {
		residual := r2(r.PrecioProducto.Mul(valorResidual))
		porUso := r2(r.PrecioProducto.Sub(residual).Div(decimal.NewFromInt(int64(*p.VidaUtilPromedioPorUsos))))
		linea.PrecioUnitario = porUso
		linea.Subtotal = porUso
		return linea
	}

	unitario := decimal.Zero
	if r.CapacidadPresentacionProducto.IsPositive() {
		unitario = r.PrecioProducto.Div(r.CapacidadPresentacionProducto)
	}
	linea.PrecioUnitario = r2(unitario)
	linea.Subtotal = r2(r.CantidadUsada.Mul(unitario))
	return linea
}
