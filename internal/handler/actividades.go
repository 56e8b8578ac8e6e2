package handler

import (
	"net/http"

	"agrotic/internal/dto"
	"agrotic/internal/middleware"
	"agrotic/internal/service"

	"github.com/gin-gonic/gin"
)

type ActividadesHandler struct {
	svc      service.ActividadService
	reservas service.ReservaService
}

func NewActividadesHandler(svc service.ActividadService, reservas service.ReservaService) *ActividadesHandler {
	return &ActividadesHandler{svc: svc, reservas: reservas}
}

// Crear registers the caller as the activity's responsible user.
func (h *ActividadesHandler) Crear(c *gin.Context) {
	var req dto.CrearActividadRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Crear(c.Request.Context(), req, middleware.DNIActor(c))
	if err != nil {
		fallar(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *ActividadesHandler) Listar(c *gin.Context) {
	var filter dto.ActividadFilter
	if !bindQuery(c, &filter) {
		return
	}
	resp, err := h.svc.Listar(c.Request.Context(), filter)
	if err != nil {
		fallar(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ActividadesHandler) ObtenerPorID(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	resp, err := h.svc.ObtenerPorID(c.Request.Context(), id)
	if err != nil {
		fallar(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ActividadesHandler) Actualizar(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req dto.ActualizarActividadRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Actualizar(c.Request.Context(), id, req)
	if err != nil {
		fallar(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ActividadesHandler) ActualizarCompleto(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req dto.ActualizarActividadCompletaRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.ActualizarCompleto(c.Request.Context(), id, req, middleware.DNIActor(c))
	if err != nil {
		fallar(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ActividadesHandler) Finalizar(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req dto.FinalizarActividadRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Finalizar(c.Request.Context(), id, req, middleware.DNIActor(c))
	if err != nil {
		fallar(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Eliminar answers 200 with the per-step report even when some audit steps
// failed; only a failure to delete the activity itself is an error.
func (h *ActividadesHandler) Eliminar(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	resp, err := h.svc.Eliminar(c.Request.Context(), id, middleware.DNIActor(c))
	if err != nil {
		fallar(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ActividadesHandler) Costo(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	resp, err := h.svc.CalcularCosto(c.Request.Context(), id)
	if err != nil {
		fallar(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ActividadesHandler) Reservas(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	resp, err := h.reservas.ListarPorActividad(c.Request.Context(), id)
	if err != nil {
		fallar(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
