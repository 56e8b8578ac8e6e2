package handler

import (
	"net/http"

	"agrotic/internal/dto"
	"agrotic/internal/middleware"
	"agrotic/internal/service"

	"github.com/gin-gonic/gin"
)

type LotesHandler struct{ svc service.LoteService }

func NewLotesHandler(svc service.LoteService) *LotesHandler {
	return &LotesHandler{svc: svc}
}

func (h *LotesHandler) Crear(c *gin.Context) {
	var req dto.CrearLoteRequest
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

func (h *LotesHandler) Listar(c *gin.Context) {
	var filter dto.LoteFilter
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

func (h *LotesHandler) Disponibles(c *gin.Context) {
	resp, err := h.svc.ListarDisponibles(c.Request.Context())
	if err != nil {
		fallar(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (h *LotesHandler) Buscar(c *gin.Context) {
	var filter dto.BusquedaLotesFilter
	if !bindQuery(c, &filter) {
		return
	}
	resp, err := h.svc.Buscar(c.Request.Context(), filter)
	if err != nil {
		fallar(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *LotesHandler) ObtenerPorID(c *gin.Context) {
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

func (h *LotesHandler) Actualizar(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req dto.ActualizarLoteRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Actualizar(c.Request.Context(), id, req, middleware.DNIActor(c))
	if err != nil {
		fallar(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *LotesHandler) Eliminar(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.svc.Eliminar(c.Request.Context(), id); err != nil {
		fallar(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
