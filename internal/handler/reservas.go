package handler

import (
	"net/http"

	"agrotic/internal/dto"
	"agrotic/internal/middleware"
	"agrotic/internal/service"

	"github.com/gin-gonic/gin"
)

type ReservasHandler struct{ svc service.ReservaService }

func NewReservasHandler(svc service.ReservaService) *ReservasHandler {
	return &ReservasHandler{svc: svc}
}

func (h *ReservasHandler) Reservar(c *gin.Context) {
	var req dto.ReservarLoteRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Reservar(c.Request.Context(), req, middleware.DNIActor(c))
	if err != nil {
		fallar(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *ReservasHandler) ReservarPorProducto(c *gin.Context) {
	var req dto.ReservarProductoRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.ReservarPorProducto(c.Request.Context(), req, middleware.DNIActor(c))
	if err != nil {
		fallar(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *ReservasHandler) ConfirmarUso(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req dto.ConfirmarUsoRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.ConfirmarUso(c.Request.Context(), id, req, middleware.DNIActor(c))
	if err != nil {
		fallar(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ReservasHandler) Cancelar(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	resp, err := h.svc.Cancelar(c.Request.Context(), id, middleware.DNIActor(c))
	if err != nil {
		fallar(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
